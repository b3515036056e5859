package rules

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/opensource-finance/claimguard/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(4)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func defaultSet(t *testing.T) *Set {
	t.Helper()
	set, errs := newTestEngine(t).Compile(Defaults())
	if len(errs) != 0 {
		t.Fatalf("unexpected compile errors: %v", errs)
	}
	return set
}

func TestCompileCanonicalisesCodes(t *testing.T) {
	rs := Defaults()
	rs.Technical.ApprovalServices = []string{" srv9 "}
	rs.Technical.ApprovalPlaceholders = []string{" Pending Approval "}
	rs.Medical.FacilityRegistry = map[string]string{"fac1": "clinic"}
	rs.Medical.FacilityAllowed = map[string][]string{"clinic": {"srv9"}}

	set, errs := newTestEngine(t).Compile(rs)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	got := set.RuleSet()
	if got.Technical.ApprovalServices[0] != "SRV9" {
		t.Errorf("expected SRV9, got %q", got.Technical.ApprovalServices[0])
	}
	if got.Technical.ApprovalPlaceholders[0] != "pending approval" {
		t.Errorf("expected lower-cased placeholder, got %q", got.Technical.ApprovalPlaceholders[0])
	}
	if got.Medical.FacilityRegistry["FAC1"] != "CLINIC" {
		t.Errorf("expected FAC1 -> CLINIC, got %v", got.Medical.FacilityRegistry)
	}
	if !reflect.DeepEqual(got.Medical.FacilityAllowed["CLINIC"], []string{"SRV9"}) {
		t.Errorf("expected CLINIC -> [SRV9], got %v", got.Medical.FacilityAllowed)
	}

	// The input must not be modified.
	if rs.Technical.ApprovalServices[0] != " srv9 " {
		t.Errorf("input rule set was modified: %q", rs.Technical.ApprovalServices[0])
	}
}

func TestCompileCustomRules(t *testing.T) {
	rs := Defaults()
	rs.Custom = []domain.CustomRule{
		{ID: "Z_LATE", Expression: "service_code == 'SRV2002'", Category: domain.CategoryMedical, Enabled: true},
		{ID: "A_HIGH", Expression: "has_paid_amount && paid_amount > 1000.0", Enabled: true},
		{ID: "BROKEN", Expression: "paid_amount +", Enabled: true},
		{ID: "NOT_BOOL", Expression: "paid_amount * 2.0", Enabled: true},
		{ID: "OFF", Expression: "true", Enabled: false},
	}

	set, errs := newTestEngine(t).Compile(rs)
	if len(errs) != 2 {
		t.Fatalf("expected 2 compile errors, got %d: %v", len(errs), errs)
	}
	if set.CustomCount() != 2 {
		t.Fatalf("expected 2 active custom rules, got %d", set.CustomCount())
	}

	claim := validClaim()
	paid := 2000.0
	claim.PaidAmount = &paid
	claim.ApprovalNumber = "APP001"

	violations := Evaluate(claim, set)
	ids := ruleIDs(violations)
	want := []string{"CUSTOM_A_HIGH", "CUSTOM_Z_LATE"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	if violations[1].Category != domain.CategoryMedical {
		t.Errorf("expected medical category, got %s", violations[1].Category)
	}
	if violations[0].Category != domain.CategoryTechnical {
		t.Errorf("expected default technical category, got %s", violations[0].Category)
	}
}

func TestValidateCustom(t *testing.T) {
	engine := newTestEngine(t)

	if err := engine.ValidateCustom([]domain.CustomRule{{ID: "OK", Expression: "'E11.9' in diagnosis_codes"}}); err != nil {
		t.Errorf("expected valid rule, got %v", err)
	}
	if err := engine.ValidateCustom([]domain.CustomRule{{ID: "BAD", Expression: "unknown_var > 1"}}); err == nil {
		t.Error("expected error for undeclared variable")
	}
}

func TestEvaluateAllIsIndexAligned(t *testing.T) {
	engine := newTestEngine(t)
	set := defaultSet(t)

	claims := make([]domain.Claim, 50)
	for i := range claims {
		c := validClaim()
		c.ID = fmt.Sprintf("CLM%03d", i)
		if i%3 == 0 {
			c.ServiceCode = "SRV2007"
		}
		if i%5 == 0 {
			c.UniqueID = ""
		}
		claims[i] = c
	}

	results, err := engine.EvaluateAll(context.Background(), claims, set)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if len(results) != len(claims) {
		t.Fatalf("expected %d results, got %d", len(claims), len(results))
	}
	for i, c := range claims {
		want := Evaluate(c, set)
		if !reflect.DeepEqual(results[i], want) {
			t.Errorf("claim %d: expected %v, got %v", i, ruleIDs(want), ruleIDs(results[i]))
		}
		for _, v := range results[i] {
			if v.ClaimID != c.ID {
				t.Errorf("claim %d: violation attached to %s", i, v.ClaimID)
			}
		}
	}
}

func TestEvaluateAllCancelled(t *testing.T) {
	engine := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.EvaluateAll(ctx, []domain.Claim{validClaim()}, defaultSet(t))
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestEvaluateAllEmpty(t *testing.T) {
	results, err := newTestEngine(t).EvaluateAll(context.Background(), nil, defaultSet(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}
