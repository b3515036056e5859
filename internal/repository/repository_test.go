package repository

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-finance/claimguard/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "claimguard-test.db"),
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func paid(v float64) *float64 { return &v }

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetClaim", func(t *testing.T) {
		claim := &domain.Claim{
			ID:             "C001",
			EncounterType:  "OUTPATIENT",
			ServiceDate:    "2024-05-01",
			NationalID:     "J45NUMBE",
			MemberID:       "UZ89UBER",
			FacilityID:     "0DBYE6KP",
			UniqueID:       "J45N-89UB-E6KP",
			DiagnosisCodes: []string{"E11.9", "R07.9"},
			ServiceCode:    "SRV1001",
			PaidAmount:     paid(1250.5),
			Status:         domain.StatusValidated,
		}

		if err := repo.SaveClaims(ctx, tenantID, []*domain.Claim{claim}); err != nil {
			t.Fatalf("SaveClaims failed: %v", err)
		}

		got, err := repo.GetClaim(ctx, tenantID, "C001")
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if got.Status != domain.StatusPending {
			t.Errorf("expected status Pending, got %s", got.Status)
		}
		if got.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, got.TenantID)
		}
		if got.PaidAmount == nil || *got.PaidAmount != 1250.5 {
			t.Errorf("expected paid amount 1250.5, got %v", got.PaidAmount)
		}
		if len(got.DiagnosisCodes) != 2 || got.DiagnosisCodes[1] != "R07.9" {
			t.Errorf("unexpected diagnosis codes: %v", got.DiagnosisCodes)
		}
		if got.ErrorExplanation == nil {
			t.Error("expected non-nil explanation list")
		}
	})

	t.Run("NullPaidAmount", func(t *testing.T) {
		claim := &domain.Claim{ID: "C002", ServiceCode: "SRV2001"}
		if err := repo.SaveClaims(ctx, tenantID, []*domain.Claim{claim}); err != nil {
			t.Fatalf("SaveClaims failed: %v", err)
		}

		got, err := repo.GetClaim(ctx, tenantID, "C002")
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if got.PaidAmount != nil {
			t.Errorf("expected nil paid amount, got %v", *got.PaidAmount)
		}
		if got.DiagnosisCodes == nil || len(got.DiagnosisCodes) != 0 {
			t.Errorf("expected empty diagnosis list, got %v", got.DiagnosisCodes)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetClaim(ctx, "tenant-002", "C001")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}

		claims, err := repo.ListClaims(ctx, "tenant-002", domain.ClaimFilter{})
		if err != nil {
			t.Fatalf("ListClaims failed: %v", err)
		}
		if len(claims) != 0 {
			t.Errorf("expected no claims for other tenant, got %d", len(claims))
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		err := repo.SaveClaims(ctx, "", []*domain.Claim{{ID: "X"}})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		_, err = repo.GetClaim(ctx, "", "C001")
		if err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("RequiresClaimID", func(t *testing.T) {
		err := repo.SaveClaims(ctx, tenantID, []*domain.Claim{{}})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("SaveOutcomeAndViolations", func(t *testing.T) {
		claim, err := repo.GetClaim(ctx, tenantID, "C001")
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		claim.Status = domain.StatusNotValidated
		claim.ErrorType = domain.ErrorBoth
		claim.ErrorExplanation = []string{"first", "second"}
		claim.RecommendedAction = "fix it"

		violations := []domain.Violation{
			{ClaimID: "C001", RuleID: "TECH_B", Category: domain.CategoryTechnical, Message: "first", Recommendation: "fix it"},
			{ClaimID: "C001", RuleID: "MED_A", Category: domain.CategoryMedical, Message: "second", Recommendation: "fix it"},
		}
		if err := repo.SaveOutcome(ctx, tenantID, claim, violations); err != nil {
			t.Fatalf("SaveOutcome failed: %v", err)
		}

		got, err := repo.GetClaim(ctx, tenantID, "C001")
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if got.Status != domain.StatusNotValidated || got.ErrorType != domain.ErrorBoth {
			t.Errorf("unexpected outcome: %s / %s", got.Status, got.ErrorType)
		}
		if len(got.ErrorExplanation) != 2 {
			t.Errorf("expected 2 explanation bullets, got %v", got.ErrorExplanation)
		}

		stored, err := repo.ListViolations(ctx, tenantID, "C001")
		if err != nil {
			t.Fatalf("ListViolations failed: %v", err)
		}
		if len(stored) != 2 {
			t.Fatalf("expected 2 violations, got %d", len(stored))
		}
		if stored[0].RuleID != "TECH_B" || stored[1].RuleID != "MED_A" {
			t.Errorf("violations out of evaluation order: %v", stored)
		}
		if stored[1].Category != domain.CategoryMedical {
			t.Errorf("expected medical category, got %s", stored[1].Category)
		}
	})

	t.Run("SaveOutcomeRejectsStaleRevision", func(t *testing.T) {
		staleTenant := "tenant-stale"
		snapshot := &domain.Claim{ID: "C003", ServiceCode: "SRV2002", PaidAmount: paid(300)}
		if err := repo.SaveClaims(ctx, staleTenant, []*domain.Claim{snapshot}); err != nil {
			t.Fatalf("SaveClaims failed: %v", err)
		}

		corrected := &domain.Claim{ID: "C003", ServiceCode: "SRV2003", PaidAmount: paid(100)}
		if err := repo.SaveClaims(ctx, staleTenant, []*domain.Claim{corrected}); err != nil {
			t.Fatalf("SaveClaims failed: %v", err)
		}
		if corrected.Revision <= snapshot.Revision {
			t.Fatalf("expected revision to grow, got %d then %d", snapshot.Revision, corrected.Revision)
		}

		snapshot.Status = domain.StatusNotValidated
		snapshot.ErrorType = domain.ErrorTechnical
		v := []domain.Violation{{ClaimID: "C003", RuleID: "TECH_PAID_THRESHOLD_APPROVAL", Category: domain.CategoryTechnical, Message: "m"}}
		err := repo.SaveOutcome(ctx, staleTenant, snapshot, v)
		if !errors.Is(err, ErrStaleClaim) {
			t.Fatalf("expected ErrStaleClaim, got %v", err)
		}

		got, err := repo.GetClaim(ctx, staleTenant, "C003")
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if got.Status != domain.StatusPending || got.ServiceCode != "SRV2003" || *got.PaidAmount != 100 {
			t.Errorf("resubmitted claim overwritten: %s %s %v", got.Status, got.ServiceCode, *got.PaidAmount)
		}
		stored, _ := repo.ListViolations(ctx, staleTenant, "C003")
		if len(stored) != 0 {
			t.Errorf("expected no violations for stale outcome, got %d", len(stored))
		}

		// An outcome already written cannot be written again.
		got.Status = domain.StatusValidated
		if err := repo.SaveOutcome(ctx, staleTenant, got, nil); err != nil {
			t.Fatalf("SaveOutcome failed: %v", err)
		}
		if err := repo.SaveOutcome(ctx, staleTenant, got, nil); !errors.Is(err, ErrStaleClaim) {
			t.Errorf("expected ErrStaleClaim for non-pending claim, got %v", err)
		}

		if err := repo.SaveOutcome(ctx, staleTenant, &domain.Claim{ID: "UNKNOWN"}, nil); !errors.Is(err, ErrStaleClaim) {
			t.Errorf("expected ErrStaleClaim for unknown claim, got %v", err)
		}
	})

	t.Run("ResubmitResetsOutcome", func(t *testing.T) {
		resubmit := &domain.Claim{ID: "C001", ServiceCode: "SRV1001"}
		if err := repo.SaveClaims(ctx, tenantID, []*domain.Claim{resubmit}); err != nil {
			t.Fatalf("SaveClaims failed: %v", err)
		}

		got, err := repo.GetClaim(ctx, tenantID, "C001")
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if got.Status != domain.StatusPending || got.ErrorType != "" {
			t.Errorf("expected reset outcome, got %s / %q", got.Status, got.ErrorType)
		}

		stored, err := repo.ListViolations(ctx, tenantID, "C001")
		if err != nil {
			t.Fatalf("ListViolations failed: %v", err)
		}
		if len(stored) != 0 {
			t.Errorf("expected violations cleared, got %d", len(stored))
		}
	})

	t.Run("DeleteViolations", func(t *testing.T) {
		claim, err := repo.GetClaim(ctx, tenantID, "C002")
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		claim.Status = domain.StatusNotValidated
		claim.ErrorType = domain.ErrorTechnical
		v := []domain.Violation{{ClaimID: "C002", RuleID: "TECH_X", Category: domain.CategoryTechnical, Message: "m"}}
		if err := repo.SaveOutcome(ctx, tenantID, claim, v); err != nil {
			t.Fatalf("SaveOutcome failed: %v", err)
		}

		if err := repo.DeleteViolations(ctx, tenantID, []string{"C001", "C002"}); err != nil {
			t.Fatalf("DeleteViolations failed: %v", err)
		}

		stored, err := repo.ListViolations(ctx, tenantID, "C002")
		if err != nil {
			t.Fatalf("ListViolations failed: %v", err)
		}
		if len(stored) != 0 {
			t.Errorf("expected no violations, got %d", len(stored))
		}

		if err := repo.DeleteViolations(ctx, tenantID, nil); err != nil {
			t.Errorf("empty delete should succeed: %v", err)
		}
	})

	t.Run("ListClaimsFilters", func(t *testing.T) {
		all, err := repo.ListClaims(ctx, tenantID, domain.ClaimFilter{})
		if err != nil {
			t.Fatalf("ListClaims failed: %v", err)
		}
		if len(all) != 2 || all[0].ID != "C001" || all[1].ID != "C002" {
			t.Fatalf("unexpected claims: %d", len(all))
		}

		pending, err := repo.ListClaimsByStatus(ctx, tenantID, domain.StatusPending)
		if err != nil {
			t.Fatalf("ListClaimsByStatus failed: %v", err)
		}
		if len(pending) != 1 || pending[0].ID != "C001" {
			t.Errorf("expected only C001 pending, got %d", len(pending))
		}

		technical, err := repo.ListClaims(ctx, tenantID, domain.ClaimFilter{ErrorType: domain.ErrorTechnical})
		if err != nil {
			t.Fatalf("ListClaims failed: %v", err)
		}
		if len(technical) != 1 || technical[0].ID != "C002" {
			t.Errorf("expected only C002 with technical error, got %d", len(technical))
		}

		page, err := repo.ListClaims(ctx, tenantID, domain.ClaimFilter{Limit: 1, Offset: 1})
		if err != nil {
			t.Fatalf("ListClaims failed: %v", err)
		}
		if len(page) != 1 || page[0].ID != "C002" {
			t.Errorf("expected second page to hold C002")
		}
	})

	t.Run("ListPendingTenants", func(t *testing.T) {
		if err := repo.SaveClaims(ctx, "tenant-003", []*domain.Claim{{ID: "Z1"}}); err != nil {
			t.Fatalf("SaveClaims failed: %v", err)
		}

		tenants, err := repo.ListPendingTenants(ctx)
		if err != nil {
			t.Fatalf("ListPendingTenants failed: %v", err)
		}
		if len(tenants) != 2 || tenants[0] != tenantID || tenants[1] != "tenant-003" {
			t.Errorf("unexpected pending tenants: %v", tenants)
		}
	})

	t.Run("ReplaceMetrics", func(t *testing.T) {
		first := []domain.Metric{
			{Category: "Pending", Count: 3, Paid: 10},
			{Category: "Validated", Count: 1, Paid: 5},
		}
		if err := repo.ReplaceMetrics(ctx, tenantID, first); err != nil {
			t.Fatalf("ReplaceMetrics failed: %v", err)
		}

		second := []domain.Metric{{Category: "Not validated", Count: 4, Paid: 15}}
		if err := repo.ReplaceMetrics(ctx, tenantID, second); err != nil {
			t.Fatalf("ReplaceMetrics failed: %v", err)
		}

		metrics, err := repo.ListMetrics(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListMetrics failed: %v", err)
		}
		if len(metrics) != 1 {
			t.Fatalf("expected metrics replaced, got %d rows", len(metrics))
		}
		if metrics[0].Count != 4 || metrics[0].Paid != 15 || metrics[0].TenantID != tenantID {
			t.Errorf("unexpected metric: %+v", metrics[0])
		}

		if err := repo.ReplaceMetrics(ctx, tenantID, nil); err != nil {
			t.Fatalf("ReplaceMetrics failed: %v", err)
		}
		metrics, _ = repo.ListMetrics(ctx, tenantID)
		if len(metrics) != 0 {
			t.Errorf("expected empty metrics, got %d", len(metrics))
		}
	})

	t.Run("Jobs", func(t *testing.T) {
		job := &domain.ValidationJob{ID: "job-001", TenantID: tenantID, Status: domain.JobQueued}
		if err := repo.SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}

		job.Status = domain.JobSucceeded
		job.ClaimsSelected = 2
		job.ClaimsValidated = 1
		job.ClaimsNotValidated = 1
		if err := repo.SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}

		got, err := repo.GetJob(ctx, tenantID, "job-001")
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if got.Status != domain.JobSucceeded || got.ClaimsSelected != 2 {
			t.Errorf("unexpected job: %+v", got)
		}

		if _, err := repo.GetJob(ctx, "tenant-002", "job-001"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for different tenant, got %v", err)
		}
	})

	t.Run("RuleDocuments", func(t *testing.T) {
		if _, err := repo.GetRuleDocument(ctx, tenantID, "technical"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}

		if err := repo.SaveRuleDocument(ctx, tenantID, "technical", []byte("paid_threshold: 100")); err != nil {
			t.Fatalf("SaveRuleDocument failed: %v", err)
		}
		if err := repo.SaveRuleDocument(ctx, tenantID, "technical", []byte("paid_threshold: 200")); err != nil {
			t.Fatalf("SaveRuleDocument failed: %v", err)
		}

		doc, err := repo.GetRuleDocument(ctx, tenantID, "technical")
		if err != nil {
			t.Fatalf("GetRuleDocument failed: %v", err)
		}
		if string(doc) != "paid_threshold: 200" {
			t.Errorf("expected latest document, got %q", doc)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetClaim(ctx, tenantID, "nonexistent")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}

func TestBuilderPlaceholders(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	query, _, err := pg.builder().Select("id").From("claims").Where("tenant_id = ?", "t").ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}
	if query != "SELECT id FROM claims WHERE tenant_id = $1" {
		t.Errorf("unexpected postgres query: %q", query)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{
		PostgresHost:     "db",
		PostgresPort:     5433,
		PostgresUser:     "claims",
		PostgresPassword: "p w",
		PostgresDB:       "claimguard",
	})

	for _, want := range []string{"host=db", "port=5433", "dbname=claimguard", "password='p w'", "sslmode=disable"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}
