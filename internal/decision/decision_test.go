package decision

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/enrich"
)

type stubEnricher struct {
	exp   *domain.Explanation
	err   error
	delay time.Duration
	calls int
}

func (s *stubEnricher) Enrich(ctx context.Context, _ *domain.Claim, _ []domain.Violation) (*domain.Explanation, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.exp, s.err
}

func technical(msg, rec string) domain.Violation {
	return domain.Violation{RuleID: "T", Category: domain.CategoryTechnical, Message: msg, Recommendation: rec}
}

func medical(msg, rec string) domain.Violation {
	return domain.Violation{RuleID: "M", Category: domain.CategoryMedical, Message: msg, Recommendation: rec}
}

func TestDecideValidated(t *testing.T) {
	p := NewProcessor(nil, domain.EnrichmentConfig{}, nil)
	claim := domain.Claim{
		ID:                "CLM1",
		Status:            domain.StatusPending,
		ErrorExplanation:  []string{"stale"},
		RecommendedAction: "stale",
	}

	out := p.Decide(context.Background(), claim, nil)

	if out.Status != domain.StatusValidated {
		t.Errorf("expected Validated, got %s", out.Status)
	}
	if out.ErrorType != domain.ErrorNone {
		t.Errorf("expected No error, got %s", out.ErrorType)
	}
	if len(out.ErrorExplanation) != 0 {
		t.Errorf("expected empty explanation, got %v", out.ErrorExplanation)
	}
	if out.RecommendedAction != domain.NoActionNeeded {
		t.Errorf("expected %q, got %q", domain.NoActionNeeded, out.RecommendedAction)
	}
	if claim.Status != domain.StatusPending {
		t.Error("input claim must not be modified")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		violations []domain.Violation
		want       domain.ErrorType
	}{
		{"technical only", []domain.Violation{technical("a", ""), technical("b", "")}, domain.ErrorTechnical},
		{"medical only", []domain.Violation{medical("a", "")}, domain.ErrorMedical},
		{"both", []domain.Violation{medical("a", ""), technical("b", "")}, domain.ErrorBoth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.violations); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDecideFallbackExplanation(t *testing.T) {
	violations := []domain.Violation{
		technical("first", "fix A"),
		medical("second", "fix B"),
		technical("third", "fix A"),
	}

	for name, enricher := range map[string]domain.Enricher{
		"nil enricher":  nil,
		"fallback":      enrich.Fallback{},
		"failing":       &stubEnricher{err: errors.New("boom")},
		"empty":         &stubEnricher{exp: &domain.Explanation{}},
		"nil result":    &stubEnricher{},
		"slow enricher": &stubEnricher{delay: time.Second, exp: &domain.Explanation{Bullets: []string{"late"}}},
	} {
		t.Run(name, func(t *testing.T) {
			p := NewProcessor(enricher, domain.EnrichmentConfig{}, nil)
			p.EnrichTimeout = 20 * time.Millisecond

			out := p.Decide(context.Background(), domain.Claim{ID: "CLM1"}, violations)

			if out.Status != domain.StatusNotValidated {
				t.Errorf("expected Not validated, got %s", out.Status)
			}
			if out.ErrorType != domain.ErrorBoth {
				t.Errorf("expected Both, got %s", out.ErrorType)
			}
			if !reflect.DeepEqual(out.ErrorExplanation, []string{"first", "second", "third"}) {
				t.Errorf("unexpected explanation %v", out.ErrorExplanation)
			}
			if out.RecommendedAction != "fix A; fix B" {
				t.Errorf("unexpected recommendation %q", out.RecommendedAction)
			}
		})
	}
}

func TestDecideUsesEnrichment(t *testing.T) {
	stub := &stubEnricher{exp: &domain.Explanation{Bullets: []string{"plain english"}}}
	p := NewProcessor(stub, domain.EnrichmentConfig{}, nil)

	out := p.Decide(context.Background(), domain.Claim{ID: "CLM1"}, []domain.Violation{technical("msg", "rec")})

	if stub.calls != 1 {
		t.Fatalf("expected one enrichment call, got %d", stub.calls)
	}
	if !reflect.DeepEqual(out.ErrorExplanation, []string{"plain english"}) {
		t.Errorf("unexpected explanation %v", out.ErrorExplanation)
	}
	if out.RecommendedAction != "rec" {
		t.Errorf("missing recommendation should fall back, got %q", out.RecommendedAction)
	}
}

type deadlineEnricher struct {
	remaining time.Duration
}

func (d *deadlineEnricher) Enrich(ctx context.Context, _ *domain.Claim, _ []domain.Violation) (*domain.Explanation, error) {
	if deadline, ok := ctx.Deadline(); ok {
		d.remaining = time.Until(deadline)
	}
	return &domain.Explanation{Bullets: []string{"ok"}}, nil
}

func TestEnrichTimeoutFromConfig(t *testing.T) {
	if p := NewProcessor(nil, domain.EnrichmentConfig{}, nil); p.EnrichTimeout != DefaultEnrichTimeout {
		t.Errorf("expected default timeout, got %s", p.EnrichTimeout)
	}

	enricher := &deadlineEnricher{}
	p := NewProcessor(enricher, domain.EnrichmentConfig{Timeout: 45}, nil)
	if p.EnrichTimeout != 45*time.Second {
		t.Fatalf("expected 45s timeout, got %s", p.EnrichTimeout)
	}

	p.Decide(context.Background(), domain.Claim{ID: "CLM1"}, []domain.Violation{technical("msg", "rec")})
	if enricher.remaining <= DefaultEnrichTimeout {
		t.Errorf("configured timeout was capped: %s left", enricher.remaining)
	}
}
