// Package enrich produces human-readable explanations for claim violations.
package enrich

import (
	"context"
	"strings"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// Explain builds the deterministic explanation: every violation message in
// order, and the distinct recommendations in first-seen order joined by "; ".
func Explain(violations []domain.Violation) *domain.Explanation {
	bullets := make([]string, 0, len(violations))
	var recs []string
	seen := make(map[string]struct{}, len(violations))

	for _, v := range violations {
		bullets = append(bullets, v.Message)
		if v.Recommendation == "" {
			continue
		}
		if _, dup := seen[v.Recommendation]; dup {
			continue
		}
		seen[v.Recommendation] = struct{}{}
		recs = append(recs, v.Recommendation)
	}

	return &domain.Explanation{
		Bullets:        bullets,
		Recommendation: strings.Join(recs, "; "),
	}
}

// Fallback is an Enricher that always returns the deterministic explanation.
type Fallback struct{}

// Enrich implements domain.Enricher.
func (Fallback) Enrich(_ context.Context, _ *domain.Claim, violations []domain.Violation) (*domain.Explanation, error) {
	return Explain(violations), nil
}
