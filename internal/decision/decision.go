// Package decision turns a claim's violations into its validation outcome.
package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/enrich"
	"github.com/opensource-finance/claimguard/internal/telemetry"
)

// Processor decides claim status, error classification and explanation.
type Processor struct {
	// Enricher produces explanation text for rejected claims. Nil uses the
	// deterministic explanation directly.
	Enricher domain.Enricher

	// EnrichTimeout bounds each enrichment call.
	EnrichTimeout time.Duration

	Logger *slog.Logger
}

// DefaultEnrichTimeout applies when the enrichment config sets no timeout.
const DefaultEnrichTimeout = 10 * time.Second

// NewProcessor creates a processor whose enrichment budget is cfg.Timeout
// seconds, or DefaultEnrichTimeout when unset.
func NewProcessor(enricher domain.Enricher, cfg domain.EnrichmentConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = DefaultEnrichTimeout
	}
	return &Processor{
		Enricher:      enricher,
		EnrichTimeout: timeout,
		Logger:        logger,
	}
}

// Decide returns a copy of claim carrying its terminal outcome.
func (p *Processor) Decide(ctx context.Context, claim domain.Claim, violations []domain.Violation) domain.Claim {
	out := claim

	if len(violations) == 0 {
		out.Status = domain.StatusValidated
		out.ErrorType = domain.ErrorNone
		out.ErrorExplanation = []string{}
		out.RecommendedAction = domain.NoActionNeeded
		return out
	}

	out.Status = domain.StatusNotValidated
	out.ErrorType = Classify(violations)

	exp := p.explain(ctx, &out, violations)
	out.ErrorExplanation = exp.Bullets
	out.RecommendedAction = exp.Recommendation
	return out
}

// Classify labels a non-empty violation list by the distinct categories present.
func Classify(violations []domain.Violation) domain.ErrorType {
	var technical, medical bool
	for _, v := range violations {
		switch v.Category {
		case domain.CategoryTechnical:
			technical = true
		case domain.CategoryMedical:
			medical = true
		}
	}

	switch {
	case technical && medical:
		return domain.ErrorBoth
	case medical:
		return domain.ErrorMedical
	case technical:
		return domain.ErrorTechnical
	default:
		return domain.ErrorNone
	}
}

// explain calls the enricher under a deadline and falls back to the
// deterministic explanation on error or empty output.
func (p *Processor) explain(ctx context.Context, claim *domain.Claim, violations []domain.Violation) *domain.Explanation {
	fallback := enrich.Explain(violations)
	if p.Enricher == nil {
		return fallback
	}
	if _, ok := p.Enricher.(enrich.Fallback); ok {
		return fallback
	}

	if p.EnrichTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.EnrichTimeout)
		defer cancel()
	}

	exp, err := p.Enricher.Enrich(ctx, claim, violations)
	if err != nil || exp == nil || len(exp.Bullets) == 0 {
		telemetry.Enrichments.WithLabelValues("fallback").Inc()
		if err != nil {
			p.Logger.Warn("enrichment failed, using fallback",
				"tenant_id", claim.TenantID,
				"claim_id", claim.ID,
				"error", err,
			)
		}
		return fallback
	}

	telemetry.Enrichments.WithLabelValues("enriched").Inc()
	if exp.Recommendation == "" {
		exp.Recommendation = fallback.Recommendation
	}
	return exp
}
