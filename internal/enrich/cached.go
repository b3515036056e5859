package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// Cached memoises another enricher's explanations in a domain.Cache keyed by
// the prompt hash. Cache failures are logged and never fail enrichment.
type Cached struct {
	next   domain.Enricher
	cache  domain.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps next.
func NewCached(next domain.Enricher, cache domain.Cache, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, cache: cache, ttl: ttl, logger: logger}
}

// Enrich implements domain.Enricher.
func (c *Cached) Enrich(ctx context.Context, claim *domain.Claim, violations []domain.Violation) (*domain.Explanation, error) {
	key := cacheKey(claim, violations)

	if data, err := c.cache.Get(ctx, claim.TenantID, key); err != nil {
		c.logger.Warn("enrichment cache read failed", "tenant_id", claim.TenantID, "error", err)
	} else if data != nil {
		var exp domain.Explanation
		if err := json.Unmarshal(data, &exp); err == nil && len(exp.Bullets) > 0 {
			return &exp, nil
		}
	}

	exp, err := c.next.Enrich(ctx, claim, violations)
	if err != nil || exp == nil {
		return exp, err
	}

	if data, err := json.Marshal(exp); err == nil {
		if err := c.cache.Set(ctx, claim.TenantID, key, data, c.ttl); err != nil {
			c.logger.Warn("enrichment cache write failed", "tenant_id", claim.TenantID, "error", err)
		}
	}
	return exp, nil
}

func cacheKey(claim *domain.Claim, violations []domain.Violation) string {
	sum := sha256.Sum256([]byte(Prompt(claim, violations)))
	return "enrich:" + hex.EncodeToString(sum[:])
}

// New returns the enricher described by cfg. Without an endpoint or API key
// the deterministic Fallback is used.
func New(cfg domain.EnrichmentConfig, cache domain.Cache, logger *slog.Logger) domain.Enricher {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return Fallback{}
	}
	var e domain.Enricher = NewHTTPEnricher(cfg)
	if cache != nil && cfg.CacheTTL > 0 {
		e = NewCached(e, cache, time.Duration(cfg.CacheTTL)*time.Second, logger)
	}
	return e
}
