package domain

import "context"

// Enricher turns violations into human-readable explanation text.
// Implementations may call remote services and must honour ctx deadlines.
type Enricher interface {
	Enrich(ctx context.Context, claim *Claim, violations []Violation) (*Explanation, error)
}

// EnrichmentConfig holds settings for the remote explanation service.
type EnrichmentConfig struct {
	// Endpoint is the inference URL. Empty disables remote enrichment.
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"apiKey"`

	// MaxNewTokens bounds generated text length.
	MaxNewTokens int `mapstructure:"maxNewTokens"`

	// Timeout bounds a single enrichment call.
	Timeout int `mapstructure:"timeout"` // seconds

	// CacheTTL keeps enrichment responses in the cache. Zero disables caching.
	CacheTTL int `mapstructure:"cacheTtl"` // seconds
}
