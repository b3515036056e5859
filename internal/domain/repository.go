// Package domain defines the core interfaces and types for ClaimGuard.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Claim operations
	SaveClaims(ctx context.Context, tenantID string, claims []*Claim) error
	GetClaim(ctx context.Context, tenantID string, claimID string) (*Claim, error)
	ListClaims(ctx context.Context, tenantID string, filter ClaimFilter) ([]*Claim, error)
	ListClaimsByStatus(ctx context.Context, tenantID string, status ClaimStatus) ([]*Claim, error)

	// Violation operations
	DeleteViolations(ctx context.Context, tenantID string, claimIDs []string) error
	ListViolations(ctx context.Context, tenantID string, claimID string) ([]Violation, error)

	// SaveOutcome atomically replaces a claim's violations and writes its
	// outcome, provided the claim is still Pending at claim.Revision.
	SaveOutcome(ctx context.Context, tenantID string, claim *Claim, violations []Violation) error

	// Metrics
	ReplaceMetrics(ctx context.Context, tenantID string, metrics []Metric) error
	ListMetrics(ctx context.Context, tenantID string) ([]Metric, error)

	// Rule documents
	SaveRuleDocument(ctx context.Context, tenantID string, category string, doc []byte) error
	GetRuleDocument(ctx context.Context, tenantID string, category string) ([]byte, error)

	// Validation jobs
	SaveJob(ctx context.Context, job *ValidationJob) error
	GetJob(ctx context.Context, tenantID string, jobID string) (*ValidationJob, error)

	// ListPendingTenants returns tenants that have at least one Pending claim.
	ListPendingTenants(ctx context.Context) ([]string, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlitePath"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgresHost"`
	PostgresPort     int    `mapstructure:"postgresPort"`
	PostgresUser     string `mapstructure:"postgresUser"`
	PostgresPassword string `mapstructure:"postgresPassword"`
	PostgresDB       string `mapstructure:"postgresDb"`
	PostgresSSLMode  string `mapstructure:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}
