package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// SaveJob inserts or updates a validation job.
func (r *SQLRepository) SaveJob(ctx context.Context, job *domain.ValidationJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}
	if err := requireTenant(job.TenantID); err != nil {
		return err
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO validation_jobs (id, tenant_id, status, claims_selected, claims_validated,
			claims_not_validated, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			claims_selected = excluded.claims_selected,
			claims_validated = excluded.claims_validated,
			claims_not_validated = excluded.claims_not_validated,
			error = excluded.error,
			updated_at = excluded.updated_at
	`),
		job.ID, job.TenantID, string(job.Status), job.ClaimsSelected, job.ClaimsValidated,
		job.ClaimsNotValidated, job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob retrieves a validation job with tenant isolation.
func (r *SQLRepository) GetJob(ctx context.Context, tenantID string, jobID string) (*domain.ValidationJob, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var job domain.ValidationJob
	var status string
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT id, tenant_id, status, claims_selected, claims_validated,
			claims_not_validated, error, created_at, updated_at
		FROM validation_jobs
		WHERE tenant_id = ? AND id = ?
	`), tenantID, jobID).Scan(
		&job.ID, &job.TenantID, &status, &job.ClaimsSelected, &job.ClaimsValidated,
		&job.ClaimsNotValidated, &job.Error, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	return &job, nil
}

// SaveRuleDocument stores a tenant rule override document as uploaded.
func (r *SQLRepository) SaveRuleDocument(ctx context.Context, tenantID string, category string, doc []byte) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidInput)
	}

	_, err := r.db.ExecContext(ctx, r.rebind(`
		INSERT INTO rule_documents (tenant_id, category, document, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, category) DO UPDATE SET
			document = excluded.document,
			updated_at = excluded.updated_at
	`), tenantID, category, string(doc), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save %s rules: %w", category, err)
	}
	return nil
}

// GetRuleDocument returns the stored document or ErrNotFound.
func (r *SQLRepository) GetRuleDocument(ctx context.Context, tenantID string, category string) ([]byte, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	var doc string
	err := r.db.QueryRowContext(ctx, r.rebind(`
		SELECT document FROM rule_documents WHERE tenant_id = ? AND category = ?
	`), tenantID, category).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}
