package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/opensource-finance/claimguard/internal/domain"
)

const claimColumns = `tenant_id, id, encounter_type, service_date, national_id, member_id,
	facility_id, unique_id, diagnosis_codes, service_code, paid_amount, approval_number,
	status, error_type, error_explanation, recommended_action, revision, created_at, updated_at`

const upsertClaim = `
	INSERT INTO claims (` + claimColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(tenant_id, id) DO UPDATE SET
		encounter_type = excluded.encounter_type,
		service_date = excluded.service_date,
		national_id = excluded.national_id,
		member_id = excluded.member_id,
		facility_id = excluded.facility_id,
		unique_id = excluded.unique_id,
		diagnosis_codes = excluded.diagnosis_codes,
		service_code = excluded.service_code,
		paid_amount = excluded.paid_amount,
		approval_number = excluded.approval_number,
		status = excluded.status,
		error_type = excluded.error_type,
		error_explanation = excluded.error_explanation,
		recommended_action = excluded.recommended_action,
		revision = claims.revision + 1,
		updated_at = excluded.updated_at
	RETURNING revision
`

// SaveClaims upserts claims as Pending. Resubmitting a claim clears its
// previous outcome and violations.
func (r *SQLRepository) SaveClaims(ctx context.Context, tenantID string, claims []*domain.Claim) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	for _, c := range claims {
		if c == nil || c.ID == "" {
			return fmt.Errorf("%w: claim id is required", ErrInvalidInput)
		}
	}

	now := time.Now().UTC()
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range claims {
			pending := *c
			pending.TenantID = tenantID
			pending.Status = domain.StatusPending
			pending.ErrorType = ""
			pending.ErrorExplanation = []string{}
			pending.RecommendedAction = ""
			if pending.CreatedAt.IsZero() {
				pending.CreatedAt = now
			}
			pending.UpdatedAt = now

			revision, err := r.upsertClaim(ctx, tx, &pending)
			if err != nil {
				return fmt.Errorf("save claim %s: %w", c.ID, err)
			}
			pending.Revision = revision
			if _, err := tx.ExecContext(ctx,
				r.rebind(`DELETE FROM claim_violations WHERE tenant_id = ? AND claim_id = ?`),
				tenantID, c.ID,
			); err != nil {
				return fmt.Errorf("clear violations of %s: %w", c.ID, err)
			}
			*c = pending
		}
		return nil
	})
}

// upsertClaim writes c and returns its new revision.
func (r *SQLRepository) upsertClaim(ctx context.Context, tx *sql.Tx, c *domain.Claim) (int64, error) {
	diagnoses, err := json.Marshal(nonNil(c.DiagnosisCodes))
	if err != nil {
		return 0, err
	}
	explanation, err := json.Marshal(nonNil(c.ErrorExplanation))
	if err != nil {
		return 0, err
	}

	var paid sql.NullFloat64
	if c.PaidAmount != nil {
		paid = sql.NullFloat64{Float64: *c.PaidAmount, Valid: true}
	}

	var revision int64
	err = tx.QueryRowContext(ctx, r.rebind(upsertClaim),
		c.TenantID, c.ID, c.EncounterType, c.ServiceDate,
		c.NationalID, c.MemberID, c.FacilityID, c.UniqueID,
		string(diagnoses), c.ServiceCode, paid, c.ApprovalNumber,
		string(c.Status), string(c.ErrorType), string(explanation), c.RecommendedAction,
		c.CreatedAt, c.UpdatedAt,
	).Scan(&revision)
	return revision, err
}

// GetClaim retrieves a claim by ID with tenant isolation.
func (r *SQLRepository) GetClaim(ctx context.Context, tenantID string, claimID string) (*domain.Claim, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT ` + claimColumns + ` FROM claims WHERE tenant_id = ? AND id = ?`
	c, err := scanClaim(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, claimID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListClaims returns the tenant's claims matching filter, ordered by id.
func (r *SQLRepository) ListClaims(ctx context.Context, tenantID string, filter domain.ClaimFilter) ([]*domain.Claim, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	where := sq.Eq{"tenant_id": tenantID}
	if filter.Status != "" {
		where["status"] = string(filter.Status)
	}
	if filter.ErrorType != "" {
		where["error_type"] = string(filter.ErrorType)
	}

	q := r.builder().
		Select(claimColumns).
		From("claims").
		Where(where).
		OrderBy("id")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claims := make([]*domain.Claim, 0)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// ListClaimsByStatus returns every claim of the tenant in the given status.
func (r *SQLRepository) ListClaimsByStatus(ctx context.Context, tenantID string, status domain.ClaimStatus) ([]*domain.Claim, error) {
	return r.ListClaims(ctx, tenantID, domain.ClaimFilter{Status: status})
}

// ListPendingTenants returns tenants with at least one Pending claim.
func (r *SQLRepository) ListPendingTenants(ctx context.Context) ([]string, error) {
	query, args, err := r.builder().
		Select("tenant_id").
		Distinct().
		From("claims").
		Where(sq.Eq{"status": string(domain.StatusPending)}).
		OrderBy("tenant_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tenant query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*domain.Claim, error) {
	var (
		c                      domain.Claim
		diagnoses, explanation string
		status, errorType      string
		paid                   sql.NullFloat64
	)
	if err := row.Scan(
		&c.TenantID, &c.ID, &c.EncounterType, &c.ServiceDate,
		&c.NationalID, &c.MemberID, &c.FacilityID, &c.UniqueID,
		&diagnoses, &c.ServiceCode, &paid, &c.ApprovalNumber,
		&status, &errorType, &explanation, &c.RecommendedAction,
		&c.Revision, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	c.Status = domain.ClaimStatus(status)
	c.ErrorType = domain.ErrorType(errorType)
	if paid.Valid {
		v := paid.Float64
		c.PaidAmount = &v
	}
	if err := json.Unmarshal([]byte(diagnoses), &c.DiagnosisCodes); err != nil {
		return nil, fmt.Errorf("decode diagnosis codes of %s: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(explanation), &c.ErrorExplanation); err != nil {
		return nil, fmt.Errorf("decode explanation of %s: %w", c.ID, err)
	}
	c.DiagnosisCodes = nonNil(c.DiagnosisCodes)
	c.ErrorExplanation = nonNil(c.ErrorExplanation)
	return &c, nil
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
