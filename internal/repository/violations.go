package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// deleteChunk bounds the IN list of one DELETE statement.
const deleteChunk = 500

// DeleteViolations removes every stored violation of the given claims.
func (r *SQLRepository) DeleteViolations(ctx context.Context, tenantID string, claimIDs []string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if len(claimIDs) == 0 {
		return nil
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(claimIDs); start += deleteChunk {
			end := min(start+deleteChunk, len(claimIDs))

			query, args, err := r.builder().
				Delete("claim_violations").
				Where(sq.Eq{"tenant_id": tenantID, "claim_id": claimIDs[start:end]}).
				ToSql()
			if err != nil {
				return fmt.Errorf("build violation delete: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("delete violations: %w", err)
			}
		}
		return nil
	})
}

// SaveOutcome writes the outcome columns of one claim and replaces its
// violations in a single transaction, so a reader never sees a claim without
// its violations. The write only applies while the stored claim is still
// Pending at claim.Revision; otherwise nothing changes and ErrStaleClaim is
// returned.
func (r *SQLRepository) SaveOutcome(ctx context.Context, tenantID string, claim *domain.Claim, violations []domain.Violation) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if claim == nil || claim.ID == "" {
		return fmt.Errorf("%w: claim id is required", ErrInvalidInput)
	}

	explanation, err := json.Marshal(nonNil(claim.ErrorExplanation))
	if err != nil {
		return fmt.Errorf("encode explanation of %s: %w", claim.ID, err)
	}

	now := time.Now().UTC()
	update, args, err := r.builder().
		Update("claims").
		SetMap(map[string]any{
			"status":             string(claim.Status),
			"error_type":         string(claim.ErrorType),
			"error_explanation":  string(explanation),
			"recommended_action": claim.RecommendedAction,
			"updated_at":         now,
		}).
		Where(sq.Eq{
			"tenant_id": tenantID,
			"id":        claim.ID,
			"status":    string(domain.StatusPending),
			"revision":  claim.Revision,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build outcome update: %w", err)
	}

	err = r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, update, args...)
		if err != nil {
			return fmt.Errorf("update outcome: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update outcome: %w", err)
		}
		if n == 0 {
			return ErrStaleClaim
		}

		if _, err := tx.ExecContext(ctx,
			r.rebind(`DELETE FROM claim_violations WHERE tenant_id = ? AND claim_id = ?`),
			tenantID, claim.ID,
		); err != nil {
			return fmt.Errorf("clear violations: %w", err)
		}

		for i, v := range violations {
			if _, err := tx.ExecContext(ctx, r.rebind(`
				INSERT INTO claim_violations (tenant_id, claim_id, position, rule_id, category, message, recommendation)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`), tenantID, claim.ID, i, v.RuleID, string(v.Category), v.Message, v.Recommendation); err != nil {
				return fmt.Errorf("insert violation %s: %w", v.RuleID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save outcome of %s: %w", claim.ID, err)
	}

	claim.TenantID = tenantID
	claim.UpdatedAt = now
	return nil
}

// ListViolations returns a claim's violations in evaluation order.
func (r *SQLRepository) ListViolations(ctx context.Context, tenantID string, claimID string) ([]domain.Violation, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT claim_id, rule_id, category, message, recommendation
		FROM claim_violations
		WHERE tenant_id = ? AND claim_id = ?
		ORDER BY position
	`), tenantID, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	violations := make([]domain.Violation, 0)
	for rows.Next() {
		var v domain.Violation
		var category string
		if err := rows.Scan(&v.ClaimID, &v.RuleID, &category, &v.Message, &v.Recommendation); err != nil {
			return nil, err
		}
		v.Category = domain.Category(category)
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// ReplaceMetrics swaps the tenant's aggregate rows for metrics.
func (r *SQLRepository) ReplaceMetrics(ctx context.Context, tenantID string, metrics []domain.Metric) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			r.rebind(`DELETE FROM claim_metrics WHERE tenant_id = ?`), tenantID,
		); err != nil {
			return fmt.Errorf("clear metrics: %w", err)
		}
		if len(metrics) == 0 {
			return nil
		}

		insert := r.builder().
			Insert("claim_metrics").
			Columns("tenant_id", "category", "claim_count", "paid_sum")
		for _, m := range metrics {
			insert = insert.Values(tenantID, m.Category, m.Count, m.Paid)
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("build metric insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert metrics: %w", err)
		}
		return nil
	})
}

// ListMetrics returns the tenant's aggregate rows ordered by category.
func (r *SQLRepository) ListMetrics(ctx context.Context, tenantID string) ([]domain.Metric, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT tenant_id, category, claim_count, paid_sum
		FROM claim_metrics
		WHERE tenant_id = ?
		ORDER BY category
	`), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := make([]domain.Metric, 0)
	for rows.Next() {
		var m domain.Metric
		if err := rows.Scan(&m.TenantID, &m.Category, &m.Count, &m.Paid); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}
