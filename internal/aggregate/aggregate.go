// Package aggregate derives claim metrics from the full claim population.
package aggregate

import (
	"sort"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// Recompute returns one metric per error classification, sorted by label.
// Claims without a classification count as "No error"; absent paid amounts
// add nothing to the sum.
func Recompute(tenantID string, claims []*domain.Claim) []domain.Metric {
	byLabel := make(map[string]*domain.Metric)
	for _, c := range claims {
		label := string(c.ErrorType)
		if label == "" {
			label = string(domain.ErrorNone)
		}
		m, ok := byLabel[label]
		if !ok {
			m = &domain.Metric{TenantID: tenantID, Category: label}
			byLabel[label] = m
		}
		m.Count++
		if c.PaidAmount != nil {
			m.Paid += *c.PaidAmount
		}
	}

	metrics := make([]domain.Metric, 0, len(byLabel))
	for _, m := range byLabel {
		metrics = append(metrics, *m)
	}
	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].Category < metrics[j].Category
	})
	return metrics
}
