// Package telemetry defines the Prometheus metrics exported on /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "claimguard"

var (
	// ValidationPasses counts finished validation passes by outcome.
	ValidationPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "validation_passes_total",
		Help:      "Validation passes by outcome (succeeded, failed, busy).",
	}, []string{"outcome"})

	// PassDuration observes the wall time of a validation pass.
	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "validation_pass_duration_seconds",
		Help:      "Duration of validation passes.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	// ClaimsValidated counts claims moved out of Pending by resulting status.
	ClaimsValidated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claims_validated_total",
		Help:      "Claims validated by resulting status.",
	}, []string{"status"})

	// SupersededClaims counts outcomes dropped because the claim was
	// resubmitted while its pass was running.
	SupersededClaims = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claims_superseded_total",
		Help:      "Claim outcomes discarded after a concurrent resubmission.",
	})

	// Violations counts emitted violations by category.
	Violations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "violations_total",
		Help:      "Rule violations emitted by category.",
	}, []string{"category"})

	// Enrichments counts explanation attempts by result (enriched, fallback, cached).
	Enrichments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichments_total",
		Help:      "Explanation enrichment attempts by result.",
	}, []string{"result"})

	// HTTPRequests counts API requests by route pattern and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
)
