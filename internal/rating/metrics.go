package rating

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recompute outcomes.
const (
	resultUpdated = "updated"
	resultMissing = "missing"
	resultFailed  = "failed"
)

var (
	recomputeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_recomputations_total",
			Help: "Total number of doctor rating recomputations by result.",
		},
		[]string{"result"},
	)

	recomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rating_recompute_duration_seconds",
			Help:    "Duration of a single doctor rating recomputation.",
			Buckets: prometheus.DefBuckets,
		},
	)

	triggerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_trigger_failures_total",
			Help: "Recomputations that failed after a review mutation, by trigger reason.",
		},
		[]string{"reason"},
	)

	retryRequestFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rating_retry_request_failures_total",
			Help: "Failed attempts to publish a recompute request for asynchronous retry.",
		},
	)

	sweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_sweep_runs_total",
			Help: "Reconciliation sweeps by result.",
		},
		[]string{"result"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rating_sweep_duration_seconds",
			Help:    "Duration of a full reconciliation sweep.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
	)
)
