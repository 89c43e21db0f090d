package insight

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "compass",
			Name:      "runs_total",
			Help:      "Total query runs by mode and outcome",
		},
		[]string{"mode", "status"}, // status: "success", "degraded", "rejected"
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "compass",
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of query runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		},
		[]string{"mode"},
	)

	modelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "compass",
			Name:      "model_calls_total",
			Help:      "Total language model calls",
		},
		[]string{"status"},
	)

	modelCallDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "compass",
			Name:      "model_call_duration_seconds",
			Help:      "Duration of language model calls in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	modelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "compass",
			Name:      "model_tokens_total",
			Help:      "Estimated model tokens by direction",
		},
		[]string{"direction"}, // "input", "output"
	)

	breakerRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "compass",
			Name:      "breaker_rejections_total",
			Help:      "Runs rejected because the circuit breaker was open",
		},
	)
)
