// Package metrics provides Prometheus instrumentation for the dispatcher
// and the HTTP gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AskLatency tracks end-to-end /ask latency in seconds, labeled with
	// the provider that served the answer ("" for failures).
	AskLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ask_latency_seconds",
			Help:    "End-to-end ask request latency in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	// AttemptsTotal counts provider attempts by outcome. Outcome is
	// "success" or the failure kind (rate_limited, timeout, ...).
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_attempts_total",
			Help: "Total provider attempts by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// ExhaustedTotal counts dispatches where every provider ran out of
	// attempts.
	ExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_exhausted_total",
			Help: "Total dispatches that exhausted all providers.",
		},
	)

	// ActiveRequests tracks the number of in-flight ask requests.
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_ask_requests",
			Help: "Number of currently in-flight ask requests.",
		},
	)

	// RequestsTotal counts ask requests by terminal status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ask_requests_total",
			Help: "Total ask requests by status.",
		},
		[]string{"status"}, // "success", "exhausted", "invalid", "cancelled"
	)
)
