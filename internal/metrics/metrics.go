// Package metrics holds the Prometheus collectors exported on /metrics.
//
// promauto registers every collector with the default registry at package
// init, so importing this package is enough to make them visible to
// promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codegen_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Model calls routinely take several seconds, well past DefBuckets.
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "codegen_upstream_latency_seconds",
			Help:    "Latency of text generation calls in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"purpose", "model"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_upstream_errors_total",
			Help: "Failed text generation calls by kind",
		},
		[]string{"purpose", "kind"},
	)

	Tokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_tokens_total",
			Help: "Tokens consumed, split into prompt and completion",
		},
		[]string{"model", "type"},
	)

	Snippets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "codegen_snippets",
			Help: "Number of snippets currently stored",
		},
	)

	FeedbackSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_feedback_total",
			Help: "Feedback entries received by rating",
		},
		[]string{"rating"},
	)

	PersistenceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "codegen_persistence_failures_total",
			Help: "Feedback file writes that failed",
		},
	)

	SandboxRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codegen_sandbox_runs_total",
			Help: "Snippet executions by outcome",
		},
		[]string{"outcome"},
	)
)
