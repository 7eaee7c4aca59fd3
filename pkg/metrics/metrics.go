// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesIngested tracks messages accepted from the transport.
	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_messages_ingested_total",
			Help: "Messages ingested from the transport",
		},
		[]string{"channel_id"},
	)

	// ClassifierDuration tracks classifier call latency.
	ClassifierDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_call_duration_seconds",
			Help:    "Classifier adapter call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 15, 30},
		},
		[]string{"call", "status"},
	)

	// ClassifierFailures tracks degraded classifier calls.
	ClassifierFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_failures_total",
			Help: "Classifier calls that failed and degraded to the fallback",
		},
		[]string{"call"},
	)

	// ActionsTotal tracks classification verdicts acted on.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_actions_total",
			Help: "Classification verdicts by action",
		},
		[]string{"action"},
	)

	// ProposalsTotal tracks proposal lifecycle outcomes.
	ProposalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_proposals_total",
			Help: "Proposals by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	// CompactionsTotal tracks compaction proposals raised by the store.
	CompactionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_compactions_total",
			Help: "Compaction proposals raised by the document store",
		},
	)

	// ThreadsActive tracks live thread windows per channel.
	ThreadsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "engine_threads_active",
			Help: "Thread windows currently held in memory",
		},
		[]string{"channel_id"},
	)

	// AuditWriteFailures tracks failed audit appends. These are surfaced,
	// never swallowed, so the counter should stay at zero.
	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit log appends that returned an error",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordClassifierCall records latency and outcome for one adapter call.
func RecordClassifierCall(call string, err error, seconds float64) {
	status := "success"
	if err != nil {
		status = "failure"
		ClassifierFailures.WithLabelValues(call).Inc()
	}
	ClassifierDuration.WithLabelValues(call, status).Observe(seconds)
}
