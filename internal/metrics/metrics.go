// Package metrics exposes the engine's Prometheus instrumentation
// (SPEC_FULL.md ambient observability section: "metrics are
// diagnostic, not a guarantee"). Grounded on
// r3e-network-service_layer's pkg/metrics/metrics.go — its
// Namespace/Subsystem layout and promhttp wiring, narrowed to the
// counters this engine's components actually emit.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "guard",
			Subsystem: "eval",
			Name:      "queue_depth",
			Help:      "Current number of pending evaluation jobs, by queue.",
		},
		[]string{"queue"},
	)

	sessionsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guard",
			Subsystem: "pipeline",
			Name:      "sessions_processed_total",
			Help:      "Total sessions finalized, by overall_quality.",
		},
		[]string{"overall_quality"},
	)

	issuesEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guard",
			Subsystem: "pipeline",
			Name:      "issues_emitted_total",
			Help:      "Total quality/security issues recorded, by issue_type.",
		},
		[]string{"issue_type"},
	)

	stepsBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guard",
			Subsystem: "pipeline",
			Name:      "steps_blocked_total",
			Help:      "Total tool calls blocked before execution, by guard_mode.",
		},
		[]string{"guard_mode"},
	)

	judgeCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "guard",
			Subsystem: "judge",
			Name:      "call_duration_seconds",
			Help:      "Duration of judge evaluation calls, by call kind and outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"kind", "status"},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "guard",
			Subsystem: "ingest",
			Name:      "ws_connections",
			Help:      "Current number of connected dashboard WebSocket clients.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guard",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests handled, by method/path/status.",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	Registry.MustRegister(
		queueDepth,
		sessionsProcessed,
		issuesEmitted,
		stepsBlocked,
		judgeCallDuration,
		wsConnections,
		httpRequests,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus
// metrics at /metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetQueueDepth records the current pending-job count for a named
// queue (e.g. "step", "session", "shadow_verify").
func SetQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordSessionProcessed increments the finalized-session counter for
// a given overall_quality verdict.
func RecordSessionProcessed(overallQuality string) {
	if overallQuality == "" {
		overallQuality = "unknown"
	}
	sessionsProcessed.WithLabelValues(strings.ToUpper(overallQuality)).Inc()
}

// RecordIssue increments the issue counter for an issue_type.
func RecordIssue(issueType string) {
	if issueType == "" {
		issueType = "unknown"
	}
	issuesEmitted.WithLabelValues(issueType).Inc()
}

// RecordStepBlocked increments the blocked-step counter for the
// guard_mode active at the time of the block.
func RecordStepBlocked(guardMode string) {
	if guardMode == "" {
		guardMode = "unknown"
	}
	stepsBlocked.WithLabelValues(guardMode).Inc()
}

// RecordJudgeCall records the outcome and duration of one judge call.
func RecordJudgeCall(kind string, dur time.Duration, err error) {
	if kind == "" {
		kind = "unknown"
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	judgeCallDuration.WithLabelValues(kind, status).Observe(dur.Seconds())
}

// SetWSConnections records the current WebSocket connection count.
func SetWSConnections(n int) {
	wsConnections.Set(float64(n))
}

// RecordHTTPRequest records one completed HTTP request.
func RecordHTTPRequest(method, path string, status int) {
	httpRequests.WithLabelValues(strings.ToUpper(method), path, strconv.Itoa(status)).Inc()
}
