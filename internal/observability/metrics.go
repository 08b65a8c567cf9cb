package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Sanduku.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Tool invocation metrics.
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	// Sandbox metrics.
	SandboxExecutionsTotal   *prometheus.CounterVec
	SandboxExecutionDuration *prometheus.HistogramVec
	SandboxTimeoutsTotal     *prometheus.CounterVec

	// Web fetch metrics.
	FetchRequestsTotal *prometheus.CounterVec
	FetchResponseBytes prometheus.Histogram

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sanduku",
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total tool invocations.",
		}, []string{"tool", "status"}),

		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sanduku",
			Subsystem: "tool",
			Name:      "call_duration_seconds",
			Help:      "Tool invocation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		SandboxExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sanduku",
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Total sandbox executions.",
		}, []string{"type", "status"}),

		SandboxExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sanduku",
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Sandbox execution duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"type"}),

		SandboxTimeoutsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sanduku",
			Subsystem: "sandbox",
			Name:      "timeouts_total",
			Help:      "Total sandbox executions killed by timeout.",
		}, []string{"type"}),

		FetchRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sanduku",
			Subsystem: "web",
			Name:      "fetch_requests_total",
			Help:      "Total web fetch requests.",
		}, []string{"status"}),

		FetchResponseBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sanduku",
			Subsystem: "web",
			Name:      "fetch_response_bytes",
			Help:      "Fetched response body size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sanduku",
			Name:      "active_requests",
			Help:      "Number of currently active tool invocations.",
		}),
	}

	reg.MustRegister(
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.SandboxExecutionsTotal,
		m.SandboxExecutionDuration,
		m.SandboxTimeoutsTotal,
		m.FetchRequestsTotal,
		m.FetchResponseBytes,
		m.ActiveRequests,
	)

	return m
}

// RecordToolCall records one tool invocation. Nil-safe.
func (m *MetricsCollector) RecordToolCall(tool, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordSandboxExecution records one sandbox execution. Nil-safe.
func (m *MetricsCollector) RecordSandboxExecution(sandboxType, status string, duration time.Duration, timedOut bool) {
	if m == nil {
		return
	}
	m.SandboxExecutionsTotal.WithLabelValues(sandboxType, status).Inc()
	m.SandboxExecutionDuration.WithLabelValues(sandboxType).Observe(duration.Seconds())
	if timedOut {
		m.SandboxTimeoutsTotal.WithLabelValues(sandboxType).Inc()
	}
}
