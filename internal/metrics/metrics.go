// Package metrics provides Prometheus metrics collection for the control
// surface and the workspace lifecycle it drives.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the orchestrator exposes.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ErrorsTotal *prometheus.CounterVec

	WorkspacesSpawnedTotal   *prometheus.CounterVec
	WorkspacesCompletedTotal *prometheus.CounterVec
	WorkspaceDuration        *prometheus.HistogramVec
	ActiveWorkspaces         prometheus.Gauge

	WebhooksReceivedTotal *prometheus.CounterVec

	ServiceInfo *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registerer.
func New(serviceName, version string) *Metrics {
	return NewWithRegistry(serviceName, version, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer,
// which may be a fresh prometheus.NewRegistry() in tests to avoid colliding
// with other packages' default-registry collectors.
func NewWithRegistry(serviceName, version string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_http_requests_total",
				Help: "Total number of HTTP requests handled by the control surface.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orchestrator_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_errors_total",
				Help: "Total number of handled errors, by operation.",
			},
			[]string{"operation"},
		),
		WorkspacesSpawnedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_workspaces_spawned_total",
				Help: "Total number of workspaces spawned, by agent.",
			},
			[]string{"agent"},
		),
		WorkspacesCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_workspaces_completed_total",
				Help: "Total number of workspaces reaching a terminal status.",
			},
			[]string{"status"},
		),
		WorkspaceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_workspace_duration_seconds",
				Help:    "Wall-clock time from workspace creation to teardown.",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
			},
			[]string{"status"},
		),
		ActiveWorkspaces: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orchestrator_active_workspaces",
				Help: "Number of workspaces currently running a container.",
			},
		),
		WebhooksReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_webhooks_received_total",
				Help: "Total number of inbound provider webhooks, by event type and outcome.",
			},
			[]string{"event_type", "outcome"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orchestrator_service_info",
				Help: "Static service build information.",
			},
			[]string{"service", "version"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.WorkspacesSpawnedTotal,
			m.WorkspacesCompletedTotal,
			m.WorkspaceDuration,
			m.ActiveWorkspaces,
			m.WebhooksReceivedTotal,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, version).Set(1)
	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments the error counter for operation.
func (m *Metrics) RecordError(operation string) {
	m.ErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordWorkspaceSpawned records a successful spawn for agentName.
func (m *Metrics) RecordWorkspaceSpawned(agentName string) {
	m.WorkspacesSpawnedTotal.WithLabelValues(agentName).Inc()
}

// RecordWorkspaceCompleted records a workspace reaching a terminal status
// and the time it took to get there.
func (m *Metrics) RecordWorkspaceCompleted(status string, duration time.Duration) {
	m.WorkspacesCompletedTotal.WithLabelValues(status).Inc()
	m.WorkspaceDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordWebhook records an inbound webhook and its processing outcome.
func (m *Metrics) RecordWebhook(eventType, outcome string) {
	m.WebhooksReceivedTotal.WithLabelValues(eventType, outcome).Inc()
}

// SetActiveWorkspaces sets the current count of running workspaces.
func (m *Metrics) SetActiveWorkspaces(n int) {
	m.ActiveWorkspaces.Set(float64(n))
}

// IncrementInFlight increments the in-flight HTTP request gauge.
func (m *Metrics) IncrementInFlight() {
	m.RequestsInFlight.Inc()
}

// DecrementInFlight decrements the in-flight HTTP request gauge.
func (m *Metrics) DecrementInFlight() {
	m.RequestsInFlight.Dec()
}
