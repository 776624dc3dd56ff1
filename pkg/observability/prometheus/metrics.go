package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fluxorio/eventa/pkg/core"
	"github.com/fluxorio/eventa/pkg/core/concurrency"
)

var (
	// DefaultRegistry is the default Prometheus registry
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "eventa"}, DefaultRegistry)
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can take it as an optional dependency.
type Metrics struct {
	// Event context metrics
	EventsTotal           *prometheus.CounterVec
	ListenerFailuresTotal *prometheus.CounterVec
	InvokesTotal          *prometheus.CounterVec
	InvokeDuration        *prometheus.HistogramVec

	// Handler executor metrics
	ExecutorRunningTasks  prometheus.Gauge
	ExecutorRejectedTasks prometheus.Gauge
	ExecutorPanickedTasks prometheus.Gauge

	// Transport metrics
	PeersConnected     *prometheus.GaugeVec
	FramesTotal        *prometheus.CounterVec
	FramesDroppedTotal *prometheus.CounterVec
	DecodeErrorsTotal  *prometheus.CounterVec

	// Database metrics
	DatabaseConnectionsOpen  prometheus.Gauge
	DatabaseConnectionsInUse prometheus.Gauge
	DatabaseQueryDuration    *prometheus.HistogramVec
}

// NewMetrics registers the eventa collectors with registerer
// (DefaultRegisterer when nil)
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventa_events_total",
				Help: "Total number of dispatched events",
			},
			[]string{"tag", "direction"}, // direction: local, inbound
		),
		ListenerFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventa_listener_failures_total",
				Help: "Total number of listener errors and panics",
			},
			[]string{"tag"},
		),
		InvokesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventa_invokes_total",
				Help: "Total number of settled invoke calls",
			},
			[]string{"bundle", "kind", "outcome"},
		),
		InvokeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventa_invoke_duration_seconds",
				Help:    "Invoke call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"bundle", "kind"},
		),

		ExecutorRunningTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventa_executor_running_tasks",
				Help: "Handler tasks currently running",
			},
		),
		ExecutorRejectedTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventa_executor_rejected_tasks",
				Help: "Handler tasks rejected because the executor was at capacity",
			},
		),
		ExecutorPanickedTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventa_executor_panicked_tasks",
				Help: "Handler tasks that panicked",
			},
		),

		PeersConnected: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "eventa_transport_peers",
				Help: "Connected transport peers",
			},
			[]string{"transport"},
		),
		FramesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventa_transport_frames_total",
				Help: "Total number of wire frames",
			},
			[]string{"transport", "direction"}, // direction: in, out
		),
		FramesDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventa_transport_frames_dropped_total",
				Help: "Outbound frames dropped because a peer fell behind",
			},
			[]string{"transport"},
		),
		DecodeErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventa_transport_decode_errors_total",
				Help: "Inbound frames that could not be decoded",
			},
			[]string{"transport"},
		),

		DatabaseConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventa_database_connections_open",
				Help: "Number of open database connections",
			},
		),
		DatabaseConnectionsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "eventa_database_connections_in_use",
				Help: "Number of database connections in use",
			},
		),
		DatabaseQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventa_database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
	}
}

// EventEmitted implements core.Observer
func (m *Metrics) EventEmitted(tag string, _ int, inbound bool) {
	if m == nil {
		return
	}
	direction := "local"
	if inbound {
		direction = "inbound"
	}
	m.EventsTotal.WithLabelValues(tag, direction).Inc()
}

// ListenerFailed implements core.Observer
func (m *Metrics) ListenerFailed(tag string, _ error) {
	if m == nil {
		return
	}
	m.ListenerFailuresTotal.WithLabelValues(tag).Inc()
}

// InvokeCompleted implements core.Observer
func (m *Metrics) InvokeCompleted(bundle string, kind core.InvokeKind, outcome core.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.InvokesTotal.WithLabelValues(bundle, string(kind), string(outcome)).Inc()
	m.InvokeDuration.WithLabelValues(bundle, string(kind)).Observe(elapsed.Seconds())
}

// UpdateExecutor copies handler executor counters into gauges
func (m *Metrics) UpdateExecutor(stats concurrency.ExecutorStats) {
	if m == nil {
		return
	}
	m.ExecutorRunningTasks.Set(float64(stats.RunningTasks))
	m.ExecutorRejectedTasks.Set(float64(stats.RejectedTasks))
	m.ExecutorPanickedTasks.Set(float64(stats.PanickedTasks))
}

// PeerConnected records a new transport peer
func (m *Metrics) PeerConnected(transport string) {
	if m == nil {
		return
	}
	m.PeersConnected.WithLabelValues(transport).Inc()
}

// PeerDisconnected records a transport peer going away
func (m *Metrics) PeerDisconnected(transport string) {
	if m == nil {
		return
	}
	m.PeersConnected.WithLabelValues(transport).Dec()
}

// FrameIn records one decoded inbound frame
func (m *Metrics) FrameIn(transport string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(transport, "in").Inc()
}

// FrameOut records one outbound frame per receiving peer
func (m *Metrics) FrameOut(transport string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(transport, "out").Inc()
}

// FrameDropped records an outbound frame that was not queued
func (m *Metrics) FrameDropped(transport string) {
	if m == nil {
		return
	}
	m.FramesDroppedTotal.WithLabelValues(transport).Inc()
}

// DecodeFailed records an inbound frame that was not a valid envelope
func (m *Metrics) DecodeFailed(transport string) {
	if m == nil {
		return
	}
	m.DecodeErrorsTotal.WithLabelValues(transport).Inc()
}

// UpdateDatabasePool updates database pool metrics
func (m *Metrics) UpdateDatabasePool(open, inUse int) {
	if m == nil {
		return
	}
	m.DatabaseConnectionsOpen.Set(float64(open))
	m.DatabaseConnectionsInUse.Set(float64(inUse))
}

// RecordDatabaseQuery records a database query metric
func (m *Metrics) RecordDatabaseQuery(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DatabaseQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
