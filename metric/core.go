package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all runtime-level metrics for the dataflow graph:
// transport queue depth/overflow, fan-out dispatch counts, per-network
// version numbers, and testable-mode scheduler state.
type Metrics struct {
	// Transport metrics (per network)
	QueueDepth    *prometheus.GaugeVec
	QueueCapacity *prometheus.GaugeVec
	DataLostTotal *prometheus.CounterVec
	VersionNumber *prometheus.GaugeVec

	// Fan-out metrics
	FanOutDispatchTotal *prometheus.CounterVec
	FanOutErrorsTotal   *prometheus.CounterVec
	FanOutDispatchTime  *prometheus.HistogramVec

	// Application lifecycle
	ApplicationState prometheus.Gauge

	// Testable-mode scheduler
	TestablePending      *prometheus.GaugeVec
	TestableStepsTotal   prometheus.Counter
	TestableStalledTotal prometheus.Counter

	// Control-system adapter (bundled NATS reference adapter)
	AdapterConnected  prometheus.Gauge
	AdapterReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all runtime metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ctrlmesh",
				Subsystem: "transport",
				Name:      "queue_depth",
				Help:      "Number of buffered but unread versions in a network's transport queue",
			},
			[]string{"network"},
		),
		QueueCapacity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ctrlmesh",
				Subsystem: "transport",
				Name:      "queue_capacity",
				Help:      "Configured capacity of a network's transport queue",
			},
			[]string{"network"},
		),
		DataLostTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ctrlmesh",
				Subsystem: "transport",
				Name:      "data_lost_total",
				Help:      "Total number of overwritten (unread) versions due to queue overflow",
			},
			[]string{"network"},
		),
		VersionNumber: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ctrlmesh",
				Subsystem: "transport",
				Name:      "version_number",
				Help:      "Latest version number observed on a network",
			},
			[]string{"network"},
		),

		FanOutDispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ctrlmesh",
				Subsystem: "fanout",
				Name:      "dispatch_total",
				Help:      "Total number of values dispatched by a fan-out",
			},
			[]string{"network", "kind"},
		),
		FanOutErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ctrlmesh",
				Subsystem: "fanout",
				Name:      "errors_total",
				Help:      "Total number of dispatch errors observed by a fan-out",
			},
			[]string{"network", "kind"},
		),
		FanOutDispatchTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ctrlmesh",
				Subsystem: "fanout",
				Name:      "dispatch_seconds",
				Help:      "Time spent dispatching one value to all targets of a fan-out",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"network", "kind"},
		),

		ApplicationState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ctrlmesh",
				Subsystem: "application",
				Name:      "state",
				Help:      "Application lifecycle state (0=created, 1=running, 2=shutting_down, 3=stopped, 4=failed)",
			},
		),

		TestablePending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ctrlmesh",
				Subsystem: "testable",
				Name:      "pending_versions",
				Help:      "Number of versions a testable-mode network has pending for consumption",
			},
			[]string{"network"},
		),
		TestableStepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ctrlmesh",
				Subsystem: "testable",
				Name:      "steps_total",
				Help:      "Total number of stepApplication() invocations",
			},
		),
		TestableStalledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ctrlmesh",
				Subsystem: "testable",
				Name:      "stalled_total",
				Help:      "Total number of stall detections during stepApplication()",
			},
		),

		AdapterConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ctrlmesh",
				Subsystem: "adapter",
				Name:      "connected",
				Help:      "Control-system adapter connection status (0=disconnected, 1=connected)",
			},
		),
		AdapterReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ctrlmesh",
				Subsystem: "adapter",
				Name:      "reconnects_total",
				Help:      "Total number of control-system adapter reconnections",
			},
		),
	}
}

// RecordQueueDepth updates the transport queue depth gauge for network.
func (m *Metrics) RecordQueueDepth(network string, depth int) {
	m.QueueDepth.WithLabelValues(network).Set(float64(depth))
}

// RecordQueueCapacity sets the transport queue capacity gauge for network.
func (m *Metrics) RecordQueueCapacity(network string, capacity int) {
	m.QueueCapacity.WithLabelValues(network).Set(float64(capacity))
}

// RecordDataLost increments the overflow counter for network.
func (m *Metrics) RecordDataLost(network string) {
	m.DataLostTotal.WithLabelValues(network).Inc()
}

// RecordVersion sets the latest observed version number for network.
func (m *Metrics) RecordVersion(network string, version uint64) {
	m.VersionNumber.WithLabelValues(network).Set(float64(version))
}

// RecordFanOutDispatch increments the dispatch counter for a fan-out kind on network.
func (m *Metrics) RecordFanOutDispatch(network, kind string) {
	m.FanOutDispatchTotal.WithLabelValues(network, kind).Inc()
}

// RecordFanOutError increments the error counter for a fan-out kind on network.
func (m *Metrics) RecordFanOutError(network, kind string) {
	m.FanOutErrorsTotal.WithLabelValues(network, kind).Inc()
}

// RecordFanOutDispatchTime observes dispatch duration for a fan-out kind on network.
func (m *Metrics) RecordFanOutDispatchTime(network, kind string, d time.Duration) {
	m.FanOutDispatchTime.WithLabelValues(network, kind).Observe(d.Seconds())
}

// RecordApplicationState sets the application lifecycle state gauge.
func (m *Metrics) RecordApplicationState(state int) {
	m.ApplicationState.Set(float64(state))
}

// RecordTestablePending sets the pending-versions gauge for network.
func (m *Metrics) RecordTestablePending(network string, pending int) {
	m.TestablePending.WithLabelValues(network).Set(float64(pending))
}

// RecordTestableStep increments the total step counter.
func (m *Metrics) RecordTestableStep() {
	m.TestableStepsTotal.Inc()
}

// RecordTestableStalled increments the stall-detection counter.
func (m *Metrics) RecordTestableStalled() {
	m.TestableStalledTotal.Inc()
}

// RecordAdapterConnected sets the control-system adapter connection gauge.
func (m *Metrics) RecordAdapterConnected(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.AdapterConnected.Set(value)
}

// RecordAdapterReconnect increments the adapter reconnection counter.
func (m *Metrics) RecordAdapterReconnect() {
	m.AdapterReconnects.Inc()
}
