package metric

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.PrometheusRegistry())
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})

	err := registry.RegisterCounter("test-adapter", "test_counter", counter)
	require.NoError(t, err)

	counter.Inc()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_counter" {
			found = true
			break
		}
	}
	assert.True(t, found, "counter should be registered in Prometheus registry")
}

func TestMetricsRegistry_RegisterGauge(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_gauge",
		Help: "A test gauge",
	})

	err := registry.RegisterGauge("test-adapter", "test_gauge", gauge)
	require.NoError(t, err)

	gauge.Set(42.0)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_gauge" {
			found = true
			break
		}
	}
	assert.True(t, found, "gauge should be registered in Prometheus registry")
}

func TestMetricsRegistry_RegisterHistogram(t *testing.T) {
	registry := NewMetricsRegistry()

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_histogram",
		Help:    "A test histogram",
		Buckets: prometheus.DefBuckets,
	})

	err := registry.RegisterHistogram("test-adapter", "test_histogram", histogram)
	require.NoError(t, err)

	histogram.Observe(1.5)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_histogram" {
			found = true
			break
		}
	}
	assert.True(t, found, "histogram should be registered in Prometheus registry")
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	counter1 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter",
	})
	counter2 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_counter",
		Help: "First counter",
	})

	err := registry.RegisterCounter("adapter1", "duplicate_counter", counter1)
	require.NoError(t, err)

	err = registry.RegisterCounter("adapter2", "duplicate_counter", counter2)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "prometheus conflict")
}

func TestMetricsRegistry_UnregisterMetric(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "unregister_counter",
		Help: "A counter to unregister",
	})

	err := registry.RegisterCounter("test-adapter", "unregister_counter", counter)
	require.NoError(t, err)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.True(t, containsMetric(metricFamilies, "unregister_counter"))

	success := registry.Unregister("test-adapter", "unregister_counter")
	assert.True(t, success)

	metricFamilies, err = registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.False(t, containsMetric(metricFamilies, "unregister_counter"))
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	numGoroutines := 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			counter := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_counter_%d", id),
				Help: "A concurrent counter",
			})

			err := registry.RegisterCounter("concurrent-adapter",
				fmt.Sprintf("concurrent_counter_%d", id), counter)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	counterCount := 0
	for _, mf := range metricFamilies {
		if strings.HasPrefix(mf.GetName(), "concurrent_counter_") {
			counterCount++
		}
	}
	assert.Equal(t, numGoroutines, counterCount, "all concurrent counters should be registered")
}

func TestMetricsRegistrar_Interface(t *testing.T) {
	registry := NewMetricsRegistry()

	var registrar MetricsRegistrar = registry
	assert.NotNil(t, registrar)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "interface_counter",
		Help: "Counter registered through interface",
	})

	err := registrar.RegisterCounter("interface-adapter", "interface_counter", counter)
	require.NoError(t, err)
}

func TestMetricsRegistry_CoreMetricsInitialization(t *testing.T) {
	registry := NewMetricsRegistry()
	coreMetrics := registry.CoreMetrics()

	coreMetrics.RecordQueueDepth("myModule/dac0", 3)
	coreMetrics.RecordQueueCapacity("myModule/dac0", 3)
	coreMetrics.RecordDataLost("myModule/dac0")
	coreMetrics.RecordVersion("myModule/dac0", 7)
	coreMetrics.RecordFanOutDispatch("myModule/dac0", "feeding")
	coreMetrics.RecordFanOutError("myModule/dac0", "feeding")
	coreMetrics.RecordFanOutDispatchTime("myModule/dac0", "feeding", 100*time.Microsecond)
	coreMetrics.RecordApplicationState(1)
	coreMetrics.RecordTestablePending("myModule/dac0", 2)
	coreMetrics.RecordTestableStep()
	coreMetrics.RecordTestableStalled()
	coreMetrics.RecordAdapterConnected(true)
	coreMetrics.RecordAdapterReconnect()

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	expectedCoreMetrics := []string{
		"ctrlmesh_transport_queue_depth",
		"ctrlmesh_transport_queue_capacity",
		"ctrlmesh_transport_data_lost_total",
		"ctrlmesh_transport_version_number",
		"ctrlmesh_fanout_dispatch_total",
		"ctrlmesh_fanout_errors_total",
		"ctrlmesh_fanout_dispatch_seconds",
		"ctrlmesh_application_state",
		"ctrlmesh_testable_pending_versions",
		"ctrlmesh_testable_steps_total",
		"ctrlmesh_testable_stalled_total",
		"ctrlmesh_adapter_connected",
		"ctrlmesh_adapter_reconnects_total",
	}

	found := make(map[string]bool)
	for _, mf := range metricFamilies {
		found[mf.GetName()] = true
	}
	for _, name := range expectedCoreMetrics {
		assert.True(t, found[name], "core metric %s should be initialized", name)
	}
}

func TestMetricsRegistry_GetCoreMetrics(t *testing.T) {
	registry := NewMetricsRegistry()

	coreMetrics := registry.CoreMetrics()
	assert.NotNil(t, coreMetrics)

	assert.NotNil(t, coreMetrics.QueueDepth)
	assert.NotNil(t, coreMetrics.QueueCapacity)
	assert.NotNil(t, coreMetrics.DataLostTotal)
	assert.NotNil(t, coreMetrics.VersionNumber)
	assert.NotNil(t, coreMetrics.FanOutDispatchTotal)
	assert.NotNil(t, coreMetrics.FanOutErrorsTotal)
	assert.NotNil(t, coreMetrics.FanOutDispatchTime)
	assert.NotNil(t, coreMetrics.ApplicationState)
	assert.NotNil(t, coreMetrics.TestablePending)
	assert.NotNil(t, coreMetrics.TestableStepsTotal)
	assert.NotNil(t, coreMetrics.TestableStalledTotal)
	assert.NotNil(t, coreMetrics.AdapterConnected)
	assert.NotNil(t, coreMetrics.AdapterReconnects)
}

func TestCoreMetrics_RecordMethods(t *testing.T) {
	registry := NewMetricsRegistry()
	coreMetrics := registry.CoreMetrics()

	coreMetrics.RecordQueueDepth("net", 1)
	coreMetrics.RecordFanOutDispatch("net", "threaded")
	coreMetrics.RecordApplicationState(1)
	coreMetrics.RecordTestableStep()
	coreMetrics.RecordAdapterConnected(true)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	assert.Greater(t, len(metricFamilies), 0, "should have recorded metrics")
}

func containsMetric(mfs []*dto.MetricFamily, name string) bool {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return true
		}
	}
	return false
}
