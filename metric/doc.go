// Package metric provides Prometheus-based metrics collection and an HTTP
// exposition server for a running ctrlmesh Application.
//
// The package offers a centralized metrics registry managing both core
// runtime metrics (transport queue depth, fan-out dispatch counts, testable
// scheduler state) and component-specific metrics registered by fan-outs,
// device backends, or the bundled control-system adapter. It includes an
// HTTP server exposing metrics in Prometheus format.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: runtime-level metrics automatically registered (Metrics type)
//  2. Component Registry: extensible registration for component-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: metrics endpoint with a health check (Server type)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//	defer server.Stop()
//
//	core := registry.CoreMetrics()
//	core.RecordQueueDepth("myModule/dac0", 3)
//	core.RecordFanOutDispatch("myModule/dac0", "feeding")
//
// The metrics server exposes Prometheus-formatted metrics at
// http://localhost:9090/metrics and a health check at /health.
//
// # Component-Specific Metrics
//
// A device backend or the bundled control-system adapter can register its
// own counters/gauges/histograms through the registry, keyed by a
// (component, metric) pair that must be unique:
//
//	reconnects := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "nats_adapter_reconnects_total",
//	    Help: "Total reconnection attempts made by the NATS control-system adapter",
//	})
//	err := registry.RegisterCounter("nats-adapter", "reconnects_total", reconnects)
//
// # Thread Safety
//
// All registry operations are thread-safe: registration methods use mutex
// protection, metric recording is lock-free (a Prometheus guarantee), and
// CoreMetrics()/PrometheusRegistry() are safe for concurrent access from the
// resolver, fan-outs, and the testable-mode scheduler simultaneously.
//
// # Namespace
//
// All core metrics use the namespace "ctrlmesh" with subsystems transport,
// fanout, application, testable, and adapter — e.g.
// ctrlmesh_transport_queue_depth{network="..."}.
package metric
