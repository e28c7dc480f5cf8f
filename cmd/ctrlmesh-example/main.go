// Command ctrlmesh-example wires two application modules together through
// the dataflow runtime (a generator feeding a monitor, plus a NATS-exposed
// control-system variable) to exercise defineConnections, resolution, and
// ordered start/stop end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ctrlmesh/ctrlmesh/accessor"
	"github.com/ctrlmesh/ctrlmesh/controlsystem/nats"
	"github.com/ctrlmesh/ctrlmesh/metric"
	"github.com/ctrlmesh/ctrlmesh/network"
	"github.com/ctrlmesh/ctrlmesh/node"
	"github.com/ctrlmesh/ctrlmesh/resolver"
	"github.com/ctrlmesh/ctrlmesh/runtime"
	"github.com/ctrlmesh/ctrlmesh/runtimeconfig"
	"github.com/ctrlmesh/ctrlmesh/testable"
	"github.com/ctrlmesh/ctrlmesh/types"
)

const appName = "ctrlmesh-example"

var (
	// Version and BuildTime are overridden at build time with
	// -ldflags "-X main.Version=... -X main.BuildTime=...".
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := parseFlags()
	if cfg.ShowVersion {
		fmt.Printf("%s %s (built %s)\n", appName, Version, BuildTime)
		return 0
	}
	if cfg.ShowHelp {
		printDetailedHelp()
		return 0
	}
	if err := validateFlags(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log := setupLogger(cfg.LogLevel, cfg.LogFormat)

	runtimeCfg := runtimeconfig.Default()
	runtimeCfg.StallThreshold = cfg.StallThreshold
	runtimeCfg.XMLOutputPath = cfg.XMLOutputPath
	runtimeCfg.GraphOutputPath = cfg.GraphOutputPath
	if err := runtimeCfg.Validate(); err != nil {
		log.Error("invalid runtime configuration", "error", err)
		return 1
	}

	metricsRegistry := metric.NewMetricsRegistry()
	metrics := metricsRegistry.Metrics

	var metricsServer *metric.Server
	if cfg.MetricsPort > 0 {
		metricsServer = metric.NewServer(cfg.MetricsPort, cfg.MetricsPath, metricsRegistry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	natsClient := nats.NewClient(cfg.NATSURL,
		nats.WithLogger(log),
		nats.WithName(appName),
		nats.WithMetrics(metrics),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer connectCancel()
	if err := natsClient.Connect(connectCtx); err != nil {
		log.Error("failed to connect to NATS", "url", cfg.NATSURL, "error", err)
		return 1
	}
	defer natsClient.Close()

	csFactory := nats.NewFactory(natsClient, cfg.SubjectPrefix)

	var scheduler *testable.Scheduler
	if cfg.Testable {
		scheduler = testable.NewScheduler(metrics, cfg.StallThreshold)
	}

	reg := network.NewRegistry()

	generatorOut := node.NewApplicationNode("generator", "value", node.DirectionFeeding, node.ModePush, "V", "generated setpoint", types.Float64, 1)
	monitorIn := node.NewApplicationNode("monitor", "value", node.DirectionConsuming, node.ModePush, "V", "observed setpoint", types.Float64, 1)
	setpointCS := node.NewControlSystemNode(cfg.SubjectPrefix+".setpoint", types.Float64, 1)
	setpointCS.Direction = node.DirectionConsuming

	if err := reg.Connect(generatorOut, monitorIn); err != nil {
		log.Error("connect generator->monitor failed", "error", err)
		return 1
	}
	if err := reg.Connect(generatorOut, setpointCS); err != nil {
		log.Error("connect generator->control-system failed", "error", err)
		return 1
	}

	// scheduler must be passed through as a bare nil interface, not a
	// typed nil *testable.Scheduler, or resolver.New's "testable != nil"
	// check would see a non-nil interface and wrap every accessor anyway.
	var coordinator accessor.Coordinator
	if scheduler != nil {
		coordinator = scheduler
	}

	r := resolver.New(runtimeCfg, metrics, noDeviceBackend{}, csFactory, coordinator)
	resolved, err := r.Resolve(reg, reg.AllNodes())
	if err != nil {
		log.Error("connection resolution failed", "error", err)
		return 1
	}

	generator := newGeneratorModule(log, generatorOut.ID, time.Second)
	monitor := newMonitorModule(log, monitorIn.ID)

	app := runtime.New(log, metrics, scheduler)
	app.AddModule(generator)
	app.AddModule(monitor)

	if err := app.Start(ctx, resolved); err != nil {
		log.Error("failed to start application", "error", err)
		return 1
	}

	log.Info("ctrlmesh-example running", "nats_url", cfg.NATSURL, "testable", cfg.Testable)

	<-ctx.Done()
	log.Info("shutdown signal received")

	if err := app.Stop(cfg.ShutdownTimeout); err != nil {
		log.Error("shutdown did not complete cleanly", "error", err)
	}

	if cfg.XMLOutputPath != "" {
		if err := runtime.GenerateXML(cfg.XMLOutputPath, reg); err != nil {
			log.Error("failed to write XML variable list", "path", cfg.XMLOutputPath, "error", err)
		}
	}
	if cfg.GraphOutputPath != "" {
		if err := runtime.DumpConnectionGraph(cfg.GraphOutputPath, reg); err != nil {
			log.Error("failed to write connection graph", "path", cfg.GraphOutputPath, "error", err)
		}
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			log.Error("metrics server did not stop cleanly", "error", err)
		}
	}

	return 0
}
