package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds the command-line configuration for the example process.
type CLIConfig struct {
	NATSURL         string
	SubjectPrefix   string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ConnectTimeout  time.Duration
	MetricsPort     int
	MetricsPath     string
	XMLOutputPath   string
	GraphOutputPath string
	Testable        bool
	StallThreshold  int
	ShowVersion     bool
	ShowHelp        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("CTRLMESH_NATS_URL", "nats://127.0.0.1:4222"),
		"NATS server URL (env: CTRLMESH_NATS_URL)")

	flag.StringVar(&cfg.SubjectPrefix, "subject-prefix",
		getEnv("CTRLMESH_SUBJECT_PREFIX", "ctrlmesh"),
		"Subject prefix control-system variables are published under (env: CTRLMESH_SUBJECT_PREFIX)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("CTRLMESH_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: CTRLMESH_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("CTRLMESH_LOG_FORMAT", "json"),
		"Log format: json, text (env: CTRLMESH_LOG_FORMAT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("CTRLMESH_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: CTRLMESH_SHUTDOWN_TIMEOUT)")

	flag.DurationVar(&cfg.ConnectTimeout, "connect-timeout",
		getEnvDuration("CTRLMESH_CONNECT_TIMEOUT", 10*time.Second),
		"Timeout waiting for the NATS connection to become healthy (env: CTRLMESH_CONNECT_TIMEOUT)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("CTRLMESH_METRICS_PORT", 9090),
		"Prometheus metrics port, 0 to disable (env: CTRLMESH_METRICS_PORT)")

	flag.StringVar(&cfg.MetricsPath, "metrics-path",
		getEnv("CTRLMESH_METRICS_PATH", "/metrics"),
		"Prometheus metrics path (env: CTRLMESH_METRICS_PATH)")

	flag.StringVar(&cfg.XMLOutputPath, "xml-output",
		getEnv("CTRLMESH_XML_OUTPUT", ""),
		"Path to write the resolved control-system variable list on shutdown, empty to skip (env: CTRLMESH_XML_OUTPUT)")

	flag.StringVar(&cfg.GraphOutputPath, "graph-output",
		getEnv("CTRLMESH_GRAPH_OUTPUT", ""),
		"Path to write a Graphviz dump of the connection graph on shutdown, empty to skip (env: CTRLMESH_GRAPH_OUTPUT)")

	flag.BoolVar(&cfg.Testable, "testable",
		getEnvBool("CTRLMESH_TESTABLE", false),
		"Run under the cooperative testable-mode scheduler instead of free-running threads (env: CTRLMESH_TESTABLE)")

	flag.IntVar(&cfg.StallThreshold, "stall-threshold",
		getEnvInt("CTRLMESH_STALL_THRESHOLD", 100),
		"Testable-mode stall threshold: consecutive yields with no drained value (env: CTRLMESH_STALL_THRESHOLD)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	flag.Usage = printDetailedHelp

	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	if cfg.StallThreshold <= 0 {
		return fmt.Errorf("invalid stall threshold: %d", cfg.StallThreshold)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - dataflow runtime example

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run against a local broker with defaults
  %s

  # Run with debug logging against a remote broker
  %s --nats-url=nats://broker:4222 --log-level=debug --log-format=text

  # Dump the resolved connection graph on shutdown
  %s --graph-output=/tmp/ctrlmesh.dot --xml-output=/tmp/ctrlmesh.xml

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
