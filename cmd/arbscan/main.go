// Package main is the entry point for the arbitrage scanner.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"

	"arbscan/business/arbitrage"
	"arbscan/business/marketdata"
	"arbscan/business/scanner"
	scanDI "arbscan/business/scanner/di"
	"arbscan/internal/apm"
	"arbscan/internal/config"
	"arbscan/internal/health"
	"arbscan/internal/logger"
	"arbscan/internal/metrics"
	"arbscan/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("arbscan %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	log := logger.New(os.Stderr, logLevel, cfg.App.Name, traceID)
	log.Info(ctx, "starting arbitrage scanner",
		"version", version,
		"environment", cfg.App.Environment,
	)

	if cfg.Telemetry.Enabled {
		traceProvider := apm.NewTraceProvider(apm.ProviderConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Exporter:    apm.Exporter(cfg.Telemetry.Exporter),
			Endpoint:    cfg.Telemetry.OTLPEndpoint,
			Insecure:    cfg.Telemetry.OTLPInsecure,
		}, log)
		defer traceProvider.Stop()

		metricProvider, err := metrics.NewMetricProvider(ctx, metrics.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		defer metricProvider.Shutdown(context.Background())

		go metrics.ServePrometheusMetrics(cfg.Telemetry.PrometheusPort, log)
	}

	healthServer := health.NewServer(cfg.App.HealthPort, version, log)
	healthServer.Start()
	defer healthServer.Stop(context.Background())

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}

	// Dependency order: marketdata provides books, arbitrage consumes
	// them, scanner drives both.
	scannerModule := &scanner.Module{}
	modules := []monolith.Module{
		&marketdata.Module{},
		&arbitrage.Module{},
		scannerModule,
	}
	defer scannerModule.Close()

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	orchestrator := scanDI.GetOrchestrator(mono.Services())

	// Readiness gates on the first completed scan; health reports the
	// last scan outcome.
	healthServer.RegisterReadiness("scanner", func(ctx context.Context) (bool, string) {
		if !orchestrator.Ready() {
			return false, "first scan not completed"
		}
		return true, ""
	})
	healthServer.RegisterCheck("scanner", func(ctx context.Context) (bool, string) {
		snap := orchestrator.GetCached()
		if snap.Error != "" {
			return false, snap.Error
		}
		return true, ""
	})

	log.Info(ctx, "all modules started")

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")
	return nil
}

// traceID correlates log lines with the active span.
func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
