package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/zgpcy/aliyun-cms-exporter/internal/aliyun"
	"github.com/zgpcy/aliyun-cms-exporter/internal/collector"
	"github.com/zgpcy/aliyun-cms-exporter/internal/config"
	"github.com/zgpcy/aliyun-cms-exporter/internal/logger"
	"github.com/zgpcy/aliyun-cms-exporter/internal/metrics"
	"github.com/zgpcy/aliyun-cms-exporter/internal/server"
	"github.com/zgpcy/aliyun-cms-exporter/internal/version"
	"go.uber.org/automaxprocs/maxprocs"
)

const (
	// DefaultShutdownTimeout is the maximum time to wait for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second
)

func main() {
	opts, err := parseOptions(os.Args)
	if err != nil {
		if isHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("aliyun-cms-exporter %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildDate)
		return
	}

	// Load configuration first (need log level from config)
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if opts.Port != 0 {
		if opts.Port < config.MinPort || opts.Port > config.MaxPort {
			log.Fatalf("Invalid port %d: must be between %d and %d", opts.Port, config.MinPort, config.MaxPort)
		}
		cfg.HTTPPort = opts.Port
	}

	// Initialize structured logger
	logger := logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	logger.Info("Aliyun CloudMonitor Exporter starting",
		"version", version.Version,
		"config_path", opts.ConfigPath)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Warn("Failed to set GOMAXPROCS", "error", err)
	}

	logger.Info("Configuration loaded successfully",
		"rules", len(cfg.Metrics),
		"http_port", cfg.HTTPPort,
		"metrics_endpoint", cfg.Endpoint.Metrics,
		"tag_endpoint", cfg.Endpoint.Tag,
		"period_seconds", cfg.PeriodSeconds,
		"scrape_timeout_seconds", cfg.ScrapeTimeout,
		"rule_timeout_seconds", cfg.RuleTimeout,
		"api_timeout_seconds", cfg.APITimeout,
		"set_timestamp", cfg.TimestampEnabled())

	// Resolve credentials once; all API clients share them
	cred, err := aliyun.NewCredential()
	if err != nil {
		logger.Error("Failed to resolve credentials", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	requests := metrics.NewRequests(registry)

	// Create Aliyun clients
	logger.Info("Initializing Aliyun API clients")
	metricClient, err := aliyun.NewMetricClient(cfg, cred, requests, logger)
	if err != nil {
		logger.Error("Failed to create CloudMonitor client", "error", err)
		os.Exit(1)
	}
	tagClient := aliyun.NewTagClient(cfg, cred, requests, logger)
	logger.Info("Aliyun clients initialized successfully")

	// Create collector
	logger.Info("Creating Prometheus collector")
	cmsCollector := collector.New(metricClient, tagClient, cfg, logger)

	// Register collector with Prometheus
	if err := registry.Register(cmsCollector); err != nil {
		logger.Error("Failed to register collector", "error", err)
		os.Exit(1)
	}
	logger.Info("Collector registered with Prometheus")

	// Register Go runtime metrics (memory, goroutines, GC stats)
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		logger.Warn("Failed to register Go collector", "error", err)
	} else {
		logger.Info("Go runtime metrics registered")
	}

	// Register process metrics (CPU, memory, file descriptors)
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		logger.Warn("Failed to register process collector", "error", err)
	} else {
		logger.Info("Process metrics registered")
	}

	// Create and start HTTP server
	logger.Info("Creating HTTP server", "port", cfg.HTTPPort)
	srv := server.NewServer(cfg, cmsCollector, registry, logger)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		logger.Info("Received shutdown signal, starting graceful shutdown", "signal", sig.String())

		// Shutdown server with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during server shutdown", "error", err)
			// Force shutdown
			os.Exit(1)
		}

		logger.Info("Server stopped gracefully")
	}
}
