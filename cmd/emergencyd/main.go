package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/api"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/config"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/factory"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/logger"
	"github.com/hasirciogluhq/emergency-directory/cmd/emergencyd/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// Load configuration from environment
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(logger.Options{Debug: cfg.Debug, Format: cfg.LogFormat})
	logger.Info("Starting emergencyd...",
		"runtime", cfg.Runtime,
		"catalogue", cfg.CatalogueSource,
		"framing", cfg.Framing,
		"max_clients", cfg.MaxClients)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Start health server
	var healthServer *api.HealthServer
	if cfg.HealthServerPort != "" {
		healthServer = api.NewHealthServer(":"+cfg.HealthServerPort, reg)
		healthServer.Start()
	} else {
		logger.Info("Health server disabled")
	}

	// Load the service catalogue
	cat, err := factory.NewCatalogueFactory(cfg).Create(ctx)
	if err != nil {
		logger.Fatal("Failed to load service catalogue", "error", err)
	}
	logger.Info("Service catalogue loaded", "services", cat.Names())

	// Open the audit log
	audit, auditCloser, err := factory.NewAuditFactory(cfg).Create(ctx)
	if err != nil {
		logger.Fatal("Failed to create audit sink", "error", err)
	}
	defer auditCloser.Close()

	serverFactory := factory.NewServerFactory(cfg, m)
	handler, err := serverFactory.CreateHandler(cat, audit)
	if err != nil {
		logger.Fatal("Failed to create request handler", "error", err)
	}

	server, err := serverFactory.CreateServer(handler)
	if err != nil {
		logger.Fatal("Failed to start server", "error", err)
	}

	responder, err := serverFactory.CreateResponder()
	if err != nil {
		server.Close()
		logger.Fatal("Failed to start discovery", "error", err)
	}

	discoveryDone := make(chan error, 1)
	go func() { discoveryDone <- responder.Run(ctx) }()

	// Mark as ready
	if healthServer != nil {
		healthServer.SetReady(true)
	}
	logger.Info("Emergency directory is ready to accept connections",
		"addr", server.Addr(),
		"discovery", responder.Addr().String(),
		"advertised_port", cfg.AdvertisedPort)

	// Start serving (blocking)
	if err := server.Serve(ctx); err != nil {
		logger.Fatal("Server error", "error", err)
	}

	if err := <-discoveryDone; err != nil {
		logger.Error("Discovery responder error", "error", err)
	}

	if healthServer != nil {
		healthServer.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Warn("Health server shutdown error", "error", err)
		}
	}
	logger.Info("Server stopped")
}
