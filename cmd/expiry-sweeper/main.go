package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prohmpiriya/turf-booking/internal/di"
	"github.com/prohmpiriya/turf-booking/internal/metrics"
	"github.com/prohmpiriya/turf-booking/pkg/config"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Storage.Driver == "memory" {
		log.Fatalf("expiry-sweeper needs shared storage; run the API with SWEEPER_EMBEDDED=true instead")
	}

	// Initialize logger
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "expiry-sweeper",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Expiry Sweeper...",
		zap.Duration("interval", cfg.Sweeper.Interval),
		zap.Int("batch_size", cfg.Sweeper.BatchSize),
	)

	if err := metrics.Init(); err != nil {
		appLog.Warn("Failed to register metrics", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.NewContainer(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("Failed to build container", zap.Error(err))
	}
	defer container.Close()

	if err := container.Sweeper.Start(ctx); err != nil {
		appLog.Fatal("Failed to start expiry sweeper", zap.Error(err))
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	appLog.Info("Shutting down Expiry Sweeper...")
	container.Sweeper.Stop()

	stats := container.Sweeper.GetStats()
	appLog.Info("Expiry Sweeper stopped",
		zap.Int64("total_expired", stats.TotalExpired),
		zap.Int64("total_failed", stats.TotalFailed),
	)
}
