package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prohmpiriya/turf-booking/internal/di"
	"github.com/prohmpiriya/turf-booking/internal/metrics"
	"github.com/prohmpiriya/turf-booking/internal/worker"
	"github.com/prohmpiriya/turf-booking/pkg/config"
	"github.com/prohmpiriya/turf-booking/pkg/kafka"
	"github.com/prohmpiriya/turf-booking/pkg/logger"
	"github.com/prohmpiriya/turf-booking/pkg/retry"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Storage.Driver == "memory" {
		log.Fatalf("payment-consumer needs shared storage")
	}
	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatalf("KAFKA_BROKERS is required")
	}

	// Initialize logger
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "payment-consumer",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Payment Consumer...",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.PaymentEventsTopic),
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

	consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.ConsumerGroup + "-payments",
		Topics:         []string{cfg.Kafka.PaymentEventsTopic},
		ClientID:       cfg.Kafka.ClientID + "-payment-consumer",
		MaxRetries:     5,
		RetryInterval:  2 * time.Second,
		SessionTimeout: 30 * time.Second,
		MaxPollRecords: 100,
	})
	if err != nil {
		appLog.Fatal("Failed to create kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	// Dead letters go to <topic>.dlq
	dlqProducer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      cfg.Kafka.ClientID + "-payment-dlq",
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		appLog.Fatal("Failed to create dead letter producer", zap.Error(err))
	}
	defer dlqProducer.Close()

	paymentConsumer := worker.NewPaymentConsumer(
		consumer,
		container.SplitPaymentService,
		retry.NewDeadLetterSink(dlqProducer, ".dlq", "payment-consumer"),
		worker.DefaultPaymentConsumerConfig(),
		appLog.With(zap.String("component", "payment-consumer")),
	)
	if err := paymentConsumer.Start(ctx); err != nil {
		appLog.Fatal("Failed to start payment consumer", zap.Error(err))
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	appLog.Info("Shutting down Payment Consumer...")
	paymentConsumer.Stop()

	stats := paymentConsumer.GetStats()
	appLog.Info("Payment Consumer stopped",
		zap.Int64("processed", stats.Processed),
		zap.Int64("captured", stats.Captured),
		zap.Int64("dead_lettered", stats.DeadLettered),
	)
}
