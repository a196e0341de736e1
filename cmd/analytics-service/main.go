package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wuchinator/product-analytics/internal/analytics"
	"github.com/Wuchinator/product-analytics/internal/config"
	"github.com/Wuchinator/product-analytics/internal/event"
	"github.com/Wuchinator/product-analytics/pkg/cache"
	"github.com/Wuchinator/product-analytics/pkg/kafka"
	"github.com/Wuchinator/product-analytics/pkg/logger"
	"github.com/Wuchinator/product-analytics/pkg/metrics"
	"github.com/Wuchinator/product-analytics/pkg/postgres"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log = logger.WithService(log, "analytics-service")
	log.Info("Starting Analytics Service",
		zap.String("environment", cfg.Environment),
		zap.String("consumer_group", cfg.Kafka.ConsumerGroup),
		zap.Duration("recompute_interval", cfg.Analytics.RecomputeInterval),
	)

	db, err := postgres.New(postgres.Config{
		DSN:             cfg.Postgres.PostgresDSN(),
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}, log)
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	snapshotCache := cache.NewRedis(cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   "snapshot:",
	}, log)
	defer snapshotCache.Close()

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:          cfg.Kafka.Brokers,
		Topic:            cfg.Kafka.SnapshotsTopic,
		Retries:          cfg.Kafka.ProducerRetries,
		Timeout:          cfg.Kafka.ProducerTimeout,
		RequiredAcks:     cfg.Kafka.RequiredAcks,
		Compression:      cfg.Kafka.CompressionType,
		IdempotentWrites: cfg.Kafka.IdempotentWrites,
		MaxMessageBytes:  cfg.Kafka.MaxMessageBytes,
	}, log)
	if err != nil {
		log.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	defer producer.Close()

	serviceMetrics := analytics.NewMetrics()
	registry, err := metrics.NewRegistry(serviceMetrics.Collectors()...)
	if err != nil {
		log.Fatal("Failed to register metrics", zap.Error(err))
	}
	metricsServer := metrics.NewServer(":"+cfg.WorkerMetricsPort, registry, log)
	metricsServer.Start()

	eventRepo := event.NewRepository(db, log)
	analyticsRepo := analytics.NewRepository(db.DB, log)
	analyticsService := analytics.NewService(eventRepo, analyticsRepo, analytics.SettingsFromConfig(cfg), log,
		analytics.WithCache(snapshotCache),
		analytics.WithPublisher(producer),
		analytics.WithMetrics(serviceMetrics),
	)

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:           cfg.Kafka.Brokers,
		Topics:            []string{cfg.Kafka.RecomputeTopic},
		GroupID:           cfg.Kafka.ConsumerGroup,
		AutoCommit:        true,
		CommitInterval:    1 * time.Second,
		SessionTimeout:    10 * time.Second,
		RebalanceStrategy: "sticky",
	}, analyticsService.CreateMessageHandler(), log)
	if err != nil {
		log.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil {
			log.Error("Consumer error", zap.Error(err))
		}
	}()

	select {
	case <-consumer.WaitReady():
		log.Info("Kafka consumer is ready and consuming messages")
	case <-consumerDone:
		log.Fatal("Kafka consumer stopped before becoming ready")
	}

	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		ticker := time.NewTicker(cfg.Analytics.RecomputeInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				n, err := analyticsService.RecomputeActive(ctx, analytics.Request{})
				if err != nil {
					log.Warn("Periodic recompute finished with errors",
						zap.Int("refreshed", n),
						zap.Error(err),
					)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	for _, done := range []chan struct{}{consumerDone, tickerDone} {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			log.Warn("Shutdown timeout, exiting with work in flight")
		}
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to stop metrics server", zap.Error(err))
	}

	log.Info("Analytics Service stopped")
}
