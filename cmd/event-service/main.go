package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wuchinator/product-analytics/internal/config"
	"github.com/Wuchinator/product-analytics/internal/event"
	"github.com/Wuchinator/product-analytics/pkg/grpcserver"
	"github.com/Wuchinator/product-analytics/pkg/kafka"
	"github.com/Wuchinator/product-analytics/pkg/logger"
	"github.com/Wuchinator/product-analytics/pkg/postgres"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Error loading config: %v", err))
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("Error initializing logger: %v", err))
	}
	defer log.Sync()

	log = logger.WithService(log, "event-service")
	log.Info("Starting Event Service",
		zap.String("environment", cfg.Environment),
		zap.String("grpc_port", cfg.EventPort),
	)

	db, err := postgres.New(postgres.Config{
		DSN:             cfg.Postgres.PostgresDSN(),
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}, log)
	if err != nil {
		log.Fatal("Error initializing postgres client", zap.Error(err))
	}
	defer db.Close()

	// Recompute notices go to the topic the analytics worker consumes.
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:          cfg.Kafka.Brokers,
		Topic:            cfg.Kafka.RecomputeTopic,
		Retries:          cfg.Kafka.ProducerRetries,
		Timeout:          cfg.Kafka.ProducerTimeout,
		RequiredAcks:     cfg.Kafka.RequiredAcks,
		Compression:      cfg.Kafka.CompressionType,
		IdempotentWrites: cfg.Kafka.IdempotentWrites,
		MaxMessageBytes:  cfg.Kafka.MaxMessageBytes,
	}, log)
	if err != nil {
		log.Fatal("Error initializing kafka", zap.Error(err))
	}
	defer producer.Close()

	eventRepo := event.NewRepository(db, log)
	eventService := event.NewService(eventRepo, producer, log)
	eventHandler := event.NewHandler(eventService, log)

	grpcServer := grpcserver.New("event-service", log)
	event.RegisterEventServer(grpcServer, eventHandler)

	listener, err := net.Listen("tcp", ":"+cfg.EventPort)
	if err != nil {
		log.Fatal("Error initializing gRPC listener", zap.Error(err))
	}

	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatal("Error serving gRPC", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gRPC server")
	grpcServer.Shutdown(5 * time.Second)
	log.Info("Event Service stopped")
}
