package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wuchinator/product-analytics/internal/analytics"
	"github.com/Wuchinator/product-analytics/internal/config"
	"github.com/Wuchinator/product-analytics/internal/event"
	"github.com/Wuchinator/product-analytics/internal/query"
	"github.com/Wuchinator/product-analytics/pkg/cache"
	"github.com/Wuchinator/product-analytics/pkg/grpcserver"
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

	log = logger.WithService(log, "query-service")
	log.Info("Starting Query Service",
		zap.String("environment", cfg.Environment),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.String("metrics_port", cfg.MetricsPort),
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

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := snapshotCache.HealthCheck(pingCtx); err != nil {
		log.Warn("Redis unavailable, snapshots will not be cached", zap.Error(err))
	}
	pingCancel()

	serviceMetrics := analytics.NewMetrics()
	registry, err := metrics.NewRegistry(serviceMetrics.Collectors()...)
	if err != nil {
		log.Fatal("Failed to register metrics", zap.Error(err))
	}
	metricsServer := metrics.NewServer(":"+cfg.MetricsPort, registry, log)
	metricsServer.Start()

	eventRepo := event.NewRepository(db, log)
	analyticsRepo := analytics.NewRepository(db.DB, log)
	analyticsService := analytics.NewService(eventRepo, analyticsRepo, analytics.SettingsFromConfig(cfg), log,
		analytics.WithCache(snapshotCache),
		analytics.WithMetrics(serviceMetrics),
	)
	queryService := query.NewService(analyticsService, log)
	queryHandler := query.NewHandler(queryService, log)

	grpcServer := grpcserver.New("query-service", log)
	query.RegisterQueryServer(grpcServer, queryHandler)

	listener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal("Failed to create listener", zap.Error(err))
	}

	go func() {
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully")

	grpcServer.Shutdown(30 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		log.Warn("Failed to stop metrics server", zap.Error(err))
	}

	log.Info("Query Service stopped")
}
