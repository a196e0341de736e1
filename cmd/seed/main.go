package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/Wuchinator/product-analytics/internal/config"
	"github.com/Wuchinator/product-analytics/internal/demo"
	"github.com/Wuchinator/product-analytics/internal/event"
	"github.com/Wuchinator/product-analytics/pkg/logger"
	"github.com/Wuchinator/product-analytics/pkg/postgres"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	project := flag.String("project", demo.ProjectID.String(), "project id to seed")
	users := flag.Int("users", 200, "number of synthetic users")
	days := flag.Int("days", 30, "days of history to generate")
	seed := flag.Uint64("seed", 42, "generator seed")
	batch := flag.Int("batch", 500, "events per insert transaction")
	flag.Parse()

	if *batch <= 0 {
		*batch = 500
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()
	log = logger.WithService(log, "seed")

	projectID, err := uuid.Parse(*project)
	if err != nil {
		log.Fatal("Invalid project id", zap.String("project", *project), zap.Error(err))
	}

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

	events := demo.Generate(demo.Options{
		ProjectID: projectID,
		Users:     *users,
		Days:      *days,
		Seed:      *seed,
		End:       time.Now().UTC(),
	})

	// No publisher: the periodic recompute picks the project up.
	service := event.NewService(event.NewRepository(db, log), nil, log)

	ctx := context.Background()
	stored := 0
	for start := 0; start < len(events); start += *batch {
		end := min(start+*batch, len(events))
		n, err := service.Ingest(ctx, events[start:end])
		if err != nil {
			log.Fatal("Failed to store events", zap.Int("offset", start), zap.Error(err))
		}
		stored += n
	}

	log.Info("Seed finished",
		zap.String("project_id", projectID.String()),
		zap.Int("generated", len(events)),
		zap.Int("stored", stored),
	)
}
