package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

type DB struct {
	*sqlx.DB
	logger *zap.Logger
}

type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

func New(config Config, logger *zap.Logger) (*DB, error) {
	db, err := sqlx.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("could not open postgres: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	timeout := config.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not ping postgres: %w", err)
	}

	logger.Info("PostgreSQL connected",
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns),
		zap.Duration("conn_max_lifetime", config.ConnMaxLifetime),
	)

	return Wrap(db, logger), nil
}

// Wrap adopts an already opened handle, e.g. one backed by a test driver.
func Wrap(db *sqlx.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     db,
		logger: logger,
	}
}

func (db *DB) Close() error {
	err := db.DB.Close()
	if err != nil {
		db.logger.Error("could not close database", zap.Error(err))
		return fmt.Errorf("could not close postgres connection: %w", err)
	}
	db.logger.Info("postgres connection closed")
	return nil
}

func (db *DB) HealthCheck(ctx context.Context) error {
	return db.PingContext(ctx)
}

// PoolStats reports connection pool usage for health responses.
func (db *DB) PoolStats() map[string]string {
	stats := db.DB.Stats()
	return map[string]string{
		"open_connections": fmt.Sprint(stats.OpenConnections),
		"in_use":           fmt.Sprint(stats.InUse),
		"idle":             fmt.Sprint(stats.Idle),
		"wait_count":       fmt.Sprint(stats.WaitCount),
		"wait_duration":    stats.WaitDuration.String(),
	}
}
