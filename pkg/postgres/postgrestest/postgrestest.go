//go:build integration

// Package postgrestest starts a disposable PostgreSQL with the service schema
// applied. It needs a reachable Docker daemon.
package postgrestest

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/Wuchinator/product-analytics/pkg/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

const image = "postgres:16-alpine"

// Migrations lists the schema files in the order they are applied.
func Migrations() []string {
	_, file, _, _ := runtime.Caller(0)
	root := filepath.Join(filepath.Dir(file), "..", "..", "..")
	return []string{filepath.Join(root, "migrations", "001_events.sql")}
}

// Start runs a fresh database for t and returns a connected pool. The
// container is removed when the test finishes.
func Start(t testing.TB) *postgres.DB {
	t.Helper()

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, image,
		tcpostgres.WithDatabase("analytics"),
		tcpostgres.WithUsername("analytics"),
		tcpostgres.WithPassword("analytics"),
		tcpostgres.WithInitScripts(Migrations()...),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable", "TimeZone=UTC")
	require.NoError(t, err)

	db, err := postgres.New(postgres.Config{
		DSN:             dsn,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		PingTimeout:     10 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}
