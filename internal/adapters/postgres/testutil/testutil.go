//go:build integration

// Package testutil starts a throwaway Postgres for adapter integration tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eskate/storefront-api/internal/adapters/postgres"
)

var (
	once    sync.Once
	connStr string
	initErr error
)

// OpenMigratedPool returns a pool on a migrated database. The container is
// started once per test binary and reaped by testcontainers.
func OpenMigratedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	once.Do(func() {
		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("storefront"),
			tcpostgres.WithUsername("storefront"),
			tcpostgres.WithPassword("storefront"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			initErr = err
			return
		}
		connStr, initErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	if initErr != nil {
		t.Fatalf("start postgres container: %v", initErr)
	}

	pool, err := postgres.NewPool(ctx, connStr, postgres.PoolOptions{MaxConns: 4})
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}
