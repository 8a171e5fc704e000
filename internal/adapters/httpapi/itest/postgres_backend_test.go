//go:build integration

package itest

import (
	"testing"

	pgidempotency "github.com/eskate/storefront-api/internal/adapters/postgres/idempotency"
	pgprofiles "github.com/eskate/storefront-api/internal/adapters/postgres/profilestore"
	postgres_testutil "github.com/eskate/storefront-api/internal/adapters/postgres/testutil"
	sqlitecache "github.com/eskate/storefront-api/internal/adapters/sqlite/sessioncache"
	clockport "github.com/eskate/storefront-api/internal/ports/out/clock"
)

func init() {
	registerBackend(backendPostgres, func(t *testing.T, clk clockport.Clock) stores {
		pool := postgres_testutil.OpenMigratedPool(t)
		cache, err := sqlitecache.Open(t.TempDir()+"/sessions.db", clk)
		if err != nil {
			t.Fatalf("open session cache: %v", err)
		}
		t.Cleanup(func() { _ = cache.Close() })
		return stores{
			profiles: pgprofiles.NewStore(pool, "itest-issuer"),
			idem:     pgidempotency.NewStore(pool),
			sessions: cache,
		}
	})
}
