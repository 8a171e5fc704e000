//go:build integration

package profilestore

import (
	"testing"

	"github.com/eskate/storefront-api/internal/adapters/contracttest"
	"github.com/eskate/storefront-api/internal/adapters/postgres/testutil"
	profilestoreport "github.com/eskate/storefront-api/internal/ports/out/profilestore"
)

func TestContract_PostgresProfileStore(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)

	contracttest.RunProfileStore(t, func(t *testing.T) (profilestoreport.Store, contracttest.CleanupFunc) {
		t.Helper()
		return NewStore(pool, "https://issuer.test"), nil
	})
}
