package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	memclock "github.com/eskate/storefront-api/internal/adapters/memory/clock"
	memidentity "github.com/eskate/storefront-api/internal/adapters/memory/identityprovider"
	memprofiles "github.com/eskate/storefront-api/internal/adapters/memory/profilestore"
	memcache "github.com/eskate/storefront-api/internal/adapters/memory/sessioncache"
	"github.com/eskate/storefront-api/internal/app/session"
	"github.com/eskate/storefront-api/internal/app/uniqueness"
	"github.com/eskate/storefront-api/internal/app/validation"
	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

func newTestRegistry(t *testing.T) (*Registry, *memclock.ManualClock, *memcache.Cache) {
	t.Helper()
	clk := memclock.NewManualClock(time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC))
	dir, err := memidentity.NewDirectory(clk, memidentity.Options{TokenSecret: []byte("k"), HashCost: bcrypt.MinCost})
	require.NoError(t, err)
	profiles := memprofiles.NewStore(clk)
	cache := memcache.NewCache()
	r := NewRegistry(Deps{
		Validator: validation.NewValidator(validation.DefaultSchema(0), clk),
		Checker:   uniqueness.NewChecker(profiles),
		Profiles:  profiles,
		Sessions:  cache,
		Identities: func(c sessioncache.Cache) identityprovider.Provider {
			return dir.Client(c)
		},
		Clock: clk,
	})
	return r, clk, cache
}

func TestRegistry_DevicesAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, _, cache := newTestRegistry(t)

	a := r.Get("device-a")
	require.Same(t, a, r.Get("device-a"))

	_, err := a.Form.Edit(domain.FieldIdentifier, "newuser")
	require.NoError(t, err)
	require.Equal(t, "", r.Get("device-b").Form.Snapshot().Draft.Identifier)

	_, err = a.Sessions.SignIn(ctx, "nobody@example.com", "secret1")
	require.Error(t, err)

	// Markers live under the device's namespace of the shared cache.
	require.NoError(t, scope(cache, "device-a").Set(ctx, sessioncache.MarkerKey, "ana@example.com"))
	email, ok, err := a.Sessions.Marker(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ana@example.com", email)

	_, ok, err = r.Get("device-b").Sessions.Marker(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	raw, ok, err := cache.Get(ctx, "device/device-a/"+sessioncache.MarkerKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ana@example.com", raw)
}

func TestRegistry_SessionSurvivesPrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, clk, _ := newTestRegistry(t)

	d := r.Get("device-a")
	for f, v := range map[domain.Field]string{
		domain.FieldIdentifier:           "newuser",
		domain.FieldGivenName:            "Ana",
		domain.FieldFamilyName:           "Lopez",
		domain.FieldBirthDate:            "2006-03-15",
		domain.FieldEmail:                "ana@example.com",
		domain.FieldPassword:             "secret1",
		domain.FieldPasswordConfirmation: "secret1",
	} {
		_, err := d.Form.Edit(f, v)
		require.NoError(t, err)
	}
	st, err := d.Workflow.Register(ctx)
	require.NoError(t, err)
	require.Equal(t, session.KindAuthenticatedWithProfile, st.Kind)

	clk.Advance(2 * time.Hour)
	r.Get("device-b")
	require.Equal(t, 1, r.Prune(time.Hour))
	require.Equal(t, 1, r.Len())

	again := r.Get("device-a")
	require.NotSame(t, d, again)
	require.Equal(t, session.KindAuthenticatedWithProfile, again.Sessions.Resolve(ctx).Kind)
}
