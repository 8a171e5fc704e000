package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	memclock "github.com/eskate/storefront-api/internal/adapters/memory/clock"
	memidentity "github.com/eskate/storefront-api/internal/adapters/memory/identityprovider"
	memprofiles "github.com/eskate/storefront-api/internal/adapters/memory/profilestore"
	memcache "github.com/eskate/storefront-api/internal/adapters/memory/sessioncache"
	"github.com/eskate/storefront-api/internal/app/provisioning"
	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/platform/i18n"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider/mocks"
	"github.com/eskate/storefront-api/internal/ports/out/profilestore"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

type fixture struct {
	clk     *memclock.ManualClock
	dir     *memidentity.Directory
	client  *memidentity.Client
	cache   *memcache.Cache
	profile *memprofiles.Store
	b       *Bootstrapper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := memclock.NewManualClock(time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC))
	dir, err := memidentity.NewDirectory(clk, memidentity.Options{TokenSecret: []byte("k"), HashCost: bcrypt.MinCost})
	require.NoError(t, err)
	cache := memcache.NewCache()
	client := dir.Client(cache)
	store := memprofiles.NewStore(clk)
	return &fixture{
		clk:     clk,
		dir:     dir,
		client:  client,
		cache:   cache,
		profile: store,
		b:       NewBootstrapper(client, store, cache),
	}
}

func marker(t *testing.T, c sessioncache.Cache) (string, bool) {
	t.Helper()
	v, ok, err := c.Get(context.Background(), sessioncache.MarkerKey)
	require.NoError(t, err)
	return v, ok
}

// readFailingStore fails every profile read.
type readFailingStore struct {
	profilestore.Store
	err error
}

func (s readFailingStore) ReadProfile(context.Context, domain.SubjectID) (domain.UserProfile, error) {
	return domain.UserProfile{}, s.err
}

// writeFailingStore fails every profile write.
type writeFailingStore struct {
	profilestore.Store
}

func (writeFailingStore) WriteProfile(context.Context, domain.SubjectID, domain.UserProfile) (domain.UserProfile, error) {
	return domain.UserProfile{}, profilestore.ErrUnavailable
}

// nonDeletingProvider hides the Deleter implementation of the wrapped provider.
type nonDeletingProvider struct {
	identityprovider.Provider
}

func TestResolve_AnonymousClearsStaleMarker(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.cache.Set(context.Background(), sessioncache.MarkerKey, "old@example.com"))

	s := f.b.Resolve(context.Background())
	require.Equal(t, KindAnonymous, s.Kind)
	require.Nil(t, s.LoadError)
	_, ok := marker(t, f.cache)
	require.False(t, ok)
}

func TestResolve_WithProfile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	cred, err := f.client.CreateIdentity(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	_, err = f.profile.WriteProfile(ctx, cred.Subject, domain.UserProfile{Identifier: "newuser"})
	require.NoError(t, err)

	s := f.b.Resolve(ctx)
	require.Equal(t, KindAuthenticatedWithProfile, s.Kind)
	require.NotNil(t, s.Profile)
	require.Equal(t, domain.Identifier("newuser"), s.Profile.Identifier)
	require.Equal(t, "ana@example.com", s.Email)
	require.Equal(t, "newuser", s.HeaderLabel(i18n.Printer(language.English)))

	// Reconciliation re-creates a missing marker.
	v, ok := marker(t, f.cache)
	require.True(t, ok)
	require.Equal(t, "ana@example.com", v)
}

func TestResolve_NoProfile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	_, err := f.client.CreateIdentity(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)

	s := f.b.Resolve(ctx)
	require.Equal(t, KindAuthenticatedNoProfile, s.Kind)
	require.Nil(t, s.LoadError)
	require.Nil(t, s.Profile)
	require.Equal(t, "No profile", s.HeaderLabel(i18n.Printer(language.English)))
	require.Equal(t, "Sin perfil", s.HeaderLabel(i18n.Printer(language.Spanish)))
}

func TestResolve_ProfileReadFailureIsRetryable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	cred, err := f.client.CreateIdentity(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	_, err = f.profile.WriteProfile(ctx, cred.Subject, domain.UserProfile{Identifier: "newuser"})
	require.NoError(t, err)

	flaky := NewBootstrapper(f.client, readFailingStore{Store: f.profile, err: profilestore.ErrUnavailable}, f.cache)
	s := flaky.Resolve(ctx)
	require.Equal(t, KindAuthenticatedNoProfile, s.Kind)
	require.NotNil(t, s.LoadError)
	require.Equal(t, StageProfile, s.LoadError.Stage)
	require.ErrorIs(t, s.LoadError, profilestore.ErrUnavailable)
	require.Equal(t, "Profile unavailable", s.HeaderLabel(i18n.Printer(language.English)))

	// Still signed in: a retry with a healthy store resolves fully.
	s = f.b.Resolve(ctx)
	require.Equal(t, KindAuthenticatedWithProfile, s.Kind)
}

func TestResolve_IdentityReadFailureKeepsMarker(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	idp := mocks.NewMockProvider(ctrl)
	idp.EXPECT().CurrentIdentity(gomock.Any()).Return(identityprovider.Credential{}, false, identityprovider.ErrNetwork)

	cache := memcache.NewCache()
	require.NoError(t, cache.Set(context.Background(), sessioncache.MarkerKey, "ana@example.com"))
	b := NewBootstrapper(idp, memprofiles.NewStore(memclock.NewManualClock(time.Unix(0, 0))), cache)

	s := b.Resolve(context.Background())
	require.Equal(t, KindAnonymous, s.Kind)
	require.NotNil(t, s.LoadError)
	require.Equal(t, StageIdentity, s.LoadError.Stage)
	_, ok := marker(t, cache)
	require.True(t, ok, "a transient failure must not clear the marker")
}

func TestResolve_OrphanSurfacesAsNoProfile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	// Profile write fails and the provider cannot roll the identity back.
	p := provisioning.NewProvisioner(nonDeletingProvider{f.client}, writeFailingStore{f.profile}, nil, f.clk)
	_, err := p.Provision(ctx, domain.RegistrationDraft{
		Identifier:           "newuser",
		GivenName:            "Ana",
		FamilyName:           "Lopez",
		BirthDate:            "2006-03-15",
		Email:                "ana@example.com",
		Password:             "secret1",
		PasswordConfirmation: "secret1",
	})
	var pe *provisioning.Error
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.Retained())

	// Next bootstrap, with the real store.
	s := f.b.Resolve(ctx)
	require.Equal(t, KindAuthenticatedNoProfile, s.Kind)
	require.NotEqual(t, KindAuthenticatedWithProfile, s.Kind)
	require.Nil(t, s.Profile)
}

func TestSignInAndSignOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	cred, err := f.dir.Client(memcache.NewCache()).CreateIdentity(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	_, err = f.profile.WriteProfile(ctx, cred.Subject, domain.UserProfile{Identifier: "newuser"})
	require.NoError(t, err)

	_, err = f.b.SignIn(ctx, "ana@example.com", "wrong-pass")
	require.ErrorIs(t, err, identityprovider.ErrInvalidCredentials)
	_, ok := marker(t, f.cache)
	require.False(t, ok)

	s, err := f.b.SignIn(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, KindAuthenticatedWithProfile, s.Kind)

	email, ok, err := f.b.Marker(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ana@example.com", email)

	require.NoError(t, f.b.SignOut(ctx))
	_, ok = marker(t, f.cache)
	require.False(t, ok)
	require.Equal(t, KindAnonymous, f.b.Resolve(ctx).Kind)

	// The profile is untouched by sign-out.
	_, err = f.profile.ReadProfile(ctx, cred.Subject)
	require.NoError(t, err)
}

func TestSignOut_ClearsMarkerEvenIfProviderFails(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	idp := mocks.NewMockProvider(ctrl)
	idp.EXPECT().SignOut(gomock.Any()).Return(identityprovider.ErrNetwork)

	cache := memcache.NewCache()
	require.NoError(t, cache.Set(context.Background(), sessioncache.MarkerKey, "ana@example.com"))
	b := NewBootstrapper(idp, nil, cache)

	err := b.SignOut(context.Background())
	require.True(t, errors.Is(err, identityprovider.ErrNetwork))
	_, ok := marker(t, cache)
	require.False(t, ok)
}

func TestEstablish(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	_, err := f.b.Establish(ctx)
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	require.ErrorIs(t, err, ErrNoSession)

	_, err = f.client.CreateIdentity(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)
	s, err := f.b.Establish(ctx)
	require.NoError(t, err)
	assert.Equal(t, KindAuthenticatedNoProfile, s.Kind)
}
