package registration

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
	"github.com/eskate/storefront-api/internal/app/provisioning"
	"github.com/eskate/storefront-api/internal/app/session"
	"github.com/eskate/storefront-api/internal/app/uniqueness"
	"github.com/eskate/storefront-api/internal/app/validation"
	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/profilestore"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

type device struct {
	cache    *memcache.Cache
	workflow *Workflow
	sessions *session.Bootstrapper
}

// newDevice wires one device. wrap, if set, decorates the device's identity
// provider client.
func newDevice(t *testing.T, clk *memclock.ManualClock, dir *memidentity.Directory, store profilestore.Store, wrap func(identityprovider.Provider) identityprovider.Provider) *device {
	t.Helper()
	cache := memcache.NewCache()
	var idp identityprovider.Provider = dir.Client(cache)
	if wrap != nil {
		idp = wrap(idp)
	}
	v := validation.NewValidator(validation.DefaultSchema(0), clk)
	form := NewForm(v, uniqueness.NewChecker(store))
	sessions := session.NewBootstrapper(idp, store, cache)
	accounts := provisioning.NewProvisioner(idp, store, nil, clk)
	return &device{
		cache:    cache,
		workflow: NewWorkflow(form, accounts, sessions, nil),
		sessions: sessions,
	}
}

func newEnv(t *testing.T) (*memclock.ManualClock, *memidentity.Directory, *memprofiles.Store) {
	t.Helper()
	clk := memclock.NewManualClock(time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC))
	dir, err := memidentity.NewDirectory(clk, memidentity.Options{TokenSecret: []byte("k"), HashCost: bcrypt.MinCost})
	require.NoError(t, err)
	return clk, dir, memprofiles.NewStore(clk)
}

func TestWorkflow_RegisterEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk, dir, store := newEnv(t)
	d := newDevice(t, clk, dir, store, nil)

	twentyYearsAgo := clk.Now().AddDate(-20, 0, 0).Format(time.DateOnly)
	fill(t, d.workflow.Form(), domain.RegistrationDraft{
		Identifier:           "newuser",
		GivenName:            "Ana",
		FamilyName:           "Lopez",
		BirthDate:            twentyYearsAgo,
		Email:                "ana@example.com",
		Password:             "secret1",
		PasswordConfirmation: "secret1",
	})
	createdAt := clk.Now()

	st, err := d.workflow.Register(ctx)
	require.NoError(t, err)
	require.Equal(t, session.KindAuthenticatedWithProfile, st.Kind)
	require.Equal(t, domain.Identifier("newuser"), st.Profile.Identifier)
	require.Equal(t, createdAt, st.Profile.CreatedAt)

	email, ok, err := d.cache.Get(ctx, sessioncache.MarkerKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ana@example.com", email)

	// The form is cleared once the account exists.
	require.Equal(t, domain.RegistrationDraft{}, d.workflow.Form().Snapshot().Draft)

	// Later bootstraps see the same record: createdAt was set once.
	clk.Advance(48 * time.Hour)
	again := d.sessions.Resolve(ctx)
	require.Equal(t, session.KindAuthenticatedWithProfile, again.Kind)
	require.Equal(t, createdAt, again.Profile.CreatedAt)
	require.Len(t, store.List(), 1)
}

func TestWorkflow_BlockedFormNeverProvisions(t *testing.T) {
	t.Parallel()

	clk, dir, store := newEnv(t)
	d := newDevice(t, clk, dir, store, nil)

	dr := validDraft()
	dr.PasswordConfirmation = "different"
	fill(t, d.workflow.Form(), dr)

	st, err := d.workflow.Register(context.Background())
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	require.Equal(t, session.KindAnonymous, st.Kind)
	require.Empty(t, store.List())
}

func TestWorkflow_DuplicateEmailFailsCleanly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk, dir, store := newEnv(t)
	_, err := dir.Client(memcache.NewCache()).CreateIdentity(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)

	d := newDevice(t, clk, dir, store, nil)
	fill(t, d.workflow.Form(), validDraft())

	st, err := d.workflow.Register(ctx)
	var pe *provisioning.Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, provisioning.KindIdentityCreationFailed, pe.Kind)
	require.ErrorIs(t, err, identityprovider.ErrEmailInUse)
	require.Equal(t, session.KindAnonymous, st.Kind)
	require.Empty(t, store.List())
}

// flakyWrites fails profile writes while failing is set.
type flakyWrites struct {
	profilestore.Store
	failing bool
}

func (s *flakyWrites) WriteProfile(ctx context.Context, subject domain.SubjectID, p domain.UserProfile) (domain.UserProfile, error) {
	if s.failing {
		return domain.UserProfile{}, profilestore.ErrUnavailable
	}
	return s.Store.WriteProfile(ctx, subject, p)
}

// keepIdentities hides the wrapped provider's ability to delete identities.
type keepIdentities struct {
	identityprovider.Provider
}

func TestWorkflow_OrphanIsCompletedUnderSameIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk, dir, profiles := newEnv(t)
	store := &flakyWrites{Store: profiles, failing: true}
	d := newDevice(t, clk, dir, store, func(p identityprovider.Provider) identityprovider.Provider {
		return keepIdentities{p}
	})
	fill(t, d.workflow.Form(), validDraft())

	st, err := d.workflow.Register(ctx)
	var pe *provisioning.Error
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.Retained())
	require.Equal(t, session.KindAuthenticatedNoProfile, st.Kind)
	orphan := pe.Subject

	// The store recovers; the user retries the profile, not the registration.
	store.failing = false
	st, err = d.workflow.CompleteProfile(ctx)
	require.NoError(t, err)
	require.Equal(t, session.KindAuthenticatedWithProfile, st.Kind)
	require.Equal(t, orphan, st.Profile.SubjectID)
	require.True(t, dir.Exists(orphan))
}
