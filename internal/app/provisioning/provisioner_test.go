package provisioning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	memclock "github.com/eskate/storefront-api/internal/adapters/memory/clock"
	memidentity "github.com/eskate/storefront-api/internal/adapters/memory/identityprovider"
	memorphans "github.com/eskate/storefront-api/internal/adapters/memory/orphanreport"
	memprofiles "github.com/eskate/storefront-api/internal/adapters/memory/profilestore"
	memcache "github.com/eskate/storefront-api/internal/adapters/memory/sessioncache"
	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/platform/metrics"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider/mocks"
	"github.com/eskate/storefront-api/internal/ports/out/profilestore"
)

var provisionNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

func draft() domain.RegistrationDraft {
	return domain.RegistrationDraft{
		Identifier:           "newuser",
		GivenName:            " Ana ",
		FamilyName:           "Lopez",
		BirthDate:            "2006-03-15",
		Email:                "ana@example.com",
		Password:             "secret1",
		PasswordConfirmation: "secret1",
	}
}

// failingStore fails every profile write with err after running before.
type failingStore struct {
	profilestore.Store
	err    error
	before func(ctx context.Context)
	writes int
}

func (s *failingStore) WriteProfile(ctx context.Context, subject domain.SubjectID, p domain.UserProfile) (domain.UserProfile, error) {
	s.writes++
	if s.before != nil {
		s.before(ctx)
	}
	return domain.UserProfile{}, s.err
}

// unwritableCache rejects every Set.
type unwritableCache struct {
	*memcache.Cache
}

func (unwritableCache) Set(context.Context, string, string) error {
	return errors.New("cache read-only")
}

// deletingProvider is a provider that can also delete identities.
type deletingProvider struct {
	*mocks.MockProvider
	*mocks.MockDeleter
}

func TestProvision_Succeeds(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	idp := mocks.NewMockProvider(ctrl)
	idp.EXPECT().
		CreateIdentity(gomock.Any(), "ana@example.com", "secret1").
		Return(identityprovider.Credential{Subject: "sub-1", Email: "ana@example.com"}, nil)

	clk := memclock.NewManualClock(provisionNow)
	store := memprofiles.NewStore(clk)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := NewProvisioner(idp, store, nil, clk, WithMetrics(m))

	got, err := p.Provision(context.Background(), draft())
	require.NoError(t, err)
	assert.Equal(t, domain.SubjectID("sub-1"), got.SubjectID)
	assert.Equal(t, domain.Identifier("newuser"), got.Identifier)
	assert.Equal(t, "Ana", got.GivenName)
	assert.Equal(t, time.Date(2006, time.March, 15, 0, 0, 0, 0, time.UTC), got.BirthDate)
	assert.Equal(t, provisionNow, got.CreatedAt)

	stored, err := store.ReadProfile(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, got, stored)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProvisionTotal.WithLabelValues("succeeded")))
}

func TestProvision_IdentityFailureWritesNothing(t *testing.T) {
	t.Parallel()

	for _, cause := range []error{
		identityprovider.ErrEmailInUse,
		identityprovider.ErrWeakPassword,
		identityprovider.ErrNetwork,
	} {
		t.Run(cause.Error(), func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			idp := mocks.NewMockProvider(ctrl)
			idp.EXPECT().CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any()).Return(identityprovider.Credential{}, cause)

			clk := memclock.NewManualClock(provisionNow)
			store := memprofiles.NewStore(clk)
			p := NewProvisioner(idp, store, nil, clk)

			_, err := p.Provision(context.Background(), draft())
			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, KindIdentityCreationFailed, pe.Kind)
			assert.Equal(t, CompensationNone, pe.Compensation)
			assert.False(t, pe.Retained())
			assert.ErrorIs(t, err, cause)
			assert.Empty(t, store.List())
		})
	}
}

func TestProvision_InvalidDraftNeverReachesProvider(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	idp := mocks.NewMockProvider(ctrl)
	clk := memclock.NewManualClock(provisionNow)
	p := NewProvisioner(idp, memprofiles.NewStore(clk), nil, clk)

	d := draft()
	d.BirthDate = "not-a-date"
	_, err := p.Provision(context.Background(), d)
	require.ErrorIs(t, err, ErrInvalidDraft)
}

func TestProvision_ProfileFailureDeletesIdentity(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	idp := deletingProvider{mocks.NewMockProvider(ctrl), mocks.NewMockDeleter(ctrl)}
	idp.MockProvider.EXPECT().
		CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(identityprovider.Credential{Subject: "sub-1", Email: "ana@example.com"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The caller gives up while the profile write is in flight; the rollback
	// must still run.
	idp.MockDeleter.EXPECT().
		DeleteIdentity(gomock.Any(), domain.SubjectID("sub-1")).
		DoAndReturn(func(ctx context.Context, _ domain.SubjectID) error {
			require.NoError(t, ctx.Err())
			_, hasDeadline := ctx.Deadline()
			require.True(t, hasDeadline, "compensation must be bounded")
			return nil
		}).
		Times(1)

	clk := memclock.NewManualClock(provisionNow)
	store := &failingStore{
		Store:  memprofiles.NewStore(clk),
		err:    profilestore.ErrUnavailable,
		before: func(context.Context) { cancel() },
	}
	orphans := memorphans.NewReporter()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := NewProvisioner(idp, store, orphans, clk, WithMetrics(m), WithCompensationTimeout(time.Second))

	_, err := p.Provision(ctx, draft())
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindProfilePersistenceFailed, pe.Kind)
	assert.Equal(t, CompensationDeleted, pe.Compensation)
	assert.False(t, pe.Retained())
	assert.ErrorIs(t, err, profilestore.ErrUnavailable)
	assert.Empty(t, orphans.Orphans())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompensationTotal.WithLabelValues("deleted")))
}

func TestProvision_AlreadyDeletedIdentityCountsAsDeleted(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	idp := deletingProvider{mocks.NewMockProvider(ctrl), mocks.NewMockDeleter(ctrl)}
	idp.MockProvider.EXPECT().CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(identityprovider.Credential{Subject: "sub-1"}, nil)
	idp.MockDeleter.EXPECT().DeleteIdentity(gomock.Any(), domain.SubjectID("sub-1")).
		Return(identityprovider.ErrNotFound)

	clk := memclock.NewManualClock(provisionNow)
	p := NewProvisioner(idp, &failingStore{err: profilestore.ErrPermissionDenied}, nil, clk)

	_, err := p.Provision(context.Background(), draft())
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CompensationDeleted, pe.Compensation)
}

func TestProvision_CompensationUnavailableReportsOrphan(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	idp := mocks.NewMockProvider(ctrl)
	idp.EXPECT().CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(identityprovider.Credential{Subject: "sub-1", Email: "ana@example.com"}, nil)

	clk := memclock.NewManualClock(provisionNow)
	orphans := memorphans.NewReporter()
	p := NewProvisioner(idp, &failingStore{err: profilestore.ErrPermissionDenied}, orphans, clk)

	_, err := p.Provision(context.Background(), draft())
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CompensationUnavailable, pe.Compensation)
	assert.True(t, pe.Retained())
	assert.Equal(t, domain.SubjectID("sub-1"), pe.Subject)

	got := orphans.Orphans()
	require.Len(t, got, 1)
	assert.Equal(t, domain.SubjectID("sub-1"), got[0].Subject)
	assert.Equal(t, "ana@example.com", got[0].Email)
	assert.Equal(t, "newuser", got[0].Identifier)
	assert.Equal(t, "unavailable", got[0].Compensation)
	assert.Equal(t, provisionNow, got[0].DetectedAt)
	assert.Contains(t, got[0].Cause, "permission denied")
}

func TestProvision_CompensationFailureIsDistinct(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	idp := deletingProvider{mocks.NewMockProvider(ctrl), mocks.NewMockDeleter(ctrl)}
	idp.MockProvider.EXPECT().CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(identityprovider.Credential{Subject: "sub-1"}, nil)
	deleteErr := errors.New("delete refused")
	idp.MockDeleter.EXPECT().DeleteIdentity(gomock.Any(), gomock.Any()).Return(deleteErr)

	clk := memclock.NewManualClock(provisionNow)
	orphans := memorphans.NewReporter()
	p := NewProvisioner(idp, &failingStore{err: profilestore.ErrUnavailable}, orphans, clk)

	_, err := p.Provision(context.Background(), draft())
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CompensationFailed, pe.Compensation)
	assert.ErrorIs(t, pe.CompensationErr, deleteErr)
	assert.True(t, pe.Retained())
	assert.Contains(t, pe.Error(), "compensation failed")
	assert.Len(t, orphans.Orphans(), 1)
}

func TestProvision_UnstorableTokenRollsIdentityBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := memclock.NewManualClock(provisionNow)
	dir, err := memidentity.NewDirectory(clk, memidentity.Options{TokenSecret: []byte("k"), HashCost: bcrypt.MinCost})
	require.NoError(t, err)
	store := memprofiles.NewStore(clk)
	orphans := memorphans.NewReporter()

	p := NewProvisioner(dir.Client(unwritableCache{memcache.NewCache()}), store, orphans, clk)
	_, err = p.Provision(ctx, draft())
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindIdentityCreationFailed, pe.Kind)
	assert.False(t, pe.Retained())
	assert.ErrorIs(t, err, identityprovider.ErrNetwork)
	assert.Empty(t, orphans.Orphans())
	assert.Empty(t, store.List())

	// The email is free again.
	p = NewProvisioner(dir.Client(memcache.NewCache()), store, orphans, clk)
	got, err := p.Provision(ctx, draft())
	require.NoError(t, err)
	assert.True(t, dir.Exists(got.SubjectID))
}

func TestProvision_RetainedIdentityIsReportedAsOrphan(t *testing.T) {
	t.Parallel()

	cred := identityprovider.Credential{Subject: "sub-1", Email: "ana@example.com"}
	rollbackErr := errors.New("delete refused")
	ctrl := gomock.NewController(t)
	idp := mocks.NewMockProvider(ctrl)
	idp.EXPECT().CreateIdentity(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(identityprovider.Credential{}, &identityprovider.RetainedError{
			Credential:  cred,
			Err:         identityprovider.ErrNetwork,
			RollbackErr: rollbackErr,
		})

	clk := memclock.NewManualClock(provisionNow)
	store := memprofiles.NewStore(clk)
	orphans := memorphans.NewReporter()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := NewProvisioner(idp, store, orphans, clk, WithMetrics(m))

	_, err := p.Provision(context.Background(), draft())
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindProfilePersistenceFailed, pe.Kind)
	assert.Equal(t, CompensationFailed, pe.Compensation)
	assert.Equal(t, domain.SubjectID("sub-1"), pe.Subject)
	assert.ErrorIs(t, pe.CompensationErr, rollbackErr)
	assert.True(t, pe.Retained())
	assert.Empty(t, store.List())

	got := orphans.Orphans()
	require.Len(t, got, 1)
	assert.Equal(t, domain.SubjectID("sub-1"), got[0].Subject)
	assert.Equal(t, "ana@example.com", got[0].Email)
	assert.Equal(t, "newuser", got[0].Identifier)
	assert.Equal(t, "failed", got[0].Compensation)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProvisionTotal.WithLabelValues("identity_retained")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CompensationTotal.WithLabelValues("failed")))
}

func TestProvision_StoreIsFinalArbiterOfIdentifier(t *testing.T) {
	t.Parallel()

	clk := memclock.NewManualClock(provisionNow)
	dir, err := memidentity.NewDirectory(clk, memidentity.Options{TokenSecret: []byte("k"), HashCost: bcrypt.MinCost})
	require.NoError(t, err)
	store := memprofiles.NewStore(clk)

	// Both devices saw "newuser" as available and submit at once.
	emails := []string{"ana@example.com", "bea@example.com"}
	errs := make([]error, len(emails))
	var wg sync.WaitGroup
	for i, email := range emails {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			p := NewProvisioner(dir.Client(memcache.NewCache()), store, nil, clk)
			d := draft()
			d.Email = email
			_, errs[i] = p.Provision(context.Background(), d)
		}(i, email)
	}
	wg.Wait()

	var ok, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, profilestore.ErrIdentifierTaken):
			lost++
			var pe *Error
			require.ErrorAs(t, err, &pe)
			require.Equal(t, CompensationDeleted, pe.Compensation)
			require.False(t, dir.Exists(pe.Subject), "loser's identity must be rolled back")
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, lost)
	require.Len(t, store.List(), 1)
}

func TestCompleteProfile_WritesUnderSignedInIdentity(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	idp := mocks.NewMockProvider(ctrl)
	idp.EXPECT().CurrentIdentity(gomock.Any()).
		Return(identityprovider.Credential{Subject: "sub-1", Email: "ana@example.com"}, true, nil).
		Times(2)

	clk := memclock.NewManualClock(provisionNow)
	store := memprofiles.NewStore(clk)
	p := NewProvisioner(idp, store, nil, clk)

	first, err := p.CompleteProfile(context.Background(), draft())
	require.NoError(t, err)
	require.Equal(t, domain.SubjectID("sub-1"), first.SubjectID)

	// A retry after a lost response returns the stored record unchanged.
	clk.Advance(time.Hour)
	second, err := p.CompleteProfile(context.Background(), draft())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, provisionNow, second.CreatedAt)
}

func TestCompleteProfile_RequiresSignedInIdentity(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	idp := mocks.NewMockProvider(ctrl)
	idp.EXPECT().CurrentIdentity(gomock.Any()).Return(identityprovider.Credential{}, false, nil)

	clk := memclock.NewManualClock(provisionNow)
	p := NewProvisioner(idp, memprofiles.NewStore(clk), nil, clk)

	_, err := p.CompleteProfile(context.Background(), draft())
	require.ErrorIs(t, err, ErrNotSignedIn)
}

func TestCompleteProfile_WriteFailureKeepsIdentity(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	idp := mocks.NewMockProvider(ctrl)
	idp.EXPECT().CurrentIdentity(gomock.Any()).Return(identityprovider.Credential{Subject: "sub-1"}, true, nil)

	clk := memclock.NewManualClock(provisionNow)
	store := &failingStore{Store: memprofiles.NewStore(clk), err: profilestore.ErrUnavailable}
	p := NewProvisioner(idp, store, nil, clk)

	_, err := p.CompleteProfile(context.Background(), draft())
	var pe *Error
	require.ErrorAs(t, err, &pe)
	require.Equal(t, KindProfilePersistenceFailed, pe.Kind)
	require.True(t, pe.Retained())
	require.Equal(t, 1, store.writes)
}
