// Package contracttest holds behaviour suites shared by every adapter of a port.
package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eskate/storefront-api/internal/domain"
	idempotencyport "github.com/eskate/storefront-api/internal/ports/out/idempotency"
	profilestoreport "github.com/eskate/storefront-api/internal/ports/out/profilestore"
	sessioncacheport "github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

type CleanupFunc = func()

type ProfileStoreFactory func(t *testing.T) (profilestoreport.Store, CleanupFunc)
type SessionCacheFactory func(t *testing.T) (sessioncacheport.Cache, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:      idempotencyport.Key("k-" + uuid.NewString()),
		Device:   domain.DeviceID("device-1"),
		Method:   "POST",
		Route:    "/v1/registration/submit",
		BodyHash: "",
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get(unknown) ok=%v err=%v, want ok=false", ok, err)
	}

	rec := idempotencyport.Record{
		StatusCode:  201,
		ContentType: "application/json",
		Body:        []byte(`{"kind":"authenticated_with_profile"}`),
		CreatedAt:   time.Unix(123, 0).UTC(),
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Body) != string(rec.Body) || got.ContentType != rec.ContentType || got.StatusCode != rec.StatusCode {
		t.Fatalf("unexpected record: %+v", got)
	}

	// A different device never sees the record.
	other := fp
	other.Device = "device-2"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("Get(other device) ok=%v err=%v, want ok=false", ok, err)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.Body = []byte(`{"kind":"anonymous"}`)
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || string(got.Body) != string(rec2.Body) {
		t.Fatalf("expected overwritten record, got ok=%v err=%v body=%q", ok, err, string(got.Body))
	}
}

func RunProfileStore(t *testing.T, newStore ProfileStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	sub1 := domain.SubjectID(uuid.NewString())
	sub2 := domain.SubjectID(uuid.NewString())
	ident := "user-" + uuid.NewString()[:8]

	if _, err := store.ReadProfile(ctx, sub1); !errors.Is(err, profilestoreport.ErrNotFound) {
		t.Fatalf("ReadProfile(missing) err=%v, want ErrNotFound", err)
	}
	found, err := store.QueryByField(ctx, profilestoreport.FieldIdentifier, ident)
	if err != nil {
		t.Fatalf("QueryByField(empty) err=%v", err)
	}
	if len(found) != 0 {
		t.Fatalf("QueryByField(empty) len=%d, want 0", len(found))
	}

	birth := time.Date(2006, time.March, 15, 0, 0, 0, 0, time.UTC)
	p := domain.UserProfile{
		Identifier: domain.Identifier(ident),
		GivenName:  "Ana",
		FamilyName: "Lopez",
		BirthDate:  birth,
	}
	created, err := store.WriteProfile(ctx, sub1, p)
	if err != nil {
		t.Fatalf("WriteProfile: %v", err)
	}
	if created.SubjectID != sub1 {
		t.Fatalf("SubjectID=%q, want %q", created.SubjectID, sub1)
	}
	if created.CreatedAt.IsZero() {
		t.Fatalf("expected CreatedAt to be assigned by the store")
	}

	got, err := store.ReadProfile(ctx, sub1)
	if err != nil {
		t.Fatalf("ReadProfile: %v", err)
	}
	if got.Identifier != p.Identifier || got.GivenName != "Ana" || got.FamilyName != "Lopez" {
		t.Fatalf("ReadProfile()=%+v, want %+v", got, p)
	}
	if !got.BirthDate.Equal(birth) {
		t.Fatalf("BirthDate=%v, want %v", got.BirthDate, birth)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("CreatedAt=%v, want %v", got.CreatedAt, created.CreatedAt)
	}

	found, err = store.QueryByField(ctx, profilestoreport.FieldIdentifier, ident)
	if err != nil {
		t.Fatalf("QueryByField: %v", err)
	}
	if len(found) != 1 || found[0].SubjectID != sub1 {
		t.Fatalf("QueryByField()=%+v, want one profile for %q", found, sub1)
	}

	// The subject is bound once and never reassigned.
	again := p
	again.Identifier = domain.Identifier(ident + "-2")
	if _, err := store.WriteProfile(ctx, sub1, again); !errors.Is(err, profilestoreport.ErrSubjectAlreadyBound) {
		t.Fatalf("WriteProfile(same subject) err=%v, want ErrSubjectAlreadyBound", err)
	}
	got, err = store.ReadProfile(ctx, sub1)
	if err != nil || got.Identifier != p.Identifier || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("profile changed by rejected write: %+v err=%v", got, err)
	}

	// The store, not the client pre-check, decides identifier ownership.
	if _, err := store.WriteProfile(ctx, sub2, p); !errors.Is(err, profilestoreport.ErrIdentifierTaken) {
		t.Fatalf("WriteProfile(same identifier) err=%v, want ErrIdentifierTaken", err)
	}
	if _, err := store.ReadProfile(ctx, sub2); !errors.Is(err, profilestoreport.ErrNotFound) {
		t.Fatalf("ReadProfile(loser) err=%v, want ErrNotFound", err)
	}

	if _, err := store.QueryByField(ctx, "email", "ana@example.com"); !errors.Is(err, profilestoreport.ErrUnsupportedField) {
		t.Fatalf("QueryByField(email) err=%v, want ErrUnsupportedField", err)
	}
}

func RunSessionCache(t *testing.T, newCache SessionCacheFactory) {
	t.Helper()
	ctx := context.Background()

	cache, cleanup := newCache(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	key := "device/" + uuid.NewString() + "/" + sessioncacheport.MarkerKey
	if _, ok, err := cache.Get(ctx, key); err != nil || ok {
		t.Fatalf("Get(missing) ok=%v err=%v, want ok=false", ok, err)
	}
	if err := cache.Delete(ctx, key); err != nil {
		t.Fatalf("Delete(missing) err=%v", err)
	}

	if err := cache.Set(ctx, key, "ana@example.com"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := cache.Get(ctx, key)
	if err != nil || !ok || v != "ana@example.com" {
		t.Fatalf("Get()=%q ok=%v err=%v", v, ok, err)
	}

	if err := cache.Set(ctx, key, "bea@example.com"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, ok, err = cache.Get(ctx, key)
	if err != nil || !ok || v != "bea@example.com" {
		t.Fatalf("Get() after overwrite=%q ok=%v err=%v", v, ok, err)
	}

	// Empty values are values, not absence.
	empty := key + "-empty"
	if err := cache.Set(ctx, empty, ""); err != nil {
		t.Fatalf("Set empty: %v", err)
	}
	if _, ok, err := cache.Get(ctx, empty); err != nil || !ok {
		t.Fatalf("Get(empty value) ok=%v err=%v, want ok=true", ok, err)
	}

	if err := cache.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := cache.Get(ctx, key); err != nil || ok {
		t.Fatalf("Get(deleted) ok=%v err=%v, want ok=false", ok, err)
	}
}
