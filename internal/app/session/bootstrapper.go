// Package session resolves who is signed in on a device and keeps the
// device's session marker in step with the identity provider.
package session

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/eskate/storefront-api/internal/platform/metrics"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/profilestore"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

const tracerName = "github.com/eskate/storefront-api/internal/app/session"

type Bootstrapper struct {
	identities identityprovider.Provider
	profiles   profilestore.Store
	cache      sessioncache.Cache

	log     *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Bootstrapper)

func WithLogger(log *zap.Logger) Option {
	return func(b *Bootstrapper) {
		if log != nil {
			b.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bootstrapper) { b.metrics = m }
}

func NewBootstrapper(identities identityprovider.Provider, profiles profilestore.Store, cache sessioncache.Cache, opts ...Option) *Bootstrapper {
	b := &Bootstrapper{
		identities: identities,
		profiles:   profiles,
		cache:      cache,
		log:        zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Resolve determines the session state. It never fails: transient read
// errors are carried in State.LoadError and never sign the user out.
func (b *Bootstrapper) Resolve(ctx context.Context) State {
	ctx, span := b.tracer.Start(ctx, "session.Resolve")
	defer span.End()

	s := b.resolve(ctx)
	span.SetAttributes(attribute.String("storefront.session.kind", string(s.Kind)))
	if s.LoadError != nil {
		span.RecordError(s.LoadError)
	}
	b.metrics.IncrementSessionResolution(string(s.Kind))
	return s
}

func (b *Bootstrapper) resolve(ctx context.Context) State {
	cred, ok, err := b.identities.CurrentIdentity(ctx)
	if err != nil {
		b.log.Warn("session resolution: identity read failed", zap.Error(err))
		s := Anonymous()
		s.LoadError = &ResolutionError{Stage: StageIdentity, Err: err}
		return s
	}
	if !ok {
		b.clearMarker(ctx)
		return Anonymous()
	}

	b.reconcileMarker(ctx, cred.Email)

	s := State{Email: cred.Email, Subject: cred.Subject}
	profile, err := b.profiles.ReadProfile(ctx, cred.Subject)
	switch {
	case err == nil:
		s.Kind = KindAuthenticatedWithProfile
		s.Profile = &profile
	case errors.Is(err, profilestore.ErrNotFound):
		s.Kind = KindAuthenticatedNoProfile
	default:
		b.log.Warn("session resolution: profile read failed",
			zap.String("subject", string(cred.Subject)),
			zap.Error(err),
		)
		s.Kind = KindAuthenticatedNoProfile
		s.LoadError = &ResolutionError{Stage: StageProfile, Err: err}
	}
	return s
}

// Establish resolves the session right after a registration or profile
// completion and reports an error unless an identity is signed in.
func (b *Bootstrapper) Establish(ctx context.Context) (State, error) {
	s := b.Resolve(ctx)
	switch {
	case s.LoadError != nil:
		return s, s.LoadError
	case !s.Authenticated():
		return s, &ResolutionError{Stage: StageIdentity, Err: ErrNoSession}
	}
	return s, nil
}

// SignIn authenticates with the identity provider, records the session
// marker and resolves the resulting session.
func (b *Bootstrapper) SignIn(ctx context.Context, email, password string) (State, error) {
	cred, err := b.identities.SignIn(ctx, email, password)
	if err != nil {
		return Anonymous(), fmt.Errorf("sign in: %w", err)
	}
	b.reconcileMarker(ctx, cred.Email)
	b.log.Info("signed in", zap.String("subject", string(cred.Subject)))
	return b.Resolve(ctx), nil
}

// SignOut ends the identity session and clears the marker. The profile is
// left untouched.
func (b *Bootstrapper) SignOut(ctx context.Context) error {
	var errs []error
	if err := b.identities.SignOut(ctx); err != nil {
		errs = append(errs, fmt.Errorf("sign out: %w", err))
	}
	if err := b.cache.Delete(ctx, sessioncache.MarkerKey); err != nil {
		errs = append(errs, fmt.Errorf("clear session marker: %w", err))
	}
	return errors.Join(errs...)
}

// Marker returns the cached verified email, if a session was recorded on
// this device. It is a routing shortcut, not proof of authentication.
func (b *Bootstrapper) Marker(ctx context.Context) (string, bool, error) {
	return b.cache.Get(ctx, sessioncache.MarkerKey)
}

func (b *Bootstrapper) reconcileMarker(ctx context.Context, email string) {
	cur, ok, err := b.cache.Get(ctx, sessioncache.MarkerKey)
	if err == nil && ok && cur == email {
		return
	}
	if err := b.cache.Set(ctx, sessioncache.MarkerKey, email); err != nil {
		b.log.Warn("session marker write failed", zap.Error(err))
	}
}

func (b *Bootstrapper) clearMarker(ctx context.Context) {
	if _, ok, err := b.cache.Get(ctx, sessioncache.MarkerKey); err != nil || !ok {
		return
	}
	if err := b.cache.Delete(ctx, sessioncache.MarkerKey); err != nil {
		b.log.Warn("stale session marker not cleared", zap.Error(err))
	}
}
