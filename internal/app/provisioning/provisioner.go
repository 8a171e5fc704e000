// Package provisioning creates accounts: an identity at the identity provider,
// then a profile keyed by its subject id in the profile store.
//
// The two writes cannot be made atomic. When the profile write fails the
// provisioner deletes the new identity if the provider supports it, and
// reports the orphan otherwise.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/eskate/storefront-api/internal/app/validation"
	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/platform/metrics"
	clockport "github.com/eskate/storefront-api/internal/ports/out/clock"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/orphanreport"
	"github.com/eskate/storefront-api/internal/ports/out/profilestore"
)

const tracerName = "github.com/eskate/storefront-api/internal/app/provisioning"

const defaultCompensationTimeout = 10 * time.Second

type Provisioner struct {
	identities identityprovider.Provider
	profiles   profilestore.Store
	orphans    orphanreport.Reporter
	clk        clockport.Clock

	log     *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	loc     *time.Location

	compensationTimeout time.Duration
}

type Option func(*Provisioner)

func WithLogger(log *zap.Logger) Option {
	return func(p *Provisioner) {
		if log != nil {
			p.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provisioner) { p.metrics = m }
}

// WithCompensationTimeout bounds the compensating delete. Defaults to 10s.
func WithCompensationTimeout(d time.Duration) Option {
	return func(p *Provisioner) {
		if d > 0 {
			p.compensationTimeout = d
		}
	}
}

// WithLocation sets the location birth dates are interpreted in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(p *Provisioner) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// NewProvisioner wires the provisioner. A nil reporter drops orphan reports
// after logging them.
func NewProvisioner(identities identityprovider.Provider, profiles profilestore.Store, orphans orphanreport.Reporter, clk clockport.Clock, opts ...Option) *Provisioner {
	p := &Provisioner{
		identities:          identities,
		profiles:            profiles,
		orphans:             orphans,
		clk:                 clk,
		log:                 zap.NewNop(),
		tracer:              otel.Tracer(tracerName),
		loc:                 time.UTC,
		compensationTimeout: defaultCompensationTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provision creates the identity, then the profile. It expects a draft that
// passed submission validation.
func (p *Provisioner) Provision(ctx context.Context, draft domain.RegistrationDraft) (domain.UserProfile, error) {
	ctx, span := p.tracer.Start(ctx, "provisioning.Provision",
		trace.WithAttributes(attribute.String("storefront.identifier", strings.TrimSpace(draft.Identifier))))
	defer span.End()
	start := time.Now()

	profile, err := p.profileFromDraft(draft)
	if err != nil {
		p.metrics.ObserveProvision("invalid_draft", start)
		recordSpanError(span, err)
		return domain.UserProfile{}, err
	}

	email := domain.NormalizeEmail(draft.Email)
	cred, err := p.identities.CreateIdentity(ctx, email, draft.Password)
	var retained *identityprovider.RetainedError
	if errors.As(err, &retained) {
		p.metrics.ObserveProvision("identity_retained", start)
		e := p.retain(ctx, retained, profile)
		recordSpanError(span, e)
		return domain.UserProfile{}, e
	}
	if err != nil {
		p.metrics.ObserveProvision("identity_failed", start)
		p.log.Info("identity creation failed", zap.String("identifier", string(profile.Identifier)), zap.Error(err))
		e := &Error{Kind: KindIdentityCreationFailed, Err: err}
		recordSpanError(span, e)
		return domain.UserProfile{}, e
	}
	span.SetAttributes(attribute.String("storefront.subject", string(cred.Subject)))

	stored, err := p.profiles.WriteProfile(ctx, cred.Subject, profile)
	if err != nil {
		e := p.compensate(ctx, cred, profile, err)
		p.metrics.ObserveProvision("profile_failed", start)
		recordSpanError(span, e)
		return domain.UserProfile{}, e
	}

	p.metrics.ObserveProvision("succeeded", start)
	p.log.Info("account provisioned",
		zap.String("subject", string(stored.SubjectID)),
		zap.String("identifier", string(stored.Identifier)),
	)
	return stored, nil
}

// CompleteProfile writes the profile for the identity that is already signed
// in, without creating a new identity. It is the retry path for an orphaned
// identity. If a profile already exists for the subject it is returned as is,
// so createdAt is never set twice.
func (p *Provisioner) CompleteProfile(ctx context.Context, draft domain.RegistrationDraft) (domain.UserProfile, error) {
	ctx, span := p.tracer.Start(ctx, "provisioning.CompleteProfile")
	defer span.End()

	cred, ok, err := p.identities.CurrentIdentity(ctx)
	if err != nil {
		e := fmt.Errorf("read current identity: %w", err)
		recordSpanError(span, e)
		return domain.UserProfile{}, e
	}
	if !ok {
		recordSpanError(span, ErrNotSignedIn)
		return domain.UserProfile{}, ErrNotSignedIn
	}
	span.SetAttributes(attribute.String("storefront.subject", string(cred.Subject)))

	existing, err := p.profiles.ReadProfile(ctx, cred.Subject)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, profilestore.ErrNotFound):
		e := &Error{Kind: KindProfilePersistenceFailed, Subject: cred.Subject, Err: err}
		recordSpanError(span, e)
		return domain.UserProfile{}, e
	}

	profile, err := p.profileFromDraft(draft)
	if err != nil {
		recordSpanError(span, err)
		return domain.UserProfile{}, err
	}

	stored, err := p.profiles.WriteProfile(ctx, cred.Subject, profile)
	if errors.Is(err, profilestore.ErrSubjectAlreadyBound) {
		// A concurrent completion won.
		stored, err = p.profiles.ReadProfile(ctx, cred.Subject)
	}
	if err != nil {
		e := &Error{Kind: KindProfilePersistenceFailed, Subject: cred.Subject, Err: err}
		recordSpanError(span, e)
		return domain.UserProfile{}, e
	}

	p.log.Info("profile completed",
		zap.String("subject", string(stored.SubjectID)),
		zap.String("identifier", string(stored.Identifier)),
	)
	return stored, nil
}

// compensate runs after a failed profile write. The delete runs on a context
// detached from the caller so that a cancelled request cannot leave the
// orphan behind; it is bounded by the compensation timeout instead.
func (p *Provisioner) compensate(ctx context.Context, cred identityprovider.Credential, profile domain.UserProfile, writeErr error) *Error {
	e := &Error{
		Kind:    KindProfilePersistenceFailed,
		Subject: cred.Subject,
		Err:     writeErr,
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.compensationTimeout)
	defer cancel()

	deleter, ok := p.identities.(identityprovider.Deleter)
	if !ok {
		e.Compensation = CompensationUnavailable
	} else if err := deleter.DeleteIdentity(dctx, cred.Subject); err != nil && !errors.Is(err, identityprovider.ErrNotFound) {
		e.Compensation = CompensationFailed
		e.CompensationErr = err
	} else {
		e.Compensation = CompensationDeleted
	}
	p.metrics.IncrementCompensation(string(e.Compensation))

	if e.Compensation == CompensationDeleted {
		p.log.Warn("profile write failed; identity rolled back",
			zap.String("subject", string(cred.Subject)),
			zap.String("identifier", string(profile.Identifier)),
			zap.Error(writeErr),
		)
		return e
	}

	p.log.Error("orphaned identity: profile write failed and identity was kept",
		zap.String("subject", string(cred.Subject)),
		zap.String("identifier", string(profile.Identifier)),
		zap.String("compensation", string(e.Compensation)),
		zap.Error(writeErr),
		zap.NamedError("compensation_error", e.CompensationErr),
	)
	p.reportOrphan(dctx, cred, profile, e)
	return e
}

// retain handles an identity the provider created but could neither sign the
// device in as nor roll back. No profile was written for it.
func (p *Provisioner) retain(ctx context.Context, r *identityprovider.RetainedError, profile domain.UserProfile) *Error {
	e := &Error{
		Kind:            KindProfilePersistenceFailed,
		Compensation:    CompensationFailed,
		Subject:         r.Credential.Subject,
		Err:             r,
		CompensationErr: r.RollbackErr,
	}
	p.metrics.IncrementCompensation(string(e.Compensation))

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.compensationTimeout)
	defer cancel()

	p.log.Error("orphaned identity: sign-in after create failed and identity was kept",
		zap.String("subject", string(r.Credential.Subject)),
		zap.String("identifier", string(profile.Identifier)),
		zap.Error(r.Err),
		zap.NamedError("compensation_error", r.RollbackErr),
	)
	p.reportOrphan(dctx, r.Credential, profile, e)
	return e
}

func (p *Provisioner) reportOrphan(ctx context.Context, cred identityprovider.Credential, profile domain.UserProfile, e *Error) {
	if p.orphans == nil {
		return
	}
	o := orphanreport.Orphan{
		Subject:      cred.Subject,
		Email:        cred.Email,
		Identifier:   string(profile.Identifier),
		Cause:        e.Err.Error(),
		Compensation: string(e.Compensation),
		DetectedAt:   p.clk.Now().UTC(),
	}
	if err := p.orphans.ReportOrphan(ctx, o); err != nil {
		p.log.Error("orphan report failed", zap.String("subject", string(cred.Subject)), zap.Error(err))
	}
}

func (p *Provisioner) profileFromDraft(d domain.RegistrationDraft) (domain.UserProfile, error) {
	birth, err := validation.ParseDate(d.BirthDate, p.loc)
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("%w: birth date: %v", ErrInvalidDraft, err)
	}
	id := strings.TrimSpace(d.Identifier)
	if id == "" {
		return domain.UserProfile{}, fmt.Errorf("%w: identifier is empty", ErrInvalidDraft)
	}
	return domain.UserProfile{
		Identifier: domain.Identifier(id),
		GivenName:  domain.NormalizeHumanName(d.GivenName),
		FamilyName: domain.NormalizeHumanName(d.FamilyName),
		BirthDate:  time.Date(birth.Year(), birth.Month(), birth.Day(), 0, 0, 0, 0, time.UTC),
	}, nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
