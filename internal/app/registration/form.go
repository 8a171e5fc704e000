// Package registration owns the registration form of one device and the
// workflow that turns a submitted form into an account and a session.
package registration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eskate/storefront-api/internal/app/validation"
	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/platform/metrics"
)

// Checker is the asynchronous availability predicate run for the identifier.
type Checker interface {
	IsAvailable(ctx context.Context, identifier string) (bool, error)
}

const defaultCheckTimeout = 10 * time.Second

// Form holds the state of one registration form.
//
// Readers load the current Snapshot without locking. Writers serialise on mu
// and publish a replacement snapshot; a published snapshot is never modified.
// Every edit bumps the field's generation, and an async result is applied
// only if its generation is still current.
type Form struct {
	v       *validation.Validator
	checker Checker
	log     *zap.Logger
	metrics *metrics.Metrics

	checkTimeout time.Duration

	mu      sync.Mutex
	state   atomic.Pointer[Snapshot]
	pending map[domain.Field]*inflight
}

type inflight struct {
	generation uint64
	done       chan struct{}
}

type Option func(*Form)

func WithLogger(log *zap.Logger) Option {
	return func(f *Form) {
		if log != nil {
			f.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Form) { f.metrics = m }
}

// WithCheckTimeout bounds each availability check. Defaults to 10s.
func WithCheckTimeout(d time.Duration) Option {
	return func(f *Form) {
		if d > 0 {
			f.checkTimeout = d
		}
	}
}

// NewForm returns an empty form. A nil checker disables the availability check.
func NewForm(v *validation.Validator, checker Checker, opts ...Option) *Form {
	f := &Form{
		v:            v,
		checker:      checker,
		log:          zap.NewNop(),
		checkTimeout: defaultCheckTimeout,
		pending:      make(map[domain.Field]*inflight),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.state.Store(emptySnapshot(0, nil))
	return f
}

// Snapshot returns the current state.
func (f *Form) Snapshot() *Snapshot {
	return f.state.Load()
}

// Edit stores value for field. The field becomes touched and its previous
// verdict is dropped; any in-flight check for it becomes stale.
func (f *Form) Edit(field domain.Field, value string) (*Snapshot, error) {
	if _, ok := f.v.Schema().Field(field); !ok {
		return nil, ErrUnknownField
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.state.Load().next()
	s.Draft = s.Draft.With(field, value)

	st := s.fields[field]
	st.Generation++
	st.Dirty = true
	st.Status = FieldTouched
	s.fields[field] = st
	s.Outcome = s.Outcome.Without(field)
	delete(s.remote, field)
	delete(f.pending, field)

	f.revalidateDependents(s, field)
	s.settle()
	f.publish(s)
	return s, nil
}

// Blur runs the field's synchronous rules immediately. For the identifier it
// then starts the availability check and leaves the field validating. The
// returned channel is closed once the field has no more async work from this
// call.
func (f *Form) Blur(ctx context.Context, field domain.Field) (<-chan struct{}, error) {
	if _, ok := f.v.Schema().Field(field); !ok {
		return nil, ErrUnknownField
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.state.Load().next()
	st := s.fields[field]
	st.Visited = true
	s.fields[field] = st

	done := f.validateField(ctx, s, field)
	s.settle()
	f.publish(s)
	return done, nil
}

// Submit resolves a submit intent against the freshest state of the form.
// While any check is in flight the intent waits, and it is re-evaluated if
// an edit lands meanwhile. On success the draft is returned; otherwise a
// *BlockedError carries the outcome.
func (f *Form) Submit(ctx context.Context) (domain.RegistrationDraft, error) {
	retryFailed := true
	for {
		s := f.state.Load()
		if len(s.Validating()) > 0 {
			select {
			case <-ctx.Done():
				return domain.RegistrationDraft{}, ctx.Err()
			case <-s.superseded:
				continue
			}
		}

		step, draft, err := f.evaluateSubmission(ctx, s.Version, retryFailed)
		switch step {
		case stepStale:
			continue
		case stepChecking:
			// One retry per submit for a check that failed earlier.
			retryFailed = false
			continue
		}
		return draft, err
	}
}

type submitStep int

const (
	stepDone submitStep = iota
	stepStale
	stepChecking
)

// evaluateSubmission runs the full validation pass if the form is still at
// version. It starts the availability check instead when the identifier has
// no verdict for its current value, or when retryFailed is set and the last
// check failed.
func (f *Form) evaluateSubmission(ctx context.Context, version uint64, retryFailed bool) (submitStep, domain.RegistrationDraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.state.Load()
	if cur.Version != version || len(cur.Validating()) > 0 {
		return stepStale, domain.RegistrationDraft{}, nil
	}

	s := cur.next()
	out := f.v.Validate(s.Draft, validation.Submission)

	if f.checker != nil {
		id, _ := out.Result(domain.FieldIdentifier)
		if id.Valid {
			verdict, ok := s.remote[domain.FieldIdentifier]
			current := ok && verdict.generation == s.fields[domain.FieldIdentifier].Generation
			if !current || (verdict.failed && retryFailed) {
				f.startCheck(ctx, s, domain.FieldIdentifier)
				s.settle()
				f.publish(s)
				return stepChecking, domain.RegistrationDraft{}, nil
			}
			out = out.With(domain.FieldIdentifier, verdict.result)
		}
	}

	for _, fd := range f.v.Schema().Fields() {
		r, _ := out.Result(fd.Name)
		st := s.fields[fd.Name]
		st.Visited = true
		st.Status = statusOf(r)
		s.fields[fd.Name] = st
	}
	s.Outcome = out
	if out.Submittable() {
		s.Status = StatusSubmittable
	} else {
		s.Status = StatusBlocked
	}
	f.publish(s)

	if s.Status != StatusSubmittable {
		return stepDone, domain.RegistrationDraft{}, &BlockedError{Outcome: out}
	}
	return stepDone, s.Draft, nil
}

// Reset clears every value and verdict. Generations keep increasing so that
// results of checks started before the reset are discarded.
func (f *Form) Reset() *Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.state.Load()
	gens := make(map[domain.Field]uint64, len(cur.fields))
	for k, st := range cur.fields {
		gens[k] = st.Generation + 1
	}
	s := emptySnapshot(cur.Version+1, gens)
	f.pending = make(map[domain.Field]*inflight)
	f.publish(s)
	return s
}

// validateField applies the synchronous verdict for field to s and, for the
// identifier, starts the availability check. Callers hold mu.
func (f *Form) validateField(ctx context.Context, s *Snapshot, field domain.Field) <-chan struct{} {
	r := f.v.ValidateField(s.Draft, field, validation.Incremental)
	if !r.Valid || field != domain.FieldIdentifier || f.checker == nil {
		s.Outcome = s.Outcome.With(field, r)
		st := s.fields[field]
		st.Status = statusOf(r)
		s.fields[field] = st
		return closedChan()
	}
	return f.startCheck(ctx, s, field)
}

// startCheck marks field validating in s and runs the check in the
// background. A check already in flight for the same generation is reused.
// Callers hold mu.
func (f *Form) startCheck(ctx context.Context, s *Snapshot, field domain.Field) <-chan struct{} {
	st := s.fields[field]
	st.Status = FieldValidating
	s.fields[field] = st
	s.Outcome = s.Outcome.Without(field)

	gen := st.Generation
	if p, ok := f.pending[field]; ok && p.generation == gen {
		return p.done
	}
	p := &inflight{generation: gen, done: make(chan struct{})}
	f.pending[field] = p

	value := s.Draft.Value(field)
	// The check outlives the request that triggered it; only its result
	// can be discarded.
	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.checkTimeout)
	go func() {
		defer close(p.done)
		defer cancel()
		available, err := f.checker.IsAvailable(checkCtx, value)
		f.resolve(field, gen, available, err)
	}()
	return p.done
}

// resolve applies an availability result if gen is still the field's current
// generation, and discards it otherwise.
func (f *Form) resolve(field domain.Field, gen uint64, available bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.pending[field]; ok && p.generation == gen {
		delete(f.pending, field)
	}

	cur := f.state.Load()
	if cur.fields[field].Generation != gen {
		f.metrics.IncrementStaleValidation()
		f.log.Debug("discarded stale availability result",
			zap.String("field", string(field)),
			zap.Uint64("generation", gen),
			zap.Uint64("current_generation", cur.fields[field].Generation),
		)
		return
	}

	var r validation.Result
	switch {
	case err != nil:
		f.log.Warn("availability check failed", zap.String("field", string(field)), zap.Error(err))
		r = f.v.AvailabilityUnknown()
	case !available:
		r = f.v.Taken()
	default:
		r = validation.Result{Valid: true}
	}

	s := cur.next()
	s.Outcome = s.Outcome.With(field, r)
	s.remote[field] = remoteVerdict{generation: gen, result: r, failed: err != nil}
	st := s.fields[field]
	st.Status = statusOf(r)
	s.fields[field] = st
	s.settle()
	f.publish(s)
}

// revalidateDependents refreshes the verdicts of fields whose cross-field rules
// read field, so a mismatch reported at submission does not outlive the edit
// that fixed it. Callers hold mu.
func (f *Form) revalidateDependents(s *Snapshot, field domain.Field) {
	for _, fd := range f.v.Schema().Fields() {
		if fd.Name == field {
			continue
		}
		for _, r := range fd.Rules {
			if !r.CrossField() || r.Other != field {
				continue
			}
			if _, ok := s.Outcome.Result(fd.Name); !ok {
				break
			}
			res := f.v.ValidateField(s.Draft, fd.Name, validation.Incremental)
			s.Outcome = s.Outcome.With(fd.Name, res)
			st := s.fields[fd.Name]
			st.Status = statusOf(res)
			s.fields[fd.Name] = st
			break
		}
	}
}

// publish makes s the current snapshot. Callers hold mu.
func (f *Form) publish(s *Snapshot) {
	prev := f.state.Swap(s)
	if prev != nil {
		close(prev.superseded)
	}
}

func statusOf(r validation.Result) FieldStatus {
	if r.Valid {
		return FieldValid
	}
	return FieldInvalid
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
