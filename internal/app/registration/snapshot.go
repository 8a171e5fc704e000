package registration

import (
	"github.com/eskate/storefront-api/internal/app/validation"
	"github.com/eskate/storefront-api/internal/domain"
)

// FieldStatus is the per-field state machine:
// pristine -> touched -> validating -> {valid, invalid}.
type FieldStatus string

const (
	FieldPristine   FieldStatus = "pristine"
	FieldTouched    FieldStatus = "touched"
	FieldValidating FieldStatus = "validating"
	FieldValid      FieldStatus = "valid"
	FieldInvalid    FieldStatus = "invalid"
)

// Status is the form-level state.
type Status string

const (
	StatusEditing     Status = "editing"
	StatusValidating  Status = "validating"
	StatusSubmittable Status = "submittable"
	StatusBlocked     Status = "blocked"
)

// FieldState is the bookkeeping for one field.
type FieldState struct {
	Status FieldStatus `json:"status"`
	// Dirty is set once the field has been edited.
	Dirty bool `json:"dirty"`
	// Visited is set once the field has been blurred or submitted.
	Visited bool `json:"visited"`
	// Generation increases on every edit of the field.
	Generation uint64 `json:"generation"`
}

type remoteVerdict struct {
	generation uint64
	result     validation.Result
	// failed marks a check that errored; its result is availability_unknown.
	failed bool
}

// Snapshot is one immutable state of the form. A Form never changes a
// Snapshot after publishing it; every transition publishes a new one.
type Snapshot struct {
	Version uint64
	Status  Status
	Draft   domain.RegistrationDraft
	Outcome validation.Outcome

	fields map[domain.Field]FieldState
	remote map[domain.Field]remoteVerdict

	// superseded is closed when a newer snapshot replaces this one.
	superseded chan struct{}
}

// Field returns the state of f.
func (s *Snapshot) Field(f domain.Field) FieldState {
	if st, ok := s.fields[f]; ok {
		return st
	}
	return FieldState{Status: FieldPristine}
}

// Validating lists the fields with an async check in flight, in form order.
func (s *Snapshot) Validating() []domain.Field {
	var out []domain.Field
	for _, f := range domain.Fields() {
		if s.fields[f].Status == FieldValidating {
			out = append(out, f)
		}
	}
	return out
}

// Superseded is closed once a newer snapshot has been published.
func (s *Snapshot) Superseded() <-chan struct{} { return s.superseded }

func emptySnapshot(version uint64, generations map[domain.Field]uint64) *Snapshot {
	fields := make(map[domain.Field]FieldState, len(domain.Fields()))
	for _, f := range domain.Fields() {
		fields[f] = FieldState{Status: FieldPristine, Generation: generations[f]}
	}
	return &Snapshot{
		Version:    version,
		Status:     StatusEditing,
		fields:     fields,
		remote:     map[domain.Field]remoteVerdict{},
		superseded: make(chan struct{}),
	}
}

// next copies s into a fresh, unpublished snapshot.
func (s *Snapshot) next() *Snapshot {
	fields := make(map[domain.Field]FieldState, len(s.fields))
	for k, v := range s.fields {
		fields[k] = v
	}
	remote := make(map[domain.Field]remoteVerdict, len(s.remote))
	for k, v := range s.remote {
		remote[k] = v
	}
	return &Snapshot{
		Version:    s.Version + 1,
		Status:     s.Status,
		Draft:      s.Draft,
		Outcome:    s.Outcome,
		fields:     fields,
		remote:     remote,
		superseded: make(chan struct{}),
	}
}

// settle recomputes the form status after a field-level transition.
func (s *Snapshot) settle() {
	if len(s.Validating()) > 0 {
		s.Status = StatusValidating
		return
	}
	s.Status = StatusEditing
}
