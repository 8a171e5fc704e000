package provisioning

import (
	"errors"
	"fmt"

	"github.com/eskate/storefront-api/internal/domain"
)

// Kind separates failures whose remediation differs.
type Kind string

const (
	// KindIdentityCreationFailed: nothing was created. The user corrects
	// email or password and resubmits.
	KindIdentityCreationFailed Kind = "identity_creation_failed"
	// KindProfilePersistenceFailed: the identity was created but its profile
	// was not written. See Error.Compensation for what happened next.
	KindProfilePersistenceFailed Kind = "profile_persistence_failed"
)

// Compensation is the outcome of rolling back an identity whose profile
// write failed.
type Compensation string

const (
	// CompensationNone: no rollback was attempted.
	CompensationNone Compensation = ""
	// CompensationDeleted: the identity was removed; no orphan remains.
	CompensationDeleted Compensation = "deleted"
	// CompensationUnavailable: the provider cannot delete identities.
	CompensationUnavailable Compensation = "unavailable"
	// CompensationFailed: the delete was attempted and failed.
	CompensationFailed Compensation = "failed"
)

var (
	// ErrInvalidDraft indicates a draft that does not convert to a profile.
	// Drafts that passed submission validation never produce it.
	ErrInvalidDraft = errors.New("invalid registration draft")

	// ErrNotSignedIn indicates CompleteProfile ran without a live identity.
	ErrNotSignedIn = errors.New("no signed-in identity")
)

// Error is a typed provisioning failure. It unwraps to the cause.
type Error struct {
	Kind         Kind
	Compensation Compensation
	// Subject is set once an identity exists.
	Subject domain.SubjectID
	Err     error
	// CompensationErr is the delete failure when Compensation is CompensationFailed.
	CompensationErr error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindProfilePersistenceFailed && e.Compensation != CompensationNone:
		return fmt.Sprintf("%s (compensation %s): %v", e.Kind, e.Compensation, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retained reports whether an identity without a profile still exists after
// this failure. The caller should offer CompleteProfile instead of a new
// registration.
func (e *Error) Retained() bool {
	return e.Kind == KindProfilePersistenceFailed && e.Compensation != CompensationDeleted
}
