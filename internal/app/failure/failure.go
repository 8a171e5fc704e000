// Package failure maps workflow errors onto the user-facing failure kinds and
// their localized alerts. Every alert names a kind; there is no generic one.
package failure

import (
	"errors"

	"golang.org/x/text/message"

	"github.com/eskate/storefront-api/internal/app/provisioning"
	"github.com/eskate/storefront-api/internal/app/registration"
	"github.com/eskate/storefront-api/internal/app/session"
	"github.com/eskate/storefront-api/internal/platform/i18n"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/profilestore"
)

type Kind string

const (
	// KindFieldValidation is field-scoped and shown inline.
	KindFieldValidation Kind = "field_validation"
	// KindUniquenessConflict is identifier-scoped; re-checked on the next edit.
	KindUniquenessConflict Kind = "uniqueness_conflict"
	// KindIdentityCreationFailed ends the attempt; nothing was created.
	KindIdentityCreationFailed Kind = "identity_creation_failed"
	// KindProfilePersistenceFailed is the orphan case; retry the profile
	// under the same identity.
	KindProfilePersistenceFailed Kind = "profile_persistence_failed"
	// KindSessionResolution is transient and never forces a sign-out.
	KindSessionResolution Kind = "session_resolution"
	// KindSignInFailed is a rejected email/password pair.
	KindSignInFailed Kind = "sign_in_failed"
)

// Kinds returns every kind.
func Kinds() []Kind {
	return []Kind{
		KindFieldValidation,
		KindUniquenessConflict,
		KindIdentityCreationFailed,
		KindProfilePersistenceFailed,
		KindSessionResolution,
		KindSignInFailed,
	}
}

// Classify maps err to its kind. ok is false for errors outside the workflow
// (nil, context cancellation, programming errors).
func Classify(err error) (Kind, bool) {
	if err == nil {
		return "", false
	}

	var blocked *registration.BlockedError
	if errors.As(err, &blocked) {
		if blocked.OnlyIdentifierTaken() {
			return KindUniquenessConflict, true
		}
		return KindFieldValidation, true
	}

	var pe *provisioning.Error
	if errors.As(err, &pe) {
		switch pe.Kind {
		case provisioning.KindIdentityCreationFailed:
			return KindIdentityCreationFailed, true
		case provisioning.KindProfilePersistenceFailed:
			// Lost the identifier race and the identity was rolled back:
			// the user only has to pick another identifier.
			if errors.Is(pe, profilestore.ErrIdentifierTaken) && !pe.Retained() {
				return KindUniquenessConflict, true
			}
			return KindProfilePersistenceFailed, true
		}
	}

	var re *session.ResolutionError
	switch {
	case errors.Is(err, provisioning.ErrInvalidDraft):
		return KindFieldValidation, true
	case errors.As(err, &re), errors.Is(err, provisioning.ErrNotSignedIn):
		return KindSessionResolution, true
	case errors.Is(err, identityprovider.ErrInvalidCredentials):
		return KindSignInFailed, true
	case errors.Is(err, identityprovider.ErrNetwork):
		return KindSessionResolution, true
	}
	return "", false
}

// Alert returns the localized message for kind.
func Alert(kind Kind, p *message.Printer) string {
	switch kind {
	case KindFieldValidation:
		return p.Sprintf(i18n.MsgAlertFieldValidation)
	case KindUniquenessConflict:
		return p.Sprintf(i18n.MsgAlertUniqueness)
	case KindIdentityCreationFailed:
		return p.Sprintf(i18n.MsgAlertIdentityCreation)
	case KindProfilePersistenceFailed:
		return p.Sprintf(i18n.MsgAlertOrphanRetained)
	case KindSessionResolution:
		return p.Sprintf(i18n.MsgAlertSessionResolution)
	case KindSignInFailed:
		return p.Sprintf(i18n.MsgAlertSignIn)
	default:
		return ""
	}
}

// Describe classifies err and renders its alert. A profile failure whose
// identity was rolled back gets the "register again" wording instead of the
// "retry your profile" one.
func Describe(err error, p *message.Printer) (Kind, string, bool) {
	kind, ok := Classify(err)
	if !ok {
		return "", "", false
	}
	var pe *provisioning.Error
	if kind == KindProfilePersistenceFailed && errors.As(err, &pe) && !pe.Retained() {
		return kind, p.Sprintf(i18n.MsgAlertProfilePersistence), true
	}
	return kind, Alert(kind, p), true
}
