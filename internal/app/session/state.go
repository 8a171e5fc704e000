package session

import (
	"errors"
	"fmt"

	"golang.org/x/text/message"

	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/platform/i18n"
)

// Kind is the resolved session kind.
type Kind string

const (
	KindAnonymous                Kind = "anonymous"
	KindAuthenticatedNoProfile   Kind = "authenticated_no_profile"
	KindAuthenticatedWithProfile Kind = "authenticated_with_profile"
)

// Stage names the read that failed during resolution.
type Stage string

const (
	StageIdentity Stage = "identity"
	StageProfile  Stage = "profile"
)

// ErrNoSession indicates no identity is signed in on the device.
var ErrNoSession = errors.New("no signed-in identity")

// ResolutionError is a transient failure to resolve the session. It never
// signs the user out; resolving again may succeed.
type ResolutionError struct {
	Stage Stage
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve session: read %s: %v", e.Stage, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// State is the session as resolved once per bootstrap. It is a value passed
// to whoever renders it.
type State struct {
	Kind Kind
	// Email is the verified email of the signed-in identity.
	Email   string
	Subject domain.SubjectID
	// Profile is set only for KindAuthenticatedWithProfile.
	Profile *domain.UserProfile
	// LoadError is set when a read failed transiently.
	LoadError *ResolutionError
}

func Anonymous() State { return State{Kind: KindAnonymous} }

func (s State) Authenticated() bool { return s.Kind != KindAnonymous }

// HeaderLabel is the text the profile header shows for this state.
func (s State) HeaderLabel(p *message.Printer) string {
	switch {
	case s.Kind == KindAuthenticatedWithProfile && s.Profile != nil:
		return string(s.Profile.Identifier)
	case s.Kind == KindAuthenticatedNoProfile && s.LoadError != nil:
		return p.Sprintf(i18n.MsgHeaderLoadError)
	case s.Kind == KindAuthenticatedNoProfile:
		return p.Sprintf(i18n.MsgHeaderNoProfile)
	default:
		return ""
	}
}
