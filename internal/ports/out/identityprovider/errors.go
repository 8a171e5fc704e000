package identityprovider

import (
	"errors"
	"fmt"
)

var (
	// ErrEmailInUse indicates an identity already exists for the email.
	ErrEmailInUse = errors.New("email already in use")

	// ErrWeakPassword indicates the provider rejected the password by policy.
	ErrWeakPassword = errors.New("password rejected by provider policy")

	// ErrInvalidCredentials indicates a sign-in with an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNetwork indicates the provider could not be reached or answered unexpectedly.
	ErrNetwork = errors.New("identity provider unreachable")

	// ErrNotFound indicates the subject does not exist at the provider.
	ErrNotFound = errors.New("identity not found")
)

// RetainedError is returned by CreateIdentity when the account was created
// but the device could not be signed in and the account could not be rolled
// back. Credential names the account that now exists without an owner.
type RetainedError struct {
	Credential  Credential
	Err         error
	RollbackErr error
}

func (e *RetainedError) Error() string {
	return fmt.Sprintf("identity %s retained after failed sign-in: %v (rollback: %v)", e.Credential.Subject, e.Err, e.RollbackErr)
}

func (e *RetainedError) Unwrap() error { return e.Err }
