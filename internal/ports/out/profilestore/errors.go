package profilestore

import "errors"

var (
	// ErrNotFound indicates no profile exists for the requested subject.
	ErrNotFound = errors.New("profile not found")

	// ErrSubjectAlreadyBound indicates a profile already exists for the provided subject.
	ErrSubjectAlreadyBound = errors.New("profile subject already bound")

	// ErrIdentifierTaken indicates another profile already owns the identifier.
	// The store is the final arbiter of identifier uniqueness.
	ErrIdentifierTaken = errors.New("profile identifier already taken")

	// ErrPermissionDenied indicates the store refused the write.
	ErrPermissionDenied = errors.New("profile store permission denied")

	// ErrUnavailable indicates the store could not be reached.
	ErrUnavailable = errors.New("profile store unavailable")

	// ErrUnsupportedField indicates a query on a field the store does not index.
	ErrUnsupportedField = errors.New("profile field not queryable")
)
