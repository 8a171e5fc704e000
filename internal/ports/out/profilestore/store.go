package profilestore

import (
	"context"

	"github.com/eskate/storefront-api/internal/domain"
)

// Collection is the logical collection holding one profile per subject.
const Collection = "users"

// FieldIdentifier is the queryable profile field holding the user-chosen identifier.
const FieldIdentifier = "identifier"

// Store provides access to persisted user profiles.
//
// Implementations own CreatedAt: WriteProfile assigns it and returns the stored
// record. A subject can be written once; later writes fail with ErrSubjectAlreadyBound.
type Store interface {
	// QueryByField returns every profile whose field equals value. An empty
	// result is not an error.
	QueryByField(ctx context.Context, field string, value string) ([]domain.UserProfile, error)

	WriteProfile(ctx context.Context, subject domain.SubjectID, p domain.UserProfile) (domain.UserProfile, error)
	ReadProfile(ctx context.Context, subject domain.SubjectID) (domain.UserProfile, error)
}
