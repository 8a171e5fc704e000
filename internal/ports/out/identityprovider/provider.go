package identityprovider

//go:generate mockgen -source=provider.go -destination=mocks/mock_provider.go -package=mocks

import (
	"context"

	"github.com/eskate/storefront-api/internal/domain"
)

// Credential is the handle returned by the provider after creation or sign-in.
// It is held transiently; only the verified email is cached on the device.
type Credential struct {
	Subject domain.SubjectID
	Email   string
}

// Provider issues and verifies (email, password) credentials.
//
// A Provider is scoped to one device: CreateIdentity and SignIn leave the new
// identity signed in, CurrentIdentity reports it, SignOut forgets it.
type Provider interface {
	CreateIdentity(ctx context.Context, email, password string) (Credential, error)
	SignIn(ctx context.Context, email, password string) (Credential, error)

	// CurrentIdentity returns the live identity for this device, if any.
	CurrentIdentity(ctx context.Context) (Credential, bool, error)
	SignOut(ctx context.Context) error
}

// Deleter is implemented by providers that can remove an identity. It is
// used to compensate a registration whose profile write failed.
type Deleter interface {
	DeleteIdentity(ctx context.Context, subject domain.SubjectID) error
}
