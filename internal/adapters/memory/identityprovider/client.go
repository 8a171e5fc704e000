package identityprovider

import (
	"context"
	"fmt"

	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

// TokenKey is the session cache key holding the device's signed session token.
const TokenKey = "identity.idToken"

// Client is the device-scoped view of a Directory. It implements
// identityprovider.Provider and identityprovider.Deleter.
type Client struct {
	dir   *Directory
	cache sessioncache.Cache
}

var (
	_ identityprovider.Provider = (*Client)(nil)
	_ identityprovider.Deleter  = (*Client)(nil)
)

// CreateIdentity creates an account and signs the device in as it. An account
// whose token cannot be stored is removed again.
func (c *Client) CreateIdentity(ctx context.Context, email, password string) (identityprovider.Credential, error) {
	cred, err := c.dir.create(domain.NormalizeEmail(email), password)
	if err != nil {
		return identityprovider.Credential{}, err
	}
	if err := c.storeToken(ctx, cred); err != nil {
		if rbErr := c.dir.remove(cred.Subject); rbErr != nil {
			return identityprovider.Credential{}, &identityprovider.RetainedError{Credential: cred, Err: err, RollbackErr: rbErr}
		}
		return identityprovider.Credential{}, err
	}
	return cred, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (identityprovider.Credential, error) {
	cred, err := c.dir.authenticate(email, password)
	if err != nil {
		return identityprovider.Credential{}, err
	}
	if err := c.storeToken(ctx, cred); err != nil {
		return identityprovider.Credential{}, err
	}
	return cred, nil
}

// CurrentIdentity returns the identity of the stored token. Expired tokens and
// tokens of deleted accounts are dropped from the cache.
func (c *Client) CurrentIdentity(ctx context.Context) (identityprovider.Credential, bool, error) {
	raw, ok, err := c.cache.Get(ctx, TokenKey)
	if err != nil {
		return identityprovider.Credential{}, false, fmt.Errorf("%w: read session token: %v", identityprovider.ErrNetwork, err)
	}
	if !ok || raw == "" {
		return identityprovider.Credential{}, false, nil
	}
	cred, valid := c.dir.verify(raw)
	if !valid {
		_ = c.cache.Delete(ctx, TokenKey)
		return identityprovider.Credential{}, false, nil
	}
	return cred, true, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.cache.Delete(ctx, TokenKey)
}

// DeleteIdentity removes the account. If this device is signed in as subject
// it is signed out as well.
func (c *Client) DeleteIdentity(ctx context.Context, subject domain.SubjectID) error {
	if err := c.dir.remove(subject); err != nil {
		return err
	}
	if raw, ok, err := c.cache.Get(ctx, TokenKey); err == nil && ok {
		if _, valid := c.dir.verify(raw); !valid {
			_ = c.cache.Delete(ctx, TokenKey)
		}
	}
	return nil
}

func (c *Client) storeToken(ctx context.Context, cred identityprovider.Credential) error {
	tok, err := c.dir.mint(cred)
	if err != nil {
		return err
	}
	if err := c.cache.Set(ctx, TokenKey, tok); err != nil {
		return fmt.Errorf("%w: store session token: %v", identityprovider.ErrNetwork, err)
	}
	return nil
}
