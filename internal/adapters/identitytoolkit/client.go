package identitytoolkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/platform/auth/jwtverifier"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

// TokenKey is the session cache key holding the device's ID token.
const TokenKey = "identity.idToken"

const rollbackTimeout = 10 * time.Second

// Client is the device-scoped provider. It implements
// identityprovider.Provider and identityprovider.Deleter.
type Client struct {
	svc   *Service
	cache sessioncache.Cache
}

var (
	_ identityprovider.Provider = (*Client)(nil)
	_ identityprovider.Deleter  = (*Client)(nil)
)

// CreateIdentity signs up and signs the device in. When the ID token cannot
// be stored the new account is deleted again; if that fails too the account
// is returned in a RetainedError.
func (c *Client) CreateIdentity(ctx context.Context, email, password string) (identityprovider.Credential, error) {
	resp, err := c.svc.signUp(ctx, domain.NormalizeEmail(email), password)
	if err != nil {
		return identityprovider.Credential{}, err
	}
	cred, err := c.signedIn(ctx, resp)
	if err == nil {
		return cred, nil
	}
	if resp.LocalID == "" {
		return identityprovider.Credential{}, err
	}
	created := identityprovider.Credential{
		Subject: domain.SubjectID(resp.LocalID),
		Email:   domain.NormalizeEmail(resp.Email),
	}
	if resp.IDToken == "" {
		return identityprovider.Credential{}, &identityprovider.RetainedError{
			Credential: created, Err: err, RollbackErr: errors.New("no id token to delete with"),
		}
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if rbErr := c.svc.deleteAccount(rctx, resp.IDToken); rbErr != nil {
		return identityprovider.Credential{}, &identityprovider.RetainedError{Credential: created, Err: err, RollbackErr: rbErr}
	}
	return identityprovider.Credential{}, err
}

func (c *Client) SignIn(ctx context.Context, email, password string) (identityprovider.Credential, error) {
	resp, err := c.svc.signIn(ctx, domain.NormalizeEmail(email), password)
	if err != nil {
		return identityprovider.Credential{}, err
	}
	return c.signedIn(ctx, resp)
}

// CurrentIdentity verifies the stored ID token. Rejected tokens are dropped;
// an unreachable JWKS is reported as a network error and the token is kept.
func (c *Client) CurrentIdentity(ctx context.Context) (identityprovider.Credential, bool, error) {
	raw, ok, err := c.cache.Get(ctx, TokenKey)
	if err != nil {
		return identityprovider.Credential{}, false, fmt.Errorf("%w: read id token: %v", identityprovider.ErrNetwork, err)
	}
	if !ok || raw == "" {
		return identityprovider.Credential{}, false, nil
	}
	claims, err := c.svc.verifier.Verify(ctx, raw)
	if err != nil {
		if errors.Is(err, jwtverifier.ErrUnauthorized) {
			_ = c.cache.Delete(ctx, TokenKey)
			return identityprovider.Credential{}, false, nil
		}
		return identityprovider.Credential{}, false, fmt.Errorf("%w: verify id token: %v", identityprovider.ErrNetwork, err)
	}
	return identityprovider.Credential{
		Subject: domain.SubjectID(claims.Subject),
		Email:   domain.NormalizeEmail(claims.Email),
	}, true, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.cache.Delete(ctx, TokenKey)
}

// DeleteIdentity deletes the account this device is signed in as. The REST
// API only deletes with the account's own ID token, so other subjects cannot
// be removed from here.
func (c *Client) DeleteIdentity(ctx context.Context, subject domain.SubjectID) error {
	raw, ok, err := c.cache.Get(ctx, TokenKey)
	if err != nil {
		return fmt.Errorf("%w: read id token: %v", identityprovider.ErrNetwork, err)
	}
	if !ok || raw == "" {
		return fmt.Errorf("delete %s: device holds no id token", subject)
	}
	claims, err := c.svc.verifier.Verify(ctx, raw)
	if err != nil {
		return fmt.Errorf("delete %s: %w", subject, err)
	}
	if domain.SubjectID(claims.Subject) != subject {
		return fmt.Errorf("delete %s: device is signed in as another subject", subject)
	}
	if err := c.svc.deleteAccount(ctx, raw); err != nil {
		return err
	}
	// The account is already deleted; a failed token clear is logged, not
	// returned.
	if err := c.cache.Delete(ctx, TokenKey); err != nil {
		c.svc.log.Warn("account deleted but id token not cleared",
			zap.String("subject", string(subject)),
			zap.Error(err),
		)
	}
	return nil
}

func (c *Client) signedIn(ctx context.Context, resp tokenResponse) (identityprovider.Credential, error) {
	if resp.IDToken == "" || resp.LocalID == "" {
		return identityprovider.Credential{}, fmt.Errorf("%w: response without id token", identityprovider.ErrNetwork)
	}
	if err := c.cache.Set(ctx, TokenKey, resp.IDToken); err != nil {
		return identityprovider.Credential{}, fmt.Errorf("%w: store id token: %v", identityprovider.ErrNetwork, err)
	}
	return identityprovider.Credential{
		Subject: domain.SubjectID(resp.LocalID),
		Email:   domain.NormalizeEmail(resp.Email),
	}, nil
}
