// Package identityprovider is an in-process identity provider. A Directory
// holds accounts shared by every device; each device talks to it through a
// Client that keeps the device's signed session token in a session cache.
package identityprovider

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/platform/password"
	clockport "github.com/eskate/storefront-api/internal/ports/out/clock"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

// Options configures a Directory.
type Options struct {
	// TokenSecret signs session tokens (HS256). Required.
	TokenSecret []byte
	// TokenTTL bounds how long a device stays signed in. Defaults to 24h.
	TokenTTL time.Duration
	// Issuer is written to and required in every token. Defaults to "storefront-local".
	Issuer string
	// MinPasswordLength is the provider's own password policy. Defaults to 6.
	MinPasswordLength int
	// HashCost is the bcrypt cost; 0 selects the bcrypt default.
	HashCost int
}

type account struct {
	subject domain.SubjectID
	email   string
	hash    string
}

// Directory is the account database of the local identity provider.
// It is safe for concurrent use.
type Directory struct {
	mu  sync.RWMutex
	clk clockport.Clock
	opt Options

	byEmail   map[string]account
	bySubject map[domain.SubjectID]string

	newSubject func() domain.SubjectID
}

func NewDirectory(clk clockport.Clock, opt Options) (*Directory, error) {
	if len(opt.TokenSecret) == 0 {
		return nil, errors.New("identity token secret is required")
	}
	if opt.TokenTTL <= 0 {
		opt.TokenTTL = 24 * time.Hour
	}
	if opt.Issuer == "" {
		opt.Issuer = "storefront-local"
	}
	if opt.MinPasswordLength <= 0 {
		opt.MinPasswordLength = 6
	}
	return &Directory{
		clk:       clk,
		opt:       opt,
		byEmail:   make(map[string]account),
		bySubject: make(map[domain.SubjectID]string),
		newSubject: func() domain.SubjectID {
			return domain.SubjectID(uuid.NewString())
		},
	}, nil
}

// Issuer returns the token issuer; profile stores use it to namespace subjects.
func (d *Directory) Issuer() string { return d.opt.Issuer }

// Client returns a device-scoped provider whose session token lives in cache.
func (d *Directory) Client(cache sessioncache.Cache) *Client {
	return &Client{dir: d, cache: cache}
}

// Exists reports whether subject still has an account.
func (d *Directory) Exists(subject domain.SubjectID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.bySubject[subject]
	return ok
}

func (d *Directory) create(email, plaintext string) (identityprovider.Credential, error) {
	if len(plaintext) < d.opt.MinPasswordLength {
		return identityprovider.Credential{}, identityprovider.ErrWeakPassword
	}
	hash, err := password.Hash(plaintext, d.opt.HashCost)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return identityprovider.Credential{}, identityprovider.ErrWeakPassword
		}
		return identityprovider.Credential{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	key := emailKey(email)
	if _, ok := d.byEmail[key]; ok {
		return identityprovider.Credential{}, identityprovider.ErrEmailInUse
	}
	a := account{subject: d.newSubject(), email: email, hash: hash}
	d.byEmail[key] = a
	d.bySubject[a.subject] = key
	return identityprovider.Credential{Subject: a.subject, Email: a.email}, nil
}

func (d *Directory) authenticate(email, plaintext string) (identityprovider.Credential, error) {
	d.mu.RLock()
	a, ok := d.byEmail[emailKey(email)]
	d.mu.RUnlock()
	if !ok {
		return identityprovider.Credential{}, identityprovider.ErrInvalidCredentials
	}
	if err := password.Verify(plaintext, a.hash); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return identityprovider.Credential{}, identityprovider.ErrInvalidCredentials
		}
		return identityprovider.Credential{}, err
	}
	return identityprovider.Credential{Subject: a.subject, Email: a.email}, nil
}

func (d *Directory) remove(subject domain.SubjectID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key, ok := d.bySubject[subject]
	if !ok {
		return identityprovider.ErrNotFound
	}
	delete(d.bySubject, subject)
	delete(d.byEmail, key)
	return nil
}

type tokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (d *Directory) mint(cred identityprovider.Credential) (string, error) {
	now := d.clk.Now()
	claims := tokenClaims{
		Email: cred.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    d.opt.Issuer,
			Subject:   string(cred.Subject),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d.opt.TokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.opt.TokenSecret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// verify returns the credential carried by a token that is well-signed,
// unexpired, and whose account still exists.
func (d *Directory) verify(raw string) (identityprovider.Credential, bool) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return d.opt.TokenSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(d.opt.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(d.clk.Now),
	)
	if err != nil || claims.Subject == "" {
		return identityprovider.Credential{}, false
	}
	sub := domain.SubjectID(claims.Subject)
	if !d.Exists(sub) {
		return identityprovider.Credential{}, false
	}
	return identityprovider.Credential{Subject: sub, Email: claims.Email}, true
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
