// Package identitytoolkit is an identityprovider.Provider backed by the
// Identity Toolkit REST API (email/password accounts).
package identitytoolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eskate/storefront-api/internal/platform/auth/jwtverifier"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

// DefaultBaseURL is the public Identity Toolkit endpoint.
const DefaultBaseURL = "https://identitytoolkit.googleapis.com"

// TokenVerifier checks ID tokens issued by the toolkit.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (jwtverifier.Claims, error)
}

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Service holds the shared HTTP configuration; Client scopes it to a device.
type Service struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	verifier TokenVerifier
	log      *zap.Logger
}

func NewService(opt Options, verifier TokenVerifier) (*Service, error) {
	if opt.APIKey == "" {
		return nil, errors.New("identity toolkit api key is required")
	}
	if verifier == nil {
		return nil, errors.New("identity toolkit token verifier is required")
	}
	base := strings.TrimRight(opt.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse identity toolkit url: %w", err)
	}
	hc := opt.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{baseURL: base, apiKey: opt.APIKey, http: hc, verifier: verifier, log: log}, nil
}

// Client returns the provider for one device; its ID token lives in cache.
func (s *Service) Client(cache sessioncache.Cache) *Client {
	return &Client{svc: s, cache: cache}
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type tokenResponse struct {
	IDToken      string `json:"idToken"`
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type deleteRequest struct {
	IDToken string `json:"idToken"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Service) signUp(ctx context.Context, email, password string) (tokenResponse, error) {
	var out tokenResponse
	err := s.call(ctx, "accounts:signUp", passwordRequest{Email: email, Password: password, ReturnSecureToken: true}, &out)
	return out, err
}

func (s *Service) signIn(ctx context.Context, email, password string) (tokenResponse, error) {
	var out tokenResponse
	err := s.call(ctx, "accounts:signInWithPassword", passwordRequest{Email: email, Password: password, ReturnSecureToken: true}, &out)
	return out, err
}

func (s *Service) deleteAccount(ctx context.Context, idToken string) error {
	return s.call(ctx, "accounts:delete", deleteRequest{IDToken: idToken}, nil)
}

func (s *Service) call(ctx context.Context, method string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	endpoint := s.baseURL + "/v1/" + method + "?key=" + url.QueryEscape(s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", identityprovider.ErrNetwork, method, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %v", identityprovider.ErrNetwork, method, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		if err := json.Unmarshal(raw, &er); err != nil || er.Error.Message == "" {
			return fmt.Errorf("%w: %s: status=%d", identityprovider.ErrNetwork, method, resp.StatusCode)
		}
		return mapErrorMessage(method, er.Error.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", identityprovider.ErrNetwork, method, err)
	}
	return nil
}

// mapErrorMessage maps toolkit error codes to port sentinels. Messages look
// like "WEAK_PASSWORD : Password should be at least 6 characters".
func mapErrorMessage(method, msg string) error {
	code, detail, _ := strings.Cut(msg, ":")
	code = strings.TrimSpace(code)
	detail = strings.TrimSpace(detail)

	var sentinel error
	switch code {
	case "EMAIL_EXISTS":
		sentinel = identityprovider.ErrEmailInUse
	case "WEAK_PASSWORD":
		sentinel = identityprovider.ErrWeakPassword
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED", "INVALID_EMAIL":
		sentinel = identityprovider.ErrInvalidCredentials
	case "USER_NOT_FOUND":
		sentinel = identityprovider.ErrNotFound
	default:
		sentinel = identityprovider.ErrNetwork
	}
	if detail != "" {
		return fmt.Errorf("%w: %s: %s", sentinel, method, detail)
	}
	return fmt.Errorf("%w: %s: %s", sentinel, method, code)
}
