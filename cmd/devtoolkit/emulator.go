package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eskate/storefront-api/internal/platform/password"
)

type settings struct {
	Port     string        `env:"PORT" envDefault:"5556"`
	Issuer   string        `env:"ISSUER" envDefault:"http://devtoolkit:5556"`
	Audience string        `env:"AUDIENCE" envDefault:"storefront"`
	APIKey   string        `env:"API_KEY" envDefault:"dev-key"`
	KeyID    string        `env:"KID" envDefault:"dev-kid-1"`
	TokenTTL time.Duration `env:"TTL" envDefault:"1h"`
	LogMode  string        `env:"LOG_MODE" envDefault:"development"`
}

type account struct {
	localID string
	email   string
	hash    string
}

// emulator serves the email/password subset of the Identity Toolkit REST
// API plus the JWKS its ID tokens verify against. Accounts live in memory.
type emulator struct {
	cfg settings
	key *rsa.PrivateKey
	log *zap.Logger
	now func() time.Time

	mu      sync.Mutex
	byEmail map[string]account
}

func newEmulator(cfg settings, log *zap.Logger) (*emulator, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &emulator{
		cfg:     cfg,
		key:     key,
		log:     log,
		now:     time.Now,
		byEmail: make(map[string]account),
	}, nil
}

func (e *emulator) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/.well-known/jwks.json", e.serveJWKS)
	r.Post("/v1/{method}", e.serveAccounts)
	return r
}

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (e *emulator) serveJWKS(w http.ResponseWriter, _ *http.Request) {
	enc := base64.RawURLEncoding
	pub := e.key.PublicKey
	writeJSON(w, http.StatusOK, map[string][]jwk{"keys": {{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: e.cfg.KeyID,
		N:   enc.EncodeToString(pub.N.Bytes()),
		E:   enc.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}})
}

type accountsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IDToken  string `json:"idToken"`
}

func (e *emulator) serveAccounts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("key") != e.cfg.APIKey {
		writeToolkitError(w, http.StatusBadRequest, "API_KEY_INVALID")
		return
	}
	var in accountsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&in); err != nil {
		writeToolkitError(w, http.StatusBadRequest, "INVALID_JSON")
		return
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))

	method := chi.URLParam(r, "method")
	switch method {
	case "accounts:signUp":
		e.signUp(w, email, in.Password)
	case "accounts:signInWithPassword":
		e.signIn(w, email, in.Password)
	case "accounts:delete":
		e.delete(w, in.IDToken)
	default:
		writeToolkitError(w, http.StatusNotFound, "UNKNOWN_METHOD")
	}
}

func (e *emulator) signUp(w http.ResponseWriter, email, pw string) {
	if email == "" || !strings.Contains(email, "@") {
		writeToolkitError(w, http.StatusBadRequest, "INVALID_EMAIL")
		return
	}
	if len(pw) < 6 {
		writeToolkitError(w, http.StatusBadRequest, "WEAK_PASSWORD : Password should be at least 6 characters")
		return
	}
	hash, err := password.Hash(pw, 0)
	if err != nil {
		writeToolkitError(w, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}

	e.mu.Lock()
	if _, ok := e.byEmail[email]; ok {
		e.mu.Unlock()
		writeToolkitError(w, http.StatusBadRequest, "EMAIL_EXISTS")
		return
	}
	acct := account{localID: strings.ReplaceAll(uuid.NewString(), "-", ""), email: email, hash: hash}
	e.byEmail[email] = acct
	e.mu.Unlock()

	e.log.Info("account created", zap.String("localId", acct.localID), zap.String("email", email))
	e.writeToken(w, acct)
}

func (e *emulator) signIn(w http.ResponseWriter, email, pw string) {
	e.mu.Lock()
	acct, ok := e.byEmail[email]
	e.mu.Unlock()
	if !ok {
		writeToolkitError(w, http.StatusBadRequest, "EMAIL_NOT_FOUND")
		return
	}
	if password.Verify(pw, acct.hash) != nil {
		writeToolkitError(w, http.StatusBadRequest, "INVALID_PASSWORD")
		return
	}
	e.writeToken(w, acct)
}

func (e *emulator) delete(w http.ResponseWriter, idToken string) {
	subject, err := e.subjectOf(idToken)
	if err != nil {
		writeToolkitError(w, http.StatusBadRequest, "INVALID_ID_TOKEN")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for email, acct := range e.byEmail {
		if acct.localID == subject {
			delete(e.byEmail, email)
			e.log.Info("account deleted", zap.String("localId", subject))
			writeJSON(w, http.StatusOK, map[string]string{"kind": "identitytoolkit#DeleteAccountResponse"})
			return
		}
	}
	writeToolkitError(w, http.StatusBadRequest, "USER_NOT_FOUND")
}

type idTokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (e *emulator) mint(acct account) (string, error) {
	now := e.now().UTC()
	claims := idTokenClaims{
		Email: acct.email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.cfg.Issuer,
			Audience:  jwt.ClaimStrings{e.cfg.Audience},
			Subject:   acct.localID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(now.Add(e.cfg.TokenTTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = e.cfg.KeyID
	return tok.SignedString(e.key)
}

func (e *emulator) subjectOf(idToken string) (string, error) {
	var claims idTokenClaims
	_, err := jwt.ParseWithClaims(idToken, &claims, func(*jwt.Token) (any, error) {
		return &e.key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(e.cfg.Issuer),
		jwt.WithTimeFunc(e.now),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func (e *emulator) writeToken(w http.ResponseWriter, acct account) {
	token, err := e.mint(acct)
	if err != nil {
		e.log.Error("mint id token", zap.Error(err))
		writeToolkitError(w, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"idToken":      token,
		"localId":      acct.localID,
		"email":        acct.email,
		"refreshToken": uuid.NewString(),
		"expiresIn":    strconv.Itoa(int(e.cfg.TokenTTL / time.Second)),
	})
}

func writeToolkitError(w http.ResponseWriter, status int, message string) {
	var body struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	body.Error.Code = status
	body.Error.Message = message
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
