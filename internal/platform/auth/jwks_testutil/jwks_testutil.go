// Package jwks_testutil serves a rotating JWKS and mints RS256 ID tokens for
// tests of the token verifier and the remote identity provider.
package jwks_testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Keypair struct {
	Kid     string
	Private *rsa.PrivateKey
}

func GenerateRSAKeypair(kid string) (Keypair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Kid: kid, Private: priv}, nil
}

// NewRotatingJWKSServer returns a JWKS server whose key set can be swapped at
// runtime with the returned setter. Fetches counts every request served.
func NewRotatingJWKSServer() (srv *httptest.Server, setKeys func(keys []Keypair), fetches *atomic.Int64) {
	var jwksJSON atomic.Value // string
	jwksJSON.Store(`{"keys":[]}`)
	fetches = new(atomic.Int64)

	setKeys = func(keys []Keypair) {
		type jwk struct {
			Kty string `json:"kty"`
			Use string `json:"use"`
			Alg string `json:"alg"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		}
		out := struct {
			Keys []jwk `json:"keys"`
		}{Keys: make([]jwk, 0, len(keys))}
		for _, kp := range keys {
			pub := kp.Private.PublicKey
			out.Keys = append(out.Keys, jwk{
				Kty: "RSA",
				Use: "sig",
				Alg: "RS256",
				Kid: kp.Kid,
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				// e is a big-endian unsigned int.
				E: base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			})
		}
		b, _ := json.Marshal(out)
		jwksJSON.Store(string(b))
	}

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(jwksJSON.Load().(string)))
	}))
	return srv, setKeys, fetches
}

// Token describes an ID token to mint.
type Token struct {
	Issuer   string
	Audience string
	Subject  string
	Email    string
	IssuedAt time.Time
	TTL      time.Duration
	// NotBefore is relative to IssuedAt; nil omits the claim.
	NotBefore *time.Duration
}

// MintIDToken signs tok with kp using RS256 and the kid header set.
func MintIDToken(kp Keypair, tok Token) (string, error) {
	claims := jwt.MapClaims{
		"iss": tok.Issuer,
		"aud": tok.Audience,
		"sub": tok.Subject,
		"iat": tok.IssuedAt.Unix(),
		"exp": tok.IssuedAt.Add(tok.TTL).Unix(),
	}
	if tok.Email != "" {
		claims["email"] = tok.Email
	}
	if tok.NotBefore != nil {
		claims["nbf"] = tok.IssuedAt.Add(*tok.NotBefore).Unix()
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = kp.Kid
	return t.SignedString(kp.Private)
}
