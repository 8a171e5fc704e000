package config

import (
	"errors"
	"time"
)

// JWTConfig configures ID token verification against a JWKS endpoint.
// It is only required when the remote identity backend is selected.
type JWTConfig struct {
	Issuer   string `env:"JWT_ISSUER"`
	Audience string `env:"JWT_AUDIENCE"`
	JWKSURL  string `env:"JWT_JWKS_URL"`

	ClockSkew time.Duration `env:"JWT_CLOCK_SKEW" envDefault:"30s"`
	// Refresh periodically to pick up key rotation even if an old key is still cached.
	JWKSRefreshInterval time.Duration `env:"JWT_JWKS_REFRESH_INTERVAL" envDefault:"5m"`
	// Bounds refreshes triggered by an unknown kid.
	JWKSMinRefreshInterval time.Duration `env:"JWT_JWKS_MIN_REFRESH_INTERVAL" envDefault:"10s"`

	HTTPTimeout time.Duration `env:"JWT_HTTP_TIMEOUT" envDefault:"5s"`
}

func (c JWTConfig) Validate() error {
	if c.Issuer == "" || c.Audience == "" || c.JWKSURL == "" {
		return errors.New("missing required env vars: JWT_ISSUER, JWT_AUDIENCE, JWT_JWKS_URL")
	}
	if c.ClockSkew < 0 || c.JWKSRefreshInterval < 0 || c.JWKSMinRefreshInterval < 0 {
		return errors.New("JWT durations must not be negative")
	}
	return nil
}
