// Package config loads the API's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendKafka    = "kafka"

	IdentityLocal   = "local"
	IdentityToolkit = "toolkit"
)

type Config struct {
	Port    int    `env:"PORT" envDefault:"8080"`
	LogMode string `env:"LOG_MODE" envDefault:"production"`

	ValidationLocale   string `env:"VALIDATION_LOCALE" envDefault:"en"`
	ValidationTimezone string `env:"VALIDATION_TIMEZONE" envDefault:"UTC"`
	MinimumAge         int    `env:"MINIMUM_AGE" envDefault:"18"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"memory"`
	DatabaseURL    string `env:"DATABASE_URL"`
	ProfileIssuer  string `env:"PROFILE_ISSUER" envDefault:"storefront-local"`

	SessionCacheBackend    string        `env:"SESSION_CACHE_BACKEND" envDefault:"memory"`
	SessionCacheSQLitePath string        `env:"SESSION_CACHE_SQLITE_PATH" envDefault:"storefront-sessions.db"`
	RedisURL               string        `env:"REDIS_URL"`
	SessionCacheTTL        time.Duration `env:"SESSION_CACHE_TTL" envDefault:"0s"`

	IdentityBackend          string        `env:"IDENTITY_BACKEND" envDefault:"local"`
	LocalIdentityTokenSecret string        `env:"LOCAL_IDENTITY_TOKEN_SECRET"`
	LocalIdentityTokenTTL    time.Duration `env:"LOCAL_IDENTITY_TOKEN_TTL" envDefault:"24h"`
	IdentityToolkitURL       string        `env:"IDENTITY_TOOLKIT_URL" envDefault:"https://identitytoolkit.googleapis.com"`
	IdentityToolkitAPIKey    string        `env:"IDENTITY_TOOLKIT_API_KEY"`
	JWT                      JWTConfig

	OrphanReporter   string `env:"ORPHAN_REPORTER" envDefault:"memory"`
	KafkaBrokers     string `env:"KAFKA_BROKERS"`
	KafkaOrphanTopic string `env:"KAFKA_ORPHAN_TOPIC" envDefault:"storefront.orphaned-identities"`

	CompensationTimeout  time.Duration `env:"COMPENSATION_TIMEOUT" envDefault:"10s"`
	CheckTimeout         time.Duration `env:"AVAILABILITY_CHECK_TIMEOUT" envDefault:"5s"`
	IdempotencyRetention time.Duration `env:"IDEMPOTENCY_RETENTION" envDefault:"24h"`
	DeviceIdleTimeout    time.Duration `env:"DEVICE_IDLE_TIMEOUT" envDefault:"30m"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the environment and rejects invalid backend combinations.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.LogMode != "development" && c.LogMode != "production" {
		errs = append(errs, fmt.Errorf("LOG_MODE must be development or production, got %q", c.LogMode))
	}
	if c.MinimumAge <= 0 {
		errs = append(errs, fmt.Errorf("MINIMUM_AGE must be positive, got %d", c.MinimumAge))
	}
	if _, err := time.LoadLocation(c.ValidationTimezone); err != nil {
		errs = append(errs, fmt.Errorf("VALIDATION_TIMEZONE: %w", err))
	}

	switch c.StorageBackend {
	case BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORAGE_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be memory or postgres, got %q", c.StorageBackend))
	}

	switch c.SessionCacheBackend {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.SessionCacheSQLitePath) == "" {
			errs = append(errs, errors.New("SESSION_CACHE_SQLITE_PATH is required when SESSION_CACHE_BACKEND=sqlite"))
		}
	case BackendRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			errs = append(errs, errors.New("REDIS_URL is required when SESSION_CACHE_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("SESSION_CACHE_BACKEND must be memory, sqlite or redis, got %q", c.SessionCacheBackend))
	}

	switch c.IdentityBackend {
	case IdentityLocal:
		if len(c.LocalIdentityTokenSecret) < 32 {
			errs = append(errs, errors.New("LOCAL_IDENTITY_TOKEN_SECRET must be at least 32 bytes when IDENTITY_BACKEND=local"))
		}
	case IdentityToolkit:
		if c.IdentityToolkitAPIKey == "" {
			errs = append(errs, errors.New("IDENTITY_TOOLKIT_API_KEY is required when IDENTITY_BACKEND=toolkit"))
		}
		if err := c.JWT.Validate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("IDENTITY_BACKEND must be local or toolkit, got %q", c.IdentityBackend))
	}

	switch c.OrphanReporter {
	case BackendMemory:
	case BackendKafka:
		if strings.TrimSpace(c.KafkaBrokers) == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when ORPHAN_REPORTER=kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("ORPHAN_REPORTER must be memory or kafka, got %q", c.OrphanReporter))
	}

	if c.CompensationTimeout <= 0 || c.CheckTimeout <= 0 {
		errs = append(errs, errors.New("COMPENSATION_TIMEOUT and AVAILABILITY_CHECK_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// Location returns the time zone "today" is computed in for age checks.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ValidationTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
