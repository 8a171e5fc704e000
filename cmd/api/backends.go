package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/eskate/storefront-api/internal/adapters/identitytoolkit"
	kafkaorphans "github.com/eskate/storefront-api/internal/adapters/kafka/orphanreport"
	memidempotency "github.com/eskate/storefront-api/internal/adapters/memory/idempotency"
	memidentity "github.com/eskate/storefront-api/internal/adapters/memory/identityprovider"
	memorphans "github.com/eskate/storefront-api/internal/adapters/memory/orphanreport"
	memprofiles "github.com/eskate/storefront-api/internal/adapters/memory/profilestore"
	memcache "github.com/eskate/storefront-api/internal/adapters/memory/sessioncache"
	"github.com/eskate/storefront-api/internal/adapters/postgres"
	pgidempotency "github.com/eskate/storefront-api/internal/adapters/postgres/idempotency"
	pgprofiles "github.com/eskate/storefront-api/internal/adapters/postgres/profilestore"
	rediscache "github.com/eskate/storefront-api/internal/adapters/redis/sessioncache"
	sqlitecache "github.com/eskate/storefront-api/internal/adapters/sqlite/sessioncache"
	"github.com/eskate/storefront-api/internal/app/device"
	"github.com/eskate/storefront-api/internal/platform/auth/jwtverifier"
	"github.com/eskate/storefront-api/internal/platform/config"
	clockport "github.com/eskate/storefront-api/internal/ports/out/clock"
	"github.com/eskate/storefront-api/internal/ports/out/idempotency"
	"github.com/eskate/storefront-api/internal/ports/out/identityprovider"
	"github.com/eskate/storefront-api/internal/ports/out/orphanreport"
	"github.com/eskate/storefront-api/internal/ports/out/profilestore"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

// backends are the adapters selected by configuration.
type backends struct {
	profiles   profilestore.Store
	idem       idempotency.Store
	sessions   sessioncache.Cache
	identities device.IdentityFactory
	orphans    orphanreport.Reporter

	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config, clk clockport.Clock, log *zap.Logger) (_ *backends, err error) {
	b := &backends{}
	defer func() {
		if err != nil {
			b.close()
		}
	}()

	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		b.profiles = pgprofiles.NewStore(pool, cfg.ProfileIssuer)
		b.idem = pgidempotency.NewStore(pool)
	default:
		b.profiles = memprofiles.NewStore(clk)
		b.idem = memidempotency.NewStore(clk, cfg.IdempotencyRetention)
	}

	switch cfg.SessionCacheBackend {
	case config.BackendSQLite:
		cache, err := sqlitecache.Open(cfg.SessionCacheSQLitePath, clk)
		if err != nil {
			return nil, fmt.Errorf("session cache: %w", err)
		}
		b.closers = append(b.closers, func() { _ = cache.Close() })
		b.sessions = cache
	case config.BackendRedis:
		client, err := rediscache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("session cache: %w", err)
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.sessions = rediscache.NewCache(client, rediscache.DefaultPrefix, cfg.SessionCacheTTL)
	default:
		b.sessions = memcache.NewCache()
	}

	switch cfg.IdentityBackend {
	case config.IdentityToolkit:
		verifier := jwtverifier.New(cfg.JWT)
		svc, err := identitytoolkit.NewService(identitytoolkit.Options{
			BaseURL:    cfg.IdentityToolkitURL,
			APIKey:     cfg.IdentityToolkitAPIKey,
			HTTPClient: &http.Client{Timeout: 10 * time.Second},
			Logger:     log.Named("identitytoolkit"),
		}, verifier)
		if err != nil {
			return nil, err
		}
		b.identities = func(c sessioncache.Cache) identityprovider.Provider { return svc.Client(c) }
	default:
		dir, err := memidentity.NewDirectory(clk, memidentity.Options{
			TokenSecret: []byte(cfg.LocalIdentityTokenSecret),
			TokenTTL:    cfg.LocalIdentityTokenTTL,
			Issuer:      cfg.ProfileIssuer,
		})
		if err != nil {
			return nil, err
		}
		log.Warn("local identity directory in use; accounts are lost on restart")
		b.identities = func(c sessioncache.Cache) identityprovider.Provider { return dir.Client(c) }
	}

	switch cfg.OrphanReporter {
	case config.BackendKafka:
		client, err := kafkaorphans.NewClient(cfg.KafkaBrokers)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.orphans = kafkaorphans.NewReporter(client, cfg.KafkaOrphanTopic)
	default:
		b.orphans = memorphans.NewReporter()
	}
	return b, nil
}
