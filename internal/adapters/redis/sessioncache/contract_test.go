//go:build integration

package sessioncache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/eskate/storefront-api/internal/adapters/contracttest"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	client, err := NewClient(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestContract_RedisSessionCache(t *testing.T) {
	client := startRedis(t)

	contracttest.RunSessionCache(t, func(t *testing.T) (sessioncache.Cache, contracttest.CleanupFunc) {
		return NewCache(client, "test:"+uuid.NewString()+":", 0), nil
	})
}

func TestEntriesExpire(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	c := NewCache(client, "", time.Minute)

	require.NoError(t, c.Set(ctx, sessioncache.MarkerKey, "ana@example.com"))
	ttl, err := client.TTL(ctx, DefaultPrefix+sessioncache.MarkerKey).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
	require.LessOrEqual(t, ttl, time.Minute)
}
