package sessioncache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestGet_UnreachableServerIsAnError(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	c := NewCache(client, "", 0)

	_, ok, err := c.Get(context.Background(), "userEmail")
	require.Error(t, err)
	require.False(t, ok)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient(context.Background(), "not-a-url")
	require.Error(t, err)
}
