package device

import (
	"context"

	"github.com/eskate/storefront-api/internal/domain"
	"github.com/eskate/storefront-api/internal/ports/out/sessioncache"
)

// scopedCache confines a device to its own key namespace of a shared cache.
type scopedCache struct {
	inner  sessioncache.Cache
	prefix string
}

var _ sessioncache.Cache = scopedCache{}

func scope(inner sessioncache.Cache, id domain.DeviceID) scopedCache {
	return scopedCache{inner: inner, prefix: "device/" + string(id) + "/"}
}

func (c scopedCache) Set(ctx context.Context, key, value string) error {
	return c.inner.Set(ctx, c.prefix+key, value)
}

func (c scopedCache) Get(ctx context.Context, key string) (string, bool, error) {
	return c.inner.Get(ctx, c.prefix+key)
}

func (c scopedCache) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, c.prefix+key)
}
