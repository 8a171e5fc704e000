package sessioncache

import "context"

// MarkerKey is the key holding the verified email of the device's session.
const MarkerKey = "userEmail"

// Cache is a small device-scoped key/value store that survives app restarts.
type Cache interface {
	Set(ctx context.Context, key, value string) error
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error
}
