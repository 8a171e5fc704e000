package sessioncache

import (
	"context"
	"sync"
)

// Cache is an in-memory implementation of sessioncache.Cache.
// It is safe for concurrent use. Values do not survive a process restart.
type Cache struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewCache() *Cache {
	return &Cache{m: make(map[string]string)}
}

func (c *Cache) Set(ctx context.Context, key, value string) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}
