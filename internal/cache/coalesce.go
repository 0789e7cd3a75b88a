package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Coalescer wraps a Cache with request coalescing: concurrent callers
// asking for the same key while a Fetch is in flight share the single
// underlying call instead of each issuing their own.
type Coalescer struct {
	cache Cache
	group singleflight.Group
}

// NewCoalescer wraps an existing Cache.
func NewCoalescer(cache Cache) *Coalescer {
	return &Coalescer{cache: cache}
}

// Fetch returns the cached value for key if present; otherwise it calls
// fn exactly once per overlapping set of callers, caches the result for
// ttl, and returns it to all of them.
func (c *Coalescer) Fetch(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		val, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, val, ttl)
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
