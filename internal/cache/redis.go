package cache

import (
	"context"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCache backs Cache with a shared Redis instance, for deployments that
// run multiple client processes and want them to observe the same warm
// entries.
type RedisCache struct {
	r *redis.Client
}

// NewRedisCache wraps an existing redis.Client.
func NewRedisCache(r *redis.Client) *RedisCache {
	return &RedisCache{r: r}
}

// NewAuto returns a RedisCache when REDIS_ADDR is set in the
// environment, or an in-process TTLCache otherwise.
func NewAuto(maxEntries int) Cache {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return NewRedisCache(redis.NewClient(&redis.Options{Addr: addr}))
	}
	return NewTTLCache(maxEntries)
}

func (r *RedisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	v, err := r.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *RedisCache) Set(key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = r.r.Set(ctx, key, val, ttl).Err()
}
