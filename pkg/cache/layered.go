package cache

import (
	"context"
	"time"
)

// LayeredCache is a two-level cache: L1 memory, L2 Redis.
type LayeredCache struct {
	mem   *MemoryCache
	redis *RedisCache
}

// NewLayeredCache creates a layered cache over the given Redis client.
func NewLayeredCache(redis *RedisCache, memMaxSize int) *LayeredCache {
	return &LayeredCache{
		mem:   NewMemoryCache(memMaxSize),
		redis: redis,
	}
}

// Set writes through: Redis first, then memory.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.redis.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, value, expiration)
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.redis.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, dest, 0)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.redis.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.redis.Exists(ctx, keys...)
}

func (lc *LayeredCache) Close() error {
	_ = lc.mem.Close()
	return lc.redis.Close()
}
