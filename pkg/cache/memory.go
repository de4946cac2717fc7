package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memEntry struct {
	data []byte
	exp  time.Time
}

// MemoryCache is a process-local TTL cache storing JSON-encoded values.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	maxSize int
}

// NewMemoryCache creates an in-memory cache. maxSize <= 0 means unbounded.
func NewMemoryCache(maxSize int) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memEntry),
		maxSize: maxSize,
	}
}

func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var exp time.Time
	if expiration > 0 {
		exp = time.Now().Add(expiration)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOneLocked()
	}
	c.entries[key] = memEntry{data: data, exp: exp}
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return ErrCacheMiss
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return ErrCacheMiss
	}
	return json.Unmarshal(e.data, dest)
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *MemoryCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, k := range keys {
		if e, ok := c.entries[k]; ok {
			if e.exp.IsZero() || time.Now().Before(e.exp) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]memEntry)
	c.mu.Unlock()
	return nil
}

// evictOneLocked drops an expired entry if one exists, otherwise an
// arbitrary entry. Caller holds the write lock.
func (c *MemoryCache) evictOneLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(c.entries, k)
			return
		}
	}
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}
