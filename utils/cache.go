package utils

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL = 10 * time.Minute
	redisOpTimeout  = 2 * time.Second
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// Cache stores bytes in Redis with TTL, falling back to process memory when
// Redis is not configured or a call fails.
type Cache struct {
	rc  *redis.Client
	mu  sync.Mutex
	mem map[string]memEntry
}

// NewCache returns a cache over rc. A nil rc keeps entries in memory only.
func NewCache(rc *redis.Client) *Cache {
	return &Cache{rc: rc, mem: map[string]memEntry{}}
}

// GetBytes returns cached bytes for key.
func (c *Cache) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	if c.rc != nil {
		rctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		defer cancel()
		b, err := c.rc.Get(rctx, key).Bytes()
		if err == nil {
			return b, true
		}
		if err != redis.Nil {
			Sugar.Debugf("cache get failed key=%s err=%v", key, err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.mem[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.mem, key)
		return nil, false
	}
	return entry.value, true
}

// SetBytes stores b under key for ttl.
func (c *Cache) SetBytes(ctx context.Context, key string, b []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if c.rc != nil {
		rctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
		defer cancel()
		err := c.rc.Set(rctx, key, b, ttl).Err()
		if err == nil {
			return
		}
		Sugar.Warnf("cache set failed key=%s err=%v", key, err)
	}
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.mem {
		if now.After(e.expiresAt) {
			delete(c.mem, k)
		}
	}
	c.mem[key] = memEntry{value: b, expiresAt: now.Add(ttl)}
}

// GetJSON decodes the cached JSON for key into v.
func (c *Cache) GetJSON(ctx context.Context, key string, v interface{}) bool {
	b, ok := c.GetBytes(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(b, v) == nil
}

// SetJSON marshals v and stores JSON bytes.
func (c *Cache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.SetBytes(ctx, key, b, ttl)
}
