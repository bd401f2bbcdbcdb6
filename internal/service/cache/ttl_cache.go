package cache

import (
	"context"
	"sync"
	"time"
)

type blob struct {
	b       []byte
	expires time.Time
}

func (e blob) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

// TTLCache keeps model artifacts in process when Redis is off. Values
// are copied in and out so callers cannot alias a stored artifact.
type TTLCache struct {
	mu    sync.Mutex
	blobs map[string]blob
	now   func() time.Time
}

func NewTTLCache() *TTLCache {
	return &TTLCache{blobs: make(map[string]blob), now: time.Now}
}

func (c *TTLCache) lookup(key string) (blob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.blobs[key]
	if ok && !e.live(c.now()) {
		delete(c.blobs, key)
		return blob{}, false
	}
	return e, ok
}

func (c *TTLCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := c.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.b...), true, nil
}

func (c *TTLCache) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := blob{b: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.mu.Lock()
	c.blobs[key] = e
	c.mu.Unlock()
	return nil
}

func (c *TTLCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.lookup(key)
	return ok, nil
}

var (
	_ BytesCache = (*TTLCache)(nil)
	_ BytesCache = (*RedisCache)(nil)
)
