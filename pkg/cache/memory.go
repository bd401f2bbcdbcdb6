package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
}

func (m memoryItem) expired(now time.Time) bool {
	return now.After(m.expireAt)
}

// MemoryCache is a size-bounded LRU with per-entry expiry. It stands in for
// Redis when Redis is disabled, and serves as L1 of LayeredCache.
type MemoryCache struct {
	items      *lru.Cache[string, memoryItem]
	defaultTTL time.Duration
	// locks live outside the LRU so eviction cannot release them.
	lockMu sync.Mutex
	locks  map[string]time.Time
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// NewMemoryCache starts a cache and its expiry sweeper. Close stops it.
func NewMemoryCache(cfg MemoryConfig) *MemoryCache {
	cfg = withDefaults(cfg)
	items, _ := lru.New[string, memoryItem](max(cfg.MaxSize, 1))
	mc := &MemoryCache{
		items:      items,
		defaultTTL: cfg.DefaultTTL,
		locks:      make(map[string]time.Time),
		ticker:     time.NewTicker(cfg.Sweep),
		done:       make(chan struct{}),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = mc.defaultTTL
	}
	mc.items.Add(key, memoryItem{data: data, expireAt: time.Now().Add(expiration)})
	return nil
}

func (mc *MemoryCache) lookup(key string) ([]byte, bool) {
	item, ok := mc.items.Get(key)
	if !ok {
		return nil, false
	}
	if item.expired(time.Now()) {
		mc.items.Remove(key)
		return nil, false
	}
	return item.data, true
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	data, ok := mc.lookup(key)
	if !ok {
		return ErrCacheMiss
	}
	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		mc.items.Remove(key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	for _, key := range keys {
		if _, ok := mc.lookup(key); ok {
			return true, nil
		}
	}
	return false, nil
}

// Len counts live and not yet swept entries.
func (mc *MemoryCache) Len() int {
	return mc.items.Len()
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.lockMu.Lock()
	defer mc.lockMu.Unlock()

	now := time.Now()
	if until, held := mc.locks[key]; held && now.Before(until) {
		return false, nil
	}
	mc.locks[key] = now.Add(ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(_ context.Context, key string) error {
	mc.lockMu.Lock()
	delete(mc.locks, key)
	mc.lockMu.Unlock()
	return nil
}

func (mc *MemoryCache) sweep() {
	for {
		select {
		case <-mc.done:
			return
		case now := <-mc.ticker.C:
			for _, key := range mc.items.Keys() {
				if item, ok := mc.items.Peek(key); ok && item.expired(now) {
					mc.items.Remove(key)
				}
			}
			mc.lockMu.Lock()
			for key, until := range mc.locks {
				if now.After(until) {
					delete(mc.locks, key)
				}
			}
			mc.lockMu.Unlock()
		}
	}
}

// Close stops the sweeper. Safe to call twice.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() {
		mc.ticker.Stop()
		close(mc.done)
	})
	return nil
}
