package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Store is a keyed value cache. Values are JSON-encoded except strings and
// byte slices, which are stored raw.
type Store interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
}

// Locker hands out expiring advisory locks. A lock is released by the
// instance that took it; Unlock of a lock that expired and was taken by
// someone else is a no-op.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Service is a Store that also hands out locks.
type Service interface {
	Store
	Locker
}

// Key joins non-empty parts with ':'.
func Key(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ":")
}

// Fetch reads key from s, calling load on a miss and caching its result
// for ttl. hit reports whether the value came from the cache. Cache read
// and write failures degrade to a direct load; only load errors are
// returned. A nil store always loads.
func Fetch[T any](ctx context.Context, s Store, key string, ttl time.Duration, load func(context.Context) (T, error)) (v T, hit bool, err error) {
	if s != nil {
		if err := s.Get(ctx, key, &v); err == nil {
			return v, true, nil
		}
	}
	v, err = load(ctx)
	if err != nil {
		return v, false, err
	}
	if s != nil {
		_ = s.Set(ctx, key, v, ttl)
	}
	return v, false, nil
}
