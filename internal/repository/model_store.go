package repository

import (
	"context"
	"fmt"
	"time"

	domrepo "SOCPulse/internal/domain/repository"
	svccache "SOCPulse/internal/service/cache"
)

// CacheModelStore keeps model artifacts in a BytesCache (Redis in
// production). Artifacts do not expire unless ttl is set.
type CacheModelStore struct {
	cache  svccache.BytesCache
	prefix string
	ttl    time.Duration
}

func NewCacheModelStore(c svccache.BytesCache, ttl time.Duration) *CacheModelStore {
	return &CacheModelStore{cache: c, prefix: "models:", ttl: ttl}
}

var _ domrepo.ModelStore = (*CacheModelStore)(nil)

func (s *CacheModelStore) Save(ctx context.Context, key string, blob []byte) error {
	if len(blob) == 0 {
		return fmt.Errorf("save model %s: empty artifact", key)
	}
	if err := s.cache.SetBytes(ctx, s.prefix+key, blob, s.ttl); err != nil {
		return fmt.Errorf("save model %s: %w", key, err)
	}
	return nil
}

func (s *CacheModelStore) Load(ctx context.Context, key string) ([]byte, error) {
	b, ok, err := s.cache.GetBytes(ctx, s.prefix+key)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("model %s: %w", key, domrepo.ErrNotFound)
	}
	return b, nil
}

func (s *CacheModelStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.cache.Exists(ctx, s.prefix+key)
}
