package cache

import (
	"context"
	"time"
)

// BytesCache stores opaque blobs, e.g. model artifacts. A zero ttl keeps
// the value until overwritten.
type BytesCache interface {
	GetBytes(ctx context.Context, key string) (b []byte, ok bool, err error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}
