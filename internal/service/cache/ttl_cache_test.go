package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheBytes(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache()

	blob := []byte(`{"trees":[]}`)
	require.NoError(t, c.SetBytes(ctx, "anomaly/cpu", blob, 0))
	blob[0] = 'X'

	got, ok, err := c.GetBytes(ctx, "anomaly/cpu")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"trees":[]}`, string(got))

	ok, _ = c.Exists(ctx, "anomaly/memory")
	assert.False(t, ok)

	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	require.NoError(t, c.SetBytes(ctx, "short", []byte("x"), time.Minute))
	ok, _ = c.Exists(ctx, "short")
	assert.True(t, ok)
	now = now.Add(time.Minute)
	_, ok, _ = c.GetBytes(ctx, "short")
	assert.False(t, ok)
}
