package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, time.September, 9, 8, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx, "week")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "week", []byte("payload"), time.Minute))
	val, ok, err := c.Get(ctx, "week")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "payload", string(val))

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx, "week")
	require.NoError(t, err)
	assert.False(t, ok, "expired")

	require.NoError(t, c.Set(ctx, "forever", []byte("x"), 0))
	now = now.Add(24 * time.Hour)
	_, ok, _ = c.Get(ctx, "forever")
	assert.True(t, ok)
}

func TestMemoryCacheIncr(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	for want := int64(1); want <= 3; want++ {
		n, err := c.Incr(ctx, "gen")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	val, ok, err := c.Get(ctx, "gen")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", string(val))

	require.NoError(t, c.Set(ctx, "word", []byte("abc"), 0))
	_, err = c.Incr(ctx, "word")
	assert.Error(t, err)
}
