package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	var dst map[string]string
	assert.False(t, c.GetJSON(ctx, "k", &dst))
	assert.NoError(t, c.SetJSON(ctx, "k", map[string]string{"a": "b"}, time.Minute))
	assert.NoError(t, c.Ping(ctx))
	assert.NoError(t, c.Close())
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}

	c, err := New(addr, os.Getenv("TEST_REDIS_PASSWORD"))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.SetJSON(ctx, "test:location", map[string]float64{"lat": 13.1}, time.Minute))

	var got map[string]float64
	require.True(t, c.GetJSON(ctx, "test:location", &got))
	assert.InDelta(t, 13.1, got["lat"], 0.0001)
}
