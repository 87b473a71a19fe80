package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/xhad/pai/pkg/cache"
	"github.com/xhad/pai/pkg/llm"
)

func TestEncodeDecode(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3.4028235e38}

	data := cache.Encode(v)
	assert.Len(t, data, 16)

	back, err := cache.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, v, back)

	_, err = cache.Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNewRedisBadURL(t *testing.T) {
	_, err := cache.NewRedis(context.Background(), "not a url", time.Hour, zap.NewNop())
	assert.Error(t, err)
}

// startRedis starts a Redis testcontainer and returns its URL.
func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return "redis://" + endpoint
}

func TestRedisCache(t *testing.T) {
	url := startRedis(t)
	ctx := context.Background()

	c, err := cache.NewRedis(ctx, url, time.Minute, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	var _ llm.Cache = c

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	c.Set(ctx, "k", []float32{0.25, 0.5})
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []float32{0.25, 0.5}, v)

	assert.NoError(t, c.Ping(ctx))
}
