package redis

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/weave-service/internal/config"
	"github.com/chirino/weave-service/internal/testutil/testredis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_FixedWindow(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RedisURL = testredis.StartRedis(t)
	cfg.RateLimitPerMinute = 2
	ctx := config.WithContext(context.Background(), &cfg)

	loaded, err := load(ctx)
	require.NoError(t, err)
	l := loaded.(*Limiter)

	clock := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	l.now = func() time.Time { return clock }

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, "ip:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 50*time.Second, d.RetryAfter)

	clock = clock.Add(time.Minute)
	d, err = l.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}
