package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/weave-service/internal/config"
	registryratelimit "github.com/chirino/weave-service/internal/registry/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "weave:ratelimit:"

func init() {
	registryratelimit.Register(registryratelimit.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registryratelimit.Limiter, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis rate limiter: WEAVE_REDIS_URL is required")
	}
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis rate limiter: invalid URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis rate limiter: ping failed: %w", err)
	}
	return New(client, cfg.RateLimitPerMinute), nil
}

// Limiter counts requests in fixed one-minute windows shared by every
// service instance using the same Redis.
type Limiter struct {
	client    goredis.UniversalClient
	perMinute int
	now       func() time.Time
}

func New(client goredis.UniversalClient, perMinute int) *Limiter {
	return &Limiter{client: client, perMinute: perMinute, now: time.Now}
}

func (l *Limiter) Name() string { return "redis" }

func (l *Limiter) Allow(ctx context.Context, key string) (registryratelimit.Decision, error) {
	now := l.now()
	window := now.Truncate(time.Minute)
	redisKey := fmt.Sprintf("%s%s:%d", keyPrefix, key, window.Unix())

	var incr *goredis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, time.Minute+5*time.Second)
		return nil
	})
	if err != nil {
		return registryratelimit.Decision{}, fmt.Errorf("redis rate limiter: %w", err)
	}

	count := int(incr.Val())
	d := registryratelimit.Decision{
		Allowed:   count <= l.perMinute,
		Limit:     l.perMinute,
		Remaining: max(l.perMinute-count, 0),
	}
	if !d.Allowed {
		d.RetryAfter = window.Add(time.Minute).Sub(now)
	}
	return d, nil
}

var _ registryratelimit.Limiter = (*Limiter)(nil)
