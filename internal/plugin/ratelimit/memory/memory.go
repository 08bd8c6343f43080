package memory

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chirino/weave-service/internal/config"
	registryratelimit "github.com/chirino/weave-service/internal/registry/ratelimit"
	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/time/rate"
)

// idleTTL only needs to exceed the refill time of a bucket: an evicted
// bucket would have been full again anyway.
const idleTTL = 2 * time.Minute

func init() {
	registryratelimit.Register(registryratelimit.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registryratelimit.Limiter, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil {
				return nil, fmt.Errorf("memory rate limiter: missing config in context")
			}
			l, err := New(cfg.RateLimitPerMinute)
			if err != nil {
				return nil, err
			}
			go func() {
				<-ctx.Done()
				l.Close()
			}()
			return l, nil
		},
	})
}

// Limiter keeps one token bucket per key in a bounded TTL cache. Buckets hold
// perMinute tokens and refill continuously.
type Limiter struct {
	perMinute int
	mu        sync.Mutex
	buckets   *ristretto.Cache[string, *rate.Limiter]
}

func New(perMinute int) (*Limiter, error) {
	if perMinute <= 0 {
		return nil, fmt.Errorf("memory rate limiter: per-minute budget must be positive")
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *rate.Limiter]{
		NumCounters: 1e6,
		MaxCost:     1e5,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("memory rate limiter: %w", err)
	}
	return &Limiter{perMinute: perMinute, buckets: cache}, nil
}

func (l *Limiter) Name() string { return "memory" }

func (l *Limiter) Allow(_ context.Context, key string) (registryratelimit.Decision, error) {
	bucket := l.bucket(key)
	now := time.Now()
	d := registryratelimit.Decision{Limit: l.perMinute, Allowed: bucket.AllowN(now, 1)}
	tokens := bucket.TokensAt(now)
	d.Remaining = max(int(math.Floor(tokens)), 0)
	if !d.Allowed {
		perSecond := float64(bucket.Limit())
		d.RetryAfter = time.Duration((1 - tokens) / perSecond * float64(time.Second))
	}
	return d, nil
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets.Get(key)
	if !ok {
		b = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60), l.perMinute)
	}
	l.buckets.SetWithTTL(key, b, 1, idleTTL)
	if !ok {
		l.buckets.Wait()
	}
	return b
}

func (l *Limiter) Close() {
	l.buckets.Close()
}

var _ registryratelimit.Limiter = (*Limiter)(nil)
