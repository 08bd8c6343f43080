package security

import (
	"math"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	registryratelimit "github.com/chirino/weave-service/internal/registry/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware enforces the limiter's budget per caller: the user id
// when authenticated, otherwise the client IP. Limiter errors fail open.
func RateLimitMiddleware(limiter registryratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enforceRateLimit(c, limiter) {
			return
		}
		c.Next()
	}
}

// enforceRateLimit reports whether the request may proceed; when it may not,
// the response has already been written.
func enforceRateLimit(c *gin.Context, limiter registryratelimit.Limiter) bool {
	if limiter == nil {
		return true
	}
	key := "user:" + GetUserID(c)
	if GetUserID(c) == "" {
		key = "ip:" + c.ClientIP()
	}

	d, err := limiter.Allow(c.Request.Context(), key)
	if err != nil {
		log.Warn("Rate limiter unavailable; allowing request", "limiter", limiter.Name(), "err", err)
		RecordDegraded("ratelimit")
		return true
	}
	if d.Limit > 0 {
		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	}
	if d.Allowed {
		return true
	}
	if d.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
	}
	if RateLimitedTotal != nil {
		RateLimitedTotal.Inc()
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": "rate_limited", "error": "Rate limit exceeded"})
	return false
}
