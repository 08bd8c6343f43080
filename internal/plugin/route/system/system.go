package system

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registryroute "github.com/chirino/weave-service/internal/registry/route"
)

// Check probes a dependency for readiness.
type Check func(ctx context.Context) error

var (
	ready    atomic.Bool
	checksMu sync.RWMutex
	checks   = map[string]Check{}
)

// MarkReady signals that startup has completed.
func MarkReady() {
	ready.Store(true)
}

// AddReadinessCheck registers a named probe consulted by /ready.
func AddReadinessCheck(name string, check Check) {
	checksMu.Lock()
	defer checksMu.Unlock()
	checks[name] = check
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 0,
		Type:  registryroute.RouteTypeManagement,
		Loader: func(r *gin.Engine) error {
			r.GET("/health", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})
			r.GET("/ready", readiness)
			r.GET("/metrics", gin.WrapH(promhttp.Handler()))
			return nil
		},
	})
}

func readiness(c *gin.Context) {
	if !ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checksMu.RLock()
	defer checksMu.RUnlock()
	failed := gin.H{}
	for name, check := range checks {
		if err := check(ctx); err != nil {
			log.Warn("Readiness check failed", "check", name, "err", err)
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failed": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
