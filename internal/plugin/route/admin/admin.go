// Package admin serves operator endpoints on the management listener.
package admin

import (
	"net/http"

	"github.com/chirino/weave-service/internal/plugin/route/routeutil"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts operator endpoints. They carry no caller identity and
// belong on the management router.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore) {
	r.GET("/admin/index-queue", func(c *gin.Context) {
		stats, err := store.IndexQueueStats(c.Request.Context())
		if err != nil {
			routeutil.HandleError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	})
}
