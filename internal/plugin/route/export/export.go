package export

import (
	"net/http"

	"github.com/chirino/weave-service/internal/plugin/route/routeutil"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/chirino/weave-service/internal/security"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts the owner data export.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore, auth gin.HandlerFunc) {
	r.GET("/v1/export", auth, func(c *gin.Context) {
		result, err := store.Export(c.Request.Context(), security.GetUserID(c))
		if err != nil {
			routeutil.HandleError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="weave-export.json"`)
		c.JSON(http.StatusOK, result)
	})
}
