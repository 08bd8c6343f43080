package graph

import (
	"net/http"

	"github.com/chirino/weave-service/internal/plugin/route/routeutil"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/chirino/weave-service/internal/security"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts the edge weaver and graph listing.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)
	g.POST("/weave", func(c *gin.Context) { weave(c, store) })
	g.GET("/graph", func(c *gin.Context) { listGraph(c, store) })
}

func weave(c *gin.Context, store registrystore.MemoryStore) {
	var req registrystore.WeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		routeutil.BadRequest(c, "body", err.Error())
		return
	}
	result, err := store.Weave(c.Request.Context(), security.GetUserID(c), req)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func listGraph(c *gin.Context, store registrystore.MemoryStore) {
	limit := routeutil.QueryIntClamped(c, "limit", 200, 10, 500)
	result, err := store.Graph(c.Request.Context(), security.GetUserID(c), limit)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
