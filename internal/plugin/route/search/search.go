package search

import (
	"net/http"

	"github.com/chirino/weave-service/internal/plugin/route/routeutil"
	"github.com/chirino/weave-service/internal/security"
	"github.com/chirino/weave-service/internal/service"
	"github.com/gin-gonic/gin"
)

// MountRoutes mounts the hybrid search endpoint.
func MountRoutes(r *gin.Engine, ranker *service.Ranker, auth gin.HandlerFunc) {
	g := r.Group("/v1/search", auth)
	g.GET("/associative", func(c *gin.Context) {
		associative(c, ranker)
	})
}

// associative clamps limit inside the ranker; the query string value is
// passed through as given.
func associative(c *gin.Context, ranker *service.Ranker) {
	limit := routeutil.QueryInt(c, "limit", 20)
	result, err := ranker.Search(c.Request.Context(), security.GetUserID(c), c.Query("q"), limit)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
