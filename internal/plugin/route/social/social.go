package social

import (
	"net/http"

	"github.com/chirino/weave-service/internal/model"
	"github.com/chirino/weave-service/internal/plugin/route/routeutil"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/chirino/weave-service/internal/security"
	"github.com/gin-gonic/gin"
)

const publicListLimit = 100

type followingEntry struct {
	UserID      string  `json:"user_id"`
	Handle      string  `json:"handle"`
	DisplayName *string `json:"display_name,omitempty"`
}

// MountRoutes mounts follows and public memory listings. GET /v1/public/:slug
// is served without authentication.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore, auth gin.HandlerFunc) {
	g := r.Group("/v1", auth)
	g.POST("/follow/:handle", func(c *gin.Context) { follow(c, store) })
	g.DELETE("/follow/:handle", func(c *gin.Context) { unfollow(c, store) })
	g.GET("/following", func(c *gin.Context) { following(c, store) })
	g.GET("/users/:handle/memories/public", func(c *gin.Context) { userPublicMemories(c, store) })

	r.GET("/v1/public/:slug", func(c *gin.Context) { publicMemory(c, store) })
}

func follow(c *gin.Context, store registrystore.MemoryStore) {
	if err := store.Follow(c.Request.Context(), security.GetUserID(c), c.Param("handle")); err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func unfollow(c *gin.Context, store registrystore.MemoryStore) {
	if err := store.Unfollow(c.Request.Context(), security.GetUserID(c), c.Param("handle")); err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func following(c *gin.Context, store registrystore.MemoryStore) {
	users, err := store.ListFollowing(c.Request.Context(), security.GetUserID(c))
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": toFollowing(users)})
}

func toFollowing(users []model.User) []followingEntry {
	out := make([]followingEntry, len(users))
	for i, u := range users {
		out[i] = followingEntry{UserID: u.ID, Handle: u.Handle, DisplayName: u.DisplayName}
	}
	return out
}

func userPublicMemories(c *gin.Context, store registrystore.MemoryStore) {
	refs, err := store.ListPublicMemories(c.Request.Context(), c.Param("handle"), publicListLimit)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	if refs == nil {
		refs = []registrystore.MemoryRef{}
	}
	c.JSON(http.StatusOK, gin.H{"memories": refs})
}

func publicMemory(c *gin.Context, store registrystore.MemoryStore) {
	detail, err := store.GetPublicMemory(c.Request.Context(), c.Param("slug"))
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}
