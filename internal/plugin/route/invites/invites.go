package invites

import (
	"net/http"
	"strings"
	"time"

	"github.com/chirino/weave-service/internal/model"
	"github.com/chirino/weave-service/internal/plugin/route/routeutil"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/chirino/weave-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InviteTTL is how long an invite token can be accepted.
const InviteTTL = 7 * 24 * time.Hour

type inviteResponse struct {
	InviteID  uuid.UUID  `json:"invite_id"`
	Token     string     `json:"token"`
	Role      model.Role `json:"role"`
	Status    string     `json:"status"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// MountRoutes mounts invite creation and acceptance.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore, auth gin.HandlerFunc) {
	g := r.Group("/v1/invites", auth)
	g.POST("", func(c *gin.Context) { create(c, store) })
	g.POST("/:token/accept", func(c *gin.Context) { accept(c, store) })
}

func create(c *gin.Context, store registrystore.MemoryStore) {
	memoryID, ok := routeutil.QueryUUID(c, "memory_id")
	if !ok {
		return
	}
	role := model.Role(strings.ToUpper(c.Query("role")))
	if !role.Grantable() {
		routeutil.BadRequest(c, "role", "role must be CONTRIBUTOR or VIEWER")
		return
	}
	inv, err := store.CreateInvite(c.Request.Context(), security.GetUserID(c), memoryID, role, InviteTTL)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inviteResponse{
		InviteID:  inv.ID,
		Token:     inv.Token,
		Role:      inv.Role,
		Status:    registrystore.InviteStatusPending,
		ExpiresAt: inv.ExpiresAt,
	})
}

func accept(c *gin.Context, store registrystore.MemoryStore) {
	status, err := store.AcceptInvite(c.Request.Context(), security.GetUserID(c), c.Param("token"))
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
