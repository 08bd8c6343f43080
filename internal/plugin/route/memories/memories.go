package memories

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/chirino/weave-service/internal/plugin/route/routeutil"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	registryvector "github.com/chirino/weave-service/internal/registry/vector"
	"github.com/chirino/weave-service/internal/security"
	"github.com/chirino/weave-service/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// IdempotencyKeyHeader carries the client's retry key on create and append.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from a completed idempotency record.
	ReplayedHeader = "Idempotent-Replayed"

	createEndpoint = "/v1/memories"
)

// Handler serves the /v1/memories resource.
type Handler struct {
	store   registrystore.MemoryStore
	guard   *service.IdempotencyGuard
	ranker  *service.Ranker
	vectors registryvector.VectorStore
}

// MountRoutes mounts the memory lifecycle endpoints. vectors may be nil.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore, ranker *service.Ranker, vectors registryvector.VectorStore, auth gin.HandlerFunc) {
	h := &Handler{
		store:   store,
		guard:   service.NewIdempotencyGuard(store),
		ranker:  ranker,
		vectors: vectors,
	}
	g := r.Group("/v1/memories", auth)
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/suggestions", h.suggestions)
	g.PUT("/:id/core", h.setCore)
	g.POST("/:id/lock", h.lock)
	g.POST("/:id/layers", h.appendLayer)
	g.PUT("/:id/permissions", h.setPermissions)
	g.DELETE("/:id", h.delete)
}

func (h *Handler) create(c *gin.Context) {
	userID := security.GetUserID(c)
	var req registrystore.CreateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		routeutil.BadRequest(c, "body", err.Error())
		return
	}

	var created *registrystore.MemoryRef
	id, replayed, err := h.guard.Do(c.Request.Context(), userID, createEndpoint, c.GetHeader(IdempotencyKeyHeader),
		func(ctx context.Context) (uuid.UUID, error) {
			ref, err := h.store.CreateMemory(ctx, userID, req)
			if err != nil {
				return uuid.Nil, err
			}
			created = ref
			return ref.ID, nil
		})
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	if replayed {
		detail, err := h.store.GetMemory(c.Request.Context(), userID, id)
		if err != nil {
			routeutil.HandleError(c, err)
			return
		}
		c.Header(ReplayedHeader, "true")
		created = &registrystore.MemoryRef{
			ID:         detail.ID,
			Title:      detail.Title,
			Visibility: detail.Visibility,
			CreatedAt:  detail.CreatedAt,
		}
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) list(c *gin.Context) {
	limit := routeutil.QueryIntClamped(c, "limit", 50, 1, 100)
	items, err := h.store.ListMemories(c.Request.Context(), security.GetUserID(c), limit)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	if items == nil {
		items = []registrystore.MemorySummary{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) get(c *gin.Context) {
	id, ok := routeutil.ParamUUID(c, "id", "memory")
	if !ok {
		return
	}
	detail, err := h.store.GetMemory(c.Request.Context(), security.GetUserID(c), id)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) suggestions(c *gin.Context) {
	id, ok := routeutil.ParamUUID(c, "id", "memory")
	if !ok {
		return
	}
	limit := routeutil.QueryIntClamped(c, "limit", 5, 1, 10)
	refs, err := h.ranker.Suggestions(c.Request.Context(), security.GetUserID(c), id, limit)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memory_id": id, "items": refs})
}

func (h *Handler) setCore(c *gin.Context) {
	id, ok := routeutil.ParamUUID(c, "id", "memory")
	if !ok {
		return
	}
	var req registrystore.SetCoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		routeutil.BadRequest(c, "body", err.Error())
		return
	}
	if req.Narrative == nil {
		routeutil.BadRequest(c, "narrative", "narrative is required")
		return
	}
	result, err := h.store.SetCore(c.Request.Context(), security.GetUserID(c), id, req)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) lock(c *gin.Context) {
	id, ok := routeutil.ParamUUID(c, "id", "memory")
	if !ok {
		return
	}
	result, err := h.store.LockCore(c.Request.Context(), security.GetUserID(c), id)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) appendLayer(c *gin.Context) {
	id, ok := routeutil.ParamUUID(c, "id", "memory")
	if !ok {
		return
	}
	userID := security.GetUserID(c)
	var req registrystore.AppendLayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		routeutil.BadRequest(c, "body", err.Error())
		return
	}

	// Checked before the idempotency lookup: replays honour revoked roles.
	mem, role, err := h.store.MemoryAccess(c.Request.Context(), userID, id)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	if !role.CanContribute() {
		routeutil.HandleError(c, &registrystore.ForbiddenError{Message: "not allowed to append layers"})
		return
	}

	var result *registrystore.LayerResult
	endpoint := "/v1/memories/" + id.String() + "/layers"
	layerID, replayed, err := h.guard.Do(c.Request.Context(), userID, endpoint, c.GetHeader(IdempotencyKeyHeader),
		func(ctx context.Context) (uuid.UUID, error) {
			res, err := h.store.AppendLayer(ctx, userID, id, req)
			if err != nil {
				return uuid.Nil, err
			}
			result = res
			return res.LayerID, nil
		})
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	if replayed {
		c.Header(ReplayedHeader, "true")
		result = &registrystore.LayerResult{LayerID: layerID, Visibility: mem.Visibility}
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) setPermissions(c *gin.Context) {
	id, ok := routeutil.ParamUUID(c, "id", "memory")
	if !ok {
		return
	}
	var req registrystore.PermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		routeutil.BadRequest(c, "body", err.Error())
		return
	}
	result, err := h.store.SetPermissions(c.Request.Context(), security.GetUserID(c), id, req)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) delete(c *gin.Context) {
	id, ok := routeutil.ParamUUID(c, "id", "memory")
	if !ok {
		return
	}
	if err := h.store.DeleteMemory(c.Request.Context(), security.GetUserID(c), id); err != nil {
		routeutil.HandleError(c, err)
		return
	}
	if h.vectors != nil && h.vectors.Name() != "pgvector" {
		if err := h.vectors.Delete(c.Request.Context(), id); err != nil {
			log.Warn("Failed to drop memory vector", "memory", id, "err", err)
			security.RecordDegraded("vector")
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
