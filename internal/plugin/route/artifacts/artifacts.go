package artifacts

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/weave-service/internal/config"
	"github.com/chirino/weave-service/internal/model"
	"github.com/chirino/weave-service/internal/plugin/route/routeutil"
	registryattach "github.com/chirino/weave-service/internal/registry/attach"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/chirino/weave-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultURLTTL = 86400
	minURLTTL     = 300
	maxURLTTL     = 7 * 24 * 3600
)

type uploadResponse struct {
	ArtifactID uuid.UUID `json:"artifact_id"`
	URL        string    `json:"url"`
	Bytes      int64     `json:"bytes"`
	Mime       string    `json:"mime"`
	SHA256     string    `json:"sha256"`
	Existing   bool      `json:"existing"`
}

type downloadResponse struct {
	URL       string `json:"url"`
	Mime      string `json:"mime"`
	Bytes     int64  `json:"bytes"`
	ExpiresIn int    `json:"expires_in"`
}

// MountRoutes mounts artifact upload and download. Nothing is mounted when no
// artifact store is configured.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore, artifactStore registryattach.ArtifactStore, cfg *config.Config, auth gin.HandlerFunc) {
	if artifactStore == nil {
		return
	}
	g := r.Group("/v1/artifacts", auth)
	g.POST("/upload", func(c *gin.Context) { upload(c, store, artifactStore, cfg) })
	g.GET("/:id/download", func(c *gin.Context) { download(c, store, artifactStore) })
	g.GET("/:id/content", func(c *gin.Context) { content(c, store, artifactStore) })
}

func upload(c *gin.Context, store registrystore.MemoryStore, artifactStore registryattach.ArtifactStore, cfg *config.Config) {
	userID := security.GetUserID(c)
	memoryID, ok := routeutil.QueryUUID(c, "memory_id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	_, role, err := store.MemoryAccess(ctx, userID, memoryID)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	if !role.CanContribute() {
		routeutil.HandleError(c, &registrystore.ForbiddenError{Message: "not allowed to upload to this memory"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		routeutil.BadRequest(c, "file", "file is required")
		return
	}
	defer file.Close()

	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = "application/octet-stream"
	}
	key := fmt.Sprintf("mem/%s/%s_%s", memoryID, uuid.New(), safeFilename(header.Filename))

	put, err := artifactStore.Put(ctx, key, file, cfg.ArtifactMaxSize, mime)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}

	result, err := store.CreateArtifact(ctx, userID, registrystore.CreateArtifactRequest{
		MemoryID:   memoryID,
		StorageKey: put.StorageKey,
		Mime:       mime,
		Bytes:      put.Size,
		SHA256:     put.SHA256,
	})
	if err != nil || result.Existing {
		// The new object is redundant: either the row was rejected or an
		// identical upload is already recorded.
		if delErr := artifactStore.Delete(ctx, put.StorageKey); delErr != nil {
			log.Warn("Failed to remove orphaned artifact object", "key", put.StorageKey, "err", delErr)
		}
	}
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}

	artifact := result.Artifact
	signed, err := artifactURL(c, artifactStore, &artifact, cfg.ArtifactDefaultURLTTL)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	c.JSON(status, uploadResponse{
		ArtifactID: artifact.ID,
		URL:        signed,
		Bytes:      artifact.Bytes,
		Mime:       artifact.Mime,
		SHA256:     artifact.SHA256,
		Existing:   result.Existing,
	})
}

func download(c *gin.Context, store registrystore.MemoryStore, artifactStore registryattach.ArtifactStore) {
	id, ok := routeutil.ParamUUID(c, "id", "artifact")
	if !ok {
		return
	}
	ttl := routeutil.QueryIntClamped(c, "ttl", defaultURLTTL, minURLTTL, maxURLTTL)
	artifact, err := store.GetArtifact(c.Request.Context(), security.GetUserID(c), id)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	signed, err := artifactURL(c, artifactStore, artifact, time.Duration(ttl)*time.Second)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, downloadResponse{
		URL:       signed,
		Mime:      artifact.Mime,
		Bytes:     artifact.Bytes,
		ExpiresIn: ttl,
	})
}

// artifactURL presigns a download URL, falling back to the content endpoint
// for stores that cannot presign.
func artifactURL(c *gin.Context, artifactStore registryattach.ArtifactStore, artifact *model.Artifact, ttl time.Duration) (string, error) {
	signed, err := artifactStore.PresignGet(c.Request.Context(), artifact.StorageKey, ttl)
	if errors.Is(err, registryattach.ErrPresignUnsupported) {
		return "/v1/artifacts/" + artifact.ID.String() + "/content", nil
	}
	if err != nil {
		return "", err
	}
	return signed.String(), nil
}

// content streams the artifact through the service for clients that cannot
// reach the object store directly.
func content(c *gin.Context, store registrystore.MemoryStore, artifactStore registryattach.ArtifactStore) {
	id, ok := routeutil.ParamUUID(c, "id", "artifact")
	if !ok {
		return
	}
	artifact, err := store.GetArtifact(c.Request.Context(), security.GetUserID(c), id)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	body, err := artifactStore.Get(c.Request.Context(), artifact.StorageKey)
	if err != nil {
		routeutil.HandleError(c, err)
		return
	}
	defer body.Close()

	c.Header("Content-Type", artifact.Mime)
	c.Header("Content-Length", strconv.FormatInt(artifact.Bytes, 10))
	c.Header("ETag", `"`+artifact.SHA256+`"`)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		log.Warn("Artifact stream interrupted", "artifact", artifact.ID, "err", err)
	}
}

func safeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." {
		return "file"
	}
	return name
}
