// Package testapi wires a migrated Postgres store and a gin router for
// route tests.
package testapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/chirino/weave-service/internal/config"
	"github.com/chirino/weave-service/internal/plugin/store/postgres"
	registrymigrate "github.com/chirino/weave-service/internal/registry/migrate"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/chirino/weave-service/internal/security"
	"github.com/chirino/weave-service/internal/testutil/testpg"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// Env is a migrated store plus a router authenticated by bearer user ids.
type Env struct {
	Config *config.Config
	Ctx    context.Context
	Store  registrystore.MemoryStore
	Router *gin.Engine
	Auth   gin.HandlerFunc
}

// Start launches Postgres, runs migrations and returns an empty router.
func Start(t *testing.T) *Env {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DBURL = testpg.StartPostgres(t)
	cfg.EmbeddingDimension = 3
	ctx := config.WithContext(context.Background(), &cfg)

	_ = postgres.ForceImport
	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	return &Env{
		Config: &cfg,
		Ctx:    ctx,
		Store:  store,
		Router: gin.New(),
		Auth:   security.AuthMiddleware(security.NewTokenResolver(&cfg)),
	}
}

// Request sends body as JSON with userID as the bearer token. An empty userID
// sends no Authorization header.
func (e *Env) Request(t *testing.T, method, path, userID string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+userID)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Decode unmarshals a response body into a map, failing the test on error.
func Decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

// RequireStatus fails with the response body when the status differs.
func RequireStatus(t *testing.T, want int, w *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, want, w.Code, "body: %s", w.Body.String())
}
