package memories_test

import (
	"net/http"
	"testing"

	"github.com/chirino/weave-service/internal/plugin/route/memories"
	"github.com/chirino/weave-service/internal/service"
	"github.com/chirino/weave-service/internal/testutil/testapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *testapi.Env {
	t.Helper()
	env := testapi.Start(t)
	ranker := service.NewRanker(env.Store, service.NewVectorizer(nil, 3), nil, 5)
	memories.MountRoutes(env.Router, env.Store, ranker, nil, env.Auth)
	return env
}

func createMemory(t *testing.T, env *testapi.Env, user, title string, headers ...string) map[string]any {
	t.Helper()
	w := env.Request(t, http.MethodPost, "/v1/memories", user, map[string]any{"title": title}, headers...)
	testapi.RequireStatus(t, http.StatusCreated, w)
	return testapi.Decode(t, w)
}

func TestCreateMemory_IdempotencyKey(t *testing.T) {
	env := setup(t)

	first := createMemory(t, env, "alice", "Cedar Point", memories.IdempotencyKeyHeader, "k1")
	assert.Equal(t, "PRIVATE", first["visibility"])

	w := env.Request(t, http.MethodPost, "/v1/memories", "alice", map[string]any{"title": "Cedar Point"},
		memories.IdempotencyKeyHeader, "k1")
	testapi.RequireStatus(t, http.StatusCreated, w)
	assert.Equal(t, "true", w.Header().Get(memories.ReplayedHeader))
	assert.Equal(t, first["id"], testapi.Decode(t, w)["id"])

	other := createMemory(t, env, "alice", "Cedar Point", memories.IdempotencyKeyHeader, "k2")
	assert.NotEqual(t, first["id"], other["id"])

	// Keys are scoped per user.
	bobs := createMemory(t, env, "bob", "Cedar Point", memories.IdempotencyKeyHeader, "k1")
	assert.NotEqual(t, first["id"], bobs["id"])

	w = env.Request(t, http.MethodGet, "/v1/memories?limit=500", "alice", nil)
	testapi.RequireStatus(t, http.StatusOK, w)
	items := testapi.Decode(t, w)["items"].([]any)
	assert.Len(t, items, 2)
}

func TestCoreLifecycle(t *testing.T) {
	env := setup(t)
	id := createMemory(t, env, "alice", "Cedar Point")["id"].(string)
	base := "/v1/memories/" + id

	w := env.Request(t, http.MethodPost, base+"/lock", "alice", nil)
	testapi.RequireStatus(t, http.StatusConflict, w)
	assert.Equal(t, "no_draft", testapi.Decode(t, w)["code"])

	w = env.Request(t, http.MethodPut, base+"/core", "alice", map[string]any{"narrative": "First ride on the Magnum."})
	testapi.RequireStatus(t, http.StatusOK, w)
	core := testapi.Decode(t, w)
	assert.Equal(t, float64(1), core["core_version"])
	assert.Equal(t, "created", core["status"])

	w = env.Request(t, http.MethodPut, base+"/core", "alice", map[string]any{"narrative": "First ride on the Magnum XL-200."})
	testapi.RequireStatus(t, http.StatusOK, w)
	assert.Equal(t, "updated", testapi.Decode(t, w)["status"])

	w = env.Request(t, http.MethodPost, base+"/lock", "alice", nil)
	testapi.RequireStatus(t, http.StatusOK, w)
	locked := testapi.Decode(t, w)
	assert.Equal(t, float64(1), locked["version"])

	w = env.Request(t, http.MethodPost, base+"/lock", "alice", nil)
	testapi.RequireStatus(t, http.StatusOK, w)
	assert.Equal(t, locked["locked_at"], testapi.Decode(t, w)["locked_at"])

	w = env.Request(t, http.MethodPut, base+"/core", "alice", map[string]any{"narrative": "Later edit"})
	testapi.RequireStatus(t, http.StatusConflict, w)
	assert.Equal(t, "core_locked", testapi.Decode(t, w)["code"])

	w = env.Request(t, http.MethodPut, base+"/core", "alice", map[string]any{"narrative": "Later edit", "lift": true})
	testapi.RequireStatus(t, http.StatusOK, w)
	assert.Equal(t, float64(2), testapi.Decode(t, w)["core_version"])

	w = env.Request(t, http.MethodPut, base+"/core", "alice", map[string]any{"anchors": []string{"x"}})
	testapi.RequireStatus(t, http.StatusBadRequest, w)
}

func TestAppendLayer(t *testing.T) {
	env := setup(t)
	id := createMemory(t, env, "alice", "Cedar Point")["id"].(string)
	path := "/v1/memories/" + id + "/layers"

	w := env.Request(t, http.MethodPost, path, "alice", map[string]any{"kind": "TEXT", "text_content": "  "})
	testapi.RequireStatus(t, http.StatusBadRequest, w)
	assert.Equal(t, "text_content", testapi.Decode(t, w)["field"])

	w = env.Request(t, http.MethodPost, path, "alice", map[string]any{"kind": "LINK", "meta": map[string]any{}})
	testapi.RequireStatus(t, http.StatusBadRequest, w)

	w = env.Request(t, http.MethodPost, path, "alice", map[string]any{"kind": "HOLOGRAM"})
	testapi.RequireStatus(t, http.StatusBadRequest, w)

	body := map[string]any{"kind": "TEXT", "text_content": "We waited an hour for the front row."}
	w = env.Request(t, http.MethodPost, path, "alice", body, memories.IdempotencyKeyHeader, "layer-1")
	testapi.RequireStatus(t, http.StatusCreated, w)
	layer := testapi.Decode(t, w)
	assert.Equal(t, "PRIVATE", layer["visibility"])

	w = env.Request(t, http.MethodPost, path, "alice", body, memories.IdempotencyKeyHeader, "layer-1")
	testapi.RequireStatus(t, http.StatusCreated, w)
	assert.Equal(t, layer["layer_id"], testapi.Decode(t, w)["layer_id"])

	w = env.Request(t, http.MethodPost, path, "alice", map[string]any{"kind": "LINK", "meta": map[string]any{"url": "https://cedarpoint.com"}})
	testapi.RequireStatus(t, http.StatusCreated, w)

	w = env.Request(t, http.MethodGet, "/v1/memories/"+id, "alice", nil)
	testapi.RequireStatus(t, http.StatusOK, w)
	layers := testapi.Decode(t, w)["layers"].([]any)
	require.Len(t, layers, 2)
	assert.Equal(t, "TEXT", layers[0].(map[string]any)["kind"])
}

func TestPermissionsAndDelete(t *testing.T) {
	env := setup(t)
	id := createMemory(t, env, "alice", "Cedar Point")["id"].(string)
	base := "/v1/memories/" + id

	w := env.Request(t, http.MethodGet, base, "bob", nil)
	testapi.RequireStatus(t, http.StatusNotFound, w)

	w = env.Request(t, http.MethodGet, "/v1/memories/not-a-uuid", "alice", nil)
	testapi.RequireStatus(t, http.StatusNotFound, w)

	w = env.Request(t, http.MethodPut, base+"/permissions", "alice", map[string]any{
		"visibility":   "SHARED",
		"participants": []map[string]any{{"user_id": "bob", "role": "VIEWER"}},
	})
	testapi.RequireStatus(t, http.StatusOK, w)
	assert.Equal(t, float64(2), testapi.Decode(t, w)["participant_count"])

	w = env.Request(t, http.MethodGet, base, "bob", nil)
	testapi.RequireStatus(t, http.StatusOK, w)

	w = env.Request(t, http.MethodPost, base+"/layers", "bob", map[string]any{"kind": "TEXT", "text_content": "hi"})
	testapi.RequireStatus(t, http.StatusForbidden, w)

	w = env.Request(t, http.MethodDelete, base, "bob", nil)
	testapi.RequireStatus(t, http.StatusForbidden, w)

	w = env.Request(t, http.MethodDelete, base, "alice", nil)
	testapi.RequireStatus(t, http.StatusOK, w)
	assert.Equal(t, "deleted", testapi.Decode(t, w)["status"])

	w = env.Request(t, http.MethodGet, base, "alice", nil)
	testapi.RequireStatus(t, http.StatusGone, w)
	w = env.Request(t, http.MethodPut, base+"/core", "alice", map[string]any{"narrative": "too late"})
	testapi.RequireStatus(t, http.StatusGone, w)
}

func TestRequiresAuthentication(t *testing.T) {
	env := setup(t)
	w := env.Request(t, http.MethodGet, "/v1/memories", "", nil)
	testapi.RequireStatus(t, http.StatusUnauthorized, w)
}

func TestSuggestions_EmptyBeforeIndexing(t *testing.T) {
	env := setup(t)
	id := createMemory(t, env, "alice", "Cedar Point")["id"].(string)

	w := env.Request(t, http.MethodGet, "/v1/memories/"+id+"/suggestions", "alice", nil)
	testapi.RequireStatus(t, http.StatusOK, w)
	assert.Empty(t, testapi.Decode(t, w)["items"])
}
