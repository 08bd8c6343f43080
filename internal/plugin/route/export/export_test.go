package export_test

import (
	"net/http"
	"testing"

	"github.com/chirino/weave-service/internal/model"
	"github.com/chirino/weave-service/internal/plugin/route/export"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/chirino/weave-service/internal/testutil/testapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExport_OwnedActiveMemories(t *testing.T) {
	env := testapi.Start(t)
	export.MountRoutes(env.Router, env.Store, env.Auth)

	title := "Cedar Point"
	seed := "Front row on the Magnum."
	kept, err := env.Store.CreateMemory(env.Ctx, "alice", registrystore.CreateMemoryRequest{Title: &title, SeedText: &seed})
	require.NoError(t, err)
	gone, err := env.Store.CreateMemory(env.Ctx, "alice", registrystore.CreateMemoryRequest{Title: &title})
	require.NoError(t, err)
	require.NoError(t, env.Store.DeleteMemory(env.Ctx, "alice", gone.ID))
	narrative := "Opening day"
	_, err = env.Store.SetCore(env.Ctx, "alice", kept.ID, registrystore.SetCoreRequest{Narrative: &narrative})
	require.NoError(t, err)
	_, err = env.Store.CreateMemory(env.Ctx, "bob", registrystore.CreateMemoryRequest{Title: &title, Visibility: model.VisibilityPublic})
	require.NoError(t, err)

	w := env.Request(t, http.MethodGet, "/v1/export", "alice", nil)
	testapi.RequireStatus(t, http.StatusOK, w)
	body := testapi.Decode(t, w)
	assert.Equal(t, "alice", body["user_id"])
	mems := body["memories"].([]any)
	require.Len(t, mems, 1)
	m := mems[0].(map[string]any)
	assert.Equal(t, kept.ID.String(), m["id"])
	assert.Len(t, m["cores"], 1)
	assert.Len(t, m["layers"], 1)
}
