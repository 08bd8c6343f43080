package invites_test

import (
	"net/http"
	"testing"

	"github.com/chirino/weave-service/internal/plugin/route/invites"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/chirino/weave-service/internal/testutil/testapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInviteFlow(t *testing.T) {
	env := testapi.Start(t)
	invites.MountRoutes(env.Router, env.Store, env.Auth)

	title := "Cedar Point"
	mem, err := env.Store.CreateMemory(env.Ctx, "alice", registrystore.CreateMemoryRequest{Title: &title})
	require.NoError(t, err)
	base := "/v1/invites?memory_id=" + mem.ID.String()

	w := env.Request(t, http.MethodPost, base+"&role=OWNER", "alice", nil)
	testapi.RequireStatus(t, http.StatusBadRequest, w)

	w = env.Request(t, http.MethodPost, base+"&role=CONTRIBUTOR", "bob", nil)
	testapi.RequireStatus(t, http.StatusNotFound, w)

	w = env.Request(t, http.MethodPost, base+"&role=CONTRIBUTOR", "alice", nil)
	testapi.RequireStatus(t, http.StatusCreated, w)
	inv := testapi.Decode(t, w)
	assert.Equal(t, "pending", inv["status"])
	token := inv["token"].(string)

	w = env.Request(t, http.MethodPost, "/v1/invites/unknown-token/accept", "bob", nil)
	testapi.RequireStatus(t, http.StatusNotFound, w)

	w = env.Request(t, http.MethodPost, "/v1/invites/"+token+"/accept", "bob", nil)
	testapi.RequireStatus(t, http.StatusOK, w)
	assert.Equal(t, "accepted", testapi.Decode(t, w)["status"])

	w = env.Request(t, http.MethodPost, "/v1/invites/"+token+"/accept", "carol", nil)
	testapi.RequireStatus(t, http.StatusOK, w)
	assert.Equal(t, "already_accepted", testapi.Decode(t, w)["status"])

	_, role, err := env.Store.MemoryAccess(env.Ctx, "bob", mem.ID)
	require.NoError(t, err)
	assert.Equal(t, "CONTRIBUTOR", string(role))
}

func TestInvite_Expired(t *testing.T) {
	env := testapi.Start(t)
	invites.MountRoutes(env.Router, env.Store, env.Auth)

	title := "Cedar Point"
	mem, err := env.Store.CreateMemory(env.Ctx, "alice", registrystore.CreateMemoryRequest{Title: &title})
	require.NoError(t, err)
	inv, err := env.Store.CreateInvite(env.Ctx, "alice", mem.ID, "VIEWER", -1)
	require.NoError(t, err)

	w := env.Request(t, http.MethodPost, "/v1/invites/"+inv.Token+"/accept", "bob", nil)
	testapi.RequireStatus(t, http.StatusGone, w)
}
