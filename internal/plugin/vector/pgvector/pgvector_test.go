package pgvector_test

import (
	"context"
	"testing"

	"github.com/chirino/weave-service/internal/config"
	"github.com/chirino/weave-service/internal/model"
	"github.com/chirino/weave-service/internal/plugin/store/postgres"
	_ "github.com/chirino/weave-service/internal/plugin/vector/pgvector"
	registrymigrate "github.com/chirino/weave-service/internal/registry/migrate"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	registryvector "github.com/chirino/weave-service/internal/registry/vector"
	"github.com/chirino/weave-service/internal/testutil/testpg"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgvectorSimilarities(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DBURL = testpg.StartPostgres(t)
	cfg.EmbeddingDimension = 3
	ctx := config.WithContext(context.Background(), &cfg)
	_ = postgres.ForceImport
	require.NoError(t, registrymigrate.RunAll(ctx))

	storeLoader, err := registrystore.Select("postgres")
	require.NoError(t, err)
	store, err := storeLoader(ctx)
	require.NoError(t, err)
	vectorLoader, err := registryvector.Select("pgvector")
	require.NoError(t, err)
	vectors, err := vectorLoader(ctx)
	require.NoError(t, err)

	title := func(s string) *string { return &s }
	ids := map[string]uuid.UUID{}
	for _, name := range []string{"x", "y", "blank"} {
		ref, err := store.CreateMemory(ctx, "alice", registrystore.CreateMemoryRequest{Title: title(name)})
		require.NoError(t, err)
		ids[name] = ref.ID
	}
	embeddings := map[uuid.UUID][]float32{
		ids["x"]:     {1, 0, 0},
		ids["y"]:     {0, 1, 0},
		ids["blank"]: {0, 0, 0},
	}
	for {
		job, err := store.RunIndexJob(ctx, func(_ context.Context, job model.IndexJob, _ registrystore.SearchDocument) ([]float32, error) {
			return embeddings[job.MemoryID], nil
		})
		require.NoError(t, err)
		if job == nil {
			break
		}
	}

	all := []uuid.UUID{ids["x"], ids["y"], ids["blank"]}
	sims, err := vectors.Similarities(ctx, []float32{0.9, 0.1, 0}, all)
	require.NoError(t, err)
	require.Len(t, sims, 2, "zero vectors are never matched")
	assert.InDelta(t, 0.99, sims[ids["x"]], 0.01)
	assert.Greater(t, sims[ids["x"]], sims[ids["y"]])

	sims, err = vectors.Similarities(ctx, []float32{0, 1, 0}, all)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sims[ids["y"]], 1e-6)
	assert.InDelta(t, 0.0, sims[ids["x"]], 1e-6)
	assert.NotContains(t, sims, ids["blank"])

	none, err := vectors.Similarities(ctx, []float32{0, 0, 0}, all)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, vectors.Delete(ctx, ids["y"]))
	sims, err = vectors.Similarities(ctx, []float32{0, 1, 0}, []uuid.UUID{ids["y"]})
	require.NoError(t, err)
	assert.Empty(t, sims)
}
