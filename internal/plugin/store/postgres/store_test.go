package postgres_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/chirino/weave-service/internal/config"
	"github.com/chirino/weave-service/internal/model"
	"github.com/chirino/weave-service/internal/plugin/store/postgres"
	registrymigrate "github.com/chirino/weave-service/internal/registry/migrate"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/chirino/weave-service/internal/testutil/testpg"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.MemoryStore, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	ctx := config.WithContext(context.Background(), &cfg)

	_ = postgres.ForceImport

	err := registrymigrate.RunAll(ctx)
	require.NoError(t, err)

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)

	return store, ctx
}

func strPtr(s string) *string { return &s }

func createMemory(t *testing.T, store registrystore.MemoryStore, ctx context.Context, userID, title string) uuid.UUID {
	t.Helper()
	ref, err := store.CreateMemory(ctx, userID, registrystore.CreateMemoryRequest{Title: strPtr(title)})
	require.NoError(t, err)
	return ref.ID
}

// drainIndexJobs runs every due job with a fixed embedding.
func drainIndexJobs(t *testing.T, store registrystore.MemoryStore, ctx context.Context) []registrystore.SearchDocument {
	t.Helper()
	var docs []registrystore.SearchDocument
	for {
		job, err := store.RunIndexJob(ctx, func(_ context.Context, _ model.IndexJob, doc registrystore.SearchDocument) ([]float32, error) {
			docs = append(docs, doc)
			return []float32{1, 0, 0}, nil
		})
		require.NoError(t, err)
		if job == nil {
			return docs
		}
	}
}

func requireErr[T error](t *testing.T, err error) T {
	t.Helper()
	var target T
	require.True(t, errors.As(err, &target), "expected %T, got %v", target, err)
	return target
}

func TestCreateAndGetMemory(t *testing.T) {
	store, ctx := setupTestStore(t)

	ref, err := store.CreateMemory(ctx, "alice", registrystore.CreateMemoryRequest{
		Title:    strPtr("Cedar Point 2019"),
		SeedText: strPtr("We went to Cedar Point"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.VisibilityPrivate, ref.Visibility)

	detail, err := store.GetMemory(ctx, "alice", ref.ID)
	require.NoError(t, err)
	require.Len(t, detail.Layers, 1)
	assert.Equal(t, model.LayerText, detail.Layers[0].Kind)
	require.Len(t, detail.Participants, 1)
	assert.Equal(t, model.RoleOwner, detail.Participants[0].Role)
	assert.Nil(t, detail.Core)

	_, err = store.GetMemory(ctx, "mallory", ref.ID)
	requireErr[*registrystore.NotFoundError](t, err)

	stats, err := store.IndexQueueStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Pending)

	list, err := store.ListMemories(ctx, "alice", 50)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ref.ID, list[0].ID)
}

func TestCoreLifecycle(t *testing.T) {
	store, ctx := setupTestStore(t)
	id := createMemory(t, store, ctx, "alice", "Cedar Point")

	_, err := store.LockCore(ctx, "alice", id)
	conflict := requireErr[*registrystore.ConflictError](t, err)
	assert.Equal(t, "No draft core to lock.", conflict.Message)

	res, err := store.SetCore(ctx, "alice", id, registrystore.SetCoreRequest{Narrative: strPtr("First draft")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CoreVersion)
	assert.Equal(t, registrystore.CoreStatusCreated, res.Status)

	res, err = store.SetCore(ctx, "alice", id, registrystore.SetCoreRequest{
		Narrative: strPtr("Roller coasters all day"),
		Anchors:   []string{"Millennium Force"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CoreVersion, "draft edits keep the version")
	assert.Equal(t, registrystore.CoreStatusUpdated, res.Status)

	first, err := store.LockCore(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	again, err := store.LockCore(ctx, "alice", id)
	require.NoError(t, err)
	assert.Equal(t, first.Version, again.Version)
	assert.True(t, first.LockedAt.Equal(again.LockedAt), "%v != %v", first.LockedAt, again.LockedAt)

	_, err = store.SetCore(ctx, "alice", id, registrystore.SetCoreRequest{Narrative: strPtr("Edit")})
	requireErr[*registrystore.ConflictError](t, err)

	res, err = store.SetCore(ctx, "alice", id, registrystore.SetCoreRequest{Narrative: strPtr("Edit"), Lift: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CoreVersion)

	detail, err := store.GetMemory(ctx, "alice", id)
	require.NoError(t, err)
	require.NotNil(t, detail.Core)
	assert.Equal(t, 1, detail.Core.Version, "detail shows the locked current core")
	assert.Equal(t, []string{"Millennium Force"}, detail.Core.Anchors)
}

func TestCoreLifecycle_AtMostOneDraft(t *testing.T) {
	store, ctx := setupTestStore(t)
	id := createMemory(t, store, ctx, "alice", "Random walk")

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 40; i++ {
		switch rng.Intn(3) {
		case 0:
			_, _ = store.SetCore(ctx, "alice", id, registrystore.SetCoreRequest{Narrative: strPtr("n")})
		case 1:
			_, _ = store.SetCore(ctx, "alice", id, registrystore.SetCoreRequest{Narrative: strPtr("n"), Lift: true})
		case 2:
			_, _ = store.LockCore(ctx, "alice", id)
		}

		exported, err := store.Export(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, exported.Memories, 1)
		drafts := 0
		for i, c := range exported.Memories[0].Cores {
			assert.Equal(t, i+1, c.Version, "versions are dense")
			if !c.Locked {
				drafts++
			}
		}
		require.LessOrEqual(t, drafts, 1)
	}
}

func TestLockCore_ConcurrentLockersAgree(t *testing.T) {
	store, ctx := setupTestStore(t)
	id := createMemory(t, store, ctx, "alice", "Race")
	_, err := store.SetCore(ctx, "alice", id, registrystore.SetCoreRequest{Narrative: strPtr("n")})
	require.NoError(t, err)

	const n = 8
	results := make([]*registrystore.LockResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = store.LockCore(ctx, "alice", id)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 1, results[i].Version)
		assert.True(t, results[0].LockedAt.Equal(results[i].LockedAt))
	}

	// One job from creation and exactly one from the winning lock.
	stats, err := store.IndexQueueStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Pending)
}

func TestAppendLayer(t *testing.T) {
	store, ctx := setupTestStore(t)
	id := createMemory(t, store, ctx, "alice", "Cedar Point")

	_, err := store.AppendLayer(ctx, "alice", id, registrystore.AppendLayerRequest{Kind: model.LayerText, TextContent: strPtr("")})
	requireErr[*registrystore.ValidationError](t, err)

	_, err = store.AppendLayer(ctx, "alice", id, registrystore.AppendLayerRequest{Kind: model.LayerLink, Meta: map[string]interface{}{}})
	requireErr[*registrystore.ValidationError](t, err)

	art, err := store.CreateArtifact(ctx, "alice", registrystore.CreateArtifactRequest{
		MemoryID: id, StorageKey: "mem/x/photo.jpg", Mime: "image/jpeg", Bytes: 10, SHA256: "abc",
	})
	require.NoError(t, err)
	res, err := store.AppendLayer(ctx, "alice", id, registrystore.AppendLayerRequest{Kind: model.LayerImage, ArtifactID: &art.Artifact.ID})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, res.LayerID)

	other := createMemory(t, store, ctx, "alice", "Other")
	_, err = store.AppendLayer(ctx, "alice", other, registrystore.AppendLayerRequest{Kind: model.LayerImage, ArtifactID: &art.Artifact.ID})
	requireErr[*registrystore.ValidationError](t, err)

	_, err = store.SetPermissions(ctx, "alice", id, registrystore.PermissionsRequest{
		Visibility:   model.VisibilityShared,
		Participants: []registrystore.PermissionGrant{{UserID: "bob", Role: model.RoleViewer}},
	})
	require.NoError(t, err)
	_, err = store.AppendLayer(ctx, "bob", id, registrystore.AppendLayerRequest{Kind: model.LayerText, TextContent: strPtr("hi")})
	requireErr[*registrystore.ForbiddenError](t, err)
}

func TestWeave_CanonicalUpsert(t *testing.T) {
	store, ctx := setupTestStore(t)
	x := createMemory(t, store, ctx, "alice", "X")
	y := createMemory(t, store, ctx, "alice", "Y")

	first, err := store.Weave(ctx, "alice", registrystore.WeaveRequest{AID: x, BID: y, Relation: model.RelationTheme})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, registrystore.DefaultEdgeStrength, first.Strength)

	s := 0.9
	second, err := store.Weave(ctx, "alice", registrystore.WeaveRequest{AID: y, BID: x, Relation: model.RelationTheme, Strength: &s})
	require.NoError(t, err)
	assert.Equal(t, first.EdgeID, second.EdgeID)
	assert.False(t, second.Created)
	assert.Equal(t, 0.9, second.Strength)

	other, err := store.Weave(ctx, "alice", registrystore.WeaveRequest{AID: x, BID: y, Relation: model.RelationEmotion})
	require.NoError(t, err)
	assert.NotEqual(t, first.EdgeID, other.EdgeID)

	edges, err := store.EdgesTouching(ctx, []uuid.UUID{x})
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	_, err = store.Weave(ctx, "mallory", registrystore.WeaveRequest{AID: x, BID: y, Relation: model.RelationTheme})
	requireErr[*registrystore.NotFoundError](t, err)
}

func TestIdempotencyClaims(t *testing.T) {
	store, ctx := setupTestStore(t)

	rec, err := store.LookupIdempotency(ctx, "alice", "create_memory", "k1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	claimed, err := store.ClaimIdempotency(ctx, "alice", "create_memory", "k1")
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = store.ClaimIdempotency(ctx, "alice", "create_memory", "k1")
	require.NoError(t, err)
	assert.False(t, claimed)

	id := uuid.New()
	require.NoError(t, store.CompleteIdempotency(ctx, "alice", "create_memory", "k1", id))
	require.NoError(t, store.CompleteIdempotency(ctx, "alice", "create_memory", "k1", uuid.New()))

	rec, err = store.LookupIdempotency(ctx, "alice", "create_memory", "k1")
	require.NoError(t, err)
	require.True(t, rec.Completed())
	assert.Equal(t, id, *rec.ResourceID, "completion is written once")
}

func TestRunIndexJob_BuildsDocumentAndRanks(t *testing.T) {
	store, ctx := setupTestStore(t)
	ref, err := store.CreateMemory(ctx, "alice", registrystore.CreateMemoryRequest{
		Title:    strPtr("Cedar Point"),
		SeedText: strPtr("We went to Cedar Point"),
	})
	require.NoError(t, err)
	_, err = store.SetCore(ctx, "alice", ref.ID, registrystore.SetCoreRequest{Narrative: strPtr("Roller coasters all day")})
	require.NoError(t, err)
	_, err = store.LockCore(ctx, "alice", ref.ID)
	require.NoError(t, err)
	_, err = store.AppendLayer(ctx, "alice", ref.ID, registrystore.AppendLayerRequest{
		Kind: model.LayerText, TextContent: strPtr("Millennium Force was the highlight"),
		Meta: map[string]interface{}{"caption": "front row"},
	})
	require.NoError(t, err)

	docs := drainIndexJobs(t, store, ctx)
	require.NotEmpty(t, docs)
	last := docs[len(docs)-1].Text
	assert.Contains(t, last, "Cedar Point")
	assert.Contains(t, last, "Roller coasters all day")
	assert.Contains(t, last, "Millennium Force was the highlight")
	assert.Contains(t, last, "front row")

	stats, err := store.IndexQueueStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Pending)

	cands, err := store.SearchCandidates(ctx, "alice", "Cedar Point roller coaster")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, ref.ID, cands[0].Memory.ID)
	assert.Greater(t, cands[0].TextRank, 0.0)

	// No shared term still yields the candidate, unranked.
	cands, err = store.SearchCandidates(ctx, "alice", "kayaking")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Zero(t, cands[0].TextRank)

	emb, err := store.MemoryEmbedding(ctx, "alice", ref.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, emb)

	cands, err = store.SearchCandidates(ctx, "mallory", "roller coaster")
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestRunIndexJob_ZeroVectorStoredAsNull(t *testing.T) {
	store, ctx := setupTestStore(t)
	id := createMemory(t, store, ctx, "alice", "Unembedded")

	_, err := store.RunIndexJob(ctx, func(context.Context, model.IndexJob, registrystore.SearchDocument) ([]float32, error) {
		return []float32{0, 0, 0}, nil
	})
	require.NoError(t, err)

	emb, err := store.MemoryEmbedding(ctx, "alice", id)
	require.NoError(t, err)
	assert.Nil(t, emb)

	// Still indexed, so still searchable.
	cands, err := store.SearchCandidates(ctx, "alice", "unembedded")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, id, cands[0].Memory.ID)
}

func TestRunIndexJob_FailureKeepsJobAndDeadLetters(t *testing.T) {
	store, ctx := setupTestStore(t)
	createMemory(t, store, ctx, "alice", "Flaky")

	boom := errors.New("boom")
	job, err := store.RunIndexJob(ctx, func(context.Context, model.IndexJob, registrystore.SearchDocument) ([]float32, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.NotNil(t, job)

	stats, err := store.IndexQueueStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Pending, "failed job stays queued")

	require.NoError(t, store.FailIndexJob(ctx, job.ID, err.Error(), time.Now().Add(time.Hour), false))
	next, err := store.RunIndexJob(ctx, func(context.Context, model.IndexJob, registrystore.SearchDocument) ([]float32, error) {
		t.Fatal("job scheduled in the future must not run")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, store.FailIndexJob(ctx, job.ID, "boom", time.Now(), true))
	stats, err = store.IndexQueueStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Pending)
	assert.EqualValues(t, 1, stats.DeadLettered)
}

func TestDeleteMemory_GoneAndHidden(t *testing.T) {
	store, ctx := setupTestStore(t)
	id := createMemory(t, store, ctx, "alice", "Temporary")
	keep := createMemory(t, store, ctx, "alice", "Keeper")
	_, err := store.Weave(ctx, "alice", registrystore.WeaveRequest{AID: id, BID: keep, Relation: model.RelationTimeNear})
	require.NoError(t, err)
	drainIndexJobs(t, store, ctx)

	_, _, err = store.MemoryAccess(ctx, "bob", id)
	requireErr[*registrystore.NotFoundError](t, err)
	require.ErrorAs(t, store.DeleteMemory(ctx, "bob", id), new(*registrystore.NotFoundError))

	require.NoError(t, store.DeleteMemory(ctx, "alice", id))

	_, err = store.GetMemory(ctx, "alice", id)
	requireErr[*registrystore.GoneError](t, err)

	graph, err := store.Graph(ctx, "alice", 200)
	require.NoError(t, err)
	require.Len(t, graph.Nodes, 1)
	assert.Equal(t, keep, graph.Nodes[0].ID)
	assert.Empty(t, graph.Edges)

	cands, err := store.SearchCandidates(ctx, "alice", "Temporary")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, keep, cands[0].Memory.ID)
}

func TestPurgeDeletedMemories(t *testing.T) {
	store, ctx := setupTestStore(t)
	id := createMemory(t, store, ctx, "alice", "Old photos")
	keep := createMemory(t, store, ctx, "alice", "Keeper")
	art, err := store.CreateArtifact(ctx, "alice", registrystore.CreateArtifactRequest{
		MemoryID: id, StorageKey: "mem/old/photo.jpg", Mime: "image/jpeg", Bytes: 10, SHA256: "old",
	})
	require.NoError(t, err)
	_, err = store.AppendLayer(ctx, "alice", id, registrystore.AppendLayerRequest{Kind: model.LayerImage, ArtifactID: &art.Artifact.ID})
	require.NoError(t, err)
	_, err = store.Weave(ctx, "alice", registrystore.WeaveRequest{AID: id, BID: keep, Relation: model.RelationTheme})
	require.NoError(t, err)
	require.NoError(t, store.DeleteMemory(ctx, "alice", id))

	res, err := store.PurgeDeletedMemories(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, res.MemoryIDs)

	res, err = store.PurgeDeletedMemories(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, res.MemoryIDs)
	assert.Equal(t, []string{"mem/old/photo.jpg"}, res.StorageKeys)

	_, err = store.GetMemory(ctx, "alice", id)
	requireErr[*registrystore.NotFoundError](t, err)
	detail, err := store.GetMemory(ctx, "alice", keep)
	require.NoError(t, err)
	assert.Empty(t, detail.EdgesSummary.Connections)

	res, err = store.PurgeDeletedMemories(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, res.MemoryIDs)
}

func TestPermissionsAndPublicSlug(t *testing.T) {
	store, ctx := setupTestStore(t)
	id := createMemory(t, store, ctx, "alice", "Cedar Point, 2019!")

	res, err := store.SetPermissions(ctx, "alice", id, registrystore.PermissionsRequest{Visibility: model.VisibilityPublic})
	require.NoError(t, err)
	require.NotNil(t, res.PublicSlug)
	assert.Equal(t, registrystore.PublicSlugFor(strPtr("Cedar Point, 2019!"), id), *res.PublicSlug)

	pub, err := store.GetPublicMemory(ctx, *res.PublicSlug)
	require.NoError(t, err)
	assert.Equal(t, id, pub.ID)

	// Public memories are readable but not writable by strangers.
	_, role, err := store.MemoryAccess(ctx, "mallory", id)
	require.NoError(t, err)
	assert.Equal(t, model.Role(""), role)
	_, err = store.SetPermissions(ctx, "mallory", id, registrystore.PermissionsRequest{Visibility: model.VisibilityPrivate})
	requireErr[*registrystore.ForbiddenError](t, err)

	_, err = store.SetPermissions(ctx, "alice", id, registrystore.PermissionsRequest{Visibility: model.VisibilityPrivate})
	require.NoError(t, err)
	_, err = store.GetPublicMemory(ctx, *res.PublicSlug)
	requireErr[*registrystore.NotFoundError](t, err)
}

func TestInvites(t *testing.T) {
	store, ctx := setupTestStore(t)
	id := createMemory(t, store, ctx, "alice", "Shared trip")

	_, err := store.CreateInvite(ctx, "alice", id, model.RoleOwner, time.Hour)
	requireErr[*registrystore.ValidationError](t, err)

	inv, err := store.CreateInvite(ctx, "alice", id, model.RoleContributor, time.Hour)
	require.NoError(t, err)

	status, err := store.AcceptInvite(ctx, "bob", inv.Token)
	require.NoError(t, err)
	assert.Equal(t, registrystore.InviteStatusAccepted, status)
	status, err = store.AcceptInvite(ctx, "bob", inv.Token)
	require.NoError(t, err)
	assert.Equal(t, registrystore.InviteStatusAlreadyAccepted, status)

	_, role, err := store.MemoryAccess(ctx, "bob", id)
	require.NoError(t, err)
	assert.Equal(t, model.RoleContributor, role)

	expired, err := store.CreateInvite(ctx, "alice", id, model.RoleViewer, -time.Minute)
	require.NoError(t, err)
	_, err = store.AcceptInvite(ctx, "carol", expired.Token)
	requireErr[*registrystore.GoneError](t, err)

	_, err = store.AcceptInvite(ctx, "carol", "nope")
	requireErr[*registrystore.NotFoundError](t, err)
}

func TestFollowAndPublicListing(t *testing.T) {
	store, ctx := setupTestStore(t)
	pub, err := store.CreateMemory(ctx, "alice", registrystore.CreateMemoryRequest{Title: strPtr("Open"), Visibility: model.VisibilityPublic})
	require.NoError(t, err)
	createMemory(t, store, ctx, "alice", "Closed")

	_, err = store.EnsureUser(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, store.Follow(ctx, "bob", "alice"))
	require.NoError(t, store.Follow(ctx, "bob", "alice"))
	requireErr[*registrystore.ValidationError](t, store.Follow(ctx, "alice", "alice"))
	requireErr[*registrystore.NotFoundError](t, store.Follow(ctx, "bob", "nobody"))

	following, err := store.ListFollowing(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, "alice", following[0].Handle)

	refs, err := store.ListPublicMemories(ctx, "alice", 20)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, pub.ID, refs[0].ID)

	require.NoError(t, store.Unfollow(ctx, "bob", "alice"))
	following, err = store.ListFollowing(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, following)
}

func TestCreateArtifact_Dedup(t *testing.T) {
	store, ctx := setupTestStore(t)
	id := createMemory(t, store, ctx, "alice", "Photos")
	other := createMemory(t, store, ctx, "alice", "More photos")

	req := registrystore.CreateArtifactRequest{MemoryID: id, StorageKey: "k1", Mime: "image/png", Bytes: 3, SHA256: "same"}
	first, err := store.CreateArtifact(ctx, "alice", req)
	require.NoError(t, err)
	assert.False(t, first.Existing)

	req.StorageKey = "k2"
	second, err := store.CreateArtifact(ctx, "alice", req)
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Equal(t, first.Artifact.ID, second.Artifact.ID)

	req.MemoryID = other
	_, err = store.CreateArtifact(ctx, "alice", req)
	requireErr[*registrystore.ConflictError](t, err)

	got, err := store.GetArtifact(ctx, "alice", first.Artifact.ID)
	require.NoError(t, err)
	assert.Equal(t, "k1", got.StorageKey)
	_, err = store.GetArtifact(ctx, "mallory", first.Artifact.ID)
	requireErr[*registrystore.NotFoundError](t, err)
}
