package metrics

import (
	"context"
	"time"

	"github.com/chirino/weave-service/internal/model"
	"github.com/chirino/weave-service/internal/registry/store"
	"github.com/chirino/weave-service/internal/security"
	"github.com/google/uuid"
)

// Wrap returns a MemoryStore that records StoreLatency for every operation.
func Wrap(inner store.MemoryStore) store.MemoryStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.MemoryStore
}

func observe(op string, start time.Time) {
	if security.StoreLatency == nil {
		return
	}
	security.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsStore) Ping(ctx context.Context) error {
	return m.inner.Ping(ctx)
}

func (m *metricsStore) EnsureUser(ctx context.Context, userID string) (*model.User, error) {
	defer observe("ensure_user", time.Now())
	return m.inner.EnsureUser(ctx, userID)
}

func (m *metricsStore) GetUserByHandle(ctx context.Context, handle string) (*model.User, error) {
	defer observe("get_user_by_handle", time.Now())
	return m.inner.GetUserByHandle(ctx, handle)
}

func (m *metricsStore) CreateMemory(ctx context.Context, userID string, req store.CreateMemoryRequest) (*store.MemoryRef, error) {
	defer observe("create_memory", time.Now())
	return m.inner.CreateMemory(ctx, userID, req)
}

func (m *metricsStore) ListMemories(ctx context.Context, userID string, limit int) ([]store.MemorySummary, error) {
	defer observe("list_memories", time.Now())
	return m.inner.ListMemories(ctx, userID, limit)
}

func (m *metricsStore) GetMemory(ctx context.Context, userID string, memoryID uuid.UUID) (*store.MemoryDetail, error) {
	defer observe("get_memory", time.Now())
	return m.inner.GetMemory(ctx, userID, memoryID)
}

func (m *metricsStore) MemoryAccess(ctx context.Context, userID string, memoryID uuid.UUID) (*model.Memory, model.Role, error) {
	defer observe("memory_access", time.Now())
	return m.inner.MemoryAccess(ctx, userID, memoryID)
}

func (m *metricsStore) SetPermissions(ctx context.Context, userID string, memoryID uuid.UUID, req store.PermissionsRequest) (*store.PermissionsResult, error) {
	defer observe("set_permissions", time.Now())
	return m.inner.SetPermissions(ctx, userID, memoryID, req)
}

func (m *metricsStore) DeleteMemory(ctx context.Context, userID string, memoryID uuid.UUID) error {
	defer observe("delete_memory", time.Now())
	return m.inner.DeleteMemory(ctx, userID, memoryID)
}

func (m *metricsStore) PurgeDeletedMemories(ctx context.Context, cutoff time.Time, limit int) (*store.PurgeResult, error) {
	defer observe("purge_deleted_memories", time.Now())
	return m.inner.PurgeDeletedMemories(ctx, cutoff, limit)
}

func (m *metricsStore) SetCore(ctx context.Context, userID string, memoryID uuid.UUID, req store.SetCoreRequest) (*store.CoreResult, error) {
	defer observe("set_core", time.Now())
	return m.inner.SetCore(ctx, userID, memoryID, req)
}

func (m *metricsStore) LockCore(ctx context.Context, userID string, memoryID uuid.UUID) (*store.LockResult, error) {
	defer observe("lock_core", time.Now())
	return m.inner.LockCore(ctx, userID, memoryID)
}

func (m *metricsStore) AppendLayer(ctx context.Context, userID string, memoryID uuid.UUID, req store.AppendLayerRequest) (*store.LayerResult, error) {
	defer observe("append_layer", time.Now())
	return m.inner.AppendLayer(ctx, userID, memoryID, req)
}

func (m *metricsStore) Weave(ctx context.Context, userID string, req store.WeaveRequest) (*store.WeaveResult, error) {
	defer observe("weave", time.Now())
	return m.inner.Weave(ctx, userID, req)
}

func (m *metricsStore) Graph(ctx context.Context, userID string, limit int) (*store.GraphResult, error) {
	defer observe("graph", time.Now())
	return m.inner.Graph(ctx, userID, limit)
}

func (m *metricsStore) EdgesTouching(ctx context.Context, memoryIDs []uuid.UUID) ([]model.Edge, error) {
	defer observe("edges_touching", time.Now())
	return m.inner.EdgesTouching(ctx, memoryIDs)
}

func (m *metricsStore) SearchCandidates(ctx context.Context, userID string, query string) ([]store.SearchCandidate, error) {
	defer observe("search_candidates", time.Now())
	return m.inner.SearchCandidates(ctx, userID, query)
}

func (m *metricsStore) MemoryEmbedding(ctx context.Context, userID string, memoryID uuid.UUID) ([]float32, error) {
	defer observe("memory_embedding", time.Now())
	return m.inner.MemoryEmbedding(ctx, userID, memoryID)
}

func (m *metricsStore) LookupIdempotency(ctx context.Context, userID, endpoint, key string) (*model.IdempotencyRecord, error) {
	defer observe("lookup_idempotency", time.Now())
	return m.inner.LookupIdempotency(ctx, userID, endpoint, key)
}

func (m *metricsStore) ClaimIdempotency(ctx context.Context, userID, endpoint, key string) (bool, error) {
	defer observe("claim_idempotency", time.Now())
	return m.inner.ClaimIdempotency(ctx, userID, endpoint, key)
}

func (m *metricsStore) CompleteIdempotency(ctx context.Context, userID, endpoint, key string, resourceID uuid.UUID) error {
	defer observe("complete_idempotency", time.Now())
	return m.inner.CompleteIdempotency(ctx, userID, endpoint, key, resourceID)
}

func (m *metricsStore) EnqueueIndexJob(ctx context.Context, memoryID uuid.UUID) error {
	defer observe("enqueue_index_job", time.Now())
	return m.inner.EnqueueIndexJob(ctx, memoryID)
}

func (m *metricsStore) RunIndexJob(ctx context.Context, handle store.IndexJobHandler) (*model.IndexJob, error) {
	defer observe("run_index_job", time.Now())
	return m.inner.RunIndexJob(ctx, handle)
}

func (m *metricsStore) FailIndexJob(ctx context.Context, jobID uuid.UUID, errMsg string, retryAt time.Time, deadLetter bool) error {
	defer observe("fail_index_job", time.Now())
	return m.inner.FailIndexJob(ctx, jobID, errMsg, retryAt, deadLetter)
}

func (m *metricsStore) IndexQueueStats(ctx context.Context) (*store.IndexQueueStats, error) {
	defer observe("index_queue_stats", time.Now())
	return m.inner.IndexQueueStats(ctx)
}

func (m *metricsStore) CreateArtifact(ctx context.Context, userID string, req store.CreateArtifactRequest) (*store.ArtifactResult, error) {
	defer observe("create_artifact", time.Now())
	return m.inner.CreateArtifact(ctx, userID, req)
}

func (m *metricsStore) GetArtifact(ctx context.Context, userID string, artifactID uuid.UUID) (*model.Artifact, error) {
	defer observe("get_artifact", time.Now())
	return m.inner.GetArtifact(ctx, userID, artifactID)
}

func (m *metricsStore) CreateInvite(ctx context.Context, userID string, memoryID uuid.UUID, role model.Role, ttl time.Duration) (*model.Invite, error) {
	defer observe("create_invite", time.Now())
	return m.inner.CreateInvite(ctx, userID, memoryID, role, ttl)
}

func (m *metricsStore) AcceptInvite(ctx context.Context, userID string, token string) (string, error) {
	defer observe("accept_invite", time.Now())
	return m.inner.AcceptInvite(ctx, userID, token)
}

func (m *metricsStore) Follow(ctx context.Context, userID string, handle string) error {
	defer observe("follow", time.Now())
	return m.inner.Follow(ctx, userID, handle)
}

func (m *metricsStore) Unfollow(ctx context.Context, userID string, handle string) error {
	defer observe("unfollow", time.Now())
	return m.inner.Unfollow(ctx, userID, handle)
}

func (m *metricsStore) ListFollowing(ctx context.Context, userID string) ([]model.User, error) {
	defer observe("list_following", time.Now())
	return m.inner.ListFollowing(ctx, userID)
}

func (m *metricsStore) ListPublicMemories(ctx context.Context, handle string, limit int) ([]store.MemoryRef, error) {
	defer observe("list_public_memories", time.Now())
	return m.inner.ListPublicMemories(ctx, handle, limit)
}

func (m *metricsStore) GetPublicMemory(ctx context.Context, slug string) (*store.MemoryDetail, error) {
	defer observe("get_public_memory", time.Now())
	return m.inner.GetPublicMemory(ctx, slug)
}

func (m *metricsStore) Export(ctx context.Context, userID string) (*store.ExportResult, error) {
	defer observe("export", time.Now())
	return m.inner.Export(ctx, userID)
}
