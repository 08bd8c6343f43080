package store

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/weave-service/internal/model"
	"github.com/google/uuid"
)

// MemoryStore defines the primary data access interface for the weave service.
// Every method that takes a userID enforces visibility and role rules itself.
type MemoryStore interface {
	// Ping checks that the backing database answers.
	Ping(ctx context.Context) error

	// Users
	EnsureUser(ctx context.Context, userID string) (*model.User, error)
	GetUserByHandle(ctx context.Context, handle string) (*model.User, error)

	// Memories
	CreateMemory(ctx context.Context, userID string, req CreateMemoryRequest) (*MemoryRef, error)
	ListMemories(ctx context.Context, userID string, limit int) ([]MemorySummary, error)
	GetMemory(ctx context.Context, userID string, memoryID uuid.UUID) (*MemoryDetail, error)
	// MemoryAccess returns the memory and the caller's role ("" for public readers).
	MemoryAccess(ctx context.Context, userID string, memoryID uuid.UUID) (*model.Memory, model.Role, error)
	SetPermissions(ctx context.Context, userID string, memoryID uuid.UUID, req PermissionsRequest) (*PermissionsResult, error)
	DeleteMemory(ctx context.Context, userID string, memoryID uuid.UUID) error
	// PurgeDeletedMemories hard-deletes up to limit memories that were deleted
	// before cutoff, together with everything that references them.
	PurgeDeletedMemories(ctx context.Context, cutoff time.Time, limit int) (*PurgeResult, error)

	// Core lifecycle
	SetCore(ctx context.Context, userID string, memoryID uuid.UUID, req SetCoreRequest) (*CoreResult, error)
	LockCore(ctx context.Context, userID string, memoryID uuid.UUID) (*LockResult, error)

	// Layers
	AppendLayer(ctx context.Context, userID string, memoryID uuid.UUID, req AppendLayerRequest) (*LayerResult, error)

	// Edges and graph
	Weave(ctx context.Context, userID string, req WeaveRequest) (*WeaveResult, error)
	Graph(ctx context.Context, userID string, limit int) (*GraphResult, error)
	EdgesTouching(ctx context.Context, memoryIDs []uuid.UUID) ([]model.Edge, error)

	// Search
	// SearchCandidates returns every active, indexed memory the caller may read,
	// with its lexical rank against query (0 when nothing matches).
	SearchCandidates(ctx context.Context, userID string, query string) ([]SearchCandidate, error)
	// MemoryEmbedding returns the indexed vector of a memory, or nil when it has not been indexed yet.
	MemoryEmbedding(ctx context.Context, userID string, memoryID uuid.UUID) ([]float32, error)

	// Idempotency
	LookupIdempotency(ctx context.Context, userID, endpoint, key string) (*model.IdempotencyRecord, error)
	ClaimIdempotency(ctx context.Context, userID, endpoint, key string) (bool, error)
	CompleteIdempotency(ctx context.Context, userID, endpoint, key string, resourceID uuid.UUID) error

	// Indexing queue
	EnqueueIndexJob(ctx context.Context, memoryID uuid.UUID) error
	// RunIndexJob claims the oldest due job, runs handle while holding its row lock and
	// commits the index update together with the job deletion. It returns nil, nil when
	// no job is due. On failure the claimed job is returned with the error.
	RunIndexJob(ctx context.Context, handle IndexJobHandler) (*model.IndexJob, error)
	FailIndexJob(ctx context.Context, jobID uuid.UUID, errMsg string, retryAt time.Time, deadLetter bool) error
	IndexQueueStats(ctx context.Context) (*IndexQueueStats, error)

	// Artifacts
	CreateArtifact(ctx context.Context, userID string, req CreateArtifactRequest) (*ArtifactResult, error)
	GetArtifact(ctx context.Context, userID string, artifactID uuid.UUID) (*model.Artifact, error)

	// Invites
	CreateInvite(ctx context.Context, userID string, memoryID uuid.UUID, role model.Role, ttl time.Duration) (*model.Invite, error)
	AcceptInvite(ctx context.Context, userID string, token string) (string, error)

	// Social and public
	Follow(ctx context.Context, userID string, handle string) error
	Unfollow(ctx context.Context, userID string, handle string) error
	ListFollowing(ctx context.Context, userID string) ([]model.User, error)
	ListPublicMemories(ctx context.Context, handle string, limit int) ([]MemoryRef, error)
	GetPublicMemory(ctx context.Context, slug string) (*MemoryDetail, error)

	// Export
	Export(ctx context.Context, userID string) (*ExportResult, error)
}

// Loader creates a MemoryStore from config.
type Loader func(ctx context.Context) (MemoryStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
