package store

import (
	"context"
	"time"

	"github.com/chirino/weave-service/internal/model"
	"github.com/google/uuid"
)

// MemoryRef is the compact memory representation used in lists and search results.
type MemoryRef struct {
	ID         uuid.UUID        `json:"id"`
	Title      *string          `json:"title"`
	Visibility model.Visibility `json:"visibility"`
	CreatedAt  time.Time        `json:"created_at"`
}

// CoreSnippet is the latest core shown in memory lists.
type CoreSnippet struct {
	Narrative *string `json:"narrative"`
	Locked    bool    `json:"locked"`
}

// MemorySummary is one row of the caller's memory list.
type MemorySummary struct {
	MemoryRef
	Role model.Role   `json:"role"`
	Core *CoreSnippet `json:"core"`
}

// CreateMemoryRequest is the input for creating a memory.
type CreateMemoryRequest struct {
	Title      *string          `json:"title"`
	Visibility model.Visibility `json:"visibility"`
	SeedText   *string          `json:"seed_text"`
}

// ArtifactRef is the artifact metadata embedded in layer views.
type ArtifactRef struct {
	ID    uuid.UUID `json:"id"`
	Mime  string    `json:"mime"`
	Bytes int64     `json:"bytes"`
}

// LayerView is a layer as returned in memory details.
type LayerView struct {
	ID          uuid.UUID              `json:"id"`
	Kind        model.LayerKind        `json:"kind"`
	AuthorID    string                 `json:"author_id"`
	TextContent *string                `json:"text_content,omitempty"`
	Meta        map[string]interface{} `json:"meta"`
	Artifact    *ArtifactRef           `json:"artifact,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// ParticipantView is a participant joined with the user's public profile.
type ParticipantView struct {
	UserID      string     `json:"user_id"`
	Role        model.Role `json:"role"`
	Handle      *string    `json:"handle,omitempty"`
	DisplayName *string    `json:"display_name,omitempty"`
}

// EdgeConnection is a neighbouring memory in an edges summary.
type EdgeConnection struct {
	MemoryID uuid.UUID      `json:"memory_id"`
	Relation model.Relation `json:"relation"`
}

// EdgesSummary counts a memory's edges by relation and lists the newest connections.
type EdgesSummary struct {
	Counts      map[model.Relation]int `json:"counts"`
	Connections []EdgeConnection       `json:"connections"`
}

// MemoryDetail is the full memory view.
type MemoryDetail struct {
	model.Memory
	Core         *model.CoreVersion `json:"core"`
	Layers       []LayerView        `json:"layers"`
	Participants []ParticipantView  `json:"participants"`
	EdgesSummary EdgesSummary       `json:"edges_summary"`
	PublicSlug   *string            `json:"public_slug,omitempty"`
}

// SetCoreRequest carries the editable narrative fields of a draft core.
type SetCoreRequest struct {
	Narrative *string    `json:"narrative"`
	Anchors   []string   `json:"anchors"`
	People    []string   `json:"people"`
	WhenStart *time.Time `json:"when_start"`
	WhenEnd   *time.Time `json:"when_end"`
	Where     *string    `json:"where"`
	Lift      bool       `json:"lift"`
}

const (
	CoreStatusCreated = "created"
	CoreStatusUpdated = "updated"
)

// CoreResult is returned by SetCore.
type CoreResult struct {
	CoreVersion int    `json:"core_version"`
	Locked      bool   `json:"locked"`
	Status      string `json:"status"`
}

// LockResult is returned by LockCore.
type LockResult struct {
	MemoryID uuid.UUID `json:"memory_id"`
	Version  int       `json:"version"`
	LockedAt time.Time `json:"locked_at"`
}

// AppendLayerRequest is the input for appending a layer.
type AppendLayerRequest struct {
	Kind        model.LayerKind        `json:"kind"`
	TextContent *string                `json:"text_content"`
	ArtifactID  *uuid.UUID             `json:"artifact_id"`
	Meta        map[string]interface{} `json:"meta"`
}

// LayerResult is returned by AppendLayer.
type LayerResult struct {
	LayerID    uuid.UUID        `json:"layer_id"`
	Visibility model.Visibility `json:"visibility"`
}

// PermissionGrant assigns a role to a user.
type PermissionGrant struct {
	UserID string     `json:"user_id"`
	Role   model.Role `json:"role"`
}

// PermissionsRequest replaces a memory's visibility and upserts participants.
type PermissionsRequest struct {
	Visibility   model.Visibility  `json:"visibility"`
	Participants []PermissionGrant `json:"participants"`
}

// PermissionsResult is returned by SetPermissions.
type PermissionsResult struct {
	UpdatedAt        time.Time `json:"updated_at"`
	ParticipantCount int       `json:"participant_count"`
	PublicSlug       *string   `json:"public_slug,omitempty"`
}

// WeaveRequest creates or updates an edge between two memories.
type WeaveRequest struct {
	AID      uuid.UUID      `json:"a_id"`
	BID      uuid.UUID      `json:"b_id"`
	Relation model.Relation `json:"relation"`
	Note     *string        `json:"note"`
	Strength *float64       `json:"strength"`
}

// WeaveResult is returned by Weave.
type WeaveResult struct {
	EdgeID   uuid.UUID `json:"edge_id"`
	Strength float64   `json:"strength"`
	Created  bool      `json:"created"`
}

// GraphEdge is one edge in a graph listing.
type GraphEdge struct {
	A        uuid.UUID      `json:"a"`
	B        uuid.UUID      `json:"b"`
	Relation model.Relation `json:"relation"`
	Strength float64        `json:"strength"`
}

// GraphResult is the caller's visible memory graph.
type GraphResult struct {
	Nodes []MemoryRef `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// SearchCandidate is a visible, active memory with its lexical rank for a query.
type SearchCandidate struct {
	Memory   MemoryRef
	TextRank float64
}

// SearchDocument is the text indexed for a memory.
type SearchDocument struct {
	MemoryID uuid.UUID
	Text     string
}

// IndexJobHandler computes the embedding for a claimed job's document.
// It runs while the job row is locked.
type IndexJobHandler func(ctx context.Context, job model.IndexJob, doc SearchDocument) ([]float32, error)

// IndexQueueStats summarises the indexing queue.
type IndexQueueStats struct {
	Pending      int64 `json:"pending"`
	DeadLettered int64 `json:"dead_lettered"`
}

// PurgeResult lists what a purge batch removed. StorageKeys are the artifact
// objects that are no longer referenced and can be removed from object storage.
type PurgeResult struct {
	MemoryIDs   []uuid.UUID
	StorageKeys []string
}

// CreateArtifactRequest records an uploaded object.
type CreateArtifactRequest struct {
	MemoryID   uuid.UUID
	StorageKey string
	Mime       string
	Bytes      int64
	SHA256     string
}

// ArtifactResult is returned by CreateArtifact. Existing is true when an
// identical upload by the same owner was found on the same memory.
type ArtifactResult struct {
	Artifact model.Artifact
	Existing bool
}

const (
	InviteStatusPending         = "pending"
	InviteStatusAccepted        = "accepted"
	InviteStatusAlreadyAccepted = "already_accepted"
)

// ExportedMemory is one memory in an owner export.
type ExportedMemory struct {
	model.Memory
	Cores  []model.CoreVersion `json:"cores"`
	Layers []model.Layer       `json:"layers"`
}

// ExportResult is the owner's full data export.
type ExportResult struct {
	UserID     string           `json:"user_id"`
	ExportedAt time.Time        `json:"exported_at"`
	Memories   []ExportedMemory `json:"memories"`
}
