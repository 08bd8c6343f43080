package model

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls who may read a memory.
type Visibility string

const (
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityShared  Visibility = "SHARED"
	VisibilityPublic  Visibility = "PUBLIC"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityShared, VisibilityPublic:
		return true
	}
	return false
}

// MemoryStatus is the lifecycle status of a memory. Deletion is a status flip.
type MemoryStatus string

const (
	MemoryStatusActive  MemoryStatus = "ACTIVE"
	MemoryStatusDeleted MemoryStatus = "DELETED"
)

// Role is a participant's role on a memory.
type Role string

const (
	RoleOwner       Role = "OWNER"
	RoleContributor Role = "CONTRIBUTOR"
	RoleViewer      Role = "VIEWER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleContributor, RoleViewer:
		return true
	}
	return false
}

// CanContribute returns true for roles allowed to write cores and layers.
func (r Role) CanContribute() bool {
	return r == RoleOwner || r == RoleContributor
}

// Grantable reports whether r may be handed out through permissions or invites.
func (r Role) Grantable() bool {
	return r == RoleContributor || r == RoleViewer
}

// LayerKind is the type of an append-only layer.
type LayerKind string

const (
	LayerText       LayerKind = "TEXT"
	LayerImage      LayerKind = "IMAGE"
	LayerVideo      LayerKind = "VIDEO"
	LayerAudio      LayerKind = "AUDIO"
	LayerReflection LayerKind = "REFLECTION"
	LayerLink       LayerKind = "LINK"
)

// Valid reports whether k is a known layer kind.
func (k LayerKind) Valid() bool {
	return k.IsTextual() || k.IsMedia() || k == LayerLink
}

// IsTextual is true for kinds carrying text content.
func (k LayerKind) IsTextual() bool {
	return k == LayerText || k == LayerReflection
}

// IsMedia is true for kinds referencing an uploaded artifact.
func (k LayerKind) IsMedia() bool {
	return k == LayerImage || k == LayerVideo || k == LayerAudio
}

// Relation tags an edge between two memories.
type Relation string

const (
	RelationSamePerson Relation = "SAME_PERSON"
	RelationSameEvent  Relation = "SAME_EVENT"
	RelationTheme      Relation = "THEME"
	RelationEmotion    Relation = "EMOTION"
	RelationTimeNear   Relation = "TIME_NEAR"
)

// Valid reports whether r is a known relation.
func (r Relation) Valid() bool {
	switch r {
	case RelationSamePerson, RelationSameEvent, RelationTheme, RelationEmotion, RelationTimeNear:
		return true
	}
	return false
}

// JobKind identifies the work an IndexJob performs.
type JobKind string

const JobIndexMemory JobKind = "INDEX_MEMORY"

// User is a caller known to the service. IDs are the authenticated subject.
type User struct {
	ID          string    `json:"id"                     gorm:"primaryKey"`
	Handle      string    `json:"handle"                 gorm:"not null;uniqueIndex"`
	DisplayName *string   `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"             gorm:"not null;default:now()"`
}

func (User) TableName() string { return "app_users" }

// Memory is the container that accumulates cores, layers and edges.
type Memory struct {
	ID                 uuid.UUID    `json:"id"                             gorm:"primaryKey;type:uuid"`
	OwnerID            string       `json:"owner_id"                       gorm:"not null"`
	Title              *string      `json:"title,omitempty"`
	Visibility         Visibility   `json:"visibility"                     gorm:"not null;default:'PRIVATE'"`
	Status             MemoryStatus `json:"status"                         gorm:"not null;default:'ACTIVE'"`
	CurrentCoreVersion *int         `json:"current_core_version,omitempty"`
	CreatedAt          time.Time    `json:"created_at"                     gorm:"not null;default:now()"`
	UpdatedAt          time.Time    `json:"updated_at"                     gorm:"not null;default:now()"`
}

func (Memory) TableName() string { return "memories" }

// CoreVersion is one version of a memory's narrative core. Locked versions never change.
type CoreVersion struct {
	ID        uuid.UUID  `json:"id"                   gorm:"primaryKey;type:uuid"`
	MemoryID  uuid.UUID  `json:"memory_id"            gorm:"not null;type:uuid"`
	Version   int        `json:"version"              gorm:"not null"`
	Locked    bool       `json:"locked"               gorm:"not null;default:false"`
	LockedAt  *time.Time `json:"locked_at,omitempty"`
	Narrative *string    `json:"narrative,omitempty"`
	Anchors   []string   `json:"anchors"              gorm:"type:jsonb;serializer:json;not null;default:'[]'"`
	People    []string   `json:"people"               gorm:"type:jsonb;serializer:json;not null;default:'[]'"`
	WhenStart *time.Time `json:"when_start,omitempty"`
	WhenEnd   *time.Time `json:"when_end,omitempty"`
	Where     *string    `json:"where,omitempty"      gorm:"column:place"`
	CreatedAt time.Time  `json:"created_at"           gorm:"not null;default:now()"`
	UpdatedAt time.Time  `json:"updated_at"           gorm:"not null;default:now()"`
}

func (CoreVersion) TableName() string { return "core_versions" }

// Layer is an append-only contribution to a memory.
type Layer struct {
	ID          uuid.UUID              `json:"id"                     gorm:"primaryKey;type:uuid"`
	MemoryID    uuid.UUID              `json:"memory_id"              gorm:"not null;type:uuid"`
	AuthorID    string                 `json:"author_id"              gorm:"not null"`
	Kind        LayerKind              `json:"kind"                   gorm:"not null"`
	TextContent *string                `json:"text_content,omitempty"`
	ArtifactID  *uuid.UUID             `json:"artifact_id,omitempty"  gorm:"type:uuid"`
	Meta        map[string]interface{} `json:"meta"                   gorm:"type:jsonb;serializer:json;not null;default:'{}'"`
	CreatedAt   time.Time              `json:"created_at"             gorm:"not null;default:now()"`
}

func (Layer) TableName() string { return "layers" }

// Artifact is an uploaded binary referenced by media layers.
type Artifact struct {
	ID         uuid.UUID `json:"id"          gorm:"primaryKey;type:uuid"`
	MemoryID   uuid.UUID `json:"memory_id"   gorm:"not null;type:uuid"`
	OwnerID    string    `json:"owner_id"    gorm:"not null"`
	StorageKey string    `json:"-"           gorm:"not null"`
	Mime       string    `json:"mime"        gorm:"not null"`
	Bytes      int64     `json:"bytes"       gorm:"not null"`
	SHA256     string    `json:"sha256"      gorm:"column:sha256;not null"`
	CreatedAt  time.Time `json:"created_at"  gorm:"not null;default:now()"`
}

func (Artifact) TableName() string { return "artifacts" }

// Edge relates two distinct memories. AID is always the lexically smaller id.
type Edge struct {
	ID        uuid.UUID `json:"id"             gorm:"primaryKey;type:uuid"`
	AID       uuid.UUID `json:"a_id"           gorm:"column:a_id;not null;type:uuid"`
	BID       uuid.UUID `json:"b_id"           gorm:"column:b_id;not null;type:uuid"`
	Relation  Relation  `json:"relation"       gorm:"not null"`
	Strength  float64   `json:"strength"       gorm:"not null;default:0.5"`
	Note      *string   `json:"note,omitempty"`
	CreatedBy string    `json:"created_by"     gorm:"not null"`
	CreatedAt time.Time `json:"created_at"     gorm:"not null;default:now()"`
	UpdatedAt time.Time `json:"updated_at"     gorm:"not null;default:now()"`
}

func (Edge) TableName() string { return "edges" }

// Participant grants a user a role on a memory.
type Participant struct {
	MemoryID  uuid.UUID `json:"memory_id"  gorm:"primaryKey;type:uuid"`
	UserID    string    `json:"user_id"    gorm:"primaryKey"`
	Role      Role      `json:"role"       gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
}

func (Participant) TableName() string { return "participants" }

// IdempotencyRecord remembers the resource produced for a client key.
type IdempotencyRecord struct {
	UserID     string     `json:"user_id"               gorm:"primaryKey"`
	Endpoint   string     `json:"endpoint"              gorm:"primaryKey"`
	Key        string     `json:"key"                   gorm:"primaryKey;column:idem_key"`
	ResourceID *uuid.UUID `json:"resource_id,omitempty" gorm:"type:uuid"`
	CreatedAt  time.Time  `json:"created_at"            gorm:"not null;default:now()"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_keys" }

// Completed reports whether the guarded operation recorded its result.
func (r *IdempotencyRecord) Completed() bool {
	return r != nil && r.ResourceID != nil
}

// IndexJob is a queued request to rebuild a memory's search index.
type IndexJob struct {
	ID             uuid.UUID  `json:"id"                         gorm:"primaryKey;type:uuid"`
	MemoryID       uuid.UUID  `json:"memory_id"                  gorm:"not null;type:uuid"`
	Kind           JobKind    `json:"kind"                       gorm:"not null"`
	Attempts       int        `json:"attempts"                   gorm:"not null;default:0"`
	RetryAt        time.Time  `json:"retry_at"                   gorm:"not null;default:now()"`
	LastError      *string    `json:"last_error,omitempty"`
	DeadLetteredAt *time.Time `json:"dead_lettered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"                 gorm:"not null;default:now()"`
}

func (IndexJob) TableName() string { return "index_jobs" }

// Invite is a token that grants a role on a memory once accepted.
type Invite struct {
	ID         uuid.UUID  `json:"id"                    gorm:"primaryKey;type:uuid"`
	MemoryID   uuid.UUID  `json:"memory_id"             gorm:"not null;type:uuid"`
	Token      string     `json:"token"                 gorm:"not null;uniqueIndex"`
	Role       Role       `json:"role"                  gorm:"not null"`
	CreatedBy  string     `json:"created_by"            gorm:"not null"`
	ExpiresAt  time.Time  `json:"expires_at"            gorm:"not null"`
	AcceptedBy *string    `json:"accepted_by,omitempty"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"            gorm:"not null;default:now()"`
}

func (Invite) TableName() string { return "invites" }

// PublicSlug maps a stable URL slug to a PUBLIC memory.
type PublicSlug struct {
	MemoryID  uuid.UUID `json:"memory_id"  gorm:"primaryKey;type:uuid"`
	Slug      string    `json:"slug"       gorm:"not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:now()"`
}

func (PublicSlug) TableName() string { return "public_slugs" }

// Follow records that FollowerID follows FolloweeID.
type Follow struct {
	FollowerID string    `json:"follower_id" gorm:"primaryKey"`
	FolloweeID string    `json:"followee_id" gorm:"primaryKey"`
	CreatedAt  time.Time `json:"created_at"  gorm:"not null;default:now()"`
}

func (Follow) TableName() string { return "follows" }
