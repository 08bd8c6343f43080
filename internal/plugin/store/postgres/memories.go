package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- Users ---

func (s *PostgresStore) EnsureUser(ctx context.Context, userID string) (*model.User, error) {
	return ensureUser(s.db.WithContext(ctx), userID)
}

// ensureUser creates the app user on first sight. The handle defaults to the
// user id, with a random suffix if another user already holds that handle.
func ensureUser(db *gorm.DB, userID string) (*model.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Field: "user_id", Message: "user id is required"}
	}
	var u model.User
	result := db.Where("id = ?", userID).Limit(1).Find(&u)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load user: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return &u, nil
	}

	for _, handle := range []string{userID, userID + "-" + uuid.NewString()[:8]} {
		u = model.User{ID: userID, Handle: handle}
		result = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&u)
		if result.Error != nil {
			return nil, fmt.Errorf("failed to create user: %w", result.Error)
		}
		var existing model.User
		if err := db.Where("id = ?", userID).Limit(1).Find(&existing).Error; err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		if existing.ID == userID {
			return &existing, nil
		}
	}
	return nil, &ConflictError{Message: "could not allocate a handle for user " + userID, Code: "handle_taken"}
}

func (s *PostgresStore) GetUserByHandle(ctx context.Context, handle string) (*model.User, error) {
	return userByHandle(s.db.WithContext(ctx), handle)
}

// --- Memories ---

func (s *PostgresStore) CreateMemory(ctx context.Context, userID string, req registrystore.CreateMemoryRequest) (*registrystore.MemoryRef, error) {
	visibility := req.Visibility
	if visibility == "" {
		visibility = model.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, &ValidationError{Field: "visibility", Message: "visibility must be PRIVATE, SHARED or PUBLIC"}
	}

	var mem model.Memory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ensureUser(tx, userID); err != nil {
			return err
		}
		now := time.Now()
		mem = model.Memory{
			ID:         uuid.New(),
			OwnerID:    userID,
			Title:      req.Title,
			Visibility: visibility,
			Status:     model.MemoryStatusActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Create(&mem).Error; err != nil {
			return fmt.Errorf("failed to create memory: %w", err)
		}
		owner := model.Participant{MemoryID: mem.ID, UserID: userID, Role: model.RoleOwner}
		if err := tx.Create(&owner).Error; err != nil {
			return fmt.Errorf("failed to add owner: %w", err)
		}
		if visibility == model.VisibilityPublic {
			if _, err := ensurePublicSlug(tx, &mem); err != nil {
				return err
			}
		}

		if req.SeedText != nil && strings.TrimSpace(*req.SeedText) != "" {
			layer := model.Layer{
				ID:          uuid.New(),
				MemoryID:    mem.ID,
				AuthorID:    userID,
				Kind:        model.LayerText,
				TextContent: req.SeedText,
				Meta:        map[string]interface{}{},
			}
			if err := tx.Create(&layer).Error; err != nil {
				return fmt.Errorf("failed to add seed layer: %w", err)
			}
		}
		return enqueueIndexJob(tx, mem.ID)
	})
	if err != nil {
		return nil, err
	}
	return memoryRef(&mem), nil
}

func (s *PostgresStore) ListMemories(ctx context.Context, userID string, limit int) ([]registrystore.MemorySummary, error) {
	type row struct {
		model.Memory
		Role model.Role `gorm:"column:role"`
	}
	var rows []row
	err := s.db.WithContext(ctx).Raw(`
		SELECT m.*, p.role
		FROM memories m
		JOIN participants p ON p.memory_id = m.id AND p.user_id = ?
		WHERE m.status = 'ACTIVE'
		ORDER BY m.created_at DESC
		LIMIT ?`, userID, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	if len(rows) == 0 {
		return []registrystore.MemorySummary{}, nil
	}

	ids := make([]uuid.UUID, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	type coreRow struct {
		MemoryID  uuid.UUID
		Narrative *string
		Locked    bool
	}
	var cores []coreRow
	err = s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT ON (memory_id) memory_id, narrative, locked
		FROM core_versions
		WHERE memory_id IN ?
		ORDER BY memory_id, version DESC`, ids).Scan(&cores).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load cores: %w", err)
	}
	latest := make(map[uuid.UUID]*registrystore.CoreSnippet, len(cores))
	for _, c := range cores {
		latest[c.MemoryID] = &registrystore.CoreSnippet{Narrative: c.Narrative, Locked: c.Locked}
	}

	out := make([]registrystore.MemorySummary, len(rows))
	for i := range rows {
		out[i] = registrystore.MemorySummary{
			MemoryRef: *memoryRef(&rows[i].Memory),
			Role:      rows[i].Role,
			Core:      latest[rows[i].ID],
		}
	}
	return out, nil
}

func (s *PostgresStore) GetMemory(ctx context.Context, userID string, memoryID uuid.UUID) (*registrystore.MemoryDetail, error) {
	db := s.db.WithContext(ctx)
	mem, _, err := loadAccess(db, userID, memoryID, false)
	if err != nil {
		return nil, err
	}
	return memoryDetail(db, mem)
}

func (s *PostgresStore) SetPermissions(ctx context.Context, userID string, memoryID uuid.UUID, req registrystore.PermissionsRequest) (*registrystore.PermissionsResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var result registrystore.PermissionsResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mem, role, err := loadAccess(tx, userID, memoryID, true)
		if err != nil {
			return err
		}
		if err := requireOwner(role); err != nil {
			return err
		}

		now := time.Now()
		err = tx.Model(&model.Memory{}).Where("id = ?", memoryID).Updates(map[string]interface{}{
			"visibility": req.Visibility,
			"updated_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to update visibility: %w", err)
		}
		mem.Visibility = req.Visibility

		for _, grant := range req.Participants {
			if grant.UserID == mem.OwnerID {
				continue
			}
			if !grant.Role.Grantable() {
				return &ValidationError{Field: "participants.role", Message: "role must be CONTRIBUTOR or VIEWER"}
			}
			p := model.Participant{MemoryID: memoryID, UserID: grant.UserID, Role: grant.Role}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "memory_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"role"}),
			}).Create(&p).Error
			if err != nil {
				return fmt.Errorf("failed to upsert participant: %w", err)
			}
		}

		var count int64
		if err := tx.Model(&model.Participant{}).Where("memory_id = ?", memoryID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count participants: %w", err)
		}

		if req.Visibility == model.VisibilityPublic {
			slug, err := ensurePublicSlug(tx, mem)
			if err != nil {
				return err
			}
			result.PublicSlug = &slug
		} else if err := tx.Where("memory_id = ?", memoryID).Delete(&model.PublicSlug{}).Error; err != nil {
			return fmt.Errorf("failed to remove public slug: %w", err)
		}

		result.UpdatedAt = now
		result.ParticipantCount = int(count)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *PostgresStore) DeleteMemory(ctx context.Context, userID string, memoryID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, role, err := loadAccess(tx, userID, memoryID, true)
		if err != nil {
			return err
		}
		if err := requireOwner(role); err != nil {
			return err
		}
		err = tx.Model(&model.Memory{}).Where("id = ?", memoryID).Updates(map[string]interface{}{
			"status":     model.MemoryStatusDeleted,
			"updated_at": time.Now(),
		}).Error
		if err != nil {
			return fmt.Errorf("failed to delete memory: %w", err)
		}
		if err := tx.Where("memory_id = ?", memoryID).Delete(&model.PublicSlug{}).Error; err != nil {
			return fmt.Errorf("failed to remove public slug: %w", err)
		}
		return nil
	})
}

// --- Helpers ---

func memoryRef(m *model.Memory) *registrystore.MemoryRef {
	return &registrystore.MemoryRef{ID: m.ID, Title: m.Title, Visibility: m.Visibility, CreatedAt: m.CreatedAt}
}

func ensurePublicSlug(tx *gorm.DB, mem *model.Memory) (string, error) {
	var existing model.PublicSlug
	result := tx.Where("memory_id = ?", mem.ID).Limit(1).Find(&existing)
	if result.Error != nil {
		return "", fmt.Errorf("failed to load public slug: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return existing.Slug, nil
	}
	slug := model.PublicSlug{MemoryID: mem.ID, Slug: registrystore.PublicSlugFor(mem.Title, mem.ID)}
	if err := tx.Create(&slug).Error; err != nil {
		if isUniqueViolation(err) {
			return "", &ConflictError{Message: "public slug already in use: " + slug.Slug, Code: "slug_taken"}
		}
		return "", fmt.Errorf("failed to create public slug: %w", err)
	}
	return slug.Slug, nil
}

const maxDetailConnections = 12

// memoryDetail assembles the full view of a memory the caller is allowed to read.
func memoryDetail(db *gorm.DB, mem *model.Memory) (*registrystore.MemoryDetail, error) {
	detail := &registrystore.MemoryDetail{
		Memory:       *mem,
		Layers:       []registrystore.LayerView{},
		Participants: []registrystore.ParticipantView{},
		EdgesSummary: registrystore.EdgesSummary{
			Counts:      map[model.Relation]int{},
			Connections: []registrystore.EdgeConnection{},
		},
	}

	// Prefer the locked current version, falling back to the open draft.
	var cores []model.CoreVersion
	q := db.Where("memory_id = ?", mem.ID)
	if mem.CurrentCoreVersion != nil {
		q = q.Where("version = ? OR NOT locked", *mem.CurrentCoreVersion).Order("locked DESC")
	} else {
		q = q.Where("NOT locked")
	}
	if err := q.Limit(1).Find(&cores).Error; err != nil {
		return nil, fmt.Errorf("failed to load core: %w", err)
	}
	if len(cores) > 0 {
		detail.Core = &cores[0]
	}

	type layerRow struct {
		model.Layer
		ArtifactMime  *string `gorm:"column:artifact_mime"`
		ArtifactBytes *int64  `gorm:"column:artifact_bytes"`
	}
	var layers []layerRow
	err := db.Raw(`
		SELECT l.*, a.mime AS artifact_mime, a.bytes AS artifact_bytes
		FROM layers l
		LEFT JOIN artifacts a ON a.id = l.artifact_id
		WHERE l.memory_id = ?
		ORDER BY l.created_at ASC`, mem.ID).Scan(&layers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load layers: %w", err)
	}
	for _, l := range layers {
		view := registrystore.LayerView{
			ID:          l.ID,
			Kind:        l.Kind,
			AuthorID:    l.AuthorID,
			TextContent: l.TextContent,
			Meta:        l.Meta,
			CreatedAt:   l.CreatedAt,
		}
		if view.Meta == nil {
			view.Meta = map[string]interface{}{}
		}
		if l.ArtifactID != nil && l.ArtifactMime != nil {
			view.Artifact = &registrystore.ArtifactRef{ID: *l.ArtifactID, Mime: *l.ArtifactMime}
			if l.ArtifactBytes != nil {
				view.Artifact.Bytes = *l.ArtifactBytes
			}
		}
		detail.Layers = append(detail.Layers, view)
	}

	err = db.Raw(`
		SELECT p.user_id, p.role, u.handle, u.display_name
		FROM participants p
		LEFT JOIN app_users u ON u.id = p.user_id
		WHERE p.memory_id = ?
		ORDER BY p.created_at ASC`, mem.ID).Scan(&detail.Participants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}

	type countRow struct {
		Relation model.Relation
		N        int
	}
	var counts []countRow
	err = db.Raw(`
		SELECT relation, COUNT(*) AS n
		FROM edges
		WHERE a_id = ? OR b_id = ?
		GROUP BY relation`, mem.ID, mem.ID).Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count edges: %w", err)
	}
	for _, c := range counts {
		detail.EdgesSummary.Counts[c.Relation] = c.N
	}
	err = db.Raw(`
		SELECT CASE WHEN a_id = ? THEN b_id ELSE a_id END AS memory_id, relation
		FROM edges
		WHERE a_id = ? OR b_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, mem.ID, mem.ID, mem.ID, maxDetailConnections).Scan(&detail.EdgesSummary.Connections).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}

	var slug model.PublicSlug
	result := db.Where("memory_id = ?", mem.ID).Limit(1).Find(&slug)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load public slug: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		detail.PublicSlug = &slug.Slug
	}
	return detail, nil
}
