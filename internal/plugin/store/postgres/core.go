package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *PostgresStore) SetCore(ctx context.Context, userID string, memoryID uuid.UUID, req registrystore.SetCoreRequest) (*registrystore.CoreResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var result registrystore.CoreResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The memory row lock serializes draft creation per memory.
		_, role, err := loadAccess(tx, userID, memoryID, true)
		if err != nil {
			return err
		}
		if err := requireContributor(role); err != nil {
			return err
		}

		draft, err := findDraft(tx, memoryID)
		if err != nil {
			return err
		}
		now := time.Now()
		if draft != nil {
			err := tx.Model(&model.CoreVersion{}).Where("id = ?", draft.ID).Updates(map[string]interface{}{
				"narrative":  req.Narrative,
				"anchors":    jsonColumn(req.Anchors),
				"people":     jsonColumn(req.People),
				"when_start": req.WhenStart,
				"when_end":   req.WhenEnd,
				"place":      req.Where,
				"updated_at": now,
			}).Error
			if err != nil {
				return fmt.Errorf("failed to update draft: %w", err)
			}
			result = registrystore.CoreResult{CoreVersion: draft.Version, Locked: false, Status: registrystore.CoreStatusUpdated}
			return nil
		}

		var lastLocked int
		err = tx.Raw(`SELECT COALESCE(MAX(version), 0) FROM core_versions WHERE memory_id = ? AND locked`, memoryID).
			Scan(&lastLocked).Error
		if err != nil {
			return fmt.Errorf("failed to read locked version: %w", err)
		}
		if lastLocked > 0 && !req.Lift {
			return &ConflictError{
				Message: "Core is locked. Pass lift=true to start a new draft version.",
				Code:    "core_locked",
			}
		}

		core := model.CoreVersion{
			ID:        uuid.New(),
			MemoryID:  memoryID,
			Version:   lastLocked + 1,
			Narrative: req.Narrative,
			Anchors:   req.Anchors,
			People:    req.People,
			WhenStart: req.WhenStart,
			WhenEnd:   req.WhenEnd,
			Where:     req.Where,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&core).Error; err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{Message: "a draft already exists for this memory", Code: "draft_exists"}
			}
			return fmt.Errorf("failed to create draft: %w", err)
		}
		result = registrystore.CoreResult{CoreVersion: core.Version, Locked: false, Status: registrystore.CoreStatusCreated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *PostgresStore) LockCore(ctx context.Context, userID string, memoryID uuid.UUID) (*registrystore.LockResult, error) {
	var result registrystore.LockResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock order is memory row then draft row, the same as SetCore.
		_, role, err := loadAccess(tx, userID, memoryID, true)
		if err != nil {
			return err
		}
		if err := requireContributor(role); err != nil {
			return err
		}

		// A concurrent locker blocks here and then no longer sees the draft.
		draft, err := findDraft(tx.Clauses(clause.Locking{Strength: "UPDATE"}), memoryID)
		if err != nil {
			return err
		}
		if draft == nil {
			var locked []model.CoreVersion
			err := tx.Where("memory_id = ? AND locked", memoryID).Order("version DESC").Limit(1).Find(&locked).Error
			if err != nil {
				return fmt.Errorf("failed to load locked core: %w", err)
			}
			if len(locked) == 0 {
				return &ConflictError{Message: "No draft core to lock.", Code: "no_draft"}
			}
			result = registrystore.LockResult{MemoryID: memoryID, Version: locked[0].Version, LockedAt: *locked[0].LockedAt}
			return nil
		}

		now := time.Now().Truncate(time.Microsecond)
		err = tx.Model(&model.CoreVersion{}).Where("id = ?", draft.ID).Updates(map[string]interface{}{
			"locked":     true,
			"locked_at":  now,
			"updated_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to lock core: %w", err)
		}
		err = tx.Model(&model.Memory{}).Where("id = ?", memoryID).Updates(map[string]interface{}{
			"current_core_version": draft.Version,
			"updated_at":           now,
		}).Error
		if err != nil {
			return fmt.Errorf("failed to update current core: %w", err)
		}
		if err := enqueueIndexJob(tx, memoryID); err != nil {
			return err
		}
		result = registrystore.LockResult{MemoryID: memoryID, Version: draft.Version, LockedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// jsonColumn encodes v for a jsonb column in a map-based update, which skips gorm serializers.
func jsonColumn(v interface{}) interface{} {
	b, _ := json.Marshal(v)
	return gorm.Expr("?::jsonb", string(b))
}

func findDraft(db *gorm.DB, memoryID uuid.UUID) (*model.CoreVersion, error) {
	var drafts []model.CoreVersion
	if err := db.Where("memory_id = ? AND NOT locked", memoryID).Limit(1).Find(&drafts).Error; err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	if len(drafts) == 0 {
		return nil, nil
	}
	return &drafts[0], nil
}
