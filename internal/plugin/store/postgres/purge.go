package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// purgeTables lists the tables keyed by memory_id, children before parents.
var purgeTables = []string{
	"index_jobs",
	"memory_index",
	"invites",
	"public_slugs",
	"participants",
	"layers",
	"artifacts",
	"core_versions",
}

func (s *PostgresStore) PurgeDeletedMemories(ctx context.Context, cutoff time.Time, limit int) (*registrystore.PurgeResult, error) {
	if limit <= 0 {
		limit = 100
	}
	result := &registrystore.PurgeResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := tx.Raw(`
			SELECT id FROM memories
			WHERE status = ? AND updated_at < ?
			ORDER BY updated_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED`, model.MemoryStatusDeleted, cutoff, limit).Scan(&ids).Error
		if err != nil {
			return fmt.Errorf("failed to find purgeable memories: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		var keys []string
		if err := tx.Model(&model.Artifact{}).Where("memory_id IN ?", ids).Pluck("storage_key", &keys).Error; err != nil {
			return fmt.Errorf("failed to list purged artifacts: %w", err)
		}

		if err := tx.Exec(`DELETE FROM edges WHERE a_id IN ? OR b_id IN ?`, ids, ids).Error; err != nil {
			return fmt.Errorf("failed to purge edges: %w", err)
		}
		for _, table := range purgeTables {
			if err := tx.Exec(`DELETE FROM `+table+` WHERE memory_id IN ?`, ids).Error; err != nil {
				return fmt.Errorf("failed to purge %s: %w", table, err)
			}
		}
		if err := tx.Exec(`DELETE FROM idempotency_keys WHERE resource_id IN ?`, ids).Error; err != nil {
			return fmt.Errorf("failed to purge idempotency keys: %w", err)
		}
		if err := tx.Exec(`DELETE FROM memories WHERE id IN ?`, ids).Error; err != nil {
			return fmt.Errorf("failed to purge memories: %w", err)
		}

		result.MemoryIDs = ids
		result.StorageKeys = keys
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
