package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
)

// Export returns every active memory the caller owns with all cores and layers.
func (s *PostgresStore) Export(ctx context.Context, userID string) (*registrystore.ExportResult, error) {
	db := s.db.WithContext(ctx)
	var mems []model.Memory
	err := db.Where("owner_id = ? AND status = ?", userID, model.MemoryStatusActive).
		Order("created_at ASC").
		Find(&mems).Error
	if err != nil {
		return nil, fmt.Errorf("failed to export memories: %w", err)
	}

	result := &registrystore.ExportResult{
		UserID:     userID,
		ExportedAt: time.Now().UTC(),
		Memories:   make([]registrystore.ExportedMemory, len(mems)),
	}
	if len(mems) == 0 {
		return result, nil
	}

	ids := make([]uuid.UUID, len(mems))
	for i := range mems {
		ids[i] = mems[i].ID
	}
	var cores []model.CoreVersion
	if err := db.Where("memory_id IN ?", ids).Order("version ASC").Find(&cores).Error; err != nil {
		return nil, fmt.Errorf("failed to export cores: %w", err)
	}
	var layers []model.Layer
	if err := db.Where("memory_id IN ?", ids).Order("created_at ASC").Find(&layers).Error; err != nil {
		return nil, fmt.Errorf("failed to export layers: %w", err)
	}

	coresBy := make(map[uuid.UUID][]model.CoreVersion)
	for _, c := range cores {
		coresBy[c.MemoryID] = append(coresBy[c.MemoryID], c)
	}
	layersBy := make(map[uuid.UUID][]model.Layer)
	for _, l := range layers {
		layersBy[l.MemoryID] = append(layersBy[l.MemoryID], l)
	}
	for i, m := range mems {
		exported := registrystore.ExportedMemory{
			Memory: m,
			Cores:  coresBy[m.ID],
			Layers: layersBy[m.ID],
		}
		if exported.Cores == nil {
			exported.Cores = []model.CoreVersion{}
		}
		if exported.Layers == nil {
			exported.Layers = []model.Layer{}
		}
		result.Memories[i] = exported
	}
	return result, nil
}
