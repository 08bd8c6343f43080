package postgres

import (
	"context"
	"fmt"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *PostgresStore) AppendLayer(ctx context.Context, userID string, memoryID uuid.UUID, req registrystore.AppendLayerRequest) (*registrystore.LayerResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var result registrystore.LayerResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		mem, role, err := loadAccess(tx, userID, memoryID, false)
		if err != nil {
			return err
		}
		if err := requireContributor(role); err != nil {
			return err
		}

		layer := model.Layer{
			ID:       uuid.New(),
			MemoryID: memoryID,
			AuthorID: userID,
			Kind:     req.Kind,
			Meta:     req.Meta,
		}
		switch {
		case req.Kind.IsTextual():
			layer.TextContent = req.TextContent
		case req.Kind.IsMedia():
			var n int64
			err := tx.Model(&model.Artifact{}).Where("id = ? AND memory_id = ?", *req.ArtifactID, memoryID).Count(&n).Error
			if err != nil {
				return fmt.Errorf("failed to check artifact: %w", err)
			}
			if n == 0 {
				return &ValidationError{Field: "artifact_id", Message: "artifact not found for this memory"}
			}
			layer.ArtifactID = req.ArtifactID
			layer.TextContent = req.TextContent
		}

		if err := tx.Create(&layer).Error; err != nil {
			return fmt.Errorf("failed to append layer: %w", err)
		}
		// Every kind can change the search document through captions.
		if err := enqueueIndexJob(tx, memoryID); err != nil {
			return err
		}
		result = registrystore.LayerResult{LayerID: layer.ID, Visibility: mem.Visibility}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
