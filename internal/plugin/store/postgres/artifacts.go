package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateArtifact records an uploaded object. Uploads are deduplicated per owner
// by content hash: the same bytes on the same memory return the existing row,
// on another memory they conflict.
func (s *PostgresStore) CreateArtifact(ctx context.Context, userID string, req registrystore.CreateArtifactRequest) (*registrystore.ArtifactResult, error) {
	db := s.db.WithContext(ctx)
	_, role, err := loadAccess(db, userID, req.MemoryID, false)
	if err != nil {
		return nil, err
	}
	if err := requireContributor(role); err != nil {
		return nil, err
	}

	if existing, err := s.dedupArtifact(db, userID, req); existing != nil || err != nil {
		return existing, err
	}

	a := model.Artifact{
		ID:         uuid.New(),
		MemoryID:   req.MemoryID,
		OwnerID:    userID,
		StorageKey: req.StorageKey,
		Mime:       req.Mime,
		Bytes:      req.Bytes,
		SHA256:     req.SHA256,
		CreatedAt:  time.Now(),
	}
	if err := db.Create(&a).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost a race with an identical upload.
			if existing, err := s.dedupArtifact(db, userID, req); existing != nil || err != nil {
				return existing, err
			}
		}
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}
	return &registrystore.ArtifactResult{Artifact: a}, nil
}

func (s *PostgresStore) dedupArtifact(db *gorm.DB, userID string, req registrystore.CreateArtifactRequest) (*registrystore.ArtifactResult, error) {
	var existing model.Artifact
	result := db.Where("owner_id = ? AND sha256 = ?", userID, req.SHA256).Limit(1).Find(&existing)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to look up artifact: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	if existing.MemoryID != req.MemoryID {
		return nil, &ConflictError{
			Message: "identical file already uploaded to memory " + existing.MemoryID.String(),
			Code:    "duplicate_artifact",
		}
	}
	return &registrystore.ArtifactResult{Artifact: existing, Existing: true}, nil
}

func (s *PostgresStore) GetArtifact(ctx context.Context, userID string, artifactID uuid.UUID) (*model.Artifact, error) {
	db := s.db.WithContext(ctx)
	var a model.Artifact
	if err := db.Where("id = ?", artifactID).Take(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "artifact", ID: artifactID.String()}
		}
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}
	if _, _, err := loadAccess(db, userID, a.MemoryID, false); err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, &NotFoundError{Resource: "artifact", ID: artifactID.String()}
		}
		return nil, err
	}
	return &a, nil
}
