package postgres

import (
	"context"
	"fmt"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxGraphEdges = 2000

func (s *PostgresStore) Weave(ctx context.Context, userID string, req registrystore.WeaveRequest) (*registrystore.WeaveResult, error) {
	a, b, err := req.Validate()
	if err != nil {
		return nil, err
	}
	var result registrystore.WeaveResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, roleA, err := loadAccess(tx, userID, a, false)
		if err != nil {
			return err
		}
		if _, _, err := loadAccess(tx, userID, b, false); err != nil {
			return err
		}
		// Edges are owned through their canonical first endpoint.
		if roleA != model.RoleOwner {
			return &ForbiddenError{Message: "only the owner of " + a.String() + " may weave it"}
		}

		var row struct {
			ID       uuid.UUID
			Strength float64
			Inserted bool
		}
		err = tx.Raw(`
			INSERT INTO edges (id, a_id, b_id, relation, strength, note, created_by)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (a_id, b_id, relation) DO UPDATE
			SET strength = EXCLUDED.strength, note = EXCLUDED.note, updated_at = now()
			RETURNING id, strength, (xmax = 0) AS inserted`,
			uuid.New(), a, b, req.Relation, *req.Strength, req.Note, userID).Scan(&row).Error
		if err != nil {
			return fmt.Errorf("failed to weave edge: %w", err)
		}
		result = registrystore.WeaveResult{EdgeID: row.ID, Strength: row.Strength, Created: row.Inserted}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *PostgresStore) Graph(ctx context.Context, userID string, limit int) (*registrystore.GraphResult, error) {
	db := s.db.WithContext(ctx)
	var nodes []model.Memory
	err := db.Raw(`
		SELECT m.* FROM memories m
		WHERE m.status = 'ACTIVE' AND `+visibleSQL+`
		ORDER BY m.created_at DESC
		LIMIT ?`, userID, userID, limit).Scan(&nodes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load graph nodes: %w", err)
	}

	result := &registrystore.GraphResult{
		Nodes: make([]registrystore.MemoryRef, len(nodes)),
		Edges: []registrystore.GraphEdge{},
	}
	if len(nodes) == 0 {
		return result, nil
	}
	ids := make([]uuid.UUID, len(nodes))
	for i := range nodes {
		ids[i] = nodes[i].ID
		result.Nodes[i] = *memoryRef(&nodes[i])
	}
	err = db.Raw(`
		SELECT a_id AS a, b_id AS b, relation, strength
		FROM edges
		WHERE a_id IN ? AND b_id IN ?
		ORDER BY strength DESC, created_at DESC
		LIMIT ?`, ids, ids, maxGraphEdges).Scan(&result.Edges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load graph edges: %w", err)
	}
	return result, nil
}

func (s *PostgresStore) EdgesTouching(ctx context.Context, memoryIDs []uuid.UUID) ([]model.Edge, error) {
	if len(memoryIDs) == 0 {
		return nil, nil
	}
	var edges []model.Edge
	err := s.db.WithContext(ctx).Where("a_id IN ? OR b_id IN ?", memoryIDs, memoryIDs).Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	return edges, nil
}
