package postgres

import (
	"context"
	"fmt"

	"github.com/chirino/weave-service/internal/model"
	"github.com/google/uuid"
)

func (s *PostgresStore) LookupIdempotency(ctx context.Context, userID, endpoint, key string) (*model.IdempotencyRecord, error) {
	var rec model.IdempotencyRecord
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND endpoint = ? AND idem_key = ?", userID, endpoint, key).
		Limit(1).
		Find(&rec)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &rec, nil
}

// ClaimIdempotency inserts the placeholder row. It returns false when another
// attempt already holds the key.
func (s *PostgresStore) ClaimIdempotency(ctx context.Context, userID, endpoint, key string) (bool, error) {
	rec := model.IdempotencyRecord{UserID: userID, Endpoint: endpoint, Key: key}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim idempotency key: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) CompleteIdempotency(ctx context.Context, userID, endpoint, key string, resourceID uuid.UUID) error {
	err := s.db.WithContext(ctx).Model(&model.IdempotencyRecord{}).
		Where("user_id = ? AND endpoint = ? AND idem_key = ? AND resource_id IS NULL", userID, endpoint, key).
		Update("resource_id", resourceID).Error
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}
