package postgres

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *PostgresStore) CreateInvite(ctx context.Context, userID string, memoryID uuid.UUID, role model.Role, ttl time.Duration) (*model.Invite, error) {
	if !role.Grantable() {
		return nil, &ValidationError{Field: "role", Message: "role must be CONTRIBUTOR or VIEWER"}
	}
	db := s.db.WithContext(ctx)
	_, callerRole, err := loadAccess(db, userID, memoryID, false)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(callerRole); err != nil {
		return nil, err
	}

	token, err := newInviteToken()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	inv := model.Invite{
		ID:        uuid.New(),
		MemoryID:  memoryID,
		Token:     token,
		Role:      role,
		CreatedBy: userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := db.Create(&inv).Error; err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}
	return &inv, nil
}

func (s *PostgresStore) AcceptInvite(ctx context.Context, userID string, token string) (string, error) {
	status := registrystore.InviteStatusAccepted
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var inv model.Invite
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("token = ?", token).Take(&inv).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "invite", ID: token}
			}
			return fmt.Errorf("failed to load invite: %w", err)
		}
		if inv.AcceptedAt != nil {
			status = registrystore.InviteStatusAlreadyAccepted
			return nil
		}
		if time.Now().After(inv.ExpiresAt) {
			return &GoneError{Resource: "invite", ID: inv.ID.String()}
		}

		var mem model.Memory
		if err := tx.Where("id = ?", inv.MemoryID).Take(&mem).Error; err != nil {
			return fmt.Errorf("failed to load memory: %w", err)
		}
		if mem.Status == model.MemoryStatusDeleted {
			return &GoneError{Resource: "memory", ID: mem.ID.String()}
		}
		if _, err := ensureUser(tx, userID); err != nil {
			return err
		}
		if mem.OwnerID != userID {
			p := model.Participant{MemoryID: inv.MemoryID, UserID: userID, Role: inv.Role}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "memory_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"role"}),
			}).Create(&p).Error
			if err != nil {
				return fmt.Errorf("failed to add participant: %w", err)
			}
		}

		now := time.Now()
		return tx.Model(&model.Invite{}).Where("id = ?", inv.ID).Updates(map[string]interface{}{
			"accepted_by": userID,
			"accepted_at": now,
		}).Error
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

func newInviteToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate invite token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
