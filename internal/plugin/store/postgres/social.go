package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *PostgresStore) Follow(ctx context.Context, userID string, handle string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := userByHandle(tx, handle)
		if err != nil {
			return err
		}
		if target.ID == userID {
			return &ValidationError{Field: "handle", Message: "cannot follow yourself"}
		}
		if _, err := ensureUser(tx, userID); err != nil {
			return err
		}
		f := model.Follow{FollowerID: userID, FolloweeID: target.ID, CreatedAt: time.Now()}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&f).Error; err != nil {
			return fmt.Errorf("failed to follow: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Unfollow(ctx context.Context, userID string, handle string) error {
	db := s.db.WithContext(ctx)
	target, err := userByHandle(db, handle)
	if err != nil {
		return err
	}
	if err := db.Where("follower_id = ? AND followee_id = ?", userID, target.ID).Delete(&model.Follow{}).Error; err != nil {
		return fmt.Errorf("failed to unfollow: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFollowing(ctx context.Context, userID string) ([]model.User, error) {
	users := []model.User{}
	err := s.db.WithContext(ctx).Raw(`
		SELECT u.* FROM follows f
		JOIN app_users u ON u.id = f.followee_id
		WHERE f.follower_id = ?
		ORDER BY f.created_at DESC`, userID).Scan(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list following: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) ListPublicMemories(ctx context.Context, handle string, limit int) ([]registrystore.MemoryRef, error) {
	db := s.db.WithContext(ctx)
	owner, err := userByHandle(db, handle)
	if err != nil {
		return nil, err
	}
	var mems []model.Memory
	err = db.Where("owner_id = ? AND visibility = ? AND status = ?", owner.ID, model.VisibilityPublic, model.MemoryStatusActive).
		Order("created_at DESC").
		Limit(limit).
		Find(&mems).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list public memories: %w", err)
	}
	out := make([]registrystore.MemoryRef, len(mems))
	for i := range mems {
		out[i] = *memoryRef(&mems[i])
	}
	return out, nil
}

func (s *PostgresStore) GetPublicMemory(ctx context.Context, slug string) (*registrystore.MemoryDetail, error) {
	db := s.db.WithContext(ctx)
	var mems []model.Memory
	err := db.Raw(`
		SELECT m.* FROM public_slugs ps
		JOIN memories m ON m.id = ps.memory_id
		WHERE ps.slug = ? AND m.visibility = 'PUBLIC' AND m.status = 'ACTIVE'`, slug).Scan(&mems).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load public memory: %w", err)
	}
	if len(mems) == 0 {
		return nil, &NotFoundError{Resource: "public memory", ID: slug}
	}
	return memoryDetail(db, &mems[0])
}

func userByHandle(db *gorm.DB, handle string) (*model.User, error) {
	var u model.User
	if err := db.Where("handle = ?", handle).Take(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: handle}
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}
