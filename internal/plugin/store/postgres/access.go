package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/chirino/weave-service/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// visibleSQL matches memories (aliased m) the caller may read. Bind the user id twice.
const visibleSQL = `(m.visibility = 'PUBLIC' OR m.owner_id = ? OR EXISTS (
	SELECT 1 FROM participants p WHERE p.memory_id = m.id AND p.user_id = ?))`

// loadAccess reads a memory and the caller's role on it. Memories the caller
// cannot see are reported as not found, deleted ones as gone. When lock is set
// the memory row is locked for the rest of the transaction.
func loadAccess(db *gorm.DB, userID string, memoryID uuid.UUID, lock bool) (*model.Memory, model.Role, error) {
	q := db
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var mem model.Memory
	if err := q.Where("id = ?", memoryID).Take(&mem).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", &NotFoundError{Resource: "memory", ID: memoryID.String()}
		}
		return nil, "", fmt.Errorf("failed to load memory: %w", err)
	}

	role, err := participantRole(db, userID, &mem)
	if err != nil {
		return nil, "", err
	}
	if role == "" && mem.Visibility != model.VisibilityPublic {
		return nil, "", &NotFoundError{Resource: "memory", ID: memoryID.String()}
	}
	if mem.Status == model.MemoryStatusDeleted {
		return nil, "", &GoneError{Resource: "memory", ID: memoryID.String()}
	}
	return &mem, role, nil
}

func participantRole(db *gorm.DB, userID string, mem *model.Memory) (model.Role, error) {
	if userID == "" {
		return "", nil
	}
	if mem.OwnerID == userID {
		return model.RoleOwner, nil
	}
	var p model.Participant
	result := db.Where("memory_id = ? AND user_id = ?", mem.ID, userID).Limit(1).Find(&p)
	if result.Error != nil {
		return "", fmt.Errorf("failed to check access: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return "", nil
	}
	return p.Role, nil
}

func requireContributor(role model.Role) error {
	if !role.CanContribute() {
		return &ForbiddenError{Message: "owner or contributor role required"}
	}
	return nil
}

func requireOwner(role model.Role) error {
	if role != model.RoleOwner {
		return &ForbiddenError{Message: "owner role required"}
	}
	return nil
}

func (s *PostgresStore) MemoryAccess(ctx context.Context, userID string, memoryID uuid.UUID) (*model.Memory, model.Role, error) {
	return loadAccess(s.db.WithContext(ctx), userID, memoryID, false)
}
