package service

import (
	"context"

	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/chirino/weave-service/internal/security"
	"github.com/google/uuid"
)

// IdempotencyGuard replays the resource id recorded for a (user, endpoint, key).
// It is best-effort: two concurrent first attempts can both run.
type IdempotencyGuard struct {
	store registrystore.MemoryStore
}

func NewIdempotencyGuard(store registrystore.MemoryStore) *IdempotencyGuard {
	return &IdempotencyGuard{store: store}
}

// Do runs create unless an earlier call with the same key completed, in which
// case the recorded id is returned with replayed set. An empty key disables the guard.
func (g *IdempotencyGuard) Do(ctx context.Context, userID, endpoint, key string, create func(context.Context) (uuid.UUID, error)) (id uuid.UUID, replayed bool, err error) {
	if key == "" {
		id, err = create(ctx)
		return id, false, err
	}

	rec, err := g.store.LookupIdempotency(ctx, userID, endpoint, key)
	if err != nil {
		return uuid.Nil, false, err
	}
	if rec.Completed() {
		return *rec.ResourceID, true, nil
	}
	// A lost claim means another attempt is in flight or failed; run anyway.
	if _, err := g.store.ClaimIdempotency(ctx, userID, endpoint, key); err != nil {
		return uuid.Nil, false, err
	}

	id, err = create(ctx)
	if err != nil {
		return uuid.Nil, false, err
	}
	// The write already succeeded; an unrecorded key only weakens replay.
	if err := g.store.CompleteIdempotency(ctx, userID, endpoint, key, id); err != nil {
		log.Warn("Failed to record idempotency key", "endpoint", endpoint, "resource", id, "err", err)
		security.RecordDegraded("idempotency")
	}
	return id, false, nil
}
