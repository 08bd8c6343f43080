package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/weave-service/internal/config"
	registryattach "github.com/chirino/weave-service/internal/registry/attach"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	registryvector "github.com/chirino/weave-service/internal/registry/vector"
)

// PurgeService hard-deletes memories that have been soft-deleted for longer
// than the retention period, then removes their vectors and artifact objects.
type PurgeService struct {
	store     registrystore.MemoryStore
	vectors   registryvector.VectorStore
	artifacts registryattach.ArtifactStore
	interval  time.Duration
	retention time.Duration
	batchSize int
	delay     time.Duration
	now       func() time.Time
}

// NewPurgeService builds a purge loop from config. vectors and artifacts may be nil.
func NewPurgeService(store registrystore.MemoryStore, vectors registryvector.VectorStore, artifacts registryattach.ArtifactStore, cfg *config.Config) *PurgeService {
	return &PurgeService{
		store:     store,
		vectors:   vectors,
		artifacts: artifacts,
		interval:  cfg.PurgeInterval,
		retention: cfg.PurgeRetention,
		batchSize: cfg.PurgeBatchSize,
		delay:     cfg.PurgeBatchDelay,
		now:       time.Now,
	}
}

// Start runs a purge every interval until ctx is cancelled.
func (p *PurgeService) Start(ctx context.Context) {
	if p == nil || p.store == nil || p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce purges batches until none are left and returns the number of memories removed.
func (p *PurgeService) RunOnce(ctx context.Context) int {
	cutoff := p.now().Add(-p.retention)
	purged := 0
	for {
		res, err := p.store.PurgeDeletedMemories(ctx, cutoff, p.batchSize)
		if err != nil {
			log.Error("Purge: batch failed", "err", err)
			return purged
		}
		if len(res.MemoryIDs) == 0 {
			break
		}
		if purged == 0 {
			log.Info("Purge: starting", "cutoff", cutoff)
		}
		purged += len(res.MemoryIDs)

		if p.vectors != nil {
			for _, id := range res.MemoryIDs {
				if err := p.vectors.Delete(ctx, id); err != nil {
					log.Warn("Purge: vector delete failed", "memoryId", id, "err", err)
				}
			}
		}
		if p.artifacts != nil {
			for _, key := range res.StorageKeys {
				if err := p.artifacts.Delete(ctx, key); err != nil {
					log.Warn("Purge: artifact delete failed", "key", key, "err", err)
				}
			}
		}

		if p.delay > 0 {
			select {
			case <-ctx.Done():
				return purged
			case <-time.After(p.delay):
			}
		}
	}
	if purged > 0 {
		log.Info("Purge: completed", "purged", purged)
	}
	return purged
}
