package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/chirino/weave-service/internal/config"
	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	registryvector "github.com/chirino/weave-service/internal/registry/vector"
	"github.com/chirino/weave-service/internal/security"
	"github.com/google/uuid"
)

// IndexWorker drains the index job queue. Any number of workers may run
// against the same database; claims never overlap.
type IndexWorker struct {
	store       registrystore.MemoryStore
	vectorizer  *Vectorizer
	vectors     registryvector.VectorStore
	interval    time.Duration
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewIndexWorker builds a worker from config. vectors may be nil; when it is
// an external index it receives every committed embedding.
func NewIndexWorker(store registrystore.MemoryStore, vectorizer *Vectorizer, vectors registryvector.VectorStore, cfg *config.Config) *IndexWorker {
	return &IndexWorker{
		store:       store,
		vectorizer:  vectorizer,
		vectors:     vectors,
		interval:    cfg.IndexPollInterval,
		baseDelay:   cfg.IndexRetryBaseDelay,
		maxDelay:    cfg.IndexRetryMaxDelay,
		maxAttempts: cfg.IndexMaxAttempts,
		now:         time.Now,
	}
}

// Start runs the worker loop until ctx is cancelled. The queue is drained
// back to back and polled every interval once it is empty.
func (w *IndexWorker) Start(ctx context.Context) {
	log.Info("Index worker started", "interval", w.interval, "maxAttempts", w.maxAttempts)
	defer log.Info("Index worker stopped")

	stats := time.NewTicker(15 * time.Second)
	defer stats.Stop()
	for {
		worked, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error("Index worker: iteration failed", "err", err)
		}
		if worked && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-stats.C:
			w.publishQueueDepth(ctx)
		case <-time.After(w.interval):
		}
	}
}

// RunOnce processes at most one job. worked is false when no job was due.
func (w *IndexWorker) RunOnce(ctx context.Context) (worked bool, err error) {
	var embedding []float32
	var indexed uuid.UUID
	job, err := w.store.RunIndexJob(ctx, func(ctx context.Context, job model.IndexJob, doc registrystore.SearchDocument) ([]float32, error) {
		embedding = w.vectorizer.Embed(ctx, doc.Text)
		indexed = doc.MemoryID
		return embedding, nil
	})
	if job == nil {
		return false, err
	}
	if err != nil {
		return true, w.fail(ctx, job, err)
	}

	security.RecordIndexJob("indexed")
	log.Debug("Index worker: indexed memory", "memoryId", job.MemoryID, "jobId", job.ID)
	if indexed != uuid.Nil {
		w.mirror(ctx, indexed, embedding)
	}
	return true, nil
}

func (w *IndexWorker) fail(ctx context.Context, job *model.IndexJob, cause error) error {
	attempt := job.Attempts + 1
	dead := w.maxAttempts > 0 && attempt >= w.maxAttempts
	retryAt := w.now().Add(w.retryDelay(attempt))
	if dead {
		security.RecordIndexJob("dead_lettered")
		log.Error("Index worker: job dead-lettered", "jobId", job.ID, "memoryId", job.MemoryID, "attempts", attempt, "err", cause)
	} else {
		security.RecordIndexJob("retried")
		log.Warn("Index worker: job failed; will retry", "jobId", job.ID, "memoryId", job.MemoryID, "attempt", attempt, "retryAt", retryAt, "err", cause)
	}
	// The claim transaction rolled back, so the failure is recorded separately.
	return w.store.FailIndexJob(context.WithoutCancel(ctx), job.ID, cause.Error(), retryAt, dead)
}

// retryDelay is the exponential backoff before the given attempt is retried.
func (w *IndexWorker) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.baseDelay
	b.MaxInterval = w.maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxElapsedTime = 0
	b.Reset()
	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// mirror copies the committed embedding into an external vector index. The
// datastore copy stays authoritative, so failures only degrade recall.
func (w *IndexWorker) mirror(ctx context.Context, memoryID uuid.UUID, embedding []float32) {
	if w.vectors == nil || w.vectors.Name() == "pgvector" {
		return
	}
	if err := w.vectors.Upsert(ctx, memoryID, embedding, w.vectorizer.ModelName()); err != nil {
		log.Warn("Index worker: vector mirror failed", "memoryId", memoryID, "vector", w.vectors.Name(), "err", err)
		security.RecordDegraded("vector")
	}
}

func (w *IndexWorker) publishQueueDepth(ctx context.Context) {
	stats, err := w.store.IndexQueueStats(ctx)
	if err != nil {
		log.Warn("Index worker: queue stats failed", "err", err)
		return
	}
	security.RecordQueueDepth(stats.Pending, stats.DeadLettered)
}
