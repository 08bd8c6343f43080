package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chirino/weave-service/internal/config"
	"github.com/chirino/weave-service/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(store *fakeStore, vectors *fakeVectors) *IndexWorker {
	cfg := config.DefaultConfig()
	cfg.IndexRetryBaseDelay = time.Second
	cfg.IndexRetryMaxDelay = 10 * time.Second
	cfg.IndexMaxAttempts = 3
	var w *IndexWorker
	if vectors == nil {
		w = NewIndexWorker(store, NewVectorizer(&fakeEmbedder{dim: 3}, 3), nil, &cfg)
	} else {
		w = NewIndexWorker(store, NewVectorizer(&fakeEmbedder{dim: 3}, 3), vectors, &cfg)
	}
	w.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return w
}

func TestIndexWorker_IndexesAndMirrors(t *testing.T) {
	memID := uuid.New()
	store := &fakeStore{
		jobs:    []model.IndexJob{{ID: uuid.New(), MemoryID: memID}},
		indexed: map[uuid.UUID][]float32{},
	}
	vectors := &fakeVectors{name: "qdrant"}
	w := newTestWorker(store, vectors)

	worked, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, []float32{1, 0, 0}, store.indexed[memID])
	assert.Equal(t, []float32{1, 0, 0}, vectors.upserted[memID])

	worked, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestIndexWorker_BackoffThenDeadLetter(t *testing.T) {
	store := &fakeStore{
		jobs:    []model.IndexJob{{ID: uuid.New(), MemoryID: uuid.New()}},
		indexed: map[uuid.UUID][]float32{},
		jobErr:  errors.New("expected 3 dimensions, not 4"),
	}
	w := newTestWorker(store, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		worked, err := w.RunOnce(ctx)
		require.NoError(t, err)
		assert.True(t, worked)
	}
	require.Len(t, store.failures, 3)
	assert.False(t, store.failures[0].dead)
	assert.False(t, store.failures[1].dead)
	assert.True(t, store.failures[2].dead)
	assert.Contains(t, store.failures[0].msg, "dimensions")
	assert.True(t, store.failures[1].retryAt.After(store.failures[0].retryAt))
	assert.Empty(t, store.jobs)
}

func TestIndexWorker_RetryDelay(t *testing.T) {
	w := newTestWorker(&fakeStore{}, nil)
	assert.InDelta(t, float64(time.Second), float64(w.retryDelay(1)), float64(100*time.Millisecond))
	assert.InDelta(t, float64(2*time.Second), float64(w.retryDelay(2)), float64(200*time.Millisecond))
	assert.InDelta(t, float64(4*time.Second), float64(w.retryDelay(3)), float64(400*time.Millisecond))
	assert.LessOrEqual(t, w.retryDelay(20), 11*time.Second)
}

func TestIndexWorker_StartStopsOnCancel(t *testing.T) {
	store := &fakeStore{indexed: map[uuid.UUID][]float32{}}
	w := newTestWorker(store, nil)
	w.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
