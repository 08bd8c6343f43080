package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chirino/weave-service/internal/config"
	registryattach "github.com/chirino/weave-service/internal/registry/attach"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArtifacts struct {
	registryattach.ArtifactStore
	deleted []string
	err     error
}

func (a *fakeArtifacts) Delete(_ context.Context, key string) error {
	a.deleted = append(a.deleted, key)
	return a.err
}

func TestPurgeService_RemovesVectorsAndObjects(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	store := &fakeStore{purgeBatches: []registrystore.PurgeResult{
		{MemoryIDs: []uuid.UUID{first}, StorageKeys: []string{"a.jpg", "b.jpg"}},
		{MemoryIDs: []uuid.UUID{second}},
	}}
	vectors := &fakeVectors{name: "qdrant"}
	artifacts := &fakeArtifacts{err: errors.New("bucket unavailable")}

	cfg := config.DefaultConfig()
	cfg.PurgeRetention = 24 * time.Hour
	p := NewPurgeService(store, vectors, artifacts, &cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	require.Equal(t, 2, p.RunOnce(context.Background()))
	assert.Equal(t, []uuid.UUID{first, second}, vectors.deleted)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, artifacts.deleted)
	require.Len(t, store.purgeCutoffs, 3)
	for _, cutoff := range store.purgeCutoffs {
		assert.Equal(t, now.Add(-24*time.Hour), cutoff)
	}
}

func TestPurgeService_NothingToDo(t *testing.T) {
	store := &fakeStore{}
	cfg := config.DefaultConfig()
	p := NewPurgeService(store, nil, nil, &cfg)
	assert.Equal(t, 0, p.RunOnce(context.Background()))
	assert.Len(t, store.purgeCutoffs, 1)
}

func TestPurgeService_DisabledLoopReturns(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PurgeInterval = 0
	done := make(chan struct{})
	go func() {
		NewPurgeService(&fakeStore{}, nil, nil, &cfg).Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return immediately when the interval is zero")
	}
}
