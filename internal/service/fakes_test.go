package service

import (
	"context"
	"errors"
	"time"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
)

type fakeEmbedder struct {
	dim   int
	err   error
	calls int
}

func (e *fakeEmbedder) ModelName() string { return "fake" }
func (e *fakeEmbedder) Dimension() int    { return e.dim }
func (e *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, e.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

// fakeStore implements just the methods the services call; anything else panics.
type fakeStore struct {
	registrystore.MemoryStore

	idem        map[string]*model.IdempotencyRecord
	completeErr error

	jobs     []model.IndexJob
	jobErr   error
	indexed  map[uuid.UUID][]float32
	failures []failedJob

	candidates []registrystore.SearchCandidate
	edges      []model.Edge
	embeddings map[uuid.UUID][]float32

	purgeBatches []registrystore.PurgeResult
	purgeCutoffs []time.Time
}

type failedJob struct {
	id      uuid.UUID
	msg     string
	retryAt time.Time
	dead    bool
}

func idemKey(userID, endpoint, key string) string { return userID + "|" + endpoint + "|" + key }

func (s *fakeStore) LookupIdempotency(_ context.Context, userID, endpoint, key string) (*model.IdempotencyRecord, error) {
	return s.idem[idemKey(userID, endpoint, key)], nil
}

func (s *fakeStore) ClaimIdempotency(_ context.Context, userID, endpoint, key string) (bool, error) {
	k := idemKey(userID, endpoint, key)
	if _, ok := s.idem[k]; ok {
		return false, nil
	}
	s.idem[k] = &model.IdempotencyRecord{UserID: userID, Endpoint: endpoint, Key: key}
	return true, nil
}

func (s *fakeStore) CompleteIdempotency(_ context.Context, userID, endpoint, key string, id uuid.UUID) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	rec := s.idem[idemKey(userID, endpoint, key)]
	if rec == nil {
		return errors.New("no claim")
	}
	if rec.ResourceID == nil {
		rec.ResourceID = &id
	}
	return nil
}

func (s *fakeStore) RunIndexJob(ctx context.Context, handle registrystore.IndexJobHandler) (*model.IndexJob, error) {
	if len(s.jobs) == 0 {
		return nil, nil
	}
	job := s.jobs[0]
	emb, err := handle(ctx, job, registrystore.SearchDocument{MemoryID: job.MemoryID, Text: "cedar point"})
	if err == nil {
		err = s.jobErr
	}
	if err != nil {
		return &job, err
	}
	s.jobs = s.jobs[1:]
	s.indexed[job.MemoryID] = emb
	return &job, nil
}

func (s *fakeStore) FailIndexJob(_ context.Context, jobID uuid.UUID, msg string, retryAt time.Time, dead bool) error {
	s.failures = append(s.failures, failedJob{id: jobID, msg: msg, retryAt: retryAt, dead: dead})
	s.jobs[0].Attempts++
	if dead {
		s.jobs = s.jobs[1:]
	}
	return nil
}

func (s *fakeStore) IndexQueueStats(context.Context) (*registrystore.IndexQueueStats, error) {
	return &registrystore.IndexQueueStats{Pending: int64(len(s.jobs))}, nil
}

func (s *fakeStore) SearchCandidates(context.Context, string, string) ([]registrystore.SearchCandidate, error) {
	return s.candidates, nil
}

func (s *fakeStore) EdgesTouching(_ context.Context, ids []uuid.UUID) ([]model.Edge, error) {
	in := map[uuid.UUID]bool{}
	for _, id := range ids {
		in[id] = true
	}
	var out []model.Edge
	for _, e := range s.edges {
		if in[e.AID] || in[e.BID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) MemoryEmbedding(_ context.Context, _ string, id uuid.UUID) ([]float32, error) {
	return s.embeddings[id], nil
}

func (f *fakeStore) PurgeDeletedMemories(_ context.Context, cutoff time.Time, _ int) (*registrystore.PurgeResult, error) {
	f.purgeCutoffs = append(f.purgeCutoffs, cutoff)
	if len(f.purgeBatches) == 0 {
		return &registrystore.PurgeResult{}, nil
	}
	next := f.purgeBatches[0]
	f.purgeBatches = f.purgeBatches[1:]
	return &next, nil
}

type fakeVectors struct {
	name     string
	sims     map[uuid.UUID]float64
	upserted map[uuid.UUID][]float32
	deleted  []uuid.UUID
	err      error
}

func (v *fakeVectors) Name() string { return v.name }

func (v *fakeVectors) Similarities(_ context.Context, _ []float32, ids []uuid.UUID) (map[uuid.UUID]float64, error) {
	if v.err != nil {
		return nil, v.err
	}
	out := map[uuid.UUID]float64{}
	for _, id := range ids {
		if s, ok := v.sims[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (v *fakeVectors) Upsert(_ context.Context, id uuid.UUID, emb []float32, _ string) error {
	if v.upserted == nil {
		v.upserted = map[uuid.UUID][]float32{}
	}
	v.upserted[id] = emb
	return nil
}

func (v *fakeVectors) Delete(_ context.Context, id uuid.UUID) error {
	v.deleted = append(v.deleted, id)
	return nil
}
