package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReasons(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		title   string
		cos     float64
		lexical float64
		want    []string
	}{
		{"exact title match", "cedar point", "Cedar Point 2019", 0, 0, []string{"exact match: 'cedar point'"}},
		{"shared terms sorted and capped", "z y x w trip", "w x y z", 0, 0, []string{"term match: 'w'", "term match: 'x'", "term match: 'y'"}},
		{"strong semantic", "roller coasters", "Summer", 0.8, 0.2, []string{"strong semantic similarity", "text relevance"}},
		{"semantic", "roller coasters", "Summer", 0.6, 0, []string{"semantic similarity"}},
		{"related fallback", "roller coasters", "Summer", 0.4, 0.05, []string{"related content"}},
		{"potential fallback", "roller coasters", "", 0, 0, []string{"potential match"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reasons(tt.query, tt.title, tt.cos, tt.lexical))
		})
	}
}

func ref(title string, age time.Duration) registrystore.MemoryRef {
	return registrystore.MemoryRef{ID: uuid.New(), Title: &title, Visibility: model.VisibilityPrivate, CreatedAt: time.Now().Add(-age)}
}

func TestRanker_Search(t *testing.T) {
	cedar := ref("Cedar Point", time.Hour)
	coaster := ref("Millennium Force", 2*time.Hour)
	linked := ref("Sandusky drive", 3*time.Hour)

	store := &fakeStore{
		candidates: []registrystore.SearchCandidate{
			{Memory: cedar, TextRank: 0.5},
			{Memory: coaster, TextRank: 0},
			{Memory: linked, TextRank: 0},
		},
		edges: []model.Edge{{AID: cedar.ID, BID: linked.ID, Strength: 0.9}},
	}
	vectors := &fakeVectors{name: "pgvector", sims: map[uuid.UUID]float64{
		cedar.ID:   0.6,
		coaster.ID: 0.8,
	}}
	r := NewRanker(store, NewVectorizer(&fakeEmbedder{dim: 3}, 3), vectors, 5)

	res, err := r.Search(context.Background(), "alice", "cedar point", 100)
	require.NoError(t, err)
	require.Len(t, res.Results, 3)

	assert.Equal(t, cedar.ID, res.Results[0].Memory.ID)
	assert.InDelta(t, 0.55*0.6+0.35*0.5+0.10*0.0, res.Results[0].Score, 1e-9)
	assert.Equal(t, []string{"exact match: 'cedar point'", "semantic similarity", "text relevance"}, res.Results[0].Reasons)

	assert.Equal(t, coaster.ID, res.Results[1].Memory.ID)
	assert.InDelta(t, 0.55*0.8, res.Results[1].Score, 1e-9)

	// Scores only through its edge to a seed.
	assert.Equal(t, linked.ID, res.Results[2].Memory.ID)
	assert.InDelta(t, 0.10*0.9, res.Results[2].Score, 1e-9)

	top, err := r.Search(context.Background(), "alice", "cedar point", 0)
	require.NoError(t, err)
	assert.Len(t, top.Results, 1)
}

func TestRanker_SearchDegradesToLexical(t *testing.T) {
	cedar := ref("Cedar Point", time.Hour)
	store := &fakeStore{
		candidates: []registrystore.SearchCandidate{{Memory: cedar, TextRank: 0.2}},
	}
	vectors := &fakeVectors{name: "qdrant", err: errors.New("unavailable")}
	r := NewRanker(store, NewVectorizer(&fakeEmbedder{dim: 3, err: errors.New("timeout")}, 3), vectors, 5)

	res, err := r.Search(context.Background(), "alice", "point", 20)
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.InDelta(t, 0.35*0.2, res.Results[0].Score, 1e-9)

	_, err = r.Search(context.Background(), "alice", "   ", 20)
	var verr *registrystore.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRanker_SearchScoresEveryIndexedMemory(t *testing.T) {
	cedar := ref("Cedar Point", time.Hour)
	unvectored := ref("Summer 2019", 2*time.Hour)
	store := &fakeStore{candidates: []registrystore.SearchCandidate{
		{Memory: cedar},
		{Memory: unvectored},
	}}
	sims := map[uuid.UUID]float64{cedar.ID: 0.2}
	// Memories the caller cannot see sit closer to the query.
	for i := 0; i < 200; i++ {
		sims[uuid.New()] = 0.99
	}
	vectors := &fakeVectors{name: "qdrant", sims: sims}
	r := NewRanker(store, NewVectorizer(&fakeEmbedder{dim: 3}, 3), vectors, 5)

	res, err := r.Search(context.Background(), "alice", "roller coaster", 10)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)

	assert.Equal(t, cedar.ID, res.Results[0].Memory.ID)
	assert.InDelta(t, 0.55*0.2, res.Results[0].Score, 1e-9)

	assert.Equal(t, unvectored.ID, res.Results[1].Memory.ID)
	assert.Zero(t, res.Results[1].Score)
	assert.Equal(t, []string{"potential match"}, res.Results[1].Reasons)
}

func TestRanker_Suggestions(t *testing.T) {
	self := ref("Cedar Point", time.Hour)
	near := ref("Kings Island", time.Hour)
	nearer := ref("Millennium Force", time.Hour)
	unvectored := ref("Blank", time.Hour)
	hidden := uuid.New()
	store := &fakeStore{
		embeddings: map[uuid.UUID][]float32{self.ID: {1, 0, 0}},
		candidates: []registrystore.SearchCandidate{{Memory: self}, {Memory: near}, {Memory: nearer}, {Memory: unvectored}},
	}
	vectors := &fakeVectors{name: "pgvector", sims: map[uuid.UUID]float64{self.ID: 1, near.ID: 0.7, nearer.ID: 0.9, hidden: 0.95}}
	r := NewRanker(store, NewVectorizer(nil, 3), vectors, 5)

	refs, err := r.Suggestions(context.Background(), "alice", self.ID, 5)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, nearer.ID, refs[0].ID)
	assert.Equal(t, near.ID, refs[1].ID)

	one, err := r.Suggestions(context.Background(), "alice", self.ID, 1)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, nearer.ID, one[0].ID)

	empty, err := r.Suggestions(context.Background(), "alice", uuid.New(), 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
