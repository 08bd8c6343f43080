package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	registryvector "github.com/chirino/weave-service/internal/registry/vector"
	"github.com/chirino/weave-service/internal/security"
	"github.com/google/uuid"
)

const (
	weightVector  = 0.55
	weightLexical = 0.35
	weightGraph   = 0.10

	maxSearchLimit = 50
)

// SearchHit is one ranked memory.
type SearchHit struct {
	Memory  registrystore.MemoryRef `json:"memory"`
	Score   float64                 `json:"score"`
	Reasons []string                `json:"reasons"`
}

// SearchResult is the response of an associative search.
type SearchResult struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// Ranker blends vector similarity, full-text rank and graph proximity.
type Ranker struct {
	store      registrystore.MemoryStore
	vectorizer *Vectorizer
	vectors    registryvector.VectorStore
	graphSeeds int
}

func NewRanker(store registrystore.MemoryStore, vectorizer *Vectorizer, vectors registryvector.VectorStore, graphSeeds int) *Ranker {
	return &Ranker{store: store, vectorizer: vectorizer, vectors: vectors, graphSeeds: graphSeeds}
}

type scoredCandidate struct {
	candidate registrystore.SearchCandidate
	cos       float64
	base      float64
	score     float64
}

// Search ranks the caller's visible memories against query. limit is clamped to [1,50].
func (r *Ranker) Search(ctx context.Context, userID, query string, limit int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &registrystore.ValidationError{Field: "q", Message: "q is required"}
	}
	limit = max(1, min(limit, maxSearchLimit))
	result := &SearchResult{Query: query, Results: []SearchHit{}}

	candidates, err := r.store.SearchCandidates(ctx, userID, query)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return result, nil
	}
	qvec := r.vectorizer.Embed(ctx, query)

	scored := r.score(ctx, qvec, candidates)
	scored, err = r.applyGraphBoost(ctx, scored)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].candidate.Memory.CreatedAt.After(scored[j].candidate.Memory.CreatedAt)
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	for _, s := range scored {
		result.Results = append(result.Results, SearchHit{
			Memory:  s.candidate.Memory,
			Score:   s.score,
			Reasons: Reasons(query, deref(s.candidate.Memory.Title), s.cos, s.candidate.TextRank),
		})
	}
	return result, nil
}

func (r *Ranker) score(ctx context.Context, qvec []float32, candidates []registrystore.SearchCandidate) []*scoredCandidate {
	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Memory.ID
	}
	sims := r.similarities(ctx, qvec, ids)
	out := make([]*scoredCandidate, len(candidates))
	for i, c := range candidates {
		cos := sims[c.Memory.ID]
		base := weightVector*cos + weightLexical*c.TextRank
		out[i] = &scoredCandidate{candidate: c, cos: cos, base: base, score: base}
	}
	return out
}

// applyGraphBoost takes the top seeds by base score and adds weightGraph times
// the strongest edge linking each candidate to a seed other than itself.
func (r *Ranker) applyGraphBoost(ctx context.Context, scored []*scoredCandidate) ([]*scoredCandidate, error) {
	if r.graphSeeds <= 0 {
		return scored, nil
	}
	bySeed := make([]*scoredCandidate, len(scored))
	copy(bySeed, scored)
	sort.SliceStable(bySeed, func(i, j int) bool { return bySeed[i].base > bySeed[j].base })

	seeds := map[uuid.UUID]bool{}
	seedIDs := make([]uuid.UUID, 0, r.graphSeeds)
	for _, s := range bySeed {
		if len(seedIDs) == r.graphSeeds || s.base <= 0 {
			break
		}
		seeds[s.candidate.Memory.ID] = true
		seedIDs = append(seedIDs, s.candidate.Memory.ID)
	}
	if len(seedIDs) == 0 {
		return scored, nil
	}

	edges, err := r.store.EdgesTouching(ctx, seedIDs)
	if err != nil {
		return nil, err
	}
	boost := map[uuid.UUID]float64{}
	link := func(from, to uuid.UUID, strength float64) {
		if seeds[from] && from != to && strength > boost[to] {
			boost[to] = strength
		}
	}
	for _, e := range edges {
		link(e.AID, e.BID, e.Strength)
		link(e.BID, e.AID, e.Strength)
	}
	for _, s := range scored {
		s.score = s.base + weightGraph*boost[s.candidate.Memory.ID]
	}
	return scored, nil
}

// Suggestions returns the visible memories nearest to memoryID's embedding.
func (r *Ranker) Suggestions(ctx context.Context, userID string, memoryID uuid.UUID, limit int) ([]registrystore.MemoryRef, error) {
	emb, err := r.store.MemoryEmbedding(ctx, userID, memoryID)
	if err != nil {
		return nil, err
	}
	if len(emb) == 0 || IsZero(emb) {
		return []registrystore.MemoryRef{}, nil
	}
	candidates, err := r.store.SearchCandidates(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	others := make([]registrystore.SearchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Memory.ID != memoryID {
			others = append(others, c)
		}
	}
	ids := make([]uuid.UUID, len(others))
	for i, c := range others {
		ids[i] = c.Memory.ID
	}
	sims := r.similarities(ctx, emb, ids)

	// Only memories with a stored vector are suggested.
	near := others[:0]
	for _, c := range others {
		if _, ok := sims[c.Memory.ID]; ok {
			near = append(near, c)
		}
	}
	sort.SliceStable(near, func(i, j int) bool {
		return sims[near[i].Memory.ID] > sims[near[j].Memory.ID]
	})
	refs := make([]registrystore.MemoryRef, 0, min(limit, len(near)))
	for _, c := range near {
		if len(refs) == limit {
			break
		}
		refs = append(refs, c.Memory)
	}
	return refs, nil
}

func (r *Ranker) similarities(ctx context.Context, vec []float32, ids []uuid.UUID) map[uuid.UUID]float64 {
	if r.vectors == nil || IsZero(vec) {
		return map[uuid.UUID]float64{}
	}
	sims, err := r.vectors.Similarities(ctx, vec, ids)
	if err != nil {
		log.Warn("Vector similarity failed; scoring lexically", "vector", r.vectors.Name(), "err", err)
		security.RecordDegraded("vector")
		return map[uuid.UUID]float64{}
	}
	return sims
}

// Reasons explains a match. Title checks are case-insensitive and term
// matches list at most three shared words in sorted order.
func Reasons(query, title string, cos, lexical float64) []string {
	var reasons []string
	q := strings.ToLower(query)
	t := strings.ToLower(title)
	if strings.Contains(t, q) {
		reasons = append(reasons, fmt.Sprintf("exact match: '%s'", query))
	} else {
		titleTerms := map[string]bool{}
		for _, w := range strings.Fields(t) {
			titleTerms[w] = true
		}
		shared := map[string]bool{}
		for _, w := range strings.Fields(q) {
			if titleTerms[w] {
				shared[w] = true
			}
		}
		terms := make([]string, 0, len(shared))
		for w := range shared {
			terms = append(terms, w)
		}
		sort.Strings(terms)
		for i, w := range terms {
			if i == 3 {
				break
			}
			reasons = append(reasons, fmt.Sprintf("term match: '%s'", w))
		}
	}

	switch {
	case cos > 0.7:
		reasons = append(reasons, "strong semantic similarity")
	case cos > 0.5:
		reasons = append(reasons, "semantic similarity")
	}
	if lexical > 0.1 {
		reasons = append(reasons, "text relevance")
	}
	if len(reasons) == 0 {
		if cos > 0.3 {
			return []string{"related content"}
		}
		return []string{"potential match"}
	}
	return reasons
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
