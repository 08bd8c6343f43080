package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/chirino/weave-service/internal/config"
	registryembed "github.com/chirino/weave-service/internal/registry/embed"
)

const modelName = "local-hashed-terms"

func init() {
	registryembed.Register(registryembed.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (registryembed.Embedder, error) {
			dim := 1536
			if cfg := config.FromContext(ctx); cfg != nil && cfg.EmbeddingDimension > 0 {
				dim = cfg.EmbeddingDimension
			}
			return &LocalEmbedder{dim: dim}, nil
		},
	})
}

// LocalEmbedder is a deterministic bag-of-terms embedder. Each lowercased term
// and each adjacent term pair is hashed into a bucket; the result is L2-normalised,
// so cosine similarity tracks shared vocabulary. It needs no network access.
type LocalEmbedder struct {
	dim int
}

// New returns a LocalEmbedder producing vectors of the given dimension.
func New(dim int) *LocalEmbedder {
	return &LocalEmbedder{dim: dim}
}

func (e *LocalEmbedder) ModelName() string { return modelName }
func (e *LocalEmbedder) Dimension() int    { return e.dim }

func (e *LocalEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		results[i] = e.embedOne(text)
	}
	return results, nil
}

func (e *LocalEmbedder) embedOne(text string) []float32 {
	vector := make([]float32, e.dim)
	terms := tokenize(text)
	for i, term := range terms {
		vector[e.bucket(term)] += 1
		if i > 0 {
			vector[e.bucket(terms[i-1]+" "+term)] += 0.5
		}
	}
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vector
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= inv
	}
	return vector
}

func (e *LocalEmbedder) bucket(term string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(term))
	return int(h.Sum64() % uint64(e.dim))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsNumber(r))
	})
}

var _ registryembed.Embedder = (*LocalEmbedder)(nil)
