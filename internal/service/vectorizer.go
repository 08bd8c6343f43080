package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	registryembed "github.com/chirino/weave-service/internal/registry/embed"
	"github.com/chirino/weave-service/internal/security"
)

// Vectorizer turns text into a vector of a fixed dimension. It never fails:
// when the embedder is unavailable the zero vector is returned, which scores
// zero cosine similarity against everything.
type Vectorizer struct {
	embedder  registryembed.Embedder
	dimension int
}

func NewVectorizer(embedder registryembed.Embedder, dimension int) *Vectorizer {
	return &Vectorizer{embedder: embedder, dimension: dimension}
}

func (v *Vectorizer) Dimension() int { return v.dimension }

func (v *Vectorizer) ModelName() string {
	if v.embedder == nil {
		return "none"
	}
	return v.embedder.ModelName()
}

func (v *Vectorizer) Embed(ctx context.Context, text string) []float32 {
	vec, err := v.embed(ctx, text)
	if err == nil {
		return vec
	}
	if !errors.Is(err, registryembed.ErrDisabled) {
		log.Warn("Embedding failed; using zero vector", "model", v.ModelName(), "err", err)
		security.RecordDegraded("embedder")
	}
	return make([]float32, v.dimension)
}

func (v *Vectorizer) embed(ctx context.Context, text string) ([]float32, error) {
	if v.embedder == nil {
		return nil, registryembed.ErrDisabled
	}
	out, err := v.embedder.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) != 1 || len(out[0]) != v.dimension {
		return nil, fmt.Errorf("embedder returned %d vectors of unexpected shape (want dimension %d)", len(out), v.dimension)
	}
	return out[0], nil
}

// IsZero reports whether every component of vec is zero.
func IsZero(vec []float32) bool {
	for _, x := range vec {
		if x != 0 {
			return false
		}
	}
	return true
}
