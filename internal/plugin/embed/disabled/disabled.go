package disabled

import (
	"context"

	"github.com/chirino/weave-service/internal/config"
	"github.com/chirino/weave-service/internal/registry/embed"
)

func init() {
	embed.Register(embed.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (embed.Embedder, error) {
			dim := 0
			if cfg := config.FromContext(ctx); cfg != nil {
				dim = cfg.EmbeddingDimension
			}
			return &disabledEmbedder{dim: dim}, nil
		},
	})
}

// disabledEmbedder keeps the configured dimension so callers can build zero vectors.
type disabledEmbedder struct {
	dim int
}

func (d *disabledEmbedder) EmbedTexts(_ context.Context, _ []string) ([][]float32, error) {
	return nil, embed.ErrDisabled
}

func (d *disabledEmbedder) ModelName() string { return "none" }
func (d *disabledEmbedder) Dimension() int    { return d.dim }

var _ embed.Embedder = (*disabledEmbedder)(nil)
