package serve

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/weave-service/internal/config"
	storemetrics "github.com/chirino/weave-service/internal/plugin/store/metrics"
	registryembed "github.com/chirino/weave-service/internal/registry/embed"
	registrymigrate "github.com/chirino/weave-service/internal/registry/migrate"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	registryvector "github.com/chirino/weave-service/internal/registry/vector"
	"github.com/chirino/weave-service/internal/security"
	"github.com/chirino/weave-service/internal/service"
)

// Backends are the storage and indexing dependencies shared by the API server
// and the standalone index worker.
type Backends struct {
	Store      registrystore.MemoryStore
	Vectorizer *service.Vectorizer
	Vectors    registryvector.VectorStore
}

// OpenBackends initialises metrics, runs migrations and loads the configured
// store, embedder and vector store. The embedder falls back to "none" when the
// configured provider cannot be loaded, leaving search lexical-only.
func OpenBackends(ctx context.Context, cfg *config.Config) (*Backends, error) {
	metricsLabels, err := security.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	security.InitMetrics(metricsLabels)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	storeLoader, err := registrystore.Select(cfg.DatastoreType)
	if err != nil {
		return nil, err
	}
	store, err := storeLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	embedder, err := loadEmbedder(ctx, cfg.EmbedType)
	if err != nil {
		log.Warn("Embedder not available; search falls back to lexical ranking", "embedding", cfg.EmbedType, "err", err)
		security.RecordDegraded("embedding")
		if embedder, err = loadEmbedder(ctx, "none"); err != nil {
			return nil, err
		}
	}

	vectorLoader, err := registryvector.Select(cfg.VectorType)
	if err != nil {
		return nil, err
	}
	vectors, err := vectorLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	return &Backends{
		Store:      storemetrics.Wrap(store),
		Vectorizer: service.NewVectorizer(embedder, cfg.EmbeddingDimension),
		Vectors:    vectors,
	}, nil
}

func loadEmbedder(ctx context.Context, name string) (registryembed.Embedder, error) {
	loader, err := registryembed.Select(name)
	if err != nil {
		return nil, err
	}
	return loader(ctx)
}

// NewIndexWorker builds the worker that drains the index queue.
func (b *Backends) NewIndexWorker(cfg *config.Config) *service.IndexWorker {
	return service.NewIndexWorker(b.Store, b.Vectorizer, b.Vectors, cfg)
}
