package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// VectorStore scores indexed memories against a query vector. It knows nothing
// about visibility, so callers pass in only ids the MemoryStore let them see.
type VectorStore interface {
	// Similarities scores the given memories; memories without a vector are omitted.
	Similarities(ctx context.Context, embedding []float32, memoryIDs []uuid.UUID) (map[uuid.UUID]float64, error)
	// Upsert stores the vector of a memory after it has been committed to the index.
	Upsert(ctx context.Context, memoryID uuid.UUID, embedding []float32, modelName string) error
	// Delete removes a memory's vector.
	Delete(ctx context.Context, memoryID uuid.UUID) error
	// Name returns the plugin name (e.g. "qdrant", "pgvector").
	Name() string
}

// Loader creates a VectorStore from config.
type Loader func(ctx context.Context) (VectorStore, error)

// Plugin represents a vector store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a vector store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered vector store plugin names.
func Names() []string {
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, p.Name)
	}
	return names
}

// Select returns the loader for the named vector store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown vector store %q; valid: %v", name, Names())
}
