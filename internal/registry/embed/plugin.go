package embed

import (
	"context"
	"errors"
	"fmt"
)

// ErrDisabled is returned by embedders that are intentionally switched off.
// Callers fall back to lexical-only search without reporting degradation.
var ErrDisabled = errors.New("embedding is disabled")

// Embedder turns documents into fixed-dimension vectors.
type Embedder interface {
	// EmbedTexts returns one vector per input text, in input order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
	Dimension() int
}

// Loader creates an Embedder from the config in ctx.
type Loader func(ctx context.Context) (Embedder, error)

// Plugin is a named embedder implementation.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an embedder plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names lists the registered embedders.
func Names() []string {
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, p.Name)
	}
	return names
}

// Select returns the loader for the named embedder.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown embedder %q; valid: %v", name, Names())
}
