package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Decision is the outcome of a single rate-limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter enforces a per-key request budget. Each instance owns its state.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Name() string
}

// Loader creates a Limiter from config.
type Loader func(ctx context.Context) (Limiter, error)

// Plugin represents a rate limiter plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a rate limiter plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered rate limiter plugin names.
func Names() []string {
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, p.Name)
	}
	return names
}

// Select returns the loader for the named rate limiter plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown rate limiter %q; valid: %v", name, Names())
}
