package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"
)

// PutResult describes an object written to the artifact store.
type PutResult struct {
	StorageKey string
	Size       int64
	SHA256     string
}

// TooLargeError is returned by Put when the payload exceeds maxSize.
type TooLargeError struct {
	MaxSize int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("file exceeds maximum size of %d bytes", e.MaxSize)
}

// ErrPresignUnsupported is returned by PresignGet when the store has no
// externally reachable URLs.
var ErrPresignUnsupported = errors.New("artifact store cannot presign URLs")

// ArtifactStore holds uploaded artifact bytes.
type ArtifactStore interface {
	// Put streams data under key, rejecting payloads larger than maxSize.
	// The returned SHA256 is the hex digest of the stored bytes.
	Put(ctx context.Context, key string, data io.Reader, maxSize int64, contentType string) (*PutResult, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited download URL.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (*url.URL, error)
}

// Loader creates an ArtifactStore from config.
type Loader func(ctx context.Context) (ArtifactStore, error)

// Plugin represents an artifact store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an artifact store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered artifact store plugin names.
func Names() []string {
	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, p.Name)
	}
	return names
}

// Select returns the loader for the named artifact store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown artifact store %q; valid: %v", name, Names())
}
