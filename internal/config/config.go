package config

import (
	"context"
	"os"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the weave service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode the X-Debug-User header is accepted as the caller identity.
	Mode string

	// Database
	DBURL          string
	DatastoreType  string // "postgres"
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Run datastore and vector migrations on startup.
	MigrateAtStart bool

	// Embedding
	EmbedType          string // "local", "openai" or "none"
	EmbeddingDimension int
	OpenAIAPIKey       string
	OpenAIModelName    string
	OpenAIBaseURL      string
	// OpenAIBreakerFailures consecutive failures open the embedding circuit breaker.
	OpenAIBreakerFailures int
	OpenAIBreakerTimeout  time.Duration

	// Vector store type
	VectorType string // "pgvector" or "qdrant"

	// Qdrant
	QdrantHost           string
	QdrantPort           int
	QdrantCollectionName string
	QdrantAPIKey         string
	QdrantUseTLS         bool
	QdrantStartupTimeout time.Duration

	// Artifacts
	AttachType            string // "s3" or "" (uploads disabled)
	ArtifactMaxSize       int64
	S3Bucket              string
	S3Prefix              string
	S3ExternalEndpoint    string
	S3UsePathStyle        bool
	ArtifactDefaultURLTTL time.Duration

	// Rate limiting
	RateLimitType      string // "memory", "redis" or "none"
	RateLimitPerMinute int
	RedisURL           string

	// Indexing pipeline
	IndexWorkerEnabled  bool
	IndexPollInterval   time.Duration
	IndexRetryBaseDelay time.Duration
	IndexRetryMaxDelay  time.Duration
	IndexMaxAttempts    int

	// Purge of soft-deleted memories. A zero interval disables the purge loop.
	PurgeInterval   time.Duration
	PurgeRetention  time.Duration
	PurgeBatchSize  int
	PurgeBatchDelay time.Duration

	// Search
	SearchGraphSeeds int

	// OIDC
	OIDCIssuer       string
	OIDCDiscoveryURL string // Internal URL for OIDC discovery (when issuer URL is not reachable)

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port was explicitly provided.
	// When false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	ManagementAccessLog       bool
	CORSEnabled               bool
	CORSOrigins               string

	// Body size limit (bytes)
	MaxBodySize int64

	// Temporary file directory. Empty uses platform default temp directory.
	TempDir string

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                  ModeProd,
		DatastoreType:         "postgres",
		DBMaxOpenConns:        25,
		DBMaxIdleConns:        5,
		MigrateAtStart:        true,
		EmbedType:             "local",
		EmbeddingDimension:    1536,
		OpenAIModelName:       "text-embedding-3-small",
		OpenAIBaseURL:         "https://api.openai.com/v1",
		OpenAIBreakerFailures: 5,
		OpenAIBreakerTimeout:  30 * time.Second,
		VectorType:            "pgvector",
		QdrantHost:            "localhost",
		QdrantPort:            6334,
		QdrantCollectionName:  "weave-memories",
		QdrantStartupTimeout:  30 * time.Second,
		AttachType:            "s3",
		ArtifactMaxSize:       50 * 1024 * 1024,
		ArtifactDefaultURLTTL: 24 * time.Hour,
		RateLimitType:         "memory",
		RateLimitPerMinute:    120,
		IndexWorkerEnabled:    true,
		IndexPollInterval:     2 * time.Second,
		IndexRetryBaseDelay:   5 * time.Second,
		IndexRetryMaxDelay:    10 * time.Minute,
		IndexMaxAttempts:      10,
		PurgeInterval:         time.Hour,
		PurgeRetention:        30 * 24 * time.Hour,
		PurgeBatchSize:        100,
		SearchGraphSeeds:      5,
		MetricsLabels:         "service=weave-service",
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		MaxBodySize:  2 * 1024 * 1024,
		DrainTimeout: 30,
	}
}

// ResolvedTempDir returns the configured temp directory or the platform default.
func (c *Config) ResolvedTempDir() string {
	if c == nil {
		return os.TempDir()
	}
	if dir := strings.TrimSpace(c.TempDir); dir != "" {
		return dir
	}
	return os.TempDir()
}
