package pgvector

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/weave-service/internal/config"
	registrymigrate "github.com/chirino/weave-service/internal/registry/migrate"
	registryvector "github.com/chirino/weave-service/internal/registry/vector"
	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

//go:embed db/pgvector-schema.sql
var pgvectorSchemaSQL string

// pgvectorMigrator types the embedding column once the base schema exists.
type pgvectorMigrator struct{}

func (m *pgvectorMigrator) Name() string { return "pgvector" }
func (m *pgvectorMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.MigrateAtStart || cfg.VectorType != "pgvector" || cfg.DBURL == "" || (cfg.DatastoreType != "" && cfg.DatastoreType != "postgres") {
		return nil
	}
	if cfg.EmbeddingDimension <= 0 {
		return fmt.Errorf("pgvector migrate: embedding dimension must be positive")
	}
	log.Info("Running migration", "name", m.Name(), "dimension", cfg.EmbeddingDimension)
	db, err := openGormDB(cfg.DBURL)
	if err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return db.WithContext(ctx).Exec(schemaFor(cfg.EmbeddingDimension)).Error
}

func schemaFor(dimension int) string {
	return strings.ReplaceAll(pgvectorSchemaSQL, "{{DIMENSION}}", strconv.Itoa(dimension))
}

func init() {
	registryvector.Register(registryvector.Plugin{
		Name:   "pgvector",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 200, Migrator: &pgvectorMigrator{}})
}

func load(ctx context.Context) (registryvector.VectorStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, fmt.Errorf("pgvector: missing config in context")
	}
	db, err := openGormDB(cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("pgvector: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection.
func New(db *gorm.DB) *PgvectorStore {
	return &PgvectorStore{db: db}
}

// PgvectorStore reads the embeddings the datastore writes into memory_index
// inside the indexing transaction, so Upsert has nothing left to do.
type PgvectorStore struct {
	db *gorm.DB
}

func (s *PgvectorStore) Name() string { return "pgvector" }

type scored struct {
	MemoryID uuid.UUID
	Score    float64
}

func (s *PgvectorStore) Similarities(ctx context.Context, embedding []float32, memoryIDs []uuid.UUID) (map[uuid.UUID]float64, error) {
	out := make(map[uuid.UUID]float64, len(memoryIDs))
	if len(memoryIDs) == 0 || isZero(embedding) {
		return out, nil
	}
	var rows []scored
	err := s.db.WithContext(ctx).Raw(`
		SELECT memory_id, 1 - (embedding <=> ?::vector) AS score
		FROM memory_index
		WHERE memory_id IN ? AND embedding IS NOT NULL AND vector_norm(embedding) > 0`,
		pgvec.NewVector(embedding), memoryIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector similarities: %w", err)
	}
	for _, r := range rows {
		out[r.MemoryID] = r.Score
	}
	return out, nil
}

func (s *PgvectorStore) Upsert(context.Context, uuid.UUID, []float32, string) error {
	return nil
}

func (s *PgvectorStore) Delete(ctx context.Context, memoryID uuid.UUID) error {
	return s.db.WithContext(ctx).Exec(
		"UPDATE memory_index SET embedding = NULL WHERE memory_id = ?", memoryID,
	).Error
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

var _ registryvector.VectorStore = (*PgvectorStore)(nil)
