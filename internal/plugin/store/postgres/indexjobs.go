package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// documentLayers is how many recent TEXT/REFLECTION layers feed the search document.
const documentLayers = 5

func enqueueIndexJob(tx *gorm.DB, memoryID uuid.UUID) error {
	job := model.IndexJob{ID: uuid.New(), MemoryID: memoryID, Kind: model.JobIndexMemory, RetryAt: time.Now()}
	if err := tx.Create(&job).Error; err != nil {
		return fmt.Errorf("failed to enqueue index job: %w", err)
	}
	return nil
}

func (s *PostgresStore) EnqueueIndexJob(ctx context.Context, memoryID uuid.UUID) error {
	return enqueueIndexJob(s.db.WithContext(ctx), memoryID)
}

func (s *PostgresStore) RunIndexJob(ctx context.Context, handle registrystore.IndexJobHandler) (*model.IndexJob, error) {
	var claimed *model.IndexJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var jobs []model.IndexJob
		err := tx.Raw(`
			SELECT * FROM index_jobs
			WHERE dead_lettered_at IS NULL AND retry_at <= now()
			ORDER BY retry_at, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED`).Scan(&jobs).Error
		if err != nil {
			return fmt.Errorf("failed to claim index job: %w", err)
		}
		if len(jobs) == 0 {
			return nil
		}
		claimed = &jobs[0]

		doc, found, err := buildSearchDocument(tx, claimed.MemoryID)
		if err != nil {
			return err
		}
		if found {
			embedding, err := handle(ctx, *claimed, doc)
			if err != nil {
				return err
			}
			var vec interface{}
			if !isZeroVector(embedding) {
				vec = pgvec.NewVector(embedding)
			}
			err = tx.Exec(`
				INSERT INTO memory_index (memory_id, document, tsv, embedding, updated_at)
				VALUES (?, ?, to_tsvector('english', ?), ?, now())
				ON CONFLICT (memory_id) DO UPDATE
				SET document = EXCLUDED.document, tsv = EXCLUDED.tsv,
				    embedding = EXCLUDED.embedding, updated_at = EXCLUDED.updated_at`,
				doc.MemoryID, doc.Text, doc.Text, vec).Error
			if err != nil {
				return fmt.Errorf("failed to write memory index: %w", err)
			}
		}
		if err := tx.Where("id = ?", claimed.ID).Delete(&model.IndexJob{}).Error; err != nil {
			return fmt.Errorf("failed to delete index job: %w", err)
		}
		return nil
	})
	return claimed, err
}

func (s *PostgresStore) FailIndexJob(ctx context.Context, jobID uuid.UUID, errMsg string, retryAt time.Time, deadLetter bool) error {
	updates := map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"retry_at":   retryAt,
		"last_error": errMsg,
	}
	if deadLetter {
		updates["dead_lettered_at"] = time.Now()
	}
	return s.db.WithContext(ctx).Model(&model.IndexJob{}).Where("id = ?", jobID).Updates(updates).Error
}

func (s *PostgresStore) IndexQueueStats(ctx context.Context) (*registrystore.IndexQueueStats, error) {
	var stats registrystore.IndexQueueStats
	err := s.db.WithContext(ctx).Raw(`
		SELECT
			COUNT(*) FILTER (WHERE dead_lettered_at IS NULL) AS pending,
			COUNT(*) FILTER (WHERE dead_lettered_at IS NOT NULL) AS dead_lettered
		FROM index_jobs`).Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read index queue stats: %w", err)
	}
	return &stats, nil
}

// buildSearchDocument concatenates the title, the locked narrative and the text
// and captions of the newest layers. found is false when the memory is gone.
func buildSearchDocument(tx *gorm.DB, memoryID uuid.UUID) (registrystore.SearchDocument, bool, error) {
	doc := registrystore.SearchDocument{MemoryID: memoryID}
	var heads []struct {
		Title     *string
		Narrative *string
	}
	err := tx.Raw(`
		SELECT m.title, cv.narrative
		FROM memories m
		LEFT JOIN core_versions cv
			ON cv.memory_id = m.id AND cv.locked AND cv.version = m.current_core_version
		WHERE m.id = ?`, memoryID).Scan(&heads).Error
	if err != nil {
		return doc, false, fmt.Errorf("failed to load memory for indexing: %w", err)
	}
	if len(heads) == 0 {
		return doc, false, nil
	}

	var layers []struct {
		TextContent *string
		Caption     *string
	}
	err = tx.Raw(`
		SELECT text_content, meta->>'caption' AS caption
		FROM layers
		WHERE memory_id = ? AND kind IN ('TEXT', 'REFLECTION')
		ORDER BY created_at DESC
		LIMIT ?`, memoryID, documentLayers).Scan(&layers).Error
	if err != nil {
		return doc, false, fmt.Errorf("failed to load layers for indexing: %w", err)
	}

	parts := []string{deref(heads[0].Title), deref(heads[0].Narrative)}
	for _, l := range layers {
		parts = append(parts, deref(l.TextContent), deref(l.Caption))
	}
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	doc.Text = strings.Join(nonEmpty, " ")
	return doc, true, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isZeroVector reports whether v carries no direction. Such embeddings are
// stored as NULL.
func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
