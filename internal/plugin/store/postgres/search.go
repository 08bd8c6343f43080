package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/chirino/weave-service/internal/model"
	registrystore "github.com/chirino/weave-service/internal/registry/store"
	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
)

// SearchCandidates loads every indexed, visible, active memory together with
// its lexical rank. Partial term overlap earns partial rank; memories sharing
// no term rank 0 and are still returned.
func (s *PostgresStore) SearchCandidates(ctx context.Context, userID string, query string) ([]registrystore.SearchCandidate, error) {
	rank := "0"
	args := []interface{}{}
	if tsq := toAnyTsQuery(query); tsq != "" {
		rank = "COALESCE(ts_rank_cd(mi.tsv, to_tsquery('english', ?)), 0)"
		args = append(args, tsq)
	}
	args = append(args, userID, userID)
	var rows []struct {
		model.Memory
		TextRank float64 `gorm:"column:text_rank"`
	}
	err := s.db.WithContext(ctx).Raw(`
		SELECT m.*, `+rank+` AS text_rank
		FROM memories m
		JOIN memory_index mi ON mi.memory_id = m.id
		WHERE m.status = 'ACTIVE' AND `+visibleSQL,
		args...).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load search candidates: %w", err)
	}
	out := make([]registrystore.SearchCandidate, len(rows))
	for i := range rows {
		out[i] = registrystore.SearchCandidate{Memory: *memoryRef(&rows[i].Memory), TextRank: rows[i].TextRank}
	}
	return out, nil
}

func (s *PostgresStore) MemoryEmbedding(ctx context.Context, userID string, memoryID uuid.UUID) ([]float32, error) {
	db := s.db.WithContext(ctx)
	if _, _, err := loadAccess(db, userID, memoryID, false); err != nil {
		return nil, err
	}
	var rows []struct {
		Embedding pgvec.Vector
	}
	err := db.Raw(`SELECT embedding FROM memory_index WHERE memory_id = ? AND embedding IS NOT NULL`, memoryID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].Embedding.Slice(), nil
}

// toAnyTsQuery converts free text into an OR tsquery, e.g. "cedar | point".
func toAnyTsQuery(query string) string {
	words := strings.Fields(query)
	parts := make([]string, 0, len(words))
	for _, word := range words {
		if escaped := escapeTsQueryWord(word); escaped != "" {
			parts = append(parts, "'"+escaped+"'")
		}
	}
	return strings.Join(parts, " | ")
}

// escapeTsQueryWord removes characters that have special meaning in tsquery syntax.
func escapeTsQueryWord(word string) string {
	var b strings.Builder
	for _, r := range word {
		switch r {
		case '&', '|', '!', '(', ')', ':', '\'', '\\', '*', '<', '>':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
