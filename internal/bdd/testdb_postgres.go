package bdd

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/weave-service/internal/testutil/cucumber"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresTestDB implements cucumber.TestDB for Postgres.
type PostgresTestDB struct {
	DBURL string
}

var _ cucumber.TestDB = (*PostgresTestDB)(nil)

func (p *PostgresTestDB) conn(ctx context.Context) (*pgx.Conn, error) {
	return pgx.Connect(ctx, p.DBURL)
}

func (p *PostgresTestDB) ClearAll(ctx context.Context) error {
	conn, err := p.conn(ctx)
	if err != nil {
		return fmt.Errorf("cleanup: failed to connect: %w", err)
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, `TRUNCATE follows, public_slugs, invites, memory_index, index_jobs,
		idempotency_keys, participants, edges, layers, artifacts, core_versions, memories, app_users CASCADE`)
	if err != nil {
		return fmt.Errorf("cleanup: truncate: %w", err)
	}
	return nil
}

func (p *PostgresTestDB) ExecSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	conn, err := p.conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("SQL query failed: %w", err)
	}
	defer rows.Close()

	var result []map[string]interface{}
	fieldDescs := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{}, len(values))
		for i, fd := range fieldDescs {
			switch v := values[i].(type) {
			case time.Time:
				row[fd.Name] = v.Format(time.RFC3339Nano)
			case [16]byte:
				row[fd.Name] = uuid.UUID(v).String()
			default:
				row[fd.Name] = v
			}
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
