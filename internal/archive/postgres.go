package archive

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

type PostgresArchiver struct {
	db          *sql.DB
	upsertQuery string
	selectQuery string
}

func NewPostgresArchiver(db *sql.DB, table string) *PostgresArchiver {
	t := pq.QuoteIdentifier(table)
	return &PostgresArchiver{
		db: db,
		upsertQuery: `INSERT INTO ` + t + ` (archive_key, invocation_id, received_at, size_bytes, body)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (archive_key) DO UPDATE
			SET invocation_id = EXCLUDED.invocation_id,
				received_at = EXCLUDED.received_at,
				size_bytes = EXCLUDED.size_bytes,
				body = EXCLUDED.body`,
		selectQuery: `SELECT body FROM ` + t + ` WHERE archive_key = $1`,
	}
}

func (a *PostgresArchiver) Archive(ctx context.Context, rec Record) error {
	_, err := a.db.ExecContext(ctx, a.upsertQuery, rec.Key, rec.InvocationID, rec.ReceivedAt, len(rec.Body), rec.Body)
	if err != nil {
		return fmt.Errorf("failed to archive request %s: %w", rec.Key, err)
	}
	return nil
}

func (a *PostgresArchiver) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	if err := a.db.QueryRowContext(ctx, a.selectQuery, key).Scan(&body); err != nil {
		return nil, fmt.Errorf("failed to load archived request %s: %w", key, err)
	}
	return body, nil
}
