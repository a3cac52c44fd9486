package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"calling-center/internal/calls"
	"calling-center/pkg/utils"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS call_archive (
	id              UUID PRIMARY KEY,
	session_id      TEXT NOT NULL UNIQUE,
	carrier_call_id TEXT NOT NULL DEFAULT '',
	to_number       TEXT NOT NULL,
	status          TEXT NOT NULL,
	carrier_status  TEXT NOT NULL DEFAULT '',
	transcript      JSONB NOT NULL DEFAULT '[]'::jsonb,
	started_at      TIMESTAMPTZ NOT NULL,
	ended_at        TIMESTAMPTZ NOT NULL,
	archived_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS call_archive_archived_at_idx ON call_archive (archived_at DESC);
`

// PostgresRepo stores archived sessions in the call_archive table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// EnsureSchema creates the archive table when missing. It is safe to run on every start.
func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return errors.New("archive: db is nil")
	}
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("archive: ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return fmt.Errorf("archive: encode transcript: %w", err)
	}

	const q = `
INSERT INTO call_archive (
	id, session_id, carrier_call_id, to_number, status, carrier_status,
	transcript, started_at, ended_at, archived_at
) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10)
ON CONFLICT (session_id) DO NOTHING
`
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, q,
			rec.ID,
			rec.SessionID,
			rec.CarrierCallID,
			rec.To,
			string(rec.Status),
			rec.CarrierStatus,
			string(transcript),
			rec.StartedAt,
			rec.EndedAt,
			rec.ArchivedAt,
		)
		return err
	})
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Record, error) {
	if r.db == nil {
		return nil, errors.New("archive: db is nil")
	}
	const q = `
SELECT id, session_id, carrier_call_id, to_number, status, carrier_status,
       transcript, started_at, ended_at, archived_at
FROM call_archive
ORDER BY archived_at DESC
LIMIT $1
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec        Record
			status     string
			transcript []byte
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.SessionID,
			&rec.CarrierCallID,
			&rec.To,
			&status,
			&rec.CarrierStatus,
			&transcript,
			&rec.StartedAt,
			&rec.EndedAt,
			&rec.ArchivedAt,
		); err != nil {
			return nil, err
		}
		rec.Status = calls.Status(status)
		if err := json.Unmarshal(transcript, &rec.Transcript); err != nil {
			return nil, fmt.Errorf("archive: decode transcript for %s: %w", rec.SessionID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
