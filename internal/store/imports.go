package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ImportRun records one CSV import.
type ImportRun struct {
	ID           int64     `json:"id"`
	Source       string    `json:"source"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	RowsRead     int       `json:"rows_read"`
	RowsUpserted int       `json:"rows_upserted"`
	RowsSkipped  int       `json:"rows_skipped"`
	Error        string    `json:"error,omitempty"`
}

// RecordImport stores a finished import run.
func (s *Store) RecordImport(ctx context.Context, run ImportRun) (int64, error) {
	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO import_runs (source, started_at, completed_at, rows_read, rows_upserted, rows_skipped, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.Source, run.StartedAt.UTC(), run.CompletedAt.UTC(), run.RowsRead, run.RowsUpserted, run.RowsSkipped, errText)
	if err != nil {
		return 0, fmt.Errorf("record import: %w", err)
	}
	return res.LastInsertId()
}

// RecentImports returns the latest import runs, newest first.
func (s *Store) RecentImports(ctx context.Context, limit int) ([]ImportRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, started_at, completed_at, rows_read, rows_upserted, rows_skipped, error
		FROM import_runs ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()

	var out []ImportRun
	for rows.Next() {
		var (
			run       ImportRun
			completed sql.NullTime
			errText   sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Source, &run.StartedAt, &completed, &run.RowsRead, &run.RowsUpserted, &run.RowsSkipped, &errText); err != nil {
			return nil, err
		}
		run.CompletedAt = completed.Time
		run.Error = errText.String
		out = append(out, run)
	}
	return out, rows.Err()
}
