// Package store persists scraped catch records in SQLite and answers the
// queries behind the historical view, visitor statistics and model training.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

const dateLayout = "2006-01-02"

// Store wraps the SQLite handle.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New wraps an open database. logger may be nil.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// Open opens (creating if needed) the database at path and applies migrations.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure db: %w", err)
		}
	}
	s := New(db, logger)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertRecords inserts records, replacing any existing row for the same
// date, fish and spot. Returns the number of rows written.
func (s *Store) UpsertRecords(ctx context.Context, records []models.CatchRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catch_records (date, weather, water_temp, tide, visitors, fish, catch_count, size, spot, comment, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, fish, spot) DO UPDATE SET
			weather = excluded.weather,
			water_temp = excluded.water_temp,
			tide = excluded.tide,
			visitors = excluded.visitors,
			catch_count = excluded.catch_count,
			size = excluded.size,
			comment = excluded.comment,
			imported_at = excluded.imported_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.Date.Format(dateLayout), r.Weather, nullFloat(r.WaterTemp), r.Tide, nullInt(r.Visitors),
			r.Fish, r.CatchCount, r.Size, r.Spot, r.Comment, now,
		); err != nil {
			return 0, fmt.Errorf("upsert record %d (%s %s): %w", i, r.Date.Format(dateLayout), r.Fish, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(records), nil
}

const recordColumns = `date, weather, water_temp, tide, visitors, fish, catch_count, size, spot, comment`

// QueryRecords returns records matching f, newest day first. A fish of ""
// or "all" matches every species.
func (s *Store) QueryRecords(ctx context.Context, f models.HistoricalFilter) ([]models.CatchRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Fish != "" && !strings.EqualFold(f.Fish, "all") {
		where = append(where, "fish = ?")
		args = append(args, f.Fish)
	}
	if f.Weather != "" {
		where = append(where, "weather = ?")
		args = append(args, f.Weather)
	}
	if f.Tide != "" {
		where = append(where, "tide = ?")
		args = append(args, f.Tide)
	}
	if !f.Start.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.Start.Format(dateLayout))
	}
	if !f.End.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.End.Format(dateLayout))
	}

	q := "SELECT " + recordColumns + " FROM catch_records"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY date DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []models.CatchRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the total number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM catch_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// DailyVisitors returns one row per facility day that has a visitor count,
// oldest first. Every species row of a day repeats the same head count, so
// the first stored row of the day is used.
func (s *Store) DailyVisitors(ctx context.Context) ([]models.DailyVisitors, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, weather, visitors FROM catch_records
		WHERE id IN (
			SELECT MIN(id) FROM catch_records WHERE visitors IS NOT NULL GROUP BY date
		)
		ORDER BY date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query daily visitors: %w", err)
	}
	defer rows.Close()

	var out []models.DailyVisitors
	for rows.Next() {
		var (
			date string
			d    models.DailyVisitors
		)
		if err := rows.Scan(&date, &d.Weather, &d.Visitors); err != nil {
			return nil, err
		}
		if d.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", date, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ActualCatch returns the recorded catch of fish on date, or nil when the
// day has no row for that species.
func (s *Store) ActualCatch(ctx context.Context, date time.Time, fish string) (*int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT catch_count FROM catch_records WHERE date = ? AND fish = ? ORDER BY id ASC LIMIT 1",
		date.Format(dateLayout), fish,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query actual catch: %w", err)
	}
	return &n, nil
}

// TrainingRows returns the records of fish that carry every model input.
func (s *Store) TrainingRows(ctx context.Context, fish string) ([]models.CatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM catch_records WHERE fish = ? AND water_temp IS NOT NULL AND visitors IS NOT NULL ORDER BY date ASC, id ASC",
		fish,
	)
	if err != nil {
		return nil, fmt.Errorf("query training rows: %w", err)
	}
	defer rows.Close()

	var out []models.CatchRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (models.CatchRecord, error) {
	var (
		r        models.CatchRecord
		date     string
		temp     sql.NullFloat64
		visitors sql.NullInt64
	)
	if err := rows.Scan(&date, &r.Weather, &temp, &r.Tide, &visitors, &r.Fish, &r.CatchCount, &r.Size, &r.Spot, &r.Comment); err != nil {
		return r, fmt.Errorf("scan record: %w", err)
	}
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return r, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	r.Date = d
	if temp.Valid {
		v := temp.Float64
		r.WaterTemp = &v
	}
	if visitors.Valid {
		v := int(visitors.Int64)
		r.Visitors = &v
	}
	return r, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
