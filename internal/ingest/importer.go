package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/observability"
	"github.com/kjstillabower/honmoku-catch-service/internal/store"
)

// DefaultPattern matches the scraper's monthly output files.
const DefaultPattern = "fishing_results_*.csv"

// RecordStore is the part of the store an import writes to.
type RecordStore interface {
	UpsertRecords(ctx context.Context, records []models.CatchRecord) (int, error)
	RecordImport(ctx context.Context, run store.ImportRun) (int64, error)
}

// Report summarises one import.
type Report struct {
	Source       string     `json:"source"`
	Files        int        `json:"files"`
	RowsRead     int        `json:"rows_read"`
	RowsUpserted int        `json:"rows_upserted"`
	RowsSkipped  int        `json:"rows_skipped"`
	Skipped      []RowError `json:"skipped,omitempty"`
}

func (r *Report) add(o Report) {
	r.Files += o.Files
	r.RowsRead += o.RowsRead
	r.RowsUpserted += o.RowsUpserted
	r.RowsSkipped += o.RowsSkipped
	r.Skipped = append(r.Skipped, o.Skipped...)
}

// Importer parses CSV files and upserts them, recording each run.
type Importer struct {
	store  RecordStore
	logger *zap.Logger
	now    func() time.Time
}

// NewImporter returns an importer writing to s.
func NewImporter(s RecordStore, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: s, logger: logger, now: time.Now}
}

// ImportReader imports one CSV stream labelled source.
func (im *Importer) ImportReader(ctx context.Context, source string, r io.Reader) (Report, error) {
	started := im.now()
	rep := Report{Source: source, Files: 1}

	parsed, err := ParseCSV(r)
	if err == nil {
		rep.RowsRead = parsed.Rows
		rep.RowsSkipped = len(parsed.Skipped)
		rep.Skipped = parsed.Skipped
		rep.RowsUpserted, err = im.store.UpsertRecords(ctx, parsed.Records)
	}

	run := store.ImportRun{
		Source:       source,
		StartedAt:    started,
		CompletedAt:  im.now(),
		RowsRead:     rep.RowsRead,
		RowsUpserted: rep.RowsUpserted,
		RowsSkipped:  rep.RowsSkipped,
	}
	if err != nil {
		run.Error = err.Error()
	}
	if _, recErr := im.store.RecordImport(ctx, run); recErr != nil {
		im.logger.Warn("failed to record import run", zap.String("source", source), zap.Error(recErr))
	}
	if err != nil {
		im.logger.Error("import failed", zap.String("source", source), zap.Error(err))
		return rep, fmt.Errorf("import %s: %w", source, err)
	}

	observability.ImportRowsTotal.WithLabelValues("upserted").Add(float64(rep.RowsUpserted))
	observability.ImportRowsTotal.WithLabelValues("skipped").Add(float64(rep.RowsSkipped))
	for _, s := range rep.Skipped {
		im.logger.Debug("row skipped", zap.String("source", source), zap.Int("line", s.Line), zap.String("reason", s.Reason))
	}
	im.logger.Info("import completed",
		zap.String("source", source),
		zap.Int("rowsRead", rep.RowsRead),
		zap.Int("rowsUpserted", rep.RowsUpserted),
		zap.Int("rowsSkipped", rep.RowsSkipped),
	)
	return rep, nil
}

// ImportFile imports the CSV at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{Source: path}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return im.ImportReader(ctx, path, f)
}

// ImportDir imports every file in dir matching pattern, in name order. A
// failing file is logged and the rest are still imported; the first error
// is returned with the combined report.
func (im *Importer) ImportDir(ctx context.Context, dir, pattern string) (Report, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return Report{Source: dir}, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(paths)

	total := Report{Source: dir}
	var firstErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rep, err := im.ImportFile(ctx, p)
		total.add(rep)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return total, firstErr
}
