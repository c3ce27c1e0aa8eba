package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Pipeline is the refresh job: import new CSV files, retrain the model, drop
// the cached averages, then rebuild them. Every step after the import is
// optional.
type Pipeline struct {
	Importer   *Importer
	Dir        string
	Pattern    string
	Retrain    Job
	Invalidate Job
	Refresh    Job
	Logger     *zap.Logger
}

// Run executes the steps in order. A partially failed import still
// retrains on what was loaded; later step failures are joined.
func (p Pipeline) Run(ctx context.Context) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var errs []error
	if p.Importer != nil && p.Dir != "" {
		rep, err := p.Importer.ImportDir(ctx, p.Dir, p.Pattern)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			errs = append(errs, err)
		}
		logger.Info("refresh import finished",
			zap.String("dir", p.Dir),
			zap.Int("files", rep.Files),
			zap.Int("rowsUpserted", rep.RowsUpserted),
		)
	}
	if p.Retrain != nil {
		if err := p.Retrain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("retrain: %w", err))
		}
	}
	if p.Invalidate != nil {
		if err := p.Invalidate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("invalidate averages: %w", err))
		}
	}
	if p.Refresh != nil {
		if err := p.Refresh(ctx); err != nil {
			errs = append(errs, fmt.Errorf("refresh averages: %w", err))
		}
	}
	return errors.Join(errs...)
}
