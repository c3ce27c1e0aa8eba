package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/observability"
)

// AveragesRefresher is implemented by the service layer: recompute the
// averages from the store and replace the cached copy. Used by Warmer to
// avoid a circular dependency on the service package.
type AveragesRefresher interface {
	RefreshVisitorAverages(ctx context.Context) (models.VisitorAverages, error)
}

// Warmer keeps the averages cache populated.
type Warmer struct {
	refresher AveragesRefresher
	logger    *zap.Logger
}

// NewWarmer creates a Warmer that uses the given refresher and logger.
func NewWarmer(refresher AveragesRefresher, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{refresher: refresher, logger: logger}
}

// Warm recomputes the averages once.
func (w *Warmer) Warm(ctx context.Context) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache")

	avg, err := w.refresher.RefreshVisitorAverages(ctx)
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if err != nil {
		observability.CacheWarmingErrorsTotal.Inc()
		w.logger.Warn("cache warming failed", zap.Error(err), zap.Float64("duration_seconds", duration))
		return fmt.Errorf("cache warming: %w", err)
	}
	w.logger.Info("cache warming complete",
		zap.String("status", avg.Status),
		zap.Int("patterns", len(avg.Averages)),
		zap.Float64("duration_seconds", duration),
	)
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, interval time.Duration) error {
	if err := w.Warm(ctx); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
