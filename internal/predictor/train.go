package predictor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/observability"
)

// TrainingSource supplies labelled records for one species.
type TrainingSource interface {
	TrainingRows(ctx context.Context, fish string) ([]models.CatchRecord, error)
}

// TrainFromStore loads the species' history and refits m. It returns the
// model info after training.
func TrainFromStore(ctx context.Context, src TrainingSource, m *LinearModel, fish string, logger *zap.Logger) (models.ModelInfo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	records, err := src.TrainingRows(ctx, fish)
	if err != nil {
		observability.ModelTrainingsTotal.WithLabelValues("error").Inc()
		return models.ModelInfo{}, fmt.Errorf("load training rows: %w", err)
	}
	rows := RowsFromRecords(records)
	if err := m.Train(rows); err != nil {
		observability.ModelTrainingsTotal.WithLabelValues("error").Inc()
		return models.ModelInfo{}, fmt.Errorf("train model: %w", err)
	}

	info := m.Info()
	status := "success"
	if info.Baseline {
		status = "baseline"
	}
	observability.ModelTrainingsTotal.WithLabelValues(status).Inc()
	observability.ModelTrainingRows.Set(float64(info.TrainingRows))
	logger.Info("model trained",
		zap.String("fish", fish),
		zap.Int("records", len(records)),
		zap.Int("trainingRows", info.TrainingRows),
		zap.Bool("baseline", info.Baseline),
	)
	return info, nil
}
