package predictor

import (
	"context"
	"errors"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

var (
	ErrNotReady        = errors.New("model not ready")
	ErrUnauthorized    = errors.New("inference service rejected credentials")
	ErrBadRequest      = errors.New("inference service rejected request")
	ErrRateLimited     = errors.New("inference service rate limited")
	ErrUpstreamFailure = errors.New("inference service failure")
	ErrBadResponse     = errors.New("invalid inference response")
)

// Model produces a raw catch estimate for encoded features. The raw value
// may be negative or fractional; callers clamp and round it.
type Model interface {
	Predict(ctx context.Context, f Features) (float64, error)
	Info() models.ModelInfo
	Ready() bool
}

// TrainingRow is one labelled example.
type TrainingRow struct {
	Features Features
	Catch    float64
}

// BaselineRows is the built-in sample used when too little history has been
// imported to train on.
func BaselineRows() []TrainingRow {
	return []TrainingRow{
		{Features{Month: 8, Season: SeasonSummer, Weather: 0, WaterTemp: 25, Tide: 0, Visitors: 200}, 180},
		{Features{Month: 7, Season: SeasonSummer, Weather: 1, WaterTemp: 27, Tide: 1, Visitors: 150}, 120},
		{Features{Month: 6, Season: SeasonSummer, Weather: 0, WaterTemp: 23, Tide: 0, Visitors: 300}, 220},
		{Features{Month: 9, Season: SeasonAutumn, Weather: 2, WaterTemp: 20, Tide: 2, Visitors: 100}, 50},
		{Features{Month: 5, Season: SeasonSpring, Weather: 0, WaterTemp: 18, Tide: 0, Visitors: 250}, 160},
	}
}

// RowsFromRecords encodes stored records, dropping the unusable ones.
func RowsFromRecords(records []models.CatchRecord) []TrainingRow {
	rows := make([]TrainingRow, 0, len(records))
	for _, r := range records {
		f, ok := FromRecord(r)
		if !ok {
			continue
		}
		rows = append(rows, TrainingRow{Features: f, Catch: float64(r.CatchCount)})
	}
	return rows
}
