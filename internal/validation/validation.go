// Package validation checks request input before it reaches the service.
// Labels outside the dictionaries are accepted: the estimator and the
// feature encoder degrade them to defaults instead of rejecting them.
package validation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/honmoku-catch-service/internal/labels"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

var (
	// ErrDateRequired is returned when date is empty.
	ErrDateRequired = errors.New("date is required")

	// ErrDateInvalid is returned when a date is not YYYY-MM-DD or YYYY/MM/DD.
	ErrDateInvalid = errors.New("date must be YYYY-MM-DD")

	// ErrWeatherRequired is returned when weather is empty.
	ErrWeatherRequired = errors.New("weather is required")

	// ErrTideRequired is returned when tide is empty.
	ErrTideRequired = errors.New("tide is required")

	// ErrWaterTempRequired is returned when water_temp is missing.
	ErrWaterTempRequired = errors.New("water_temp is required")

	// ErrWaterTempOutOfRange is returned for temperatures outside MinWaterTemp..MaxWaterTemp.
	ErrWaterTempOutOfRange = errors.New("water_temp out of range")

	// ErrVisitorsOutOfRange is returned for visitor counts outside 0..MaxVisitors.
	ErrVisitorsOutOfRange = errors.New("visitors out of range")

	// ErrLimitInvalid is returned when limit is not an integer in 1..MaxHistoricalLimit.
	ErrLimitInvalid = errors.New("limit must be a positive integer")

	// ErrDateRangeInvalid is returned when start_date is after end_date.
	ErrDateRangeInvalid = errors.New("start_date is after end_date")
)

// Bounds on prediction input. Water temperatures in Tokyo Bay stay well
// inside these; anything outside is a unit or typing mistake.
const (
	MinWaterTemp = -5.0
	MaxWaterTemp = 40.0
	MaxVisitors  = 5000
)

// Historical page sizes.
const (
	DefaultHistoricalLimit = 50
	MaxHistoricalLimit     = 1000
)

// PredictionInput is the decoded body of a prediction request. Visitors is
// optional; nil asks the service to estimate it.
type PredictionInput struct {
	Date      string   `json:"date"`
	Weather   string   `json:"weather"`
	Visitors  *int     `json:"visitors"`
	WaterTemp *float64 `json:"water_temp"`
	Tide      string   `json:"tide"`
}

// ValidatePrediction trims and checks in and returns the request with the
// date in YYYY-MM-DD form. When Visitors is nil the returned request carries
// zero visitors and the caller is expected to estimate them.
func ValidatePrediction(in PredictionInput) (models.PredictionRequest, error) {
	date, err := ValidateDate(in.Date)
	if err != nil {
		return models.PredictionRequest{}, err
	}
	weather := strings.TrimSpace(in.Weather)
	if weather == "" {
		return models.PredictionRequest{}, ErrWeatherRequired
	}
	tide := strings.TrimSpace(in.Tide)
	if tide == "" {
		return models.PredictionRequest{}, ErrTideRequired
	}
	if in.WaterTemp == nil {
		return models.PredictionRequest{}, ErrWaterTempRequired
	}
	temp := *in.WaterTemp
	if math.IsNaN(temp) || temp < MinWaterTemp || temp > MaxWaterTemp {
		return models.PredictionRequest{}, fmt.Errorf("%w: %.1f", ErrWaterTempOutOfRange, temp)
	}
	visitors := 0
	if in.Visitors != nil {
		visitors = *in.Visitors
		if visitors < 0 || visitors > MaxVisitors {
			return models.PredictionRequest{}, fmt.Errorf("%w: %d", ErrVisitorsOutOfRange, visitors)
		}
	}
	return models.PredictionRequest{
		Date:      labels.FormatDate(date),
		Weather:   weather,
		Visitors:  visitors,
		WaterTemp: temp,
		Tide:      tide,
	}, nil
}

// ValidateDate parses a required calendar date.
func ValidateDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrDateRequired
	}
	t, err := labels.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDateInvalid, s)
	}
	return t, nil
}

// HistoricalParams are the raw query parameters of a historical lookup.
type HistoricalParams struct {
	Fish      string
	Weather   string
	Tide      string
	StartDate string
	EndDate   string
	Limit     string
}

// ValidateHistorical parses p. Empty parameters mean no filter; an empty
// limit selects DefaultHistoricalLimit and larger limits are capped at
// MaxHistoricalLimit.
func ValidateHistorical(p HistoricalParams) (models.HistoricalQuery, error) {
	q := models.HistoricalQuery{
		HistoricalFilter: models.HistoricalFilter{
			Fish:    strings.TrimSpace(p.Fish),
			Weather: strings.TrimSpace(p.Weather),
			Tide:    strings.TrimSpace(p.Tide),
		},
		Limit: DefaultHistoricalLimit,
	}
	if q.Fish == "" {
		q.Fish = "all"
	}
	var err error
	if s := strings.TrimSpace(p.StartDate); s != "" {
		if q.Start, err = ValidateDate(s); err != nil {
			return models.HistoricalQuery{}, err
		}
	}
	if s := strings.TrimSpace(p.EndDate); s != "" {
		if q.End, err = ValidateDate(s); err != nil {
			return models.HistoricalQuery{}, err
		}
	}
	if !q.Start.IsZero() && !q.End.IsZero() && q.Start.After(q.End) {
		return models.HistoricalQuery{}, ErrDateRangeInvalid
	}
	if s := strings.TrimSpace(p.Limit); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return models.HistoricalQuery{}, fmt.Errorf("%w: %q", ErrLimitInvalid, s)
		}
		q.Limit = min(n, MaxHistoricalLimit)
	}
	return q, nil
}
