// Package predictor turns prediction requests into model features, runs the
// catch model and derives confidence and advice from the result.
package predictor

import (
	"fmt"
	"time"

	"github.com/kjstillabower/honmoku-catch-service/internal/labels"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

// FeatureNames lists the model inputs in vector order.
var FeatureNames = []string{"month", "season", "weather", "water_temp", "tide", "visitors"}

// Season codes.
const (
	SeasonSpring = 0
	SeasonSummer = 1
	SeasonAutumn = 2
	SeasonWinter = 3
)

// Features is one encoded model input.
type Features struct {
	Month     int
	Season    int
	Weather   int
	WaterTemp float64
	Tide      int
	Visitors  int
}

// Vector returns the features in FeatureNames order.
func (f Features) Vector() []float64 {
	return []float64{
		float64(f.Month),
		float64(f.Season),
		float64(f.Weather),
		f.WaterTemp,
		float64(f.Tide),
		float64(f.Visitors),
	}
}

// SeasonOf maps a calendar month to its season code.
func SeasonOf(month time.Month) int {
	switch month {
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	case time.September, time.October, time.November:
		return SeasonAutumn
	default:
		return SeasonWinter
	}
}

// WeatherCode encodes a weather label. Unknown labels encode as sunny.
func WeatherCode(label string) int {
	w, ok := labels.Weather(label)
	if !ok {
		return 0
	}
	for i, v := range models.Weathers {
		if v == w {
			return i
		}
	}
	return 0
}

// TideCode encodes a tide label. Unknown labels encode as 大潮.
func TideCode(label string) int {
	t, ok := labels.Tide(label)
	if !ok {
		return 0
	}
	for i, v := range models.Tides {
		if v == t {
			return i
		}
	}
	return 0
}

// Encode builds features from a request. The date must parse.
func Encode(req models.PredictionRequest) (Features, error) {
	d, err := labels.ParseDate(req.Date)
	if err != nil {
		return Features{}, fmt.Errorf("encode features: %w", err)
	}
	return Features{
		Month:     int(d.Month()),
		Season:    SeasonOf(d.Month()),
		Weather:   WeatherCode(req.Weather),
		WaterTemp: req.WaterTemp,
		Tide:      TideCode(req.Tide),
		Visitors:  req.Visitors,
	}, nil
}

// FromRecord encodes a stored record for training. Records without water
// temperature or visitors are not usable.
func FromRecord(r models.CatchRecord) (Features, bool) {
	if r.WaterTemp == nil || r.Visitors == nil {
		return Features{}, false
	}
	return Features{
		Month:     int(r.Date.Month()),
		Season:    SeasonOf(r.Date.Month()),
		Weather:   WeatherCode(r.Weather),
		WaterTemp: *r.WaterTemp,
		Tide:      TideCode(r.Tide),
		Visitors:  *r.Visitors,
	}, true
}
