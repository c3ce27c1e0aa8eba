// Package estimator derives a visitor count for a date and weather from the
// weather×weekday average table. It never fails: missing statistics degrade
// to a weather-only match and then to fixed per-weather defaults.
package estimator

import (
	"math"
	"strings"

	"github.com/kjstillabower/honmoku-catch-service/internal/labels"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

// Fallback levels reported by Explain.
const (
	SourceExact        = "exact"
	SourceWeatherMatch = "weather_match"
	SourceDefault      = "default"
)

// Fallbacks for inputs outside the dictionaries.
const (
	FallbackWeather = models.WeatherSunny
	FallbackWeekday = models.Monday
)

const otherDefault = 300

var weatherDefaults = map[models.Weather]int{
	models.WeatherSunny:  400,
	models.WeatherCloudy: 350,
	models.WeatherRainy:  200,
	models.WeatherSnowy:  130,
}

// DefaultVisitors is the visitor count used when the table has nothing for w.
func DefaultVisitors(w models.Weather) int {
	if v, ok := weatherDefaults[w]; ok {
		return v
	}
	return otherDefault
}

// Estimate is the result of one estimation with the path that produced it.
type Estimate struct {
	Date       string         `json:"date"`
	Weather    models.Weather `json:"weather"`
	Weekday    models.Weekday `json:"weekday"`
	Key        string         `json:"key"`
	MatchedKey string         `json:"matched_key,omitempty"`
	Visitors   int            `json:"visitors"`
	Source     string         `json:"source"`
}

// EstimateVisitors returns the estimated visitor count for date (YYYY-MM-DD or
// YYYY/MM/DD) and a weather display label.
func EstimateVisitors(date, weatherLabel string, table *models.VisitorAverageTable) int {
	return Explain(date, weatherLabel, table).Visitors
}

// Explain runs the estimation and reports the weekday, keys and fallback level.
func Explain(date, weatherLabel string, table *models.VisitorAverageTable) Estimate {
	weather, ok := labels.Weather(weatherLabel)
	if !ok {
		weather = FallbackWeather
	}
	weekday := FallbackWeekday
	if t, err := labels.ParseDate(date); err == nil {
		if d, ok := labels.WeekdayFromIndex(int(t.Weekday())); ok {
			weekday = d
		}
	}

	est := Estimate{
		Date:    date,
		Weather: weather,
		Weekday: weekday,
		Key:     models.AverageKey(weather, weekday),
	}

	if e, ok := table.Get(est.Key); ok {
		est.MatchedKey = est.Key
		est.Visitors = roundVisitors(e.Average)
		est.Source = SourceExact
		return est
	}

	if key, ok := weatherMatch(table, weather, weekday); ok {
		e, _ := table.Get(key)
		est.MatchedKey = key
		est.Visitors = roundVisitors(e.Average)
		est.Source = SourceWeatherMatch
		return est
	}

	est.Visitors = DefaultVisitors(weather)
	est.Source = SourceDefault
	return est
}

// weatherMatch scans the table in canonical key order for keys containing the
// weather name, preferring one that also contains the weekday name.
func weatherMatch(table *models.VisitorAverageTable, weather models.Weather, weekday models.Weekday) (string, bool) {
	first := ""
	for _, key := range table.Keys() {
		if !strings.Contains(key, string(weather)) {
			continue
		}
		if strings.Contains(key, string(weekday)) {
			return key, true
		}
		if first == "" {
			first = key
		}
	}
	return first, first != ""
}

// roundVisitors rounds half away from zero. Non-finite and negative averages count as zero.
func roundVisitors(avg float64) int {
	if math.IsNaN(avg) || math.IsInf(avg, 0) || avg <= 0 {
		return 0
	}
	return int(math.Round(avg))
}
