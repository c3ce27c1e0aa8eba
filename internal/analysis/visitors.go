// Package analysis computes the weather×weekday visitor averages and the
// catch summaries served by the historical view.
package analysis

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kjstillabower/honmoku-catch-service/internal/labels"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

// Status values of a VisitorAverages payload.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// MaxPlausibleVisitors bounds the daily head counts used for averages.
// Counts outside 0..MaxPlausibleVisitors are treated as scrape errors.
const MaxPlausibleVisitors = 2000

// FallbackBase is the base estimate for a weather with no observed days.
const FallbackBase = 300.0

var weekdayFactors = map[models.Weekday]float64{
	models.Monday:    0.8,
	models.Tuesday:   0.85,
	models.Wednesday: 0.9,
	models.Thursday:  0.95,
	models.Friday:    1.0,
	models.Saturday:  1.3,
	models.Sunday:    1.25,
}

var weatherFactors = map[models.Weather]float64{
	models.WeatherSunny:  1.1,
	models.WeatherCloudy: 1.0,
	models.WeatherRainy:  0.7,
	models.WeatherSnowy:  0.5,
}

// VisitorAverages groups daily visitor counts by weather and weekday. Every
// one of the 28 combinations gets an entry; combinations without data are
// estimated from the same weather's observed averages.
func VisitorAverages(days []models.DailyVisitors, now time.Time) models.VisitorAverages {
	groups := make(map[string][]float64)
	weatherCounts := make(map[string]int)
	weekdayCounts := make(map[string]int)
	var all []float64
	var first, last time.Time

	for _, d := range days {
		if d.Visitors < 0 || d.Visitors > MaxPlausibleVisitors {
			continue
		}
		w, ok := labels.Weather(d.Weather)
		if !ok {
			w = models.WeatherCloudy
		}
		wd := labels.Weekday(d.Date)
		key := models.AverageKey(w, wd)
		groups[key] = append(groups[key], float64(d.Visitors))
		weatherCounts[string(w)]++
		weekdayCounts[string(wd)]++
		all = append(all, float64(d.Visitors))
		if first.IsZero() || d.Date.Before(first) {
			first = d.Date
		}
		if d.Date.After(last) {
			last = d.Date
		}
	}

	if len(all) == 0 {
		return models.VisitorAverages{
			Averages: map[string]models.VisitorAverageEntry{},
			Statistics: models.VisitorStatistics{
				CalculationTime: now,
				ErrorMessage:    "no visitor data available",
			},
			Status: StatusError,
		}
	}

	averages := make(map[string]models.VisitorAverageEntry, len(models.Weathers)*len(weekdayFactors))
	patternCounts := make(map[string]int)
	for _, w := range models.Weathers {
		for _, wd := range models.WeekdaysTableOrder() {
			key := models.AverageKey(w, wd)
			xs := groups[key]
			if len(xs) == 0 {
				continue
			}
			mean, std := stat.MeanStdDev(xs, nil)
			if len(xs) < 2 || math.IsNaN(std) {
				std = 0
			}
			lo, hi := minMax(xs)
			averages[key] = models.VisitorAverageEntry{
				Weather: w,
				Weekday: wd,
				Average: round1(mean),
				Std:     round1(std),
				Count:   len(xs),
				Min:     int(lo),
				Max:     int(hi),
			}
			patternCounts[key] = len(xs)
		}
	}

	for _, w := range models.Weathers {
		base := sameWeatherBase(averages, w)
		for _, wd := range models.WeekdaysTableOrder() {
			key := models.AverageKey(w, wd)
			if _, ok := averages[key]; ok {
				continue
			}
			averages[key] = models.VisitorAverageEntry{
				Weather:   w,
				Weekday:   wd,
				Average:   EstimateMissing(base, w, wd),
				Estimated: true,
			}
		}
	}

	return models.VisitorAverages{
		Averages: averages,
		Statistics: models.VisitorStatistics{
			TotalRecords:    len(all),
			DateRange:       &models.DateRange{Start: labels.FormatDate(first), End: labels.FormatDate(last)},
			WeatherCounts:   weatherCounts,
			WeekdayCounts:   weekdayCounts,
			PatternCounts:   patternCounts,
			OverallAverage:  round1(stat.Mean(all, nil)),
			CalculationTime: now,
		},
		Status: StatusSuccess,
	}
}

// EstimateMissing scales base by the weekday and weather factors.
func EstimateMissing(base float64, w models.Weather, wd models.Weekday) float64 {
	wf, ok := weatherFactors[w]
	if !ok {
		wf = 1.0
	}
	df, ok := weekdayFactors[wd]
	if !ok {
		df = 1.0
	}
	return round1(base * df * wf)
}

func sameWeatherBase(averages map[string]models.VisitorAverageEntry, w models.Weather) float64 {
	var xs []float64
	for _, e := range averages {
		if e.Weather == w && e.Count > 0 {
			xs = append(xs, e.Average)
		}
	}
	if len(xs) == 0 {
		return FallbackBase
	}
	return stat.Mean(xs, nil)
}

func minMax(xs []float64) (float64, float64) {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
