package estimator

import (
	"errors"
	"testing"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

// 2025-01-06 is a Monday, 2025-01-08 a Wednesday.
const (
	monday    = "2025-01-06"
	wednesday = "2025-01-08"
)

func tableOf(entries map[string]float64) *models.VisitorAverageTable {
	t := models.NewVisitorAverageTable()
	for k, avg := range entries {
		t.Put(k, models.VisitorAverageEntry{Average: avg})
	}
	return t
}

func TestEstimateVisitors_ExactMatch(t *testing.T) {
	table := tableOf(map[string]float64{"sunny_monday": 410.4, "sunny_tuesday": 120})
	got := Explain(monday, "sunny", table)
	if got.Visitors != 410 {
		t.Errorf("Visitors = %d, want 410", got.Visitors)
	}
	if got.Source != SourceExact || got.MatchedKey != "sunny_monday" {
		t.Errorf("Source/MatchedKey = %q/%q, want exact/sunny_monday", got.Source, got.MatchedKey)
	}
}

func TestEstimateVisitors_RoundsHalfUp(t *testing.T) {
	table := tableOf(map[string]float64{"cloudy_monday": 250.5})
	if got := EstimateVisitors(monday, "曇り", table); got != 251 {
		t.Errorf("EstimateVisitors = %d, want 251", got)
	}
}

func TestEstimateVisitors_EmptyTableDefaults(t *testing.T) {
	tests := []struct {
		weather string
		want    int
	}{
		{"sunny", 400},
		{"晴れ", 400},
		{"cloudy", 350},
		{"rainy", 200},
		{"snowy", 130},
		// unknown labels are treated as sunny
		{"霧", 400},
	}
	for _, tc := range tests {
		t.Run(tc.weather, func(t *testing.T) {
			for _, table := range []*models.VisitorAverageTable{nil, models.NewVisitorAverageTable()} {
				got := Explain(monday, tc.weather, table)
				if got.Visitors != tc.want {
					t.Errorf("Visitors = %d, want %d", got.Visitors, tc.want)
				}
				if got.Source != SourceDefault {
					t.Errorf("Source = %q, want default", got.Source)
				}
			}
		})
	}
}

func TestDefaultVisitors_NonCanonical(t *testing.T) {
	if got := DefaultVisitors("foggy"); got != 300 {
		t.Errorf("DefaultVisitors(foggy) = %d, want 300", got)
	}
}

func TestEstimateVisitors_FirstWeatherMatch(t *testing.T) {
	table := tableOf(map[string]float64{"rainy_monday": 180, "rainy_tuesday": 220, "sunny_wednesday": 500})
	got := Explain(wednesday, "rainy", table)
	if got.Visitors != 180 {
		t.Errorf("Visitors = %d, want 180", got.Visitors)
	}
	if got.Source != SourceWeatherMatch || got.MatchedKey != "rainy_monday" {
		t.Errorf("Source/MatchedKey = %q/%q, want weather_match/rainy_monday", got.Source, got.MatchedKey)
	}
}

func TestEstimateVisitors_PrefersWeekdayAmongWeatherMatches(t *testing.T) {
	// Keys that carry the weather and weekday names without being canonical.
	table := tableOf(map[string]float64{"rainy_monday": 180, "rainy_wednesday_am": 90})
	got := Explain(wednesday, "rainy", table)
	if got.Visitors != 90 || got.MatchedKey != "rainy_wednesday_am" {
		t.Errorf("got %d from %q, want 90 from rainy_wednesday_am", got.Visitors, got.MatchedKey)
	}
}

func TestEstimateVisitors_UnparseableDateUsesMonday(t *testing.T) {
	table := tableOf(map[string]float64{"sunny_monday": 321})
	got := Explain("not a date", "sunny", table)
	if got.Weekday != models.Monday || got.Visitors != 321 {
		t.Errorf("got weekday %q visitors %d, want monday 321", got.Weekday, got.Visitors)
	}
}

func TestEstimateVisitors_AllCombinationsNonNegative(t *testing.T) {
	table := tableOf(map[string]float64{"sunny_saturday": 612.2, "snowy_sunday": -5})
	dates := []string{"2025-01-05", "2025-01-06", "2025-01-07", "2025-01-08", "2025-01-09", "2025-01-10", "2025-01-11"}
	for _, w := range models.Weathers {
		for _, d := range dates {
			for _, tbl := range []*models.VisitorAverageTable{nil, table} {
				if got := EstimateVisitors(d, string(w), tbl); got < 0 {
					t.Errorf("EstimateVisitors(%s, %s) = %d, want >= 0", d, w, got)
				}
			}
		}
	}
}

func TestEstimateVisitors_Idempotent(t *testing.T) {
	table := tableOf(map[string]float64{"rainy_monday": 180, "rainy_tuesday": 220, "cloudy_friday": 333.3})
	for _, w := range []string{"rainy", "cloudy", "sunny"} {
		a := Explain(wednesday, w, table)
		b := Explain(wednesday, w, table)
		if a != b {
			t.Errorf("Explain(%s) not idempotent: %+v vs %+v", w, a, b)
		}
	}
}

func TestNormalizeAverages_DataList(t *testing.T) {
	body := []byte(`{"data": [
		{"weather": "sunny", "weekday": "monday", "average": 410.4},
		{"weather": "雨", "weekday": "水", "average": 150},
		{"weather": "fog", "weekday": "monday", "average": 99},
		{"weather": "cloudy", "weekday": "friday", "average": -3},
		{"weather": "cloudy", "weekday": "friday"}
	]}`)
	table, err := NormalizeAverages(body)
	if err != nil {
		t.Fatalf("NormalizeAverages: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (keys %v)", table.Len(), table.Keys())
	}
	if e, ok := table.Get("rainy_wednesday"); !ok || e.Average != 150 || e.Weather != models.WeatherRainy {
		t.Errorf("rainy_wednesday = %+v, %v", e, ok)
	}
	if got := EstimateVisitors(monday, "sunny", table); got != 410 {
		t.Errorf("EstimateVisitors = %d, want 410", got)
	}
}

func TestNormalizeAverages_AveragesObject(t *testing.T) {
	body := []byte(`{"averages": {
		"sunny_monday": {"average": 410.4, "std": 20.1, "count": 5, "min": 380, "max": 450},
		"snowy_sunday": {"average": 80, "estimated": true},
		"bogus": {"average": 1}
	}, "status": "success"}`)
	table, err := NormalizeAverages(body)
	if err != nil {
		t.Fatalf("NormalizeAverages: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("Len = %d, want 2", table.Len())
	}
	e, _ := table.Get("sunny_monday")
	if e.Count != 5 || e.Max != 450 || e.Weekday != models.Monday {
		t.Errorf("sunny_monday = %+v", e)
	}
	if e, _ := table.Get("snowy_sunday"); !e.Estimated {
		t.Error("snowy_sunday should keep estimated flag")
	}
}

func TestNormalizeAverages_WrappedObject(t *testing.T) {
	table, err := NormalizeAverages([]byte(`{"success": true, "data": {"averages": {"cloudy_tuesday": {"average": 200}}}}`))
	if err != nil {
		t.Fatalf("NormalizeAverages: %v", err)
	}
	if _, ok := table.Get("cloudy_tuesday"); !ok {
		t.Error("cloudy_tuesday missing")
	}
}

func TestNormalizeAverages_Errors(t *testing.T) {
	if _, err := NormalizeAverages([]byte(`{"status": "error"}`)); !errors.Is(err, ErrUnknownShape) {
		t.Errorf("error = %v, want ErrUnknownShape", err)
	}
	if _, err := NormalizeAverages([]byte(`{not json`)); err == nil || errors.Is(err, ErrUnknownShape) {
		t.Errorf("error = %v, want decode error", err)
	}
}

func TestNormalizeAverages_EmptyAveragesIsEmptyTable(t *testing.T) {
	table, err := NormalizeAverages([]byte(`{"averages": {}, "status": "error"}`))
	if err != nil {
		t.Fatalf("NormalizeAverages: %v", err)
	}
	if table.Len() != 0 {
		t.Errorf("Len = %d, want 0", table.Len())
	}
}
