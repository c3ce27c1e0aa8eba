package validation

import (
	"errors"
	"testing"
	"time"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func validInput() PredictionInput {
	return PredictionInput{
		Date:      "2025/01/31",
		Weather:   "晴れ",
		Visitors:  intPtr(174),
		WaterTemp: floatPtr(11.0),
		Tide:      "大潮",
	}
}

func TestValidatePrediction_Valid(t *testing.T) {
	req, err := ValidatePrediction(validInput())
	if err != nil {
		t.Fatalf("ValidatePrediction() err = %v", err)
	}
	if req.Date != "2025-01-31" {
		t.Errorf("Date = %q, want 2025-01-31", req.Date)
	}
	if req.Weather != "晴れ" || req.Tide != "大潮" {
		t.Errorf("labels = %q/%q", req.Weather, req.Tide)
	}
	if req.Visitors != 174 || req.WaterTemp != 11.0 {
		t.Errorf("visitors/temp = %d/%v", req.Visitors, req.WaterTemp)
	}
}

func TestValidatePrediction_TrimsAndAcceptsUnknownLabels(t *testing.T) {
	in := validInput()
	in.Weather = "  霧  "
	in.Tide = " 謎潮 "
	req, err := ValidatePrediction(in)
	if err != nil {
		t.Fatalf("ValidatePrediction() err = %v", err)
	}
	if req.Weather != "霧" || req.Tide != "謎潮" {
		t.Errorf("labels = %q/%q, want trimmed", req.Weather, req.Tide)
	}
}

func TestValidatePrediction_VisitorsOptional(t *testing.T) {
	in := validInput()
	in.Visitors = nil
	req, err := ValidatePrediction(in)
	if err != nil {
		t.Fatalf("ValidatePrediction() err = %v", err)
	}
	if req.Visitors != 0 {
		t.Errorf("Visitors = %d, want 0", req.Visitors)
	}
}

func TestValidatePrediction_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PredictionInput)
		want   error
	}{
		{"empty date", func(in *PredictionInput) { in.Date = " " }, ErrDateRequired},
		{"bad date", func(in *PredictionInput) { in.Date = "31/01/2025" }, ErrDateInvalid},
		{"impossible date", func(in *PredictionInput) { in.Date = "2025-02-30" }, ErrDateInvalid},
		{"empty weather", func(in *PredictionInput) { in.Weather = "" }, ErrWeatherRequired},
		{"empty tide", func(in *PredictionInput) { in.Tide = "\t" }, ErrTideRequired},
		{"missing temp", func(in *PredictionInput) { in.WaterTemp = nil }, ErrWaterTempRequired},
		{"temp too low", func(in *PredictionInput) { in.WaterTemp = floatPtr(-5.1) }, ErrWaterTempOutOfRange},
		{"temp too high", func(in *PredictionInput) { in.WaterTemp = floatPtr(40.5) }, ErrWaterTempOutOfRange},
		{"negative visitors", func(in *PredictionInput) { in.Visitors = intPtr(-1) }, ErrVisitorsOutOfRange},
		{"too many visitors", func(in *PredictionInput) { in.Visitors = intPtr(MaxVisitors + 1) }, ErrVisitorsOutOfRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := ValidatePrediction(in)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidatePrediction_Boundaries(t *testing.T) {
	for _, temp := range []float64{MinWaterTemp, MaxWaterTemp} {
		in := validInput()
		in.WaterTemp = floatPtr(temp)
		if _, err := ValidatePrediction(in); err != nil {
			t.Errorf("temp %v: err = %v", temp, err)
		}
	}
	for _, v := range []int{0, MaxVisitors} {
		in := validInput()
		in.Visitors = intPtr(v)
		if _, err := ValidatePrediction(in); err != nil {
			t.Errorf("visitors %d: err = %v", v, err)
		}
	}
}

func TestValidateHistorical_Defaults(t *testing.T) {
	q, err := ValidateHistorical(HistoricalParams{})
	if err != nil {
		t.Fatalf("ValidateHistorical() err = %v", err)
	}
	if q.Fish != "all" {
		t.Errorf("Fish = %q, want all", q.Fish)
	}
	if q.Limit != DefaultHistoricalLimit {
		t.Errorf("Limit = %d, want %d", q.Limit, DefaultHistoricalLimit)
	}
	if !q.Start.IsZero() || !q.End.IsZero() {
		t.Errorf("dates = %v/%v, want zero", q.Start, q.End)
	}
}

func TestValidateHistorical_Parses(t *testing.T) {
	q, err := ValidateHistorical(HistoricalParams{
		Fish:      "アジ",
		Weather:   "晴れ",
		Tide:      "大潮",
		StartDate: "2025-01-01",
		EndDate:   "2025/01/31",
		Limit:     "5000",
	})
	if err != nil {
		t.Fatalf("ValidateHistorical() err = %v", err)
	}
	if q.Fish != "アジ" || q.Weather != "晴れ" || q.Tide != "大潮" {
		t.Errorf("filters = %+v", q.HistoricalFilter)
	}
	if !q.Start.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v", q.Start)
	}
	if !q.End.Equal(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("End = %v", q.End)
	}
	if q.Limit != MaxHistoricalLimit {
		t.Errorf("Limit = %d, want capped %d", q.Limit, MaxHistoricalLimit)
	}
}

func TestValidateHistorical_Errors(t *testing.T) {
	tests := []struct {
		name string
		p    HistoricalParams
		want error
	}{
		{"bad start", HistoricalParams{StartDate: "yesterday"}, ErrDateInvalid},
		{"bad end", HistoricalParams{EndDate: "2025-13-01"}, ErrDateInvalid},
		{"reversed range", HistoricalParams{StartDate: "2025-02-01", EndDate: "2025-01-01"}, ErrDateRangeInvalid},
		{"zero limit", HistoricalParams{Limit: "0"}, ErrLimitInvalid},
		{"text limit", HistoricalParams{Limit: "ten"}, ErrLimitInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateHistorical(tc.p)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}
