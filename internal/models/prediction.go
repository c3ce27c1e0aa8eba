package models

import "time"

// PredictionRequest is the input to a catch prediction. Weather and Tide are
// display labels (晴れ, 大潮, ...) or their canonical English names.
type PredictionRequest struct {
	Date      string  `json:"date"`
	Weather   string  `json:"weather"`
	Visitors  int     `json:"visitors"`
	WaterTemp float64 `json:"water_temp"`
	Tide      string  `json:"tide"`
}

// AccuracyMetrics compares a prediction with the recorded catch.
// ErrorPercent is nil when the actual catch was zero.
type AccuracyMetrics struct {
	ErrorAmount  int           `json:"error_amount"`
	ErrorPercent *float64      `json:"error_percent"`
	Grade        AccuracyGrade `json:"accuracy_grade"`
	GradeText    string        `json:"accuracy_grade_text"`
	Direction    string        `json:"direction"`
}

// Historical comparison states of a prediction.
const (
	HistoricalFuture  = "future"
	HistoricalMatched = "matched"
	HistoricalMissing = "missing"
)

// ModelInfo describes the model that produced a prediction.
type ModelInfo struct {
	Type         string    `json:"type"`
	Features     []string  `json:"features"`
	TrainedAt    time.Time `json:"trained_at,omitempty"`
	TrainingRows int       `json:"training_rows,omitempty"`
	Baseline     bool      `json:"baseline,omitempty"`
}

// PredictionResult is the outcome of one prediction call.
type PredictionResult struct {
	CatchCount        int               `json:"catch_count"`
	Confidence        Confidence        `json:"confidence"`
	IsHistorical      bool              `json:"is_historical"`
	ActualCatch       *int              `json:"actual_catch"`
	AccuracyMetrics   *AccuracyMetrics  `json:"accuracy_metrics"`
	HistoricalStatus  string            `json:"historical_status"`
	InputConditions   PredictionRequest `json:"input_conditions"`
	VisitorsEstimated bool              `json:"visitors_estimated,omitempty"`
	ModelInfo         ModelInfo         `json:"model_info"`
	Recommendations   []string          `json:"recommendations"`
	PredictedAt       time.Time         `json:"predicted_at"`
}

// ComponentStatus reports readiness of the backends behind the API.
type ComponentStatus struct {
	API             string `json:"api"`
	Model           string `json:"model"`
	HistoricalData  string `json:"historical_data"`
	VisitorAnalysis string `json:"visitor_analysis"`
}

// SystemStatus is the payload of the status endpoint.
type SystemStatus struct {
	Success   bool            `json:"success"`
	Status    ComponentStatus `json:"status"`
	ModelInfo *ModelInfo      `json:"model_info"`
	Records   int             `json:"records"`
	Timestamp time.Time       `json:"timestamp"`
}
