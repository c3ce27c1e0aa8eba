package models

import "time"

// CatchRecord is one species row of a facility day as published on the
// fishing-history page. Weather and tide keep their display labels.
type CatchRecord struct {
	Date       time.Time `json:"-"`
	Weather    string    `json:"weather"`
	WaterTemp  *float64  `json:"water_temp"`
	Tide       string    `json:"tide"`
	Visitors   *int      `json:"visitors"`
	Fish       string    `json:"fish"`
	CatchCount int       `json:"catch_count"`
	Size       string    `json:"size"`
	Spot       string    `json:"spot"`
	Comment    string    `json:"comment,omitempty"`
}

// HistoricalFilter narrows a record query. Zero values mean "no filter".
type HistoricalFilter struct {
	Fish    string
	Weather string
	Tide    string
	Start   time.Time
	End     time.Time
}

// HistoricalQuery is a filter plus the number of records to return.
type HistoricalQuery struct {
	HistoricalFilter
	Limit int
}

// HistoricalRecord is the wire form of a CatchRecord.
type HistoricalRecord struct {
	Date string `json:"date"`
	CatchRecord
}

// GroupStats aggregates catch counts for one group.
type GroupStats struct {
	Days       int     `json:"days"`
	TotalCatch int     `json:"total_catch"`
	AvgCatch   float64 `json:"avg_catch"`
}

// HistoricalSummary aggregates the filtered records.
type HistoricalSummary struct {
	TotalRecords    int                   `json:"total_records"`
	OriginalRecords int                   `json:"original_records"`
	TotalCatch      int                   `json:"total_catch"`
	AvgCatch        float64               `json:"avg_catch"`
	MaxCatch        int                   `json:"max_catch"`
	MinCatch        int                   `json:"min_catch"`
	DateRange       *DateRange            `json:"date_range,omitempty"`
	ByMonth         map[string]GroupStats `json:"by_month,omitempty"`
	ByFishType      map[string]GroupStats `json:"by_fish_type,omitempty"`
	ByWeather       map[string]GroupStats `json:"by_weather,omitempty"`
	Message         string                `json:"message,omitempty"`
}

// HistoricalFilters echoes the applied filters.
type HistoricalFilters struct {
	Fish      string `json:"fish"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Weather   string `json:"weather,omitempty"`
	Tide      string `json:"tide,omitempty"`
	Limit     int    `json:"limit"`
}

// HistoricalData holds the returned page of records.
type HistoricalData struct {
	Records       []HistoricalRecord `json:"records"`
	TotalCount    int                `json:"total_count"`
	ReturnedCount int                `json:"returned_count"`
}

// HistoricalResult is the payload of the historical endpoint.
type HistoricalResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    HistoricalData    `json:"data"`
	Summary HistoricalSummary `json:"summary"`
	Filters HistoricalFilters `json:"filters"`
}
