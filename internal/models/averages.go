package models

import (
	"sort"
	"strings"
	"time"
)

// VisitorAverageEntry is the mean visitor count for one weather×weekday pair.
type VisitorAverageEntry struct {
	Weather   Weather `json:"weather"`
	Weekday   Weekday `json:"weekday"`
	Average   float64 `json:"average"`
	Std       float64 `json:"std"`
	Count     int     `json:"count"`
	Min       int     `json:"min"`
	Max       int     `json:"max"`
	Estimated bool    `json:"estimated,omitempty"`
}

// AverageKey builds the "<weather>_<weekday>" lookup key.
func AverageKey(w Weather, d Weekday) string {
	return string(w) + "_" + string(d)
}

// VisitorAverageTable maps "<weather>_<weekday>" keys to entries.
// Built once per fetch and treated as read-only afterwards.
type VisitorAverageTable struct {
	entries map[string]VisitorAverageEntry
}

// NewVisitorAverageTable returns an empty table.
func NewVisitorAverageTable() *VisitorAverageTable {
	return &VisitorAverageTable{entries: make(map[string]VisitorAverageEntry)}
}

// Put stores e under key, replacing any previous entry.
func (t *VisitorAverageTable) Put(key string, e VisitorAverageEntry) {
	t.entries[key] = e
}

// Get returns the entry for key. A nil table has no entries.
func (t *VisitorAverageTable) Get(key string) (VisitorAverageEntry, bool) {
	if t == nil {
		return VisitorAverageEntry{}, false
	}
	e, ok := t.entries[key]
	return e, ok
}

// Len returns the number of entries.
func (t *VisitorAverageTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Keys returns all keys in canonical order: weather enum order, then
// Monday-first weekday order, then lexicographic for keys that do not parse.
func (t *VisitorAverageTable) Keys() []string {
	if t == nil {
		return nil
	}
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		wi, di := keyRank(keys[i])
		wj, dj := keyRank(keys[j])
		if wi != wj {
			return wi < wj
		}
		if di != dj {
			return di < dj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func keyRank(key string) (int, int) {
	w, d, _ := strings.Cut(key, "_")
	return weatherRank(Weather(w)), weekdayRank(Weekday(d))
}

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// VisitorStatistics describes the data the averages were computed from.
type VisitorStatistics struct {
	TotalRecords    int            `json:"total_records"`
	DateRange       *DateRange     `json:"date_range,omitempty"`
	WeatherCounts   map[string]int `json:"weather_counts,omitempty"`
	WeekdayCounts   map[string]int `json:"weekday_counts,omitempty"`
	PatternCounts   map[string]int `json:"pattern_counts,omitempty"`
	OverallAverage  float64        `json:"overall_average"`
	CalculationTime time.Time      `json:"calculation_time"`
	ErrorMessage    string         `json:"error_message,omitempty"`
}

// VisitorAverages is the payload served by the averages endpoint.
type VisitorAverages struct {
	Averages   map[string]VisitorAverageEntry `json:"averages"`
	Statistics VisitorStatistics              `json:"statistics"`
	Status     string                         `json:"status"`
}

// Table converts the averages payload into a lookup table.
func (v VisitorAverages) Table() *VisitorAverageTable {
	t := NewVisitorAverageTable()
	for k, e := range v.Averages {
		t.Put(k, e)
	}
	return t
}

// DailyVisitors is one facility day: its weather label and head count.
type DailyVisitors struct {
	Date     time.Time
	Weather  string
	Visitors int
}
