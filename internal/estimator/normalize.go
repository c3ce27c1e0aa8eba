package estimator

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kjstillabower/honmoku-catch-service/internal/labels"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

// ErrUnknownShape is returned when an averages payload has neither a "data"
// list nor an "averages" object.
var ErrUnknownShape = errors.New("unrecognised visitor averages payload")

type rawEntry struct {
	Key       string   `json:"key"`
	Weather   string   `json:"weather"`
	Weekday   string   `json:"weekday"`
	Average   *float64 `json:"average"`
	Std       float64  `json:"std"`
	Count     int      `json:"count"`
	Min       int      `json:"min"`
	Max       int      `json:"max"`
	Estimated bool     `json:"estimated"`
}

type rawPayload struct {
	Data     json.RawMessage     `json:"data"`
	Averages map[string]rawEntry `json:"averages"`
}

// NormalizeAverages converts either response shape of the averages backend
// into one table:
//
//	{"data": [{"weather": "sunny", "weekday": "monday", "average": 410.4}, ...]}
//	{"averages": {"sunny_monday": {"average": 410.4, ...}, ...}}
//
// Entries with unknown labels or a missing, negative or non-finite average
// are dropped. When a key repeats, the first entry (in key order) wins.
func NormalizeAverages(body []byte) (*models.VisitorAverageTable, error) {
	var p rawPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode visitor averages: %w", err)
	}

	table := models.NewVisitorAverageTable()
	switch {
	case p.Averages != nil:
		keys := make([]string, 0, len(p.Averages))
		for key := range p.Averages {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			e := p.Averages[key]
			if e.Key == "" {
				e.Key = key
			}
			addEntry(table, e)
		}
	case isList(p.Data):
		var list []rawEntry
		if err := json.Unmarshal(p.Data, &list); err != nil {
			return nil, fmt.Errorf("decode visitor averages list: %w", err)
		}
		for _, e := range list {
			addEntry(table, e)
		}
	case isObject(p.Data):
		// Some deployments wrap the averages object in a data envelope.
		return NormalizeAverages(p.Data)
	default:
		return nil, ErrUnknownShape
	}
	return table, nil
}

func addEntry(table *models.VisitorAverageTable, e rawEntry) {
	if e.Average == nil || math.IsNaN(*e.Average) || math.IsInf(*e.Average, 0) || *e.Average < 0 {
		return
	}
	weather, weekday, ok := entryLabels(e)
	if !ok {
		return
	}
	key := models.AverageKey(weather, weekday)
	if _, dup := table.Get(key); dup {
		return
	}
	table.Put(key, models.VisitorAverageEntry{
		Weather:   weather,
		Weekday:   weekday,
		Average:   *e.Average,
		Std:       e.Std,
		Count:     e.Count,
		Min:       e.Min,
		Max:       e.Max,
		Estimated: e.Estimated,
	})
}

// entryLabels prefers the composite key and falls back to the explicit fields.
func entryLabels(e rawEntry) (models.Weather, models.Weekday, bool) {
	if w, d, ok := strings.Cut(e.Key, "_"); ok {
		weather, wok := labels.Weather(w)
		weekday, dok := labels.WeekdayLabel(d)
		if wok && dok {
			return weather, weekday, true
		}
	}
	weather, wok := labels.Weather(e.Weather)
	weekday, dok := labels.WeekdayLabel(e.Weekday)
	return weather, weekday, wok && dok
}

func isList(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "[")
}

func isObject(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "{")
}
