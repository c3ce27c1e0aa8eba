package analysis

import (
	"github.com/kjstillabower/honmoku-catch-service/internal/labels"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

// NoMatchMessage is the summary message when a filter matches nothing.
const NoMatchMessage = "条件に一致するデータがありません"

type groupAcc struct {
	days  int
	total int
}

func (g groupAcc) stats() models.GroupStats {
	return models.GroupStats{Days: g.days, TotalCatch: g.total, AvgCatch: round1(float64(g.total) / float64(g.days))}
}

// Summarize aggregates filtered records. originalCount is the number of
// records before filtering.
func Summarize(records []models.CatchRecord, originalCount int) models.HistoricalSummary {
	if len(records) == 0 {
		return models.HistoricalSummary{OriginalRecords: originalCount, Message: NoMatchMessage}
	}

	byMonth := make(map[string]*groupAcc)
	byFish := make(map[string]*groupAcc)
	byWeather := make(map[string]*groupAcc)
	add := func(m map[string]*groupAcc, key string, n int) {
		g, ok := m[key]
		if !ok {
			g = &groupAcc{}
			m[key] = g
		}
		g.days++
		g.total += n
	}

	sum := 0
	lo, hi := records[0].CatchCount, records[0].CatchCount
	first, last := records[0].Date, records[0].Date
	for _, r := range records {
		n := r.CatchCount
		sum += n
		if n < lo {
			lo = n
		}
		if n > hi {
			hi = n
		}
		if r.Date.Before(first) {
			first = r.Date
		}
		if r.Date.After(last) {
			last = r.Date
		}
		add(byMonth, r.Date.Format("2006-01"), n)
		add(byFish, r.Fish, n)
		add(byWeather, r.Weather, n)
	}

	flatten := func(m map[string]*groupAcc) map[string]models.GroupStats {
		out := make(map[string]models.GroupStats, len(m))
		for k, g := range m {
			out[k] = g.stats()
		}
		return out
	}
	return models.HistoricalSummary{
		TotalRecords:    len(records),
		OriginalRecords: originalCount,
		TotalCatch:      sum,
		AvgCatch:        round1(float64(sum) / float64(len(records))),
		MaxCatch:        hi,
		MinCatch:        lo,
		DateRange:       &models.DateRange{Start: labels.FormatDate(first), End: labels.FormatDate(last)},
		ByMonth:         flatten(byMonth),
		ByFishType:      flatten(byFish),
		ByWeather:       flatten(byWeather),
	}
}
