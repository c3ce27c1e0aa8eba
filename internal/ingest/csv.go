// Package ingest loads scraped catch tables into the record store and runs
// the periodic import and retrain job.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kjstillabower/honmoku-catch-service/internal/labels"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing required column")

const (
	colDate     = "date"
	colWeather  = "weather"
	colTemp     = "water_temp"
	colTide     = "tide"
	colVisitors = "visitors"
	colFish     = "fish"
	colCount    = "catch_count"
	colSize     = "size"
	colSpot     = "spot"
	colComment  = "comment"
)

var headerAliases = map[string]string{
	"日付":          colDate,
	"date":        colDate,
	"天気":          colWeather,
	"weather":     colWeather,
	"水温":          colTemp,
	"water_temp":  colTemp,
	"潮":           colTide,
	"tide":        colTide,
	"来場者数":        colVisitors,
	"visitors":    colVisitors,
	"魚種":          colFish,
	"fish":        colFish,
	"釣果数":         colCount,
	"catch_count": colCount,
	"サイズ":         colSize,
	"size":        colSize,
	"釣り場":         colSpot,
	"spot":        colSpot,
	"コメント":        colComment,
	"comment":     colComment,
}

var requiredColumns = []string{colDate, colFish, colCount}

// RowError describes a skipped row. Line is 1-based and counts the header.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ParseResult holds the usable records and what was skipped.
type ParseResult struct {
	Records []models.CatchRecord
	Skipped []RowError
	Rows    int
}

// ParseCSV reads a fishing_results table. Unknown columns are ignored.
// Rows with an unparseable date, empty species or a missing or negative
// count are skipped and reported rather than failing the file.
func ParseCSV(r io.Reader) (ParseResult, error) {
	var res ParseResult

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return res, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return res, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if col, ok := headerAliases[strings.ToLower(h)]; ok {
			if _, dup := index[col]; !dup {
				index[col] = i
			}
		}
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return res, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				res.Rows++
				res.Skipped = append(res.Skipped, RowError{Line: line, Reason: perr.Err.Error()})
				continue
			}
			return res, fmt.Errorf("read line %d: %w", line, err)
		}
		if isBlank(row) {
			continue
		}
		res.Rows++
		rec, reason := parseRow(row, index)
		if reason != "" {
			res.Skipped = append(res.Skipped, RowError{Line: line, Reason: reason})
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func parseRow(row []string, index map[string]int) (models.CatchRecord, string) {
	field := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rec models.CatchRecord
	date, err := labels.ParseDate(field(colDate))
	if err != nil {
		return rec, fmt.Sprintf("invalid date %q", field(colDate))
	}
	rec.Date = date

	rec.Fish = field(colFish)
	if rec.Fish == "" {
		return rec, "empty fish"
	}

	raw := field(colCount)
	count, ok := labels.ParseCount(raw)
	if !ok {
		return rec, fmt.Sprintf("invalid catch count %q", raw)
	}
	if strings.HasPrefix(raw, "-") {
		return rec, fmt.Sprintf("negative catch count %q", raw)
	}
	rec.CatchCount = count

	rec.Weather = field(colWeather)
	rec.Tide = field(colTide)
	if temp, ok := labels.ParseTemperature(field(colTemp)); ok {
		rec.WaterTemp = &temp
	}
	if v, ok := labels.ParseCount(field(colVisitors)); ok {
		rec.Visitors = &v
	}
	rec.Size = field(colSize)
	rec.Spot = field(colSpot)
	rec.Comment = field(colComment)
	return rec, ""
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
