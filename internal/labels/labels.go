// Package labels holds the fixed dictionaries that translate the facility's
// display labels into canonical values, and parsers for scraped table cells.
package labels

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

var weatherLabels = map[string]models.Weather{
	"晴れ":  models.WeatherSunny,
	"晴":   models.WeatherSunny,
	"快晴":  models.WeatherSunny,
	"曇り":  models.WeatherCloudy,
	"曇":   models.WeatherCloudy,
	"薄曇り": models.WeatherCloudy,
	"雨":   models.WeatherRainy,
	"小雨":  models.WeatherRainy,
	"大雨":  models.WeatherRainy,
	"暴風雨": models.WeatherRainy,
	"雪":   models.WeatherSnowy,

	// Compound forecasts are folded onto the dominant or later condition.
	"曇り時々晴れ":     models.WeatherCloudy,
	"晴れのち曇り":     models.WeatherSunny,
	"曇りのち雨":      models.WeatherRainy,
	"雨のち晴れ":      models.WeatherSunny,
	"雨のち曇り":      models.WeatherCloudy,
	"曇りのち晴れ一時雨":  models.WeatherCloudy,
	"曇りのち晴れ":     models.WeatherSunny,
	"雨一時曇り":      models.WeatherRainy,
	"雨時々曇り":      models.WeatherRainy,
	"雨のち曇り時々晴れ":  models.WeatherCloudy,
	"晴れのち雨":      models.WeatherRainy,
	"曇り時々雨":      models.WeatherRainy,

	"sunny":  models.WeatherSunny,
	"cloudy": models.WeatherCloudy,
	"rainy":  models.WeatherRainy,
	"snowy":  models.WeatherSnowy,
}

var weatherDisplay = map[models.Weather]string{
	models.WeatherSunny:  "晴れ",
	models.WeatherCloudy: "曇り",
	models.WeatherRainy:  "雨",
	models.WeatherSnowy:  "雪",
}

var tideLabels = map[string]models.Tide{
	"大潮":     models.TideLarge,
	"中潮":     models.TideMedium,
	"小潮":     models.TideSmall,
	"長潮":     models.TideLong,
	"若潮":     models.TideYoung,
	"large":  models.TideLarge,
	"medium": models.TideMedium,
	"small":  models.TideSmall,
	"long":   models.TideLong,
	"young":  models.TideYoung,
}

var tideDisplay = map[models.Tide]string{
	models.TideLarge:  "大潮",
	models.TideMedium: "中潮",
	models.TideSmall:  "小潮",
	models.TideLong:   "長潮",
	models.TideYoung:  "若潮",
}

var weekdayDisplay = map[models.Weekday]string{
	models.Sunday:    "日",
	models.Monday:    "月",
	models.Tuesday:   "火",
	models.Wednesday: "水",
	models.Thursday:  "木",
	models.Friday:    "金",
	models.Saturday:  "土",
}

// Weather maps a display label to its canonical value. ok is false for
// labels outside the dictionary; callers pick their own default.
func Weather(label string) (models.Weather, bool) {
	w, ok := weatherLabels[strings.ToLower(strings.TrimSpace(label))]
	return w, ok
}

// WeatherDisplay returns the Japanese display label for w.
func WeatherDisplay(w models.Weather) string {
	if s, ok := weatherDisplay[w]; ok {
		return s
	}
	return string(w)
}

// Tide maps a display label to its canonical tide phase.
func Tide(label string) (models.Tide, bool) {
	t, ok := tideLabels[strings.ToLower(strings.TrimSpace(label))]
	return t, ok
}

// TideDisplay returns the Japanese display label for t.
func TideDisplay(t models.Tide) string {
	if s, ok := tideDisplay[t]; ok {
		return s
	}
	return string(t)
}

// WeekdayFromIndex maps 0=Sunday..6=Saturday to the canonical day name.
func WeekdayFromIndex(i int) (models.Weekday, bool) {
	if i < 0 || i >= len(models.Weekdays) {
		return "", false
	}
	return models.Weekdays[i], true
}

// Weekday returns the canonical day name of t.
func Weekday(t time.Time) models.Weekday {
	d, _ := WeekdayFromIndex(int(t.Weekday()))
	return d
}

// WeekdayLabel maps an English day name or a Japanese day label (月, 月曜, 月曜日)
// to the canonical weekday.
func WeekdayLabel(label string) (models.Weekday, bool) {
	s := strings.ToLower(strings.TrimSpace(label))
	for _, d := range models.Weekdays {
		if s == string(d) {
			return d, true
		}
	}
	if t, ok := strings.CutSuffix(s, "曜日"); ok {
		s = t
	} else {
		s = strings.TrimSuffix(s, "曜")
	}
	for d, jp := range weekdayDisplay {
		if s == jp {
			return d, true
		}
	}
	return "", false
}

// WeekdayDisplay returns the one-character Japanese day name used in scraped dates.
func WeekdayDisplay(d models.Weekday) string {
	return weekdayDisplay[d]
}

// ErrInvalidDate is returned when a date cell cannot be parsed.
var ErrInvalidDate = errors.New("invalid date")

var dateLayouts = []string{"2006/01/02", "2006-01-02", "2006/1/2", "2006-1-2"}

// ParseDate accepts "2025/01/31", "2025-01-31" and the scraped form
// "2025/01/31(金)". The result is midnight UTC of that calendar day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "(（"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FormatDate renders a calendar day as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

var (
	numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	digitsPattern = regexp.MustCompile(`\d+`)
)

// ParseTemperature extracts the number from cells like "11.0℃".
func ParseTemperature(s string) (float64, bool) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseCount extracts the first run of digits from cells like "174名".
// Thousands separators are ignored.
func ParseCount(s string) (int, bool) {
	m := digitsPattern.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0, false
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return v, true
}
