package models

// Weather is the canonical weather condition used for statistics and features.
type Weather string

const (
	WeatherSunny  Weather = "sunny"
	WeatherCloudy Weather = "cloudy"
	WeatherRainy  Weather = "rainy"
	WeatherSnowy  Weather = "snowy"
)

// Weathers lists the canonical weather values in table order.
var Weathers = []Weather{WeatherSunny, WeatherCloudy, WeatherRainy, WeatherSnowy}

// Valid reports whether w is one of the canonical values.
func (w Weather) Valid() bool {
	return weatherRank(w) < len(Weathers)
}

func weatherRank(w Weather) int {
	for i, v := range Weathers {
		if v == w {
			return i
		}
	}
	return len(Weathers)
}

// Weekday is the canonical lowercase English day name.
type Weekday string

const (
	Sunday    Weekday = "sunday"
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
)

// Weekdays is indexed like time.Weekday (0 = Sunday).
var Weekdays = []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// weekdayTableOrder is the iteration order of the averages backend (Monday first).
var weekdayTableOrder = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// WeekdaysTableOrder returns the weekdays Monday first, the order averages are produced in.
func WeekdaysTableOrder() []Weekday {
	out := make([]Weekday, len(weekdayTableOrder))
	copy(out, weekdayTableOrder)
	return out
}

func weekdayRank(d Weekday) int {
	for i, v := range weekdayTableOrder {
		if v == d {
			return i
		}
	}
	return len(weekdayTableOrder)
}

// Tide is the tide phase of the day.
type Tide string

const (
	TideLarge  Tide = "large"  // 大潮
	TideMedium Tide = "medium" // 中潮
	TideSmall  Tide = "small"  // 小潮
	TideLong   Tide = "long"   // 長潮
	TideYoung  Tide = "young"  // 若潮
)

// Tides lists the tide phases in feature-encoding order.
var Tides = []Tide{TideLarge, TideMedium, TideSmall, TideLong, TideYoung}

// Confidence is the coarse reliability label attached to a prediction.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
)

// AccuracyGrade buckets the error of a prediction against the actual catch.
type AccuracyGrade string

const (
	GradePerfect   AccuracyGrade = "perfect"
	GradeExcellent AccuracyGrade = "excellent"
	GradeGood      AccuracyGrade = "good"
	GradeFair      AccuracyGrade = "fair"
	GradePoor      AccuracyGrade = "poor"
)
