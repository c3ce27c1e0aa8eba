// Package accuracy grades a catch prediction against the recorded catch.
package accuracy

import (
	"errors"
	"fmt"
	"math"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

// ErrInvalidInput is returned for negative catch counts.
var ErrInvalidInput = errors.New("invalid input")

// Grade breakpoints on error_percent, inclusive upper bounds. perfect is
// reserved for an exact prediction and sits on top of these.
const (
	ExcellentMaxPercent = 10.0
	GoodMaxPercent      = 30.0
	FairMaxPercent      = 60.0
)

// Prediction directions.
const (
	DirectionOver  = "over"
	DirectionUnder = "under"
	DirectionExact = "exact"
)

var gradeText = map[models.AccuracyGrade]string{
	models.GradePerfect:   "完璧",
	models.GradeExcellent: "非常に良い",
	models.GradeGood:      "良い",
	models.GradeFair:      "普通",
	models.GradePoor:      "要改善",
}

// GradeText returns the display label for g.
func GradeText(g models.AccuracyGrade) string {
	return gradeText[g]
}

// Grade compares predicted with actual. A nil actual means no record exists
// for the date; Grade then returns nil metrics and no error, which callers
// must keep distinct from an exact match.
//
// When actual is zero the error percent is undefined and left nil; the grade
// is perfect for a zero prediction and poor otherwise.
func Grade(predicted int, actual *int) (*models.AccuracyMetrics, error) {
	if predicted < 0 {
		return nil, fmt.Errorf("%w: predicted catch %d is negative", ErrInvalidInput, predicted)
	}
	if actual == nil {
		return nil, nil
	}
	if *actual < 0 {
		return nil, fmt.Errorf("%w: actual catch %d is negative", ErrInvalidInput, *actual)
	}

	m := &models.AccuracyMetrics{
		ErrorAmount: predicted - *actual,
		Direction:   direction(predicted - *actual),
	}
	switch {
	case m.ErrorAmount == 0:
		m.Grade = models.GradePerfect
		if *actual > 0 {
			zero := 0.0
			m.ErrorPercent = &zero
		}
	case *actual == 0:
		m.Grade = models.GradePoor
	default:
		pct := round1(math.Abs(float64(m.ErrorAmount)) / float64(*actual) * 100)
		m.ErrorPercent = &pct
		m.Grade = gradeFor(pct)
	}
	m.GradeText = GradeText(m.Grade)
	return m, nil
}

func gradeFor(pct float64) models.AccuracyGrade {
	switch {
	case pct <= ExcellentMaxPercent:
		return models.GradeExcellent
	case pct <= GoodMaxPercent:
		return models.GradeGood
	case pct <= FairMaxPercent:
		return models.GradeFair
	default:
		return models.GradePoor
	}
}

func direction(errAmount int) string {
	switch {
	case errAmount > 0:
		return DirectionOver
	case errAmount < 0:
		return DirectionUnder
	default:
		return DirectionExact
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
