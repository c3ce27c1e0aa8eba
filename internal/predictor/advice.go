package predictor

import "github.com/kjstillabower/honmoku-catch-service/internal/models"

// Confidence scores five conditions at ±1 each: spring/summer, sunny or
// cloudy, water 15–25℃, 100–500 visitors and a raw estimate of 50–500.
func Confidence(f Features, raw float64) models.Confidence {
	score := 0
	vote := func(ok bool) {
		if ok {
			score++
		} else {
			score--
		}
	}
	vote(f.Season == SeasonSpring || f.Season == SeasonSummer)
	vote(f.Weather == 0 || f.Weather == 1)
	vote(f.WaterTemp >= 15 && f.WaterTemp <= 25)
	vote(f.Visitors >= 100 && f.Visitors <= 500)
	vote(raw >= 50 && raw <= 500)

	switch {
	case score >= 3:
		return models.ConfidenceHigh
	case score <= -2:
		return models.ConfidenceLow
	default:
		return models.ConfidenceMedium
	}
}

// Recommendations returns angler advice for the conditions, in display order.
func Recommendations(f Features, raw float64) []string {
	var recs []string

	switch {
	case f.WaterTemp < 15:
		recs = append(recs, "水温が低いです。朝夕の時間帯が狙い目です。")
	case f.WaterTemp > 25:
		recs = append(recs, "水温が高いです。朝夕の時間帯がお勧めです。")
	default:
		recs = append(recs, "水温が適温です。アジの活性が期待できます。")
	}

	switch f.Tide {
	case 2:
		recs = append(recs, "小潮で潮の動きが少ない日です。静かなポイントを狙いましょう。")
	case 0:
		recs = append(recs, "大潮で潮の動きが活発です。潮目を意識した釣りを心がけましょう。")
	}

	switch {
	case f.Visitors > 400:
		recs = append(recs, "混雑が予想されます。早めの到着をお勧めします。")
	case f.Visitors < 100:
		recs = append(recs, "比較的空いている日です。ゆっくり釣りを楽しめそうです。")
	}

	switch {
	case raw > 300:
		recs = append(recs, "好釣果が期待できます。十分な仕掛けの準備をお勧めします。")
	case raw < 100:
		recs = append(recs, "厳しい条件です。丁寧な釣りを心がけましょう。")
	}
	return recs
}
