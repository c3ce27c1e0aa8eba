// Package testhelpers builds seeded stores and wired services for tests
// that exercise more than one package.
package testhelpers

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/honmoku-catch-service/internal/cache"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/predictor"
	"github.com/kjstillabower/honmoku-catch-service/internal/service"
	"github.com/kjstillabower/honmoku-catch-service/internal/store"
)

// Fish is the species sample records are generated for.
const Fish = "アジ"

// SampleStart is the first day of SampleRecords.
var SampleStart = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

// SampleDays is the number of facility days in SampleRecords.
const SampleDays = 45

var (
	sampleWeathers = []string{"晴れ", "曇り", "雨", "晴れ", "曇り時々晴れ"}
	sampleTides    = []string{"大潮", "中潮", "小潮", "長潮", "若潮", "中潮"}
)

// SampleRecords returns SampleDays consecutive days from SampleStart, each
// with one アジ row and one イワシ row. Visitors follow weather and weekend;
// the catch grows with visitors and water temperature.
func SampleRecords() []models.CatchRecord {
	out := make([]models.CatchRecord, 0, 2*SampleDays)
	for i := 0; i < SampleDays; i++ {
		date := SampleStart.AddDate(0, 0, i)
		weather := sampleWeathers[i%len(sampleWeathers)]
		visitors := 300
		switch weather {
		case "雨":
			visitors = 120
		case "曇り", "曇り時々晴れ":
			visitors = 240
		}
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			visitors += 100
		}
		temp := 15.0 + float64(i)*0.1
		v := visitors
		tp := temp
		catch := visitors/3 + int(temp*2)
		out = append(out,
			models.CatchRecord{Date: date, Weather: weather, WaterTemp: &tp, Tide: sampleTides[i%len(sampleTides)], Visitors: &v, Fish: Fish, CatchCount: catch, Size: "15-20cm", Spot: "海釣り桟橋"},
			models.CatchRecord{Date: date, Weather: weather, WaterTemp: &tp, Tide: sampleTides[i%len(sampleTides)], Visitors: &v, Fish: "イワシ", CatchCount: catch / 2, Size: "10-13cm", Spot: "海釣り桟橋"},
		)
	}
	return out
}

// OpenStore returns an in-memory store closed at test cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// SeedStore returns an in-memory store holding records.
func SeedStore(t testing.TB, records []models.CatchRecord) *store.Store {
	t.Helper()
	s := OpenStore(t)
	if _, err := s.UpsertRecords(context.Background(), records); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return s
}

// SetupService wires a CatchService over a store seeded with SampleRecords,
// an in-memory cache and a ridge model trained on the store. now fixes the
// service clock; nil uses time.Now.
func SetupService(t testing.TB, now func() time.Time) (*service.CatchService, *store.Store) {
	t.Helper()
	s := SeedStore(t, SampleRecords())
	model := predictor.NewLinearModel(predictor.LinearConfig{Now: now})
	if _, err := predictor.TrainFromStore(context.Background(), s, model, Fish, zap.NewNop()); err != nil {
		t.Fatalf("train model: %v", err)
	}
	svc := service.NewCatchService(s, cache.NewInMemoryCache(), model, service.Config{
		Location:   time.FixedZone("JST", 9*60*60),
		TargetFish: Fish,
		Now:        now,
	})
	return svc, s
}
