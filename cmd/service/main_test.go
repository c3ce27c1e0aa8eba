package main

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/honmoku-catch-service/internal/config"
	"github.com/kjstillabower/honmoku-catch-service/internal/predictor"
	"github.com/kjstillabower/honmoku-catch-service/internal/testhelpers"
)

func TestBuildModel_LinearTrainsFromStore(t *testing.T) {
	st := testhelpers.SeedStore(t, testhelpers.SampleRecords())
	cfg := &config.Config{
		ModelBackend:    config.ModelLinear,
		RidgeLambda:     1,
		MinTrainingRows: 10,
		TargetFish:      testhelpers.Fish,
	}

	m, err := buildModel(context.Background(), cfg, st, zap.NewNop())
	if err != nil {
		t.Fatalf("buildModel() error = %v", err)
	}
	if _, ok := m.(*predictor.LinearModel); !ok {
		t.Fatalf("model type = %T, want *predictor.LinearModel", m)
	}
	if !m.Ready() {
		t.Fatal("model not ready after training")
	}
	info := m.Info()
	if info.Baseline || info.TrainingRows != testhelpers.SampleDays {
		t.Errorf("info = %+v, want %d store rows and no baseline", info, testhelpers.SampleDays)
	}
}

func TestBuildModel_LinearFallsBackToBaseline(t *testing.T) {
	st := testhelpers.OpenStore(t)
	cfg := &config.Config{ModelBackend: config.ModelLinear, MinTrainingRows: 10, TargetFish: testhelpers.Fish}

	m, err := buildModel(context.Background(), cfg, st, zap.NewNop())
	if err != nil {
		t.Fatalf("buildModel() error = %v", err)
	}
	if !m.Ready() || !m.Info().Baseline {
		t.Errorf("info = %+v, want ready baseline model on an empty store", m.Info())
	}
}

func TestBuildModel_Remote(t *testing.T) {
	cfg := &config.Config{
		ModelBackend:                   config.ModelRemote,
		InferenceURL:                   "http://127.0.0.1:1/predict",
		InferenceAPIKey:                "k",
		InferenceTimeout:               time.Second,
		CircuitBreakerEnabled:          true,
		CircuitBreakerFailureThreshold: 3,
	}

	m, err := buildModel(context.Background(), cfg, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("buildModel() error = %v", err)
	}
	if _, ok := m.(*predictor.RemoteModel); !ok {
		t.Fatalf("model type = %T, want *predictor.RemoteModel", m)
	}
	if m.Info().Type != predictor.ModelTypeRemote {
		t.Errorf("Info().Type = %q", m.Info().Type)
	}
}
