package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

type mockRefresher struct {
	calls int32
	err   error
}

func (m *mockRefresher) RefreshVisitorAverages(ctx context.Context) (models.VisitorAverages, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.err != nil {
		return models.VisitorAverages{}, m.err
	}
	return sampleAverages(), nil
}

func TestWarmer_Warm_Success(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := &mockRefresher{}
	if err := NewWarmer(r, zap.New(core)).Warm(context.Background()); err != nil {
		t.Fatalf("Warm() error = %v", err)
	}
	if r.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", r.calls)
	}
	if logs.FilterMessage("cache warming complete").Len() != 1 {
		t.Error("missing completion log")
	}
}

func TestWarmer_Warm_RefresherError(t *testing.T) {
	boom := errors.New("db locked")
	err := NewWarmer(&mockRefresher{err: boom}, nil).Warm(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Warm() error = %v, want %v", err, boom)
	}
}

func TestWarmer_WarmPeriodic_StopsOnCancel(t *testing.T) {
	r := &mockRefresher{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewWarmer(r, nil).WarmPeriodic(ctx, 5*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WarmPeriodic() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WarmPeriodic did not stop")
	}
	if atomic.LoadInt32(&r.calls) < 2 {
		t.Errorf("refresh calls = %d, want initial plus periodic", r.calls)
	}
}
