package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/honmoku-catch-service/internal/circuitbreaker"
	"github.com/kjstillabower/honmoku-catch-service/internal/observability"
)

func newTestRemote(t *testing.T, url string, breaker *circuitbreaker.CircuitBreaker) *RemoteModel {
	t.Helper()
	m, err := NewRemoteModel(RemoteConfig{
		URL:            url,
		APIKey:         "test-key",
		Timeout:        time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  5 * time.Millisecond,
		Breaker:        breaker,
	})
	if err != nil {
		t.Fatalf("NewRemoteModel() error = %v", err)
	}
	return m
}

func TestNewRemoteModel_RequiresURL(t *testing.T) {
	if _, err := NewRemoteModel(RemoteConfig{}); err == nil {
		t.Error("NewRemoteModel() with empty URL: want error")
	}
}

func TestRemoteModel_Predict_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-Correlation-ID"); got != "corr-1" {
			t.Errorf("X-Correlation-ID = %q, want corr-1", got)
		}
		var body inferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.Vector) != len(FeatureNames) || body.Features["visitors"] != 200 {
			t.Errorf("body = %+v", body)
		}
		_, _ = w.Write([]byte(`{"prediction": 142.6}`))
	}))
	defer server.Close()

	m := newTestRemote(t, server.URL, nil)
	ctx := observability.WithCorrelationID(context.Background(), "corr-1")
	got, err := m.Predict(ctx, Features{Month: 8, Season: SeasonSummer, WaterTemp: 25, Visitors: 200})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if got != 142.6 {
		t.Errorf("Predict() = %v, want 142.6", got)
	}
	if !m.Ready() || m.Info().Type != ModelTypeRemote {
		t.Errorf("Ready=%v Info=%+v", m.Ready(), m.Info())
	}
}

func TestRemoteModel_Predict_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"prediction": 80}`))
	}))
	defer server.Close()

	got, err := newTestRemote(t, server.URL, nil).Predict(context.Background(), Features{})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if got != 80 || atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Predict() = %v after %d calls, want 80 after 2", got, calls)
	}
}

func TestRemoteModel_Predict_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		wantCalls int32
	}{
		{"bad request not retried", http.StatusBadRequest, `{}`, ErrBadRequest, 1},
		{"unauthorized not retried", http.StatusUnauthorized, `{}`, ErrUnauthorized, 1},
		{"5xx retried to exhaustion", http.StatusBadGateway, `{}`, ErrUpstreamFailure, 3},
		{"rate limit retried", http.StatusTooManyRequests, `{}`, ErrRateLimited, 3},
		{"malformed body", http.StatusOK, `not json`, ErrBadResponse, 1},
		{"missing prediction", http.StatusOK, `{"result": 3}`, ErrBadResponse, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestRemote(t, server.URL, nil).Predict(context.Background(), Features{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Predict() error = %v, want %v", err, tt.wantErr)
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestRemoteModel_BreakerShortCircuits(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "inference", FailureThreshold: 1, Timeout: time.Hour})
	m := newTestRemote(t, server.URL, breaker)

	_, err := m.Predict(context.Background(), Features{})
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("Predict() error = %v, want ErrOpen", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	if m.Ready() {
		t.Error("Ready() = true with breaker open")
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"wrapped timeout", fmt.Errorf("request timeout: %w", context.DeadlineExceeded), ErrorCategoryTimeout},
		{"breaker open", circuitbreaker.ErrOpen, ErrorCategoryCircuitOpen},
		{"not ready", ErrNotReady, ErrorCategoryNotReady},
		{"unauthorized", fmt.Errorf("%w: HTTP 403", ErrUnauthorized), ErrorCategoryUnauthorized},
		{"bad request", ErrBadRequest, ErrorCategoryBadRequest},
		{"rate limited", ErrRateLimited, ErrorCategoryRateLimited},
		{"upstream", fmt.Errorf("%w: HTTP 502", ErrUpstreamFailure), ErrorCategoryUpstream5xx},
		{"parsing", ErrBadResponse, ErrorCategoryParsing},
		{"network message", errors.New("dial tcp: connection refused"), ErrorCategoryNetwork},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
