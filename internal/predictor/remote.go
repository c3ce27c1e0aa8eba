package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kjstillabower/honmoku-catch-service/internal/circuitbreaker"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/observability"
)

// ModelTypeRemote identifies the remote inference model in ModelInfo.
const ModelTypeRemote = "remote"

// RemoteConfig configures a RemoteModel.
type RemoteConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Breaker guards the upstream. nil disables short-circuiting.
	Breaker    *circuitbreaker.CircuitBreaker
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// RemoteModel calls an external inference service over JSON.
type RemoteModel struct {
	cfg    RemoteConfig
	client *http.Client
	logger *zap.Logger
}

type inferenceRequest struct {
	Features map[string]float64 `json:"features"`
	Vector   []float64          `json:"vector"`
}

type inferenceResponse struct {
	Prediction *float64 `json:"prediction"`
}

// NewRemoteModel validates cfg and returns a client.
func NewRemoteModel(cfg RemoteConfig) (*RemoteModel, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote model: URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 2 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteModel{cfg: cfg, client: client, logger: logger}, nil
}

// Predict posts the features, retrying rate limits, 5xx and timeouts with
// exponential backoff. Each attempt passes through the breaker.
func (m *RemoteModel) Predict(ctx context.Context, f Features) (float64, error) {
	var result float64
	attempt := 0
	op := func() error {
		attempt++
		call := func() error {
			v, err := m.call(ctx, f)
			if err == nil {
				result = v
			}
			return err
		}
		var err error
		if m.cfg.Breaker != nil {
			err = m.cfg.Breaker.Call(ctx, call)
		} else {
			err = call()
		}
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = m.cfg.RetryBaseDelay
	eb.MaxInterval = m.cfg.RetryMaxDelay
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(m.cfg.RetryAttempts-1)), ctx)

	notify := func(err error, delay time.Duration) {
		observability.InferenceRetriesTotal.Inc()
		m.logger.Warn("inference call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("category", string(CategorizeError(err))),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if attempt >= m.cfg.RetryAttempts && isRetryable(err) {
			return 0, fmt.Errorf("exhausted retries: %w", err)
		}
		return 0, err
	}
	return result, nil
}

func (m *RemoteModel) call(ctx context.Context, f Features) (float64, error) {
	start := time.Now()

	vec := f.Vector()
	named := make(map[string]float64, len(vec))
	for i, name := range FeatureNames {
		named[name] = vec[i]
	}
	body, err := json.Marshal(inferenceRequest{Features: named, Vector: vec})
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, m.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if m.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	}
	if id := observability.CorrelationID(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.observe(start, err)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return 0, fmt.Errorf("request timeout: %w", err)
		}
		return 0, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := errorForStatus(resp.StatusCode); err != nil {
		m.observe(start, err)
		return 0, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		m.observe(start, err)
		return 0, fmt.Errorf("read response body: %w", err)
	}
	var out inferenceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		err = fmt.Errorf("%w: parse: %v", ErrBadResponse, err)
		m.observe(start, err)
		return 0, err
	}
	if out.Prediction == nil || math.IsNaN(*out.Prediction) || math.IsInf(*out.Prediction, 0) {
		err := fmt.Errorf("%w: missing or non-finite prediction", ErrBadResponse)
		m.observe(start, err)
		return 0, err
	}
	m.observe(start, nil)
	return *out.Prediction, nil
}

func (m *RemoteModel) observe(start time.Time, err error) {
	status := "success"
	if err != nil {
		status = string(CategorizeError(err))
	}
	observability.InferenceCallsTotal.WithLabelValues(status).Inc()
	observability.InferenceDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

func errorForStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, code)
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrBadRequest, code)
	}
}

func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, circuitbreaker.ErrOpen):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrUpstreamFailure):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	c := CategorizeError(err)
	return c == ErrorCategoryNetwork || c == ErrorCategoryTimeout
}

// Ready is false while the breaker is open.
func (m *RemoteModel) Ready() bool {
	return m.cfg.Breaker == nil || m.cfg.Breaker.State() != circuitbreaker.StateOpen
}

// Info describes the remote model.
func (m *RemoteModel) Info() models.ModelInfo {
	return models.ModelInfo{Type: ModelTypeRemote, Features: append([]string(nil), FeatureNames...)}
}
