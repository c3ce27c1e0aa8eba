// Package apiclient talks to the catch prediction API: it fetches the visitor
// averages table, submits predictions and reads the system status.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kjstillabower/honmoku-catch-service/internal/estimator"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/observability"
	"github.com/kjstillabower/honmoku-catch-service/internal/validation"
)

var (
	ErrUpstreamFailure = errors.New("catch API failure")
	ErrRateLimited     = errors.New("catch API rate limited")
	ErrRejected        = errors.New("catch API rejected request")
	ErrBadResponse     = errors.New("invalid catch API response")
)

const maxResponseBytes = 4 << 20

// APIError carries the error envelope returned by the API.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	kind      error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("HTTP %d", e.Status)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return fmt.Sprintf("%v: %s", e.kind, msg)
}

func (e *APIError) Unwrap() error { return e.kind }

// Config configures a Client.
type Config struct {
	BaseURL string
	// Timeout bounds each attempt.
	Timeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the catch prediction API. 5xx, 429 and transport timeouts are
// retried with exponential backoff; other failures return immediately.
type Client struct {
	base   *url.URL
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("apiclient: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
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
	return &Client{base: base, cfg: cfg, client: client, logger: logger}, nil
}

// FetchVisitorAverages returns the weather×weekday averages table. Both the
// list and the keyed response shapes are accepted.
func (c *Client) FetchVisitorAverages(ctx context.Context) (*models.VisitorAverageTable, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/visitor-averages", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch visitor averages: %w", err)
	}
	table, err := estimator.NormalizeAverages(body)
	if err != nil {
		return nil, fmt.Errorf("fetch visitor averages: %w: %v", ErrBadResponse, err)
	}
	return table, nil
}

// SubmitPrediction posts the conditions and returns the prediction. A nil
// Visitors asks the server to estimate it.
func (c *Client) SubmitPrediction(ctx context.Context, in validation.PredictionInput) (models.PredictionResult, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return models.PredictionResult{}, fmt.Errorf("encode prediction request: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, "/api/predict-aji", payload)
	if err != nil {
		return models.PredictionResult{}, fmt.Errorf("submit prediction: %w", err)
	}
	var resp struct {
		Success    bool                     `json:"success"`
		Prediction *models.PredictionResult `json:"prediction"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Prediction == nil {
		return models.PredictionResult{}, fmt.Errorf("submit prediction: %w", ErrBadResponse)
	}
	return *resp.Prediction, nil
}

// FetchStatus returns the component status report.
func (c *Client) FetchStatus(ctx context.Context) (models.SystemStatus, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/status", nil)
	if err != nil {
		return models.SystemStatus{}, fmt.Errorf("fetch status: %w", err)
	}
	var st models.SystemStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return models.SystemStatus{}, fmt.Errorf("fetch status: %w", ErrBadResponse)
	}
	return st, nil
}

// do runs one request with retries and returns the response body of the
// first 2xx answer.
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		b, err := c.call(ctx, method, path, payload)
		if err == nil {
			body = b
			return nil
		}
		if ctx.Err() != nil || !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetryBaseDelay
	eb.MaxInterval = c.cfg.RetryMaxDelay
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.cfg.RetryAttempts-1)), ctx)

	notify := func(err error, delay time.Duration) {
		c.logger.Warn("catch API call failed, retrying",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if attempt >= c.cfg.RetryAttempts && isRetryable(err) {
			return nil, fmt.Errorf("exhausted retries: %w", err)
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := observability.CorrelationID(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if err := errorForResponse(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// errorForResponse maps a non-2xx answer to an *APIError, keeping the
// server's error envelope when it sent one.
func errorForResponse(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	apiErr := &APIError{Status: status}
	switch {
	case status == http.StatusTooManyRequests:
		apiErr.kind = ErrRateLimited
	case status >= 500:
		apiErr.kind = ErrUpstreamFailure
	default:
		apiErr.kind = ErrRejected
	}
	var envelope struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"requestId"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.RequestID = envelope.Error.RequestID
	}
	return apiErr
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || !errors.Is(err, context.Canceled)
	}
	return false
}
