package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/honmoku-catch-service/internal/estimator"
	"github.com/kjstillabower/honmoku-catch-service/internal/lifecycle"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/observability"
	"github.com/kjstillabower/honmoku-catch-service/internal/predictor"
	"github.com/kjstillabower/honmoku-catch-service/internal/service"
	"github.com/kjstillabower/honmoku-catch-service/internal/traffic"
	"github.com/kjstillabower/honmoku-catch-service/internal/validation"
)

// ServiceName and Version are reported by / and /health.
const (
	ServiceName = "honmoku-catch-service"
	Version     = "1.0.0"
)

// maxBodyBytes caps prediction request bodies.
const maxBodyBytes = 1 << 20

// CatchService is the service layer used by the handlers.
type CatchService interface {
	Status(ctx context.Context) models.SystemStatus
	Historical(ctx context.Context, q models.HistoricalQuery) (models.HistoricalResult, error)
	VisitorAverages(ctx context.Context) (models.VisitorAverages, error)
	EstimateVisitors(ctx context.Context, date, weather string) estimator.Estimate
	Predict(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error)
	PredictEstimatingVisitors(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error)
}

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow         time.Duration
	OverloadThresholdPct   int
	RateLimitRPS           int
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	StartTime              time.Time
	// Probes are reported under "checks" by name; they do not change the status.
	Probes map[string]func(ctx context.Context) error
	// OnDegraded is called whenever /health reports degraded, e.g. to start recovery.
	OnDegraded func()
	// Jobs, when set, is reported under "jobs".
	Jobs func() interface{}
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc              CatchService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil; /health then
// only reports shutting-down or healthy.
func NewHandler(svc CatchService, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, healthConfig: healthConfig, logger: logger}
}

// GetIndex handles GET /.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "本牧海釣り施設 釣果予測API",
		"version": Version,
		"endpoints": map[string]string{
			"historical":       "/api/historical",
			"visitor_averages": "/api/visitor-averages",
			"visitor_estimate": "/api/visitor-estimate",
			"predict_aji":      "/api/predict-aji",
			"status":           "/api/status",
			"health":           "/health",
			"metrics":          "/metrics",
		},
	})
}

// GetStatus handles GET /api/status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(r.Context()))
}

// GetHistorical handles GET /api/historical.
func (h *Handler) GetHistorical(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query, err := validation.ValidateHistorical(validation.HistoricalParams{
		Fish:      q.Get("fish"),
		Weather:   q.Get("weather"),
		Tide:      q.Get("tide"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Limit:     q.Get("limit"),
	})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}

	result, err := h.svc.Historical(r.Context(), query)
	if err != nil {
		traffic.RecordError()
		writeServiceError(w, r, err, "HISTORICAL_UNAVAILABLE", "Unable to load historical data")
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, result)
}

// GetVisitorAverages handles GET /api/visitor-averages. An empty store is
// not an error: the payload carries status "error" and an error_message.
func (h *Handler) GetVisitorAverages(w http.ResponseWriter, r *http.Request) {
	avg, err := h.svc.VisitorAverages(r.Context())
	if err != nil {
		traffic.RecordError()
		writeServiceError(w, r, err, "AVERAGES_UNAVAILABLE", "Unable to compute visitor averages")
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, avg)
}

// GetVisitorEstimate handles GET /api/visitor-estimate?date=&weather=.
func (h *Handler) GetVisitorEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if _, err := validation.ValidateDate(q.Get("date")); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return
	}
	if q.Get("weather") == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", validation.ErrWeatherRequired.Error())
		return
	}
	est := h.svc.EstimateVisitors(r.Context(), q.Get("date"), q.Get("weather"))
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"estimate": est,
	})
}

// PostPredict handles POST /api/predict-aji. When visitors is omitted it is
// estimated from the visitor averages.
func (h *Handler) PostPredict(w http.ResponseWriter, r *http.Request) {
	var in validation.PredictionInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_JSON", "request body must be a JSON object")
		return
	}
	req, err := validation.ValidatePrediction(in)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	var res *models.PredictionResult
	if in.Visitors == nil {
		res, err = h.svc.PredictEstimatingVisitors(r.Context(), req)
	} else {
		res, err = h.svc.Predict(r.Context(), req)
	}
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
			return
		}
		traffic.RecordError()
		writePredictError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"prediction": res,
	})
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	if result.status == "degraded" && h.healthConfig != nil && h.healthConfig.OnDegraded != nil {
		h.healthConfig.OnDegraded()
	}

	checks := make(map[string]string)
	if h.healthConfig != nil {
		for name, probe := range h.healthConfig.Probes {
			if probe(r.Context()) == nil {
				checks[name] = "healthy"
			} else {
				checks[name] = "unhealthy"
			}
		}
	}
	body := map[string]interface{}{
		"status":    result.status,
		"service":   ServiceName,
		"version":   Version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil && h.healthConfig.Jobs != nil {
		body["jobs"] = h.healthConfig.Jobs()
	}
	writeJSON(w, result.statusCode, body)
}

// computeHealthStatus evaluates the conditions in priority order:
// shutting-down > overloaded > idle > degraded > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	cfg := h.healthConfig
	if cfg == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	// Overloaded: requests in the window exceed the configured share of what
	// the rate limiter admits over that window.
	if cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(traffic.Window(cfg.OverloadWindow).Requests()) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	// Idle only after the minimum lifespan, so a fresh instance is not reaped.
	if cfg.IdleWindow > 0 && cfg.MinimumLifespan > 0 && time.Since(cfg.StartTime) >= cfg.MinimumLifespan {
		if traffic.Window(cfg.IdleWindow).Requests() < cfg.IdleThresholdReqPerMin {
			return healthResult{"idle", http.StatusOK, "low_traffic"}
		}
	}
	if cfg.DegradedWindow > 0 && cfg.DegradedErrorPct > 0 {
		c := traffic.Window(cfg.DegradedWindow)
		if c.Successes+c.Errors > 0 && c.ErrorPercent() >= float64(cfg.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with the request's correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps a backend failure to 504 on deadline and 503
// otherwise. The cause is logged, not returned to the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	observability.LoggerFrom(r.Context()).Warn("request failed", zap.String("code", code), zap.Error(err))
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out")
		return
	}
	writeError(w, r, http.StatusServiceUnavailable, code, message)
}

func writePredictError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrModelUnavailable):
		observability.LoggerFrom(r.Context()).Warn("model unavailable", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", "予測モデルが利用できません")
	case errors.Is(err, predictor.ErrUpstreamFailure), errors.Is(err, predictor.ErrRateLimited),
		errors.Is(err, predictor.ErrBadResponse), errors.Is(err, predictor.ErrUnauthorized),
		errors.Is(err, predictor.ErrBadRequest):
		observability.LoggerFrom(r.Context()).Warn("inference failed",
			zap.String("category", string(predictor.CategorizeError(err))), zap.Error(err))
		writeError(w, r, http.StatusBadGateway, "INFERENCE_FAILED", "予測サービスの呼び出しに失敗しました")
	default:
		writeServiceError(w, r, err, "PREDICTION_FAILED", "予測に失敗しました")
	}
}
