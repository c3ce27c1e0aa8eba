package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/honmoku-catch-service/internal/observability"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// RequestTimeout bounds /api requests; 0 disables the deadline.
	RequestTimeout time.Duration
	// Limiter throttles /api requests; nil disables rate limiting.
	Limiter        *rate.Limiter
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires the handlers. /health and /metrics bypass the rate
// limiter and the request timeout. CORS wraps the router so preflight
// requests are answered before route matching.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/", h.GetIndex).Methods(http.MethodGet)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	if cfg.RequestTimeout > 0 {
		api.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	api.HandleFunc("/status", h.GetStatus).Methods(http.MethodGet)
	api.HandleFunc("/historical", h.GetHistorical).Methods(http.MethodGet)
	api.HandleFunc("/visitor-averages", h.GetVisitorAverages).Methods(http.MethodGet)
	api.HandleFunc("/visitor-estimate", h.GetVisitorEstimate).Methods(http.MethodGet)
	api.HandleFunc("/predict-aji", h.PostPredict).Methods(http.MethodPost)

	if len(cfg.AllowedOrigins) == 0 {
		return router
	}
	return CORSMiddleware(cfg.AllowedOrigins)(router)
}
