package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency. Watch for: p95/p99 increases on /api/predict-aji.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Predictions served by confidence label.
	PredictionsTotal *prometheus.CounterVec

	// Historical comparisons by outcome (future, matched, missing).
	HistoricalLookupsTotal *prometheus.CounterVec

	// Accuracy grades of past-date predictions. Watch for: poor share creeping up after a retrain.
	AccuracyGradesTotal *prometheus.CounterVec

	// Absolute error percent of past-date predictions.
	PredictionErrorPercent prometheus.Histogram

	// Visitor estimates by fallback level (exact, weather_match, default).
	// Watch for: default share rising = averages table not loading.
	VisitorEstimatesTotal *prometheus.CounterVec

	// Remote inference calls by status.
	InferenceCallsTotal *prometheus.CounterVec

	// Remote inference latency.
	InferenceDuration *prometheus.HistogramVec

	// Retry attempts against the inference service. Watch for: high retries = unstable upstream.
	InferenceRetriesTotal prometheus.Counter

	// Circuit breaker state per breaker: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Cache hits and misses per cache. Hit rate = hits/(hits+misses).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend errors by operation. Errors are treated as misses.
	CacheErrorsTotal *prometheus.CounterVec

	// Requests that joined an in-flight averages computation instead of starting one.
	CoalescedRequestsTotal prometheus.Counter

	// Cache warming runs, failures and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// CSV rows imported by result (upserted, skipped).
	ImportRowsTotal *prometheus.CounterVec

	// Model trainings by status, and the rows the current model was trained on.
	ModelTrainingsTotal *prometheus.CounterVec
	ModelTrainingRows   prometheus.Gauge

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter

	// In-flight requests when shutdown started.
	ShutdownInFlightRequests prometheus.Gauge

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictionsTotal",
			Help: "Catch predictions served by confidence",
		},
		[]string{"confidence"},
	)
	HistoricalLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "historicalLookupsTotal",
			Help: "Prediction historical comparisons by outcome",
		},
		[]string{"status"},
	)
	AccuracyGradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accuracyGradesTotal",
			Help: "Accuracy grades of predictions for past dates",
		},
		[]string{"grade"},
	)
	PredictionErrorPercent = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "predictionErrorPercent",
			Help:    "Absolute prediction error percent against the recorded catch",
			Buckets: []float64{5, 10, 20, 30, 45, 60, 100, 200},
		},
	)
	VisitorEstimatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitorEstimatesTotal",
			Help: "Visitor estimates by fallback level",
		},
		[]string{"source"},
	)
	InferenceCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inferenceCallsTotal",
			Help: "Remote inference calls by status",
		},
		[]string{"status"},
	)
	InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inferenceDurationSeconds",
			Help:    "Remote inference latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"status"},
	)
	InferenceRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inferenceRetriesTotal",
			Help: "Retry attempts for remote inference calls",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"name"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Cache hits by cache type",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Cache misses by cache type",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation",
		},
		[]string{"cacheType", "op"},
	)
	CoalescedRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescedRequestsTotal",
			Help: "Requests that shared an in-flight computation",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs that failed",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5},
		},
	)
	ImportRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importRowsTotal",
			Help: "CSV rows imported by result",
		},
		[]string{"result"},
	)
	ModelTrainingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelTrainingsTotal",
			Help: "Model trainings by status",
		},
		[]string{"status"},
	)
	ModelTrainingRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelTrainingRows",
			Help: "Rows the current model was trained on",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	ShutdownInFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "Requests in flight when graceful shutdown began",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		PredictionsTotal, HistoricalLookupsTotal, AccuracyGradesTotal, PredictionErrorPercent,
		VisitorEstimatesTotal,
		InferenceCallsTotal, InferenceDuration, InferenceRetriesTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CoalescedRequestsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		ImportRowsTotal, ModelTrainingsTotal, ModelTrainingRows,
		RateLimitDeniedTotal, ShutdownInFlightRequests,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges over the traffic
// window. Call once from main after config load.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited routes in the sliding window",
				},
				func() float64 { return float64(traffic.Window(window).Requests()) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the sliding window",
				},
				func() float64 { return float64(traffic.Window(window).Denied) },
			),
		)
	})
}

// Circuit breaker state values for CircuitBreakerState.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(name, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(float64(toValue))
}

// RecordPrediction records one served prediction and its historical comparison.
func RecordPrediction(res *models.PredictionResult) {
	if res == nil {
		return
	}
	PredictionsTotal.WithLabelValues(string(res.Confidence)).Inc()
	if res.HistoricalStatus != "" {
		HistoricalLookupsTotal.WithLabelValues(res.HistoricalStatus).Inc()
	}
	if m := res.AccuracyMetrics; m != nil {
		AccuracyGradesTotal.WithLabelValues(string(m.Grade)).Inc()
		if m.ErrorPercent != nil {
			PredictionErrorPercent.Observe(*m.ErrorPercent)
		}
	}
}

// RecordShutdownInFlight records how many requests were in flight at shutdown.
func RecordShutdownInFlight(n int64) {
	ShutdownInFlightRequests.Set(float64(n))
}

// MetricsHandler serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
