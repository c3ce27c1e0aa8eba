package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/honmoku-catch-service/internal/accuracy"
	"github.com/kjstillabower/honmoku-catch-service/internal/analysis"
	"github.com/kjstillabower/honmoku-catch-service/internal/cache"
	"github.com/kjstillabower/honmoku-catch-service/internal/circuitbreaker"
	"github.com/kjstillabower/honmoku-catch-service/internal/estimator"
	"github.com/kjstillabower/honmoku-catch-service/internal/labels"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/observability"
	"github.com/kjstillabower/honmoku-catch-service/internal/predictor"
)

var (
	// ErrModelUnavailable is returned when no model can serve a prediction:
	// none configured, not trained yet, or its circuit breaker is open.
	ErrModelUnavailable = errors.New("prediction model unavailable")

	// ErrInvalidRequest is returned when a prediction request cannot be encoded.
	ErrInvalidRequest = errors.New("invalid prediction request")
)

// AveragesCacheKey is the cache key of the computed visitor averages.
const AveragesCacheKey = "visitor_averages"

// HistoricalMessage formats the success message of a historical lookup.
const HistoricalMessage = "過去データを正常に取得しました（%d件中%d件を表示）"

// Store is the read side of the record store used by the service.
type Store interface {
	Ping(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	QueryRecords(ctx context.Context, f models.HistoricalFilter) ([]models.CatchRecord, error)
	DailyVisitors(ctx context.Context) ([]models.DailyVisitors, error)
	ActualCatch(ctx context.Context, date time.Time, fish string) (*int, error)
	TrainingRows(ctx context.Context, fish string) ([]models.CatchRecord, error)
}

// Config holds the service tunables. Zero values get defaults.
type Config struct {
	AveragesTTL     time.Duration
	CoalesceTimeout time.Duration
	// Location is the facility timezone used to decide whether a date is past.
	Location   *time.Location
	TargetFish string
	Now        func() time.Time
	Logger     *zap.Logger
}

// CatchService serves historical records, visitor statistics and catch
// predictions. Visitor averages are computed from the store and kept in the
// cache; concurrent misses share one computation.
type CatchService struct {
	store     Store
	cache     cache.Cache
	coalescer *requestCoalescer[models.VisitorAverages]

	ttl    time.Duration
	loc    *time.Location
	fish   string
	now    func() time.Time
	logger *zap.Logger

	mu    sync.RWMutex
	model predictor.Model
}

// NewCatchService creates a CatchService. model may be nil; predictions then
// fail with ErrModelUnavailable until SetModel is called.
func NewCatchService(store Store, c cache.Cache, model predictor.Model, cfg Config) *CatchService {
	if cfg.AveragesTTL <= 0 {
		cfg.AveragesTTL = time.Hour
	}
	if cfg.CoalesceTimeout <= 0 {
		cfg.CoalesceTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.TargetFish == "" {
		cfg.TargetFish = "アジ"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &CatchService{
		store:     store,
		cache:     c,
		coalescer: newRequestCoalescer[models.VisitorAverages](cfg.CoalesceTimeout),
		ttl:       cfg.AveragesTTL,
		loc:       cfg.Location,
		fish:      cfg.TargetFish,
		now:       cfg.Now,
		logger:    cfg.Logger,
		model:     model,
	}
}

// SetModel replaces the model used for predictions.
func (s *CatchService) SetModel(m predictor.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = m
}

// Model returns the current model, nil when none is set.
func (s *CatchService) Model() predictor.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// TargetFish returns the species predictions are made for.
func (s *CatchService) TargetFish() string { return s.fish }

func (s *CatchService) log(ctx context.Context) *zap.Logger {
	return observability.LoggerOr(ctx, s.logger)
}

// VisitorAverages returns the weather×weekday averages, from the cache when
// possible. Cache errors are logged and treated as misses. An empty store
// yields a payload with status "error" that is returned but not cached.
func (s *CatchService) VisitorAverages(ctx context.Context) (models.VisitorAverages, error) {
	logger := s.log(ctx)
	cached, ok, err := s.cache.Get(ctx, AveragesCacheKey)
	if err != nil {
		logger.Warn("cache get failed", zap.String("key", AveragesCacheKey), zap.Error(err))
	} else if ok {
		logger.Debug("visitor averages served", zap.Bool("cached", true))
		return cached, nil
	}

	avg, shared, err := s.coalescer.GetOrDo(ctx, AveragesCacheKey, s.computeAverages)
	if shared {
		observability.CoalescedRequestsTotal.Inc()
	}
	if err != nil {
		return models.VisitorAverages{}, fmt.Errorf("compute visitor averages: %w", err)
	}
	logger.Debug("visitor averages served", zap.Bool("cached", false), zap.Bool("shared", shared))
	return avg, nil
}

// RefreshVisitorAverages recomputes the averages and replaces the cached copy.
// A result without a usable table evicts the cached one instead.
func (s *CatchService) RefreshVisitorAverages(ctx context.Context) (models.VisitorAverages, error) {
	avg, err := s.computeAverages(ctx)
	if err != nil {
		return models.VisitorAverages{}, fmt.Errorf("compute visitor averages: %w", err)
	}
	if avg.Status != analysis.StatusSuccess {
		if err := s.Invalidate(ctx); err != nil {
			s.log(ctx).Warn("stale averages kept", zap.String("status", avg.Status), zap.Error(err))
		}
	}
	return avg, nil
}

func (s *CatchService) computeAverages(ctx context.Context) (models.VisitorAverages, error) {
	days, err := s.store.DailyVisitors(ctx)
	if err != nil {
		return models.VisitorAverages{}, err
	}
	avg := analysis.VisitorAverages(days, s.now())
	if avg.Status != analysis.StatusSuccess {
		return avg, nil
	}
	if err := s.cache.Set(ctx, AveragesCacheKey, avg, s.ttl); err != nil {
		s.log(ctx).Warn("cache set failed", zap.String("key", AveragesCacheKey), zap.Error(err))
	}
	return avg, nil
}

// Invalidate drops the cached averages so the next read recomputes them.
func (s *CatchService) Invalidate(ctx context.Context) error {
	if err := s.cache.Delete(ctx, AveragesCacheKey); err != nil {
		return fmt.Errorf("invalidate visitor averages: %w", err)
	}
	return nil
}

// Historical returns the newest q.Limit records matching q, with a summary
// over every matching record.
func (s *CatchService) Historical(ctx context.Context, q models.HistoricalQuery) (models.HistoricalResult, error) {
	total, err := s.store.Count(ctx)
	if err != nil {
		return models.HistoricalResult{}, fmt.Errorf("historical: %w", err)
	}
	records, err := s.store.QueryRecords(ctx, q.HistoricalFilter)
	if err != nil {
		return models.HistoricalResult{}, fmt.Errorf("historical: %w", err)
	}

	shown := records
	if q.Limit > 0 && len(shown) > q.Limit {
		shown = shown[:q.Limit]
	}
	out := make([]models.HistoricalRecord, 0, len(shown))
	for _, r := range shown {
		out = append(out, models.HistoricalRecord{Date: labels.FormatDate(r.Date), CatchRecord: r})
	}

	fish := q.Fish
	if fish == "" {
		fish = "all"
	}
	filters := models.HistoricalFilters{
		Fish:    fish,
		Weather: q.Weather,
		Tide:    q.Tide,
		Limit:   q.Limit,
	}
	if !q.Start.IsZero() {
		filters.StartDate = labels.FormatDate(q.Start)
	}
	if !q.End.IsZero() {
		filters.EndDate = labels.FormatDate(q.End)
	}

	s.log(ctx).Debug("historical records served",
		zap.Int("matched", len(records)),
		zap.Int("returned", len(out)),
		zap.Int("total", total),
	)
	return models.HistoricalResult{
		Success: true,
		Message: fmt.Sprintf(HistoricalMessage, len(records), len(out)),
		Data: models.HistoricalData{
			Records:       out,
			TotalCount:    len(records),
			ReturnedCount: len(out),
		},
		Summary: analysis.Summarize(records, total),
		Filters: filters,
	}, nil
}

// EstimateVisitors estimates the head count for date and a weather label
// from the current averages. It never fails: when the averages cannot be
// loaded the estimator falls back to its fixed defaults.
func (s *CatchService) EstimateVisitors(ctx context.Context, date, weather string) estimator.Estimate {
	var table *models.VisitorAverageTable
	avg, err := s.VisitorAverages(ctx)
	switch {
	case err != nil:
		s.log(ctx).Warn("visitor averages unavailable, using defaults", zap.Error(err))
	case avg.Status == analysis.StatusSuccess:
		table = avg.Table()
	}
	est := estimator.Explain(date, weather, table)
	observability.VisitorEstimatesTotal.WithLabelValues(est.Source).Inc()
	return est
}

// PredictEstimatingVisitors predicts with the visitor count estimated from
// the averages table instead of taken from req.
func (s *CatchService) PredictEstimatingVisitors(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error) {
	est := s.EstimateVisitors(ctx, req.Date, req.Weather)
	req.Visitors = est.Visitors
	res, err := s.Predict(ctx, req)
	if err != nil {
		return nil, err
	}
	res.VisitorsEstimated = true
	return res, nil
}

// Predict runs the model for req. For a date before today in the facility
// timezone the recorded catch is looked up and graded; a failed lookup is
// logged and reported as missing rather than failing the prediction.
func (s *CatchService) Predict(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error) {
	logger := s.log(ctx)
	model := s.Model()
	if model == nil || !model.Ready() {
		return nil, ErrModelUnavailable
	}
	f, err := predictor.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	raw, err := model.Predict(ctx, f)
	if err != nil {
		if errors.Is(err, predictor.ErrNotReady) || errors.Is(err, circuitbreaker.ErrOpen) {
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		return nil, fmt.Errorf("predict: %w", err)
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return nil, fmt.Errorf("predict: %w: non-finite output", predictor.ErrBadResponse)
	}
	predicted := int(math.Max(0, math.Round(raw)))

	res := &models.PredictionResult{
		CatchCount:       predicted,
		Confidence:       predictor.Confidence(f, raw),
		HistoricalStatus: models.HistoricalFuture,
		InputConditions:  req,
		ModelInfo:        model.Info(),
		Recommendations:  predictor.Recommendations(f, raw),
		PredictedAt:      s.now(),
	}

	date, _ := labels.ParseDate(req.Date)
	if date.Before(s.today()) {
		res.IsHistorical = true
		s.compareWithActual(ctx, logger, date, res)
	}

	observability.RecordPrediction(res)
	logger.Info("prediction served",
		zap.String("date", req.Date),
		zap.Int("catchCount", res.CatchCount),
		zap.String("confidence", string(res.Confidence)),
		zap.String("historical", res.HistoricalStatus),
	)
	return res, nil
}

func (s *CatchService) compareWithActual(ctx context.Context, logger *zap.Logger, date time.Time, res *models.PredictionResult) {
	res.HistoricalStatus = models.HistoricalMissing
	actual, err := s.store.ActualCatch(ctx, date, s.fish)
	if err != nil {
		logger.Warn("actual catch lookup failed", zap.Time("date", date), zap.Error(err))
		return
	}
	if actual == nil {
		return
	}
	metrics, err := accuracy.Grade(res.CatchCount, actual)
	if err != nil {
		logger.Warn("accuracy grading failed", zap.Int("actual", *actual), zap.Error(err))
		return
	}
	res.ActualCatch = actual
	res.AccuracyMetrics = metrics
	res.HistoricalStatus = models.HistoricalMatched
}

// today is midnight UTC of the current calendar day in the facility timezone,
// comparable with dates from labels.ParseDate.
func (s *CatchService) today() time.Time {
	y, m, d := s.now().In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Status reports the readiness of the model, the store and the averages.
func (s *CatchService) Status(ctx context.Context) models.SystemStatus {
	st := models.SystemStatus{
		Success: true,
		Status: models.ComponentStatus{
			API:             "running",
			Model:           "not_loaded",
			HistoricalData:  "available",
			VisitorAnalysis: "available",
		},
		Timestamp: s.now(),
	}
	if m := s.Model(); m != nil && m.Ready() {
		info := m.Info()
		st.Status.Model = "loaded"
		st.ModelInfo = &info
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		s.log(ctx).Warn("status: count records failed", zap.Error(err))
		st.Status.HistoricalData = "unavailable"
		st.Status.VisitorAnalysis = "unavailable"
		return st
	}
	st.Records = n
	if n == 0 {
		st.Status.HistoricalData = "empty"
		st.Status.VisitorAnalysis = "unavailable"
	}
	return st
}

// Check probes the backends a prediction depends on. Used by the recovery
// loop after the service reported degraded.
func (s *CatchService) Check(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if m := s.Model(); m == nil || !m.Ready() {
		return ErrModelUnavailable
	}
	return nil
}

// Retrain refits the local model from the store. It is a no-op for models
// that are not trained locally.
func (s *CatchService) Retrain(ctx context.Context) error {
	lm, ok := s.Model().(*predictor.LinearModel)
	if !ok {
		s.log(ctx).Debug("retrain skipped: model is not trained locally")
		return nil
	}
	if _, err := predictor.TrainFromStore(ctx, s.store, lm, s.fish, s.log(ctx)); err != nil {
		return err
	}
	return nil
}
