package apiclient

import (
	"context"
	"errors"
	"sync"

	"github.com/kjstillabower/honmoku-catch-service/internal/estimator"
	"github.com/kjstillabower/honmoku-catch-service/internal/models"
	"github.com/kjstillabower/honmoku-catch-service/internal/validation"
)

// ErrSuperseded is returned to a caller whose request was overtaken by a
// newer one of the same kind. Its response, if any, is discarded.
var ErrSuperseded = errors.New("superseded by a newer request")

// API is the part of Client a Session drives.
type API interface {
	FetchVisitorAverages(ctx context.Context) (*models.VisitorAverageTable, error)
	SubmitPrediction(ctx context.Context, in validation.PredictionInput) (models.PredictionResult, error)
}

// slot tracks the newest request of one kind.
type slot struct {
	seq    uint64
	cancel context.CancelFunc
}

// Session keeps the latest averages table and prediction for one user. Each
// refresh or prediction gets a sequence number; starting one cancels the
// previous request of the same kind, and a response is applied only while
// its sequence number is still the newest.
type Session struct {
	api API

	mu         sync.Mutex
	seq        uint64
	averages   slot
	predict    slot
	table      *models.VisitorAverageTable
	prediction *models.PredictionResult
}

// NewSession returns an empty session over api.
func NewSession(api API) *Session {
	return &Session{api: api}
}

func (s *Session) begin(ctx context.Context, sl *slot) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl.cancel != nil {
		sl.cancel()
	}
	s.seq++
	ctx, cancel := context.WithCancel(ctx)
	*sl = slot{seq: s.seq, cancel: cancel}
	return ctx, s.seq
}

// finish reports whether seq is still the newest for sl and releases its
// context. Callers hold s.mu.
func (s *Session) finish(sl *slot, seq uint64) bool {
	if sl.seq != seq {
		return false
	}
	sl.cancel()
	sl.cancel = nil
	return true
}

// RefreshAverages fetches the averages table and stores it unless a newer
// refresh started meanwhile.
func (s *Session) RefreshAverages(ctx context.Context) (*models.VisitorAverageTable, error) {
	ctx, seq := s.begin(ctx, &s.averages)
	table, err := s.api.FetchVisitorAverages(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finish(&s.averages, seq) {
		return nil, ErrSuperseded
	}
	if err != nil {
		return nil, err
	}
	s.table = table
	return table, nil
}

// Predict submits in and stores the result unless a newer prediction started
// meanwhile.
func (s *Session) Predict(ctx context.Context, in validation.PredictionInput) (models.PredictionResult, error) {
	ctx, seq := s.begin(ctx, &s.predict)
	res, err := s.api.SubmitPrediction(ctx, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finish(&s.predict, seq) {
		return models.PredictionResult{}, ErrSuperseded
	}
	if err != nil {
		return models.PredictionResult{}, err
	}
	s.prediction = &res
	return res, nil
}

// Table returns the last applied averages table, or nil.
func (s *Session) Table() *models.VisitorAverageTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table
}

// Prediction returns the last applied prediction.
func (s *Session) Prediction() (models.PredictionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prediction == nil {
		return models.PredictionResult{}, false
	}
	return *s.prediction, true
}

// EstimateVisitors estimates locally from the current table. Without a table
// the per-weather defaults apply.
func (s *Session) EstimateVisitors(date, weather string) estimator.Estimate {
	return estimator.Explain(date, weather, s.Table())
}
