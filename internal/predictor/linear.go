package predictor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/kjstillabower/honmoku-catch-service/internal/models"
)

// ModelTypeRidge identifies the in-process model in ModelInfo.
const ModelTypeRidge = "ridge_regression"

// LinearConfig configures a LinearModel. Zero values get defaults.
type LinearConfig struct {
	// Lambda is the L2 penalty on standardised coefficients.
	Lambda float64
	// MinRows below which the baseline sample is used instead.
	MinRows int
	Now     func() time.Time
}

// LinearModel is a ridge regression over standardised features. Train swaps
// the fitted coefficients atomically; Predict never sees a partial fit.
type LinearModel struct {
	lambda  float64
	minRows int
	now     func() time.Time

	mu   sync.RWMutex
	fit  *ridgeFit
	info models.ModelInfo
}

type ridgeFit struct {
	intercept float64
	coef      []float64
	means     []float64
	scales    []float64
}

// NewLinearModel returns an untrained model.
func NewLinearModel(cfg LinearConfig) *LinearModel {
	if cfg.Lambda <= 0 {
		cfg.Lambda = 1.0
	}
	if cfg.MinRows <= 0 {
		cfg.MinRows = 30
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &LinearModel{lambda: cfg.Lambda, minRows: cfg.MinRows, now: cfg.Now}
}

// Train fits the model. With fewer than MinRows rows it fits the baseline
// sample and marks the model info accordingly.
func (m *LinearModel) Train(rows []TrainingRow) error {
	baseline := false
	if len(rows) < m.minRows {
		rows = BaselineRows()
		baseline = true
	}
	fit, err := fitRidge(rows, m.lambda)
	if err != nil {
		return err
	}
	info := models.ModelInfo{
		Type:         ModelTypeRidge,
		Features:     append([]string(nil), FeatureNames...),
		TrainedAt:    m.now().UTC(),
		TrainingRows: len(rows),
		Baseline:     baseline,
	}

	m.mu.Lock()
	m.fit = fit
	m.info = info
	m.mu.Unlock()
	return nil
}

// Predict returns the raw regression output.
func (m *LinearModel) Predict(ctx context.Context, f Features) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	fit := m.fit
	m.mu.RUnlock()
	if fit == nil {
		return 0, ErrNotReady
	}
	y := fit.intercept
	for j, x := range f.Vector() {
		y += fit.coef[j] * (x - fit.means[j]) / fit.scales[j]
	}
	return y, nil
}

// Ready reports whether Train has succeeded at least once.
func (m *LinearModel) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fit != nil
}

// Info describes the current fit.
func (m *LinearModel) Info() models.ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fit == nil {
		return models.ModelInfo{Type: ModelTypeRidge, Features: append([]string(nil), FeatureNames...)}
	}
	info := m.info
	info.Features = append([]string(nil), m.info.Features...)
	return info
}

// fitRidge solves (ZᵀZ + λI)β = Zᵀ(y − ȳ) where Z is the standardised
// design matrix. The intercept is the mean target.
func fitRidge(rows []TrainingRow, lambda float64) (*ridgeFit, error) {
	n, p := len(rows), len(FeatureNames)
	if n == 0 {
		return nil, errors.New("fit ridge: no rows")
	}

	raw := make([][]float64, n)
	y := make([]float64, n)
	for i, r := range rows {
		raw[i] = r.Features.Vector()
		y[i] = r.Catch
	}

	means := make([]float64, p)
	scales := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range raw {
			col[i] = raw[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if n < 2 || std == 0 || math.IsNaN(std) || math.IsInf(std, 0) {
			std = 1
		}
		means[j], scales[j] = mean, std
	}

	z := mat.NewDense(n, p, nil)
	for i := range raw {
		for j := 0; j < p; j++ {
			z.Set(i, j, (raw[i][j]-means[j])/scales[j])
		}
	}
	yMean := stat.Mean(y, nil)
	yc := mat.NewVecDense(n, nil)
	for i, v := range y {
		yc.SetVec(i, v-yMean)
	}

	var a mat.Dense
	a.Mul(z.T(), z)
	for j := 0; j < p; j++ {
		a.Set(j, j, a.At(j, j)+lambda)
	}
	var b mat.VecDense
	b.MulVec(z.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&a, &b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("fit ridge: %w", err)
		}
	}

	coef := make([]float64, p)
	for j := range coef {
		c := beta.AtVec(j)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, errors.New("fit ridge: non-finite coefficient")
		}
		coef[j] = c
	}
	return &ridgeFit{intercept: yMean, coef: coef, means: means, scales: scales}, nil
}
