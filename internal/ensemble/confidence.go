package ensemble

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ilyacartwright/iljicevs-ml/internal/dataset"
)

// DefaultAlpha is the default confidence level: a 95% interval.
const DefaultAlpha = 0.05

// ConfidenceInterval is the bootstrap estimate of a metric's uncertainty on
// a test set: the empirical [α/2, 1−α/2] percentiles around the full-set
// point estimate. Lower ≤ Point ≤ Upper always holds.
type ConfidenceInterval struct {
	Metric     string  `json:"metric"`
	Point      float64 `json:"point"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Alpha      float64 `json:"alpha"`
	Resamples  int     `json:"resamples"`
	Requested  int     `json:"requested"`
	Incomplete bool    `json:"incomplete,omitempty"`
}

// ConfidenceEstimator bootstraps test-set predictions of a fitted ensemble
// to produce percentile bounds on a metric. Resample index sets are drawn
// up front from a single seeded source, so the result is deterministic no
// matter how the workers interleave.
type ConfidenceEstimator struct {
	iterations int
	alpha      float64
	seed       int64
	workers    int
	metric     string
	obs        Observer
}

// NewConfidenceEstimator returns an estimator; iterations <= 0 means
// DefaultBootstrapIterations, alpha <= 0 means DefaultAlpha, empty metric
// name means accuracy, workers <= 0 one per CPU.
func NewConfidenceEstimator(iterations int, alpha float64, seed int64, workers int, metricName string, obs Observer) *ConfidenceEstimator {
	if iterations <= 0 {
		iterations = DefaultBootstrapIterations
	}
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}
	if metricName == "" {
		metricName = MetricAccuracy
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &ConfidenceEstimator{
		iterations: iterations,
		alpha:      alpha,
		seed:       seed,
		workers:    workers,
		metric:     metricName,
		obs:        orNop(obs),
	}
}

// Estimate computes the metric on the full test set and on each bootstrap
// resample of it, and reports the empirical percentile bounds. Cancelling
// the context yields bounds over the resamples completed so far, tagged
// incomplete.
func (c *ConfidenceEstimator) Estimate(ctx context.Context, ens *Ensemble, x dataset.Matrix, y []int) (ConfidenceInterval, error) {
	if ens == nil || !ens.Fitted() {
		return ConfidenceInterval{}, fmt.Errorf("ensemble: confidence interval requires a fitted ensemble")
	}
	if len(x) == 0 {
		return ConfidenceInterval{}, &InsufficientSamplesError{Op: "confidence interval estimation"}
	}
	if err := dataset.Validate(x, y); err != nil {
		return ConfidenceInterval{}, err
	}
	fns, err := lookupMetrics([]string{c.metric})
	if err != nil {
		return ConfidenceInterval{}, err
	}
	metricFn := fns[0]

	// Predictions are deterministic per row, so predict once and resample
	// the (truth, prediction) pairs instead of re-running the ensemble.
	pred, err := ens.Predict(x)
	if err != nil {
		return ConfidenceInterval{}, err
	}
	point := metricFn(y, pred)

	resamples := dataset.Bootstrap(len(x), c.iterations, c.seed)
	values := make([]float64, c.iterations)
	done := make([]bool, c.iterations)

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.workers)
	for i := range resamples {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			idx := resamples[i].Indices
			values[i] = metricFn(dataset.SelectLabels(y, idx), dataset.SelectLabels(pred, idx))
			done[i] = true
			c.obs.BootstrapResamplesInc()
		}(i)
	}
	wg.Wait()

	completed := make([]float64, 0, len(values))
	for i, ok := range done {
		if ok {
			completed = append(completed, values[i])
		}
	}
	if len(completed) < 2 {
		return ConfidenceInterval{}, fmt.Errorf("ensemble: confidence interval needs at least 2 completed resamples, got %d", len(completed))
	}

	sort.Float64s(completed)
	lower := percentile(completed, c.alpha/2)
	upper := percentile(completed, 1-c.alpha/2)
	// The interval must bracket the point estimate.
	lower = math.Min(lower, point)
	upper = math.Max(upper, point)

	result := ConfidenceInterval{
		Metric:     c.metric,
		Point:      point,
		Lower:      lower,
		Upper:      upper,
		Alpha:      c.alpha,
		Resamples:  len(completed),
		Requested:  c.iterations,
		Incomplete: len(completed) < c.iterations,
	}
	log.Info().
		Str("metric", result.Metric).
		Float64("point", result.Point).
		Float64("lower", result.Lower).
		Float64("upper", result.Upper).
		Bool("incomplete", result.Incomplete).
		Msg("confidence interval estimated")
	return result, nil
}

// percentile returns the q-th empirical quantile of sorted values with
// linear interpolation between adjacent order statistics.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
