package ensemble

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ilyacartwright/iljicevs-ml/internal/dataset"
	"github.com/ilyacartwright/iljicevs-ml/internal/estimator"
)

// TuningOutcome reports the grid search result for one candidate. An empty
// grid leaves BestParams nil and the candidate on its default
// configuration, which is not an error. Incomplete marks a search cut short
// by the caller's context; BestParams then holds the best configuration
// found so far.
type TuningOutcome struct {
	CandidateID string           `json:"candidate_id"`
	BestParams  estimator.Params `json:"best_params,omitempty"`
	Mean        float64          `json:"mean"`
	StdDev      float64          `json:"std_dev"`
	Evaluated   int              `json:"evaluated"`
	GridSize    int              `json:"grid_size"`
	Incomplete  bool             `json:"incomplete,omitempty"`
}

// Tuner searches each candidate's hyperparameter grid exhaustively,
// scoring every configuration with k-fold cross-validation on a single
// metric. Candidates are tuned concurrently across a bounded worker pool;
// the grid of one candidate is walked sequentially in its stable
// enumeration order so the first-encountered tie-break is reproducible.
type Tuner struct {
	folds   int
	seed    int64
	workers int
	metric  string
	obs     Observer
}

// NewTuner returns a tuner; folds <= 0 means DefaultFolds, workers <= 0
// one per CPU, empty metric name means accuracy.
func NewTuner(folds int, seed int64, workers int, metricName string, obs Observer) *Tuner {
	if folds <= 0 {
		folds = DefaultFolds
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if metricName == "" {
		metricName = MetricAccuracy
	}
	return &Tuner{folds: folds, seed: seed, workers: workers, metric: metricName, obs: orNop(obs)}
}

// TuneAll grid-searches every candidate with a non-empty grid and writes
// the winning configuration back into the registry. All validation happens
// before any candidate is touched. Cancelling the context stops the search;
// outcomes for interrupted candidates are tagged incomplete and carry the
// best configuration found up to that point.
func (t *Tuner) TuneAll(ctx context.Context, reg *Registry, x dataset.Matrix, y []int) ([]TuningOutcome, error) {
	if err := dataset.Validate(x, y); err != nil {
		return nil, err
	}
	fns, err := lookupMetrics([]string{t.metric})
	if err != nil {
		return nil, err
	}
	metricFn := fns[0]
	if reg.Len() == 0 {
		return nil, fmt.Errorf("ensemble: no candidates registered")
	}
	if err := checkClassSupport(y, t.folds, "hyperparameter tuning"); err != nil {
		return nil, err
	}

	ids := reg.IDs()
	// Grids are validated up front so a bad grid surfaces before any
	// candidate's tuned-parameter slot is written.
	for _, id := range ids {
		c, _ := reg.Candidate(id)
		for _, param := range c.Grid.ParamNames() {
			if len(c.Grid[param]) == 0 {
				return nil, &InvalidGridError{CandidateID: id, Param: param}
			}
		}
	}

	folds, err := dataset.StratifiedKFold(y, t.folds, t.seed)
	if err != nil {
		return nil, err
	}

	outcomes := make([]TuningOutcome, len(ids))
	var wg sync.WaitGroup
	sem := make(chan struct{}, t.workers)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = t.tuneCandidate(ctx, reg, id, x, y, folds, metricFn)
		}(i, id)
	}
	wg.Wait()
	return outcomes, nil
}

func (t *Tuner) tuneCandidate(ctx context.Context, reg *Registry, id string, x dataset.Matrix, y []int, folds []dataset.Fold, metricFn MetricFunc) TuningOutcome {
	c, _ := reg.Candidate(id)
	configs := enumerateGrid(c.Grid)
	outcome := TuningOutcome{CandidateID: id, GridSize: len(configs)}
	if len(configs) == 0 {
		return outcome
	}

	var best estimator.Params
	bestMean, bestStd := SentinelScore, 0.0
	for _, config := range configs {
		if ctx.Err() != nil {
			outcome.Incomplete = true
			break
		}
		mean, std, err := t.evaluateConfig(ctx, c.Estimator, config, x, y, folds, metricFn)
		if err != nil {
			log.Warn().Err(err).Str("candidate", id).Interface("params", config).Msg("grid configuration failed, skipping")
			continue
		}
		outcome.Evaluated++
		t.obs.TuningEvaluationsInc()
		// Higher mean wins; equal means fall to the lower deviation;
		// a full tie keeps the earlier configuration.
		if best == nil || mean > bestMean || (mean == bestMean && std < bestStd) {
			best, bestMean, bestStd = config, mean, std
		}
	}

	if best != nil {
		reg.setTunedParams(id, best)
		outcome.BestParams = best
		outcome.Mean = bestMean
		outcome.StdDev = bestStd
		log.Info().
			Str("candidate", id).
			Interface("params", best).
			Float64("mean", bestMean).
			Float64("std", bestStd).
			Int("evaluated", outcome.Evaluated).
			Bool("incomplete", outcome.Incomplete).
			Msg("candidate tuned")
	}
	return outcome
}

func (t *Tuner) evaluateConfig(ctx context.Context, base estimator.Estimator, config estimator.Params, x dataset.Matrix, y []int, folds []dataset.Fold, metricFn MetricFunc) (float64, float64, error) {
	scores := make([]float64, len(folds))
	for f, fold := range folds {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		clone, err := cloneForConfig(base, config)
		if err != nil {
			return 0, 0, err
		}
		if err := clone.Fit(dataset.Select(x, fold.Train), dataset.SelectLabels(y, fold.Train)); err != nil {
			return 0, 0, fmt.Errorf("fold %d fit: %w", f, err)
		}
		pred, err := clone.Predict(dataset.Select(x, fold.Test))
		if err != nil {
			return 0, 0, fmt.Errorf("fold %d predict: %w", f, err)
		}
		scores[f] = metricFn(dataset.SelectLabels(y, fold.Test), pred)
	}
	mean, std := meanStd(scores)
	return mean, std, nil
}

// enumerateGrid expands the Cartesian product of a grid. Parameter names
// are walked in sorted order and values in declaration order, so the
// product order is stable across runs.
func enumerateGrid(g estimator.Grid) []estimator.Params {
	names := g.ParamNames()
	if len(names) == 0 {
		return nil
	}
	total := 1
	for _, name := range names {
		total *= len(g[name])
	}
	out := make([]estimator.Params, 0, total)
	counters := make([]int, len(names))
	for {
		config := make(estimator.Params, len(names))
		for i, name := range names {
			config[name] = g[name][counters[i]]
		}
		out = append(out, config)

		pos := len(names) - 1
		for pos >= 0 {
			counters[pos]++
			if counters[pos] < len(g[names[pos]]) {
				break
			}
			counters[pos] = 0
			pos--
		}
		if pos < 0 {
			return out
		}
	}
}
