package ensemble

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ilyacartwright/iljicevs-ml/internal/dataset"
	"github.com/ilyacartwright/iljicevs-ml/internal/estimator"
)

// DefaultFolds is the default cross-validation fold count.
const DefaultFolds = 5

// ScoreRecord is the immutable outcome of cross-validating one candidate on
// one metric. Failed candidates carry SentinelScore and no fold scores.
type ScoreRecord struct {
	CandidateID string    `json:"candidate_id"`
	Metric      string    `json:"metric"`
	FoldScores  []float64 `json:"fold_scores,omitempty"`
	Mean        float64   `json:"mean"`
	StdDev      float64   `json:"std_dev"`
	Failed      bool      `json:"failed,omitempty"`
}

// Scorer evaluates every registered candidate under stratified k-fold
// cross-validation. Fold assignment is deterministic for a given seed, and
// records are emitted in registry order then metric order no matter how the
// per-candidate workers interleave.
type Scorer struct {
	folds   int
	seed    int64
	workers int
	obs     Observer
}

// NewScorer returns a scorer; folds <= 0 means DefaultFolds, workers <= 0
// means one worker per CPU.
func NewScorer(folds int, seed int64, workers int, obs Observer) *Scorer {
	if folds <= 0 {
		folds = DefaultFolds
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Scorer{folds: folds, seed: seed, workers: workers, obs: orNop(obs)}
}

// Score cross-validates each candidate with its tuned configuration against
// every requested metric. A candidate that fails to fit or predict on any
// fold is recorded with SentinelScore rather than aborting the pass.
func (s *Scorer) Score(ctx context.Context, reg *Registry, x dataset.Matrix, y []int, metricNames []string) ([]ScoreRecord, error) {
	if err := dataset.Validate(x, y); err != nil {
		return nil, err
	}
	fns, err := lookupMetrics(metricNames)
	if err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		return nil, fmt.Errorf("ensemble: no candidates registered")
	}
	if err := checkClassSupport(y, s.folds, "cross-validation"); err != nil {
		return nil, err
	}

	folds, err := dataset.StratifiedKFold(y, s.folds, s.seed)
	if err != nil {
		return nil, err
	}

	ids := reg.IDs()
	perCandidate := make([][]ScoreRecord, len(ids))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.workers)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			perCandidate[i] = s.scoreCandidate(ctx, reg, id, x, y, folds, metricNames, fns)
		}(i, id)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ensemble: scoring aborted: %w", err)
	}

	records := make([]ScoreRecord, 0, len(ids)*len(metricNames))
	for _, rs := range perCandidate {
		records = append(records, rs...)
	}
	return records, nil
}

func (s *Scorer) scoreCandidate(ctx context.Context, reg *Registry, id string, x dataset.Matrix, y []int, folds []dataset.Fold, metricNames []string, fns []MetricFunc) []ScoreRecord {
	foldScores, err := s.runFolds(ctx, reg, id, x, y, folds, fns)
	if err != nil {
		log.Warn().Err(err).Str("candidate", id).Msg("candidate failed during cross-validation, recording sentinel score")
		s.obs.CandidateFailuresInc()
		records := make([]ScoreRecord, len(metricNames))
		for m, name := range metricNames {
			records[m] = ScoreRecord{CandidateID: id, Metric: name, Mean: SentinelScore, Failed: true}
		}
		return records
	}

	records := make([]ScoreRecord, len(metricNames))
	for m, name := range metricNames {
		mean, std := meanStd(foldScores[m])
		records[m] = ScoreRecord{
			CandidateID: id,
			Metric:      name,
			FoldScores:  foldScores[m],
			Mean:        mean,
			StdDev:      std,
		}
		for _, v := range foldScores[m] {
			s.obs.FoldScoreObserve(v)
		}
	}
	return records
}

// runFolds fits a fold-local clone on each training partition and scores
// the held-out fold for every metric. Returns one score slice per metric.
func (s *Scorer) runFolds(ctx context.Context, reg *Registry, id string, x dataset.Matrix, y []int, folds []dataset.Fold, fns []MetricFunc) ([][]float64, error) {
	out := make([][]float64, len(fns))
	for m := range out {
		out[m] = make([]float64, len(folds))
	}
	for f, fold := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clone, err := reg.configuredClone(id)
		if err != nil {
			return nil, err
		}
		if err := clone.Fit(dataset.Select(x, fold.Train), dataset.SelectLabels(y, fold.Train)); err != nil {
			return nil, fmt.Errorf("fold %d fit: %w", f, err)
		}
		pred, err := clone.Predict(dataset.Select(x, fold.Test))
		if err != nil {
			return nil, fmt.Errorf("fold %d predict: %w", f, err)
		}
		truth := dataset.SelectLabels(y, fold.Test)
		for m, fn := range fns {
			out[m][f] = fn(truth, pred)
		}
	}
	return out, nil
}

// checkClassSupport verifies every class has at least k members so the
// stratified folds can preserve the class ratio.
func checkClassSupport(y []int, k int, op string) error {
	for class, count := range dataset.ClassCounts(y) {
		if count < k {
			return &InsufficientSamplesError{Op: op, Class: class, Count: count, Required: k}
		}
	}
	return nil
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}

// cloneForConfig builds an unfitted estimator carrying an explicit
// parameter set; the tuner uses it to evaluate grid points without touching
// the candidate's registered configuration.
func cloneForConfig(base estimator.Estimator, p estimator.Params) (estimator.Estimator, error) {
	clone := base.Clone()
	if p != nil {
		if err := clone.SetParams(p); err != nil {
			return nil, err
		}
	}
	return clone, nil
}
