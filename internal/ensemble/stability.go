package ensemble

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ilyacartwright/iljicevs-ml/internal/dataset"
)

// DefaultBootstrapIterations is the default resample count for both the
// stability and confidence-interval estimators.
const DefaultBootstrapIterations = 100

// StabilityResult reports how consistent ensemble predictions are under
// resampling of the input. Score is clamped to [0,1]; Incomplete marks a
// run cut short by the caller's context.
type StabilityResult struct {
	Score      float64 `json:"score"`
	Resamples  int     `json:"resamples"`
	Requested  int     `json:"requested"`
	Incomplete bool    `json:"incomplete,omitempty"`
}

// StabilityEstimator measures prediction volatility of a fitted ensemble.
// Each bootstrap resample is summarized by the ensemble's output on the
// resample's out-of-bag rows: the mean probability vector when
// UseProbabilities is set, the predicted-class frequency vector otherwise.
// The score is 1 minus the mean pairwise total-variation distance between
// summaries (1 minus the mean per-class variance for probability
// summaries).
type StabilityEstimator struct {
	iterations       int
	seed             int64
	workers          int
	useProbabilities bool
	obs              Observer
}

// NewStabilityEstimator returns an estimator; iterations <= 0 means
// DefaultBootstrapIterations, workers <= 0 one per CPU.
func NewStabilityEstimator(iterations int, seed int64, workers int, useProbabilities bool, obs Observer) *StabilityEstimator {
	if iterations <= 0 {
		iterations = DefaultBootstrapIterations
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &StabilityEstimator{
		iterations:       iterations,
		seed:             seed,
		workers:          workers,
		useProbabilities: useProbabilities,
		obs:              orNop(obs),
	}
}

// Estimate draws the configured number of bootstrap resamples of x and
// scores prediction consistency across them. Deterministic for a fixed
// seed. Cancelling the context returns the score over the resamples
// completed so far, tagged incomplete.
func (s *StabilityEstimator) Estimate(ctx context.Context, ens *Ensemble, x dataset.Matrix) (StabilityResult, error) {
	if ens == nil || !ens.Fitted() {
		return StabilityResult{}, fmt.Errorf("ensemble: stability requires a fitted ensemble")
	}
	if len(x) == 0 {
		return StabilityResult{}, &InsufficientSamplesError{Op: "stability estimation"}
	}

	resamples := dataset.Bootstrap(len(x), s.iterations, s.seed)
	summaries := make([][]float64, s.iterations)

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.workers)
	for i := range resamples {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			summary, err := s.summarize(ens, x, resamples[i])
			if err != nil {
				log.Warn().Err(err).Int("resample", i).Msg("stability resample failed")
				return
			}
			summaries[i] = summary
			s.obs.BootstrapResamplesInc()
		}(i)
	}
	wg.Wait()

	completed := make([][]float64, 0, len(summaries))
	for _, summary := range summaries {
		if summary != nil {
			completed = append(completed, summary)
		}
	}
	if len(completed) < 2 {
		return StabilityResult{}, fmt.Errorf("ensemble: stability needs at least 2 completed resamples, got %d", len(completed))
	}

	var score float64
	if s.useProbabilities {
		score = 1 - meanClassVariance(completed)
	} else {
		score = 1 - meanPairwiseDisagreement(completed)
	}
	score = clamp01(score)

	result := StabilityResult{
		Score:      score,
		Resamples:  len(completed),
		Requested:  s.iterations,
		Incomplete: len(completed) < s.iterations,
	}
	log.Info().
		Float64("score", result.Score).
		Int("resamples", result.Resamples).
		Bool("incomplete", result.Incomplete).
		Msg("stability estimated")
	return result, nil
}

// summarize reduces one resample to a vector over the canonical classes.
// Resamples whose out-of-bag set is empty fall back to the drawn rows.
func (s *StabilityEstimator) summarize(ens *Ensemble, x dataset.Matrix, rs dataset.Resample) ([]float64, error) {
	rows := rs.OutOfBag
	if len(rows) == 0 {
		rows = rs.Indices
	}
	sample := dataset.Select(x, rows)

	if s.useProbabilities {
		proba, err := ens.PredictProba(sample)
		if err != nil {
			return nil, err
		}
		mean := make([]float64, len(ens.classes))
		for _, vec := range proba {
			for j, v := range vec {
				mean[j] += v
			}
		}
		for j := range mean {
			mean[j] /= float64(len(proba))
		}
		return mean, nil
	}

	pred, err := ens.Predict(sample)
	if err != nil {
		return nil, err
	}
	classIdx := make(map[int]int, len(ens.classes))
	for i, c := range ens.classes {
		classIdx[c] = i
	}
	freq := make([]float64, len(ens.classes))
	for _, label := range pred {
		freq[classIdx[label]] += 1.0 / float64(len(pred))
	}
	return freq, nil
}

// meanPairwiseDisagreement averages the total-variation distance over all
// summary pairs; it lies in [0,1] because each summary sums to 1.
func meanPairwiseDisagreement(summaries [][]float64) float64 {
	var total float64
	pairs := 0
	for i := 0; i < len(summaries); i++ {
		for j := i + 1; j < len(summaries); j++ {
			var dist float64
			for k := range summaries[i] {
				dist += math.Abs(summaries[i][k] - summaries[j][k])
			}
			total += dist / 2
			pairs++
		}
	}
	return total / float64(pairs)
}

// meanClassVariance averages the per-class population variance across
// summaries.
func meanClassVariance(summaries [][]float64) float64 {
	classes := len(summaries[0])
	var total float64
	for k := 0; k < classes; k++ {
		values := make([]float64, len(summaries))
		for i, summary := range summaries {
			values[i] = summary[k]
		}
		_, std := meanStd(values)
		total += std * std
	}
	return total / float64(classes)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
