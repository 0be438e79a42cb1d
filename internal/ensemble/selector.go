package ensemble

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// SelectionEntry is one selected candidate with its primary-metric mean and
// derived weight.
type SelectionEntry struct {
	CandidateID string  `json:"candidate_id"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Weight      float64 `json:"weight"`
}

// SelectionResult is the ordered outcome of dynamic selection. Entries are
// ranked best-first and their weights are nonnegative and sum to 1.
type SelectionResult struct {
	PrimaryMetric string           `json:"primary_metric"`
	Entries       []SelectionEntry `json:"entries"`
}

// Select ranks candidates by primary-metric mean (descending), breaking
// ties by lower standard deviation and then by the order the records were
// scored in, which is registry order. The top n become the ensemble, each
// weighted proportionally to its mean score. Scores that can go negative
// are rescaled by subtracting the minimum selected score before
// normalization; if that leaves every raw weight at zero the weights fall
// back to uniform.
func Select(records []ScoreRecord, primaryMetric string, topN int) (SelectionResult, error) {
	if topN <= 0 {
		return SelectionResult{}, fmt.Errorf("ensemble: top_n must be positive, got %d", topN)
	}
	if primaryMetric == "" {
		primaryMetric = MetricAccuracy
	}

	primary := make([]ScoreRecord, 0, len(records))
	for _, rec := range records {
		if rec.Metric == primaryMetric {
			primary = append(primary, rec)
		}
	}
	if topN > len(primary) {
		return SelectionResult{}, &EmptySelectionError{TopN: topN, Scored: len(primary)}
	}

	ranked := append([]ScoreRecord(nil), primary...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Mean != ranked[j].Mean {
			return ranked[i].Mean > ranked[j].Mean
		}
		return ranked[i].StdDev < ranked[j].StdDev
	})
	selected := ranked[:topN]

	raw := make([]float64, topN)
	minScore := selected[0].Mean
	for i, rec := range selected {
		raw[i] = rec.Mean
		if rec.Mean < minScore {
			minScore = rec.Mean
		}
	}
	if minScore < 0 {
		for i := range raw {
			raw[i] -= minScore
		}
	}
	var sum float64
	for _, v := range raw {
		sum += v
	}
	if sum == 0 {
		for i := range raw {
			raw[i] = 1
		}
		sum = float64(topN)
	}

	result := SelectionResult{PrimaryMetric: primaryMetric, Entries: make([]SelectionEntry, topN)}
	for i, rec := range selected {
		result.Entries[i] = SelectionEntry{
			CandidateID: rec.CandidateID,
			Mean:        rec.Mean,
			StdDev:      rec.StdDev,
			Weight:      raw[i] / sum,
		}
	}

	log.Info().
		Str("metric", primaryMetric).
		Int("top_n", topN).
		Int("scored", len(primary)).
		Interface("selection", result.Entries).
		Msg("candidates selected")
	return result, nil
}
