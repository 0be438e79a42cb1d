// Package balance audits the class distribution of a training set and, when
// the imbalance ratio falls below a configurable threshold, rebalances it by
// synthesizing minority-class samples. Inputs are never mutated: the auditor
// always hands back fresh arrays.
package balance

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/ilyacartwright/iljicevs-ml/internal/dataset"
)

// DefaultThreshold is the imbalance ratio below which rebalancing kicks in.
const DefaultThreshold = 0.5

// EmptyLabelSetError reports an audit attempted on a zero-length label
// vector.
type EmptyLabelSetError struct{}

func (e *EmptyLabelSetError) Error() string {
	return "balance: label vector is empty"
}

// Report describes what the auditor saw and did.
type Report struct {
	Ratio       float64     `json:"ratio"`     // min class count / max class count
	Counts      map[int]int `json:"counts"`    // per-class counts before rebalancing
	Threshold   float64     `json:"threshold"` // ratio below which rebalancing triggers
	Rebalanced  bool        `json:"rebalanced"`
	Synthesized int         `json:"synthesized"` // rows added by oversampling
}

// Auditor checks label distributions and oversamples minority classes.
type Auditor struct {
	threshold float64
	seed      int64
}

// New returns an auditor with the given trigger threshold; a non-positive
// threshold falls back to DefaultThreshold.
func New(threshold float64, seed int64) *Auditor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Auditor{threshold: threshold, seed: seed}
}

// Audit computes per-class counts and the imbalance ratio. When the ratio is
// below the threshold it returns a rebalanced copy of the training pair with
// every class brought up to the majority count via synthetic interpolation;
// otherwise the returned arrays are plain copies of the inputs. The auditor
// must only ever see training data — held-out sets are scored as they are.
func (a *Auditor) Audit(x dataset.Matrix, y []int) (dataset.Matrix, []int, Report, error) {
	if len(y) == 0 {
		return nil, nil, Report{}, &EmptyLabelSetError{}
	}
	if err := dataset.Validate(x, y); err != nil {
		return nil, nil, Report{}, err
	}

	counts := dataset.ClassCounts(y)
	minCount, maxCount := -1, 0
	for _, c := range counts {
		if minCount < 0 || c < minCount {
			minCount = c
		}
		if c > maxCount {
			maxCount = c
		}
	}
	report := Report{
		Ratio:     float64(minCount) / float64(maxCount),
		Counts:    counts,
		Threshold: a.threshold,
	}

	outX := x.Clone()
	outY := dataset.CloneLabels(y)
	if report.Ratio >= a.threshold {
		return outX, outY, report, nil
	}

	report.Rebalanced = true
	rng := rand.New(rand.NewSource(a.seed))

	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	labels := make([]int, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	for _, label := range labels {
		members := byClass[label]
		for deficit := maxCount - len(members); deficit > 0; deficit-- {
			outX = append(outX, synthesize(x, members, rng))
			outY = append(outY, label)
			report.Synthesized++
		}
	}

	log.Info().
		Float64("ratio", report.Ratio).
		Float64("threshold", a.threshold).
		Int("synthesized", report.Synthesized).
		Msg("class imbalance detected, training set rebalanced")
	return outX, outY, report, nil
}

// synthesize interpolates a new sample between a random class member and a
// random other member of the same class. A singleton class can only be
// duplicated.
func synthesize(x dataset.Matrix, members []int, rng *rand.Rand) []float64 {
	a := x[members[rng.Intn(len(members))]]
	if len(members) == 1 {
		return append([]float64(nil), a...)
	}
	b := x[members[rng.Intn(len(members))]]
	u := rng.Float64()
	row := make([]float64, len(a))
	for j := range row {
		row[j] = a[j] + u*(b[j]-a[j])
	}
	return row
}

// String renders the report for logs.
func (r Report) String() string {
	action := "none"
	if r.Rebalanced {
		action = fmt.Sprintf("oversampled %d rows", r.Synthesized)
	}
	return fmt.Sprintf("ratio=%.3f threshold=%.3f action=%s", r.Ratio, r.Threshold, action)
}
