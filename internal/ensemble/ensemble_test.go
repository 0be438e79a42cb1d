package ensemble

import (
	"context"
	"errors"
	"testing"

	"github.com/ilyacartwright/iljicevs-ml/internal/dataset"
	"github.com/ilyacartwright/iljicevs-ml/internal/estimator"
)

// fake is a deterministic rule-based test double. It deliberately does not
// implement PredictProba so the one-hot fallback path gets exercised. When
// fixedClasses is set, Fit reports that label set no matter what it saw,
// which lets tests build members with heterogeneous class views.
type fake struct {
	rule         func(row []float64) int
	failFit      bool
	fixedClasses []int

	classes []int
}

func (f *fake) Name() string                       { return "fake" }
func (f *fake) Params() estimator.Params           { return nil }
func (f *fake) SetParams(p estimator.Params) error { return nil }
func (f *fake) Classes() []int                     { return f.classes }

func (f *fake) Fit(x estimator.Matrix, y []int) error {
	if f.failFit {
		return errors.New("induced fit failure")
	}
	if f.fixedClasses != nil {
		f.classes = append([]int(nil), f.fixedClasses...)
		return nil
	}
	f.classes = dataset.Classes(y)
	return nil
}

func (f *fake) Predict(x estimator.Matrix) ([]int, error) {
	if len(f.classes) == 0 {
		return nil, errors.New("fake: predict before fit")
	}
	out := make([]int, len(x))
	for i, row := range x {
		out[i] = f.rule(row)
	}
	return out, nil
}

func (f *fake) Clone() estimator.Estimator {
	return &fake{rule: f.rule, failFit: f.failFit, fixedClasses: f.fixedClasses}
}

// constFake predicts one label for every row.
func constFake(label int, classes ...int) *fake {
	return &fake{rule: func([]float64) int { return label }, fixedClasses: classes}
}

// thresholdFake predicts 1 when the first feature exceeds 0.5, else 0. On
// data where feature 0 encodes the label it is a perfect classifier.
func thresholdFake() *fake {
	return &fake{rule: func(row []float64) int {
		if row[0] > 0.5 {
			return 1
		}
		return 0
	}}
}

// labelEncodedSet builds rows whose first feature is the label itself, so a
// thresholdFake scores perfectly on it.
func labelEncodedSet(n int) (dataset.Matrix, []int) {
	x := make(dataset.Matrix, n)
	y := make([]int, n)
	for i := range x {
		label := i % 2
		x[i] = []float64{float64(label), float64(i)}
		y[i] = label
	}
	return x, y
}

// singleFakeEnsemble fits a one-member ensemble around est, weight 1.
func singleFakeEnsemble(t *testing.T, est estimator.Estimator, x dataset.Matrix, y []int) *Ensemble {
	t.Helper()
	reg := NewRegistry()
	if err := reg.Register("only", est, nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	sel := SelectionResult{
		PrimaryMetric: MetricAccuracy,
		Entries:       []SelectionEntry{{CandidateID: "only", Mean: 1, Weight: 1}},
	}
	ens, err := NewEnsemble(reg, sel, nil)
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if err := ens.Fit(context.Background(), x, y); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	return ens
}
