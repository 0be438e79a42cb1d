package estimator

import (
	"math"
	"reflect"
	"testing"
)

// twoBlobs is a linearly separable two-class set.
func twoBlobs() (Matrix, []int) {
	x := Matrix{
		{0.0, 0.1}, {0.2, 0.0}, {0.1, 0.2}, {0.0, 0.3}, {0.3, 0.1},
		{5.0, 5.1}, {5.2, 5.0}, {5.1, 5.2}, {5.0, 5.3}, {5.3, 5.1},
	}
	y := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}
	return x, y
}

func TestGridParamNamesSorted(t *testing.T) {
	g := Grid{"zeta": {1}, "alpha": {2}, "mid": {3}}
	if got := g.ParamNames(); !reflect.DeepEqual(got, []string{"alpha", "mid", "zeta"}) {
		t.Fatalf("ParamNames = %v", got)
	}
}

func TestParamsCloneIndependent(t *testing.T) {
	p := Params{"neighbors": 5}
	c := p.Clone()
	c["neighbors"] = 9
	if p["neighbors"] != 5 {
		t.Fatal("clone aliases the original params")
	}
}

func TestNewByName(t *testing.T) {
	for _, family := range []string{"knn", "logistic", "gaussian_nb", "remote"} {
		est, err := NewByName(family)
		if err != nil {
			t.Fatalf("NewByName(%q) failed: %v", family, err)
		}
		if est.Name() != family {
			t.Fatalf("family %q reports name %q", family, est.Name())
		}
	}
	if _, err := NewByName("no-such-family"); err == nil {
		t.Fatal("expected error for unknown family")
	}
}

func TestEstimatorsLearnSeparableBlobs(t *testing.T) {
	x, y := twoBlobs()
	cases := []struct {
		name string
		est  Estimator
	}{
		{"knn", NewKNN(3)},
		{"logistic", NewLogistic(0.5, 300, 0)},
		{"gaussian_nb", NewGaussianNB(1e-9)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.est.Fit(x, y); err != nil {
				t.Fatalf("fit failed: %v", err)
			}
			if got := tc.est.Classes(); !reflect.DeepEqual(got, []int{0, 1}) {
				t.Fatalf("classes = %v", got)
			}
			pred, err := tc.est.Predict(Matrix{{0.1, 0.1}, {5.1, 5.1}})
			if err != nil {
				t.Fatalf("predict failed: %v", err)
			}
			if pred[0] != 0 || pred[1] != 1 {
				t.Fatalf("predictions = %v, want [0 1]", pred)
			}
		})
	}
}

func TestPredictBeforeFit(t *testing.T) {
	for _, est := range []Estimator{NewKNN(3), NewLogistic(0.1, 50, 0), NewGaussianNB(1e-9)} {
		if _, err := est.Predict(Matrix{{1, 2}}); err == nil {
			t.Fatalf("%s: expected error before fit", est.Name())
		}
	}
}

func TestProbabilityVectorsSumToOne(t *testing.T) {
	x, y := twoBlobs()
	for _, est := range []Estimator{NewKNN(3), NewLogistic(0.5, 300, 0), NewGaussianNB(1e-9)} {
		if err := est.Fit(x, y); err != nil {
			t.Fatalf("%s: fit failed: %v", est.Name(), err)
		}
		pe, ok := est.(ProbabilityEstimator)
		if !ok {
			t.Fatalf("%s does not expose probabilities", est.Name())
		}
		proba, err := pe.PredictProba(Matrix{{0.1, 0.2}, {4.9, 5.0}, {2.5, 2.5}})
		if err != nil {
			t.Fatalf("%s: predict_proba failed: %v", est.Name(), err)
		}
		for i, vec := range proba {
			var sum float64
			for _, v := range vec {
				sum += v
			}
			if math.Abs(sum-1) > 1e-6 {
				t.Fatalf("%s: row %d probabilities sum to %v", est.Name(), i, sum)
			}
		}
	}
}

func TestSetParamsRejectsUnknownNames(t *testing.T) {
	for _, est := range []Estimator{NewKNN(3), NewLogistic(0.1, 50, 0), NewGaussianNB(1e-9)} {
		if err := est.SetParams(Params{"bogus": 1}); err == nil {
			t.Fatalf("%s accepted an unknown parameter", est.Name())
		}
	}
}

func TestKNNSetParamsRounds(t *testing.T) {
	k := NewKNN(5)
	if err := k.SetParams(Params{"neighbors": 7.2}); err != nil {
		t.Fatalf("SetParams failed: %v", err)
	}
	if k.Params()["neighbors"] != 7 {
		t.Fatalf("neighbors = %v, want 7", k.Params()["neighbors"])
	}
	if err := k.SetParams(Params{"neighbors": 0}); err == nil {
		t.Fatal("expected error for neighbors < 1")
	}
}

func TestCloneIsUnfitted(t *testing.T) {
	x, y := twoBlobs()
	orig := NewKNN(3)
	if err := orig.Fit(x, y); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	clone := orig.Clone()
	if clone.Classes() != nil {
		t.Fatal("clone carries fitted state")
	}
	if clone.Params()["neighbors"] != 3 {
		t.Fatal("clone dropped hyperparameters")
	}
	// Fitting the clone must not disturb the original.
	if err := clone.Fit(x[:6], y[:6]); err != nil {
		t.Fatalf("clone fit failed: %v", err)
	}
	pred, err := orig.Predict(Matrix{{5.1, 5.1}})
	if err != nil || pred[0] != 1 {
		t.Fatalf("original degraded after clone fit: pred=%v err=%v", pred, err)
	}
}

func TestMarshalRoundTripPreservesPredictions(t *testing.T) {
	x, y := twoBlobs()
	probe := Matrix{{0.2, 0.2}, {5.0, 5.0}, {2.4, 2.6}}

	for _, family := range []string{"knn", "logistic", "gaussian_nb"} {
		est, err := NewByName(family)
		if err != nil {
			t.Fatalf("NewByName(%q): %v", family, err)
		}
		if err := est.Fit(x, y); err != nil {
			t.Fatalf("%s: fit failed: %v", family, err)
		}
		want, err := est.Predict(probe)
		if err != nil {
			t.Fatalf("%s: predict failed: %v", family, err)
		}

		blob, err := est.(PersistentEstimator).MarshalBinary()
		if err != nil {
			t.Fatalf("%s: marshal failed: %v", family, err)
		}
		restored, err := NewByName(family)
		if err != nil {
			t.Fatalf("NewByName(%q): %v", family, err)
		}
		if err := restored.(PersistentEstimator).UnmarshalBinary(blob); err != nil {
			t.Fatalf("%s: unmarshal failed: %v", family, err)
		}

		got, err := restored.Predict(probe)
		if err != nil {
			t.Fatalf("%s: restored predict failed: %v", family, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("%s: restored predictions %v differ from %v", family, got, want)
		}
	}
}

func TestKNNRejectsTooFewSamples(t *testing.T) {
	k := NewKNN(10)
	if err := k.Fit(Matrix{{1, 1}, {2, 2}}, []int{0, 1}); err == nil {
		t.Fatal("expected error when neighbors exceed training samples")
	}
}

func TestColumnMismatchRejected(t *testing.T) {
	x, y := twoBlobs()
	k := NewKNN(3)
	if err := k.Fit(x, y); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	if _, err := k.Predict(Matrix{{1, 2, 3}}); err == nil {
		t.Fatal("expected error for wrong feature count")
	}
}
