package ensemble

import (
	"context"
	"testing"

	"github.com/ilyacartwright/iljicevs-ml/internal/dataset"
)

func TestConfidenceBracketsPointEstimate(t *testing.T) {
	x, y := dataset.Synthetic(100, 4, 2, 23)
	ens := fittedRealEnsemble(t, x, y)

	ci, err := NewConfidenceEstimator(60, 0.05, 7, 2, MetricAccuracy, nil).Estimate(context.Background(), ens, x, y)
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	if ci.Lower > ci.Point || ci.Point > ci.Upper {
		t.Fatalf("interval [%v, %v] does not bracket point %v", ci.Lower, ci.Upper, ci.Point)
	}
	if ci.Metric != MetricAccuracy || ci.Alpha != 0.05 {
		t.Fatalf("result metadata = %+v", ci)
	}
	if ci.Resamples != 60 || ci.Requested != 60 || ci.Incomplete {
		t.Fatalf("result = %+v", ci)
	}
}

func TestConfidencePerfectPredictorDegenerateInterval(t *testing.T) {
	x, y := labelEncodedSet(40)
	ens := singleFakeEnsemble(t, thresholdFake(), x, y)

	ci, err := NewConfidenceEstimator(50, 0.05, 3, 2, MetricAccuracy, nil).Estimate(context.Background(), ens, x, y)
	if err != nil {
		t.Fatalf("estimate failed: %v", err)
	}
	// Every resample of a perfect predictor scores exactly 1.
	if ci.Point != 1 || ci.Lower != 1 || ci.Upper != 1 {
		t.Fatalf("interval = %+v, want degenerate at 1", ci)
	}
}

func TestConfidenceDeterministic(t *testing.T) {
	x, y := dataset.Synthetic(80, 3, 2, 29)
	ens := fittedRealEnsemble(t, x, y)

	a, err := NewConfidenceEstimator(40, 0.1, 5, 3, MetricAccuracy, nil).Estimate(context.Background(), ens, x, y)
	if err != nil {
		t.Fatalf("first estimate failed: %v", err)
	}
	b, err := NewConfidenceEstimator(40, 0.1, 5, 1, MetricAccuracy, nil).Estimate(context.Background(), ens, x, y)
	if err != nil {
		t.Fatalf("second estimate failed: %v", err)
	}
	if a != b {
		t.Fatalf("same seed produced %+v and %+v", a, b)
	}
}

func TestConfidenceWiderAtSmallerAlpha(t *testing.T) {
	x, y := dataset.Synthetic(80, 3, 2, 31)
	ens := fittedRealEnsemble(t, x, y)

	narrow, err := NewConfidenceEstimator(80, 0.5, 5, 2, MetricAccuracy, nil).Estimate(context.Background(), ens, x, y)
	if err != nil {
		t.Fatalf("narrow estimate failed: %v", err)
	}
	wide, err := NewConfidenceEstimator(80, 0.05, 5, 2, MetricAccuracy, nil).Estimate(context.Background(), ens, x, y)
	if err != nil {
		t.Fatalf("wide estimate failed: %v", err)
	}
	if wide.Upper-wide.Lower < narrow.Upper-narrow.Lower {
		t.Fatalf("95%% interval [%v,%v] narrower than 50%% interval [%v,%v]",
			wide.Lower, wide.Upper, narrow.Lower, narrow.Upper)
	}
}

func TestConfidenceDefaults(t *testing.T) {
	est := NewConfidenceEstimator(0, 0, 1, 0, "", nil)
	if est.iterations != DefaultBootstrapIterations || est.alpha != DefaultAlpha || est.metric != MetricAccuracy {
		t.Fatalf("defaults = %+v", est)
	}
}

func TestConfidenceRequiresFittedEnsemble(t *testing.T) {
	x, y := labelEncodedSet(10)
	if _, err := NewConfidenceEstimator(10, 0.05, 1, 1, MetricAccuracy, nil).Estimate(context.Background(), nil, x, y); err == nil {
		t.Fatal("nil ensemble accepted")
	}
}

func TestConfidenceCancelledContext(t *testing.T) {
	x, y := labelEncodedSet(20)
	ens := singleFakeEnsemble(t, thresholdFake(), x, y)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewConfidenceEstimator(10, 0.05, 1, 1, MetricAccuracy, nil).Estimate(ctx, ens, x, y); err == nil {
		t.Fatal("expected error with zero completed resamples")
	}
}

func TestPercentileInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	cases := []struct {
		q    float64
		want float64
	}{
		{0, 1},
		{1, 4},
		{0.5, 2.5},
		{0.25, 1.75},
	}
	for _, tc := range cases {
		if got := percentile(sorted, tc.q); got != tc.want {
			t.Fatalf("percentile(%v) = %v, want %v", tc.q, got, tc.want)
		}
	}
	if got := percentile([]float64{7}, 0.5); got != 7 {
		t.Fatalf("single-element percentile = %v", got)
	}
}
