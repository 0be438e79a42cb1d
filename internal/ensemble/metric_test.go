package ensemble

import (
	"math"
	"reflect"
	"testing"
)

func TestMetricNames(t *testing.T) {
	want := []string{"accuracy", "f1_macro", "precision_macro", "recall_macro"}
	if got := MetricNames(); !reflect.DeepEqual(got, want) {
		t.Fatalf("MetricNames = %v", got)
	}
}

func TestMetricsOnKnownConfusion(t *testing.T) {
	yTrue := []int{0, 0, 1, 1}
	yPred := []int{0, 1, 1, 1}

	cases := []struct {
		name string
		fn   MetricFunc
		want float64
	}{
		{"accuracy", Accuracy, 0.75},
		// class 0: precision 1, class 1: 2/3
		{"precision_macro", PrecisionMacro, (1.0 + 2.0/3.0) / 2},
		// class 0: recall 1/2, class 1: 1
		{"recall_macro", RecallMacro, (0.5 + 1.0) / 2},
		// class 0: f1 2/3, class 1: 4/5
		{"f1_macro", F1Macro, (2.0/3.0 + 0.8) / 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.fn(yTrue, yPred)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("%s = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestMetricsPerfectAndEmpty(t *testing.T) {
	y := []int{0, 1, 2}
	for name, fn := range metricFuncs {
		if got := fn(y, y); got != 1 {
			t.Fatalf("%s on perfect predictions = %v", name, got)
		}
		if got := fn(nil, nil); got != 0 {
			t.Fatalf("%s on empty input = %v", name, got)
		}
	}
}

func TestLookupMetrics(t *testing.T) {
	if _, err := lookupMetrics(nil); err == nil {
		t.Fatal("expected error for no metrics")
	}
	if _, err := lookupMetrics([]string{"accuracy", "nope"}); err == nil {
		t.Fatal("expected error for unknown metric")
	}
	fns, err := lookupMetrics([]string{"accuracy", "f1_macro"})
	if err != nil || len(fns) != 2 {
		t.Fatalf("lookup failed: fns=%d err=%v", len(fns), err)
	}
}
