package ensemble

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ilyacartwright/iljicevs-ml/internal/dataset"
	"github.com/ilyacartwright/iljicevs-ml/internal/estimator"
)

func TestEnumerateGridOrder(t *testing.T) {
	g := estimator.Grid{
		"b": {10, 20},
		"a": {1, 2},
	}
	got := enumerateGrid(g)
	want := []estimator.Params{
		{"a": 1, "b": 10},
		{"a": 1, "b": 20},
		{"a": 2, "b": 10},
		{"a": 2, "b": 20},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("enumeration = %v, want %v", got, want)
	}

	if enumerateGrid(estimator.Grid{}) != nil {
		t.Fatal("empty grid should enumerate to nil")
	}
}

func TestTuneAllWritesBestParams(t *testing.T) {
	x, y := dataset.Synthetic(100, 4, 2, 1)
	reg := NewRegistry()
	grid := estimator.Grid{"neighbors": {3, 5, 7}}
	if err := reg.Register("knn", estimator.NewKNN(5), grid); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	outcomes, err := NewTuner(5, 42, 2, "accuracy", nil).TuneAll(context.Background(), reg, x, y)
	if err != nil {
		t.Fatalf("tune failed: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes", len(outcomes))
	}

	o := outcomes[0]
	if o.CandidateID != "knn" || o.GridSize != 3 || o.Evaluated != 3 || o.Incomplete {
		t.Fatalf("outcome = %+v", o)
	}
	if o.BestParams == nil {
		t.Fatal("no best params recorded")
	}
	if !reflect.DeepEqual(reg.TunedParams("knn"), o.BestParams) {
		t.Fatalf("registry params %v differ from outcome %v", reg.TunedParams("knn"), o.BestParams)
	}
	if o.Mean <= 0.5 {
		t.Fatalf("best mean %v implausibly low on separable data", o.Mean)
	}
}

func TestTuneAllSkipsFailingConfigs(t *testing.T) {
	x, y := dataset.Synthetic(40, 3, 2, 2)
	reg := NewRegistry()
	// 500 neighbors cannot be fitted on the fold sizes and must be skipped.
	grid := estimator.Grid{"neighbors": {3, 500}}
	if err := reg.Register("knn", estimator.NewKNN(3), grid); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	outcomes, err := NewTuner(4, 1, 1, "accuracy", nil).TuneAll(context.Background(), reg, x, y)
	if err != nil {
		t.Fatalf("tune failed: %v", err)
	}
	o := outcomes[0]
	if o.GridSize != 2 || o.Evaluated != 1 {
		t.Fatalf("outcome = %+v, want one evaluated of two", o)
	}
	if o.BestParams["neighbors"] != 3 {
		t.Fatalf("best params = %v", o.BestParams)
	}
}

func TestTuneAllEmptyGridLeavesDefaults(t *testing.T) {
	x, y := dataset.Synthetic(40, 3, 2, 3)
	reg := NewRegistry()
	if err := reg.Register("knn", estimator.NewKNN(3), nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	outcomes, err := NewTuner(4, 1, 1, "accuracy", nil).TuneAll(context.Background(), reg, x, y)
	if err != nil {
		t.Fatalf("tune failed: %v", err)
	}
	if outcomes[0].BestParams != nil || outcomes[0].GridSize != 0 {
		t.Fatalf("outcome = %+v, want untouched defaults", outcomes[0])
	}
	if reg.TunedParams("knn") != nil {
		t.Fatal("empty grid wrote tuned params")
	}
}

func TestTuneAllInvalidGrid(t *testing.T) {
	x, y := dataset.Synthetic(40, 3, 2, 4)
	reg := NewRegistry()
	if err := reg.Register("good", estimator.NewKNN(3), estimator.Grid{"neighbors": {3}}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := reg.Register("bad", estimator.NewKNN(3), estimator.Grid{"neighbors": {}}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err := NewTuner(4, 1, 1, "accuracy", nil).TuneAll(context.Background(), reg, x, y)
	var invalid *InvalidGridError
	if !errors.As(err, &invalid) {
		t.Fatalf("got %v, want InvalidGridError", err)
	}
	if invalid.CandidateID != "bad" || invalid.Param != "neighbors" {
		t.Fatalf("error detail = %+v", invalid)
	}
	// Eager validation: nothing was tuned, not even the good candidate.
	if reg.TunedParams("good") != nil {
		t.Fatal("tuning proceeded despite an invalid grid")
	}
}

func TestTuneAllDeterministicTieBreak(t *testing.T) {
	// Both neighbor counts see the same trivially separable folds, so the
	// means tie at 1.0 and the first enumerated configuration must win.
	x, y := labelEncodedSet(40)
	for i := range x {
		x[i] = []float64{x[i][0] * 10, 0}
	}
	reg := NewRegistry()
	if err := reg.Register("knn", estimator.NewKNN(3), estimator.Grid{"neighbors": {3, 5}}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	outcomes, err := NewTuner(4, 9, 1, "accuracy", nil).TuneAll(context.Background(), reg, x, y)
	if err != nil {
		t.Fatalf("tune failed: %v", err)
	}
	if outcomes[0].BestParams["neighbors"] != 3 {
		t.Fatalf("tie-break picked %v, want the first enumerated value", outcomes[0].BestParams)
	}
}

func TestTuneAllCancelledContext(t *testing.T) {
	x, y := dataset.Synthetic(60, 3, 2, 5)
	reg := NewRegistry()
	if err := reg.Register("knn", estimator.NewKNN(3), estimator.Grid{"neighbors": {3, 5, 7}}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcomes, err := NewTuner(3, 1, 1, "accuracy", nil).TuneAll(ctx, reg, x, y)
	if err != nil {
		t.Fatalf("tune failed: %v", err)
	}
	if !outcomes[0].Incomplete {
		t.Fatalf("outcome = %+v, want incomplete", outcomes[0])
	}
	if outcomes[0].Evaluated != 0 {
		t.Fatalf("evaluated %d configs under a cancelled context", outcomes[0].Evaluated)
	}
}

func TestTuneAllInsufficientClassSupport(t *testing.T) {
	x := make(dataset.Matrix, 10)
	y := make([]int, 10)
	for i := range x {
		x[i] = []float64{float64(i)}
		if i < 2 {
			y[i] = 1
		}
	}
	reg := NewRegistry()
	if err := reg.Register("knn", estimator.NewKNN(3), nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	_, err := NewTuner(5, 1, 1, "accuracy", nil).TuneAll(context.Background(), reg, x, y)
	var insufficient *InsufficientSamplesError
	if !errors.As(err, &insufficient) {
		t.Fatalf("got %v, want InsufficientSamplesError", err)
	}
}
