// Package estimator defines the capability contract every ensemble candidate
// satisfies — fit, predict, optionally predict_proba — together with a small
// set of built-in learner families and an adapter for remote scoring
// services. The engine treats all of them uniformly through the Estimator
// interface; the underlying algorithm is invisible to it.
package estimator

import (
	"fmt"
	"sort"
)

// Params holds an estimator's hyperparameters as numeric values. Integer
// hyperparameters (neighbour counts, iteration budgets) are stored as
// float64 and rounded by the estimator that consumes them.
type Params map[string]float64

// Clone returns a copy of the parameter set.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Grid maps a hyperparameter name to the ordered list of values the tuner
// may try for it. The Cartesian product of all lists is the search space.
type Grid map[string][]float64

// ParamNames returns the grid's parameter names in lexicographic order.
// This is the enumeration order the tuner's first-encountered tie-break
// relies on, so it must be stable.
func (g Grid) ParamNames() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Estimator is the capability handle for a single candidate model.
// Implementations must be safe to Fit once and Predict from many
// goroutines afterwards.
type Estimator interface {
	// Name identifies the estimator family for logging and persistence.
	Name() string

	// Params returns the current hyperparameter set.
	Params() Params

	// SetParams replaces hyperparameters. Unknown names are an error so
	// that a mistyped grid fails loudly instead of tuning a no-op.
	SetParams(p Params) error

	// Fit trains on the given data. Labels are arbitrary ints; the
	// estimator records the distinct labels it saw.
	Fit(x Matrix, y []int) error

	// Predict returns one class label per input row. Requires a prior Fit.
	Predict(x Matrix) ([]int, error)

	// Classes returns the sorted distinct labels observed during Fit,
	// nil before fitting.
	Classes() []int

	// Clone returns an unfitted copy carrying the same hyperparameters.
	// The scorer uses clones so fold-local fits never touch the original.
	Clone() Estimator
}

// ProbabilityEstimator is implemented by estimators that can emit per-class
// probability vectors, aligned with Classes(). Members without it still
// participate in a weighted ensemble via one-hot vectors of their predicted
// label.
type ProbabilityEstimator interface {
	PredictProba(x Matrix) ([][]float64, error)
}

// PersistentEstimator is implemented by estimators whose fitted state can be
// captured as an opaque blob, enabling ensemble save/load.
type PersistentEstimator interface {
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(data []byte) error
}

// Matrix mirrors dataset.Matrix structurally so this package does not import
// the dataset package; the engine passes dataset matrices straight through.
type Matrix = [][]float64

var factories = map[string]func() Estimator{}

// RegisterFactory associates an estimator family name with a constructor.
// Called from init() in each estimator file; Decode uses it to rebuild
// members from serialized ensembles.
func RegisterFactory(name string, fn func() Estimator) {
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("estimator: duplicate factory %q", name))
	}
	factories[name] = fn
}

// NewByName constructs a fresh, unfitted estimator of the named family.
func NewByName(name string) (Estimator, error) {
	fn, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("estimator: unknown family %q", name)
	}
	return fn(), nil
}

func sortedClasses(y []int) []int {
	seen := make(map[int]struct{})
	for _, label := range y {
		seen[label] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for label := range seen {
		out = append(out, label)
	}
	sort.Ints(out)
	return out
}

func checkFitted(classes []int, op string) error {
	if len(classes) == 0 {
		return fmt.Errorf("estimator: %s called before Fit", op)
	}
	return nil
}

func checkCols(x Matrix, want int, op string) error {
	for i, row := range x {
		if len(row) != want {
			return fmt.Errorf("estimator: %s row %d has %d features, model was fitted on %d", op, i, len(row), want)
		}
	}
	return nil
}
