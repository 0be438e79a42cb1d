// Package dataset provides the tabular data model shared by the ensemble
// engine: a rectangular feature matrix, an aligned categorical label vector,
// and the seeded splitting/resampling primitives (train/test split,
// stratified k-fold, bootstrap) that the tuner, scorer and uncertainty
// estimators are built on.
//
// Every transform in this package returns fresh slices; callers' inputs are
// never mutated.
package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Matrix is a rectangular numeric feature matrix: rows are samples,
// columns are features.
type Matrix [][]float64

// Rows returns the number of samples.
func (m Matrix) Rows() int { return len(m) }

// Cols returns the number of features, or 0 for an empty matrix.
func (m Matrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Clone returns a deep copy of the matrix.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// CloneLabels returns a copy of a label vector.
func CloneLabels(y []int) []int {
	return append([]int(nil), y...)
}

// Validate checks that X is rectangular and finite and that y is aligned
// 1:1 with its rows. It is called eagerly at the start of every public
// engine operation.
func Validate(x Matrix, y []int) error {
	if len(x) == 0 {
		return fmt.Errorf("dataset: empty feature matrix")
	}
	if len(x) != len(y) {
		return fmt.Errorf("dataset: %d rows but %d labels", len(x), len(y))
	}
	cols := len(x[0])
	if cols == 0 {
		return fmt.Errorf("dataset: rows have no features")
	}
	for i, row := range x {
		if len(row) != cols {
			return fmt.Errorf("dataset: row %d has %d features, expected %d", i, len(row), cols)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("dataset: row %d feature %d is not finite", i, j)
			}
		}
	}
	return nil
}

// ClassCounts returns the number of samples per class label.
func ClassCounts(y []int) map[int]int {
	counts := make(map[int]int)
	for _, label := range y {
		counts[label]++
	}
	return counts
}

// Classes returns the sorted set of distinct labels in y.
func Classes(y []int) []int {
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

// Select gathers the rows of x at the given indices into a new matrix.
func Select(x Matrix, idx []int) Matrix {
	out := make(Matrix, len(idx))
	for i, j := range idx {
		out[i] = append([]float64(nil), x[j]...)
	}
	return out
}

// SelectLabels gathers the labels at the given indices.
func SelectLabels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

// TrainTestSplit shuffles the rows with the given seed and splits them into
// train and test partitions. testFrac must be in (0, 1).
func TrainTestSplit(x Matrix, y []int, testFrac float64, seed int64) (Matrix, []int, Matrix, []int, error) {
	if err := Validate(x, y); err != nil {
		return nil, nil, nil, nil, err
	}
	if testFrac <= 0 || testFrac >= 1 {
		return nil, nil, nil, nil, fmt.Errorf("dataset: test fraction must be in (0,1), got %f", testFrac)
	}

	idx := rand.New(rand.NewSource(seed)).Perm(len(x))
	nTest := int(math.Round(float64(len(x)) * testFrac))
	if nTest == 0 {
		nTest = 1
	}
	if nTest == len(x) {
		nTest = len(x) - 1
	}

	testIdx := idx[:nTest]
	trainIdx := idx[nTest:]
	return Select(x, trainIdx), SelectLabels(y, trainIdx), Select(x, testIdx), SelectLabels(y, testIdx), nil
}
