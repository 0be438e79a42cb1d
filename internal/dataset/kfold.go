package dataset

import (
	"fmt"
	"math/rand"
	"sort"
)

// Fold is one partition of a k-fold split: Test holds the held-out row
// indices, Train everything else.
type Fold struct {
	Train []int
	Test  []int
}

// StratifiedKFold splits row indices into k folds so that each fold
// preserves the global class ratio within one sample per class. Assignment
// is deterministic for a given seed: indices are grouped per class, shuffled
// with the seeded source, and dealt round-robin across folds.
//
// Callers are expected to have verified that every class has at least k
// members; a class with fewer simply leaves some folds without that class,
// which breaks stratification.
func StratifiedKFold(y []int, k int, seed int64) ([]Fold, error) {
	if k < 2 {
		return nil, fmt.Errorf("dataset: k must be at least 2, got %d", k)
	}
	if len(y) < k {
		return nil, fmt.Errorf("dataset: %d samples cannot fill %d folds", len(y), k)
	}

	byClass := make(map[int][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	labels := make([]int, 0, len(byClass))
	for label := range byClass {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	rng := rand.New(rand.NewSource(seed))
	assignment := make([]int, len(y)) // row index -> fold number
	for _, label := range labels {
		idx := append([]int(nil), byClass[label]...)
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		for pos, row := range idx {
			assignment[row] = pos % k
		}
	}

	folds := make([]Fold, k)
	for row, fold := range assignment {
		for f := range folds {
			if f == fold {
				folds[f].Test = append(folds[f].Test, row)
			} else {
				folds[f].Train = append(folds[f].Train, row)
			}
		}
	}
	return folds, nil
}
