package dataset

import (
	"math/rand"
	"sort"
)

// Resample is one bootstrap draw: Indices are n rows sampled with
// replacement, OutOfBag the rows that were never drawn.
type Resample struct {
	Indices  []int
	OutOfBag []int
}

// Bootstrap draws b resamples of size n with replacement. Draws are
// deterministic for a given seed; resample i is identical across runs
// regardless of how many of the b resamples the caller ends up consuming.
func Bootstrap(n, b int, seed int64) []Resample {
	rng := rand.New(rand.NewSource(seed))
	out := make([]Resample, b)
	for i := range out {
		drawn := make(map[int]struct{}, n)
		idx := make([]int, n)
		for j := range idx {
			row := rng.Intn(n)
			idx[j] = row
			drawn[row] = struct{}{}
		}
		oob := make([]int, 0, n/3)
		for row := 0; row < n; row++ {
			if _, ok := drawn[row]; !ok {
				oob = append(oob, row)
			}
		}
		sort.Ints(idx)
		out[i] = Resample{Indices: idx, OutOfBag: oob}
	}
	return out
}
