package dataset

import "math/rand"

// Synthetic generates a toy classification dataset: one Gaussian blob per
// class, centered on a per-class offset so the classes are separable but
// overlapping. Useful for the reference binary and for tests that need a
// learnable signal rather than noise.
func Synthetic(samples, features, classes int, seed int64) (Matrix, []int) {
	rng := rand.New(rand.NewSource(seed))
	x := make(Matrix, samples)
	y := make([]int, samples)
	for i := range x {
		class := i % classes
		row := make([]float64, features)
		for j := range row {
			center := float64(class) * 2.5
			if j%2 == 1 {
				center = -center
			}
			row[j] = center + rng.NormFloat64()
		}
		x[i] = row
		y[i] = class
	}
	return x, y
}
