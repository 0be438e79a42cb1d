package estimator

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

const knnName = "knn"

func init() {
	RegisterFactory(knnName, func() Estimator { return NewKNN(5) })
}

// KNN is a k-nearest-neighbours classifier with Euclidean distance and
// uniform vote weighting. Hyperparameters: "neighbors".
type KNN struct {
	neighbors int

	trainX  Matrix
	trainY  []int
	classes []int
}

// NewKNN returns an unfitted kNN classifier with the given neighbour count.
func NewKNN(neighbors int) *KNN {
	return &KNN{neighbors: neighbors}
}

func (k *KNN) Name() string { return knnName }

func (k *KNN) Params() Params {
	return Params{"neighbors": float64(k.neighbors)}
}

func (k *KNN) SetParams(p Params) error {
	for name, v := range p {
		switch name {
		case "neighbors":
			n := int(math.Round(v))
			if n < 1 {
				return fmt.Errorf("knn: neighbors must be >= 1, got %v", v)
			}
			k.neighbors = n
		default:
			return fmt.Errorf("knn: unknown parameter %q", name)
		}
	}
	return nil
}

func (k *KNN) Clone() Estimator { return NewKNN(k.neighbors) }

func (k *KNN) Classes() []int { return k.classes }

func (k *KNN) Fit(x Matrix, y []int) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("knn: need aligned non-empty training data, got %d rows and %d labels", len(x), len(y))
	}
	if k.neighbors > len(x) {
		return fmt.Errorf("knn: %d neighbors exceeds %d training samples", k.neighbors, len(x))
	}
	k.trainX = make(Matrix, len(x))
	for i, row := range x {
		k.trainX[i] = append([]float64(nil), row...)
	}
	k.trainY = append([]int(nil), y...)
	k.classes = sortedClasses(y)
	return nil
}

func (k *KNN) Predict(x Matrix) ([]int, error) {
	proba, err := k.PredictProba(x)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		out[i] = k.classes[argmax(p)]
	}
	return out, nil
}

// PredictProba returns neighbour vote fractions per class.
func (k *KNN) PredictProba(x Matrix) ([][]float64, error) {
	if err := checkFitted(k.classes, "knn predict"); err != nil {
		return nil, err
	}
	if err := checkCols(x, len(k.trainX[0]), "knn predict"); err != nil {
		return nil, err
	}

	classIdx := make(map[int]int, len(k.classes))
	for i, c := range k.classes {
		classIdx[c] = i
	}

	out := make([][]float64, len(x))
	for i, row := range x {
		type neighbor struct {
			dist float64
			idx  int
		}
		dists := make([]neighbor, len(k.trainX))
		for j, train := range k.trainX {
			dists[j] = neighbor{dist: squaredDistance(row, train), idx: j}
		}
		// Stable ordering keeps equal-distance votes deterministic.
		sort.SliceStable(dists, func(a, b int) bool { return dists[a].dist < dists[b].dist })

		votes := make([]float64, len(k.classes))
		for _, n := range dists[:k.neighbors] {
			votes[classIdx[k.trainY[n.idx]]] += 1.0 / float64(k.neighbors)
		}
		out[i] = votes
	}
	return out, nil
}

type knnState struct {
	Neighbors int    `json:"neighbors"`
	TrainX    Matrix `json:"train_x"`
	TrainY    []int  `json:"train_y"`
	Classes   []int  `json:"classes"`
}

func (k *KNN) MarshalBinary() ([]byte, error) {
	return json.Marshal(knnState{Neighbors: k.neighbors, TrainX: k.trainX, TrainY: k.trainY, Classes: k.classes})
}

func (k *KNN) UnmarshalBinary(data []byte) error {
	var st knnState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("knn: decode state: %w", err)
	}
	k.neighbors = st.Neighbors
	k.trainX = st.TrainX
	k.trainY = st.TrainY
	k.classes = st.Classes
	return nil
}

func squaredDistance(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}
