package estimator

import (
	"encoding/json"
	"fmt"
	"math"
)

const logisticName = "logistic"

func init() {
	RegisterFactory(logisticName, func() Estimator { return NewLogistic(0.1, 200, 0.001) })
}

// Logistic is a one-vs-rest logistic regression classifier trained by
// full-batch gradient descent from a zero initialization, which keeps fits
// fully deterministic. Hyperparameters: "learning_rate", "iterations", "l2".
type Logistic struct {
	learningRate float64
	iterations   int
	l2           float64

	weights [][]float64 // one weight vector per class, bias last
	classes []int
	cols    int
}

// NewLogistic returns an unfitted one-vs-rest logistic regression.
func NewLogistic(learningRate float64, iterations int, l2 float64) *Logistic {
	return &Logistic{learningRate: learningRate, iterations: iterations, l2: l2}
}

func (l *Logistic) Name() string { return logisticName }

func (l *Logistic) Params() Params {
	return Params{
		"learning_rate": l.learningRate,
		"iterations":    float64(l.iterations),
		"l2":            l.l2,
	}
}

func (l *Logistic) SetParams(p Params) error {
	for name, v := range p {
		switch name {
		case "learning_rate":
			if v <= 0 {
				return fmt.Errorf("logistic: learning_rate must be positive, got %v", v)
			}
			l.learningRate = v
		case "iterations":
			n := int(math.Round(v))
			if n < 1 {
				return fmt.Errorf("logistic: iterations must be >= 1, got %v", v)
			}
			l.iterations = n
		case "l2":
			if v < 0 {
				return fmt.Errorf("logistic: l2 must be non-negative, got %v", v)
			}
			l.l2 = v
		default:
			return fmt.Errorf("logistic: unknown parameter %q", name)
		}
	}
	return nil
}

func (l *Logistic) Clone() Estimator { return NewLogistic(l.learningRate, l.iterations, l.l2) }

func (l *Logistic) Classes() []int { return l.classes }

func (l *Logistic) Fit(x Matrix, y []int) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("logistic: need aligned non-empty training data, got %d rows and %d labels", len(x), len(y))
	}
	l.classes = sortedClasses(y)
	l.cols = len(x[0])
	l.weights = make([][]float64, len(l.classes))

	n := float64(len(x))
	for ci, class := range l.classes {
		w := make([]float64, l.cols+1) // bias last
		for iter := 0; iter < l.iterations; iter++ {
			grad := make([]float64, l.cols+1)
			for ri, row := range x {
				target := 0.0
				if y[ri] == class {
					target = 1.0
				}
				err := sigmoid(dotBias(w, row)) - target
				for j, v := range row {
					grad[j] += err * v
				}
				grad[l.cols] += err
			}
			for j := range w {
				step := grad[j] / n
				if j < l.cols {
					step += l.l2 * w[j]
				}
				w[j] -= l.learningRate * step
			}
		}
		l.weights[ci] = w
	}
	return nil
}

func (l *Logistic) Predict(x Matrix) ([]int, error) {
	proba, err := l.PredictProba(x)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		out[i] = l.classes[argmax(p)]
	}
	return out, nil
}

// PredictProba returns per-class sigmoid scores normalized to sum to 1.
func (l *Logistic) PredictProba(x Matrix) ([][]float64, error) {
	if err := checkFitted(l.classes, "logistic predict"); err != nil {
		return nil, err
	}
	if err := checkCols(x, l.cols, "logistic predict"); err != nil {
		return nil, err
	}

	out := make([][]float64, len(x))
	for i, row := range x {
		scores := make([]float64, len(l.classes))
		var sum float64
		for ci, w := range l.weights {
			scores[ci] = sigmoid(dotBias(w, row))
			sum += scores[ci]
		}
		if sum > 0 {
			for ci := range scores {
				scores[ci] /= sum
			}
		} else {
			for ci := range scores {
				scores[ci] = 1.0 / float64(len(scores))
			}
		}
		out[i] = scores
	}
	return out, nil
}

type logisticState struct {
	LearningRate float64     `json:"learning_rate"`
	Iterations   int         `json:"iterations"`
	L2           float64     `json:"l2"`
	Weights      [][]float64 `json:"weights"`
	Classes      []int       `json:"classes"`
	Cols         int         `json:"cols"`
}

func (l *Logistic) MarshalBinary() ([]byte, error) {
	return json.Marshal(logisticState{
		LearningRate: l.learningRate,
		Iterations:   l.iterations,
		L2:           l.l2,
		Weights:      l.weights,
		Classes:      l.classes,
		Cols:         l.cols,
	})
}

func (l *Logistic) UnmarshalBinary(data []byte) error {
	var st logisticState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("logistic: decode state: %w", err)
	}
	l.learningRate = st.LearningRate
	l.iterations = st.Iterations
	l.l2 = st.L2
	l.weights = st.Weights
	l.classes = st.Classes
	l.cols = st.Cols
	return nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func dotBias(w, row []float64) float64 {
	s := w[len(w)-1]
	for i, v := range row {
		s += w[i] * v
	}
	return s
}
