package estimator

import (
	"encoding/json"
	"fmt"
	"math"
)

const gaussianNBName = "gaussian_nb"

func init() {
	RegisterFactory(gaussianNBName, func() Estimator { return NewGaussianNB(1e-9) })
}

// GaussianNB is a Gaussian naive Bayes classifier: per-class feature means
// and variances with a variance-smoothing floor. Hyperparameters:
// "var_smoothing".
type GaussianNB struct {
	varSmoothing float64

	classes  []int
	priors   []float64   // log prior per class
	means    [][]float64 // per class, per feature
	variance [][]float64
	cols     int
}

// NewGaussianNB returns an unfitted Gaussian naive Bayes classifier.
func NewGaussianNB(varSmoothing float64) *GaussianNB {
	return &GaussianNB{varSmoothing: varSmoothing}
}

func (g *GaussianNB) Name() string { return gaussianNBName }

func (g *GaussianNB) Params() Params {
	return Params{"var_smoothing": g.varSmoothing}
}

func (g *GaussianNB) SetParams(p Params) error {
	for name, v := range p {
		switch name {
		case "var_smoothing":
			if v <= 0 {
				return fmt.Errorf("gaussian_nb: var_smoothing must be positive, got %v", v)
			}
			g.varSmoothing = v
		default:
			return fmt.Errorf("gaussian_nb: unknown parameter %q", name)
		}
	}
	return nil
}

func (g *GaussianNB) Clone() Estimator { return NewGaussianNB(g.varSmoothing) }

func (g *GaussianNB) Classes() []int { return g.classes }

func (g *GaussianNB) Fit(x Matrix, y []int) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("gaussian_nb: need aligned non-empty training data, got %d rows and %d labels", len(x), len(y))
	}
	g.classes = sortedClasses(y)
	g.cols = len(x[0])
	g.priors = make([]float64, len(g.classes))
	g.means = make([][]float64, len(g.classes))
	g.variance = make([][]float64, len(g.classes))

	classIdx := make(map[int]int, len(g.classes))
	for i, c := range g.classes {
		classIdx[c] = i
	}

	counts := make([]float64, len(g.classes))
	for ci := range g.classes {
		g.means[ci] = make([]float64, g.cols)
		g.variance[ci] = make([]float64, g.cols)
	}
	for ri, row := range x {
		ci := classIdx[y[ri]]
		counts[ci]++
		for j, v := range row {
			g.means[ci][j] += v
		}
	}
	for ci := range g.classes {
		for j := range g.means[ci] {
			g.means[ci][j] /= counts[ci]
		}
	}
	for ri, row := range x {
		ci := classIdx[y[ri]]
		for j, v := range row {
			d := v - g.means[ci][j]
			g.variance[ci][j] += d * d
		}
	}

	// Smoothing floor is relative to the largest feature variance, the
	// usual Gaussian NB stabilization.
	var maxVar float64
	for ci := range g.classes {
		for j := range g.variance[ci] {
			g.variance[ci][j] /= counts[ci]
			if g.variance[ci][j] > maxVar {
				maxVar = g.variance[ci][j]
			}
		}
	}
	floor := g.varSmoothing * math.Max(maxVar, 1.0)
	for ci := range g.classes {
		for j := range g.variance[ci] {
			g.variance[ci][j] += floor
		}
		g.priors[ci] = math.Log(counts[ci] / float64(len(x)))
	}
	return nil
}

func (g *GaussianNB) Predict(x Matrix) ([]int, error) {
	proba, err := g.PredictProba(x)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, p := range proba {
		out[i] = g.classes[argmax(p)]
	}
	return out, nil
}

// PredictProba exponentiates the per-class joint log likelihood with the
// max-subtraction trick and normalizes.
func (g *GaussianNB) PredictProba(x Matrix) ([][]float64, error) {
	if err := checkFitted(g.classes, "gaussian_nb predict"); err != nil {
		return nil, err
	}
	if err := checkCols(x, g.cols, "gaussian_nb predict"); err != nil {
		return nil, err
	}

	out := make([][]float64, len(x))
	for i, row := range x {
		logp := make([]float64, len(g.classes))
		for ci := range g.classes {
			ll := g.priors[ci]
			for j, v := range row {
				variance := g.variance[ci][j]
				d := v - g.means[ci][j]
				ll += -0.5*math.Log(2*math.Pi*variance) - d*d/(2*variance)
			}
			logp[ci] = ll
		}
		maxLog := logp[argmax(logp)]
		var sum float64
		probs := make([]float64, len(logp))
		for ci, lp := range logp {
			probs[ci] = math.Exp(lp - maxLog)
			sum += probs[ci]
		}
		for ci := range probs {
			probs[ci] /= sum
		}
		out[i] = probs
	}
	return out, nil
}

type gaussianNBState struct {
	VarSmoothing float64     `json:"var_smoothing"`
	Classes      []int       `json:"classes"`
	Priors       []float64   `json:"priors"`
	Means        [][]float64 `json:"means"`
	Variance     [][]float64 `json:"variance"`
	Cols         int         `json:"cols"`
}

func (g *GaussianNB) MarshalBinary() ([]byte, error) {
	return json.Marshal(gaussianNBState{
		VarSmoothing: g.varSmoothing,
		Classes:      g.classes,
		Priors:       g.priors,
		Means:        g.means,
		Variance:     g.variance,
		Cols:         g.cols,
	})
}

func (g *GaussianNB) UnmarshalBinary(data []byte) error {
	var st gaussianNBState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("gaussian_nb: decode state: %w", err)
	}
	g.varSmoothing = st.VarSmoothing
	g.classes = st.Classes
	g.priors = st.Priors
	g.means = st.Means
	g.variance = st.Variance
	g.cols = st.Cols
	return nil
}
