package ensemble

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ilyacartwright/iljicevs-ml/internal/dataset"
	"github.com/ilyacartwright/iljicevs-ml/internal/estimator"
)

// WeightTolerance is the floating tolerance within which ensemble weights
// and probability vectors must sum to 1.
const WeightTolerance = 1e-6

// Member is one selected candidate inside an ensemble: the fitted copy of
// its estimator and its normalized weight.
type Member struct {
	ID        string
	Weight    float64
	Estimator estimator.Estimator
}

// Ensemble combines the fitted selected candidates with accuracy-derived
// weights. After a successful Fit the state is immutable except through an
// explicit refit; prediction paths only read.
type Ensemble struct {
	members []Member
	classes []int // canonical ordering: sorted union of member label sets
	fitted  bool
	obs     Observer
}

// NewEnsemble takes ownership of configured copies of the selected
// candidates. The registry keeps its own prototypes; the ensemble's copies
// carry the tuned parameters and the selection weights.
func NewEnsemble(reg *Registry, sel SelectionResult, obs Observer) (*Ensemble, error) {
	if len(sel.Entries) == 0 {
		return nil, fmt.Errorf("ensemble: selection is empty")
	}
	var weightSum float64
	members := make([]Member, len(sel.Entries))
	for i, entry := range sel.Entries {
		clone, err := reg.configuredClone(entry.CandidateID)
		if err != nil {
			return nil, err
		}
		members[i] = Member{ID: entry.CandidateID, Weight: entry.Weight, Estimator: clone}
		weightSum += entry.Weight
	}
	if math.Abs(weightSum-1) > WeightTolerance {
		return nil, fmt.Errorf("ensemble: selection weights sum to %g, expected 1", weightSum)
	}
	return &Ensemble{members: members, obs: orNop(obs)}, nil
}

// Members returns the member ids in rank order.
func (e *Ensemble) Members() []string {
	ids := make([]string, len(e.members))
	for i, m := range e.members {
		ids[i] = m.ID
	}
	return ids
}

// Weights returns the member weights in rank order.
func (e *Ensemble) Weights() []float64 {
	ws := make([]float64, len(e.members))
	for i, m := range e.members {
		ws[i] = m.Weight
	}
	return ws
}

// Classes returns the canonical class ordering, nil before Fit.
func (e *Ensemble) Classes() []int {
	return append([]int(nil), e.classes...)
}

// Fitted reports whether the ensemble holds a fitted state.
func (e *Ensemble) Fitted() bool { return e.fitted }

// Fit trains every member independently on the full training set. A member
// failure aborts the whole fit with a MemberFitError and leaves the
// previous state untouched; there are no partial ensembles. Calling Fit on
// a fitted ensemble is an explicit refit from fresh clones.
func (e *Ensemble) Fit(ctx context.Context, x dataset.Matrix, y []int) error {
	if err := dataset.Validate(x, y); err != nil {
		return err
	}
	start := time.Now()

	fitted := make([]estimator.Estimator, len(e.members))
	for i, m := range e.members {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ensemble: fit aborted: %w", err)
		}
		clone := m.Estimator.Clone()
		if err := clone.Fit(x, y); err != nil {
			return &MemberFitError{CandidateID: m.ID, Err: err}
		}
		fitted[i] = clone
	}

	classes, err := reconcileClasses(e.members, fitted)
	if err != nil {
		return err
	}

	for i := range e.members {
		e.members[i].Estimator = fitted[i]
	}
	e.classes = classes
	e.fitted = true
	e.obs.EnsembleFitDurationObserve(time.Since(start).Seconds())

	log.Info().
		Strs("members", e.Members()).
		Ints("classes", e.classes).
		Int("rows", len(x)).
		Msg("ensemble fitted")
	return nil
}

// reconcileClasses computes the canonical ordering as the sorted union of
// member label sets and rejects member sets with no common class.
func reconcileClasses(members []Member, fitted []estimator.Estimator) ([]int, error) {
	union := make(map[int]struct{})
	intersection := make(map[int]int)
	for _, est := range fitted {
		for _, c := range est.Classes() {
			union[c] = struct{}{}
			intersection[c]++
		}
	}
	if len(fitted) > 1 {
		common := false
		for _, n := range intersection {
			if n == len(fitted) {
				common = true
				break
			}
		}
		if !common {
			ids := make([]string, len(members))
			for i, m := range members {
				ids[i] = m.ID
			}
			return nil, &ClassMismatchError{Members: ids}
		}
	}
	classes := make([]int, 0, len(union))
	for c := range union {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes, nil
}

// PredictProba returns one probability vector per row over the canonical
// class ordering. Each member's vector is renormalized over its own known
// classes, zero-filled for classes it never saw, and folded in with its
// weight; since weights sum to 1 the combined vector does too.
func (e *Ensemble) PredictProba(x dataset.Matrix) ([][]float64, error) {
	if !e.fitted {
		return nil, fmt.Errorf("ensemble: predict called before fit")
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("ensemble: no rows to predict")
	}

	classIdx := make(map[int]int, len(e.classes))
	for i, c := range e.classes {
		classIdx[c] = i
	}

	combined := make([][]float64, len(x))
	for i := range combined {
		combined[i] = make([]float64, len(e.classes))
	}

	for _, m := range e.members {
		vectors, err := memberProbabilities(m.Estimator, x)
		if err != nil {
			return nil, fmt.Errorf("ensemble: member %q: %w", m.ID, err)
		}
		memberClasses := m.Estimator.Classes()
		for row, vec := range vectors {
			renormalize(vec)
			for j, c := range memberClasses {
				combined[row][classIdx[c]] += m.Weight * vec[j]
			}
		}
	}

	e.obs.EnsemblePredictionsInc()
	return combined, nil
}

// memberProbabilities uses predict_proba when the member supports it and
// falls back to a one-hot vector of the predicted label otherwise.
func memberProbabilities(est estimator.Estimator, x dataset.Matrix) ([][]float64, error) {
	if pe, ok := est.(estimator.ProbabilityEstimator); ok {
		vectors, err := pe.PredictProba(x)
		if err == nil {
			return vectors, nil
		}
		log.Warn().Err(err).Str("family", est.Name()).Msg("predict_proba failed, falling back to one-hot labels")
	}

	labels, err := est.Predict(x)
	if err != nil {
		return nil, err
	}
	classes := est.Classes()
	classIdx := make(map[int]int, len(classes))
	for i, c := range classes {
		classIdx[c] = i
	}
	vectors := make([][]float64, len(labels))
	for i, label := range labels {
		vec := make([]float64, len(classes))
		vec[classIdx[label]] = 1
		vectors[i] = vec
	}
	return vectors, nil
}

// renormalize scales a probability vector to sum to 1 over the member's
// known classes, spreading mass uniformly when the vector is degenerate.
func renormalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v
	}
	if sum <= 0 {
		for i := range vec {
			vec[i] = 1.0 / float64(len(vec))
		}
		return
	}
	if math.Abs(sum-1) > WeightTolerance {
		for i := range vec {
			vec[i] /= sum
		}
	}
}

// Predict returns the argmax class per row, ties broken by the lowest
// canonical label index.
func (e *Ensemble) Predict(x dataset.Matrix) ([]int, error) {
	proba, err := e.PredictProba(x)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(proba))
	for i, vec := range proba {
		best := 0
		for j, v := range vec {
			if v > vec[best] {
				best = j
			}
		}
		out[i] = e.classes[best]
	}
	return out, nil
}

// Score computes accuracy against ground-truth labels.
func (e *Ensemble) Score(x dataset.Matrix, y []int) (float64, error) {
	if err := dataset.Validate(x, y); err != nil {
		return 0, err
	}
	pred, err := e.Predict(x)
	if err != nil {
		return 0, err
	}
	return Accuracy(y, pred), nil
}

type ensembleBlob struct {
	Version int          `json:"version"`
	Classes []int        `json:"classes"`
	Members []memberBlob `json:"members"`
}

type memberBlob struct {
	ID     string  `json:"id"`
	Family string  `json:"family"`
	Weight float64 `json:"weight"`
	State  []byte  `json:"state"`
}

// Save serializes the fitted ensemble as an opaque blob. Every member must
// expose persistable state.
func (e *Ensemble) Save(w io.Writer) error {
	if !e.fitted {
		return fmt.Errorf("ensemble: save called before fit")
	}
	blob := ensembleBlob{Version: 1, Classes: e.classes, Members: make([]memberBlob, len(e.members))}
	for i, m := range e.members {
		pe, ok := m.Estimator.(estimator.PersistentEstimator)
		if !ok {
			return fmt.Errorf("ensemble: member %q (%s) does not support persistence", m.ID, m.Estimator.Name())
		}
		state, err := pe.MarshalBinary()
		if err != nil {
			return fmt.Errorf("ensemble: marshal member %q: %w", m.ID, err)
		}
		blob.Members[i] = memberBlob{ID: m.ID, Family: m.Estimator.Name(), Weight: m.Weight, State: state}
	}
	return json.NewEncoder(w).Encode(blob)
}

// LoadEnsemble reconstructs a fitted ensemble from a blob written by Save.
// The loaded state yields identical predictions to the pre-save state.
func LoadEnsemble(r io.Reader, obs Observer) (*Ensemble, error) {
	var blob ensembleBlob
	if err := json.NewDecoder(r).Decode(&blob); err != nil {
		return nil, fmt.Errorf("ensemble: decode blob: %w", err)
	}
	if blob.Version != 1 {
		return nil, fmt.Errorf("ensemble: unsupported blob version %d", blob.Version)
	}
	if len(blob.Members) == 0 {
		return nil, fmt.Errorf("ensemble: blob has no members")
	}

	var weightSum float64
	members := make([]Member, len(blob.Members))
	for i, mb := range blob.Members {
		est, err := estimator.NewByName(mb.Family)
		if err != nil {
			return nil, err
		}
		pe, ok := est.(estimator.PersistentEstimator)
		if !ok {
			return nil, fmt.Errorf("ensemble: family %q cannot restore persisted state", mb.Family)
		}
		if err := pe.UnmarshalBinary(mb.State); err != nil {
			return nil, fmt.Errorf("ensemble: restore member %q: %w", mb.ID, err)
		}
		members[i] = Member{ID: mb.ID, Weight: mb.Weight, Estimator: est}
		weightSum += mb.Weight
	}
	if math.Abs(weightSum-1) > WeightTolerance {
		return nil, fmt.Errorf("ensemble: persisted weights sum to %g, expected 1", weightSum)
	}

	return &Ensemble{members: members, classes: blob.Classes, fitted: true, obs: orNop(obs)}, nil
}
