// Package ensemble implements the dynamic ensemble selection engine: a
// registry of candidate models, grid-search hyperparameter tuning,
// stratified cross-validated scoring, top-n selection with accuracy-derived
// weights, weighted probability aggregation over a canonical class
// ordering, and bootstrap-based stability and confidence-interval
// estimation for the fitted ensemble.
package ensemble

import (
	"fmt"
	"sync"

	"github.com/ilyacartwright/iljicevs-ml/internal/estimator"
)

// Candidate is one model in the pool: its capability handle, its search
// grid, and the parameters the tuner settled on (nil until tuned).
type Candidate struct {
	ID          string
	Estimator   estimator.Estimator
	Grid        estimator.Grid
	TunedParams estimator.Params
}

// Registry owns the candidate pool. Iteration order is registration order,
// which makes every downstream tie-break reproducible.
type Registry struct {
	mu         sync.RWMutex
	order      []string
	candidates map[string]*Candidate
}

// NewRegistry returns an empty candidate registry.
func NewRegistry() *Registry {
	return &Registry{candidates: make(map[string]*Candidate)}
}

// Register adds a candidate under a unique id. The registry keeps the
// estimator handle and grid as given; the grid may be empty, meaning the
// candidate is used with its default configuration.
func (r *Registry) Register(id string, est estimator.Estimator, grid estimator.Grid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.candidates[id]; dup {
		return &DuplicateIDError{ID: id}
	}
	r.candidates[id] = &Candidate{ID: id, Estimator: est, Grid: grid}
	r.order = append(r.order, id)
	return nil
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered candidates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Candidate returns a copy of the named candidate's descriptor.
func (r *Registry) Candidate(id string) (Candidate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.candidates[id]
	if !ok {
		return Candidate{}, false
	}
	out := *c
	out.TunedParams = c.TunedParams.Clone()
	return out, true
}

// TunedParams returns the tuned parameter set for a candidate, nil if the
// candidate has not been tuned.
func (r *Registry) TunedParams(id string) estimator.Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.candidates[id]; ok && c.TunedParams != nil {
		return c.TunedParams.Clone()
	}
	return nil
}

// setTunedParams is the registry's only write path after registration. Each
// candidate slot is independently owned, but the map itself is guarded so
// concurrent tuning workers stay race-free.
func (r *Registry) setTunedParams(id string, p estimator.Params) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.candidates[id]; ok {
		c.TunedParams = p.Clone()
	}
}

// configuredClone returns an unfitted copy of the candidate's estimator
// with its tuned parameters applied, falling back to defaults when the
// candidate was never tuned.
func (r *Registry) configuredClone(id string) (estimator.Estimator, error) {
	r.mu.RLock()
	c, ok := r.candidates[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ensemble: unknown candidate %q", id)
	}
	clone := c.Estimator.Clone()
	if c.TunedParams != nil {
		if err := clone.SetParams(c.TunedParams); err != nil {
			return nil, err
		}
	}
	return clone, nil
}
