package ensemble

import "fmt"

// SentinelScore is recorded for a candidate that fails to fit or predict
// inside cross-validation. It is below every reachable value of the
// supported metrics, so a broken candidate ranks last instead of aborting
// the whole scoring pass.
const SentinelScore = -1.0

// DuplicateIDError reports a candidate id registered twice.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("ensemble: candidate %q is already registered", e.ID)
}

// InvalidGridError reports a hyperparameter grid with an empty value list.
type InvalidGridError struct {
	CandidateID string
	Param       string
}

func (e *InvalidGridError) Error() string {
	return fmt.Sprintf("ensemble: candidate %q grid parameter %q has no values", e.CandidateID, e.Param)
}

// InsufficientSamplesError reports too few samples for the requested fold
// or bootstrap configuration.
type InsufficientSamplesError struct {
	Op       string
	Class    int // meaningful when Count refers to one class
	Count    int
	Required int
}

func (e *InsufficientSamplesError) Error() string {
	if e.Required > 0 {
		return fmt.Sprintf("ensemble: %s needs at least %d samples per class, class %d has %d", e.Op, e.Required, e.Class, e.Count)
	}
	return fmt.Sprintf("ensemble: %s requires a non-empty sample set", e.Op)
}

// EmptySelectionError reports a top-n request that exceeds the number of
// scored candidates.
type EmptySelectionError struct {
	TopN   int
	Scored int
}

func (e *EmptySelectionError) Error() string {
	return fmt.Sprintf("ensemble: cannot select top %d from %d scored candidates", e.TopN, e.Scored)
}

// ClassMismatchError reports selected members whose label sets share no
// common class, so canonical reconciliation has no overlap to anchor on.
type ClassMismatchError struct {
	Members []string
}

func (e *ClassMismatchError) Error() string {
	return fmt.Sprintf("ensemble: members %v were fitted on disjoint class sets", e.Members)
}

// MemberFitError names the member whose fit failed and aborts the whole
// ensemble fit; a degraded member cannot be dropped without breaking the
// weight-sum invariant.
type MemberFitError struct {
	CandidateID string
	Err         error
}

func (e *MemberFitError) Error() string {
	return fmt.Sprintf("ensemble: member %q failed to fit: %v", e.CandidateID, e.Err)
}

func (e *MemberFitError) Unwrap() error { return e.Err }
