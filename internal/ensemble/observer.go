package ensemble

// Observer receives engine events for instrumentation. Implemented by the
// metrics package; every engine component treats a nil Observer as a no-op
// so tests and library embedders can skip instrumentation entirely.
type Observer interface {
	TuningEvaluationsInc()
	FoldScoreObserve(float64)
	CandidateFailuresInc()
	EnsemblePredictionsInc()
	EnsembleFitDurationObserve(float64)
	BootstrapResamplesInc()
}

// nopObserver backs the nil-safety guarantee.
type nopObserver struct{}

func (nopObserver) TuningEvaluationsInc()              {}
func (nopObserver) FoldScoreObserve(float64)           {}
func (nopObserver) CandidateFailuresInc()              {}
func (nopObserver) EnsemblePredictionsInc()            {}
func (nopObserver) EnsembleFitDurationObserve(float64) {}
func (nopObserver) BootstrapResamplesInc()             {}

func orNop(obs Observer) Observer {
	if obs == nil {
		return nopObserver{}
	}
	return obs
}
