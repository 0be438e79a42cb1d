// Package metrics provides Prometheus metrics collection for the ensemble
// engine. It defines and manages tuning, scoring, prediction, and bootstrap
// metrics that are exposed via the Prometheus metrics endpoint for
// monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ensemble engine.
// It provides counters and histograms covering hyperparameter tuning,
// cross-validation scoring, ensemble predictions, and bootstrap estimation.
type Metrics struct {
	// Tuning and scoring metrics
	TuningEvaluations prometheus.Counter   // Total grid configurations evaluated
	FoldScores        prometheus.Histogram // Distribution of per-fold metric scores
	CandidateFailures prometheus.Counter   // Candidates that failed during cross-validation

	// Ensemble metrics
	EnsemblePredictions prometheus.Counter   // Prediction calls served by the fitted ensemble
	EnsembleFitDuration prometheus.Histogram // Full-set ensemble fit duration in seconds

	// Bootstrap metrics
	BootstrapResamples prometheus.Counter // Bootstrap resamples completed

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
// This is the standard way to create metrics for production use.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		TuningEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "tuning_evaluations_total",
			Help: "Total number of hyperparameter grid configurations evaluated",
		}),
		FoldScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fold_scores",
			Help:    "Distribution of per-fold cross-validation scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		CandidateFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "candidate_failures_total",
			Help: "Total number of candidates that failed during cross-validation",
		}),
		EnsemblePredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ensemble_predictions_total",
			Help: "Total number of ensemble prediction calls",
		}),
		EnsembleFitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ensemble_fit_duration_seconds",
			Help:    "Duration of full-set ensemble fits in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		BootstrapResamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "bootstrap_resamples_total",
			Help: "Total number of bootstrap resamples completed",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// TuningEvaluationsInc records one evaluated grid configuration.
func (m *Metrics) TuningEvaluationsInc() { m.TuningEvaluations.Inc() }

// FoldScoreObserve records one per-fold cross-validation score.
func (m *Metrics) FoldScoreObserve(score float64) { m.FoldScores.Observe(score) }

// CandidateFailuresInc records a candidate failing during cross-validation.
func (m *Metrics) CandidateFailuresInc() { m.CandidateFailures.Inc() }

// EnsemblePredictionsInc records one ensemble prediction call.
func (m *Metrics) EnsemblePredictionsInc() { m.EnsemblePredictions.Inc() }

// EnsembleFitDurationObserve records the duration of a full-set fit.
func (m *Metrics) EnsembleFitDurationObserve(seconds float64) {
	m.EnsembleFitDuration.Observe(seconds)
}

// BootstrapResamplesInc records one completed bootstrap resample.
func (m *Metrics) BootstrapResamplesInc() { m.BootstrapResamples.Inc() }

// ErrorsInc records one error surfaced by the engine or its callers.
func (m *Metrics) ErrorsInc() { m.ErrorsTotal.Inc() }
