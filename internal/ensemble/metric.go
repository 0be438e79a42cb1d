package ensemble

import (
	"fmt"
	"sort"
)

// MetricAccuracy is the default scoring and tuning metric.
const MetricAccuracy = "accuracy"

// MetricFunc computes a [0,1] score from ground-truth and predicted labels.
type MetricFunc func(yTrue, yPred []int) float64

var metricFuncs = map[string]MetricFunc{
	MetricAccuracy:    Accuracy,
	"precision_macro": PrecisionMacro,
	"recall_macro":    RecallMacro,
	"f1_macro":        F1Macro,
}

// MetricNames returns the supported metric names, sorted.
func MetricNames() []string {
	names := make([]string, 0, len(metricFuncs))
	for name := range metricFuncs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupMetrics(names []string) ([]MetricFunc, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("ensemble: no metrics requested")
	}
	fns := make([]MetricFunc, len(names))
	for i, name := range names {
		fn, ok := metricFuncs[name]
		if !ok {
			return nil, fmt.Errorf("ensemble: unknown metric %q (supported: %v)", name, MetricNames())
		}
		fns[i] = fn
	}
	return fns, nil
}

// Accuracy is the fraction of rows predicted correctly.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// PrecisionMacro averages per-class precision over the classes present in
// the ground truth. Classes the model never predicts contribute 0.
func PrecisionMacro(yTrue, yPred []int) float64 {
	return macroAverage(yTrue, yPred, func(tp, fp, fn float64) float64 {
		if tp+fp == 0 {
			return 0
		}
		return tp / (tp + fp)
	})
}

// RecallMacro averages per-class recall over the classes present in the
// ground truth.
func RecallMacro(yTrue, yPred []int) float64 {
	return macroAverage(yTrue, yPred, func(tp, fp, fn float64) float64 {
		if tp+fn == 0 {
			return 0
		}
		return tp / (tp + fn)
	})
}

// F1Macro averages the per-class harmonic mean of precision and recall.
func F1Macro(yTrue, yPred []int) float64 {
	return macroAverage(yTrue, yPred, func(tp, fp, fn float64) float64 {
		if 2*tp+fp+fn == 0 {
			return 0
		}
		return 2 * tp / (2*tp + fp + fn)
	})
}

func macroAverage(yTrue, yPred []int, perClass func(tp, fp, fn float64) float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	classes := make(map[int]struct{})
	for _, c := range yTrue {
		classes[c] = struct{}{}
	}
	var sum float64
	for class := range classes {
		var tp, fp, fn float64
		for i := range yTrue {
			switch {
			case yTrue[i] == class && yPred[i] == class:
				tp++
			case yTrue[i] != class && yPred[i] == class:
				fp++
			case yTrue[i] == class && yPred[i] != class:
				fn++
			}
		}
		sum += perClass(tp, fp, fn)
	}
	return sum / float64(len(classes))
}
