// Package threshold implements the statistical models from spec.md §4.4:
// each model kind derives a lower and/or upper limit from a rolling window
// of historical metrics, then classifies a new metric value against those
// limits.
package threshold

import (
	"encoding/json"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"bencher/internal/apierrors"
	"bencher/internal/model"
)

// Inputs bundles a model evaluation's parameters (spec.md §4.4: "window
// size, minimum sample size, the current metric value").
type Inputs struct {
	Window       []float64 // historical metric values, most-recent-last
	MinSampleSize int
	Value        float64
}

// Result is a model evaluation's output (spec.md §4.4).
type Result struct {
	LowerLimit     *float64
	UpperLimit     *float64
	Baseline       float64
	Classification model.BoundaryClassification
}

// Model evaluates Inputs into a Result for one threshold model kind.
type Model interface {
	Evaluate(in Inputs) (*Result, error)
}

// Decode parses a ThresholdModel's opaque ConfigJSON into a concrete Model
// implementation selected by its Kind.
func Decode(kind model.ThresholdModelKind, configJSON string) (Model, error) {
	switch kind {
	case model.ModelKindStatic:
		var cfg StaticConfig
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "decoding static model config")
		}
		return cfg, nil
	case model.ModelKindPercentile:
		var cfg PercentileConfig
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "decoding percentile model config")
		}
		return cfg, nil
	case model.ModelKindIQR:
		var cfg IQRConfig
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "decoding iqr model config")
		}
		return cfg, nil
	case model.ModelKindZScore:
		var cfg ZScoreConfig
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "decoding z-score model config")
		}
		return cfg, nil
	case model.ModelKindTTest:
		var cfg TTestConfig
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return nil, apierrors.Wrap(apierrors.KindInternal, err, "decoding t-test model config")
		}
		return cfg, nil
	default:
		return nil, apierrors.Internal(nil, "unknown threshold model kind "+string(kind))
	}
}

// classify applies the shared classification rule: a value below the
// lower limit or above the upper limit is out of bounds; nil limits never
// trigger a classification on that side.
func classify(value float64, lower, upper *float64) model.BoundaryClassification {
	if lower != nil && value < *lower {
		return model.BelowLower
	}
	if upper != nil && value > *upper {
		return model.AboveUpper
	}
	return model.WithinBounds
}

// sortedCopy returns a sorted copy of xs, leaving xs untouched.
func sortedCopy(xs []float64) []float64 {
	out := append([]float64(nil), xs...)
	sort.Float64s(out)
	return out
}

// insufficientSample builds the "no boundary produced" result spec.md
// §4.4 requires when the window is below MinSampleSize: WithinBounds,
// with the sample mean (or the value itself, for an empty window) as
// baseline and no limits.
func insufficientSample(in Inputs) *Result {
	baseline := in.Value
	if len(in.Window) > 0 {
		baseline = stat.Mean(in.Window, nil)
	}
	return &Result{Baseline: baseline, Classification: model.WithinBounds}
}

var studentsT = func(df float64) distuv.StudentsT {
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
}
