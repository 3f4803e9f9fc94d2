package threshold

import "gonum.org/v1/gonum/stat"

// IQRConfig derives limits as Q1 − m·IQR and Q3 + m·IQR (spec.md §4.4).
// LowerMultiplier/UpperMultiplier may differ, or either may be nil to
// leave that side unbounded.
type IQRConfig struct {
	LowerMultiplier *float64 `json:"lower_multiplier"`
	UpperMultiplier *float64 `json:"upper_multiplier"`
}

func (c IQRConfig) Evaluate(in Inputs) (*Result, error) {
	if len(in.Window) < in.MinSampleSize {
		return insufficientSample(in), nil
	}

	sorted := sortedCopy(in.Window)
	baseline := stat.Mean(in.Window, nil)
	q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	iqr := q3 - q1

	var lower, upper *float64
	if c.LowerMultiplier != nil {
		v := q1 - (*c.LowerMultiplier)*iqr
		lower = &v
	}
	if c.UpperMultiplier != nil {
		v := q3 + (*c.UpperMultiplier)*iqr
		upper = &v
	}

	return &Result{
		LowerLimit:     lower,
		UpperLimit:     upper,
		Baseline:       baseline,
		Classification: classify(in.Value, lower, upper),
	}, nil
}
