package threshold

import "gonum.org/v1/gonum/stat"

// PercentileConfig derives limits from order statistics of the window
// (spec.md §4.4 "lower/upper are the k-th/100-k-th order statistics").
// LowerPercentile and UpperPercentile are each in [0, 100]; a nil pointer
// means that side is unbounded.
type PercentileConfig struct {
	LowerPercentile *float64 `json:"lower_percentile"`
	UpperPercentile *float64 `json:"upper_percentile"`
}

func (c PercentileConfig) Evaluate(in Inputs) (*Result, error) {
	if len(in.Window) < in.MinSampleSize {
		return insufficientSample(in), nil
	}

	sorted := sortedCopy(in.Window)
	baseline := stat.Mean(in.Window, nil)

	var lower, upper *float64
	if c.LowerPercentile != nil {
		v := stat.Quantile(*c.LowerPercentile/100, stat.Empirical, sorted, nil)
		lower = &v
	}
	if c.UpperPercentile != nil {
		v := stat.Quantile(*c.UpperPercentile/100, stat.Empirical, sorted, nil)
		upper = &v
	}

	return &Result{
		LowerLimit:     lower,
		UpperLimit:     upper,
		Baseline:       baseline,
		Classification: classify(in.Value, lower, upper),
	}, nil
}
