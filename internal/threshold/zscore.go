package threshold

import "gonum.org/v1/gonum/stat"

// ZScoreConfig derives limits as mean ± m·stddev using the sample (N−1)
// standard deviation (spec.md §4.4). LowerMultiplier/UpperMultiplier may
// differ, or either may be nil to leave that side unbounded.
type ZScoreConfig struct {
	LowerMultiplier *float64 `json:"lower_multiplier"`
	UpperMultiplier *float64 `json:"upper_multiplier"`
}

func (c ZScoreConfig) Evaluate(in Inputs) (*Result, error) {
	if len(in.Window) < in.MinSampleSize {
		return insufficientSample(in), nil
	}

	mean := stat.Mean(in.Window, nil)
	stddev := stat.StdDev(in.Window, nil)

	var lower, upper *float64
	if c.LowerMultiplier != nil {
		v := mean - (*c.LowerMultiplier)*stddev
		lower = &v
	}
	if c.UpperMultiplier != nil {
		v := mean + (*c.UpperMultiplier)*stddev
		upper = &v
	}

	return &Result{
		LowerLimit:     lower,
		UpperLimit:     upper,
		Baseline:       mean,
		Classification: classify(in.Value, lower, upper),
	}, nil
}
