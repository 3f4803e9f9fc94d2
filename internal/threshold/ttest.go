package threshold

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// TTestSidedness selects which limit(s) a t-test model produces (spec.md
// §4.4 "one-sided or two-sided Student's t").
type TTestSidedness string

const (
	TTestLower    TTestSidedness = "lower"
	TTestUpper    TTestSidedness = "upper"
	TTestTwoSided TTestSidedness = "two_sided"
)

// TTestConfig derives limit(s) from the t-quantile at a configured
// confidence level against the window mean (spec.md §4.4).
type TTestConfig struct {
	Confidence float64        `json:"confidence"` // e.g. 0.95
	Sided      TTestSidedness `json:"sided"`
}

func (c TTestConfig) Evaluate(in Inputs) (*Result, error) {
	if len(in.Window) < in.MinSampleSize {
		return insufficientSample(in), nil
	}

	n := float64(len(in.Window))
	mean := stat.Mean(in.Window, nil)
	stddev := stat.StdDev(in.Window, nil)
	stderr := stddev / math.Sqrt(n)
	df := n - 1

	t := studentsT(df)

	var lower, upper *float64
	switch c.Sided {
	case TTestLower:
		v := mean - t.Quantile(c.Confidence)*stderr
		lower = &v
	case TTestUpper:
		v := mean + t.Quantile(c.Confidence)*stderr
		upper = &v
	default: // TTestTwoSided
		q := t.Quantile((1 + c.Confidence) / 2)
		lo := mean - q*stderr
		hi := mean + q*stderr
		lower, upper = &lo, &hi
	}

	return &Result{
		LowerLimit:     lower,
		UpperLimit:     upper,
		Baseline:       mean,
		Classification: classify(in.Value, lower, upper),
	}, nil
}
