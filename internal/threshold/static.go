package threshold

// StaticConfig holds literal lower/upper limits (spec.md §4.4 "Static:
// limits supplied as literal numbers"). A nil pointer means that side is
// unbounded.
type StaticConfig struct {
	Lower *float64 `json:"lower"`
	Upper *float64 `json:"upper"`
}

// Evaluate never consults the window: a static model's limits never move.
func (c StaticConfig) Evaluate(in Inputs) (*Result, error) {
	return &Result{
		LowerLimit:     c.Lower,
		UpperLimit:     c.Upper,
		Baseline:       in.Value,
		Classification: classify(in.Value, c.Lower, c.Upper),
	}, nil
}
