package adapter

import (
	"encoding/json"

	"bencher/internal/apierrors"
)

// JSONAdapter parses a self-describing JSON array of
// {"benchmark":…, "measure":…, "value":…} objects, one per iteration.
type JSONAdapter struct{}

type jsonMeasurement struct {
	Benchmark string  `json:"benchmark"`
	Measure   string  `json:"measure"`
	Value     float64 `json:"value"`
}

func (JSONAdapter) Parse(iteration []byte) ([]Measurement, error) {
	var raw []jsonMeasurement
	if err := json.Unmarshal(iteration, &raw); err != nil {
		return nil, apierrors.Wrap(apierrors.KindBadRequest, err, "invalid json adapter output")
	}

	out := make([]Measurement, 0, len(raw))
	for i, m := range raw {
		if m.Benchmark == "" {
			return nil, apierrors.BadRequest("json adapter: entry %d missing benchmark", i)
		}
		if m.Measure == "" {
			return nil, apierrors.BadRequest("json adapter: entry %d missing measure", i)
		}
		out = append(out, Measurement{Benchmark: m.Benchmark, Measure: m.Measure, Value: m.Value})
	}
	return out, nil
}
