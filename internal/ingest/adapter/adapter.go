// Package adapter implements the pure-function mapping from one
// iteration's raw adapter-specific output bytes to a vector of
// (benchmark, measure, value) triples (spec.md §4.3 step 4).
package adapter

import "bencher/internal/apierrors"

// Measurement is one (benchmark, measure, value) triple parsed out of a
// single iteration's output.
type Measurement struct {
	Benchmark string
	Measure   string
	Value     float64
}

// Adapter turns one iteration's raw output into measurements. Parse
// errors must be apierrors.BadRequest (spec.md §4.3 "Adapter-parse
// errors are BadRequest with the offending line, not InternalError").
type Adapter interface {
	Parse(iteration []byte) ([]Measurement, error)
}

// Registry resolves an adapter tag (as carried on the submit_report
// payload) to an Adapter implementation.
var Registry = map[string]Adapter{
	"json":      JSONAdapter{},
	"magnitude": MagnitudeAdapter{},
}

// Lookup resolves tag via Registry, returning BadRequest for unknown tags
// (spec.md §4.3's adapter-tag dispatch; SPEC_FULL.md §4.3 "Unknown adapter
// tags are BadRequest").
func Lookup(tag string) (Adapter, error) {
	a, ok := Registry[tag]
	if !ok {
		return nil, apierrors.BadRequest("unknown adapter: %s", tag)
	}
	return a, nil
}
