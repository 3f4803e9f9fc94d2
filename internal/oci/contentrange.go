package oci

import (
	"github.com/alecthomas/participle/v2"

	"bencher/internal/apierrors"
)

// byteRange is the grammar for an upload PATCH's optional Content-Range
// header (spec.md §4.6, B3): an optional "bytes" unit, a start-end pair,
// and an optional "/total" suffix where total may be "*". Parsed with a
// tiny participle grammar (direct teacher dependency) rather than ad hoc
// string splitting, so malformed ranges fall out as parse errors — which
// this package maps to RangeNotSatisfiable instead of silently treating
// them as zero-valued.
type byteRange struct {
	Unit  string `parser:"(@Ident)?"`
	Start int64  `parser:"@Int \"-\""`
	End   int64  `parser:"@Int"`
	Total string `parser:"( \"/\" @(Int | \"*\") )?"`
}

var contentRangeParser = participle.MustBuild[byteRange]()

// ParseContentRange parses a Content-Range header value, returning the
// requested start and end offsets. An empty string is not valid input; callers
// should only invoke this when the header is present.
func ParseContentRange(header string) (start, end int64, err error) {
	parsed, perr := contentRangeParser.ParseString("", header)
	if perr != nil {
		return 0, 0, apierrors.New(apierrors.KindRangeNotSatisfiable, "malformed Content-Range header: "+header)
	}
	return parsed.Start, parsed.End, nil
}
