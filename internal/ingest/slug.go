package ingest

import (
	"regexp"
	"strings"
)

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// slugify derives a URL-safe slug from a resource name (spec.md §4.2
// "slug derivation from resource names"). No third-party slug library
// appears anywhere in the example pack; this is a handful of lines of
// regexp/strings, not a dependency-worthy concern, so it stays stdlib
// (see DESIGN.md).
func slugify(name string) string {
	s := strings.ToLower(name)
	s = slugNonAlnum.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "n"
	}
	return s
}
