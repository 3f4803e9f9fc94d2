package model

import (
	"fmt"
	"strings"
)

// MaxResourceNameLength bounds a project/resource name before
// uniquification suffixing (I1).
const MaxResourceNameLength = 64

const truncationSuffix = "..."

// Uniquify implements I1: "A project has a unique name within its
// organization. Conflict is resolved by appending ' (N)' where N is the
// smallest integer producing uniqueness; names are truncated with '...'
// to fit the max length before suffixing."
//
// existing is the set of names already taken in the same scope (e.g. the
// same organization). Uniquify never mutates existing; callers re-check
// under the write mutex before insert to close the race, same as every
// other get_or_create_from_context flow in §4.2.
func Uniquify(name string, existing map[string]bool) string {
	base := truncateToFit(name, MaxResourceNameLength)
	if !existing[base] {
		return base
	}
	for n := 2; ; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		candidate := truncateToFit(name, MaxResourceNameLength-len(suffix)) + suffix
		if !existing[candidate] {
			return candidate
		}
	}
}

// truncateToFit returns name unchanged if it already fits within max
// runes; otherwise it truncates and appends "..." so the result is
// exactly max runes long, per I1's "truncated with '...' to fit the max
// length before suffixing".
func truncateToFit(name string, max int) string {
	runes := []rune(name)
	if len(runes) <= max {
		return name
	}
	if max <= len(truncationSuffix) {
		// Degenerate budget: just return as many literal runes as fit,
		// no room for the ellipsis.
		return string(runes[:max])
	}
	keep := max - len(truncationSuffix)
	return strings.TrimRight(string(runes[:keep]), " ") + truncationSuffix
}
