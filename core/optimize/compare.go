// Package optimize adapts the teacher's CPU-feature-gated comparison
// helper: probe for AVX2/NEON at init time and use the fastest
// practical comparison for the detected feature set. The teacher's
// originals (comparePathAVX2/comparePathNEON) were forward-declared
// assembly with no corresponding .s file in this repo or the rest of
// the pack, so they were never callable; the feature probe is kept
// (it is genuine and still useful to log/expose) but the compare
// itself now runs as a length-prechecked byte comparison rather than
// calling into assembly that doesn't exist.
package optimize

import "golang.org/x/sys/cpu"

var (
	hasAVX2 bool
	hasNEON bool
)

func init() {
	hasAVX2 = cpu.X86.HasAVX2
	hasNEON = cpu.ARM64.HasASIMD
}

// HasSIMD reports whether the running CPU advertises the wide-register
// feature this package would use, for callers that want to log or
// branch on it. No package in this module calls it.
func HasSIMD() bool { return hasAVX2 || hasNEON }

// FastEqual compares two strings with the same short-string
// fast-exit the teacher's ComparePathSIMD used, for the ETag/
// If-None-Match comparisons on the static responder's hot path.
func FastEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return a == b
}
