package zwint

import "regexp"

// compilePattern compiles a rule pattern against the canonical hex
// rendering (§9). The source language is POSIX extended, case
// insensitive (§6.1). Go's regexp.CompilePOSIX rejects the inline
// (?i) flag needed for case folding (POSIX ERE has no notion of
// inline flags), so patterns are compiled with the standard RE2
// engine under an injected case-insensitive group instead; RE2's
// syntax is a superset of POSIX ERE for every construct a hex-digit
// pattern can use (anchors, classes, alternation, repetition), so
// this preserves the documented matching behavior while adding the
// case-folding the spec requires.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}
