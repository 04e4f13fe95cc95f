// Package reconcile merges asset lists extracted from multiple pages of the
// same company into a single deduplicated set.
package reconcile

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// placeholderValues are sentinels meaning "unknown". They never establish
// merge identity and never overwrite a known value.
var placeholderValues = map[string]struct{}{
	"":            {},
	"TBD":         {},
	"UNDISCLOSED": {},
	"UNKNOWN":     {},
	"N/A":         {},
	"NA":          {},
	"-":           {},
}

// IsPlaceholder reports whether a field value carries no real information.
func IsPlaceholder(v string) bool {
	key := strings.ToUpper(strings.TrimSpace(v))
	_, ok := placeholderValues[key]
	return ok
}

// NormalizeIdentity derives the merge key for an asset name. Pages reference
// the same asset inconsistently ("ABL001" vs "ABL001 (TTAC-0001)"), so the
// key is the first whitespace-delimited token with parenthetical annotations
// stripped, NFKC-folded and uppercased. Placeholder names yield "".
func NormalizeIdentity(name string) string {
	s := norm.NFKC.String(strings.TrimSpace(name))

	// Drop parenthetical annotations anywhere in the string.
	for {
		open := strings.Index(s, "(")
		if open < 0 {
			break
		}
		close := strings.Index(s[open:], ")")
		if close < 0 {
			s = s[:open]
			break
		}
		s = s[:open] + s[open+close+1:]
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}

	key := strings.ToUpper(fields[0])
	if IsPlaceholder(key) {
		return ""
	}
	return key
}
