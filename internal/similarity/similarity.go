// Package similarity scores how alike two descriptions are.
package similarity

import (
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// Distance is the unit cost Levenshtein edit distance between a and b,
// counted in runes.
func Distance(a, b string) int {
	return levenshtein.Distance(a, b, nil)
}

// Score returns a value in [0, 1]: 1 for strings equal after lowercasing,
// otherwise 1 - distance/len(longer). Two empty strings score 1.
func Score(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1.0
	}
	longer := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longer {
		longer = n
	}
	if longer == 0 {
		return 1.0
	}
	return float64(longer-Distance(a, b)) / float64(longer)
}
