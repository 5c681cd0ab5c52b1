package utils

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ShortenString cuts s after l runes and marks the cut with "...". Product
// names are mostly cyrillic so this has to count runes, not bytes.
func ShortenString(s string, l int) string {
	r := []rune(s)
	if len(r) > l && l != 0 {
		return fmt.Sprintf("%s...", string(r[:l]))
	}
	return s
}

// Closest returns the candidate with the smallest levenshtein distance to
// target, ignoring case. ok is false if there are no candidates.
func Closest(target string, candidates []string) (best string, dist int, ok bool) {
	t := strings.ToLower(strings.TrimSpace(target))
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(t, strings.ToLower(strings.TrimSpace(c)))
		if !ok || d < dist {
			best, dist, ok = c, d, true
		}
	}
	return best, dist, ok
}
