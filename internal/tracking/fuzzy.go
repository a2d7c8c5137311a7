package tracking

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ratio, partialRatio, and tokenSortRatio reimplement the three fuzzywuzzy
// similarity measures spec.md §4.E combines (0.4·ratio + 0.3·partial_ratio
// + 0.3·token_sort_ratio). No single Go port of fuzzywuzzy exists anywhere
// in the example pack (viamrobotics-rdk's lithammer/fuzzysearch is a
// substring-only matcher, not a ratio), so these are written directly from
// the published fuzzywuzzy algorithm on top of agnivade/levenshtein's edit
// distance primitive, which is the closest in-pack-adjacent building block.

// ratio returns a 0-100 similarity score derived from normalized edit
// distance: 100 * (1 - distance / max(len(a), len(b))).
func ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	score := 100 * (1 - float64(dist)/float64(maxLen))
	if score < 0 {
		score = 0
	}
	return score
}

// partialRatio slides the shorter string across the longer one and returns
// the best ratio over any equal-length window, so a short OCR fragment
// matching a substring of a longer target still scores highly.
func partialRatio(a, b string) float64 {
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	if shorter == "" {
		return 0
	}
	if len(shorter) >= len(longer) {
		return ratio(shorter, longer)
	}

	best := 0.0
	windowLen := len(shorter)
	for start := 0; start+windowLen <= len(longer); start++ {
		window := longer[start : start+windowLen]
		if r := ratio(shorter, window); r > best {
			best = r
		}
	}
	return best
}

// tokenSortRatio tokenizes both strings on whitespace, sorts the tokens
// alphabetically, rejoins them, and compares — so word-order differences
// between the OCR read and the target text don't depress the score.
func tokenSortRatio(a, b string) float64 {
	return ratio(sortedTokens(a), sortedTokens(b))
}

func sortedTokens(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

// combinedScore implements spec.md §4.E's weighted blend.
func combinedScore(a, b string) float64 {
	return 0.4*ratio(a, b) + 0.3*partialRatio(a, b) + 0.3*tokenSortRatio(a, b)
}
