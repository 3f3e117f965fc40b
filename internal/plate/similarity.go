package plate

import "github.com/agnivade/levenshtein"

// Ratio is a [0,1] similarity score between two strings, derived from
// Levenshtein edit distance over runes. Identical strings score 1.0.
// Two empty strings score 0: absent evidence is not agreement.
func Ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 0
	}
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
