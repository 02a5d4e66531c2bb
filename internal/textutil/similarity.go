package textutil

import (
	"strings"

	"github.com/hbollon/go-edlib"
)

// CosineSimilarity compares two word bags; nil or empty bags score 0.
func CosineSimilarity(a, b *Terms) float64 {
	if a.Len() == 0 || b.Len() == 0 {
		return 0
	}
	var dot float64
	for w, c := range a.counts {
		dot += c * b.counts[w]
	}
	if dot == 0 {
		return 0
	}
	return dot / (a.norm * b.norm)
}

// JaroWinkler returns the Jaro-Winkler similarity of the folded forms of a
// and b, in [0, 1].
func JaroWinkler(a, b string) float64 {
	fa, fb := Fold(a), Fold(b)
	if fa == "" || fb == "" {
		return 0
	}
	if fa == fb {
		return 1
	}
	score, err := edlib.StringsSimilarity(fa, fb, edlib.JaroWinkler)
	if err != nil {
		return 0
	}
	return float64(score)
}

// ContainsFolded reports whether needle occurs in haystack after folding.
func ContainsFolded(haystack, needle string) bool {
	fn := Fold(needle)
	if fn == "" {
		return false
	}
	return strings.Contains(Fold(haystack), fn)
}

// MatchScore rates how well a candidate title fits the wanted one: the better
// of token cosine and Jaro-Winkler, so both reordered words and small
// spelling differences score high.
func MatchScore(want, candidate string) float64 {
	cos := CosineSimilarity(NewTerms(want), NewTerms(candidate))
	jw := JaroWinkler(want, candidate)
	if cos > jw {
		return cos
	}
	return jw
}
