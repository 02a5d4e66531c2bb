package textutil

import (
	"math"
	"strings"
)

// creditWords carry no identity in a title or artist credit.
var creditWords = map[string]struct{}{
	"the": {}, "and": {}, "feat": {}, "ft": {}, "featuring": {}, "vs": {}, "x": {},
}

// Terms is a bag of folded words taken from a track title or artist credit.
type Terms struct {
	counts map[string]float64
	norm   float64
}

// NewTerms folds text into a word bag. It returns nil when nothing but
// credit filler and single characters remain.
func NewTerms(text string) *Terms {
	words := Words(text)
	if len(words) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(words))
	for _, w := range words {
		counts[w]++
	}
	var sum float64
	for _, c := range counts {
		sum += c * c
	}
	return &Terms{counts: counts, norm: math.Sqrt(sum)}
}

// Words returns the folded words of text in order, without credit filler
// and single characters.
func Words(text string) []string {
	fields := strings.Fields(Fold(text))
	out := fields[:0]
	for _, w := range fields {
		if len(w) < 2 {
			continue
		}
		if _, skip := creditWords[w]; skip {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Len returns the number of distinct words.
func (t *Terms) Len() int {
	if t == nil {
		return 0
	}
	return len(t.counts)
}
