package textutil

import (
	"math"
	"testing"
)

func TestCosineSimilarityNil(t *testing.T) {
	tests := []struct {
		name string
		a    *Terms
		b    *Terms
	}{
		{"both nil", nil, nil},
		{"a nil", nil, NewTerms("hello world")},
		{"b nil", NewTerms("hello world"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CosineSimilarity(tt.a, tt.b); got != 0 {
				t.Errorf("CosineSimilarity() = %v, want 0", got)
			}
		})
	}
}

func TestCosineSimilarityIdentical(t *testing.T) {
	text := "Daft Punk One More Time Radio Edit"
	got := CosineSimilarity(NewTerms(text), NewTerms(text))
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("CosineSimilarity(identical) = %v, want 1.0", got)
	}
}

func TestCosineSimilarityReorderedWords(t *testing.T) {
	a := NewTerms("One More Time Daft Punk")
	b := NewTerms("daft punk - one more time")
	if got := CosineSimilarity(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("CosineSimilarity(reordered) = %v, want 1.0", got)
	}
}

func TestCosineSimilarityDifferent(t *testing.T) {
	a := NewTerms("apple banana cherry")
	b := NewTerms("dog elephant frog")
	if got := CosineSimilarity(a, b); got != 0 {
		t.Errorf("CosineSimilarity(different) = %v, want 0", got)
	}
}

func TestWords(t *testing.T) {
	got := Words("The Quick-Brown fox feat. DJ Sébastien & a vs X")
	want := []string{"quick", "brown", "fox", "dj", "sebastien"}
	if len(got) != len(want) {
		t.Fatalf("Words = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Words = %v, want %v", got, want)
		}
	}
	if NewTerms("a & !") != nil {
		t.Fatal("expected nil terms for text without words")
	}
}

func TestJaroWinkler(t *testing.T) {
	if got := JaroWinkler("Beyoncé - Déjà Vu", "beyonce deja vu"); got != 1 {
		t.Fatalf("expected folded strings to match exactly, got %v", got)
	}
	if got := JaroWinkler("", "x"); got != 0 {
		t.Fatalf("expected 0 for empty input, got %v", got)
	}
	near := JaroWinkler("Artist - Track Name", "Artist - Track Nam")
	far := JaroWinkler("Artist - Track Name", "Completely Different")
	if near < 0.93 {
		t.Fatalf("expected near-identical strings above 0.93, got %v", near)
	}
	if far >= near {
		t.Fatalf("expected unrelated strings to score lower: %v >= %v", far, near)
	}
}

func TestMatchScoreUsesBestMeasure(t *testing.T) {
	if got := MatchScore("One More Time Daft Punk", "Daft Punk - One More Time"); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("expected reordered words to match, got %v", got)
	}
}

func TestContainsFolded(t *testing.T) {
	if !ContainsFolded("01 - Róisín Murphy - Overpowered.flac", "roisin murphy overpowered") {
		t.Fatal("expected folded containment")
	}
	if ContainsFolded("anything", "  ") {
		t.Fatal("empty needle must not match")
	}
}
