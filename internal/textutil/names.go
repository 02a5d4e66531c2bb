package textutil

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rainycape/unidecode"
)

// Fold transliterates s to ASCII, lowercases it, turns punctuation into
// spaces and collapses runs of whitespace.
func Fold(s string) string {
	ascii := strings.ToLower(unidecode.Unidecode(s))
	var b strings.Builder
	b.Grow(len(ascii))
	space := false
	for i := 0; i < len(ascii); i++ {
		c := ascii[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
			space = false
			continue
		}
		if !space && b.Len() > 0 {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Stem returns the file name of path without directory or extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// GuessArtistTitle derives an artist/title pair from a track file name using
// the "Artist - Title.ext" convention. A leading "NN. " track number before the
// artist is dropped. Without a separator the whole stem is the title.
func GuessArtistTitle(path string) (artist, title string) {
	stem := Stem(path)
	left, right, ok := strings.Cut(stem, " - ")
	if !ok {
		return "", strings.TrimSpace(stem)
	}
	if _, after, found := strings.Cut(left, ". "); found {
		left = after
	}
	return strings.TrimSpace(left), strings.TrimSpace(right)
}

var (
	bracketedPattern   = regexp.MustCompile(`\s*[\(\[\{][^\)\]\}]*[\)\]\}]`)
	promoPattern       = regexp.MustCompile(`(?i)\b(official\s+(music\s+)?(video|audio|visualizer|lyric\s+video)|lyrics?\s+video|hq|hd|4k|1080p|720p|\d{3}\s?kbps|free\s+download|out\s+now|premiere)\b`)
	trackNumberPattern = regexp.MustCompile(`^\s*(?:[A-Da-d]?\d{1,3}[\s\.\-_)]+)`)
	sourceCodePattern  = regexp.MustCompile(`^\s*[A-Z]{2,6}\d{2,6}\s*[-_]\s*`)
	videoIDPattern     = regexp.MustCompile(`[\s_-]+[A-Za-z0-9_-]{11}$`)
	separatorPattern   = regexp.MustCompile(`[\s_]+`)
)

// CleanSearchTerm strips the decorations file names and video titles carry so
// a catalog search has a better chance: bracketed tags, promo and quality
// words, leading track numbers or catalog codes, and trailing video ids.
func CleanSearchTerm(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	s = bracketedPattern.ReplaceAllString(s, "")
	s = sourceCodePattern.ReplaceAllString(s, "")
	s = trackNumberPattern.ReplaceAllString(s, "")
	if m := videoIDPattern.FindString(s); m != "" && looksLikeVideoID(strings.TrimLeft(m, " _-")) {
		s = strings.TrimSuffix(s, m)
	}
	s = promoPattern.ReplaceAllString(s, "")
	s = separatorPattern.ReplaceAllString(s, " ")
	return strings.Trim(s, " -")
}

// looksLikeVideoID accepts 11-character ids that contain a digit or an
// upper-case letter past the first position, so ordinary capitalized words
// survive.
func looksLikeVideoID(s string) bool {
	var letter, digit, innerUpper bool
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'A' && r <= 'Z':
			letter = true
			if i > 0 {
				innerUpper = true
			}
		case r >= 'a' && r <= 'z':
			letter = true
		}
	}
	return letter && (digit || innerUpper)
}

// DisplayName renders "Artist - Title", or just the title when artist is empty.
func DisplayName(artist, title string) string {
	artist, title = strings.TrimSpace(artist), strings.TrimSpace(title)
	if artist == "" {
		return title
	}
	return artist + " - " + title
}
