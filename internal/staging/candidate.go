package staging

import (
	"io/fs"
	"path/filepath"
	"strings"

	"cratesync/internal/textutil"
)

// MinSimilarity is the Jaro-Winkler score a staged file name must reach
// against the wanted display name to be reused.
const MinSimilarity = 0.93

// Match describes a staged file that plausibly is the wanted track.
type Match struct {
	Path  string
	Rule  string
	Score float64
}

// FindCandidate looks for an already-downloaded file in dir that matches the
// wanted track, so the downloader does not fetch it again. Rules in order:
// exact file stem, folded display name contained in the file stem, then the
// best Jaro-Winkler similarity at or above MinSimilarity.
func FindCandidate(dir string, exts []string, stem, displayName string) (Match, bool) {
	var files []string
	if err := walkAudio(dir, exts, func(path string, _ fs.DirEntry) {
		files = append(files, path)
	}); err != nil || len(files) == 0 {
		return Match{}, false
	}

	stem = strings.TrimSpace(stem)
	if stem != "" {
		for _, path := range files {
			if textutil.Stem(path) == stem {
				return Match{Path: path, Rule: "stem", Score: 1}, true
			}
		}
	}

	if textutil.Fold(displayName) == "" {
		return Match{}, false
	}
	for _, path := range files {
		if textutil.ContainsFolded(textutil.Stem(path), displayName) {
			return Match{Path: path, Rule: "contains", Score: 1}, true
		}
	}

	best := Match{}
	for _, path := range files {
		score := textutil.JaroWinkler(textutil.Stem(path), displayName)
		if score >= MinSimilarity && score > best.Score {
			best = Match{Path: path, Rule: "similar", Score: score}
		}
	}
	if best.Path == "" {
		return Match{}, false
	}
	return best, true
}

// Rel returns path relative to dir for display, or path itself.
func Rel(dir, path string) string {
	if rel, err := filepath.Rel(dir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
