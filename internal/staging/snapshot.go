package staging

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Snapshot is the set of audio files under a staging directory, keyed by
// absolute path.
type Snapshot map[string]struct{}

// TakeSnapshot walks dir recursively and records every visible regular file
// whose extension is in exts. A missing directory yields an empty snapshot.
func TakeSnapshot(dir string, exts []string) (Snapshot, error) {
	snap := Snapshot{}
	err := walkAudio(dir, exts, func(path string, _ fs.DirEntry) {
		snap[path] = struct{}{}
	})
	return snap, err
}

// NewSince returns the files present in s but not in prev, sorted.
func (s Snapshot) NewSince(prev Snapshot) []string {
	var added []string
	for path := range s {
		if _, ok := prev[path]; !ok {
			added = append(added, path)
		}
	}
	sort.Strings(added)
	return added
}

func walkAudio(dir string, exts []string, visit func(path string, d fs.DirEntry)) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil
	}
	allowed := extensionSet(exts)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if isHidden(d.Name()) && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if _, ok := allowed[strings.ToLower(filepath.Ext(path))]; ok {
			visit(path, d)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
