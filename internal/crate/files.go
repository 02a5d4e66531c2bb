package crate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cratesync/internal/fileutil"
	"cratesync/internal/services"
)

const (
	// SubcratesDir is the folder under the Serato library that holds crates.
	SubcratesDir = "Subcrates"
	// Extension is the crate file suffix.
	Extension = ".crate"
)

// ListCrateFiles returns the crate files directly inside seratoDir/Subcrates,
// sorted by path. A missing Subcrates folder yields an empty list.
func ListCrateFiles(seratoDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(seratoDir, SubcratesDir, "*"+Extension))
	if err != nil {
		return nil, fmt.Errorf("list crates: %w", err)
	}
	files := matches[:0]
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Name returns the display name of a crate (its file stem).
func Name(cratePath string) string {
	return strings.TrimSuffix(filepath.Base(cratePath), filepath.Ext(cratePath))
}

// ReadFile parses the crate at path. Partial results accompany a malformed error.
func ReadFile(path string) ([]Track, error) {
	data, err := readCrate(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// RewritePath replaces oldPath with newPath inside one crate file.
func RewritePath(cratePath, oldPath, newPath string) (bool, error) {
	data, err := readCrate(cratePath)
	if err != nil {
		return false, err
	}
	updated, changed, err := ReplacePath(data, oldPath, newPath)
	if err != nil {
		return false, fmt.Errorf("rewrite %s: %w", cratePath, err)
	}
	if !changed {
		return false, nil
	}
	if err := fileutil.ReplaceFile(cratePath, updated); err != nil {
		return false, err
	}
	return true, nil
}

// AddTrack appends trackPath to the crate file unless it is already listed.
func AddTrack(cratePath, trackPath string) (bool, error) {
	data, err := readCrate(cratePath)
	if err != nil {
		return false, err
	}
	updated, added, err := AppendTrack(data, trackPath)
	if err != nil {
		return false, fmt.Errorf("append to %s: %w", cratePath, err)
	}
	if !added {
		return false, nil
	}
	if err := fileutil.ReplaceFile(cratePath, updated); err != nil {
		return false, err
	}
	return true, nil
}

// UpdatePathGlobally rewrites oldPath to newPath in every crate of the
// library and returns the crates that changed. A crate that fails to rewrite
// does not stop the others; the failures are joined into the returned error.
func UpdatePathGlobally(seratoDir, oldPath, newPath string) ([]string, error) {
	files, err := ListCrateFiles(seratoDir)
	if err != nil {
		return nil, err
	}
	var (
		changed []string
		errs    []error
	)
	for _, file := range files {
		ok, err := RewritePath(file, oldPath, newPath)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			changed = append(changed, file)
		}
	}
	return changed, errors.Join(errs...)
}

// WriteFile creates or replaces a crate file atomically.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create crate directory: %w", err)
	}
	return fileutil.ReplaceFile(path, data)
}

func readCrate(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "crate", "read", path, err)
		}
		return nil, fmt.Errorf("read crate %s: %w", path, err)
	}
	return data, nil
}
