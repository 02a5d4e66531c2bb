package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cratesync/internal/config"
	"cratesync/internal/crate"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteCrate writes a crate file named name holding the given track keys and
// returns its path.
func WriteCrate(t testing.TB, cfg *config.Config, name string, keys ...string) string {
	t.Helper()

	path := CratePath(cfg, name)
	data, err := crate.New(keys...)
	if err != nil {
		t.Fatalf("encode crate %s: %v", name, err)
	}
	if err := crate.WriteFile(path, data); err != nil {
		t.Fatalf("write crate %s: %v", name, err)
	}
	return path
}

// WriteTrack creates an audio stand-in for a crate key under the volume root
// and returns its absolute path.
func WriteTrack(t testing.TB, cfg *config.Config, key string) string {
	t.Helper()

	path := cfg.ResolveLocal(strings.TrimPrefix(key, "/"))
	WriteFile(t, path, 64)
	return path
}

// CrateKeys reads a crate file and returns its track keys.
func CrateKeys(t testing.TB, path string) []string {
	t.Helper()

	tracks, err := crate.ReadFile(path)
	if err != nil {
		t.Fatalf("read crate %s: %v", path, err)
	}
	keys := make([]string, 0, len(tracks))
	for _, tr := range tracks {
		keys = append(keys, tr.Path)
	}
	return keys
}
