package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cratesync/internal/logging"
)

var audioExts = []string{".flac", ".mp3", ".m4a"}

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	when := time.Now().Add(-age)
	if err := os.Chtimes(path, when, when); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, audioExts, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOnlyOldLeftovers(t *testing.T) {
	dir := t.TempDir()
	oldPart := filepath.Join(dir, "Artist", "Album", "01 - Track.flac.part")
	oldHidden := filepath.Join(dir, ".tmp-download")
	recentPart := filepath.Join(dir, "Other", "02 - Track.flac.part")
	oldAudio := filepath.Join(dir, "Keep", "03 - Track.flac")
	writeAged(t, oldPart, 3*time.Hour)
	writeAged(t, oldHidden, 3*time.Hour)
	writeAged(t, recentPart, time.Minute)
	writeAged(t, oldAudio, 48*time.Hour)

	result := CleanStale(context.Background(), dir, audioExts, time.Hour, logging.NewNop())
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %#v", result.Errors)
	}

	for _, gone := range []string{oldPart, oldHidden, filepath.Join(dir, "Artist", "Album"), filepath.Join(dir, "Artist")} {
		if _, err := os.Stat(gone); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed", gone)
		}
	}
	for _, kept := range []string{recentPart, oldAudio} {
		if _, err := os.Stat(kept); err != nil {
			t.Errorf("expected %s to be kept: %v", kept, err)
		}
	}
}

func TestCleanStaleDisabledByZeroAge(t *testing.T) {
	dir := t.TempDir()
	part := filepath.Join(dir, "x.part")
	writeAged(t, part, 100*time.Hour)
	result := CleanStale(context.Background(), dir, audioExts, 0, nil)
	if len(result.Removed) != 0 {
		t.Fatalf("expected nothing removed, got %v", result.Removed)
	}
}
