package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cratesync/internal/logging"
)

// CleanStaleResult contains the outcome of a stale file cleanup operation.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes leftovers of interrupted downloads older than maxAge:
// hidden files and files whose extension is not an allowed audio extension.
// Audio files are never removed, since recovered remote-only tracks live in
// staging. Directories emptied by the sweep are removed too.
func CleanStale(ctx context.Context, stagingDir string, exts []string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	result := CleanStaleResult{}

	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" || maxAge <= 0 {
		return result
	}
	if _, err := os.Stat(stagingDir); err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		}
		return result
	}

	allowed := extensionSet(exts)
	cutoff := time.Now().Add(-maxAge)
	var dirs []string

	walkErr := filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != stagingDir {
				dirs = append(dirs, path)
			}
			return nil
		}
		if _, audio := allowed[strings.ToLower(filepath.Ext(path))]; audio && !isHidden(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove stale staging file",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "staging_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			return nil
		}
		result.Removed = append(result.Removed, path)
		if logger != nil {
			logger.Info("removed stale staging file",
				logging.String("path", path),
				logging.Duration("age", time.Since(info.ModTime())),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
		return nil
	})
	if walkErr != nil {
		result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: walkErr})
		return result
	}

	// Deepest first so parents empty out after their children.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err == nil {
			result.Removed = append(result.Removed, dir)
		}
	}
	return result
}
