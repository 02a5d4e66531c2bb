package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"cratesync/internal/crate"
	"cratesync/internal/fileutil"
	"cratesync/internal/logging"
	"cratesync/internal/services"
	"cratesync/internal/store"
)

// Cleanup deletes the backup files recorded by pending_cleanup mappings and
// drops those mappings. A mapping whose file cannot be removed is kept for
// the next attempt.
func (e *Engine) Cleanup(ctx context.Context) (*CleanupReport, error) {
	ctx, _, logger := e.beginPass(ctx, "cleanup")
	report := &CleanupReport{Errors: map[string]error{}}

	rows, err := e.store.TracksByStatus(ctx, store.StatusPendingCleanup)
	if err != nil {
		return report, fmt.Errorf("list pending cleanups: %w", err)
	}
	for _, row := range rows {
		if err := interrupted(ctx, "cleanup"); err != nil {
			return report, err
		}
		target := row.DownloadedPath
		if target != "" {
			if !strings.HasPrefix(filepath.Base(target), fileutil.BackupPrefix) {
				report.Errors[row.LocalPath] = services.Wrap(services.ErrValidation, "cleanup", "", "refusing to delete non-backup file "+target, nil)
				continue
			}
			removed, err := fileutil.RemoveIfExists(target)
			if err != nil {
				report.Errors[row.LocalPath] = err
				continue
			}
			if removed {
				report.Deleted = append(report.Deleted, target)
			} else {
				report.Missing = append(report.Missing, target)
			}
		}
		if _, err := e.store.DeleteTrack(ctx, row.LocalPath); err != nil {
			report.Errors[row.LocalPath] = err
		}
	}

	for key, err := range report.Errors {
		logging.WarnWithContext(logger, "backup cleanup failed", "cleanup_failed",
			logging.Track(key),
			logging.Error(err),
		)
	}
	logger.Info("cleanup finished",
		logging.Int("deleted", len(report.Deleted)),
		logging.Int("already_gone", len(report.Missing)),
		logging.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// Reset forgets every track mapping and pending crate addition. Mirrors stay.
func (e *Engine) Reset(ctx context.Context) (int64, error) {
	n, err := e.store.ClearAllTrackMappings(ctx)
	if err != nil {
		return 0, err
	}
	e.logger.Info("track mappings cleared", logging.Int64("rows", n))
	return n, nil
}

// Retry moves failed mappings back to pending_download.
func (e *Engine) Retry(ctx context.Context) (int64, error) {
	n, err := e.store.RetryFailed(ctx)
	if err != nil {
		return 0, err
	}
	e.logger.Info("failed tracks queued again", logging.Int64("rows", n))
	return n, nil
}

// Discover registers every crate under the Serato directory as an inactive
// mirror and returns how many were new.
func (e *Engine) Discover(ctx context.Context) (int, error) {
	files, err := crate.ListCrateFiles(e.cfg.Paths.SeratoDir)
	if err != nil {
		return 0, err
	}
	added, err := e.store.BulkRegisterDiscovered(ctx, files)
	if err != nil {
		return 0, err
	}
	e.logger.Info("crates discovered", logging.Int("found", len(files)), logging.Int("new", added))
	return added, nil
}
