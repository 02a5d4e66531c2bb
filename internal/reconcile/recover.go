package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cratesync/internal/crate"
	"cratesync/internal/fileutil"
	"cratesync/internal/logging"
	"cratesync/internal/markers"
	"cratesync/internal/services"
	"cratesync/internal/services/tidaldl"
	"cratesync/internal/staging"
	"cratesync/internal/store"
	"cratesync/internal/textutil"
)

const stageRecover = "recover"

// Recover downloads every pending_download mapping and puts the file where
// the crate expects it. A failing track is marked failed and the pass moves
// on; authentication failure and cancellation end the pass.
func (e *Engine) Recover(ctx context.Context, opts RecoverOptions) (*RecoverReport, error) {
	ctx, runID, logger := e.beginPass(ctx, stageRecover)
	report := &RecoverReport{RunID: runID, Started: time.Now()}
	defer func() { report.Finished = time.Now() }()

	if err := interrupted(ctx, stageRecover); err != nil {
		return report, err
	}

	pending, err := e.store.TracksByStatus(ctx, store.StatusPendingDownload)
	if err != nil {
		return report, fmt.Errorf("list pending downloads: %w", err)
	}
	if opts.DryRun {
		report.Planned = e.plan(pending)
		return report, nil
	}
	if len(pending) == 0 {
		logger.Info("nothing to recover")
		return report, nil
	}
	if e.downloader == nil {
		return report, services.Wrap(services.ErrConfiguration, stageRecover, "", "no downloader configured", nil)
	}

	if err := e.authenticate(ctx, stageRecover); err != nil {
		logging.ErrorWithContext(logger, "tidal authentication failed", "auth_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `cratesync auth login`"),
		)
		return report, err
	}

	stagingDir := e.cfg.Paths.StagingDir
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return report, fmt.Errorf("create staging directory: %w", err)
	}
	if hours := e.cfg.Recovery.StagingMaxAgeHours; hours > 0 {
		report.Stale = staging.CleanStale(ctx, stagingDir, e.cfg.Recovery.AllowedExtensions, time.Duration(hours)*time.Hour, logger)
	}
	if err := e.downloader.Configure(ctx); err != nil {
		return report, err
	}

	logger.Info("recovery started", logging.Int("pending", len(pending)))
	for _, track := range pending {
		if err := interrupted(ctx, stageRecover); err != nil {
			return report, err
		}
		trackCtx := services.WithTrack(ctx, track.LocalPath)
		item := e.recoverTrack(trackCtx, track)
		if item.Err != nil && errors.Is(item.Err, services.ErrInterrupted) {
			// Leave the mapping pending so the next pass retries it.
			return report, item.Err
		}
		report.Items = append(report.Items, item)
	}

	logger.Info("recovery finished",
		logging.Int("restored", report.Count(OutcomeRestored)),
		logging.Int("imported", report.Count(OutcomeImported)),
		logging.Int("failed", report.Count(OutcomeFailed)),
		logging.Duration("elapsed", time.Since(report.Started)),
	)
	return report, nil
}

func (e *Engine) plan(pending []*store.Track) []PlannedDownload {
	planned := make([]PlannedDownload, 0, len(pending))
	for _, t := range pending {
		if id, ok := store.PlaceholderRemoteID(t.LocalPath); ok && t.RemoteID == "" {
			t.RemoteID = id
		}
		target := e.cfg.Paths.StagingDir
		if !t.IsPlaceholder() {
			target = e.cfg.ResolveLocal(t.LocalPath)
		}
		planned = append(planned, PlannedDownload{
			Key:      t.LocalPath,
			RemoteID: t.RemoteID,
			Target:   target,
			Command:  fmt.Sprintf("%s dl %q", e.cfg.Recovery.DownloaderBinary, tidaldl.TrackURL(t.RemoteID)),
		})
	}
	return planned
}

func (e *Engine) recoverTrack(ctx context.Context, track *store.Track) RecoverItem {
	logger := logging.WithContext(ctx, e.logger)
	if id, ok := store.PlaceholderRemoteID(track.LocalPath); ok && track.RemoteID == "" {
		track.RemoteID = id
	}
	item := RecoverItem{Key: track.LocalPath, RemoteID: track.RemoteID}

	var err error
	switch {
	case track.RemoteID == "":
		err = services.Wrap(services.ErrValidation, stageRecover, "", "mapping has no remote id", nil)
	case track.IsPlaceholder():
		err = e.importRemoteOnly(ctx, logger, track, &item)
	default:
		err = e.restore(ctx, logger, track, &item)
	}
	if err == nil {
		return item
	}

	if ctx.Err() != nil && !errors.Is(err, services.ErrInterrupted) {
		err = services.Wrap(services.ErrInterrupted, stageRecover, "", "pass cancelled", err)
	}
	item.Err = err
	if errors.Is(err, services.ErrInterrupted) {
		return item
	}
	item.Outcome = OutcomeFailed
	if updErr := e.store.UpdateStatus(ctx, track.LocalPath, store.StatusFailed, ""); updErr != nil {
		logger.Error("failed to record recovery failure", logging.Error(updErr))
	}
	logging.WarnWithContext(logger, "track recovery failed", "recover_failed",
		logging.String("remote_id", track.RemoteID),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run `cratesync retry` to queue failed tracks again"),
	)
	return item
}

// fetch returns a staged audio file for the track: one already sitting in
// staging that matches by stem or display name and is not mapped yet, or a
// fresh download detected by snapshotting staging around the downloader.
func (e *Engine) fetch(ctx context.Context, logger *slog.Logger, track *store.Track, stem string) (string, bool, error) {
	dir := e.cfg.Paths.StagingDir
	exts := e.cfg.Recovery.AllowedExtensions

	display := track.DisplayName
	if display == "" && !track.IsPlaceholder() {
		display = textutil.DisplayName(textutil.GuessArtistTitle(track.LocalPath))
	}
	if match, ok := staging.FindCandidate(dir, exts, stem, display); ok {
		inUse, err := e.mapped(ctx, match.Path)
		if err != nil {
			return "", false, err
		}
		if !inUse {
			logger.Info("reusing staged file",
				logging.String("file", staging.Rel(dir, match.Path)),
				logging.String("rule", match.Rule),
			)
			return match.Path, true, nil
		}
	}

	before, err := staging.TakeSnapshot(dir, exts)
	if err != nil {
		return "", false, fmt.Errorf("snapshot staging: %w", err)
	}
	if err := e.downloader.Download(ctx, track.RemoteID); err != nil {
		return "", false, err
	}
	after, err := staging.TakeSnapshot(dir, exts)
	if err != nil {
		return "", false, fmt.Errorf("snapshot staging: %w", err)
	}
	added := after.NewSince(before)
	if len(added) == 0 {
		return "", false, services.Wrap(services.ErrDownload, stageRecover, "detect", "no new audio file appeared in staging", nil)
	}
	if len(added) > 1 {
		logger.Warn("download produced several files; using the first",
			logging.Int("files", len(added)),
			logging.String("file", staging.Rel(dir, added[0])),
		)
	}
	return added[0], false, nil
}

// mapped reports whether a staged file is already the local file of a mapping.
func (e *Engine) mapped(ctx context.Context, abs string) (bool, error) {
	key, err := e.localKey(abs)
	if err != nil {
		return false, nil
	}
	existing, err := e.store.GetTrack(ctx, key)
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}

// importRemoteOnly keeps the downloaded file in staging, appends it to every
// crate waiting for it, and replaces the placeholder with a real mapping.
func (e *Engine) importRemoteOnly(ctx context.Context, logger *slog.Logger, track *store.Track, item *RecoverItem) error {
	staged, err := e.importedCopy(ctx, track)
	if err != nil {
		return err
	}
	reused := staged != ""
	if reused {
		logger.Info("resuming import from existing mapping", logging.String("file", staged))
	} else if staged, reused, err = e.fetch(ctx, logger, track, ""); err != nil {
		return err
	}
	item.Reused = reused
	item.Path = staged

	key, err := e.localKey(staged)
	if err != nil {
		return err
	}

	crates, err := e.store.PendingCrateAdditions(ctx, track.RemoteID)
	if err != nil {
		return err
	}
	var errs []error
	for _, cratePath := range crates {
		if _, err := crate.AddTrack(cratePath, key); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				logging.WarnWithContext(logger, "crate for remote-only track no longer exists", "crate_missing",
					logging.String("crate_path", cratePath),
				)
			} else {
				errs = append(errs, err)
				continue
			}
		} else {
			item.Crates = append(item.Crates, cratePath)
		}
		if err := e.store.ClearPendingCrateAddition(ctx, track.RemoteID, cratePath); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("attach to crates: %w", err)
	}

	kbps, _ := e.prober.Bitrate(ctx, staged)
	if err := e.store.UpsertTrack(ctx, store.TrackUpsert{
		LocalPath:   key,
		RemoteID:    track.RemoteID,
		ISRC:        track.ISRC,
		Bitrate:     kbps,
		DisplayName: track.DisplayName,
	}); err != nil {
		return err
	}
	if err := e.store.UpdateStatus(ctx, key, store.StatusSynced, ""); err != nil {
		return err
	}
	if _, err := e.store.DeleteTrack(ctx, track.LocalPath); err != nil {
		return err
	}

	item.Outcome = OutcomeImported
	logger.Info("remote-only track imported",
		logging.String("file", staging.Rel(e.cfg.Paths.StagingDir, staged)),
		logging.Int("crates", len(item.Crates)),
	)
	return nil
}

// importedCopy returns the file of a synced mapping that already carries the
// placeholder's remote id, as left behind when an earlier import stopped
// before the placeholder was removed. It returns "" when there is none.
func (e *Engine) importedCopy(ctx context.Context, track *store.Track) (string, error) {
	rows, err := e.store.FindByRemoteID(ctx, track.RemoteID)
	if err != nil {
		return "", err
	}
	for _, row := range rows {
		if row.IsPlaceholder() || row.Status != store.StatusSynced {
			continue
		}
		if abs := e.cfg.ResolveLocal(row.LocalPath); fileutil.Exists(abs) {
			return abs, nil
		}
	}
	return "", nil
}

// restore replaces a missing or outdated local file with the download. The
// final name keeps the original stem with the downloaded extension. Any file
// in the way, and the original itself, are renamed to BACKUP- copies before
// the new file moves in; if the move fails the backups are put back.
func (e *Engine) restore(ctx context.Context, logger *slog.Logger, track *store.Track, item *RecoverItem) error {
	original := e.cfg.ResolveLocal(track.LocalPath)
	staged, reused, err := e.fetch(ctx, logger, track, textutil.Stem(original))
	if err != nil {
		return err
	}
	item.Reused = reused

	final := filepath.Join(filepath.Dir(original), textutil.Stem(original)+filepath.Ext(staged))
	finalKey, err := e.localKey(final)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}

	var extracted markers.Result
	if fileutil.Exists(original) {
		extracted = e.transplanter.Extract(original)
	}

	type backup struct{ from, to string }
	var backups []backup
	rollback := func() {
		for i := len(backups) - 1; i >= 0; i-- {
			if err := os.Rename(backups[i].to, backups[i].from); err != nil {
				logger.Error("failed to restore backup", logging.String("backup", backups[i].to), logging.Error(err))
			}
		}
	}
	moveAside := func(path string) error {
		if !fileutil.Exists(path) {
			return nil
		}
		dst := fileutil.FreeBackupPath(path)
		if err := os.Rename(path, dst); err != nil {
			return fmt.Errorf("back up %s: %w", filepath.Base(path), err)
		}
		backups = append(backups, backup{from: path, to: dst})
		return nil
	}

	if err := moveAside(final); err != nil {
		return err
	}
	finalBackup := ""
	if len(backups) == 1 {
		finalBackup = backups[0].to
	}
	originalBackup := ""
	if original != final {
		if err := moveAside(original); err != nil {
			rollback()
			return err
		}
		if n := len(backups); n > 0 && backups[n-1].from == original {
			originalBackup = backups[n-1].to
		}
	}

	if err := fileutil.MoveFile(staged, final); err != nil {
		rollback()
		return services.Wrap(services.ErrExternalTool, stageRecover, "move", filepath.Base(final), err)
	}
	item.Path = final
	for _, b := range backups {
		item.Backups = append(item.Backups, b.to)
	}

	if !extracted.Empty() {
		res := e.transplanter.Inject(extracted.Markers, final)
		if res.Err != nil {
			logging.WarnWithContext(logger, "could not transplant markers", "markers_failed",
				logging.Error(res.Err),
				logging.String(logging.FieldImpact, "cue points and beatgrid must be redone in Serato"),
			)
		}
	}

	if finalKey != track.LocalPath {
		changed, err := crate.UpdatePathGlobally(e.cfg.Paths.SeratoDir, track.LocalPath, finalKey)
		item.Crates = changed
		if err != nil {
			logging.WarnWithContext(logger, "some crates could not be rewritten", "crate_rewrite_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "re-add the track to those crates in Serato"),
			)
		}
	}

	if err := e.recordRestore(ctx, track, finalKey, final, finalBackup, originalBackup); err != nil {
		return err
	}

	item.Outcome = OutcomeRestored
	logger.Info("track restored",
		logging.String("path", final),
		logging.Int("backups", len(item.Backups)),
		logging.Int("crates_rewritten", len(item.Crates)),
	)
	return nil
}

func (e *Engine) recordRestore(ctx context.Context, track *store.Track, finalKey, final, finalBackup, originalBackup string) error {
	kbps, _ := e.prober.Bitrate(ctx, final)
	if err := e.store.UpsertTrack(ctx, store.TrackUpsert{
		LocalPath: finalKey,
		RemoteID:  track.RemoteID,
		ISRC:      track.ISRC,
		Bitrate:   kbps,
	}); err != nil {
		return err
	}
	if err := e.store.UpdateStatus(ctx, finalKey, store.StatusSynced, ""); err != nil {
		return err
	}

	if finalBackup != "" {
		backupKey, err := e.localKey(finalBackup)
		if err != nil {
			return err
		}
		if err := e.store.UpsertTrack(ctx, store.TrackUpsert{LocalPath: backupKey, InitialStatus: store.StatusPendingCleanup}); err != nil {
			return err
		}
		if err := e.store.UpdateStatus(ctx, backupKey, store.StatusPendingCleanup, finalBackup); err != nil {
			return err
		}
	}

	if finalKey == track.LocalPath {
		return nil
	}
	if originalBackup != "" {
		return e.store.UpdateStatus(ctx, track.LocalPath, store.StatusPendingCleanup, originalBackup)
	}
	return e.store.UpdateStatus(ctx, track.LocalPath, store.StatusSynced, final)
}
