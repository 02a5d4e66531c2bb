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
	"cratesync/internal/services"
	"cratesync/internal/services/tidal"
	"cratesync/internal/store"
	"cratesync/internal/textutil"
)

const stageSync = "sync"

// Sync reconciles every active mirror. Mirror failures are recorded in the
// report and do not stop the pass; authentication failure and cancellation
// do, and are returned.
func (e *Engine) Sync(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	ctx, runID, logger := e.beginPass(ctx, stageSync)
	report := &SyncReport{RunID: runID, Started: time.Now()}
	defer func() { report.Finished = time.Now() }()

	if err := interrupted(ctx, stageSync); err != nil {
		return report, err
	}

	if err := e.authenticate(ctx, stageSync); err != nil {
		logging.ErrorWithContext(logger, "tidal authentication failed", "auth_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `cratesync auth login`"),
		)
		return report, err
	}

	mirrors, err := e.store.ListMirrors(ctx, true)
	if err != nil {
		return report, fmt.Errorf("list mirrors: %w", err)
	}
	if len(mirrors) == 0 {
		logger.Info("no active mirrors; activate one with `cratesync mirrors add <index>`")
		return report, nil
	}
	logger.Info("sync started", logging.Int("mirrors", len(mirrors)))

	for _, mirror := range mirrors {
		if err := interrupted(ctx, stageSync); err != nil {
			return report, err
		}
		mr := e.syncMirror(services.WithMirror(ctx, mirror.CrateName), mirror, opts)
		report.Mirrors = append(report.Mirrors, mr)
		if mr.Err != nil && services.IsFatal(mr.Err) {
			return report, mr.Err
		}
	}

	logger.Info("sync finished",
		logging.Int("mirrors", len(report.Mirrors)),
		logging.Int("failed", report.Failed()),
		logging.Duration("elapsed", time.Since(report.Started)),
	)
	return report, nil
}

// mirrorPass carries the per-mirror state shared by the sync steps.
type mirrorPass struct {
	mirror  *store.Mirror
	opts    SyncOptions
	report  *MirrorReport
	logger  *slog.Logger
	remote  map[string]struct{}
	seen    map[string]struct{}
	pending []string
}

func (e *Engine) syncMirror(ctx context.Context, mirror *store.Mirror, opts SyncOptions) MirrorReport {
	logger := logging.WithContext(ctx, e.logger)
	mr := MirrorReport{CratePath: mirror.CratePath, CrateName: mirror.CrateName, PlaylistID: mirror.PlaylistID}

	err := e.runMirror(ctx, &mirrorPass{
		mirror: mirror,
		opts:   opts,
		report: &mr,
		logger: logger,
		remote: map[string]struct{}{},
		seen:   map[string]struct{}{},
	})
	if err != nil && ctx.Err() != nil && !services.IsFatal(err) {
		err = interrupted(ctx, stageSync)
	}
	if err != nil {
		mr.Err = err
		if !services.IsFatal(err) {
			logging.WarnWithContext(logger, "mirror sync failed", "mirror_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "this crate was not reconciled in this pass"),
			)
		}
		return mr
	}

	logger.Info("mirror synced",
		logging.String("playlist_id", mr.PlaylistID),
		logging.Int("entries", mr.Entries),
		logging.Int("mapped", mr.Mapped),
		logging.Int("orphaned", len(mr.Orphaned)),
		logging.Int("missing", mr.Missing),
		logging.Int("added", mr.Added),
		logging.Int("scheduled", mr.Scheduled),
	)
	return mr
}

func (e *Engine) runMirror(ctx context.Context, p *mirrorPass) error {
	// Step 1: read the crate. A vanished crate drops its mirror.
	entries, err := crate.ReadFile(p.mirror.CratePath)
	var malformed *crate.MalformedError
	switch {
	case err == nil:
	case errors.As(err, &malformed):
		p.report.Partial = true
		logging.WarnWithContext(p.logger, "crate is damaged; using readable entries only", "crate_malformed",
			logging.Error(err),
			logging.Int("readable_entries", len(entries)),
			logging.String(logging.FieldImpact, "remote-only tracks are not imported for this crate"),
		)
	case errors.Is(err, services.ErrNotFound):
		if _, statErr := os.Stat(p.mirror.CratePath); errors.Is(statErr, os.ErrNotExist) {
			if _, rmErr := e.store.RemoveMirror(ctx, p.mirror.CratePath); rmErr != nil {
				return fmt.Errorf("remove vanished mirror: %w", rmErr)
			}
			p.report.Removed = true
			logging.WarnWithContext(p.logger, "crate file vanished; mirror removed", "mirror_removed",
				logging.String("crate_path", p.mirror.CratePath),
			)
			return nil
		}
		return err
	default:
		return err
	}
	p.report.Entries = len(entries)

	// Step 2: ensure the playlist exists.
	created := false
	if p.mirror.PlaylistID == "" {
		playlist, err := e.catalog.CreatePlaylist(ctx, p.mirror.CrateName, "Mirrored from Serato crate "+p.mirror.CrateName, e.cfg.Tidal.PlaylistFolder)
		if err != nil {
			return services.Wrap(services.ErrTransient, stageSync, "create playlist", p.mirror.CrateName, err)
		}
		if err := e.store.SetMirrorPlaylist(ctx, p.mirror.CratePath, playlist.ID); err != nil {
			return fmt.Errorf("persist playlist id: %w", err)
		}
		p.mirror.PlaylistID = playlist.ID
		p.report.PlaylistID = playlist.ID
		created = true
	}

	// Step 3: fetch the remote membership once.
	var remoteTracks []tidal.Track
	if !created {
		remoteTracks, err = e.catalog.PlaylistTracks(ctx, p.mirror.PlaylistID)
		if err != nil {
			return e.handleRemoteError(ctx, p, "fetch playlist", err)
		}
	}
	for _, t := range remoteTracks {
		p.remote[t.ID] = struct{}{}
	}

	// Step 4: walk local entries.
	for _, entry := range entries {
		if err := interrupted(ctx, stageSync); err != nil {
			return err
		}
		if err := e.syncEntry(ctx, p, entry.Path); err != nil {
			return err
		}
	}

	// Step 5: add what the playlist lacks.
	if len(p.pending) > 0 {
		added, err := e.catalog.AddTracksToPlaylist(ctx, p.mirror.PlaylistID, p.pending)
		if err != nil {
			return e.handleRemoteError(ctx, p, "add tracks", err)
		}
		p.report.Added = added
	}

	// Step 6: schedule remote-only tracks for import.
	if p.report.Partial {
		return nil
	}
	for _, t := range remoteTracks {
		if _, ok := p.seen[t.ID]; ok {
			continue
		}
		p.seen[t.ID] = struct{}{}
		if err := interrupted(ctx, stageSync); err != nil {
			return err
		}
		if err := e.scheduleRemoteOnly(ctx, p, t); err != nil {
			return err
		}
	}
	return nil
}

// handleRemoteError clears a playlist id the remote no longer knows so the
// next pass recreates it.
func (e *Engine) handleRemoteError(ctx context.Context, p *mirrorPass, op string, err error) error {
	if services.IsFatal(err) {
		return err
	}
	if !errors.Is(err, services.ErrNotFound) {
		return services.Wrap(services.ErrTransient, stageSync, op, p.mirror.PlaylistID, err)
	}
	if clearErr := e.store.ClearMirrorPlaylist(ctx, p.mirror.CratePath); clearErr != nil {
		return fmt.Errorf("clear stale playlist id: %w", clearErr)
	}
	logging.WarnWithContext(p.logger, "remote playlist no longer exists; cleared cached id", "playlist_stale",
		logging.String("playlist_id", p.mirror.PlaylistID),
		logging.String(logging.FieldImpact, "the playlist is recreated on the next sync"),
	)
	return services.Wrap(services.ErrRemoteStale, stageSync, op, p.mirror.PlaylistID, err)
}

func (e *Engine) syncEntry(ctx context.Context, p *mirrorPass, rawPath string) error {
	key, err := crate.NormalizePath(rawPath)
	if err != nil {
		p.report.Invalid++
		logging.WarnWithContext(p.logger, "skipping unsupported crate path", "invalid_path",
			logging.String("path", rawPath),
			logging.Error(err),
		)
		return nil
	}
	logger := p.logger.With(logging.Track(key))
	abs := e.cfg.ResolveLocal(key)

	existing, err := e.store.GetTrack(ctx, key)
	if err != nil {
		return err
	}
	var remoteID string
	var kbps int
	if existing != nil {
		remoteID, kbps = existing.RemoteID, existing.Bitrate
	}

	present := fileutil.Exists(abs)
	if present && kbps == 0 {
		if probed, ok := e.prober.Bitrate(ctx, abs); ok {
			kbps = probed
		}
		// Unmapped tracks get their bitrate stored together with the match.
		if kbps > 0 && existing != nil {
			if err := e.store.UpsertTrack(ctx, store.TrackUpsert{LocalPath: key, RemoteID: remoteID, ISRC: isrcOf(existing), Bitrate: kbps}); err != nil {
				return err
			}
			existing, err = e.store.GetTrack(ctx, key)
			if err != nil {
				return err
			}
		}
	}

	if p.opts.MaxBitrate > 0 && kbps > p.opts.MaxBitrate {
		p.report.Filtered++
		if remoteID != "" {
			p.seen[remoteID] = struct{}{}
		}
		logger.Debug("skipping track above bitrate ceiling",
			logging.Int("bitrate", kbps),
			logging.Int("max_bitrate", p.opts.MaxBitrate),
		)
		return nil
	}

	if remoteID == "" {
		found, err := e.search(ctx, abs)
		if err != nil {
			if services.IsFatal(err) {
				return err
			}
			p.report.Orphaned = append(p.report.Orphaned, key)
			logging.WarnWithContext(logger, "no remote match for track", "search_miss",
				logging.Error(err),
				logging.String(logging.FieldImpact, "track is not mirrored to the playlist"),
			)
			return nil
		}
		remoteID = found.ID
		if err := e.store.UpsertTrack(ctx, store.TrackUpsert{LocalPath: key, RemoteID: found.ID, ISRC: found.ISRC, Bitrate: kbps}); err != nil {
			return err
		}
		existing, err = e.store.GetTrack(ctx, key)
		if err != nil {
			return err
		}
		p.report.Mapped++
		logger.Info("track mapped", logging.String("remote_id", found.ID), logging.Int("bitrate", kbps))
	}

	if _, dup := p.seen[remoteID]; !dup {
		p.seen[remoteID] = struct{}{}
		if _, ok := p.remote[remoteID]; !ok {
			p.pending = append(p.pending, remoteID)
		}
	}

	return e.markPresence(ctx, p, logger, existing, abs, present)
}

// markPresence moves a mapped track to pending_download when its file is
// missing (or a forced update is requested) and back to synced when present.
// Failed and pending_cleanup mappings keep their status.
func (e *Engine) markPresence(ctx context.Context, p *mirrorPass, logger *slog.Logger, track *store.Track, abs string, present bool) error {
	if track == nil {
		return nil
	}
	if track.Status == store.StatusPendingCleanup || (track.Status == store.StatusFailed && !present) {
		return nil
	}

	want := store.StatusSynced
	if !present || p.opts.ForceUpdate {
		want = store.StatusPendingDownload
	}
	if !present {
		p.report.Missing++
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			logging.WarnWithContext(logger, "could not create directory for missing track", "mkdir_failed",
				logging.Error(err),
			)
		}
	}
	if track.Status == want {
		return nil
	}
	if err := e.store.UpdateStatus(ctx, track.LocalPath, want, ""); err != nil {
		return err
	}
	if want == store.StatusPendingDownload {
		logger.Info("track scheduled for download", logging.Bool("file_present", present))
	}
	return nil
}

// search looks the file up by its "Artist - Title" name, retrying once with
// decorations stripped.
func (e *Engine) search(ctx context.Context, abs string) (*tidal.Track, error) {
	artist, title := textutil.GuessArtistTitle(abs)
	found, err := e.catalog.SearchTrack(ctx, title, artist)
	if err == nil {
		return found, nil
	}
	if services.IsFatal(err) {
		return nil, err
	}
	cleanTitle, cleanArtist := textutil.CleanSearchTerm(title), textutil.CleanSearchTerm(artist)
	if cleanTitle == "" || (cleanTitle == title && cleanArtist == artist) {
		return nil, err
	}
	return e.catalog.SearchTrack(ctx, cleanTitle, cleanArtist)
}

// scheduleRemoteOnly records a playlist track the crate lacks. When a local
// mapping for the same remote id already has its file on disk, that file is
// appended to the crate directly; otherwise a placeholder mapping is queued
// for download together with a pending crate addition.
func (e *Engine) scheduleRemoteOnly(ctx context.Context, p *mirrorPass, t tidal.Track) error {
	logger := p.logger.With(logging.String("remote_id", t.ID))

	mappings, err := e.store.FindByRemoteID(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		if m.IsPlaceholder() || m.Status != store.StatusSynced || !fileutil.Exists(e.cfg.ResolveLocal(m.LocalPath)) {
			continue
		}
		if _, err := crate.AddTrack(p.mirror.CratePath, m.LocalPath); err != nil {
			return fmt.Errorf("link existing file into crate: %w", err)
		}
		p.report.Linked++
		logger.Info("linked existing local file for remote-only track", logging.String("path", m.LocalPath))
		return nil
	}

	key := store.PlaceholderKey(t.ID)
	placeholder, err := e.store.GetTrack(ctx, key)
	if err != nil {
		return err
	}
	if placeholder == nil {
		if err := e.store.UpsertTrack(ctx, store.TrackUpsert{
			LocalPath:     key,
			RemoteID:      t.ID,
			ISRC:          t.ISRC,
			DisplayName:   textutil.DisplayName(t.Artist, t.Title),
			InitialStatus: store.StatusPendingDownload,
		}); err != nil {
			return err
		}
		p.report.Scheduled++
		logger.Info("remote-only track scheduled for import", logging.String("display_name", textutil.DisplayName(t.Artist, t.Title)))
	}
	return e.store.RecordPendingCrateAddition(ctx, t.ID, p.mirror.CratePath)
}

func isrcOf(t *store.Track) string {
	if t == nil {
		return ""
	}
	return t.ISRC
}
