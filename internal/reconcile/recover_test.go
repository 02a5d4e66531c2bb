package reconcile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cratesync/internal/fileutil"
	"cratesync/internal/reconcile"
	"cratesync/internal/services"
	"cratesync/internal/store"
	"cratesync/internal/testsupport"
)

func (h *harness) pending(t *testing.T, key, remoteID string) {
	t.Helper()
	h.mapTrack(t, key, remoteID, 0)
	h.setStatus(t, key, store.StatusPendingDownload)
}

func TestRecoverRestoresMissingTrack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	setCrate := testsupport.WriteCrate(t, h.cfg, "Set", keyA, keyD)
	otherCrate := testsupport.WriteCrate(t, h.cfg, "Other", keyD)
	h.pending(t, keyD, "4")
	h.downloader.files["4"] = "Artist D - Four.flac"

	report, err := h.engine.Recover(ctx, reconcile.RecoverOptions{})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(report.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(report.Items))
	}
	item := report.Items[0]
	if item.Outcome != reconcile.OutcomeRestored || item.Err != nil {
		t.Fatalf("unexpected item: %+v", item)
	}
	const newKey = "Music/Artist D - Four.flac"
	final := h.cfg.ResolveLocal(newKey)
	if item.Path != final {
		t.Fatalf("expected file at %s, got %s", final, item.Path)
	}
	if readFile(t, final) != "downloaded-audio" {
		t.Fatalf("final file has unexpected content")
	}
	if len(item.Backups) != 0 {
		t.Fatalf("nothing should be backed up for a missing track: %v", item.Backups)
	}
	if h.downloader.configured != 1 {
		t.Fatalf("expected downloader configured once, got %d", h.downloader.configured)
	}
	if len(h.markers.extracted) != 0 {
		t.Fatalf("no markers to extract from a missing file")
	}

	for _, cratePath := range []string{setCrate, otherCrate} {
		keys := testsupport.CrateKeys(t, cratePath)
		if !contains(keys, newKey) || contains(keys, keyD) {
			t.Fatalf("crate %s not rewritten: %v", filepath.Base(cratePath), keys)
		}
	}
	if !contains(testsupport.CrateKeys(t, setCrate), keyA) {
		t.Fatalf("unrelated crate entry lost")
	}

	restored := h.mustStatus(t, newKey, store.StatusSynced)
	if restored.RemoteID != "4" || restored.Bitrate != 320 {
		t.Fatalf("unexpected restored mapping: %+v", restored)
	}
	old := h.mustStatus(t, keyD, store.StatusSynced)
	if old.DownloadedPath != final {
		t.Fatalf("expected old mapping to point at %s, got %q", final, old.DownloadedPath)
	}
}

func TestRecoverUpgradeBacksUpOriginalAndCleanupRemovesIt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	original := testsupport.WriteTrack(t, h.cfg, keyA)
	h.pending(t, keyA, "1")
	h.downloader.files["1"] = "Artist A - One.mp3"

	report, err := h.engine.Recover(ctx, reconcile.RecoverOptions{})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	item := report.Items[0]
	if item.Outcome != reconcile.OutcomeRestored {
		t.Fatalf("unexpected item: %+v", item)
	}
	backup := fileutil.BackupPath(original)
	if len(item.Backups) != 1 || item.Backups[0] != backup {
		t.Fatalf("expected backup %s, got %v", backup, item.Backups)
	}
	if readFile(t, original) != "downloaded-audio" {
		t.Fatalf("original path should hold the download")
	}
	if !fileutil.Exists(backup) {
		t.Fatalf("backup missing")
	}
	if len(h.markers.extracted) != 1 || h.markers.extracted[0] != original {
		t.Fatalf("markers not extracted from original: %v", h.markers.extracted)
	}
	if len(h.markers.injected) != 1 || h.markers.injected[0] != original {
		t.Fatalf("markers not injected into new file: %v", h.markers.injected)
	}

	h.mustStatus(t, keyA, store.StatusSynced)
	backupKey := "Music/" + fileutil.BackupPrefix + "Artist A - One.mp3"
	row := h.mustStatus(t, backupKey, store.StatusPendingCleanup)
	if row.DownloadedPath != backup {
		t.Fatalf("backup row points at %q", row.DownloadedPath)
	}

	cleanup, err := h.engine.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(cleanup.Deleted) != 1 || cleanup.Deleted[0] != backup || len(cleanup.Errors) != 0 {
		t.Fatalf("unexpected cleanup report: %+v", cleanup)
	}
	if fileutil.Exists(backup) {
		t.Fatalf("backup still on disk")
	}
	if h.track(t, backupKey) != nil {
		t.Fatalf("backup mapping should be dropped")
	}
	h.mustStatus(t, keyA, store.StatusSynced)
}

func TestRecoverUpgradeWithNewExtension(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	original := testsupport.WriteTrack(t, h.cfg, keyB)
	cratePath := testsupport.WriteCrate(t, h.cfg, "Set", keyB)
	h.pending(t, keyB, "2")
	h.downloader.files["2"] = "Artist B - Two.flac"

	if _, err := h.engine.Recover(ctx, reconcile.RecoverOptions{}); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	backup := fileutil.BackupPath(original)
	if fileutil.Exists(original) || !fileutil.Exists(backup) {
		t.Fatalf("original should be moved to %s", backup)
	}
	const newKey = "Music/Artist B - Two.flac"
	if !contains(testsupport.CrateKeys(t, cratePath), newKey) {
		t.Fatalf("crate not pointed at new file")
	}
	h.mustStatus(t, newKey, store.StatusSynced)
	old := h.mustStatus(t, keyB, store.StatusPendingCleanup)
	if old.DownloadedPath != backup {
		t.Fatalf("old mapping should record the backup, got %q", old.DownloadedPath)
	}
}

func TestRecoverImportsRemoteOnlyTrack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cratePath := testsupport.WriteCrate(t, h.cfg, "Set", keyA)
	placeholder := store.PlaceholderKey("7")
	if err := h.store.UpsertTrack(ctx, store.TrackUpsert{
		LocalPath:     placeholder,
		RemoteID:      "7",
		DisplayName:   "Remote - Only",
		InitialStatus: store.StatusPendingDownload,
	}); err != nil {
		t.Fatalf("UpsertTrack: %v", err)
	}
	if err := h.store.RecordPendingCrateAddition(ctx, "7", cratePath); err != nil {
		t.Fatalf("RecordPendingCrateAddition: %v", err)
	}
	h.downloader.files["7"] = "Remote - Only.flac"

	report, err := h.engine.Recover(ctx, reconcile.RecoverOptions{})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	item := report.Items[0]
	if item.Outcome != reconcile.OutcomeImported || len(item.Crates) != 1 {
		t.Fatalf("unexpected item: %+v", item)
	}

	const key = "staging/Remote - Only.flac"
	if !fileutil.Exists(h.cfg.ResolveLocal(key)) {
		t.Fatalf("imported file should stay in staging")
	}
	keys := testsupport.CrateKeys(t, cratePath)
	if !contains(keys, key) || !contains(keys, keyA) {
		t.Fatalf("crate not extended: %v", keys)
	}
	row := h.mustStatus(t, key, store.StatusSynced)
	if row.RemoteID != "7" || row.DisplayName != "Remote - Only" {
		t.Fatalf("unexpected imported mapping: %+v", row)
	}
	if h.track(t, placeholder) != nil {
		t.Fatalf("placeholder should be replaced")
	}
	if crates, _ := h.store.PendingCrateAdditions(ctx, "7"); len(crates) != 0 {
		t.Fatalf("pending additions not cleared: %v", crates)
	}
}

func TestRecoverTakesRemoteIDFromPlaceholderKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	placeholder := store.PlaceholderKey("8")
	if err := h.store.UpsertTrack(ctx, store.TrackUpsert{
		LocalPath:     placeholder,
		InitialStatus: store.StatusPendingDownload,
	}); err != nil {
		t.Fatalf("UpsertTrack: %v", err)
	}
	h.downloader.files["8"] = "Keyed - Only.flac"

	plan, err := h.engine.Recover(ctx, reconcile.RecoverOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Recover dry run: %v", err)
	}
	if len(plan.Planned) != 1 || plan.Planned[0].RemoteID != "8" {
		t.Fatalf("unexpected plan: %+v", plan.Planned)
	}

	report, err := h.engine.Recover(ctx, reconcile.RecoverOptions{})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if item := report.Items[0]; item.Outcome != reconcile.OutcomeImported || item.RemoteID != "8" {
		t.Fatalf("unexpected item: %+v", item)
	}
	row := h.mustStatus(t, "staging/Keyed - Only.flac", store.StatusSynced)
	if row.RemoteID != "8" {
		t.Fatalf("imported mapping lost its remote id: %+v", row)
	}
	if h.track(t, placeholder) != nil {
		t.Fatalf("placeholder should be replaced")
	}
}

func TestRecoverResumesImportLeftHalfDone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := testsupport.WriteCrate(t, h.cfg, "Set", keyA)
	second := testsupport.WriteCrate(t, h.cfg, "Later", keyB)
	placeholder := store.PlaceholderKey("7")
	queue := func() {
		t.Helper()
		if err := h.store.UpsertTrack(ctx, store.TrackUpsert{
			LocalPath:     placeholder,
			RemoteID:      "7",
			DisplayName:   "Remote - Only",
			InitialStatus: store.StatusPendingDownload,
		}); err != nil {
			t.Fatalf("UpsertTrack: %v", err)
		}
	}
	queue()
	if err := h.store.RecordPendingCrateAddition(ctx, "7", first); err != nil {
		t.Fatalf("RecordPendingCrateAddition: %v", err)
	}
	h.downloader.files["7"] = "Remote - Only.flac"
	if _, err := h.engine.Recover(ctx, reconcile.RecoverOptions{}); err != nil {
		t.Fatalf("first Recover: %v", err)
	}

	// The real mapping exists but the placeholder came back, as after a stop
	// between writing one and deleting the other.
	queue()
	if err := h.store.RecordPendingCrateAddition(ctx, "7", second); err != nil {
		t.Fatalf("RecordPendingCrateAddition: %v", err)
	}
	report, err := h.engine.Recover(ctx, reconcile.RecoverOptions{})
	if err != nil {
		t.Fatalf("second Recover: %v", err)
	}
	item := report.Items[0]
	if item.Outcome != reconcile.OutcomeImported || !item.Reused || item.Err != nil {
		t.Fatalf("unexpected item: %+v", item)
	}
	if len(h.downloader.calls) != 1 {
		t.Fatalf("expected no second download, got calls %v", h.downloader.calls)
	}

	const key = "staging/Remote - Only.flac"
	for _, cratePath := range []string{first, second} {
		keys := testsupport.CrateKeys(t, cratePath)
		n := 0
		for _, k := range keys {
			if k == key {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("crate %s should list the import once: %v", filepath.Base(cratePath), keys)
		}
	}
	h.mustStatus(t, key, store.StatusSynced)
	if h.track(t, placeholder) != nil {
		t.Fatalf("placeholder should be removed")
	}
	if crates, _ := h.store.PendingCrateAdditions(ctx, "7"); len(crates) != 0 {
		t.Fatalf("pending additions not cleared: %v", crates)
	}
}

func TestRecoverBacksUpOriginalAndOccupiedTarget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	original := testsupport.WriteTrack(t, h.cfg, keyB)
	const targetKey = "Music/Artist B - Two.flac"
	occupant := testsupport.WriteTrack(t, h.cfg, targetKey)
	if err := os.WriteFile(occupant, []byte("older-flac"), 0o644); err != nil {
		t.Fatalf("write occupant: %v", err)
	}
	h.pending(t, keyB, "2")
	h.downloader.files["2"] = "Artist B - Two.flac"

	report, err := h.engine.Recover(ctx, reconcile.RecoverOptions{})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	item := report.Items[0]
	if item.Outcome != reconcile.OutcomeRestored {
		t.Fatalf("unexpected item: %+v", item)
	}

	originalBackup := fileutil.BackupPath(original)
	occupantBackup := fileutil.BackupPath(occupant)
	if len(item.Backups) != 2 {
		t.Fatalf("expected two backups, got %v", item.Backups)
	}
	for _, path := range []string{originalBackup, occupantBackup} {
		if !fileutil.Exists(path) {
			t.Fatalf("missing backup %s", path)
		}
	}
	if fileutil.Exists(original) {
		t.Fatalf("original should have moved to its backup")
	}
	if readFile(t, occupant) != "downloaded-audio" {
		t.Fatalf("target should hold the download")
	}
	if readFile(t, occupantBackup) != "older-flac" {
		t.Fatalf("previous target content lost")
	}

	h.mustStatus(t, targetKey, store.StatusSynced)
	old := h.mustStatus(t, keyB, store.StatusPendingCleanup)
	if old.DownloadedPath != originalBackup {
		t.Fatalf("old mapping should point at %s, got %q", originalBackup, old.DownloadedPath)
	}
	row := h.mustStatus(t, "Music/BACKUP-Artist B - Two.flac", store.StatusPendingCleanup)
	if row.DownloadedPath != occupantBackup {
		t.Fatalf("target backup row points at %q", row.DownloadedPath)
	}
}

func TestRecoverSecondUpgradeKeepsPendingBackup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	original := testsupport.WriteTrack(t, h.cfg, keyA)
	if err := os.WriteFile(original, []byte("first-rip"), 0o644); err != nil {
		t.Fatalf("write original: %v", err)
	}
	h.pending(t, keyA, "1")
	h.downloader.files["1"] = "Artist A - One.mp3"
	if _, err := h.engine.Recover(ctx, reconcile.RecoverOptions{}); err != nil {
		t.Fatalf("first Recover: %v", err)
	}

	h.setStatus(t, keyA, store.StatusPendingDownload)
	h.downloader.content = "second-download"
	report, err := h.engine.Recover(ctx, reconcile.RecoverOptions{})
	if err != nil {
		t.Fatalf("second Recover: %v", err)
	}
	if item := report.Items[0]; item.Outcome != reconcile.OutcomeRestored {
		t.Fatalf("unexpected item: %+v", item)
	}

	firstBackup := fileutil.BackupPath(original)
	secondBackup := filepath.Join(filepath.Dir(original), "BACKUP-Artist A - One-2.mp3")
	if readFile(t, firstBackup) != "first-rip" {
		t.Fatalf("earlier backup was overwritten")
	}
	if readFile(t, secondBackup) != "downloaded-audio" {
		t.Fatalf("second backup should hold the first download")
	}
	if readFile(t, original) != "second-download" {
		t.Fatalf("track should hold the latest download")
	}
	h.mustStatus(t, "Music/BACKUP-Artist A - One.mp3", store.StatusPendingCleanup)
	row := h.mustStatus(t, "Music/BACKUP-Artist A - One-2.mp3", store.StatusPendingCleanup)
	if row.DownloadedPath != secondBackup {
		t.Fatalf("second backup row points at %q", row.DownloadedPath)
	}
}

func TestRecoverFailureMarksTrackAndContinues(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.pending(t, keyA, "1")
	h.pending(t, keyD, "4")
	h.downloader.failures["1"] = services.Wrap(services.ErrDownload, "tidaldl", "download", "exit status 1", nil)
	h.downloader.files["4"] = "Artist D - Four.flac"

	report, err := h.engine.Recover(ctx, reconcile.RecoverOptions{})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if report.Count(reconcile.OutcomeFailed) != 1 || report.Count(reconcile.OutcomeRestored) != 1 {
		t.Fatalf("unexpected outcomes: %+v", report.Items)
	}
	h.mustStatus(t, keyA, store.StatusFailed)

	n, err := h.engine.Retry(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Retry: %d %v", n, err)
	}
	h.mustStatus(t, keyA, store.StatusPendingDownload)
}

func TestRecoverFailsWhenNoFileAppears(t *testing.T) {
	h := newHarness(t)
	h.pending(t, keyD, "4")

	report, err := h.engine.Recover(context.Background(), reconcile.RecoverOptions{})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	item := report.Items[0]
	if item.Outcome != reconcile.OutcomeFailed || !errors.Is(item.Err, services.ErrDownload) {
		t.Fatalf("expected download failure, got %+v", item)
	}
	h.mustStatus(t, keyD, store.StatusFailed)
}

func TestRecoverReusesStagedFile(t *testing.T) {
	h := newHarness(t)
	h.pending(t, keyD, "4")
	testsupport.WriteFile(t, filepath.Join(h.cfg.Paths.StagingDir, "Artist D - Four.flac"), 32)

	report, err := h.engine.Recover(context.Background(), reconcile.RecoverOptions{})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	item := report.Items[0]
	if !item.Reused || item.Outcome != reconcile.OutcomeRestored {
		t.Fatalf("expected reuse, got %+v", item)
	}
	if len(h.downloader.calls) != 0 {
		t.Fatalf("downloader should not run, got %v", h.downloader.calls)
	}
	h.mustStatus(t, "Music/Artist D - Four.flac", store.StatusSynced)
}

func TestRecoverSkipsStagedFileAlreadyMapped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const imported = "staging/Remote - Only.flac"
	testsupport.WriteTrack(t, h.cfg, imported)
	h.mapTrack(t, imported, "7", 900)
	if err := h.store.UpsertTrack(ctx, store.TrackUpsert{
		LocalPath:     store.PlaceholderKey("8"),
		RemoteID:      "8",
		DisplayName:   "Remote - Only",
		InitialStatus: store.StatusPendingDownload,
	}); err != nil {
		t.Fatalf("UpsertTrack: %v", err)
	}
	h.downloader.files["8"] = "Remote - Only (Extended Mix).flac"

	report, err := h.engine.Recover(ctx, reconcile.RecoverOptions{})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	item := report.Items[0]
	if item.Reused || len(h.downloader.calls) != 1 {
		t.Fatalf("expected a fresh download, got %+v (calls %v)", item, h.downloader.calls)
	}
	if !strings.HasSuffix(item.Path, "Remote - Only (Extended Mix).flac") {
		t.Fatalf("unexpected path %s", item.Path)
	}
	h.mustStatus(t, imported, store.StatusSynced)
}

func TestRecoverDryRunPlansWithoutTouchingAnything(t *testing.T) {
	h := newHarness(t)
	h.pending(t, keyD, "4")
	if err := h.store.UpsertTrack(context.Background(), store.TrackUpsert{
		LocalPath:     store.PlaceholderKey("7"),
		RemoteID:      "7",
		InitialStatus: store.StatusPendingDownload,
	}); err != nil {
		t.Fatalf("UpsertTrack: %v", err)
	}

	report, err := h.engine.Recover(context.Background(), reconcile.RecoverOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if len(report.Planned) != 2 || len(report.Items) != 0 {
		t.Fatalf("unexpected plan: %+v", report)
	}
	targets := map[string]string{}
	for _, p := range report.Planned {
		targets[p.RemoteID] = p.Target
		if !strings.Contains(p.Command, "dl \"https://tidal.com/browse/track/"+p.RemoteID+"\"") {
			t.Fatalf("unexpected command %q", p.Command)
		}
	}
	if targets["4"] != h.cfg.ResolveLocal(keyD) || targets["7"] != h.cfg.Paths.StagingDir {
		t.Fatalf("unexpected targets: %v", targets)
	}
	if h.downloader.configured != 0 || len(h.downloader.calls) != 0 {
		t.Fatalf("dry run must not download")
	}
	h.mustStatus(t, keyD, store.StatusPendingDownload)
}

func TestRecoverStopsWhenInterrupted(t *testing.T) {
	h := newHarness(t)
	h.pending(t, keyD, "4")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.Recover(ctx, reconcile.RecoverOptions{})
	if !isInterrupted(err) {
		t.Fatalf("expected interrupted error, got %v", err)
	}
	h.mustStatus(t, keyD, store.StatusPendingDownload)
}

func TestRecoverRequiresDownloader(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if err := st.UpsertTrack(context.Background(), store.TrackUpsert{LocalPath: keyD, RemoteID: "4", InitialStatus: store.StatusPendingDownload}); err != nil {
		t.Fatalf("UpsertTrack: %v", err)
	}
	engine := reconcile.New(cfg, st, newFakeCatalog(), nil, reconcile.WithProber(&fakeProber{}), reconcile.WithTransplanter(&fakeTransplanter{}))

	_, err := engine.Recover(context.Background(), reconcile.RecoverOptions{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCleanupRefusesNonBackupFiles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	abs := testsupport.WriteTrack(t, h.cfg, keyA)
	h.mapTrack(t, keyA, "1", 320)
	if err := h.store.UpdateStatus(ctx, keyA, store.StatusPendingCleanup, abs); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	report, err := h.engine.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !errors.Is(report.Errors[keyA], services.ErrValidation) {
		t.Fatalf("expected refusal, got %+v", report)
	}
	if _, err := os.Stat(abs); err != nil {
		t.Fatalf("non-backup file was touched: %v", err)
	}
	h.mustStatus(t, keyA, store.StatusPendingCleanup)
}

func TestCleanupDropsRowsWhoseBackupIsGone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	const key = "Music/BACKUP-Gone.mp3"
	h.mapTrack(t, key, "", 0)
	if err := h.store.UpdateStatus(ctx, key, store.StatusPendingCleanup, h.cfg.ResolveLocal(key)); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	report, err := h.engine.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(report.Missing) != 1 || len(report.Deleted) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if h.track(t, key) != nil {
		t.Fatalf("row should be dropped")
	}
}

func TestResetAndDiscover(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	testsupport.WriteCrate(t, h.cfg, "One")
	testsupport.WriteCrate(t, h.cfg, "Two")
	added, err := h.engine.Discover(ctx)
	if err != nil || added != 2 {
		t.Fatalf("Discover: %d %v", added, err)
	}
	if added, _ := h.engine.Discover(ctx); added != 0 {
		t.Fatalf("rediscovery should add nothing, got %d", added)
	}

	h.mapTrack(t, keyA, "1", 320)
	h.mapTrack(t, keyB, "2", 320)
	n, err := h.engine.Reset(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Reset: %d %v", n, err)
	}
	mirrors, err := h.store.ListMirrors(ctx, false)
	if err != nil || len(mirrors) != 2 {
		t.Fatalf("mirrors should survive reset: %d %v", len(mirrors), err)
	}
}
