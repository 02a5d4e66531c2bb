package reconcile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cratesync/internal/config"
	"cratesync/internal/markers"
	"cratesync/internal/reconcile"
	"cratesync/internal/services"
	"cratesync/internal/services/tidal"
	"cratesync/internal/store"
	"cratesync/internal/testsupport"
)

type fakeCatalog struct {
	authErr   error
	results   map[string]tidal.Track
	playlists map[string][]string
	meta      map[string]tidal.Track
	gone      map[string]bool
	onSearch  func()

	created  []string
	addCalls int
	searches []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		results:   map[string]tidal.Track{},
		playlists: map[string][]string{},
		meta:      map[string]tidal.Track{},
		gone:      map[string]bool{},
	}
}

func (f *fakeCatalog) Authenticate(context.Context) error { return f.authErr }

func (f *fakeCatalog) SearchTrack(_ context.Context, title, artist string) (*tidal.Track, error) {
	f.searches = append(f.searches, artist+"|"+title)
	if f.onSearch != nil {
		f.onSearch()
	}
	if t, ok := f.results[artist+"|"+title]; ok {
		return &t, nil
	}
	return nil, services.Wrap(services.ErrSearchMiss, "tidal", "search", title, nil)
}

func (f *fakeCatalog) CreatePlaylist(_ context.Context, name, _, _ string) (*tidal.Playlist, error) {
	id := "pl-" + name
	f.created = append(f.created, name)
	f.playlists[id] = nil
	return &tidal.Playlist{ID: id, Title: name}, nil
}

func (f *fakeCatalog) PlaylistTracks(_ context.Context, id string) ([]tidal.Track, error) {
	if f.gone[id] {
		return nil, services.Wrap(services.ErrNotFound, "tidal", "playlist", id, nil)
	}
	var tracks []tidal.Track
	for _, tid := range f.playlists[id] {
		t, ok := f.meta[tid]
		if !ok {
			t = tidal.Track{ID: tid}
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

func (f *fakeCatalog) AddTracksToPlaylist(_ context.Context, id string, ids []string) (int, error) {
	if f.gone[id] {
		return 0, services.Wrap(services.ErrNotFound, "tidal", "playlist", id, nil)
	}
	f.addCalls++
	present := map[string]bool{}
	for _, existing := range f.playlists[id] {
		present[existing] = true
	}
	added := 0
	for _, tid := range ids {
		if present[tid] {
			continue
		}
		present[tid] = true
		f.playlists[id] = append(f.playlists[id], tid)
		added++
	}
	return added, nil
}

// fakeDownloader drops a file named after files[remoteID] into staging.
type fakeDownloader struct {
	dir        string
	files      map[string]string
	failures   map[string]error
	content    string
	configured int
	calls      []string
}

func (f *fakeDownloader) Configure(context.Context) error {
	f.configured++
	return nil
}

func (f *fakeDownloader) Download(_ context.Context, remoteID string) error {
	f.calls = append(f.calls, remoteID)
	if err := f.failures[remoteID]; err != nil {
		return err
	}
	name, ok := f.files[remoteID]
	if !ok {
		return nil
	}
	path := filepath.Join(f.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	content := f.content
	if content == "" {
		content = "downloaded-audio"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

type fakeProber struct {
	rates    map[string]int
	fallback int
}

func (f *fakeProber) Bitrate(_ context.Context, path string) (int, bool) {
	if v, ok := f.rates[path]; ok {
		return v, v > 0
	}
	return f.fallback, f.fallback > 0
}

type fakeTransplanter struct {
	extracted []string
	injected  []string
}

func (f *fakeTransplanter) Extract(path string) markers.Result {
	f.extracted = append(f.extracted, path)
	return markers.Result{Markers: markers.Markers{markers.SeratoMarkers2: []byte("cues")}, OK: true}
}

func (f *fakeTransplanter) Inject(m markers.Markers, path string) markers.InjectResult {
	f.injected = append(f.injected, path)
	return markers.InjectResult{Injected: true, Count: len(m)}
}

type harness struct {
	cfg        *config.Config
	store      *store.Store
	catalog    *fakeCatalog
	downloader *fakeDownloader
	prober     *fakeProber
	markers    *fakeTransplanter
	engine     *reconcile.Engine
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Recovery.StagingMaxAgeHours = 0
	h := &harness{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		catalog:    newFakeCatalog(),
		downloader: &fakeDownloader{dir: cfg.Paths.StagingDir, files: map[string]string{}, failures: map[string]error{}},
		prober:     &fakeProber{rates: map[string]int{}, fallback: 320},
		markers:    &fakeTransplanter{},
	}
	h.engine = reconcile.New(cfg, h.store, h.catalog, h.downloader,
		reconcile.WithProber(h.prober),
		reconcile.WithTransplanter(h.markers),
	)
	return h
}

// activeCrate writes a crate and registers it as an active mirror.
func (h *harness) activeCrate(t *testing.T, name string, keys ...string) string {
	t.Helper()
	path := testsupport.WriteCrate(t, h.cfg, name, keys...)
	if err := h.store.SetMirrorActive(context.Background(), path, true); err != nil {
		t.Fatalf("activate mirror: %v", err)
	}
	return path
}

func (h *harness) mapTrack(t *testing.T, key, remoteID string, kbps int) {
	t.Helper()
	if err := h.store.UpsertTrack(context.Background(), store.TrackUpsert{LocalPath: key, RemoteID: remoteID, Bitrate: kbps}); err != nil {
		t.Fatalf("map track: %v", err)
	}
}

func (h *harness) setStatus(t *testing.T, key string, status store.Status) {
	t.Helper()
	if err := h.store.UpdateStatus(context.Background(), key, status, ""); err != nil {
		t.Fatalf("set status: %v", err)
	}
}

func (h *harness) track(t *testing.T, key string) *store.Track {
	t.Helper()
	track, err := h.store.GetTrack(context.Background(), key)
	if err != nil {
		t.Fatalf("get track %s: %v", key, err)
	}
	return track
}

func (h *harness) mustStatus(t *testing.T, key string, want store.Status) *store.Track {
	t.Helper()
	track := h.track(t, key)
	if track == nil {
		t.Fatalf("expected mapping for %s", key)
	}
	if track.Status != want {
		t.Fatalf("%s: expected status %s, got %s", key, want, track.Status)
	}
	return track
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if strings.TrimPrefix(v, "/") == strings.TrimPrefix(want, "/") {
			return true
		}
	}
	return false
}

func isInterrupted(err error) bool {
	return errors.Is(err, services.ErrInterrupted)
}
