package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"cratesync/internal/config"
	"cratesync/internal/crate"
	"cratesync/internal/logging"
	"cratesync/internal/markers"
	"cratesync/internal/media/bitrate"
	"cratesync/internal/services"
	"cratesync/internal/services/tidal"
	"cratesync/internal/store"
)

// Catalog is the remote playlist service the engine reconciles against.
type Catalog interface {
	Authenticate(ctx context.Context) error
	SearchTrack(ctx context.Context, title, artist string) (*tidal.Track, error)
	CreatePlaylist(ctx context.Context, name, description, folder string) (*tidal.Playlist, error)
	PlaylistTracks(ctx context.Context, playlistID string) ([]tidal.Track, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) (int, error)
}

// Downloader fetches remote tracks into the staging directory.
type Downloader interface {
	Configure(ctx context.Context) error
	Download(ctx context.Context, remoteID string) error
}

// BitrateProber reports the bitrate of a local file in kbps.
type BitrateProber interface {
	Bitrate(ctx context.Context, path string) (int, bool)
}

// MarkerTransplanter copies DJ metadata between audio files.
type MarkerTransplanter interface {
	Extract(path string) markers.Result
	Inject(m markers.Markers, path string) markers.InjectResult
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProber overrides the bitrate prober.
func WithProber(p BitrateProber) Option {
	return func(e *Engine) {
		if p != nil {
			e.prober = p
		}
	}
}

// WithTransplanter overrides the marker transplanter.
func WithTransplanter(t MarkerTransplanter) Option {
	return func(e *Engine) {
		if t != nil {
			e.transplanter = t
		}
	}
}

// Engine runs sync, recover, and cleanup passes.
type Engine struct {
	cfg          *config.Config
	store        *store.Store
	catalog      Catalog
	downloader   Downloader
	prober       BitrateProber
	transplanter MarkerTransplanter
	logger       *slog.Logger
}

// New builds an Engine. The downloader may be nil for callers that only sync.
func New(cfg *config.Config, st *store.Store, catalog Catalog, downloader Downloader, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		store:      st,
		catalog:    catalog,
		downloader: downloader,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "reconcile")
	if e.prober == nil {
		e.prober = bitrate.NewProber(cfg, e.logger)
	}
	if e.transplanter == nil {
		e.transplanter = markers.NewTransplanter(e.logger)
	}
	return e
}

// beginPass stamps ctx with a fresh run id and the stage name.
func (e *Engine) beginPass(ctx context.Context, stage string) (context.Context, string, *slog.Logger) {
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	ctx = services.WithStage(ctx, stage)
	return ctx, runID, logging.WithContext(ctx, e.logger)
}

func (e *Engine) authenticate(ctx context.Context, stage string) error {
	if err := e.catalog.Authenticate(ctx); err != nil {
		if services.IsFatal(err) {
			return err
		}
		return services.Wrap(services.ErrAuthentication, stage, "authenticate", "", err)
	}
	return nil
}

func interrupted(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrInterrupted, stage, "", "pass cancelled", err)
	}
	return nil
}

// localKey converts an absolute file path to its crate key relative to the
// configured volume root.
func (e *Engine) localKey(abs string) (string, error) {
	root := e.cfg.Paths.VolumeRoot
	if root == "" {
		root = "/"
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", abs, err)
	}
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", services.Wrap(services.ErrValidation, "reconcile", "local key", abs+" is outside the volume root", nil)
	}
	return crate.NormalizePath(filepath.ToSlash(rel))
}
