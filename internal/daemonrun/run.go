// Package daemonrun wires configuration, logging, storage and the remote
// clients into a running daemon. The CLI reuses Open to build the same
// engine for one-shot commands.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"cratesync/internal/config"
	"cratesync/internal/daemon"
	"cratesync/internal/logging"
	"cratesync/internal/preflight"
	"cratesync/internal/reconcile"
	"cratesync/internal/services/tidal"
	"cratesync/internal/services/tidaldl"
	"cratesync/internal/store"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Runtime bundles the collaborators of one process.
type Runtime struct {
	Store      *store.Store
	Catalog    *tidal.Client
	Downloader *tidaldl.Client
	Engine     *reconcile.Engine
}

// Close releases the store.
func (r *Runtime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}

// Open builds the store, Tidal client, downloader and engine. A missing
// downloader binary is not an error here; recover reports it when needed.
func Open(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	catalog, err := tidal.New(cfg, tidal.WithLogger(logger))
	if err != nil {
		st.Close()
		return nil, err
	}

	rt := &Runtime{Store: st, Catalog: catalog}
	var downloader reconcile.Downloader
	if dl, err := tidaldl.New(cfg, tidaldl.WithLogger(logger)); err == nil {
		rt.Downloader = dl
		downloader = dl
	} else {
		logging.WarnWithContext(logger, "downloader unavailable", "downloader_unavailable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "recover cannot download tracks"),
		)
	}
	rt.Engine = reconcile.New(cfg, st, catalog, downloader, reconcile.WithLogger(logger))
	return rt, nil
}

// Run starts the daemon loop and blocks until a signal or cmdCtx ends it.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logPath := cfg.LogFilePath()
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Rotation: logging.Rotation{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logPreflight(signalCtx, logger, cfg)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	rt, err := Open(cfg, logger)
	if err != nil {
		logger.Error("open runtime", logging.Error(err))
		return err
	}
	defer rt.Close()

	d, err := daemon.New(cfg, rt.Engine, logger)
	if err != nil {
		return err
	}
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running cratesync daemon"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("cratesync daemon shutting down")
	d.Stop()
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, s := range preflight.CheckSystemDeps(cfg) {
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "dependency_snapshot"),
			logging.String("dependency", s.Name),
			logging.String("command", s.Command),
			logging.Bool("available", s.Available),
		}
		if !s.Available && !s.Optional {
			logger.Warn("required dependency missing", logging.Args(append(attrs, logging.String("detail", s.Detail))...)...)
			continue
		}
		logger.Debug("dependency checked", logging.Args(attrs...)...)
	}
	for _, r := range preflight.Failed(preflight.RunAll(ctx, cfg)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
		)
	}
}
