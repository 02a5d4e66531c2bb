package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"cratesync/internal/config"
	"cratesync/internal/logging"
	"cratesync/internal/notifications"
	"cratesync/internal/reconcile"
	"cratesync/internal/services"
)

// Engine is the reconciliation work one iteration runs.
type Engine interface {
	Sync(ctx context.Context, opts reconcile.SyncOptions) (*reconcile.SyncReport, error)
	Recover(ctx context.Context, opts reconcile.RecoverOptions) (*reconcile.RecoverReport, error)
}

// Option adjusts a Daemon.
type Option func(*Daemon)

// WithIntervals overrides the configured loop intervals.
func WithIntervals(interval, retry time.Duration) Option {
	return func(d *Daemon) {
		if interval > 0 {
			d.interval = interval
		}
		if retry > 0 {
			d.retryInterval = retry
		}
	}
}

// WithNotifier sets where iteration summaries are published.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) {
		if n != nil {
			d.notifier = n
		}
	}
}

// Iteration records one sync + recover round.
type Iteration struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Sync     *reconcile.SyncReport
	Recover  *reconcile.RecoverReport
	Err      error
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	LockFilePath string
	Iterations   int
	Last         Iteration
	NextRun      time.Time
}

// Daemon runs the reconciliation loop and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	engine   Engine
	logger   *slog.Logger
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	interval      time.Duration
	retryInterval time.Duration
	syncOpts      reconcile.SyncOptions
	recover       bool

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu         sync.Mutex
	iterations int
	last       Iteration
	nextRun    time.Time
}

// New constructs a daemon around an engine.
func New(cfg *config.Config, engine Engine, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || engine == nil {
		return nil, errors.New("daemon requires config and engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:           cfg,
		engine:        engine,
		logger:        logging.NewComponentLogger(logger, "daemon"),
		notifier:      notifications.NewService(cfg),
		lockPath:      lockPath,
		lock:          flock.New(lockPath),
		interval:      time.Duration(cfg.Sync.Interval) * time.Second,
		retryInterval: time.Duration(cfg.Sync.ErrorRetryInterval) * time.Second,
		syncOpts:      reconcile.SyncOptions{MaxBitrate: cfg.Sync.MaxBitrate, ForceUpdate: cfg.Sync.ForceUpdate},
		recover:       cfg.Sync.RecoverAfterSync,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.interval <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "", "sync interval must be positive", nil)
	}
	if d.retryInterval <= 0 {
		d.retryInterval = d.interval
	}
	return d, nil
}

// Start acquires the lock and launches the loop in the background.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another cratesync daemon instance is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running.Store(true)
	go d.loop(loopCtx)

	d.logger.Info("cratesync daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("interval", d.interval),
		logging.Bool("recover_after_sync", d.recover),
	)
	return nil
}

// Stop cancels the loop, waits for the current iteration to end and
// releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	<-d.done
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("cratesync daemon stopped")
}

// Done is closed when the loop exits.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		LockFilePath: d.lockPath,
		Iterations:   d.iterations,
		Last:         d.last,
		NextRun:      d.nextRun,
	}
}

func (d *Daemon) loop(ctx context.Context) {
	defer close(d.done)
	for {
		it := d.RunOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		wait := d.interval
		if it.Err != nil {
			wait = d.retryInterval
		}
		d.mu.Lock()
		d.nextRun = time.Now().Add(wait)
		d.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce performs a single sync pass followed, when enabled, by a recover
// pass. Recovery is skipped when the sync pass itself failed.
func (d *Daemon) RunOnce(ctx context.Context) Iteration {
	it := Iteration{ID: uuid.NewString(), Started: time.Now()}
	logger := d.logger.With(logging.String("iteration_id", it.ID))

	it.Sync, it.Err = d.engine.Sync(ctx, d.syncOpts)
	if it.Err == nil && d.recover {
		it.Recover, it.Err = d.engine.Recover(ctx, reconcile.RecoverOptions{})
	}
	it.Finished = time.Now()

	switch {
	case it.Err == nil:
		attrs := []logging.Attr{logging.Duration("elapsed", it.Finished.Sub(it.Started))}
		if it.Sync != nil {
			attrs = append(attrs, logging.Int("mirrors", len(it.Sync.Mirrors)), logging.Int("mirrors_failed", it.Sync.Failed()))
		}
		if it.Recover != nil {
			attrs = append(attrs,
				logging.Int("restored", it.Recover.Count(reconcile.OutcomeRestored)),
				logging.Int("imported", it.Recover.Count(reconcile.OutcomeImported)),
				logging.Int("recover_failed", it.Recover.Count(reconcile.OutcomeFailed)),
			)
		}
		logger.Info("iteration finished", logging.Args(attrs...)...)
	case errors.Is(it.Err, services.ErrInterrupted) && ctx.Err() != nil:
		logger.Info("iteration interrupted by shutdown")
	case errors.Is(it.Err, services.ErrAuthentication):
		logging.ErrorWithContext(logger, "iteration failed: not authenticated", "daemon_auth_failed",
			logging.Error(it.Err),
			logging.String(logging.FieldErrorHint, "run `cratesync auth login`; the daemon retries automatically"),
			logging.Duration("retry_in", d.retryInterval),
		)
	default:
		logging.ErrorWithContext(logger, "iteration failed", "daemon_iteration_failed",
			logging.Error(it.Err),
			logging.Duration("retry_in", d.retryInterval),
		)
	}

	d.notify(ctx, logger, it)

	d.mu.Lock()
	d.iterations++
	d.last = it
	d.mu.Unlock()
	return it
}

// notify publishes the iteration outcome. Delivery failures only warn.
func (d *Daemon) notify(ctx context.Context, logger *slog.Logger, it Iteration) {
	if ctx.Err() != nil {
		return
	}
	// Recover only runs after a clean sync, so a recover report implies one.
	syncOK := it.Err == nil || it.Recover != nil
	var errs []error
	if it.Sync != nil && syncOK {
		errs = append(errs, d.notifier.NotifySyncCompleted(ctx, summarizeSync(it.Sync)))
	}
	if it.Recover != nil && it.Err == nil {
		errs = append(errs, d.notifier.NotifyRecoverCompleted(ctx, notifications.RecoverSummary{
			Restored: it.Recover.Count(reconcile.OutcomeRestored),
			Imported: it.Recover.Count(reconcile.OutcomeImported),
			Failed:   it.Recover.Count(reconcile.OutcomeFailed),
		}))
	}
	if it.Err != nil {
		stage := "sync"
		if it.Recover != nil {
			stage = "recover"
		}
		errs = append(errs, d.notifier.NotifyError(ctx, it.Err, stage))
	}
	if err := errors.Join(errs...); err != nil {
		logging.WarnWithContext(logger, "notification delivery failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "iteration summary not delivered"),
		)
	}
}

func summarizeSync(r *reconcile.SyncReport) notifications.SyncSummary {
	s := notifications.SyncSummary{Mirrors: len(r.Mirrors), FailedMirrors: r.Failed()}
	for _, m := range r.Mirrors {
		s.Added += m.Added
		s.Missing += m.Missing
		s.Scheduled += m.Scheduled
	}
	return s
}
