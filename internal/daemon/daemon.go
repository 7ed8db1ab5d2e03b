package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"voxbox/internal/config"
	"voxbox/internal/intake"
	"voxbox/internal/logging"
	"voxbox/internal/oauth"
	"voxbox/internal/queue"
	"voxbox/internal/staging"
	"voxbox/internal/workflow"
)

// staleStagingAge is how old an orphaned staging directory must be before
// startup cleanup removes it.
const staleStagingAge = 48 * time.Hour

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	watcher  *intake.Watcher
	oauthSrv *oauth.Server

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	OAuthAddr    string
}

// New constructs a daemon with initialized dependencies. The intake watcher
// and OAuth server are optional; the OAuth server is only present in dropbox
// mode.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, watcher *intake.Watcher, oauthSrv *oauth.Server) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "voxboxd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		workflow: wf,
		watcher:  watcher,
		oauthSrv: oauthSrv,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock, rewinds interrupted jobs, and launches
// the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another voxbox daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)

	reset, err := d.store.ResetInFlight(runCtx)
	if err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("reset in-flight jobs: %w", err)
	}
	if reset > 0 {
		d.logger.Info("rewound interrupted jobs", logging.Int64("count", reset))
	}

	cleanup := staging.CleanStale(d.cfg.Paths.StagingDir, staleStagingAge, d.logger)
	if len(cleanup.Removed) > 0 {
		d.logger.Info("removed stale staging directories", logging.Int("count", len(cleanup.Removed)))
	}

	if d.oauthSrv != nil {
		if err := d.oauthSrv.Start(runCtx); err != nil {
			_ = d.lock.Unlock()
			cancel()
			return fmt.Errorf("start oauth server: %w", err)
		}
		d.logger.Info("oauth endpoint listening", logging.String("addr", d.oauthSrv.Addr()))
	}

	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}

	if d.watcher != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.watcher.Run(runCtx); err != nil {
				d.logger.Error("intake watcher stopped", logging.Error(err))
			}
		}()
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("voxbox daemon started",
		logging.String("mode", d.cfg.Mode),
		logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("voxbox daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports current daemon diagnostics.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if d.oauthSrv != nil {
		status.OAuthAddr = d.oauthSrv.Addr()
	}
	return status
}
