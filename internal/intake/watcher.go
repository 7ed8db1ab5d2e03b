package intake

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"voxbox/internal/logging"
	"voxbox/internal/services"
)

// Scanner discovers new job files and enqueues them.
type Scanner interface {
	ScanOnce(ctx context.Context) (int, error)
	WatchDir() string
}

// Watcher drives a scanner on a poll interval. When the scanner exposes a
// local directory it also wakes on filesystem events so fresh drops are
// picked up without waiting out the interval.
type Watcher struct {
	scanner  Scanner
	interval time.Duration
	logger   *slog.Logger

	onAuthExpired func()
}

// WatcherOption customizes the watcher.
type WatcherOption func(*Watcher)

// WithAuthExpiredHook registers a callback fired when intake hits an
// authorization failure.
func WithAuthExpiredHook(hook func()) WatcherOption {
	return func(w *Watcher) {
		w.onAuthExpired = hook
	}
}

// NewWatcher constructs a watcher over the scanner.
func NewWatcher(scanner Scanner, interval time.Duration, logger *slog.Logger, opts ...WatcherOption) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	w := &Watcher{
		scanner:  scanner,
		interval: interval,
		logger:   logger.With(logging.String(logging.FieldComponent, "intake")),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run scans until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	events, errs, closeWatch := w.watchEvents()
	defer closeWatch()

	w.scan(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.scan(ctx)
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Write) != 0 {
				w.scan(ctx)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("filesystem watch error", logging.Error(err))
		}
	}
}

// watchEvents sets up the fsnotify wakeup when a watch directory is
// available. Polling still runs either way, so a failed watch only costs
// latency.
func (w *Watcher) watchEvents() (<-chan fsnotify.Event, <-chan error, func()) {
	noop := func() {}
	dir := w.scanner.WatchDir()
	if dir == "" {
		return nil, nil, noop
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("filesystem watch unavailable, polling only", logging.Error(err))
		return nil, nil, noop
	}
	if err := watcher.Add(dir); err != nil {
		w.logger.Warn("could not watch inbox, polling only",
			logging.String("dir", dir),
			logging.Error(err))
		watcher.Close()
		return nil, nil, noop
	}
	return watcher.Events, watcher.Errors, func() { watcher.Close() }
}

func (w *Watcher) scan(ctx context.Context) {
	count, err := w.scanner.ScanOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		if errors.Is(err, services.ErrAuthorization) && w.onAuthExpired != nil {
			w.onAuthExpired()
		}
		w.logger.Error("intake scan failed", logging.Error(err))
		return
	}
	if count > 0 {
		w.logger.Info("intake scan complete", logging.Int("new_jobs", count))
	}
}
