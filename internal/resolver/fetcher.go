package resolver

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"

	"voxbox/internal/config"
	"voxbox/internal/logging"
	"voxbox/internal/queue"
	"voxbox/internal/services"
	"voxbox/internal/services/ytdlp"
	"voxbox/internal/stage"
	"voxbox/internal/staging"
	"voxbox/internal/videoref"
)

// Fetcher resolves a discovered job into media artifacts: it probes video
// metadata, then downloads the audio track and the best caption track into
// the job's staging directory.
type Fetcher struct {
	cfg    *config.Config
	media  *ytdlp.Service
	logger *slog.Logger

	maxAttempts    int
	retryBaseDelay time.Duration
	sleeper        func(time.Duration)
}

// NewFetcher constructs the fetch stage handler.
func NewFetcher(cfg *config.Config, logger *slog.Logger) *Fetcher {
	media := ytdlp.NewService(ytdlp.Config{
		Binary:           cfg.YtDlpBinary(),
		AudioQuality:     cfg.Fetch.AudioQuality,
		CaptionLanguages: cfg.Fetch.CaptionLanguages,
	})
	return NewFetcherWithService(cfg, media, logger)
}

// NewFetcherWithService allows injecting the media service (used in tests).
func NewFetcherWithService(cfg *config.Config, media *ytdlp.Service, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Fetcher{
		cfg:            cfg,
		media:          media,
		logger:         logger.With(logging.String(logging.FieldComponent, "fetcher")),
		maxAttempts:    cfg.Workflow.MaxRetries + 1,
		retryBaseDelay: time.Duration(cfg.Workflow.RetryDelaySeconds) * time.Second,
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func (f *Fetcher) WithSleeper(sleeper func(time.Duration)) {
	f.sleeper = sleeper
}

func (f *Fetcher) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, f.logger)
	job.ErrorMessage = ""
	logger.Info("starting fetch",
		logging.String(logging.FieldVideoID, job.VideoID),
		logging.String("source_ref", job.SourceRef))
	return nil
}

func (f *Fetcher) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, f.logger)
	if job.VideoID == "" {
		return services.Wrap(services.ErrInvalidInput, "fetching", "validate", "job has no video id", nil)
	}
	url := videoref.Normalize(job.VideoID)

	md, err := withRetry(ctx, f, logger, "probe", func() (*ytdlp.Metadata, error) {
		return f.media.Probe(ctx, url)
	})
	if err != nil {
		return err
	}
	job.Title = md.Title
	job.Channel = md.Channel
	job.DurationSeconds = md.DurationSeconds
	job.UploadDate = md.UploadDate

	jobDir, err := staging.JobDir(f.cfg.Paths.StagingDir, job.ID)
	if err != nil {
		return services.Wrap(services.ErrStorageIO, "fetching", "staging", "create job directory", err)
	}

	result, err := withRetry(ctx, f, logger, "download", func() (*ytdlp.DownloadResult, error) {
		return f.media.Download(ctx, url, job.VideoID, jobDir, md)
	})
	if err != nil {
		return err
	}
	job.AudioPath = result.AudioPath
	job.CaptionPath = result.CaptionPath
	job.CaptionSource = result.CaptionSource

	logger.Info("fetch complete",
		logging.String("title", job.Title),
		logging.String("caption_source", job.CaptionSource),
		logging.Int("duration_seconds", job.DurationSeconds))
	return nil
}

func (f *Fetcher) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(f.cfg.YtDlpBinary()); err != nil {
		return stage.Unhealthy("fetcher", "yt-dlp binary not found: "+f.cfg.YtDlpBinary())
	}
	return stage.Healthy("fetcher")
}

// withRetry reruns an operation on transient failures with doubling delays.
// The attempt count and base delay come from the workflow retry settings;
// permanent failures and context cancellation surface immediately.
func withRetry[T any](ctx context.Context, f *Fetcher, logger *slog.Logger, operation string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := f.retryBaseDelay
	attempts := f.maxAttempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !services.IsRetryable(err) || errors.Is(err, context.Canceled) {
			return zero, err
		}
		if attempt == attempts {
			break
		}
		logger.Warn("fetch attempt failed, retrying",
			logging.String("operation", operation),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := f.sleep(ctx, delay); err != nil {
			return zero, err
		}
		delay *= 2
	}
	return zero, lastErr
}

func (f *Fetcher) sleep(ctx context.Context, delay time.Duration) error {
	if f.sleeper != nil {
		f.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
