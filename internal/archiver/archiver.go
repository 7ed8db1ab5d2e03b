// Package archiver runs the final pipeline stage: it assembles the note
// folder in a staging build directory, publishes it into the vault with an
// atomic rename, retires the consumed input, and feeds accepted tags back
// into the vocabulary.
package archiver

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"voxbox/internal/config"
	"voxbox/internal/fileutil"
	"voxbox/internal/logging"
	"voxbox/internal/notes"
	"voxbox/internal/queue"
	"voxbox/internal/services"
	"voxbox/internal/services/dropbox"
	"voxbox/internal/services/gemini"
	"voxbox/internal/stage"
	"voxbox/internal/staging"
	"voxbox/internal/summarize"
	"voxbox/internal/tags"
	"voxbox/internal/transcript"
	"voxbox/internal/videoref"
)

// transcriptTimestampInterval is how often a timestamp marker is inserted
// into the rendered transcript, in seconds.
const transcriptTimestampInterval = 60

const remoteArchiveFolder = "Archive"

// RemoteStorage is the slice of the Dropbox API used to retire remote inputs.
type RemoteStorage interface {
	Move(ctx context.Context, token, fromPath, toPath string) error
}

// TokenSource supplies fresh access tokens for remote calls.
type TokenSource interface {
	FreshAccessToken(ctx context.Context, accountID string) (string, error)
}

// Archiver is the stage handler for the writing status.
type Archiver struct {
	cfg      *config.Config
	tagStore *tags.Store
	remote   RemoteStorage
	tokens   TokenSource
	logger   *slog.Logger

	now func() time.Time
}

// Option customizes the archiver.
type Option func(*Archiver)

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// NewArchiver constructs the archive stage handler. The tag store may be nil
// when tagging is disabled; remote and tokens may be nil in local mode.
func NewArchiver(cfg *config.Config, tagStore *tags.Store, remote RemoteStorage, tokens TokenSource, logger *slog.Logger, opts ...Option) *Archiver {
	if logger == nil {
		logger = logging.NewNop()
	}
	archiver := &Archiver{
		cfg:      cfg,
		tagStore: tagStore,
		remote:   remote,
		tokens:   tokens,
		logger:   logger.With(logging.String(logging.FieldComponent, "archiver")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(archiver)
	}
	return archiver
}

// Prepare picks the vault folder and records it on the job. The manager
// persists the job before Execute runs, so the chosen path survives a crash
// mid-publication and a replay lands on the same folder instead of minting
// a numbered sibling.
func (a *Archiver) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, a.logger)
	job.ErrorMessage = ""
	if job.OutputPath == "" {
		job.OutputPath = a.selectOutputPath(job)
	}
	logger.Info("starting archive",
		logging.String(logging.FieldVideoID, job.VideoID),
		logging.String("title", job.Title),
		logging.String("output", job.OutputPath))
	return nil
}

func (a *Archiver) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, a.logger)

	if job.TranscriptJSON == "" {
		return services.Wrap(services.ErrInvalidInput, "writing", "validate",
			"job reached the archive stage without a transcript", nil)
	}
	result, err := transcript.Decode(job.TranscriptJSON)
	if err != nil {
		return services.Wrap(services.ErrInvalidInput, "writing", "decode transcript",
			"stored transcript is corrupt", err)
	}
	analysis, err := summarize.DecodeAnalysis(job.SummaryJSON)
	if err != nil {
		return services.Wrap(services.ErrInvalidInput, "writing", "decode analysis",
			"stored analysis is corrupt", err)
	}

	noteTags := a.noteTags(analysis)
	target := job.OutputPath
	if target == "" {
		target = a.selectOutputPath(job)
	}
	if err := a.publish(job, result, analysis, noteTags, target); err != nil {
		return err
	}
	job.OutputPath = target

	if err := a.recordTags(ctx, noteTags, logger); err != nil {
		logger.Warn("updating tag vocabulary failed", logging.Error(err))
	}
	if err := a.retireInput(ctx, job, logger); err != nil {
		return err
	}
	if err := staging.RemoveJobDir(a.cfg.Paths.StagingDir, job.ID); err != nil {
		logger.Warn("removing staging directory failed", logging.Error(err))
	}

	logger.Info("note archived",
		logging.String("output", target),
		logging.Int("tags", len(noteTags)))
	return nil
}

func (a *Archiver) HealthCheck(ctx context.Context) stage.Health {
	if err := os.MkdirAll(a.cfg.Paths.VaultDir, 0o755); err != nil {
		return stage.Unhealthy("archiver", "vault not writable: "+err.Error())
	}
	return stage.Healthy("archiver")
}

// selectOutputPath picks the vault folder for the job's note: the dated
// title folder, suffixed only when a different note already owns it.
func (a *Archiver) selectOutputPath(job *queue.Job) string {
	title := job.Title
	if title == "" {
		title = job.VideoID
	}
	base := filepath.Join(a.cfg.Paths.VaultDir, notes.FolderName(a.now(), title))
	return notes.UniquePath(base)
}

// publish renders the note and audio into a staging build directory and
// atomically moves it to the vault. An already-existing target is success.
func (a *Archiver) publish(job *queue.Job, result *transcript.Result, analysis *gemini.Analysis, noteTags []string, target string) error {
	jobDir, err := staging.JobDir(a.cfg.Paths.StagingDir, job.ID)
	if err != nil {
		return services.Wrap(services.ErrStorageIO, "writing", "staging", "create job directory", err)
	}
	buildDir := filepath.Join(jobDir, "build")
	if err := os.RemoveAll(buildDir); err != nil {
		return services.Wrap(services.ErrStorageIO, "writing", "staging", "reset build directory", err)
	}
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return services.Wrap(services.ErrStorageIO, "writing", "staging", "create build directory", err)
	}

	input := notes.Input{
		Title:           job.Title,
		Channel:         job.Channel,
		URL:             videoref.Normalize(job.VideoID),
		Source:          string(result.Source),
		UploadDate:      job.UploadDate,
		DurationSeconds: job.DurationSeconds,
		Tags:            noteTags,
		Transcript:      result.FormatWithTimestamps(transcriptTimestampInterval),
		ProcessedAt:     a.now(),
	}
	if analysis != nil {
		input.Summary = analysis.Summary
		input.Takeaways = analysis.KeyTakeaways
		input.Topics = analysis.Topics
		if input.Title == "" {
			input.Title = analysis.Title
		}
	}
	document, err := notes.Render(input)
	if err != nil {
		return services.Wrap(services.ErrStorageIO, "writing", "render note", "", err)
	}

	title := input.Title
	if title == "" {
		title = job.VideoID
	}
	notePath := filepath.Join(buildDir, notes.Filename(title))
	if err := fileutil.WriteFileAtomic(notePath, []byte(document), 0o644); err != nil {
		return services.Wrap(services.ErrStorageIO, "writing", "write note", notePath, err)
	}
	if job.AudioPath != "" {
		if err := fileutil.CopyFileVerified(job.AudioPath, filepath.Join(buildDir, notes.AudioFilename)); err != nil {
			return services.Wrap(services.ErrStorageIO, "writing", "copy audio", job.AudioPath, err)
		}
	}
	if err := fileutil.PublishDir(buildDir, target); err != nil {
		return services.Wrap(services.ErrStorageIO, "writing", "publish note", target, err)
	}
	return nil
}

// noteTags normalizes the model's suggestions and caps them at the
// configured per-note maximum.
func (a *Archiver) noteTags(analysis *gemini.Analysis) []string {
	if analysis == nil || !a.cfg.Tags.Enabled {
		return nil
	}
	maxTags := a.cfg.Tags.MaxPerNote
	if maxTags <= 0 {
		maxTags = 5
	}
	kept := make([]string, 0, maxTags)
	seen := make(map[string]struct{})
	for _, candidate := range analysis.TagNames() {
		tag := tags.Normalize(candidate)
		if !tags.IsValid(tag) {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		kept = append(kept, tag)
		if len(kept) == maxTags {
			break
		}
	}
	return kept
}

func (a *Archiver) recordTags(ctx context.Context, noteTags []string, logger *slog.Logger) error {
	if a.tagStore == nil || !a.cfg.Tags.Learning || len(noteTags) == 0 {
		return nil
	}
	recorded, err := a.tagStore.Record(ctx, noteTags)
	if err != nil {
		return err
	}
	logger.Debug("tag vocabulary updated", logging.Int("recorded", len(recorded)))
	return nil
}

// retireInput moves the consumed job file out of the active inbox so a
// daemon restart does not re-discover it.
func (a *Archiver) retireInput(ctx context.Context, job *queue.Job, logger *slog.Logger) error {
	if job.InputPath == "" {
		return nil
	}
	switch job.Mode {
	case queue.ModeDropbox:
		return a.retireRemote(ctx, job)
	default:
		return a.retireLocal(job, logger)
	}
}

func (a *Archiver) retireLocal(job *queue.Job, logger *slog.Logger) error {
	if _, err := os.Stat(job.InputPath); os.IsNotExist(err) {
		logger.Debug("input already retired", logging.String("input", job.InputPath))
		return nil
	}
	if err := os.MkdirAll(a.cfg.Paths.ArchiveDir, 0o755); err != nil {
		return services.Wrap(services.ErrStorageIO, "writing", "retire input", "create archive dir", err)
	}
	dest := filepath.Join(a.cfg.Paths.ArchiveDir, filepath.Base(job.InputPath))
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(a.cfg.Paths.ArchiveDir,
			a.now().UTC().Format("20060102T150405")+"_"+filepath.Base(job.InputPath))
	}
	if err := fileutil.MoveFile(job.InputPath, dest); err != nil {
		return services.Wrap(services.ErrStorageIO, "writing", "retire input", job.InputPath, err)
	}
	return nil
}

func (a *Archiver) retireRemote(ctx context.Context, job *queue.Job) error {
	if a.remote == nil || a.tokens == nil {
		return nil
	}
	token, err := a.tokens.FreshAccessToken(ctx, job.AccountID)
	if err != nil {
		return err
	}
	name := job.InputName
	if name == "" {
		name = path.Base(job.InputPath)
	}
	dest := path.Join(a.cfg.Dropbox.SourceFolder, remoteArchiveFolder, name)
	if err := a.remote.Move(ctx, token, job.InputPath, dest); err != nil {
		if dropbox.IsPathNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}
