package resolver

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"voxbox/internal/config"
	"voxbox/internal/logging"
	"voxbox/internal/queue"
	"voxbox/internal/services"
	"voxbox/internal/services/whisper"
	"voxbox/internal/services/ytdlp"
	"voxbox/internal/stage"
	"voxbox/internal/transcript"
)

// Transcriber turns a fetched job's artifacts into a transcript. Captions
// win when present; speech-to-text runs only when no caption track survived
// download and parsing.
type Transcriber struct {
	cfg    *config.Config
	speech *whisper.Service
	logger *slog.Logger
}

// NewTranscriber constructs the transcription stage handler.
func NewTranscriber(cfg *config.Config, logger *slog.Logger) *Transcriber {
	speech := whisper.NewService(whisper.Config{
		Binary:  cfg.WhisperBinary(),
		Model:   cfg.Whisper.Model,
		Timeout: cfg.WhisperTimeout(),
	})
	return NewTranscriberWithService(cfg, speech, logger)
}

// NewTranscriberWithService allows injecting the speech service (used in tests).
func NewTranscriberWithService(cfg *config.Config, speech *whisper.Service, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transcriber{
		cfg:    cfg,
		speech: speech,
		logger: logger.With(logging.String(logging.FieldComponent, "transcriber")),
	}
}

func (t *Transcriber) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, t.logger)
	job.ErrorMessage = ""
	logger.Info("starting transcription",
		logging.String(logging.FieldVideoID, job.VideoID),
		logging.String("caption_source", job.CaptionSource))
	return nil
}

func (t *Transcriber) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, t.logger)

	if job.CaptionPath != "" {
		result, err := t.parseCaption(job)
		if err == nil {
			return t.record(job, result, logger)
		}
		logger.Warn("caption parse failed, falling back to speech-to-text",
			logging.String("caption", filepath.Base(job.CaptionPath)),
			logging.Error(err))
		job.CaptionPath = ""
		job.CaptionSource = ""
	}

	if job.AudioPath == "" {
		return services.Wrap(services.ErrTranscription, "transcribing", "validate",
			"no audio available for speech-to-text", nil)
	}
	result, err := t.speech.Transcribe(ctx, job.AudioPath, filepath.Dir(job.AudioPath))
	if err != nil {
		return err
	}
	return t.record(job, result, logger)
}

func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(t.cfg.WhisperBinary()); err != nil {
		return stage.Unhealthy("transcriber", "whisper binary not found: "+t.cfg.WhisperBinary())
	}
	return stage.Healthy("transcriber")
}

func (t *Transcriber) parseCaption(job *queue.Job) (*transcript.Result, error) {
	contents, err := os.ReadFile(job.CaptionPath)
	if err != nil {
		return nil, services.Wrap(services.ErrTranscription, "transcribing", "read caption", job.CaptionPath, err)
	}
	source := transcript.SourceAutoCaption
	if job.CaptionSource == ytdlp.CaptionManual {
		source = transcript.SourceManualCaption
	}
	return transcript.ParseVTT(string(contents), source)
}

func (t *Transcriber) record(job *queue.Job, result *transcript.Result, logger *slog.Logger) error {
	if result == nil || len(result.Segments) == 0 {
		return services.Wrap(services.ErrTranscription, "transcribing", "validate",
			"transcript came back empty", nil)
	}
	encoded, err := result.Encode()
	if err != nil {
		return services.Wrap(services.ErrTranscription, "transcribing", "encode transcript", "", err)
	}
	job.TranscriptJSON = encoded
	logger.Info("transcription complete",
		logging.String("source", string(result.Source)),
		logging.Int("segments", len(result.Segments)))
	return nil
}
