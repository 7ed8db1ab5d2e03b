// Package summarize runs the AI analysis stage: it feeds a job's transcript
// to the Gemini service and records the structured result. Summarization is
// best-effort; when the model is disabled or keeps failing, the job proceeds
// to note writing without an analysis.
package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"voxbox/internal/config"
	"voxbox/internal/logging"
	"voxbox/internal/queue"
	"voxbox/internal/services"
	"voxbox/internal/services/gemini"
	"voxbox/internal/stage"
	"voxbox/internal/tags"
	"voxbox/internal/transcript"
)

// Summarizer is the stage handler for the summarizing status.
type Summarizer struct {
	cfg      *config.Config
	ai       *gemini.Service
	tagStore *tags.Store
	logger   *slog.Logger
}

// NewSummarizer constructs the summarize stage handler. The tag store may be
// nil when tag learning is disabled.
func NewSummarizer(cfg *config.Config, tagStore *tags.Store, logger *slog.Logger) *Summarizer {
	ai := gemini.NewService(gemini.Config{
		APIKey:             cfg.Gemini.APIKey,
		Model:              cfg.Gemini.Model,
		Timeout:            time.Duration(cfg.Gemini.TimeoutSeconds) * time.Second,
		MaxTranscriptChars: cfg.Gemini.MaxTranscriptChars,
	})
	return NewSummarizerWithService(cfg, ai, tagStore, logger)
}

// NewSummarizerWithService allows injecting the AI service (used in tests).
func NewSummarizerWithService(cfg *config.Config, ai *gemini.Service, tagStore *tags.Store, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Summarizer{
		cfg:      cfg,
		ai:       ai,
		tagStore: tagStore,
		logger:   logger.With(logging.String(logging.FieldComponent, "summarizer")),
	}
}

func (s *Summarizer) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)
	job.ErrorMessage = ""
	logger.Info("starting summarization",
		logging.String(logging.FieldVideoID, job.VideoID),
		logging.Bool("enabled", s.cfg.Gemini.Enabled))
	return nil
}

func (s *Summarizer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, s.logger)

	if !s.cfg.Gemini.Enabled {
		logger.Debug("summarization disabled, passing job through")
		return nil
	}
	if job.TranscriptJSON == "" {
		logger.Warn("no transcript to summarize, passing job through")
		return nil
	}
	result, err := transcript.Decode(job.TranscriptJSON)
	if err != nil {
		return services.Wrap(services.ErrInvalidInput, "summarizing", "decode transcript",
			"stored transcript is corrupt", err)
	}

	analysis, err := s.ai.Analyze(ctx, gemini.VideoInfo{
		Title:           job.Title,
		Channel:         job.Channel,
		DurationSeconds: job.DurationSeconds,
	}, result.FullText(), s.availableTags(ctx, logger))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		// The note is still worth writing without an analysis.
		logger.Warn("summarization failed, continuing without analysis", logging.Error(err))
		return nil
	}

	encoded, err := json.Marshal(analysis)
	if err != nil {
		return services.Wrap(services.ErrStorageIO, "summarizing", "encode analysis", "", err)
	}
	job.SummaryJSON = string(encoded)
	logger.Info("summarization complete",
		logging.Int("takeaways", len(analysis.KeyTakeaways)),
		logging.Int("tags", len(analysis.Tags)))
	return nil
}

func (s *Summarizer) HealthCheck(ctx context.Context) stage.Health {
	if !s.cfg.Gemini.Enabled {
		return stage.Healthy("summarizer")
	}
	if s.cfg.Gemini.APIKey == "" {
		return stage.Unhealthy("summarizer", "gemini enabled but no API key configured")
	}
	return stage.Healthy("summarizer")
}

// availableTags collects the most-used vocabulary entries to bias the model
// toward tags the vault already uses. Failures only cost the bias.
func (s *Summarizer) availableTags(ctx context.Context, logger *slog.Logger) []string {
	if s.tagStore == nil || !s.cfg.Tags.Enabled {
		return nil
	}
	entries, err := s.tagStore.TopN(ctx, s.cfg.Tags.BiasTopN)
	if err != nil {
		logger.Warn("loading tag vocabulary failed", logging.Error(err))
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names
}

// DecodeAnalysis restores a stored analysis payload.
func DecodeAnalysis(raw string) (*gemini.Analysis, error) {
	if raw == "" {
		return nil, nil
	}
	var analysis gemini.Analysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}
