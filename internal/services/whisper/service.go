// Package whisper invokes the whisper CLI for local speech-to-text.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"voxbox/internal/services"
	"voxbox/internal/transcript"
)

// CommandRunner executes an external command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Config carries whisper invocation settings.
type Config struct {
	Binary  string
	Model   string
	Timeout time.Duration
}

// Service transcribes audio files with the whisper CLI.
type Service struct {
	cfg    Config
	runner CommandRunner
}

// NewService creates a whisper service with the given configuration.
func NewService(cfg Config) *Service {
	if cfg.Binary == "" {
		cfg.Binary = "whisper"
	}
	if cfg.Model == "" {
		cfg.Model = "base"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	s.runner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.cfg.Model
}

func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.runner != nil {
		return s.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Transcribe runs whisper against the audio file, bounded by the configured
// time ceiling. The CLI writes an SRT next to the audio in outputDir, which
// is then parsed into a transcript. Exceeding the ceiling is a transient
// timeout so the retry bound applies instead of an open-ended hang.
func (s *Service) Transcribe(ctx context.Context, audioPath, outputDir string) (*transcript.Result, error) {
	if audioPath == "" {
		return nil, services.Wrap(services.ErrTranscription, "whisper", "transcribe", "audio path required", nil)
	}
	if outputDir == "" {
		outputDir = filepath.Dir(audioPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorageIO, "whisper", "transcribe", "ensure output dir", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	args := []string{
		audioPath,
		"--model", s.cfg.Model,
		"--output_format", "srt",
		"--output_dir", outputDir,
		"--fp16", "False",
	}
	if err := s.run(runCtx, s.cfg.Binary, args...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || runCtx.Err() == context.DeadlineExceeded {
			return nil, services.Wrap(services.ErrTimeout, "whisper", "transcribe",
				fmt.Sprintf("exceeded %s ceiling", s.cfg.Timeout), err)
		}
		return nil, services.Wrap(services.ErrTranscription, "whisper", "transcribe", "whisper failed", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	srtPath := filepath.Join(outputDir, baseName+".srt")
	contents, err := os.ReadFile(srtPath)
	if err != nil {
		return nil, services.Wrap(services.ErrTranscription, "whisper", "transcribe", "read whisper output", err)
	}
	return transcript.ParseSRT(string(contents), "")
}
