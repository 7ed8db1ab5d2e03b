// Package ytdlp wraps the yt-dlp CLI for metadata probes and audio/caption
// downloads.
package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"voxbox/internal/services"
)

// CommandRunner executes an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Config carries the yt-dlp invocation settings.
type Config struct {
	Binary           string
	AudioQuality     string
	CaptionLanguages []string
}

// Service downloads media and captions through yt-dlp.
type Service struct {
	cfg    Config
	runner CommandRunner
}

// NewService creates a yt-dlp service with the given configuration.
func NewService(cfg Config) *Service {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.AudioQuality == "" {
		cfg.AudioQuality = "192K"
	}
	if len(cfg.CaptionLanguages) == 0 {
		cfg.CaptionLanguages = []string{"en"}
	}
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	s.runner = runner
}

func (s *Service) run(ctx context.Context, args ...string) ([]byte, error) {
	if s.runner != nil {
		return s.runner(ctx, s.cfg.Binary, args...)
	}
	cmd := exec.CommandContext(ctx, s.cfg.Binary, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", s.cfg.Binary, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// Metadata is the subset of video information the pipeline uses.
type Metadata struct {
	ID              string
	Title           string
	Channel         string
	DurationSeconds int
	UploadDate      string // YYYYMMDD
	ManualCaptions  []string
	AutoCaptions    []string
}

// HasManualCaption reports whether a manually authored track exists for the
// language.
func (m *Metadata) HasManualCaption(lang string) bool {
	for _, have := range m.ManualCaptions {
		if have == lang || strings.HasPrefix(have, lang+"-") {
			return true
		}
	}
	return false
}

type probePayload struct {
	ID                string                     `json:"id"`
	Title             string                     `json:"title"`
	Channel           string                     `json:"channel"`
	Uploader          string                     `json:"uploader"`
	Duration          float64                    `json:"duration"`
	UploadDate        string                     `json:"upload_date"`
	Subtitles         map[string]json.RawMessage `json:"subtitles"`
	AutomaticCaptions map[string]json.RawMessage `json:"automatic_captions"`
}

// Probe fetches video metadata without downloading media.
func (s *Service) Probe(ctx context.Context, url string) (*Metadata, error) {
	out, err := s.run(ctx, "--dump-single-json", "--no-warnings", "--skip-download", "--no-playlist", url)
	if err != nil {
		return nil, classify("probe", err)
	}

	var payload probePayload
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "ytdlp", "probe", "decode metadata", err)
	}

	md := &Metadata{
		ID:              payload.ID,
		Title:           payload.Title,
		Channel:         payload.Channel,
		DurationSeconds: int(payload.Duration),
		UploadDate:      payload.UploadDate,
	}
	if md.Channel == "" {
		md.Channel = payload.Uploader
	}
	for lang := range payload.Subtitles {
		md.ManualCaptions = append(md.ManualCaptions, lang)
	}
	for lang := range payload.AutomaticCaptions {
		md.AutoCaptions = append(md.AutoCaptions, lang)
	}
	return md, nil
}

// CaptionSource distinguishes how a downloaded caption track was authored.
const (
	CaptionManual = "manual"
	CaptionAuto   = "auto"
)

// DownloadResult locates the artifacts a download produced.
type DownloadResult struct {
	AudioPath     string
	CaptionPath   string
	CaptionSource string
}

// Download fetches the audio track as MP3 plus any available caption track
// into destDir, with files keyed by video ID. Metadata from a prior Probe
// decides whether a caption file counts as manual or auto.
func (s *Service) Download(ctx context.Context, url, videoID, destDir string, md *Metadata) (*DownloadResult, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorageIO, "ytdlp", "download", "create destination", err)
	}

	args := []string{
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", s.cfg.AudioQuality,
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", strings.Join(s.cfg.CaptionLanguages, ","),
		"--sub-format", "vtt",
		"--no-playlist",
		"--no-warnings",
		"--retries", "3",
		"--output", filepath.Join(destDir, videoID+".%(ext)s"),
		url,
	}
	if _, err := s.run(ctx, args...); err != nil {
		return nil, classify("download", err)
	}

	result := &DownloadResult{}
	audioPath := filepath.Join(destDir, videoID+".mp3")
	if _, err := os.Stat(audioPath); err == nil {
		result.AudioPath = audioPath
	} else if matches, _ := filepath.Glob(filepath.Join(destDir, videoID+"*.mp3")); len(matches) > 0 {
		result.AudioPath = matches[0]
	}
	if result.AudioPath == "" {
		return nil, services.Wrap(services.ErrTransient, "ytdlp", "download", "audio file not produced", nil)
	}

	result.CaptionPath, result.CaptionSource = s.findCaption(destDir, videoID, md)
	return result, nil
}

// findCaption locates the best caption file. Files named <id>.<lang>.vtt are
// manual only when the probe saw a manual track for that language; yt-dlp
// writes auto captions under the same name when no manual track exists.
func (s *Service) findCaption(destDir, videoID string, md *Metadata) (string, string) {
	for _, lang := range s.cfg.CaptionLanguages {
		path := filepath.Join(destDir, videoID+"."+lang+".vtt")
		if _, err := os.Stat(path); err == nil {
			if md != nil && md.HasManualCaption(lang) {
				return path, CaptionManual
			}
			return path, CaptionAuto
		}
		origPath := filepath.Join(destDir, videoID+"."+lang+"-orig.vtt")
		if _, err := os.Stat(origPath); err == nil {
			return origPath, CaptionAuto
		}
	}
	matches, _ := filepath.Glob(filepath.Join(destDir, videoID+"*.vtt"))
	if len(matches) > 0 {
		return matches[0], CaptionAuto
	}
	return "", ""
}

// Cleanup removes all downloaded artifacts for a video.
func (s *Service) Cleanup(destDir, videoID string) {
	matches, _ := filepath.Glob(filepath.Join(destDir, videoID+"*"))
	for _, match := range matches {
		_ = os.Remove(match)
	}
}

var permanentMarkers = []string{
	"video unavailable",
	"private video",
	"has been removed",
	"account has been terminated",
	"members-only",
	"copyright",
	"not available in your country",
}

// classify maps yt-dlp failures onto the pipeline error taxonomy: deadline
// overruns become timeouts, recognizably gone videos become permanent
// failures, everything else is retried.
func classify(operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "ytdlp", operation, "yt-dlp timed out", err)
	}
	message := strings.ToLower(err.Error())
	for _, marker := range permanentMarkers {
		if strings.Contains(message, marker) {
			return services.Wrap(services.ErrNotFound, "ytdlp", operation, "video is gone", err)
		}
	}
	return services.Wrap(services.ErrTransient, "ytdlp", operation, "yt-dlp failed", err)
}
