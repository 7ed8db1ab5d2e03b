package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxbox/internal/services"
	"voxbox/internal/services/ytdlp"
	"voxbox/internal/testsupport"
)

const probeJSON = `{
	"id": "dQw4w9WgXcQ",
	"title": "Sample Talk",
	"channel": "Sample Channel",
	"duration": 754,
	"upload_date": "20260801",
	"subtitles": {"en": []},
	"automatic_captions": {"en": []}
}`

func TestFetcherPopulatesJobFromProbeAndDownload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ")

	media := ytdlp.NewService(ytdlp.Config{CaptionLanguages: []string{"en"}})
	media.WithCommandRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if containsArg(args, "--dump-single-json") {
			return []byte(probeJSON), nil
		}
		destDir := outputDir(t, args)
		writeArtifact(t, filepath.Join(destDir, "dQw4w9WgXcQ.mp3"))
		writeArtifact(t, filepath.Join(destDir, "dQw4w9WgXcQ.en.vtt"))
		return nil, nil
	})

	fetcher := NewFetcherWithService(cfg, media, nil)
	if err := fetcher.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := fetcher.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if job.Title != "Sample Talk" || job.Channel != "Sample Channel" {
		t.Fatalf("metadata not recorded: %+v", job)
	}
	if job.DurationSeconds != 754 || job.UploadDate != "20260801" {
		t.Fatalf("duration/upload date not recorded: %+v", job)
	}
	if job.AudioPath == "" || !strings.HasSuffix(job.AudioPath, ".mp3") {
		t.Fatalf("audio path not recorded: %q", job.AudioPath)
	}
	if job.CaptionSource != ytdlp.CaptionManual {
		t.Fatalf("expected manual caption, got %q", job.CaptionSource)
	}
	if _, err := os.Stat(job.AudioPath); err != nil {
		t.Fatalf("audio artifact missing: %v", err)
	}
}

func TestFetcherRetriesTransientFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ")

	probeCalls := 0
	media := ytdlp.NewService(ytdlp.Config{CaptionLanguages: []string{"en"}})
	media.WithCommandRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		if containsArg(args, "--dump-single-json") {
			probeCalls++
			if probeCalls == 1 {
				return nil, errors.New("network unreachable")
			}
			return []byte(probeJSON), nil
		}
		destDir := outputDir(t, args)
		writeArtifact(t, filepath.Join(destDir, "dQw4w9WgXcQ.mp3"))
		return nil, nil
	})

	fetcher := NewFetcherWithService(cfg, media, nil)
	fetcher.WithSleeper(func(time.Duration) {})
	if err := fetcher.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if probeCalls != 2 {
		t.Fatalf("expected probe retry, got %d calls", probeCalls)
	}
}

func TestFetcherHonorsConfiguredRetryBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.MaxRetries = 0
	cfg.Workflow.RetryDelaySeconds = 0
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ")

	calls := 0
	media := ytdlp.NewService(ytdlp.Config{})
	media.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		calls++
		return nil, errors.New("network unreachable")
	})

	var delays []time.Duration
	fetcher := NewFetcherWithService(cfg, media, nil)
	fetcher.WithSleeper(func(d time.Duration) { delays = append(delays, d) })
	if err := fetcher.Execute(context.Background(), job); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("max_retries=0 allows a single attempt, got %d", calls)
	}
	for _, d := range delays {
		if d != 0 {
			t.Fatalf("retry_delay_seconds=0 must not sleep, slept %s", d)
		}
	}
}

func TestFetcherSurfacesPermanentFailureImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ")

	calls := 0
	media := ytdlp.NewService(ytdlp.Config{})
	media.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		calls++
		return nil, fmt.Errorf("ERROR: Private video. Sign in if you've been granted access")
	})

	fetcher := NewFetcherWithService(cfg, media, nil)
	fetcher.WithSleeper(func(time.Duration) {})
	err := fetcher.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent failures must not retry, got %d calls", calls)
	}
}

func TestFetcherRejectsJobWithoutVideoID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "dQw4w9WgXcQ", "ref")
	job.VideoID = ""

	fetcher := NewFetcherWithService(cfg, ytdlp.NewService(ytdlp.Config{}), nil)
	if err := fetcher.Execute(context.Background(), job); !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func containsArg(args []string, want string) bool {
	for _, arg := range args {
		if arg == want {
			return true
		}
	}
	return false
}

func outputDir(t *testing.T, args []string) string {
	t.Helper()
	for i, arg := range args {
		if arg == "--output" && i+1 < len(args) {
			return filepath.Dir(args[i+1])
		}
	}
	t.Fatal("no --output argument in download invocation")
	return ""
}

func writeArtifact(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("write artifact %s: %v", path, err)
	}
}
