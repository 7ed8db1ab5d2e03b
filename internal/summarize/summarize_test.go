package summarize

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxbox/internal/services"
	"voxbox/internal/services/gemini"
	"voxbox/internal/tags"
	"voxbox/internal/testsupport"
	"voxbox/internal/transcript"
)

const analysisJSON = `{
	"title": "Sample Talk",
	"summary": "A talk about things.",
	"key_takeaways": ["First point", "Second point"],
	"topics": ["Things"],
	"tags": [
		{"name": "technology", "confidence": 90, "primary": true},
		{"name": "diy", "confidence": 60, "primary": false}
	]
}`

func encodedTranscript(t *testing.T) string {
	t.Helper()
	result := &transcript.Result{
		Segments: []transcript.Segment{
			{Start: 0, End: 4, Text: "Welcome to the sample talk."},
		},
		Source: transcript.SourceManualCaption,
	}
	encoded, err := result.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return encoded
}

func newStubService(t *testing.T, responses ...func(prompt string) (string, error)) (*gemini.Service, *[]string) {
	t.Helper()
	var prompts []string
	calls := 0
	ai := gemini.NewService(gemini.Config{APIKey: "test-key"},
		gemini.WithGenerateFunc(func(_ context.Context, _ string, prompt string) (string, error) {
			prompts = append(prompts, prompt)
			respond := responses[len(responses)-1]
			if calls < len(responses) {
				respond = responses[calls]
			}
			calls++
			return respond(prompt)
		}),
		gemini.WithRetryBackoff(time.Millisecond, time.Millisecond),
		gemini.WithSleeper(func(time.Duration) {}),
	)
	return ai, &prompts
}

func TestSummarizerRecordsAnalysis(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Gemini.Enabled = true
	cfg.Gemini.APIKey = "test-key"
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "dQw4w9WgXcQ", "ref")
	job.Title = "Sample Talk"
	job.TranscriptJSON = encodedTranscript(t)

	ai, _ := newStubService(t, func(string) (string, error) { return analysisJSON, nil })
	summarizer := NewSummarizerWithService(cfg, ai, nil, nil)
	if err := summarizer.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	analysis, err := DecodeAnalysis(job.SummaryJSON)
	if err != nil {
		t.Fatalf("DecodeAnalysis: %v", err)
	}
	if analysis == nil || analysis.Summary != "A talk about things." {
		t.Fatalf("analysis not recorded: %+v", analysis)
	}
	if len(analysis.Tags) != 2 || !analysis.Tags[0].Primary {
		t.Fatalf("tags not recorded: %+v", analysis.Tags)
	}
}

func TestSummarizerFlagsCorruptTranscriptAsInvalid(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Gemini.Enabled = true
	cfg.Gemini.APIKey = "test-key"
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "dQw4w9WgXcQ", "ref")
	job.TranscriptJSON = "not json"

	ai, _ := newStubService(t, func(string) (string, error) { return analysisJSON, nil })
	summarizer := NewSummarizerWithService(cfg, ai, nil, nil)
	err := summarizer.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("corrupt transcript must classify as invalid input, got %v", err)
	}
	if services.IsFatal(err) {
		t.Fatalf("corrupt job data is not a process-fatal storage failure: %v", err)
	}
}

func TestSummarizerPassesThroughWhenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Gemini.Enabled = false
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "dQw4w9WgXcQ", "ref")
	job.TranscriptJSON = encodedTranscript(t)

	ai, prompts := newStubService(t, func(string) (string, error) { return analysisJSON, nil })
	summarizer := NewSummarizerWithService(cfg, ai, nil, nil)
	if err := summarizer.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.SummaryJSON != "" {
		t.Fatalf("disabled summarizer must not record analysis: %q", job.SummaryJSON)
	}
	if len(*prompts) != 0 {
		t.Fatalf("disabled summarizer must not call the model, got %d calls", len(*prompts))
	}
}

func TestSummarizerDegradesOnModelFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Gemini.Enabled = true
	cfg.Gemini.APIKey = "test-key"
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "dQw4w9WgXcQ", "ref")
	job.TranscriptJSON = encodedTranscript(t)

	ai, _ := newStubService(t, func(string) (string, error) { return "not json at all", nil })
	summarizer := NewSummarizerWithService(cfg, ai, nil, nil)
	if err := summarizer.Execute(context.Background(), job); err != nil {
		t.Fatalf("summarization failure must not fail the job: %v", err)
	}
	if job.SummaryJSON != "" {
		t.Fatalf("failed analysis must not be recorded: %q", job.SummaryJSON)
	}
}

func TestSummarizerBiasesPromptWithVocabulary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Gemini.Enabled = true
	cfg.Gemini.APIKey = "test-key"
	cfg.Tags.Enabled = true
	cfg.Tags.BiasTopN = 10
	store := testsupport.MustOpenStore(t, cfg)
	job := testsupport.NewJob(t, store, "dQw4w9WgXcQ", "ref")
	job.TranscriptJSON = encodedTranscript(t)

	tagStore, err := tags.OpenAt(filepath.Join(t.TempDir(), "tags.db"))
	if err != nil {
		t.Fatalf("tags.OpenAt: %v", err)
	}
	t.Cleanup(func() { tagStore.Close() })
	if _, err := tagStore.Record(context.Background(), []string{"woodworking", "electronics"}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	ai, prompts := newStubService(t, func(string) (string, error) { return analysisJSON, nil })
	summarizer := NewSummarizerWithService(cfg, ai, tagStore, nil)
	if err := summarizer.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(*prompts) != 1 {
		t.Fatalf("expected one model call, got %d", len(*prompts))
	}
	prompt := (*prompts)[0]
	if !strings.Contains(prompt, "woodworking") || !strings.Contains(prompt, "electronics") {
		t.Fatalf("prompt missing vocabulary bias:\n%s", prompt)
	}
}
