package queue_test

import (
	"context"
	"fmt"
	"testing"

	"voxbox/internal/queue"
	"voxbox/internal/testsupport"
)

func TestOpenAppliesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.NewJob(ctx, &queue.Job{
		VideoID:   "dQw4w9WgXcQ",
		SourceRef: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Mode:      queue.ModeLocal,
	})
	if err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}
	if job.ID == 0 {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusDiscovered {
		t.Fatalf("expected discovered status, got %s", job.Status)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.VideoID != "dQw4w9WgXcQ" {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}

	found, err := store.FindByVideoID(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("FindByVideoID failed: %v", err)
	}
	if found == nil || found.ID != job.ID {
		t.Fatalf("expected to find inserted job, got %#v", found)
	}
}

func TestNewJobRequiresVideoID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.NewJob(ctx, &queue.Job{SourceRef: "garbage"}); err == nil {
		t.Fatal("expected error when video id missing")
	}

	// Unparseable references are recorded as invalid without an identity.
	job, err := store.NewJob(ctx, &queue.Job{
		SourceRef:    "not-a-url",
		Mode:         queue.ModeLocal,
		Status:       queue.StatusInvalid,
		ErrorMessage: "unrecognized video reference",
	})
	if err != nil {
		t.Fatalf("NewJob for invalid input failed: %v", err)
	}
	if job.Status != queue.StatusInvalid {
		t.Fatalf("expected invalid status, got %s", job.Status)
	}
}

func TestUpdatePersistsPipelineFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "abcdefghijk", "https://youtu.be/abcdefghijk")

	job.Status = queue.StatusTranscribing
	job.Title = "Sample Talk"
	job.Channel = "Sample Channel"
	job.DurationSeconds = 930
	job.AudioPath = "/tmp/audio.mp3"
	job.CaptionSource = "manual_caption"
	job.RetryCount = 2
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	updated, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusTranscribing {
		t.Fatalf("expected transcribing, got %s", updated.Status)
	}
	if updated.Title != "Sample Talk" || updated.Channel != "Sample Channel" {
		t.Fatalf("metadata not persisted: %#v", updated)
	}
	if updated.DurationSeconds != 930 || updated.RetryCount != 2 {
		t.Fatalf("numeric fields not persisted: %#v", updated)
	}
}

func TestResetInFlight(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	inFlight := []queue.Status{
		queue.StatusFetching,
		queue.StatusTranscribing,
		queue.StatusSummarizing,
		queue.StatusWriting,
	}
	var ids []int64
	for i, status := range inFlight {
		job := testsupport.NewJob(t, store, fmt.Sprintf("vid%08d", i), fmt.Sprintf("ref-%d", i))
		job.Status = status
		job.RetryCount = 1
		if err := store.Update(ctx, job); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		ids = append(ids, job.ID)
	}

	terminal := testsupport.NewJob(t, store, "terminal0001", "ref-terminal")
	terminal.Status = queue.StatusArchived
	if err := store.Update(ctx, terminal); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.ResetInFlight(ctx)
	if err != nil {
		t.Fatalf("ResetInFlight failed: %v", err)
	}
	if int(count) != len(inFlight) {
		t.Fatalf("expected %d jobs reset, got %d", len(inFlight), count)
	}

	for _, id := range ids {
		updated, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if updated.Status != queue.StatusDiscovered {
			t.Fatalf("expected discovered after reset, got %s", updated.Status)
		}
		if updated.RetryCount != 0 {
			t.Fatalf("expected retry count cleared, got %d", updated.RetryCount)
		}
	}

	kept, err := store.GetByID(ctx, terminal.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if kept.Status != queue.StatusArchived {
		t.Fatalf("terminal job should be untouched, got %s", kept.Status)
	}
}

func TestNextForStatusesOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first := testsupport.NewJob(t, store, "first000000", "ref-a")
	second := testsupport.NewJob(t, store, "second00000", "ref-b")
	second.Status = queue.StatusSummarizing
	if err := store.Update(ctx, second); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	next, err := store.NextForStatuses(ctx, queue.StatusDiscovered, queue.StatusSummarizing)
	if err != nil {
		t.Fatalf("NextForStatuses failed: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest job first, got %#v", next)
	}

	none, err := store.NextForStatuses(ctx, queue.StatusWriting)
	if err != nil {
		t.Fatalf("NextForStatuses failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no writing jobs, got %#v", none)
	}
}

func TestHasArchivedSuppressesDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "dupvid00001", "ref-dup")

	archived, err := store.HasArchived(ctx, "dupvid00001")
	if err != nil {
		t.Fatalf("HasArchived failed: %v", err)
	}
	if archived {
		t.Fatal("job not archived yet")
	}

	job.Status = queue.StatusArchived
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	archived, err = store.HasArchived(ctx, "dupvid00001")
	if err != nil {
		t.Fatalf("HasArchived failed: %v", err)
	}
	if !archived {
		t.Fatal("expected archived job to be detected")
	}
}

func TestHealthAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	pending := testsupport.NewJob(t, store, "pending0001", "ref-1")
	_ = pending

	failed := testsupport.NewJob(t, store, "failed00001", "ref-2")
	failed.SetFailed("fetch exploded")
	if err := store.Update(ctx, failed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	done := testsupport.NewJob(t, store, "done0000001", "ref-3")
	done.Status = queue.StatusArchived
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.Pending != 1 || health.Failed != 1 || health.Archived != 1 {
		t.Fatalf("unexpected health summary: %#v", health)
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 terminal jobs cleared, got %d", removed)
	}

	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Status != queue.StatusDiscovered {
		t.Fatalf("unexpected remaining jobs: %#v", remaining)
	}
}

func TestRetryFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "retryvid001", "ref-retry")

	if err := store.RetryFailed(ctx, job.ID); err == nil {
		t.Fatal("expected error retrying a non-failed job")
	}

	job.SetFailed("whisper timeout")
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.RetryFailed(ctx, job.ID); err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}

	updated, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != queue.StatusDiscovered || updated.RetryCount != 0 || updated.ErrorMessage != "" {
		t.Fatalf("unexpected job after retry: %#v", updated)
	}
}
