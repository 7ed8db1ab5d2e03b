package intake

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"voxbox/internal/queue"
	"voxbox/internal/testsupport"
)

func TestLocalScanEnqueuesValidJobFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scanner := NewLocalScanner(cfg, store, nil)

	path := filepath.Join(cfg.Paths.InboxDir, "watch-later.txt")
	testsupport.WriteFile(t, path, "https://www.youtube.com/watch?v=dQw4w9WgXcQ\n")

	created, err := scanner.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 job, got %d", created)
	}

	job, err := store.FindByVideoID(context.Background(), "dQw4w9WgXcQ")
	if err != nil || job == nil {
		t.Fatalf("job not enqueued: %v", err)
	}
	if job.Status != queue.StatusDiscovered || job.Mode != queue.ModeLocal {
		t.Fatalf("unexpected job state %+v", job)
	}
	if job.InputPath != path || job.InputName != "watch-later.txt" {
		t.Fatalf("input not recorded: %+v", job)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("input must stay in inbox until archived: %v", err)
	}
}

func TestLocalScanRetiresMalformedInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scanner := NewLocalScanner(cfg, store, nil)

	path := filepath.Join(cfg.Paths.InboxDir, "broken.txt")
	testsupport.WriteFile(t, path, "not a video reference\n")

	created, err := scanner.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if created != 0 {
		t.Fatalf("malformed input must not create work, got %d", created)
	}

	jobs, err := store.List(context.Background(), queue.StatusInvalid)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("expected one invalid job, got %v (%v)", jobs, err)
	}
	if jobs[0].ErrorMessage == "" {
		t.Fatal("invalid job must record the parse failure")
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("malformed input must leave the inbox")
	}
	retired := filepath.Join(cfg.Paths.ArchiveDir, invalidBucket, "broken.txt")
	if _, err := os.Stat(retired); err != nil {
		t.Fatalf("malformed input not in invalid bucket: %v", err)
	}
}

func TestLocalScanSuppressesArchivedDuplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scanner := NewLocalScanner(cfg, store, nil)

	done := testsupport.NewJob(t, store, "dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ")
	done.Status = queue.StatusArchived
	if err := store.Update(context.Background(), done); err != nil {
		t.Fatalf("mark archived: %v", err)
	}

	path := filepath.Join(cfg.Paths.InboxDir, "again.txt")
	testsupport.WriteFile(t, path, "https://youtu.be/dQw4w9WgXcQ\n")

	created, err := scanner.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if created != 0 {
		t.Fatalf("duplicate must not create a job, got %d", created)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("duplicate input must be retired from the inbox")
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.ArchiveDir, "again.txt")); err != nil {
		t.Fatalf("duplicate input not archived: %v", err)
	}
}

func TestLocalScanSkipsInFlightVideo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scanner := NewLocalScanner(cfg, store, nil)

	testsupport.NewJob(t, store, "dQw4w9WgXcQ", "https://youtu.be/dQw4w9WgXcQ")

	path := filepath.Join(cfg.Paths.InboxDir, "pending.txt")
	testsupport.WriteFile(t, path, "https://youtu.be/dQw4w9WgXcQ\n")

	created, err := scanner.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if created != 0 {
		t.Fatalf("in-flight video must not enqueue twice, got %d", created)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("pending input must remain until its job finishes: %v", err)
	}
}

func TestLocalScanIgnoresNonJobFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scanner := NewLocalScanner(cfg, store, nil)

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.InboxDir, "notes.md"), "# not a job")
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.InboxDir, ".hidden.txt"), "https://youtu.be/dQw4w9WgXcQ")

	created, err := scanner.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("ScanOnce: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected no jobs from non-job files, got %d", created)
	}
}
