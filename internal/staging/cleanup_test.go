package staging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"voxbox/internal/logging"
	"voxbox/internal/staging"
)

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	root := t.TempDir()

	stale := filepath.Join(root, "job-1")
	fresh := filepath.Join(root, "job-2")
	for _, dir := range []string{stale, fresh} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	result := staging.CleanStale(root, 24*time.Hour, logging.NewNop())
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Removed) != 1 || result.Removed[0] != stale {
		t.Fatalf("unexpected removals: %v", result.Removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh directory should survive")
	}
}

func TestJobDirRoundTrip(t *testing.T) {
	root := t.TempDir()
	dir, err := staging.JobDir(root, 42)
	if err != nil {
		t.Fatalf("JobDir failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected staging dir: %v", err)
	}
	if err := staging.RemoveJobDir(root, 42); err != nil {
		t.Fatalf("RemoveJobDir failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatal("expected staging dir removed")
	}
}
