package main

import (
	"context"
	"testing"

	"voxbox/internal/queue"
	"voxbox/internal/testsupport"
)

func TestStatusReportsQueueCounts(t *testing.T) {
	env := setupCLITestEnv(t)
	ctx := context.Background()

	testsupport.NewJob(t, env.store, "pend0001", "https://youtu.be/pend0001")
	done := testsupport.NewJob(t, env.store, "done0002", "https://youtu.be/done0002")
	done.Status = queue.StatusArchived
	if err := env.store.Update(ctx, done); err != nil {
		t.Fatalf("mark archived: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon:")
	requireContains(t, out, "stopped")
	requireContains(t, out, "Pending")
	requireContains(t, out, "Archived")
}
