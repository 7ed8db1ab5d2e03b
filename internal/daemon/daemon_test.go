package daemon_test

import (
	"context"
	"testing"
	"time"

	"voxbox/internal/daemon"
	"voxbox/internal/queue"
	"voxbox/internal/stage"
	"voxbox/internal/testsupport"
	"voxbox/internal/workflow"
)

type idleStage struct{ name string }

func (s idleStage) Prepare(context.Context, *queue.Job) error { return nil }
func (s idleStage) Execute(context.Context, *queue.Job) error { return nil }
func (s idleStage) HealthCheck(context.Context) stage.Health  { return stage.Healthy(s.name) }

func stageSet() workflow.StageSet {
	return workflow.StageSet{
		Fetcher:     idleStage{"fetch"},
		Transcriber: idleStage{"transcribe"},
		Summarizer:  idleStage{"summarize"},
		Archiver:    idleStage{"archive"},
	}
}

func TestDaemonEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	first, err := daemon.New(cfg, store, nil, workflow.NewManager(cfg, store, stageSet(), nil, nil), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(first.Stop)

	second, err := daemon.New(cfg, store, nil, workflow.NewManager(cfg, store, stageSet(), nil, nil), nil, nil)
	if err != nil {
		t.Fatalf("New second: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second daemon start to fail while lock held")
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second start after release: %v", err)
	}
	second.Stop()
}

func TestDaemonRewindsInterruptedJobsOnStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.PollInterval = 0
	cfg.Workflow.RetryDelaySeconds = 0
	store := testsupport.MustOpenStore(t, cfg)

	job := testsupport.NewJob(t, store, "dQw4w9WgXcQ", "ref")
	job.Status = queue.StatusFetching
	if err := store.Update(context.Background(), job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	d, err := daemon.New(cfg, store, nil, workflow.NewManager(cfg, store, stageSet(), nil, nil), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	status := d.Status(context.Background())
	if !status.Running {
		t.Fatal("daemon should report running")
	}

	deadline := time.After(20 * time.Second)
	for {
		updated, err := store.GetByID(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if updated.Status == queue.StatusArchived {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("interrupted job never reprocessed, status %s", updated.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
