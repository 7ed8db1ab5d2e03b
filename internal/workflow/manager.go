package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voxbox/internal/config"
	"voxbox/internal/logging"
	"voxbox/internal/notifications"
	"voxbox/internal/queue"
	"voxbox/internal/stage"
)

// StageSet bundles the concrete pipeline handlers the manager orchestrates.
type StageSet struct {
	Fetcher     stage.Handler
	Transcriber stage.Handler
	Summarizer  stage.Handler
	Archiver    stage.Handler
}

// Manager coordinates queue processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notifications.Service
	pollInterval time.Duration
	maxRetries   int

	stages        []pipelineStage
	stageByStatus map[queue.Status]pipelineStage
	statusOrder   []queue.Status

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job
}

// NewManager constructs a workflow manager over the given stage set.
func NewManager(cfg *config.Config, store *queue.Store, stages StageSet, notifier notifications.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	pollInterval := time.Duration(cfg.Workflow.PollInterval) * time.Second
	maxRetries := cfg.Workflow.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger.With(logging.String(logging.FieldComponent, "workflow")),
		notifier:     notifier,
		pollInterval: pollInterval,
		maxRetries:   maxRetries,
	}
	m.configureStages(stages)
	return m
}

func (m *Manager) configureStages(stages StageSet) {
	m.stages = []pipelineStage{
		{
			name:             "fetch",
			handler:          stages.Fetcher,
			startStatus:      queue.StatusDiscovered,
			processingStatus: queue.StatusFetching,
			doneStatus:       queue.StatusTranscribing,
		},
		{
			name:             "transcribe",
			handler:          stages.Transcriber,
			startStatus:      queue.StatusTranscribing,
			processingStatus: queue.StatusTranscribing,
			doneStatus:       queue.StatusSummarizing,
		},
		{
			name:             "summarize",
			handler:          stages.Summarizer,
			startStatus:      queue.StatusSummarizing,
			processingStatus: queue.StatusSummarizing,
			doneStatus:       queue.StatusWriting,
		},
		{
			name:             "archive",
			handler:          stages.Archiver,
			startStatus:      queue.StatusWriting,
			processingStatus: queue.StatusWriting,
			doneStatus:       queue.StatusArchived,
		},
	}

	m.stageByStatus = make(map[queue.Status]pipelineStage, len(m.stages)*2)
	m.statusOrder = m.statusOrder[:0]
	seen := make(map[queue.Status]struct{})
	for _, stg := range m.stages {
		for _, status := range []queue.Status{stg.startStatus, stg.processingStatus} {
			if _, dup := seen[status]; dup {
				continue
			}
			seen[status] = struct{}{}
			m.stageByStatus[status] = stg
			m.statusOrder = append(m.statusOrder, status)
		}
	}
}

func (m *Manager) stageForStatus(status queue.Status) (pipelineStage, bool) {
	stg, ok := m.stageByStatus[status]
	return stg, ok
}
