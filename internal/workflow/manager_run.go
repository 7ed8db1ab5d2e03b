package workflow

import (
	"context"
	"errors"
	"time"

	"voxbox/internal/logging"
	"voxbox/internal/queue"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	for _, stg := range m.stages {
		if stg.handler == nil {
			m.mu.Unlock()
			return errors.New("workflow stages not configured")
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.nextJob(ctx)
		if err != nil {
			m.handleNextJobError(ctx, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		if err := m.processJob(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.waitForRetryOrShutdown(ctx)
		}
	}
}

func (m *Manager) nextJob(ctx context.Context) (*queue.Job, error) {
	return m.store.NextForStatuses(ctx, m.statusOrder...)
}

func (m *Manager) handleNextJobError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	m.logger.Error("failed to fetch next queue job", logging.Error(err))
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

// waitForRetryOrShutdown paces the loop after a stage failure so a job kept
// in place for retry is not immediately re-claimed.
func (m *Manager) waitForRetryOrShutdown(ctx context.Context) {
	delay := time.Duration(m.cfg.Workflow.RetryDelaySeconds) * time.Second
	if delay <= 0 {
		delay = m.pollInterval
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}
