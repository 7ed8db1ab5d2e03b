package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"voxbox/internal/logging"
	"voxbox/internal/queue"
	"voxbox/internal/services"
)

func (m *Manager) processJob(ctx context.Context, job *queue.Job) error {
	stg, ok := m.stageForStatus(job.Status)
	if !ok {
		m.logger.Warn("no stage configured for status", logging.String("status", string(job.Status)))
		m.waitForJobOrShutdown(ctx)
		return nil
	}

	stageCtx := services.WithRequestID(services.WithStage(services.WithJobID(ctx, job.ID), stg.name), uuid.NewString())
	stageLogger := logging.WithContext(stageCtx, m.logger).With(
		logging.String(logging.FieldVideoID, job.VideoID))

	job.Status = stg.processingStatus
	if err := m.store.Update(stageCtx, job); err != nil {
		wrapped := fmt.Errorf("persist processing transition: %w", err)
		stageLogger.Error("failed to transition job to processing", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	m.setLastJob(job)

	return m.executeStage(stageCtx, stageLogger, stg, job)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, job *queue.Job) error {
	stageStart := time.Now()
	stageLogger.Info("stage started", logging.String("processing_status", string(stg.processingStatus)))

	if err := stg.handler.Prepare(ctx, job); err != nil {
		m.handleStageFailure(ctx, stageLogger, stg, job, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.Update(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	if execErr := stg.handler.Execute(ctx, job); execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(ctx, stageLogger, stg, job, execErr)
		m.setLastError(execErr)
		return execErr
	}

	job.Status = stg.doneStatus
	job.RetryCount = 0
	job.ErrorMessage = ""
	if err := m.store.Update(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		stageLogger.Error("failed to persist stage result", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}
	stageLogger.Info("stage completed",
		logging.String("next_status", string(job.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)))

	m.setLastJob(job)
	if job.Status == queue.StatusArchived {
		m.notifyArchived(ctx, stageLogger, job)
	}
	return nil
}

func (m *Manager) notifyArchived(ctx context.Context, stageLogger *slog.Logger, job *queue.Job) {
	if m.notifier == nil {
		return
	}
	title := job.Title
	if title == "" {
		title = job.VideoID
	}
	if err := m.notifier.NotifyJobArchived(ctx, title, job.OutputPath); err != nil {
		stageLogger.Warn("archive notification failed", logging.Error(err))
	}
}
