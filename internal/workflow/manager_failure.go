package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"voxbox/internal/logging"
	"voxbox/internal/queue"
	"voxbox/internal/services"
)

// handleStageFailure applies the retry policy. Retryable failures keep the
// job at the stage's processing status and consume a retry; non-retryable
// failures and exhausted retries move it to the terminal status derived from
// the error marker. Invalid input never consumes a retry.
func (m *Manager) handleStageFailure(ctx context.Context, stageLogger *slog.Logger, stg pipelineStage, job *queue.Job, stageErr error) {
	message := failureMessage(stg.name, stageErr)
	job.ErrorMessage = message

	if services.IsRetryable(stageErr) && job.RetryCount < m.maxRetries {
		job.RetryCount++
		job.Status = stg.processingStatus
		stageLogger.Warn("stage failed, will retry",
			logging.Int("retry_count", job.RetryCount),
			logging.Int("max_retries", m.maxRetries),
			logging.Error(stageErr))
	} else {
		job.Status = services.FailureStatus(stageErr)
		stageLogger.Error("stage failed",
			logging.String("resolved_status", string(job.Status)),
			logging.Int("retry_count", job.RetryCount),
			logging.Error(stageErr))
	}

	if err := m.store.Update(ctx, job); err != nil {
		if errors.Is(err, context.Canceled) {
			stageLogger.Debug("daemon shutting down, could not update stage failure")
		} else {
			stageLogger.Error("failed to persist stage failure", logging.Error(err))
		}
	}
	m.setLastJob(job)

	if job.Status == queue.StatusFailed || job.Status == queue.StatusInvalid {
		m.notifyFailed(ctx, stageLogger, job, stageErr)
	}
	if services.IsFatal(stageErr) {
		stageLogger.Error("storage failure requires operator intervention",
			logging.Error(stageErr))
	}
}

func (m *Manager) notifyFailed(ctx context.Context, stageLogger *slog.Logger, job *queue.Job, stageErr error) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifyJobFailed(ctx, job.VideoID, stageErr); err != nil {
		stageLogger.Warn("failure notification failed", logging.Error(err))
	}
}

func failureMessage(stageName string, stageErr error) string {
	if stageErr == nil {
		return stageName + " failed without error detail"
	}
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		return stageName + " failed"
	}
	return message
}
