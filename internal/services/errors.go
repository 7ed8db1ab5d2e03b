package services

import (
	"errors"
	"fmt"
	"strings"

	"voxbox/internal/queue"
)

var (
	// ErrInvalidInput marks malformed job references. Terminal and
	// non-retryable; the job moves straight to invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks permanent upstream failures such as removed or
	// private videos. Non-retryable; the job fails immediately.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks network and rate-limit failures that are retried
	// with backoff up to the configured maximum.
	ErrTransient = errors.New("transient failure")
	// ErrTimeout marks operations that exceeded their ceiling. Treated the
	// same as ErrTransient for retry purposes.
	ErrTimeout = errors.New("timeout")
	// ErrTranscription marks speech-to-text failures.
	ErrTranscription = errors.New("transcription failure")
	// ErrSummarization marks summarizer failures. Never fails a job on its
	// own; the orchestrator degrades to a transcript-only note instead.
	ErrSummarization = errors.New("summarization failure")
	// ErrAuthorization marks expired or revoked remote-storage credentials.
	// Pauses remote polling; local jobs are unaffected.
	ErrAuthorization = errors.New("authorization failure")
	// ErrStorageIO marks local disk failures (full disk, permissions).
	// Fatal to the process; operator intervention is required.
	ErrStorageIO = errors.New("storage io failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a stage error should keep the job in its
// current state for another attempt rather than moving it to a terminal one.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrTranscription)
}

// IsFatal reports whether an error must stop the whole process.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStorageIO)
}

// FailureStatus maps a stage error to the terminal job status the workflow
// manager should persist once retries are exhausted or the error is
// non-retryable.
func FailureStatus(err error) queue.Status {
	if errors.Is(err, ErrInvalidInput) {
		return queue.StatusInvalid
	}
	return queue.StatusFailed
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
