package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"voxbox/internal/config"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    video_id TEXT NOT NULL,
    source_ref TEXT NOT NULL,
    mode TEXT NOT NULL,
    account_id TEXT,
    input_path TEXT,
    input_name TEXT,
    title TEXT,
    channel TEXT,
    duration_seconds INTEGER NOT NULL DEFAULT 0,
    upload_date TEXT,
    audio_path TEXT,
    caption_path TEXT,
    caption_source TEXT,
    transcript_json TEXT,
    summary_json TEXT,
    output_path TEXT,
    status TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_video_id ON jobs(video_id);
`

const jobColumns = `id, video_id, source_ref, mode, account_id, input_path, input_name,
    title, channel, duration_seconds, upload_date, audio_path, caption_path,
    caption_source, transcript_json, summary_json, output_path, status,
    retry_count, error_message, created_at, updated_at`

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "voxbox.db")
	return OpenAt(dbPath)
}

// OpenAt connects to the job database at an explicit path.
func OpenAt(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// NewJob inserts a newly discovered job.
func (s *Store) NewJob(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	if strings.TrimSpace(job.VideoID) == "" && job.Status != StatusInvalid {
		return nil, errors.New("video id required")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	status := job.Status
	if status == "" {
		status = StatusDiscovered
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            video_id, source_ref, mode, account_id, input_path, input_name,
            status, error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.VideoID,
		job.SourceRef,
		string(job.Mode),
		nullableString(job.AccountID),
		nullableString(job.InputPath),
		nullableString(job.InputName),
		status,
		nullableString(job.ErrorMessage),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Missing jobs yield (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindByVideoID returns the most recent job matching a content identity.
func (s *Store) FindByVideoID(ctx context.Context, videoID string) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE video_id = ? ORDER BY id DESC LIMIT 1`,
		videoID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by video id: %w", err)
	}
	return job, nil
}

// HasArchived reports whether a content identity already reached archived.
func (s *Store) HasArchived(ctx context.Context, videoID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM jobs WHERE video_id = ? AND status = ?`,
		videoID, StatusArchived,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check archived: %w", err)
	}
	return count > 0, nil
}

// Update persists changes to an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET video_id = ?, source_ref = ?, mode = ?, account_id = ?,
             input_path = ?, input_name = ?, title = ?, channel = ?,
             duration_seconds = ?, upload_date = ?, audio_path = ?,
             caption_path = ?, caption_source = ?, transcript_json = ?,
             summary_json = ?, output_path = ?, status = ?, retry_count = ?,
             error_message = ?, updated_at = ?
         WHERE id = ?`,
		job.VideoID,
		job.SourceRef,
		string(job.Mode),
		nullableString(job.AccountID),
		nullableString(job.InputPath),
		nullableString(job.InputName),
		nullableString(job.Title),
		nullableString(job.Channel),
		job.DurationSeconds,
		nullableString(job.UploadDate),
		nullableString(job.AudioPath),
		nullableString(job.CaptionPath),
		nullableString(job.CaptionSource),
		nullableString(job.TranscriptJSON),
		nullableString(job.SummaryJSON),
		nullableString(job.OutputPath),
		job.Status,
		job.RetryCount,
		nullableString(job.ErrorMessage),
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// NextForStatuses returns the oldest job whose status matches any of the
// provided values, or nil when none is pending.
func (s *Store) NextForStatuses(ctx context.Context, statuses ...Status) (*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(statuses))
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status IN (`+placeholders+`) ORDER BY created_at, id LIMIT 1`,
		args...,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next job: %w", err)
	}
	return job, nil
}

// List returns jobs filtered by status set (or all jobs when none given).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at, id`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ResetInFlight rewinds every non-terminal job to discovered. Called on
// startup: the surviving input file is the durable record of pending work, so
// interrupted jobs are reprocessed from the beginning.
func (s *Store) ResetInFlight(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, retry_count = 0, error_message = NULL, updated_at = ?
         WHERE status IN (?, ?, ?, ?)`,
		StatusDiscovered,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusFetching,
		StatusTranscribing,
		StatusSummarizing,
		StatusWriting,
	)
	if err != nil {
		return 0, fmt.Errorf("reset in-flight jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed rewinds a failed job to discovered for another run.
func (s *Store) RetryFailed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET status = ?, retry_count = 0, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusDiscovered,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
		StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("retry job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("job %d is not in failed state", id)
	}
	return nil
}

// Clear removes jobs in terminal states and returns the number deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM jobs WHERE status IN (?, ?, ?)`,
		StatusArchived, StatusFailed, StatusInvalid,
	)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// Health summarizes job counts per lifecycle bucket.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	summary := HealthSummary{}
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return summary, fmt.Errorf("health query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return summary, fmt.Errorf("health scan: %w", err)
		}
		summary.Total += count
		switch status {
		case StatusDiscovered:
			summary.Pending += count
		case StatusFetching, StatusTranscribing, StatusSummarizing, StatusWriting:
			summary.Processing += count
		case StatusArchived:
			summary.Archived += count
		case StatusFailed:
			summary.Failed += count
		case StatusInvalid:
			summary.Invalid += count
		}
	}
	return summary, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job           Job
		mode          string
		accountID     sql.NullString
		inputPath     sql.NullString
		inputName     sql.NullString
		title         sql.NullString
		channel       sql.NullString
		uploadDate    sql.NullString
		audioPath     sql.NullString
		captionPath   sql.NullString
		captionSource sql.NullString
		transcript    sql.NullString
		summary       sql.NullString
		outputPath    sql.NullString
		errorMessage  sql.NullString
		createdAt     string
		updatedAt     string
	)

	err := scanner.Scan(
		&job.ID,
		&job.VideoID,
		&job.SourceRef,
		&mode,
		&accountID,
		&inputPath,
		&inputName,
		&title,
		&channel,
		&job.DurationSeconds,
		&uploadDate,
		&audioPath,
		&captionPath,
		&captionSource,
		&transcript,
		&summary,
		&outputPath,
		&job.Status,
		&job.RetryCount,
		&errorMessage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Mode = Mode(mode)
	job.AccountID = accountID.String
	job.InputPath = inputPath.String
	job.InputName = inputName.String
	job.Title = title.String
	job.Channel = channel.String
	job.UploadDate = uploadDate.String
	job.AudioPath = audioPath.String
	job.CaptionPath = captionPath.String
	job.CaptionSource = captionSource.String
	job.TranscriptJSON = transcript.String
	job.SummaryJSON = summary.String
	job.OutputPath = outputPath.String
	job.ErrorMessage = errorMessage.String

	if ts, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
		job.CreatedAt = ts
	}
	if ts, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
		job.UpdatedAt = ts
	}
	return &job, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
