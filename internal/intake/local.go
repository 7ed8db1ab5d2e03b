package intake

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voxbox/internal/config"
	"voxbox/internal/fileutil"
	"voxbox/internal/logging"
	"voxbox/internal/queue"
	"voxbox/internal/videoref"
)

const invalidBucket = "invalid"

// LocalScanner discovers job files dropped into the local inbox directory.
type LocalScanner struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
}

// NewLocalScanner constructs a scanner over the configured inbox.
func NewLocalScanner(cfg *config.Config, store *queue.Store, logger *slog.Logger) *LocalScanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LocalScanner{
		cfg:    cfg,
		store:  store,
		logger: logger.With(logging.String(logging.FieldComponent, "intake-local")),
	}
}

// WatchDir returns the directory the watcher should monitor for wakeups.
func (s *LocalScanner) WatchDir() string {
	return s.cfg.Paths.InboxDir
}

// ScanOnce walks the inbox and enqueues a job for every new job file. It
// returns how many jobs were created.
func (s *LocalScanner) ScanOnce(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.cfg.Paths.InboxDir)
	if err != nil {
		return 0, fmt.Errorf("read inbox: %w", err)
	}

	created := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		if entry.IsDir() || !isJobFile(entry.Name()) {
			continue
		}
		path := filepath.Join(s.cfg.Paths.InboxDir, entry.Name())
		added, err := s.ingestFile(ctx, path, entry.Name())
		if err != nil {
			s.logger.Error("failed to ingest job file",
				logging.String("input", entry.Name()),
				logging.Error(err))
			continue
		}
		if added {
			created++
		}
	}
	return created, nil
}

func (s *LocalScanner) ingestFile(ctx context.Context, path, name string) (bool, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read job file: %w", err)
	}

	ref, parseErr := videoref.ParseJobFile(string(contents))
	var videoID string
	if parseErr == nil {
		videoID, parseErr = videoref.ExtractVideoID(ref)
	}
	if parseErr != nil {
		return false, s.retireInvalid(ctx, path, name, ref, parseErr)
	}

	archived, err := s.store.HasArchived(ctx, videoID)
	if err != nil {
		return false, err
	}
	if archived {
		s.logger.Info("skipping already-archived video",
			logging.String(logging.FieldVideoID, videoID),
			logging.String("input", name))
		return false, s.retireTo(path, name, s.cfg.Paths.ArchiveDir)
	}

	existing, err := s.store.FindByVideoID(ctx, videoID)
	if err != nil {
		return false, err
	}
	if existing != nil && !existing.IsTerminal() {
		return false, nil
	}

	job := &queue.Job{
		VideoID:   videoID,
		SourceRef: ref,
		Mode:      queue.ModeLocal,
		InputPath: path,
		InputName: name,
		Status:    queue.StatusDiscovered,
	}
	if _, err := s.store.NewJob(ctx, job); err != nil {
		return false, err
	}
	s.logger.Info("discovered job",
		logging.String(logging.FieldVideoID, videoID),
		logging.String("input", name))
	return true, nil
}

// retireInvalid records an invalid job for the malformed input and moves the
// file into the invalid bucket so it is never rescanned.
func (s *LocalScanner) retireInvalid(ctx context.Context, path, name, ref string, cause error) error {
	job := &queue.Job{
		SourceRef:    strings.TrimSpace(ref),
		Mode:         queue.ModeLocal,
		InputPath:    path,
		InputName:    name,
		Status:       queue.StatusInvalid,
		ErrorMessage: cause.Error(),
	}
	if _, err := s.store.NewJob(ctx, job); err != nil {
		return err
	}
	s.logger.Warn("retiring malformed job file",
		logging.String("input", name),
		logging.Error(cause))
	return s.retireTo(path, name, filepath.Join(s.cfg.Paths.ArchiveDir, invalidBucket))
}

func (s *LocalScanner) retireTo(path, name, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create retirement directory: %w", err)
	}
	dest := filepath.Join(destDir, name)
	if _, err := os.Stat(dest); err == nil {
		stamp := time.Now().UTC().Format("20060102T150405")
		dest = filepath.Join(destDir, stamp+"_"+name)
	}
	if err := fileutil.MoveFile(path, dest); err != nil {
		return fmt.Errorf("retire input: %w", err)
	}
	return nil
}

func isJobFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".txt")
}
