package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"voxbox/internal/config"
	"voxbox/internal/logging"
	"voxbox/internal/oauth"
	"voxbox/internal/queue"
	"voxbox/internal/services"
	"voxbox/internal/services/dropbox"
	"voxbox/internal/videoref"
)

const (
	folderInbox   = "Inbox"
	folderOutbox  = "Outbox"
	folderArchive = "Archive"
	folderInvalid = "Invalid"
)

// RemoteClient is the slice of the Dropbox API the scanner uses.
type RemoteClient interface {
	ListFolder(ctx context.Context, token, path string) (dropbox.ListResult, error)
	ListFolderContinue(ctx context.Context, token, cursor string) (dropbox.ListResult, error)
	Download(ctx context.Context, token, path string) ([]byte, error)
	Move(ctx context.Context, token, fromPath, toPath string) error
	CreateFolder(ctx context.Context, token, path string) error
}

// DropboxScanner polls authorized accounts' app folders for job files. A
// rejected token pauses polling for that account until reauthorization;
// local processing is never affected.
type DropboxScanner struct {
	cfg     *config.Config
	store   *queue.Store
	client  RemoteClient
	manager *oauth.Manager
	logger  *slog.Logger

	cursors     map[string]string
	initialized map[string]bool
}

// NewDropboxScanner constructs a scanner over the configured app folder.
func NewDropboxScanner(cfg *config.Config, store *queue.Store, client RemoteClient, manager *oauth.Manager, logger *slog.Logger) *DropboxScanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DropboxScanner{
		cfg:         cfg,
		store:       store,
		client:      client,
		manager:     manager,
		logger:      logger.With(logging.String(logging.FieldComponent, "intake-dropbox")),
		cursors:     make(map[string]string),
		initialized: make(map[string]bool),
	}
}

// WatchDir returns "" because remote intake has no local directory to watch.
func (s *DropboxScanner) WatchDir() string {
	return ""
}

// ScanOnce polls every authorized account once and returns how many jobs
// were created.
func (s *DropboxScanner) ScanOnce(ctx context.Context) (int, error) {
	if s.manager.State() == oauth.StateExpired {
		s.logger.Debug("remote polling paused until reauthorization")
		return 0, nil
	}
	accounts, err := s.manager.Store().ListAccounts()
	if err != nil {
		return 0, err
	}
	if len(accounts) == 0 {
		s.logger.Debug("no authorized accounts to poll")
		return 0, nil
	}

	created := 0
	for _, accountID := range accounts {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		count, err := s.scanAccount(ctx, accountID)
		created += count
		if err != nil {
			if errors.Is(err, services.ErrAuthorization) {
				s.manager.MarkExpired()
				s.logger.Warn("account token rejected, pausing remote polling",
					logging.String("account_id", accountID),
					logging.Error(err))
				return created, err
			}
			s.logger.Error("account poll failed",
				logging.String("account_id", accountID),
				logging.Error(err))
		}
	}
	return created, nil
}

func (s *DropboxScanner) scanAccount(ctx context.Context, accountID string) (int, error) {
	token, err := s.manager.FreshAccessToken(ctx, accountID)
	if err != nil {
		return 0, err
	}

	if !s.initialized[accountID] {
		if err := s.ensureFolders(ctx, token); err != nil {
			return 0, err
		}
		s.initialized[accountID] = true
	}

	entries, nextCursor, err := s.listNewEntries(ctx, accountID, token)
	if err != nil {
		return 0, err
	}

	created := 0
	failed := false
	for _, entry := range entries {
		added, err := s.ingestEntry(ctx, accountID, token, entry)
		if err != nil {
			if errors.Is(err, services.ErrAuthorization) {
				return created, err
			}
			failed = true
			s.logger.Error("failed to ingest remote job file",
				logging.String("input", entry.Name),
				logging.Error(err))
			continue
		}
		if added {
			created++
		}
	}

	// Commit the cursor only after every listed entry was handled, so a
	// transiently failing download is re-listed on the next poll instead
	// of being stranded behind an advanced cursor.
	if !failed && nextCursor != "" {
		s.cursors[accountID] = nextCursor
	}
	return created, nil
}

// listNewEntries pages through the inbox from the account's last committed
// cursor. It never mutates the cursor map itself; the caller commits the
// returned cursor once the page's entries are ingested.
func (s *DropboxScanner) listNewEntries(ctx context.Context, accountID, token string) ([]dropbox.Entry, string, error) {
	var (
		result dropbox.ListResult
		err    error
	)
	if cursor := s.cursors[accountID]; cursor != "" {
		result, err = s.client.ListFolderContinue(ctx, token, cursor)
	} else {
		result, err = s.client.ListFolder(ctx, token, s.folder(folderInbox))
	}
	if err != nil {
		if dropbox.IsPathNotFound(err) {
			return nil, "", nil
		}
		return nil, "", err
	}

	var files []dropbox.Entry
	for {
		for _, entry := range result.Entries {
			if entry.IsFile() && isJobFile(entry.Name) {
				files = append(files, entry)
			}
		}
		if !result.HasMore {
			return files, result.Cursor, nil
		}
		result, err = s.client.ListFolderContinue(ctx, token, result.Cursor)
		if err != nil {
			return nil, "", err
		}
	}
}

func (s *DropboxScanner) ingestEntry(ctx context.Context, accountID, token string, entry dropbox.Entry) (bool, error) {
	contents, err := s.client.Download(ctx, token, entry.PathLower)
	if err != nil {
		// A re-listed entry that was already moved out of the inbox is done.
		if dropbox.IsPathNotFound(err) {
			return false, nil
		}
		return false, err
	}

	ref, parseErr := videoref.ParseJobFile(string(contents))
	var videoID string
	if parseErr == nil {
		videoID, parseErr = videoref.ExtractVideoID(ref)
	}
	if parseErr != nil {
		return false, s.retireInvalid(ctx, accountID, token, entry, ref, parseErr)
	}

	archived, err := s.store.HasArchived(ctx, videoID)
	if err != nil {
		return false, err
	}
	if archived {
		s.logger.Info("skipping already-archived video",
			logging.String(logging.FieldVideoID, videoID),
			logging.String("input", entry.Name))
		return false, s.client.Move(ctx, token, entry.PathLower, s.folder(folderArchive)+"/"+entry.Name)
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
		Mode:      queue.ModeDropbox,
		AccountID: accountID,
		InputPath: entry.PathLower,
		InputName: entry.Name,
		Status:    queue.StatusDiscovered,
	}
	if _, err := s.store.NewJob(ctx, job); err != nil {
		return false, err
	}
	s.logger.Info("discovered remote job",
		logging.String(logging.FieldVideoID, videoID),
		logging.String("account_id", accountID),
		logging.String("input", entry.Name))
	return true, nil
}

func (s *DropboxScanner) retireInvalid(ctx context.Context, accountID, token string, entry dropbox.Entry, ref string, cause error) error {
	job := &queue.Job{
		SourceRef:    strings.TrimSpace(ref),
		Mode:         queue.ModeDropbox,
		AccountID:    accountID,
		InputPath:    entry.PathLower,
		InputName:    entry.Name,
		Status:       queue.StatusInvalid,
		ErrorMessage: cause.Error(),
	}
	if _, err := s.store.NewJob(ctx, job); err != nil {
		return err
	}
	s.logger.Warn("retiring malformed remote job file",
		logging.String("input", entry.Name),
		logging.Error(cause))
	return s.client.Move(ctx, token, entry.PathLower, s.folder(folderInvalid)+"/"+entry.Name)
}

func (s *DropboxScanner) ensureFolders(ctx context.Context, token string) error {
	for _, name := range []string{folderInbox, folderOutbox, folderArchive, folderInvalid} {
		if err := s.client.CreateFolder(ctx, token, s.folder(name)); err != nil {
			return fmt.Errorf("ensure folder %s: %w", name, err)
		}
	}
	return nil
}

func (s *DropboxScanner) folder(name string) string {
	return path.Join(s.cfg.Dropbox.SourceFolder, name)
}
