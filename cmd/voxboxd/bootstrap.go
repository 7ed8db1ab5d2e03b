package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voxbox/internal/archiver"
	"voxbox/internal/config"
	"voxbox/internal/intake"
	"voxbox/internal/notifications"
	"voxbox/internal/oauth"
	"voxbox/internal/queue"
	"voxbox/internal/resolver"
	"voxbox/internal/services/dropbox"
	"voxbox/internal/summarize"
	"voxbox/internal/tags"
	"voxbox/internal/workflow"
)

// components holds everything the daemon supervises, assembled per the
// configured intake mode.
type components struct {
	manager  *workflow.Manager
	watcher  *intake.Watcher
	oauthSrv *oauth.Server
	tagStore *tags.Store
}

func buildComponents(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*components, error) {
	tagStore, err := tags.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open tag store: %w", err)
	}

	notifier := notifications.NewService(cfg)

	var (
		remote       *dropbox.Client
		oauthManager *oauth.Manager
		oauthSrv     *oauth.Server
		scanner      intake.Scanner
	)
	switch cfg.Mode {
	case config.ModeDropbox:
		tokenStore, err := oauth.NewTokenStore(cfg.Paths.TokensDir)
		if err != nil {
			return nil, fmt.Errorf("open token store: %w", err)
		}
		remote = dropbox.NewClient()
		oauthManager = oauth.NewManager(oauth.Config{
			AppKey:          cfg.Dropbox.AppKey,
			AppSecret:       cfg.Dropbox.AppSecret,
			RedirectURI:     cfg.OAuthRedirectURI(),
			AllowedAccounts: cfg.Dropbox.AllowedAccounts,
			RefreshMargin:   time.Duration(cfg.OAuth.RefreshMarginSeconds) * time.Second,
		}, tokenStore, remote)
		oauthSrv = oauth.NewServer(cfg.OAuth.BindHost, cfg.OAuth.BindPort, oauthManager, logger)
		scanner = intake.NewDropboxScanner(cfg, store, remote, oauthManager, logger)
	default:
		scanner = intake.NewLocalScanner(cfg, store, logger)
	}

	watcher := intake.NewWatcher(scanner,
		time.Duration(cfg.Workflow.PollInterval)*time.Second, logger,
		intake.WithAuthExpiredHook(func() {
			if err := notifier.NotifyAuthorizationExpired(context.Background(), ""); err != nil {
				logger.Warn("authorization notification failed", "error", err)
			}
		}))

	var (
		remoteStorage archiver.RemoteStorage
		tokenSource   archiver.TokenSource
	)
	if remote != nil {
		remoteStorage = remote
		tokenSource = oauthManager
	}
	stages := workflow.StageSet{
		Fetcher:     resolver.NewFetcher(cfg, logger),
		Transcriber: resolver.NewTranscriber(cfg, logger),
		Summarizer:  summarize.NewSummarizer(cfg, tagStore, logger),
		Archiver:    archiver.NewArchiver(cfg, tagStore, remoteStorage, tokenSource, logger),
	}
	manager := workflow.NewManager(cfg, store, stages, notifier, logger)

	return &components{
		manager:  manager,
		watcher:  watcher,
		oauthSrv: oauthSrv,
		tagStore: tagStore,
	}, nil
}
