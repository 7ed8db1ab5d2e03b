// Command voxboxd is the VoxBox daemon: it watches the configured intake
// source for video references and turns each one into a knowledge note in
// the output vault.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"voxbox/internal/config"
	"voxbox/internal/daemon"
	"voxbox/internal/logging"
	"voxbox/internal/queue"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, cfgPath, found, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	if !found {
		logger.Info("no configuration file found, using defaults", logging.String("path", cfgPath))
	}

	if err := cfg.EnsureDirectories(); err != nil {
		logger.Error("prepare directories", logging.Error(err))
		return
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return
	}

	parts, err := buildComponents(cfg, store, logger)
	if err != nil {
		logger.Error("assemble daemon", logging.Error(err))
		store.Close()
		return
	}
	defer parts.tagStore.Close()

	d, err := daemon.New(cfg, store, logger, parts.manager, parts.watcher, parts.oauthSrv)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("voxboxd shutting down")
}
