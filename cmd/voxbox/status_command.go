package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"voxbox/internal/queue"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			running, lockPath := daemonRunning(cfg.Paths.DataDir)
			fmt.Fprintf(out, "Mode:        %s\n", cfg.Mode)
			fmt.Fprintf(out, "Config:      %s\n", ctx.configPath)
			fmt.Fprintf(out, "Vault:       %s\n", cfg.Paths.VaultDir)
			fmt.Fprintf(out, "Daemon:      %s\n", daemonStateLabel(running, colorize))
			fmt.Fprintf(out, "Lock file:   %s\n", lockPath)

			return ctx.withStore(func(store *queue.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return fmt.Errorf("read queue health: %w", err)
				}
				fmt.Fprintf(out, "Queue DB:    %s\n\n", store.Path())
				rows := [][]string{
					{"Pending", strconv.Itoa(health.Pending)},
					{"Processing", strconv.Itoa(health.Processing)},
					{"Archived", strconv.Itoa(health.Archived)},
					{"Failed", strconv.Itoa(health.Failed)},
					{"Invalid", strconv.Itoa(health.Invalid)},
					{"Total", strconv.Itoa(health.Total)},
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Jobs", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

// daemonRunning reports whether another process holds the daemon lock.
func daemonRunning(dataDir string) (bool, string) {
	lockPath := filepath.Join(dataDir, "voxboxd.lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return false, lockPath
	}
	if ok {
		_ = lock.Unlock()
		return false, lockPath
	}
	return true, lockPath
}

func daemonStateLabel(running, colorize bool) string {
	if running {
		if colorize {
			return ansiGreen + "running" + ansiReset
		}
		return "running"
	}
	if colorize {
		return ansiYellow + "stopped" + ansiReset
	}
	return "stopped"
}
