package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/harunnryd/warden/internal/daemon"
	"github.com/harunnryd/warden/internal/daemon/components"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the router",
	Long:  `Starts the router as a long-running service. Components start in dependency order and stop on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		forceClean, _ := cmd.Flags().GetBool("force-clean-locks")

		d, err := daemon.NewDaemon(cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}
		d.SetForceCleanup(forceClean)
		components.Register(d, cfg)

		slog.Info("Warden starting up", "port", cfg.Server.Port, "service_id", cfg.Auth.ServiceID, "data_dir", cfg.Daemon.DataDir)
		if err := d.Start(context.Background()); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				slog.Info("Warden stopped gracefully")
				return nil
			}
			return fmt.Errorf("daemon failed: %w", err)
		}

		slog.Info("Warden stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("force-clean-locks", false, "Force cleanup of stale lock files (default: warn-only)")
}
