package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/repostsleuth/sleuth/internal/admin"
	"github.com/repostsleuth/sleuth/internal/logging"
	"github.com/repostsleuth/sleuth/internal/storage"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Serve the read-only admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr != "" {
			cfg.Admin.Addr = addr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = store.Close() }()

		fmt.Fprintf(os.Stderr, "%s Admin API listening on %s\n", color.New(color.FgCyan).Sprint("●"), cfg.Admin.Addr)
		return admin.Run(ctx, newAdminServer(store), cfg.Admin.ShutdownTimeout)
	},
}

func newAdminServer(store storage.Manager) *http.Server {
	return &http.Server{
		Addr:              cfg.Admin.Addr,
		Handler:           admin.New(store, logging.Named(logger, "admin")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func init() {
	adminCmd.Flags().String("addr", "", "listen address (overrides admin.addr)")
	rootCmd.AddCommand(adminCmd)
}
