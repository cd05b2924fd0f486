package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/repostsleuth/sleuth/internal/storage"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Prune old events and worker instances",
	Long: `Run the retention cleanups that a running worker performs periodically.

Examples:
  sleuth cleanup events      # Delete events past the retention policy
  sleuth cleanup instances   # Mark silent workers stopped and prune old ones`,
}

var cleanupEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Delete events past the retention policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		retention := cfg.EventRetention
		if err := retention.Validate(); err != nil {
			return fmt.Errorf("invalid event retention configuration: %w", err)
		}

		fmt.Println("Event retention:")
		fmt.Printf("  Regular events: %d days\n", retention.RetentionDays)
		fmt.Printf("  Error/critical events: %d days\n", retention.RetentionCriticalDays)
		fmt.Printf("  Batch size: %d events/txn\n\n", retention.CleanupBatchSize)

		store, err := openStore(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = store.Close() }()

		start := time.Now()
		var deleted, remaining int
		err = storage.WithUnitOfWork(ctx, store, func(uow storage.UnitOfWork) error {
			var err error
			deleted, err = uow.Events().CleanupByAge(ctx, retention.RetentionDays, retention.RetentionCriticalDays, retention.CleanupBatchSize)
			if err != nil {
				return err
			}
			remaining, err = uow.Events().Count(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("event cleanup failed: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Cleanup complete\n", green("✓"))
		fmt.Printf("  Events deleted: %d\n", deleted)
		fmt.Printf("  Events remaining: %d\n", remaining)
		fmt.Printf("  Time taken: %s\n", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var cleanupInstancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "Mark silent workers stopped and prune old stopped instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		ic := cfg.InstanceCleanup
		if err := ic.Validate(); err != nil {
			return fmt.Errorf("invalid instance cleanup configuration: %w", err)
		}

		store, err := openStore(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = store.Close() }()

		fmt.Printf("Running cleanup (stale threshold: %v)...\n", ic.StaleThreshold())

		var marked, deleted int
		err = storage.WithUnitOfWork(ctx, store, func(uow storage.UnitOfWork) error {
			var err error
			if marked, err = uow.Instances().CleanupStale(ctx, ic.StaleThreshold()); err != nil {
				return err
			}
			deleted, err = uow.Instances().DeleteOldStopped(ctx, ic.CleanupAge(), ic.CleanupKeep)
			return err
		})
		if err != nil {
			return fmt.Errorf("instance cleanup failed: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Marked %d stale instance(s) stopped\n", green("✓"), marked)
		fmt.Printf("%s Deleted %d old stopped instance(s) (older than %v, keeping %d most recent)\n",
			green("✓"), deleted, ic.CleanupAge(), ic.CleanupKeep)
		return nil
	},
}

func init() {
	cleanupCmd.AddCommand(cleanupEventsCmd, cleanupInstancesCmd)
	rootCmd.AddCommand(cleanupCmd)
}
