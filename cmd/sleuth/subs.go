package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/types"
)

var subsCmd = &cobra.Command{
	Use:   "subs",
	Short: "Manage monitored subreddits",
}

var subsAddCmd = &cobra.Command{
	Use:   "add <subreddit>",
	Short: "Add or update a monitored subreddit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimPrefix(args[0], "r/")
		hamming, _ := cmd.Flags().GetInt("hamming")
		annoy, _ := cmd.Flags().GetFloat64("annoy")
		active, _ := cmd.Flags().GetBool("active")
		ctx := context.Background()

		store, err := openStore(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = store.Close() }()

		if hamming < 0 {
			hamming = cfg.Search.DefaultHammingDistance
		}
		if annoy < 0 {
			annoy = cfg.Search.DefaultAnnoyDistance
		}

		var updated bool
		err = storage.WithUnitOfWork(ctx, store, func(uow storage.UnitOfWork) error {
			existing, err := uow.MonitoredSubs().GetBySubreddit(ctx, name)
			if err != nil {
				return err
			}
			if existing != nil {
				updated = true
				existing.TargetHamming = hamming
				existing.TargetAnnoy = annoy
				existing.Active = active
				return uow.MonitoredSubs().Update(ctx, existing)
			}
			sub := types.DefaultMonitoredSub(name)
			sub.TargetHamming = hamming
			sub.TargetAnnoy = annoy
			sub.Active = active
			return uow.MonitoredSubs().Add(ctx, sub)
		})
		if err != nil {
			return fmt.Errorf("failed to save monitored sub: %w", err)
		}

		verb := "Added"
		if updated {
			verb = "Updated"
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s %s r/%s (hamming=%d, annoy=%.2f, active=%t)\n", green("✓"), verb, name, hamming, annoy, active)
		return nil
	},
}

var subsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitored subreddits",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := openStore(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = store.Close() }()

		var subs []*types.MonitoredSub
		err = storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
			var err error
			subs, err = uow.MonitoredSubs().GetAll(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to list monitored subs: %w", err)
		}

		if len(subs) == 0 {
			fmt.Fprintf(os.Stderr, "%s\n", color.YellowString("No monitored subreddits"))
			return nil
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s\n", cyan(fmt.Sprintf("%-24s %-8s %-8s %-8s %s", "SUBREDDIT", "ACTIVE", "HAMMING", "ANNOY", "ADDED")))
		for _, s := range subs {
			status := color.GreenString("%-8s", "yes")
			if !s.Active {
				status = gray(fmt.Sprintf("%-8s", "no"))
			}
			fmt.Printf("%-24s %s %-8d %-8.2f %s\n", "r/"+s.Name, status, s.TargetHamming, s.TargetAnnoy, s.AddedAt.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	subsAddCmd.Flags().Int("hamming", -1, "target hamming distance (default: search.default_hamming_distance)")
	subsAddCmd.Flags().Float64("annoy", -1, "target annoy distance (default: search.default_annoy_distance)")
	subsAddCmd.Flags().Bool("active", true, "mark the subreddit active")
	subsCmd.AddCommand(subsAddCmd, subsListCmd)
	rootCmd.AddCommand(subsCmd)
}
