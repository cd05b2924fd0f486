package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/repostsleuth/sleuth/internal/admin"
	"github.com/repostsleuth/sleuth/internal/commands"
	"github.com/repostsleuth/sleuth/internal/distance"
	"github.com/repostsleuth/sleuth/internal/gateway"
	"github.com/repostsleuth/sleuth/internal/ingest"
	"github.com/repostsleuth/sleuth/internal/logging"
	"github.com/repostsleuth/sleuth/internal/reply"
	"github.com/repostsleuth/sleuth/internal/search"
	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/summons"
)

var summonsCmd = &cobra.Command{
	Use:   "summons",
	Short: "Run the summons worker",
	Long: `Start the worker that answers summons comments.

The worker will:
1. Register as a worker instance and warn about other running workers
2. Poll for summons without a recorded reply
3. Ingest the summoned post if it has not been seen
4. Run the duplicate check for the post type
5. Reply on the platform and record the reply
6. Continue until stopped with Ctrl+C`,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")
		withAdmin, _ := cmd.Flags().GetBool("admin")

		if lockPath := cfg.Summons.LockPath; lockPath != "" {
			if err := storage.AcquireWorkerLock(lockPath, version); err != nil {
				return err
			}
			defer func() {
				if err := storage.ReleaseWorkerLock(lockPath); err != nil {
					fmt.Fprintf(os.Stderr, "warning: failed to release worker lock: %v\n", err)
				}
			}()
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Fprintf(os.Stderr, "%s Acquired worker lock %s\n", green("✓"), lockPath)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = store.Close() }()

		handler, err := newHandler(store)
		if err != nil {
			return err
		}

		if once {
			return handler.RunCycle(ctx)
		}

		if withAdmin {
			srv := newAdminServer(store)
			go func() {
				if err := admin.Run(ctx, srv, cfg.Admin.ShutdownTimeout); err != nil {
					logger.Error("admin server failed", zap.Error(err))
				}
			}()
		}

		if err := handler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start summons worker: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%s Summons worker %s running (Ctrl+C to stop)\n",
			color.New(color.FgCyan).Sprint("●"), handler.InstanceID())

		<-ctx.Done()
		fmt.Fprintf(os.Stderr, "\nShutting down...\n")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := handler.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop summons worker: %w", err)
		}
		return nil
	},
}

// newHandler wires the summons worker from the loaded configuration
func newHandler(store storage.Manager) (*summons.Handler, error) {
	retry := gateway.DefaultRetryConfig()
	retry.MaxRetries = cfg.Reddit.MaxRetries
	retry.Timeout = cfg.Reddit.Timeout

	reddit := gateway.NewRedditClient(gateway.RedditConfig{
		ClientID:          cfg.Reddit.ClientID,
		ClientSecret:      cfg.Reddit.ClientSecret,
		Username:          cfg.Reddit.Username,
		Password:          cfg.Reddit.Password,
		UserAgent:         cfg.Reddit.UserAgent,
		BaseURL:           cfg.Reddit.BaseURL,
		AuthURL:           cfg.Reddit.AuthURL,
		RequestsPerMinute: cfg.Reddit.RequestsPerMinute,
		Signature:         cfg.Summons.Signature,
		Retry:             retry,
	}, logging.Named(logger, "gateway"))

	dispatcher := search.NewDispatcher(
		search.NewImageAPIClient(cfg.ImageSearch.BaseURL, cfg.ImageSearch.Timeout),
		search.NewLinkSearcher(store),
		logging.Named(logger, "search"))

	workerCfg, err := summons.ConfigFrom(cfg, version)
	if err != nil {
		return nil, err
	}

	return summons.New(workerCfg, summons.Deps{
		Store:   store,
		Gateway: reddit,
		Parser:  commands.NewParser(cfg.Summons.MentionTag, cfg.Summons.KeywordMarker),
		Resolver: distance.NewResolver(store, distance.Thresholds{
			Hamming: cfg.Search.DefaultHammingDistance,
			Annoy:   cfg.Search.DefaultAnnoyDistance,
		}),
		Searcher: dispatcher,
		Composer: reply.NewComposer(reply.NewTemplateStore(), cfg.Summons.OverflowThreshold),
		Posts:    ingest.New(reddit, store, workerCfg.SupportedPostTypes, logging.Named(logger, "ingest")),
		Logger:   logging.Named(logger, "summons"),
	})
}

func init() {
	summonsCmd.Flags().Bool("once", false, "run a single cycle and exit")
	summonsCmd.Flags().Bool("admin", false, "also serve the admin API")
	rootCmd.AddCommand(summonsCmd)
}
