package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/repostsleuth/sleuth/internal/storage/migrations"
	"github.com/repostsleuth/sleuth/internal/storage/postgres"
	"github.com/repostsleuth/sleuth/internal/storage/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and report the schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		rollback, _ := cmd.Flags().GetBool("rollback")
		ctx := context.Background()

		// Opening a store applies every pending migration.
		store, err := openStore(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = store.Close() }()

		var current, latest int
		switch s := store.(type) {
		case *sqlite.Store:
			if rollback {
				if err := sqlite.Migrations().RollbackSQLite(ctx, s.DB()); err != nil {
					return err
				}
				fmt.Printf("%s\n", color.YellowString("Rolled back the latest migration"))
			}
			latest = sqlite.Migrations().Latest()
			current, err = migrations.SQLiteVersion(ctx, s.DB())
		case *postgres.Store:
			if rollback {
				return fmt.Errorf("rollback is only supported for sqlite")
			}
			latest = postgres.Migrations().Latest()
			current, err = migrations.PostgresVersion(ctx, s.Pool())
		default:
			return fmt.Errorf("unsupported store %T", store)
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Schema version %d (latest %d, driver %s)\n", green("✓"), current, latest, cfg.Database.Driver)
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("rollback", false, "roll back the latest migration (sqlite only)")
	rootCmd.AddCommand(migrateCmd)
}
