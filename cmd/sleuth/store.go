package main

import (
	"context"
	"fmt"

	"github.com/repostsleuth/sleuth/internal/config"
	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/storage/postgres"
	"github.com/repostsleuth/sleuth/internal/storage/sqlite"
)

// openStore opens the configured backend. Both backends apply pending
// migrations on open.
func openStore(ctx context.Context, db config.DatabaseConfig) (storage.Manager, error) {
	switch db.Driver {
	case "sqlite":
		store, err := sqlite.New(ctx, db.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		pgCfg := postgres.DefaultConfig(db.DSN)
		if db.MaxConns > 0 {
			pgCfg.MaxConns = db.MaxConns
		}
		store, err := postgres.New(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", db.Driver)
}
