package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repostsleuth/sleuth/internal/config"
	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/storage/sqlite"
)

func TestOpenStoreSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := openStore(ctx, config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "nested", "sleuth.db")})
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &sqlite.Store{}, store)
	require.NoError(t, storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		n, err := uow.Summons().Count(ctx)
		assert.Zero(t, n)
		return err
	}))
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	store, err := openStore(context.Background(), config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestNewHandlerFromDefaults(t *testing.T) {
	ctx := context.Background()
	cfg = config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "sleuth.db")
	logger = nil

	store, err := openStore(ctx, cfg.Database)
	require.NoError(t, err)
	defer store.Close()

	h, err := newHandler(store)
	require.NoError(t, err)
	assert.NotEmpty(t, h.InstanceID())
	assert.False(t, h.IsRunning())
}
