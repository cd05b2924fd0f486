package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/repostsleuth/sleuth/internal/storage"
)

// Store implements storage.Manager using PostgreSQL
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Manager = (*Store)(nil)

// Config holds PostgreSQL connection configuration
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	HealthCheck     time.Duration
}

// DefaultConfig returns a config with sensible pool defaults for dsn
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: 1 * time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		HealthCheck:     1 * time.Minute,
	}
}

// New creates a new PostgreSQL storage backend with connection pooling
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil || cfg.DSN == "" {
		return nil, errors.New("postgres DSN is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := Migrations().ApplyPostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Start opens a transaction-backed unit of work
func (s *Store) Start(ctx context.Context) (storage.UnitOfWork, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return newUnitOfWork(ctx, tx), nil
}

// Pool exposes the connection pool for migration tooling
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type unitOfWork struct {
	// ctx is the context the transaction was started with
	ctx  context.Context
	tx   pgx.Tx
	done bool

	summons   *summonsRepo
	posts     *postRepo
	subs      *monitoredSubRepo
	watches   *repostWatchRepo
	memes     *memeTemplateRepo
	events    *eventRepo
	instances *instanceRepo
}

var _ storage.UnitOfWork = (*unitOfWork)(nil)

func newUnitOfWork(ctx context.Context, tx pgx.Tx) *unitOfWork {
	return &unitOfWork{
		ctx:       ctx,
		tx:        tx,
		summons:   &summonsRepo{tx: tx},
		posts:     &postRepo{tx: tx},
		subs:      &monitoredSubRepo{tx: tx},
		watches:   &repostWatchRepo{tx: tx},
		memes:     &memeTemplateRepo{tx: tx},
		events:    &eventRepo{tx: tx},
		instances: &instanceRepo{tx: tx},
	}
}

func (u *unitOfWork) Summons() storage.SummonsRepository { return u.summons }
func (u *unitOfWork) Posts() storage.PostRepository { return u.posts }
func (u *unitOfWork) MonitoredSubs() storage.MonitoredSubRepository { return u.subs }
func (u *unitOfWork) RepostWatches() storage.RepostWatchRepository { return u.watches }
func (u *unitOfWork) MemeTemplates() storage.MemeTemplateRepository { return u.memes }
func (u *unitOfWork) Events() storage.EventRepository { return u.events }
func (u *unitOfWork) Instances() storage.InstanceRepository { return u.instances }

func (u *unitOfWork) Commit() error {
	if u.done {
		return errors.New("unit of work already finished")
	}
	u.done = true
	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	// Use a fresh context so a cancelled caller still releases the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) Close() error {
	return u.Rollback()
}
