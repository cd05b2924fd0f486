package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/repostsleuth/sleuth/internal/storage"
)

// Store implements storage.Manager on a SQLite file
type Store struct {
	db *sql.DB
}

var _ storage.Manager = (*Store)(nil)

// New opens (creating if needed) the database at path and applies pending
// schema migrations.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// WAL mode for concurrent readers; writes go through a single connection
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := Migrations().ApplySQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Start opens a transaction-backed unit of work
func (s *Store) Start(ctx context.Context) (storage.UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return newUnitOfWork(tx), nil
}

// DB exposes the underlying handle for migration tooling
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// unitOfWork scopes every repository to one *sql.Tx
type unitOfWork struct {
	tx   *sql.Tx
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

func newUnitOfWork(tx *sql.Tx) *unitOfWork {
	return &unitOfWork{
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
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func (u *unitOfWork) Close() error {
	return u.Rollback()
}
