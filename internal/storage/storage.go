package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/repostsleuth/sleuth/internal/events"
	"github.com/repostsleuth/sleuth/internal/types"
)

// Repositories are thin data-access facades. Lookups that find nothing return
// (nil, nil) rather than an error.

// SummonsRepository provides access to summons records
type SummonsRepository interface {
	// GetUnreplied returns summons with no recorded reply, oldest first.
	// limit <= 0 means no limit.
	GetUnreplied(ctx context.Context, limit int) ([]*types.Summons, error)
	GetByID(ctx context.Context, id int64) (*types.Summons, error)
	Add(ctx context.Context, summons *types.Summons) error
	Update(ctx context.Context, summons *types.Summons) error
	Count(ctx context.Context) (int, error)
}

// LinkFilter narrows a URL-hash lookup
type LinkFilter struct {
	// ExcludePostID drops the post being checked from its own results
	ExcludePostID string
	// Subreddit restricts matches to one community when set
	Subreddit string
	// CreatedBefore keeps only posts created strictly before this time when set
	CreatedBefore time.Time
	// CreatedAfter keeps only posts created at or after this time when set
	CreatedAfter time.Time
	// Limit caps the number of posts returned (0 = no limit)
	Limit int
}

// PostRepository provides access to ingested posts
type PostRepository interface {
	GetByPostID(ctx context.Context, postID string) (*types.Post, error)
	Add(ctx context.Context, post *types.Post) error
	// Update inserts the post or replaces the row with the same post_id
	Update(ctx context.Context, post *types.Post) error
	// FindByURLHash returns posts sharing a normalized URL hash, oldest first
	FindByURLHash(ctx context.Context, hash string, filter LinkFilter) ([]*types.Post, error)
	Count(ctx context.Context) (int, error)
	CountByType(ctx context.Context) (map[types.PostType]int, error)
	Oldest(ctx context.Context) (*types.Post, error)
	// CountReposts counts posts whose URL hash was seen on an earlier post
	CountReposts(ctx context.Context) (int, error)
}

// MonitoredSubRepository provides access to monitored destinations
type MonitoredSubRepository interface {
	// GetBySubreddit looks a sub up by name, case-insensitively
	GetBySubreddit(ctx context.Context, name string) (*types.MonitoredSub, error)
	GetAll(ctx context.Context) ([]*types.MonitoredSub, error)
	Add(ctx context.Context, sub *types.MonitoredSub) error
	Update(ctx context.Context, sub *types.MonitoredSub) error
}

// RepostWatchRepository provides access to repost watches
type RepostWatchRepository interface {
	Add(ctx context.Context, watch *types.RepostWatch) error
	GetByID(ctx context.Context, id int64) (*types.RepostWatch, error)
	GetAllByPostID(ctx context.Context, postID string) ([]*types.RepostWatch, error)
	FindExisting(ctx context.Context, user, postID string) (*types.RepostWatch, error)
	Remove(ctx context.Context, watch *types.RepostWatch) error
}

// MemeTemplateRepository provides access to meme templates
type MemeTemplateRepository interface {
	Add(ctx context.Context, template *types.MemeTemplate) error
	GetAll(ctx context.Context) ([]*types.MemeTemplate, error)
}

// EventRepository stores pipeline events
type EventRepository interface {
	Add(ctx context.Context, event *events.Event) error
	GetBySummons(ctx context.Context, summonsID int64) ([]*events.Event, error)
	Query(ctx context.Context, filter events.EventFilter) ([]*events.Event, error)
	// CleanupByAge deletes regular events older than retentionDays and
	// error/critical events older than criticalRetentionDays, batchSize rows at a time
	CleanupByAge(ctx context.Context, retentionDays, criticalRetentionDays, batchSize int) (int, error)
	Count(ctx context.Context) (int, error)
}

// InstanceRepository tracks summons worker processes
type InstanceRepository interface {
	Register(ctx context.Context, instance *types.WorkerInstance) error
	Heartbeat(ctx context.Context, instanceID string) error
	MarkStopped(ctx context.Context, instanceID string) error
	GetActive(ctx context.Context) ([]*types.WorkerInstance, error)
	// CleanupStale marks running instances without a recent heartbeat as stopped
	CleanupStale(ctx context.Context, threshold time.Duration) (int, error)
	// DeleteOldStopped removes stopped instances older than olderThan, keeping the newest keep
	DeleteOldStopped(ctx context.Context, olderThan time.Duration, keep int) (int, error)
}

// UnitOfWork is one transactional scope over every repository. Nothing is
// visible to other scopes until Commit. Close must always be called; it rolls
// back when Commit was not reached and is safe to call more than once.
type UnitOfWork interface {
	Summons() SummonsRepository
	Posts() PostRepository
	MonitoredSubs() MonitoredSubRepository
	RepostWatches() RepostWatchRepository
	MemeTemplates() MemeTemplateRepository
	Events() EventRepository
	Instances() InstanceRepository

	Commit() error
	Rollback() error
	Close() error
}

// Manager hands out units of work
type Manager interface {
	Start(ctx context.Context) (UnitOfWork, error)
	Close() error
}

// WithUnitOfWork runs fn inside a fresh scope and commits when fn succeeds.
// The scope is released on every path.
func WithUnitOfWork(ctx context.Context, m Manager, fn func(uow UnitOfWork) error) error {
	uow, err := m.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start unit of work: %w", err)
	}
	defer func() { _ = uow.Close() }()

	if err := fn(uow); err != nil {
		return err
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit unit of work: %w", err)
	}
	return nil
}

// ReadOnly runs fn inside a fresh scope that is always rolled back
func ReadOnly(ctx context.Context, m Manager, fn func(uow UnitOfWork) error) error {
	uow, err := m.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start unit of work: %w", err)
	}
	defer func() { _ = uow.Close() }()

	return fn(uow)
}
