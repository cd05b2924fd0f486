package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/repostsleuth/sleuth/internal/events"
	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/types"
)

// setupTestStorage connects to SLEUTH_TEST_PG_DSN and truncates every table
func setupTestStorage(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("SLEUTH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping PostgreSQL test (SLEUTH_TEST_PG_DSN not set)")
	}

	store, err := New(ctx, DefaultConfig(dsn))
	if err != nil {
		t.Skipf("Skipping PostgreSQL test (database not available): %v", err)
	}

	_, err = store.pool.Exec(ctx, `
		TRUNCATE TABLE summons, posts, monitored_subs, repost_watches, meme_templates,
			summons_events, worker_instances RESTART IDENTITY CASCADE
	`)
	if err != nil {
		store.Close()
		t.Fatalf("Failed to clean up tables: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSummonsRoundTrip(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	received := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	s := &types.Summons{PostID: "p1", CommentID: "c1", Requestor: "alice", SummonsReceivedAt: received}
	err := storage.WithUnitOfWork(ctx, store, func(uow storage.UnitOfWork) error {
		return uow.Summons().Add(ctx, s)
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	err = storage.WithUnitOfWork(ctx, store, func(uow storage.UnitOfWork) error {
		pending, err := uow.Summons().GetUnreplied(ctx, 10)
		if err != nil {
			return err
		}
		if len(pending) != 1 {
			t.Fatalf("expected 1 unreplied summons, got %d", len(pending))
		}
		if err := pending[0].MarkReplied("body", "r1", received.Add(time.Minute)); err != nil {
			return err
		}
		return uow.Summons().Update(ctx, pending[0])
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	err = storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		got, err := uow.Summons().GetByID(ctx, s.ID)
		if err != nil {
			return err
		}
		if got == nil || got.CommentReply != "body" || got.SummonsRepliedAt == nil {
			t.Errorf("reply not persisted: %+v", got)
		}
		pending, err := uow.Summons().GetUnreplied(ctx, 0)
		if err != nil {
			return err
		}
		if len(pending) != 0 {
			t.Errorf("expected no unreplied summons, got %d", len(pending))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly failed: %v", err)
	}
}

func TestPostsAndSubs(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	err := storage.WithUnitOfWork(ctx, store, func(uow storage.UnitOfWork) error {
		for i, id := range []string{"p1", "p2"} {
			p := &types.Post{
				PostID:     id,
				PostType:   types.PostTypeLink,
				Subreddit:  "news",
				URLHash:    "h",
				CreatedAt:  base.AddDate(0, 0, i),
				IngestedAt: base,
			}
			if err := uow.Posts().Update(ctx, p); err != nil {
				return err
			}
		}
		return uow.MonitoredSubs().Add(ctx, types.DefaultMonitoredSub("News"))
	})
	if err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	err = storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		matches, err := uow.Posts().FindByURLHash(ctx, "h", storage.LinkFilter{ExcludePostID: "p2", Subreddit: "NEWS"})
		if err != nil {
			return err
		}
		if len(matches) != 1 || matches[0].PostID != "p1" {
			t.Errorf("expected [p1], got %d posts", len(matches))
		}

		reposts, err := uow.Posts().CountReposts(ctx)
		if err != nil {
			return err
		}
		if reposts != 1 {
			t.Errorf("CountReposts = %d, want 1", reposts)
		}

		sub, err := uow.MonitoredSubs().GetBySubreddit(ctx, "news")
		if err != nil {
			return err
		}
		if sub == nil {
			t.Error("expected case-insensitive monitored sub lookup")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly failed: %v", err)
	}
}

func TestEventCleanup(t *testing.T) {
	store := setupTestStorage(t)
	ctx := context.Background()

	err := storage.WithUnitOfWork(ctx, store, func(uow storage.UnitOfWork) error {
		old := events.New(events.EventTypeSummonsHandled, events.SeverityInfo, 1, "w", "old", nil)
		old.Timestamp = time.Now().AddDate(0, 0, -40)
		if err := uow.Events().Add(ctx, old); err != nil {
			return err
		}
		fresh := events.New(events.EventTypeSummonsHandled, events.SeverityError, 1, "w", "fresh", map[string]interface{}{"k": "v"})
		if err := uow.Events().Add(ctx, fresh); err != nil {
			return err
		}

		deleted, err := uow.Events().CleanupByAge(ctx, 30, 90, 10)
		if err != nil {
			return err
		}
		if deleted != 1 {
			t.Errorf("deleted = %d, want 1", deleted)
		}

		remaining, err := uow.Events().GetBySummons(ctx, 1)
		if err != nil {
			return err
		}
		if len(remaining) != 1 || remaining[0].Data["k"] != "v" {
			t.Errorf("unexpected remaining events: %+v", remaining)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
}
