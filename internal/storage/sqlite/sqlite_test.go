package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/repostsleuth/sleuth/internal/events"
	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/types"
)

func setupTestDB(t *testing.T) *Store {
	t.Helper()

	store, err := New(context.Background(), filepath.Join(t.TempDir(), "sleuth.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// mustWrite runs fn in a committed unit of work and fails the test on error
func mustWrite(t *testing.T, store *Store, fn func(uow storage.UnitOfWork) error) {
	t.Helper()
	if err := storage.WithUnitOfWork(context.Background(), store, fn); err != nil {
		t.Fatalf("unit of work failed: %v", err)
	}
}

func newSummons(postID, commentID string, receivedAt time.Time) *types.Summons {
	return &types.Summons{
		PostID:            postID,
		CommentID:         commentID,
		Requestor:         "someuser",
		CommentBody:       "u/repostsleuthbot",
		Subreddit:         "funny",
		SummonsReceivedAt: receivedAt,
	}
}

func TestNewAppliesMigrations(t *testing.T) {
	store := setupTestDB(t)

	var version int
	if err := store.DB().QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if want := Migrations().Latest(); version != want {
		t.Errorf("schema version = %d, want %d", version, want)
	}
}

func TestUnitOfWorkRollbackDiscardsWrites(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	uow, err := store.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := uow.Summons().Add(ctx, newSummons("p1", "c1", time.Now())); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := uow.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Close is idempotent
	if err := uow.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	err = storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		n, err := uow.Summons().Count(ctx)
		if err != nil {
			return err
		}
		if n != 0 {
			t.Errorf("expected rolled back summons to be discarded, found %d", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly failed: %v", err)
	}
}

func TestUnitOfWorkCommitTwiceFails(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	uow, err := store.Start(ctx)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = uow.Close() }()

	if err := uow.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := uow.Commit(); err == nil {
		t.Error("expected second Commit to fail")
	}
}

func TestGetUnrepliedOrdering(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		// Inserted newest first to prove ordering is by received time
		for i, id := range []string{"c3", "c2", "c1"} {
			s := newSummons("p1", id, base.Add(time.Duration(2-i)*time.Minute))
			if err := uow.Summons().Add(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})

	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		pending, err := uow.Summons().GetUnreplied(ctx, 0)
		if err != nil {
			return err
		}
		if len(pending) != 3 {
			t.Fatalf("expected 3 unreplied, got %d", len(pending))
		}
		for i, want := range []string{"c1", "c2", "c3"} {
			if pending[i].CommentID != want {
				t.Errorf("pending[%d] = %s, want %s", i, pending[i].CommentID, want)
			}
		}

		// Reply to the oldest one
		if err := pending[0].MarkReplied("I found nothing", "reply1", base.Add(time.Hour)); err != nil {
			return err
		}
		return uow.Summons().Update(ctx, pending[0])
	})

	err := storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		pending, err := uow.Summons().GetUnreplied(ctx, 1)
		if err != nil {
			return err
		}
		if len(pending) != 1 || pending[0].CommentID != "c2" {
			t.Errorf("expected only c2 with limit 1, got %+v", pending)
		}

		replied, err := uow.Summons().GetByID(ctx, 3)
		if err != nil {
			return err
		}
		if replied == nil || !replied.IsReplied() {
			t.Fatalf("expected summons 3 to be replied, got %+v", replied)
		}
		if replied.CommentReply != "I found nothing" || replied.CommentReplyID != "reply1" {
			t.Errorf("reply not persisted: %+v", replied)
		}
		if !replied.SummonsRepliedAt.Equal(base.Add(time.Hour)) {
			t.Errorf("replied at = %v, want %v", replied.SummonsRepliedAt, base.Add(time.Hour))
		}

		missing, err := uow.Summons().GetByID(ctx, 999)
		if err != nil {
			return err
		}
		if missing != nil {
			t.Errorf("expected nil for missing summons, got %+v", missing)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly failed: %v", err)
	}
}

func TestSummonsReplyColumnsMustBeSetTogether(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		return uow.Summons().Add(ctx, newSummons("p1", "c1", time.Now()))
	})

	// Bypass model validation to prove the schema enforces the pairing
	_, err := store.DB().Exec(`UPDATE summons SET comment_reply = 'half' WHERE comment_id = 'c1'`)
	if err == nil {
		t.Error("expected CHECK constraint to reject a reply without a timestamp")
	}
}

func TestSummonsDuplicateCommentRejected(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		return uow.Summons().Add(ctx, newSummons("p1", "c1", time.Now()))
	})

	err := storage.WithUnitOfWork(ctx, store, func(uow storage.UnitOfWork) error {
		return uow.Summons().Add(ctx, newSummons("p2", "c1", time.Now()))
	})
	if err == nil {
		t.Error("expected duplicate comment_id to be rejected")
	}
}

func TestPostUpsertAndLookup(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	created := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	post := &types.Post{
		PostID:     "abc123",
		PostType:   types.PostTypeLink,
		Subreddit:  "news",
		URL:        "https://example.com/story",
		URLHash:    "hash1",
		Title:      "A story",
		CreatedAt:  created,
		IngestedAt: created.Add(time.Minute),
	}
	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		return uow.Posts().Update(ctx, post)
	})
	if post.ID == 0 {
		t.Fatal("expected upsert to set the post ID")
	}
	firstID := post.ID

	post.Title = "A better title"
	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		return uow.Posts().Update(ctx, post)
	})
	if post.ID != firstID {
		t.Errorf("upsert changed ID from %d to %d", firstID, post.ID)
	}

	err := storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		got, err := uow.Posts().GetByPostID(ctx, "abc123")
		if err != nil {
			return err
		}
		if got == nil || got.Title != "A better title" {
			t.Errorf("expected updated title, got %+v", got)
		}
		if got != nil && got.PostType != types.PostTypeLink {
			t.Errorf("PostType = %s, want link", got.PostType)
		}

		n, err := uow.Posts().Count(ctx)
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("Count = %d, want 1", n)
		}

		missing, err := uow.Posts().GetByPostID(ctx, "nope")
		if err != nil {
			return err
		}
		if missing != nil {
			t.Errorf("expected nil for unknown post, got %+v", missing)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly failed: %v", err)
	}
}

func TestFindByURLHashAndStats(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	posts := []*types.Post{
		{PostID: "p3", PostType: types.PostTypeLink, Subreddit: "news", URLHash: "h", CreatedAt: base.AddDate(0, 0, 20)},
		{PostID: "p1", PostType: types.PostTypeLink, Subreddit: "news", URLHash: "h", CreatedAt: base},
		{PostID: "p2", PostType: types.PostTypeLink, Subreddit: "pics", URLHash: "h", CreatedAt: base.AddDate(0, 0, 10)},
		{PostID: "p4", PostType: types.PostTypeImage, Subreddit: "pics", URLHash: "other", CreatedAt: base.AddDate(0, 0, 5)},
	}
	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		for _, p := range posts {
			p.IngestedAt = base
			if err := uow.Posts().Add(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})

	err := storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		all, err := uow.Posts().FindByURLHash(ctx, "h", storage.LinkFilter{ExcludePostID: "p3"})
		if err != nil {
			return err
		}
		if len(all) != 2 || all[0].PostID != "p1" || all[1].PostID != "p2" {
			t.Errorf("expected [p1 p2] oldest first, got %v", postIDs(all))
		}

		sameSub, err := uow.Posts().FindByURLHash(ctx, "h", storage.LinkFilter{Subreddit: "NEWS"})
		if err != nil {
			return err
		}
		if len(sameSub) != 2 {
			t.Errorf("expected 2 posts in news, got %v", postIDs(sameSub))
		}

		before, err := uow.Posts().FindByURLHash(ctx, "h", storage.LinkFilter{
			CreatedBefore: base.AddDate(0, 0, 20),
			CreatedAfter:  base.AddDate(0, 0, 1),
		})
		if err != nil {
			return err
		}
		if len(before) != 1 || before[0].PostID != "p2" {
			t.Errorf("expected [p2] inside window, got %v", postIDs(before))
		}

		byType, err := uow.Posts().CountByType(ctx)
		if err != nil {
			return err
		}
		if byType[types.PostTypeLink] != 3 || byType[types.PostTypeImage] != 1 {
			t.Errorf("unexpected counts by type: %v", byType)
		}

		oldest, err := uow.Posts().Oldest(ctx)
		if err != nil {
			return err
		}
		if oldest == nil || oldest.PostID != "p1" {
			t.Errorf("expected oldest p1, got %+v", oldest)
		}

		reposts, err := uow.Posts().CountReposts(ctx)
		if err != nil {
			return err
		}
		if reposts != 2 {
			t.Errorf("CountReposts = %d, want 2", reposts)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly failed: %v", err)
	}
}

func postIDs(posts []*types.Post) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.PostID)
	}
	return ids
}

func TestMonitoredSubCaseInsensitiveLookup(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	sub := types.DefaultMonitoredSub("Funny")
	sub.TargetHamming = 5
	sub.TargetAnnoy = 0.2
	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		return uow.MonitoredSubs().Add(ctx, sub)
	})

	err := storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		got, err := uow.MonitoredSubs().GetBySubreddit(ctx, "funny")
		if err != nil {
			return err
		}
		if got == nil {
			t.Fatal("expected case-insensitive match")
		}
		if got.TargetHamming != 5 || got.TargetAnnoy != 0.2 {
			t.Errorf("thresholds not persisted: %+v", got)
		}
		if !got.RepostOnly || got.Active {
			t.Errorf("flags not persisted: %+v", got)
		}

		none, err := uow.MonitoredSubs().GetBySubreddit(ctx, "pics")
		if err != nil {
			return err
		}
		if none != nil {
			t.Errorf("expected nil for unmonitored sub, got %+v", none)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly failed: %v", err)
	}

	sub.Active = true
	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		return uow.MonitoredSubs().Update(ctx, sub)
	})

	err = storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		all, err := uow.MonitoredSubs().GetAll(ctx)
		if err != nil {
			return err
		}
		if len(all) != 1 || !all[0].Active {
			t.Errorf("expected one active sub, got %+v", all)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly failed: %v", err)
	}
}

func TestRepostWatchLifecycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	watch := &types.RepostWatch{PostID: "p1", User: "alice", Enabled: true}
	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		return uow.RepostWatches().Add(ctx, watch)
	})
	if watch.ResponseType != types.WatchResponseMessage {
		t.Errorf("ResponseType default = %s, want message", watch.ResponseType)
	}

	err := storage.WithUnitOfWork(ctx, store, func(uow storage.UnitOfWork) error {
		return uow.RepostWatches().Add(ctx, &types.RepostWatch{PostID: "p1", User: "alice"})
	})
	if err == nil {
		t.Error("expected duplicate watch to be rejected")
	}

	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		existing, err := uow.RepostWatches().FindExisting(ctx, "alice", "p1")
		if err != nil {
			return err
		}
		if existing == nil || existing.ID != watch.ID {
			t.Fatalf("expected to find watch %d, got %+v", watch.ID, existing)
		}
		all, err := uow.RepostWatches().GetAllByPostID(ctx, "p1")
		if err != nil {
			return err
		}
		if len(all) != 1 {
			t.Errorf("expected 1 watch, got %d", len(all))
		}
		return uow.RepostWatches().Remove(ctx, existing)
	})

	err = storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		got, err := uow.RepostWatches().GetByID(ctx, watch.ID)
		if err != nil {
			return err
		}
		if got != nil {
			t.Errorf("expected watch to be removed, got %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly failed: %v", err)
	}
}

func TestMemeTemplates(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		return uow.MemeTemplates().Add(ctx, &types.MemeTemplate{Name: "drake", Hash: "ff00"})
	})

	err := storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		all, err := uow.MemeTemplates().GetAll(ctx)
		if err != nil {
			return err
		}
		if len(all) != 1 || all[0].Name != "drake" || all[0].CreatedAt.IsZero() {
			t.Errorf("unexpected templates: %+v", all)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly failed: %v", err)
	}
}

func TestEventStorageAndCleanup(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	add := func(severity events.EventSeverity, age time.Duration) {
		t.Helper()
		event := events.New(events.EventTypeSummonsHandled, severity, 7, "worker-1", "test", map[string]interface{}{"k": "v"})
		event.Timestamp = now.Add(-age)
		mustWrite(t, store, func(uow storage.UnitOfWork) error {
			return uow.Events().Add(ctx, event)
		})
	}

	day := 24 * time.Hour
	add(events.SeverityInfo, 1*day)     // kept
	add(events.SeverityInfo, 40*day)    // deleted
	add(events.SeverityWarning, 35*day) // deleted
	add(events.SeverityError, 40*day)   // kept (critical retention)
	add(events.SeverityCritical, 100*day)

	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		got, err := uow.Events().GetBySummons(ctx, 7)
		if err != nil {
			return err
		}
		if len(got) != 5 {
			t.Fatalf("expected 5 events, got %d", len(got))
		}
		if got[0].Data["k"] != "v" {
			t.Errorf("event data not round-tripped: %v", got[0].Data)
		}

		warnings, err := uow.Events().Query(ctx, events.EventFilter{Severity: events.SeverityWarning})
		if err != nil {
			return err
		}
		if len(warnings) != 1 {
			t.Errorf("expected 1 warning, got %d", len(warnings))
		}

		// Batch size 1 forces several delete rounds
		deleted, err := uow.Events().CleanupByAge(ctx, 30, 90, 1)
		if err != nil {
			return err
		}
		if deleted != 3 {
			t.Errorf("CleanupByAge deleted %d, want 3", deleted)
		}

		remaining, err := uow.Events().Count(ctx)
		if err != nil {
			return err
		}
		if remaining != 2 {
			t.Errorf("remaining = %d, want 2", remaining)
		}
		return nil
	})

	err := storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		_, err := uow.Events().CleanupByAge(ctx, -1, 90, 10)
		if err == nil {
			t.Error("expected negative retention to be rejected")
		}
		_, err = uow.Events().CleanupByAge(ctx, 30, 90, 0)
		if err == nil {
			t.Error("expected zero batch size to be rejected")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly failed: %v", err)
	}
}

func TestWorkerInstanceLifecycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	register := func(id string, status types.WorkerStatus, heartbeat time.Time) {
		t.Helper()
		mustWrite(t, store, func(uow storage.UnitOfWork) error {
			return uow.Instances().Register(ctx, &types.WorkerInstance{
				InstanceID:    id,
				Hostname:      "test-host",
				PID:           12345,
				Status:        status,
				StartedAt:     heartbeat,
				LastHeartbeat: heartbeat,
				Version:       "0.1.0",
			})
		})
	}

	register("fresh", types.WorkerStatusRunning, now)
	register("stale", types.WorkerStatusRunning, now.Add(-time.Hour))
	register("old-1", types.WorkerStatusStopped, now.Add(-72*time.Hour))
	register("old-2", types.WorkerStatusStopped, now.Add(-48*time.Hour))

	mustWrite(t, store, func(uow storage.UnitOfWork) error {
		if err := uow.Instances().Heartbeat(ctx, "fresh"); err != nil {
			return err
		}
		if err := uow.Instances().Heartbeat(ctx, "missing"); err == nil {
			t.Error("expected heartbeat for unknown instance to fail")
		}

		marked, err := uow.Instances().CleanupStale(ctx, 5*time.Minute)
		if err != nil {
			return err
		}
		if marked != 1 {
			t.Errorf("CleanupStale marked %d, want 1", marked)
		}

		active, err := uow.Instances().GetActive(ctx)
		if err != nil {
			return err
		}
		if len(active) != 1 || active[0].InstanceID != "fresh" {
			t.Errorf("expected only fresh active, got %+v", active)
		}

		// stale, old-2 and old-1 are stopped; keep the newest one (stale)
		deleted, err := uow.Instances().DeleteOldStopped(ctx, 24*time.Hour, 1)
		if err != nil {
			return err
		}
		if deleted != 2 {
			t.Errorf("DeleteOldStopped deleted %d, want 2", deleted)
		}

		return uow.Instances().MarkStopped(ctx, "fresh")
	})

	err := storage.ReadOnly(ctx, store, func(uow storage.UnitOfWork) error {
		active, err := uow.Instances().GetActive(ctx)
		if err != nil {
			return err
		}
		if len(active) != 0 {
			t.Errorf("expected no active instances, got %d", len(active))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ReadOnly failed: %v", err)
	}
}
