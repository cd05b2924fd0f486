package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/storage/sqlite"
	"github.com/repostsleuth/sleuth/internal/types"
)

func seedLinks(t *testing.T) (*sqlite.Store, time.Time) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "sleuth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	hash, err := HashURL("https://example.com/story")
	require.NoError(t, err)
	other, err := HashURL("https://example.com/other")
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	posts := []*types.Post{
		{PostID: "old", PostType: types.PostTypeLink, Subreddit: "news", URLHash: hash, CreatedAt: now.Add(-100 * 24 * time.Hour)},
		{PostID: "mid", PostType: types.PostTypeLink, Subreddit: "worldnews", URLHash: hash, CreatedAt: now.Add(-10 * 24 * time.Hour)},
		{PostID: "unrelated", PostType: types.PostTypeLink, Subreddit: "news", URLHash: other, CreatedAt: now.Add(-5 * 24 * time.Hour)},
		{PostID: "checked", PostType: types.PostTypeLink, Subreddit: "News", URL: "https://www.example.com/story/", URLHash: hash, CreatedAt: now},
		{PostID: "later", PostType: types.PostTypeLink, Subreddit: "news", URLHash: hash, CreatedAt: now.Add(time.Hour)},
	}
	require.NoError(t, storage.WithUnitOfWork(ctx, store, func(uow storage.UnitOfWork) error {
		for _, p := range posts {
			if err := uow.Posts().Add(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}))
	return store, now
}

func checkedTarget(t *testing.T, store *sqlite.Store) *Target {
	t.Helper()
	var post *types.Post
	require.NoError(t, storage.ReadOnly(context.Background(), store, func(uow storage.UnitOfWork) error {
		var err error
		post, err = uow.Posts().GetByPostID(context.Background(), "checked")
		return err
	}))
	require.NotNil(t, post)
	return NewTarget(post)
}

func postIDs(matches []types.Match) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Post.PostID)
	}
	return ids
}

func TestSearchLinks(t *testing.T) {
	store, now := seedLinks(t)
	s := NewLinkSearcher(store)
	s.now = func() time.Time { return now }
	target := checkedTarget(t, store)
	ctx := context.Background()

	res, err := s.SearchLinks(ctx, LinkQuery{Target: target, GetTotal: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "mid"}, postIDs(res.Matches))
	// Totals cover the whole corpus, including the post with another URL.
	assert.Equal(t, 5, res.TotalSearched)
	assert.Equal(t, 5, res.IndexSize)

	res, err = s.SearchLinks(ctx, LinkQuery{Target: target, SameSub: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, postIDs(res.Matches))
	assert.Zero(t, res.TotalSearched)

	age := 30 * 24 * time.Hour
	res, err = s.SearchLinks(ctx, LinkQuery{Target: target, MatchAge: &age})
	require.NoError(t, err)
	assert.Equal(t, []string{"mid"}, postIDs(res.Matches))
}

func TestSearchLinksNeverSeen(t *testing.T) {
	store, now := seedLinks(t)
	s := NewLinkSearcher(store)

	fresh := NewTarget(&types.Post{PostID: "fresh", PostType: types.PostTypeLink, URL: "https://brand-new.example/page", CreatedAt: now})
	res, err := s.SearchLinks(context.Background(), LinkQuery{Target: fresh, GetTotal: true})
	require.NoError(t, err)
	assert.Empty(t, res.Matches)
	assert.Equal(t, 5, res.TotalSearched)
}

func TestSearchLinksBadURL(t *testing.T) {
	store, _ := seedLinks(t)
	s := NewLinkSearcher(store)

	_, err := s.SearchLinks(context.Background(), LinkQuery{Target: NewTarget(&types.Post{PostID: "bad"})})
	assert.Error(t, err)
}
