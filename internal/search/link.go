package search

import (
	"context"
	"fmt"
	"time"

	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/types"
)

// LinkSearcher answers link checks from the post table
type LinkSearcher struct {
	store storage.Manager
	now   func() time.Time
}

// NewLinkSearcher creates a link searcher backed by store
func NewLinkSearcher(store storage.Manager) *LinkSearcher {
	return &LinkSearcher{store: store, now: time.Now}
}

// SearchLinks returns the earlier posts that share the target's URL hash
func (s *LinkSearcher) SearchLinks(ctx context.Context, q LinkQuery) (*EngineResult, error) {
	if q.Target == nil || q.Target.Post == nil {
		return nil, fmt.Errorf("link search: target post is required")
	}
	post := q.Target.Post

	hash, err := q.Target.URLHash()
	if err != nil {
		return nil, fmt.Errorf("failed to hash url of %s: %w", post.PostID, err)
	}

	filter := storage.LinkFilter{ExcludePostID: post.PostID}
	if !post.CreatedAt.IsZero() {
		filter.CreatedBefore = post.CreatedAt
	}
	if q.SameSub {
		filter.Subreddit = post.Subreddit
	}
	if q.MatchAge != nil {
		filter.CreatedAfter = s.now().Add(-*q.MatchAge)
	}

	result := &EngineResult{Hash: hash}
	err = storage.ReadOnly(ctx, s.store, func(uow storage.UnitOfWork) error {
		posts, err := uow.Posts().FindByURLHash(ctx, hash, filter)
		if err != nil {
			return err
		}
		for _, p := range posts {
			result.Matches = append(result.Matches, types.Match{Post: p, MatchPercent: 100})
		}

		if q.GetTotal {
			total, err := uow.Posts().Count(ctx)
			if err != nil {
				return err
			}
			result.TotalSearched = total
			result.IndexSize = total
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search links for %s: %w", post.PostID, err)
	}
	return result, nil
}
