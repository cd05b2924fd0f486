// Package search runs duplicate checks against the image similarity engine
// and the link index and returns a uniform result.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/repostsleuth/sleuth/internal/commands"
	"github.com/repostsleuth/sleuth/internal/distance"
	"github.com/repostsleuth/sleuth/internal/types"
)

var (
	// ErrNoIndex means the similarity engine has no index loaded yet. The
	// summons should be retried later.
	ErrNoIndex = errors.New("no similarity index available")

	// ErrUnsupportedType means the post type has no duplicate check
	ErrUnsupportedType = errors.New("unsupported post type")
)

// ImageQuery is a request to the image similarity engine
type ImageQuery struct {
	Post          *types.Post
	TargetHamming int
	TargetAnnoy   float64
	MemeFilter    bool
	SameSub       bool
	// DateCutoff ignores matches older than this when set
	DateCutoff *time.Duration
}

// LinkQuery is a request to the link index
type LinkQuery struct {
	Target  *Target
	SameSub bool
	// MatchAge ignores matches older than this when set
	MatchAge *time.Duration
	// GetTotal asks for the total number of indexed posts
	GetTotal bool
}

// EngineResult is what an engine reports before the dispatcher normalizes it
type EngineResult struct {
	Hash          string
	Matches       []types.Match
	TotalSearched int
	IndexSize     int
}

// SimilarityEngine finds earlier images close to a post's image
type SimilarityEngine interface {
	SearchImages(ctx context.Context, q ImageQuery) (*EngineResult, error)
}

// LinkEngine finds earlier posts sharing a post's normalized URL
type LinkEngine interface {
	SearchLinks(ctx context.Context, q LinkQuery) (*EngineResult, error)
}

// Dispatcher routes a repost check to the engine for the post's type
type Dispatcher struct {
	images SimilarityEngine
	links  LinkEngine
	logger *zap.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher over the given engines
func NewDispatcher(images SimilarityEngine, links LinkEngine, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{images: images, links: links, logger: logger, now: time.Now}
}

// Dispatch runs the check matching post.PostType. A nil cmd uses the default
// command for the type. Image checks may fail with ErrNoIndex; text, video and
// unsupported posts fail with ErrUnsupportedType.
func (d *Dispatcher) Dispatch(ctx context.Context, post *types.Post, cmd commands.RepostCommand, th distance.Thresholds) (*types.SearchResult, error) {
	if post == nil {
		return nil, fmt.Errorf("dispatch: post is required")
	}
	if cmd == nil {
		cmd = commands.DefaultRepostCommand(post.PostType)
	}

	start := d.now()
	var (
		res *EngineResult
		err error
	)

	switch post.PostType {
	case types.PostTypeImage:
		imgCmd, ok := cmd.(*commands.ImageCommand)
		if !ok {
			return nil, fmt.Errorf("dispatch: image post %s got %T", post.PostID, cmd)
		}
		res, err = d.images.SearchImages(ctx, ImageQuery{
			Post:          post,
			TargetHamming: th.Hamming,
			TargetAnnoy:   th.Annoy,
			MemeFilter:    imgCmd.MemeFilter,
			SameSub:       imgCmd.SameSub,
			DateCutoff:    imgCmd.MatchAge,
		})

	case types.PostTypeLink:
		linkCmd, ok := cmd.(*commands.LinkCommand)
		if !ok {
			return nil, fmt.Errorf("dispatch: link post %s got %T", post.PostID, cmd)
		}
		res, err = d.links.SearchLinks(ctx, LinkQuery{
			Target:   NewTarget(post),
			SameSub:  linkCmd.SameSub,
			MatchAge: linkCmd.MatchAge,
			GetTotal: true,
		})

	case types.PostTypeText, types.PostTypeVideo, types.PostTypeUnsupported:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, post.PostType)

	default:
		return nil, fmt.Errorf("%w: invalid type %q", ErrUnsupportedType, post.PostType)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to search %s post %s: %w", post.PostType, post.PostID, err)
	}

	elapsed := d.now().Sub(start)
	d.logger.Debug("duplicate check finished",
		zap.String("post_id", post.PostID),
		zap.String("post_type", string(post.PostType)),
		zap.Int("matches", len(res.Matches)),
		zap.Duration("elapsed", elapsed))

	return types.NewSearchResult(post, res.Hash, res.Matches, res.TotalSearched, res.IndexSize, elapsed), nil
}
