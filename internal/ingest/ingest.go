// Package ingest saves posts the bot was summoned on but never indexed
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/repostsleuth/sleuth/internal/gateway"
	"github.com/repostsleuth/sleuth/internal/search"
	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/types"
)

// ErrIngestFailed means the post could not be fetched or saved, or that a
// freshly ingested post is of a type the bot does not check
var ErrIngestFailed = errors.New("ingest failed")

const maxTitleLen = 500

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".bmp": true,
}

var imageHosts = map[string]bool{
	"i.redd.it": true, "i.imgur.com": true, "imgur.com": true,
}

var videoHosts = map[string]bool{
	"v.redd.it": true, "youtube.com": true, "youtu.be": true, "gfycat.com": true,
}

// Classify assigns a post type to raw platform content
func Classify(raw *gateway.RawContent) types.PostType {
	if raw == nil {
		return types.PostTypeUnsupported
	}
	if raw.IsSelf {
		return types.PostTypeText
	}
	if raw.IsVideo || strings.HasSuffix(raw.PostHint, ":video") {
		return types.PostTypeVideo
	}
	if raw.PostHint == "image" {
		return types.PostTypeImage
	}

	domain := strings.TrimPrefix(strings.ToLower(raw.Domain), "www.")
	if imageHosts[domain] || imageExtensions[strings.ToLower(path.Ext(stripQuery(raw.URL)))] {
		return types.PostTypeImage
	}
	if videoHosts[domain] {
		return types.PostTypeVideo
	}
	if raw.PostHint == "link" || raw.URL != "" {
		return types.PostTypeLink
	}
	return types.PostTypeUnsupported
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// Ingestor fetches missing posts from the gateway and stores them
type Ingestor struct {
	gateway   gateway.Gateway
	store     storage.Manager
	supported map[types.PostType]bool
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an ingestor. GetOrIngest rejects freshly ingested posts whose
// type is not in supported; an empty list accepts every type.
func New(gw gateway.Gateway, store storage.Manager, supported []types.PostType, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	var set map[types.PostType]bool
	if len(supported) > 0 {
		set = make(map[types.PostType]bool, len(supported))
		for _, pt := range supported {
			set[pt] = true
		}
	}
	return &Ingestor{gateway: gw, store: store, supported: set, logger: logger, now: time.Now}
}

// GetOrIngest returns the stored post, ingesting it first when it is unknown.
// Stored posts come back whatever their type; a newly ingested post of an
// unsupported type is saved and reported as ErrIngestFailed.
func (i *Ingestor) GetOrIngest(ctx context.Context, postID string) (*types.Post, error) {
	var post *types.Post
	err := storage.ReadOnly(ctx, i.store, func(uow storage.UnitOfWork) error {
		var err error
		post, err = uow.Posts().GetByPostID(ctx, postID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load post %s: %w", postID, err)
	}
	if post != nil {
		return post, nil
	}

	post, err = i.Ingest(ctx, postID)
	if err != nil {
		return nil, err
	}
	if i.supported != nil && !i.supported[post.PostType] {
		return nil, fmt.Errorf("%w: %s is an unsupported %s post", ErrIngestFailed, postID, post.PostType)
	}
	return post, nil
}

// Ingest fetches a post, classifies it and upserts it. Every failure wraps
// ErrIngestFailed.
func (i *Ingestor) Ingest(ctx context.Context, postID string) (*types.Post, error) {
	raw, err := i.gateway.FetchContent(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %w", ErrIngestFailed, postID, err)
	}

	post := &types.Post{
		PostID:     postID,
		PostType:   Classify(raw),
		Subreddit:  raw.Subreddit,
		URL:        raw.URL,
		Author:     raw.Author,
		Title:      truncateTitle(raw.Title),
		Permalink:  raw.Permalink,
		CreatedAt:  raw.CreatedAt,
		IngestedAt: i.now().UTC(),
	}
	if post.PostType == types.PostTypeLink || post.PostType == types.PostTypeImage {
		hash, err := search.HashURL(raw.URL)
		if err != nil {
			i.logger.Warn("could not hash post url", zap.String("post_id", postID), zap.Error(err))
		}
		post.URLHash = hash
	}

	err = storage.WithUnitOfWork(ctx, i.store, func(uow storage.UnitOfWork) error {
		return uow.Posts().Update(ctx, post)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: save %s: %w", ErrIngestFailed, postID, err)
	}

	i.logger.Info("ingested unknown post",
		zap.String("post_id", postID),
		zap.String("post_type", string(post.PostType)),
		zap.String("subreddit", post.Subreddit))
	return post, nil
}

func truncateTitle(title string) string {
	if len(title) <= maxTitleLen {
		return title
	}
	cut := title[:maxTitleLen]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
