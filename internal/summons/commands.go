package summons

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/repostsleuth/sleuth/internal/commands"
	"github.com/repostsleuth/sleuth/internal/reply"
	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/types"
)

func replyInput(res *types.SearchResult, cmd commands.RepostCommand, noLink bool) reply.ComposeInput {
	return reply.ComposeInput{Result: res, Command: cmd, NoLink: noLink}
}

// handleStats answers with index statistics
func (h *Handler) handleStats(ctx context.Context, a *attempt) error {
	stats := &types.Stats{}
	err := storage.ReadOnly(ctx, h.store, func(uow storage.UnitOfWork) error {
		var err error
		if stats.PostCount, err = uow.Posts().Count(ctx); err != nil {
			return err
		}
		if stats.ByType, err = uow.Posts().CountByType(ctx); err != nil {
			return err
		}
		oldest, err := uow.Posts().Oldest(ctx)
		if err != nil {
			return err
		}
		if oldest != nil {
			created := oldest.CreatedAt
			stats.Oldest = &created
		}
		if stats.RepostsFound, err = uow.Posts().CountReposts(ctx); err != nil {
			return err
		}
		stats.Summoned, err = uow.Summons().Count(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to gather stats: %w", err)
	}

	msg, err := h.composer.Stats(stats)
	if err != nil {
		return err
	}
	return h.respond(ctx, a, types.ResponseStatusSuccess, msg)
}

// handleWatch adds or removes the requester's repost watch on the post. The
// watch change is committed before the reply is delivered.
func (h *Handler) handleWatch(ctx context.Context, a *attempt, enable bool) error {
	user, err := h.requestor(ctx, a.summons)
	if err != nil {
		return h.undelivered(ctx, a, err)
	}
	postID := a.post.PostID

	var outcome reply.WatchOutcome
	err = storage.WithUnitOfWork(ctx, h.store, func(uow storage.UnitOfWork) error {
		existing, err := uow.RepostWatches().FindExisting(ctx, user, postID)
		if err != nil {
			return err
		}

		switch {
		case enable && existing != nil:
			outcome = reply.WatchDuplicate
		case enable:
			outcome = reply.WatchAdded
			return uow.RepostWatches().Add(ctx, &types.RepostWatch{
				PostID:       postID,
				User:         user,
				ResponseType: types.WatchResponseMessage,
				Enabled:      true,
			})
		case existing != nil:
			outcome = reply.WatchRemoved
			return uow.RepostWatches().Remove(ctx, existing)
		default:
			outcome = reply.WatchNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update repost watch: %w", err)
	}
	a.logger.Info("repost watch command", zap.String("user", user), zap.Bool("enable", enable), zap.Int("outcome", int(outcome)))

	msg, err := h.composer.Watch(outcome, types.WatchResponseMessage)
	if err != nil {
		return err
	}
	return h.respond(ctx, a, types.ResponseStatusSuccess, msg)
}
