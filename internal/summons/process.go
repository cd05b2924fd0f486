package summons

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/repostsleuth/sleuth/internal/commands"
	"github.com/repostsleuth/sleuth/internal/events"
	"github.com/repostsleuth/sleuth/internal/gateway"
	"github.com/repostsleuth/sleuth/internal/ingest"
	"github.com/repostsleuth/sleuth/internal/search"
	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/types"
)

// Stage is how far a summons attempt progressed
type Stage int

const (
	StageFetched Stage = iota
	StageIngested
	StageClassified
	StageDispatched
	StageComposed
	StageDelivered
	StagePersisted
)

func (s Stage) String() string {
	switch s {
	case StageFetched:
		return "fetched"
	case StageIngested:
		return "ingested"
	case StageClassified:
		return "classified"
	case StageDispatched:
		return "dispatched"
	case StageComposed:
		return "composed"
	case StageDelivered:
		return "delivered"
	case StagePersisted:
		return "persisted"
	}
	return "unknown"
}

// attempt is one pass of a summons through the pipeline
type attempt struct {
	summons  *types.Summons
	stage    Stage
	post     *types.Post
	root     commands.Root
	matches  int
	outcome  events.Outcome
	response *types.Response
	logger   *zap.Logger
}

func (a *attempt) advance(to Stage) {
	a.stage = to
	a.logger.Debug("summons stage", zap.Stringer("stage", to))
}

// process runs one summons to a terminal outcome and always records the
// completion event
func (h *Handler) process(ctx context.Context, s *types.Summons) {
	a := &attempt{
		summons: s,
		stage:   StageFetched,
		outcome: events.OutcomeFailed,
		logger: h.logger.With(
			zap.Int64("summons_id", s.ID),
			zap.String("post_id", s.PostID),
			zap.String("subreddit", s.Subreddit)),
	}

	defer func() {
		if r := recover(); r != nil {
			a.outcome = events.OutcomeFailed
			a.logger.Error("unhandled panic while handling summons",
				zap.Any("panic", r),
				zap.Stringer("stage", a.stage),
				zap.ByteString("stack", debug.Stack()))
			h.recordPanic(ctx, s.ID, fmt.Sprintf("panic at stage %s: %v", a.stage, r))
		}
		h.finish(ctx, a)
	}()

	if err := h.run(ctx, a); err != nil {
		if ctx.Err() != nil {
			a.logger.Debug("summons interrupted by shutdown", zap.Error(err))
			return
		}
		a.logger.Error("failed to handle summons", zap.Stringer("stage", a.stage), zap.Error(err))
		h.recordEvent(ctx, events.New(events.EventTypeUnhandledError, events.SeverityError, s.ID, h.instanceID,
			err.Error(), map[string]interface{}{"stage": a.stage.String()}))
	}
}

// run walks the attempt through the pipeline. A returned error is an
// unexpected failure; expected failures set the outcome and return nil.
func (h *Handler) run(ctx context.Context, a *attempt) error {
	s := a.summons

	if h.cfg.Disabled {
		msg, err := h.composer.Maintenance()
		if err != nil {
			return err
		}
		return h.respond(ctx, a, types.ResponseStatusError, msg)
	}

	post, err := h.posts.GetOrIngest(ctx, s.PostID)
	if err != nil {
		if !errors.Is(err, ingest.ErrIngestFailed) {
			return err
		}
		a.logger.Warn("failed to ingest post, sending apology", zap.Error(err))
		h.recordEvent(ctx, events.New(events.EventTypeIngestFailed, events.SeverityWarning, s.ID, h.instanceID,
			err.Error(), nil))
		msg, err := h.composer.Trouble()
		if err != nil {
			return err
		}
		return h.respond(ctx, a, types.ResponseStatusError, msg)
	}
	a.post = post
	a.advance(StageIngested)

	a.root = h.rootCommand(ctx, a)
	a.advance(StageClassified)

	switch a.root {
	case commands.RootStats:
		return h.handleStats(ctx, a)
	case commands.RootWatch:
		return h.handleWatch(ctx, a, true)
	case commands.RootUnwatch:
		return h.handleWatch(ctx, a, false)
	case commands.RootUnknown:
		msg, err := h.composer.UnknownCommand()
		if err != nil {
			return err
		}
		return h.respond(ctx, a, types.ResponseStatusError, msg)
	case commands.RootRepost:
		return h.handleRepost(ctx, a)
	}
	return fmt.Errorf("unhandled root command %q", a.root)
}

// rootCommand parses the root command. Parse failures fall back to a repost
// check; an unknown word is kept only when strict commands are enabled.
func (h *Handler) rootCommand(ctx context.Context, a *attempt) commands.Root {
	root, err := h.parser.ParseRoot(a.summons.CommentBody)
	if err == nil {
		return root
	}

	a.logger.Error("invalid summons command, defaulting to repost check",
		zap.String("comment_body", a.summons.CommentBody), zap.Error(err))
	h.recordEvent(ctx, events.New(events.EventTypeInvalidCommand, events.SeverityWarning, a.summons.ID, h.instanceID,
		err.Error(), map[string]interface{}{"comment_body": a.summons.CommentBody}))

	if root == commands.RootUnknown && h.cfg.StrictCommands {
		return commands.RootUnknown
	}
	return commands.RootRepost
}

func (h *Handler) handleRepost(ctx context.Context, a *attempt) error {
	s, post := a.summons, a.post

	if !h.isSupported(post.PostType) {
		a.logger.Info("post type not supported", zap.String("post_type", string(post.PostType)))
		msg, err := h.composer.Unsupported(post.PostType)
		if err != nil {
			return err
		}
		return h.respond(ctx, a, types.ResponseStatusError, msg)
	}

	cmd, err := h.parser.ParseRepost(s.CommentBody, post.PostType)
	if err != nil {
		a.logger.Warn("could not parse repost flags, using defaults", zap.Error(err))
		cmd = commands.DefaultRepostCommand(post.PostType)
	}

	var override *int
	if img, ok := cmd.(*commands.ImageCommand); ok {
		override = img.Strictness
	}
	th, err := h.resolver.Resolve(ctx, post.Subreddit, override)
	if err != nil {
		return err
	}

	result, err := h.searcher.Dispatch(ctx, post, cmd, th)
	if err != nil {
		if errors.Is(err, search.ErrNoIndex) {
			a.outcome = events.OutcomeDeferred
			h.deferSummons(ctx, a, "no similarity index available")
			return nil
		}
		return err
	}
	a.matches = len(result.Matches)
	a.advance(StageDispatched)

	comp, err := h.composer.Compose(replyInput(result, cmd, h.isNoLink(post.Subreddit)))
	if err != nil {
		return err
	}
	a.advance(StageComposed)

	if comp.Overflowed() {
		recipient, err := h.requestor(ctx, s)
		if err != nil {
			return h.undelivered(ctx, a, err)
		}
		a.logger.Info("sending full match list by private message",
			zap.Int("matches", a.matches), zap.String("recipient", recipient))
		if err := h.gateway.SendPrivateMessage(ctx, recipient, comp.Private); err != nil {
			return h.undelivered(ctx, a, err)
		}
	}

	return h.respond(ctx, a, types.ResponseStatusSuccess, comp.Public)
}

// respond delivers msg as the reply to the summons and records it
func (h *Handler) respond(ctx context.Context, a *attempt, status types.ResponseStatus, msg string) error {
	s := a.summons
	a.response = &types.Response{SummonsID: s.ID, Status: status, Message: msg}

	delivered, err := h.gateway.ReplyToComment(ctx, s.CommentID, msg, "summons", true)
	if err != nil {
		return h.undelivered(ctx, a, err)
	}
	a.response.Message = delivered.Body
	a.advance(StageDelivered)

	err = storage.WithUnitOfWork(ctx, h.store, func(uow storage.UnitOfWork) error {
		current, err := uow.Summons().GetByID(ctx, s.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("summons %d no longer exists", s.ID)
		}
		if current.IsReplied() {
			a.logger.Warn("summons was already answered by another worker",
				zap.String("reply_id", current.CommentReplyID))
			return nil
		}
		if err := current.MarkReplied(a.response.Message, delivered.CommentID, h.now()); err != nil {
			return err
		}
		return uow.Summons().Update(ctx, current)
	})
	if err != nil {
		a.outcome = events.OutcomeUnrecorded
		a.logger.Error("reply delivered but not recorded", zap.Error(err))
		h.recordEvent(ctx, events.New(events.EventTypePersistenceFailed, events.SeverityCritical, s.ID, h.instanceID,
			err.Error(), map[string]interface{}{"reply_id": delivered.CommentID}))
		return nil
	}

	a.advance(StagePersisted)
	a.outcome = events.OutcomeReplied
	h.scheduler.Clear(s.ID)
	a.logger.Info("summons answered",
		zap.String("reply_id", delivered.CommentID),
		zap.Bool("via_pm", delivered.ViaPM))
	return nil
}

// undelivered abandons the attempt; the summons is retried next cycle
func (h *Handler) undelivered(ctx context.Context, a *attempt, err error) error {
	if ctx.Err() != nil {
		return err
	}
	a.outcome = events.OutcomeUndelivered
	a.logger.Warn("reply not delivered, will retry next cycle", zap.Error(err))
	h.recordEvent(ctx, events.New(events.EventTypeDeliveryFailed, events.SeverityWarning, a.summons.ID, h.instanceID,
		err.Error(), nil))
	return nil
}

func (h *Handler) deferSummons(ctx context.Context, a *attempt, reason string) {
	attempts, retryAt := h.scheduler.Defer(a.summons.ID, h.now())
	a.logger.Warn("summons deferred",
		zap.String("reason", reason),
		zap.Int("attempts", attempts),
		zap.Time("retry_at", retryAt))

	ev, err := events.NewSummonsDeferredEvent(a.summons.ID, h.instanceID, events.SummonsDeferredData{
		Reason:   reason,
		Attempts: attempts,
		RetryAt:  retryAt,
	})
	if err == nil {
		h.recordEvent(ctx, ev)
	}
}

// requestor returns the summoning user, asking the gateway when the summons
// did not record one
func (h *Handler) requestor(ctx context.Context, s *types.Summons) (string, error) {
	if s.Requestor != "" {
		return s.Requestor, nil
	}
	comment, err := h.gateway.FetchComment(ctx, s.CommentID)
	if err != nil {
		return "", fmt.Errorf("%w: lookup of requestor: %w", gateway.ErrDeliveryFailed, err)
	}
	return comment.Author, nil
}

// finish records the completion-latency event for every attempt
func (h *Handler) finish(ctx context.Context, a *attempt) {
	if a.outcome == events.OutcomeFailed && ctx.Err() == nil {
		h.deferSummons(ctx, a, "unexpected failure")
	}

	data := events.SummonsHandledData{
		LatencySeconds: a.summons.Latency(h.now()).Seconds(),
		ReceivedAt:     a.summons.SummonsReceivedAt,
		Requestor:      a.summons.Requestor,
		Command:        string(a.root),
		Outcome:        a.outcome,
		Matches:        a.matches,
	}
	if a.post != nil {
		data.PostType = string(a.post.PostType)
	}
	ev, err := events.NewSummonsHandledEvent(a.summons.ID, h.instanceID, data)
	if err != nil {
		a.logger.Warn("failed to build summons event", zap.Error(err))
		return
	}
	h.recordEvent(ctx, ev)
}

// recordEvent stores an event in its own scope. Failures are only logged.
func (h *Handler) recordEvent(ctx context.Context, ev *events.Event) {
	err := storage.WithUnitOfWork(ctx, h.store, func(uow storage.UnitOfWork) error {
		return uow.Events().Add(ctx, ev)
	})
	if err != nil {
		h.logger.Debug("failed to record event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
