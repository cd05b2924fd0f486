// Package summons runs the worker that answers users who summon the bot on
// a post.
package summons

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/repostsleuth/sleuth/internal/commands"
	"github.com/repostsleuth/sleuth/internal/config"
	"github.com/repostsleuth/sleuth/internal/distance"
	"github.com/repostsleuth/sleuth/internal/gateway"
	"github.com/repostsleuth/sleuth/internal/reply"
	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/types"
)

// Searcher runs a duplicate check
type Searcher interface {
	Dispatch(ctx context.Context, post *types.Post, cmd commands.RepostCommand, th distance.Thresholds) (*types.SearchResult, error)
}

// PostSource returns the post a summons refers to, ingesting it if needed
type PostSource interface {
	GetOrIngest(ctx context.Context, postID string) (*types.Post, error)
}

// Config controls the worker
type Config struct {
	PollInterval    time.Duration
	HeartbeatPeriod time.Duration
	// NoIndexBackoff is the first wait after a deferral; it doubles up to MaxBackoff
	NoIndexBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxConcurrent bounds the summons handled at once within a cycle
	MaxConcurrent int
	// BatchSize caps the summons taken per cycle (0 = all)
	BatchSize          int
	Disabled           bool
	StrictCommands     bool
	SupportedPostTypes []types.PostType
	NoLinkSubreddits   []string
	Version            string
	EventRetention     config.EventRetentionConfig
	InstanceCleanup    config.InstanceCleanupConfig
}

// ConfigFrom builds a worker configuration from the service configuration
func ConfigFrom(cfg *config.Config, version string) (Config, error) {
	supported, err := cfg.SupportedPostTypes()
	if err != nil {
		return Config{}, err
	}
	return Config{
		PollInterval:       cfg.Summons.PollInterval,
		HeartbeatPeriod:    cfg.Summons.HeartbeatPeriod,
		NoIndexBackoff:     cfg.Summons.NoIndexBackoff,
		MaxBackoff:         cfg.Summons.MaxBackoff,
		MaxConcurrent:      cfg.Summons.MaxConcurrent,
		Disabled:           cfg.Summons.Disabled,
		StrictCommands:     cfg.Summons.StrictCommands,
		SupportedPostTypes: supported,
		NoLinkSubreddits:   cfg.Summons.NoLinkSubreddits,
		Version:            version,
		EventRetention:     cfg.EventRetention,
		InstanceCleanup:    cfg.InstanceCleanup,
	}, nil
}

// Deps are the collaborators of the worker
type Deps struct {
	Store    storage.Manager
	Gateway  gateway.Gateway
	Parser   *commands.Parser
	Resolver *distance.Resolver
	Searcher Searcher
	Composer *reply.Composer
	Posts    PostSource
	Logger   *zap.Logger
}

// Handler is the summons worker
type Handler struct {
	cfg        Config
	store      storage.Manager
	gateway    gateway.Gateway
	parser     *commands.Parser
	resolver   *distance.Resolver
	searcher   Searcher
	composer   *reply.Composer
	posts      PostSource
	logger     *zap.Logger
	scheduler  *Scheduler
	instanceID string
	hostname   string
	pid        int
	now        func() time.Time

	mu      sync.RWMutex
	running bool
	loops   *loopRun
}

// New creates a summons worker
func New(cfg Config, deps Deps) (*Handler, error) {
	if deps.Store == nil || deps.Gateway == nil || deps.Parser == nil || deps.Resolver == nil ||
		deps.Searcher == nil || deps.Composer == nil || deps.Posts == nil {
		return nil, fmt.Errorf("summons handler: missing dependency")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.HeartbeatPeriod <= 0 {
		cfg.HeartbeatPeriod = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if len(cfg.SupportedPostTypes) == 0 {
		cfg.SupportedPostTypes = []types.PostType{types.PostTypeImage, types.PostTypeLink}
	}
	if cfg.EventRetention == (config.EventRetentionConfig{}) {
		cfg.EventRetention = config.DefaultEventRetentionConfig()
	}
	if cfg.InstanceCleanup == (config.InstanceCleanupConfig{}) {
		cfg.InstanceCleanup = config.DefaultInstanceCleanupConfig()
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	instanceID := uuid.New().String()

	return &Handler{
		cfg:        cfg,
		store:      deps.Store,
		gateway:    deps.Gateway,
		parser:     deps.Parser,
		resolver:   deps.Resolver,
		searcher:   deps.Searcher,
		composer:   deps.Composer,
		posts:      deps.Posts,
		logger:     logger.With(zap.String("worker_id", instanceID)),
		scheduler:  NewScheduler(cfg.NoIndexBackoff, cfg.MaxBackoff),
		instanceID: instanceID,
		hostname:   hostname,
		pid:        os.Getpid(),
		now:        time.Now,
	}, nil
}

// InstanceID returns the worker's instance ID
func (h *Handler) InstanceID() string {
	return h.instanceID
}

// RunCycle handles every unreplied summons that is not waiting out a
// deferral. Failures of individual summons are logged and never end the
// cycle; the returned error covers only the initial snapshot and cancellation.
func (h *Handler) RunCycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var pending []*types.Summons
	err := storage.ReadOnly(ctx, h.store, func(uow storage.UnitOfWork) error {
		var err error
		pending, err = uow.Summons().GetUnreplied(ctx, h.cfg.BatchSize)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch unreplied summons: %w", err)
	}

	keep := make(map[int64]bool, len(pending))
	for _, s := range pending {
		keep[s.ID] = true
	}
	h.scheduler.Prune(keep)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.MaxConcurrent)

	for _, s := range pending {
		if gctx.Err() != nil {
			break
		}
		if !h.scheduler.Ready(s.ID, h.now()) {
			continue
		}
		s := s
		g.Go(func() error {
			// process recovers pipeline panics but not ones from finish
			defer func() {
				if r := recover(); r != nil {
					h.logger.Error("unhandled panic after summons attempt",
						zap.Int64("summons_id", s.ID),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()))
				}
			}()
			h.process(gctx, s)
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

func (h *Handler) isSupported(pt types.PostType) bool {
	for _, s := range h.cfg.SupportedPostTypes {
		if s == pt {
			return true
		}
	}
	return false
}

func (h *Handler) isNoLink(subreddit string) bool {
	for _, s := range h.cfg.NoLinkSubreddits {
		if strings.EqualFold(s, subreddit) {
			return true
		}
	}
	return false
}
