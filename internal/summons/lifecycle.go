package summons

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/repostsleuth/sleuth/internal/events"
	"github.com/repostsleuth/sleuth/internal/storage"
	"github.com/repostsleuth/sleuth/internal/types"
)

// Start registers the worker instance and launches its background loops.
// The summons loop runs one cycle immediately and then on every poll tick.
func (h *Handler) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return fmt.Errorf("summons worker is already running")
	}
	h.running = true
	run := &loopRun{stop: make(chan struct{})}
	h.loops = run
	h.mu.Unlock()

	now := h.now()
	instance := &types.WorkerInstance{
		InstanceID:    h.instanceID,
		Hostname:      h.hostname,
		PID:           h.pid,
		Status:        types.WorkerStatusRunning,
		StartedAt:     now,
		LastHeartbeat: now,
		Version:       h.cfg.Version,
		Metadata:      "{}",
	}

	err := storage.WithUnitOfWork(ctx, h.store, func(uow storage.UnitOfWork) error {
		return uow.Instances().Register(ctx, instance)
	})
	if err != nil {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		return fmt.Errorf("failed to register worker instance: %w", err)
	}

	// Stale instances are cleared first so a crashed predecessor is not
	// reported as a live peer.
	if marked, err := h.cleanupStale(ctx); err != nil {
		h.logger.Warn("failed to cleanup stale instances on startup", zap.Error(err))
	} else if marked > 0 {
		h.logger.Info("cleaned up stale worker instances on startup", zap.Int("count", marked))
	}
	h.warnPeers(ctx)

	run.wg.Add(4)
	go h.eventLoop(ctx, run)
	go h.heartbeatLoop(ctx, run)
	go h.instanceCleanupLoop(ctx, run)
	go h.eventCleanupLoop(ctx, run)

	h.logger.Info("summons worker started",
		zap.Duration("poll_interval", h.cfg.PollInterval),
		zap.Int("max_concurrent", h.cfg.MaxConcurrent),
		zap.Bool("disabled", h.cfg.Disabled))
	return nil
}

// loopRun is one Start's background loops and the channel that stops them
type loopRun struct {
	stop chan struct{}
	wg   sync.WaitGroup
}

// stopBookkeepingTimeout bounds marking the instance stopped during Stop
const stopBookkeepingTimeout = 5 * time.Second

// Stop signals the loops to exit, waits for them (bounded by ctx) and marks
// the instance stopped. The instance is marked stopped and the worker can be
// started again even when ctx expires first; the wait error is returned.
func (h *Handler) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running || h.loops == nil {
		h.mu.Unlock()
		return fmt.Errorf("summons worker is not running")
	}
	run := h.loops
	h.loops = nil
	close(run.stop)
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		run.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = ctx.Err()
		h.logger.Warn("timed out waiting for worker loops, marking instance stopped anyway", zap.Error(waitErr))
	}

	// ctx may already be expired; the bookkeeping gets its own deadline.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopBookkeepingTimeout)
	defer cancel()

	err := storage.WithUnitOfWork(bctx, h.store, func(uow storage.UnitOfWork) error {
		return uow.Instances().MarkStopped(bctx, h.instanceID)
	})
	if err != nil {
		h.logger.Warn("failed to mark instance as stopped", zap.Error(err))
	}

	if waitErr == nil {
		if deleted, err := h.deleteOldStopped(bctx); err != nil {
			h.logger.Warn("failed to cleanup old worker instances", zap.Error(err))
		} else if deleted > 0 {
			h.logger.Info("deleted old stopped worker instances", zap.Int("count", deleted))
		}
	}

	h.mu.Lock()
	h.running = false
	h.mu.Unlock()

	if waitErr != nil {
		return fmt.Errorf("worker loops did not exit: %w", waitErr)
	}
	h.logger.Info("summons worker stopped", zap.Int("deferred", h.scheduler.Pending()))
	return nil
}

// IsRunning returns whether the worker is currently running
func (h *Handler) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// eventLoop is the summons polling loop
func (h *Handler) eventLoop(ctx context.Context, r *loopRun) {
	defer r.wg.Done()

	// The loop context is cancelled on Stop so in-flight summons see it.
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := h.cycle(loopCtx); err != nil && loopCtx.Err() == nil {
			h.logger.Error("summons cycle failed", zap.Error(err))
		}

		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cycle runs RunCycle and converts a panic into an error so the polling
// loop survives it
func (h *Handler) cycle(ctx context.Context) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = fmt.Errorf("panic in summons cycle: %v", r)
		h.logger.Error("unhandled panic in summons cycle",
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()))
		h.recordPanic(ctx, 0, fmt.Sprintf("panic in summons cycle: %v", r))
	}()
	return h.RunCycle(ctx)
}

// recordPanic records an unhandled-error event. The store may be what
// panicked, so a second panic here is logged and dropped.
func (h *Handler) recordPanic(ctx context.Context, summonsID int64, msg string) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("failed to record panic event", zap.Any("panic", r))
		}
	}()
	h.recordEvent(ctx, events.New(events.EventTypeUnhandledError, events.SeverityCritical, summonsID, h.instanceID, msg, nil))
}

// heartbeatLoop keeps the instance's last_heartbeat fresh
func (h *Handler) heartbeatLoop(ctx context.Context, r *loopRun) {
	defer r.wg.Done()

	ticker := time.NewTicker(h.cfg.HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			err := storage.WithUnitOfWork(ctx, h.store, func(uow storage.UnitOfWork) error {
				return uow.Instances().Heartbeat(ctx, h.instanceID)
			})
			if err != nil {
				h.logger.Warn("failed to record heartbeat", zap.Error(err))
			}
		}
	}
}

// instanceCleanupLoop marks silent instances stopped and prunes old ones
func (h *Handler) instanceCleanupLoop(ctx context.Context, r *loopRun) {
	defer r.wg.Done()

	interval := h.cfg.InstanceCleanup.StaleThreshold() / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			start := time.Now()
			data := events.InstanceCleanupCompletedData{Success: true}

			marked, err := h.cleanupStale(ctx)
			if err == nil {
				data.StaleMarked = marked
				data.InstancesDeleted, err = h.deleteOldStopped(ctx)
			}
			if err != nil {
				data.Success = false
				data.Error = err.Error()
				h.logger.Warn("instance cleanup failed", zap.Error(err))
			} else if data.StaleMarked > 0 || data.InstancesDeleted > 0 {
				h.logger.Info("instance cleanup",
					zap.Int("stale_marked", data.StaleMarked),
					zap.Int("deleted", data.InstancesDeleted))
			}
			data.ProcessingTimeMs = time.Since(start).Milliseconds()

			if ev, err := events.NewInstanceCleanupCompletedEvent(h.instanceID, data); err == nil {
				h.recordEvent(ctx, ev)
			}
		}
	}
}

// eventCleanupLoop enforces the event retention policy
func (h *Handler) eventCleanupLoop(ctx context.Context, r *loopRun) {
	defer r.wg.Done()

	cfg := h.cfg.EventRetention
	if err := cfg.Validate(); err != nil {
		h.logger.Error("invalid event retention configuration, cleanup disabled", zap.Error(err))
		return
	}
	if !cfg.CleanupEnabled {
		h.logger.Info("event cleanup disabled via configuration")
		return
	}

	ticker := time.NewTicker(cfg.CleanupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			h.cleanupEvents(ctx)
		}
	}
}

func (h *Handler) cleanupEvents(ctx context.Context) {
	cfg := h.cfg.EventRetention
	start := time.Now()
	data := events.EventCleanupCompletedData{Success: true}

	err := storage.WithUnitOfWork(ctx, h.store, func(uow storage.UnitOfWork) error {
		deleted, err := uow.Events().CleanupByAge(ctx, cfg.RetentionDays, cfg.RetentionCriticalDays, cfg.CleanupBatchSize)
		if err != nil {
			return err
		}
		data.EventsDeleted = deleted
		data.EventsRemaining, err = uow.Events().Count(ctx)
		return err
	})
	if err != nil {
		data.Success = false
		data.Error = err.Error()
		h.logger.Warn("event cleanup failed", zap.Error(err))
	} else if data.EventsDeleted > 0 {
		h.logger.Info("event cleanup",
			zap.Int("deleted", data.EventsDeleted),
			zap.Int("remaining", data.EventsRemaining))
	}
	data.ProcessingTimeMs = time.Since(start).Milliseconds()

	if ev, err := events.NewEventCleanupCompletedEvent(h.instanceID, data); err == nil {
		h.recordEvent(ctx, ev)
	}
}

// warnPeers logs every other instance registered as running
func (h *Handler) warnPeers(ctx context.Context) {
	var peers []*types.WorkerInstance
	err := storage.ReadOnly(ctx, h.store, func(uow storage.UnitOfWork) error {
		var err error
		peers, err = uow.Instances().GetActive(ctx)
		return err
	})
	if err != nil {
		h.logger.Warn("failed to list active worker instances", zap.Error(err))
		return
	}
	for _, p := range peers {
		if p.InstanceID == h.instanceID {
			continue
		}
		h.logger.Warn("another summons worker is registered as running",
			zap.String("peer_id", p.InstanceID),
			zap.String("peer_host", p.Hostname),
			zap.String("peer_version", p.Version),
			zap.Bool("peer_outdated", h.cfg.Version != "" && p.IsOlderThan(h.cfg.Version)))
	}
}

func (h *Handler) cleanupStale(ctx context.Context) (int, error) {
	var marked int
	err := storage.WithUnitOfWork(ctx, h.store, func(uow storage.UnitOfWork) error {
		var err error
		marked, err = uow.Instances().CleanupStale(ctx, h.cfg.InstanceCleanup.StaleThreshold())
		return err
	})
	return marked, err
}

func (h *Handler) deleteOldStopped(ctx context.Context) (int, error) {
	var deleted int
	err := storage.WithUnitOfWork(ctx, h.store, func(uow storage.UnitOfWork) error {
		var err error
		deleted, err = uow.Instances().DeleteOldStopped(ctx, h.cfg.InstanceCleanup.CleanupAge(), h.cfg.InstanceCleanup.CleanupKeep)
		return err
	})
	return deleted, err
}
