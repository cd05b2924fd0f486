// Package distance resolves the similarity thresholds used for a repost check.
package distance

import (
	"context"
	"fmt"

	"github.com/repostsleuth/sleuth/internal/storage"
)

// Thresholds are the maximum distances at which two images still match
type Thresholds struct {
	Hamming int
	Annoy   float64
}

// Resolver picks thresholds from the destination's monitored-sub settings,
// falling back to the global defaults
type Resolver struct {
	store    storage.Manager
	defaults Thresholds
}

// NewResolver creates a resolver backed by store
func NewResolver(store storage.Manager, defaults Thresholds) *Resolver {
	return &Resolver{store: store, defaults: defaults}
}

// Resolve returns the thresholds for subreddit. A non-nil override replaces
// the hamming distance, including an override of zero. The annoy distance is
// never overridden.
func (r *Resolver) Resolve(ctx context.Context, subreddit string, override *int) (Thresholds, error) {
	result := r.defaults

	err := storage.ReadOnly(ctx, r.store, func(uow storage.UnitOfWork) error {
		sub, err := uow.MonitoredSubs().GetBySubreddit(ctx, subreddit)
		if err != nil {
			return err
		}
		if sub != nil {
			result = Thresholds{Hamming: sub.TargetHamming, Annoy: sub.TargetAnnoy}
		}
		return nil
	})
	if err != nil {
		return Thresholds{}, fmt.Errorf("failed to resolve target distance for %s: %w", subreddit, err)
	}

	if override != nil {
		result.Hamming = *override
	}
	return result, nil
}
