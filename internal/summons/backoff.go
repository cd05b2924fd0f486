package summons

import (
	"sync"
	"time"
)

// Scheduler tracks summons that must wait before their next attempt. Each
// consecutive deferral doubles the wait, up to a maximum.
type Scheduler struct {
	mu      sync.Mutex
	base    time.Duration
	max     time.Duration
	pending map[int64]deferral
}

type deferral struct {
	attempts int
	retryAt  time.Time
}

// NewScheduler creates a scheduler with the given initial and maximum wait
func NewScheduler(base, max time.Duration) *Scheduler {
	if base <= 0 {
		base = 10 * time.Second
	}
	if max < base {
		max = base
	}
	return &Scheduler{base: base, max: max, pending: make(map[int64]deferral)}
}

// Ready reports whether summons id may be attempted at now
func (s *Scheduler) Ready(id int64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.pending[id]
	return !ok || !now.Before(d.retryAt)
}

// Defer pushes summons id back and returns its consecutive deferral count
// and the earliest time it will be attempted again
func (s *Scheduler) Defer(id int64, now time.Time) (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.pending[id]
	d.attempts++
	d.retryAt = now.Add(s.delay(d.attempts))
	s.pending[id] = d
	return d.attempts, d.retryAt
}

// Clear forgets summons id, typically after it was answered
func (s *Scheduler) Clear(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

// Prune forgets every summons not in keep
func (s *Scheduler) Prune(keep map[int64]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.pending {
		if !keep[id] {
			delete(s.pending, id)
		}
	}
}

// Pending returns the number of deferred summons
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) delay(attempts int) time.Duration {
	d := s.base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= s.max {
			return s.max
		}
	}
	return d
}
