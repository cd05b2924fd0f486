package summons

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchedulerDoublesUpToMax(t *testing.T) {
	s := NewScheduler(10*time.Second, 45*time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	want := []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second, 45 * time.Second, 45 * time.Second}
	for i, w := range want {
		attempts, retryAt := s.Defer(7, now)
		assert.Equal(t, i+1, attempts)
		assert.Equal(t, now.Add(w), retryAt, "attempt %d", i+1)
	}
}

func TestSchedulerReady(t *testing.T) {
	s := NewScheduler(time.Second, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, s.Ready(1, now), "unknown summons is ready")

	_, retryAt := s.Defer(1, now)
	assert.False(t, s.Ready(1, now))
	assert.False(t, s.Ready(1, retryAt.Add(-time.Nanosecond)))
	assert.True(t, s.Ready(1, retryAt))
	assert.True(t, s.Ready(2, now), "other summons unaffected")

	s.Clear(1)
	assert.True(t, s.Ready(1, now))
	assert.Zero(t, s.Pending())
}

func TestSchedulerPrune(t *testing.T) {
	s := NewScheduler(time.Second, time.Minute)
	now := time.Now()
	s.Defer(1, now)
	s.Defer(2, now)
	s.Defer(3, now)

	s.Prune(map[int64]bool{2: true})

	assert.Equal(t, 1, s.Pending())
	assert.False(t, s.Ready(2, now))
	assert.True(t, s.Ready(1, now))
}

func TestSchedulerDefaults(t *testing.T) {
	s := NewScheduler(0, 0)
	now := time.Now()
	_, retryAt := s.Defer(1, now)
	assert.Equal(t, now.Add(10*time.Second), retryAt)

	_, retryAt = s.Defer(1, now)
	assert.Equal(t, now.Add(10*time.Second), retryAt, "max is raised to base")
}
