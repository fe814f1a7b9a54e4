package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fireRecorder struct {
	mu    sync.Mutex
	fired []int64
}

func (r *fireRecorder) fire(drawID int64) {
	r.mu.Lock()
	r.fired = append(r.fired, drawID)
	r.mu.Unlock()
}

func (r *fireRecorder) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.fired...)
}

func TestScheduler_FiresElapsedDeadline(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	rec := &fireRecorder{}
	s := NewScheduler(clock, rec.fire)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Schedule(1, clock.Now().Add(time.Minute))

	require.Eventually(t, func() bool {
		clock.Advance(30 * time.Second)
		return len(rec.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []int64{1}, rec.snapshot())
}

func TestScheduler_FiresInDeadlineOrder(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	rec := &fireRecorder{}
	s := NewScheduler(clock, rec.fire)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// Registered out of order on purpose.
	s.Schedule(2, clock.Now().Add(2*time.Hour))
	s.Schedule(1, clock.Now().Add(time.Hour))

	require.Eventually(t, func() bool {
		clock.Advance(10 * time.Minute)
		return len(rec.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []int64{1, 2}, rec.snapshot())
}

func TestScheduler_OverdueDeadlineFiresImmediately(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	rec := &fireRecorder{}
	s := NewScheduler(clock, rec.fire)

	// Scheduled in the past, as happens when re-arming draws after a restart.
	s.Schedule(5, clock.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []int64{5}, rec.snapshot())
}

func TestScheduler_RescheduleReplacesDeadline(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	rec := &fireRecorder{}
	s := NewScheduler(clock, rec.fire)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Schedule(1, clock.Now().Add(time.Hour))
	s.Schedule(1, clock.Now().Add(10*time.Minute))

	require.Eventually(t, func() bool {
		clock.Advance(5 * time.Minute)
		return len(rec.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// A replaced deadline fires once, not once per Schedule call.
	time.Sleep(50 * time.Millisecond)
	clock.Advance(2 * time.Hour)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []int64{1}, rec.snapshot())
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	rec := &fireRecorder{}
	s := NewScheduler(clock, rec.fire)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop after cancel")
	}
}
