package service

import (
	"context"
	"sync"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"
)

// Scheduler maps draw ids to deadlines and fires each one once it elapses.
// There is no cancellation: a fire for a draw that was already finalized by
// hand is absorbed by the idempotent Finalize.
type Scheduler struct {
	clock Clock
	fire  func(drawID int64)

	mu        sync.Mutex
	deadlines map[int64]time.Time
	wake      chan struct{}
}

func NewScheduler(clock Clock, fire func(drawID int64)) *Scheduler {
	return &Scheduler{
		clock:     clock,
		fire:      fire,
		deadlines: make(map[int64]time.Time),
		wake:      make(chan struct{}, 1),
	}
}

// Schedule registers or replaces the deadline for a draw and wakes the run
// loop so it can re-arm on the new earliest entry.
func (s *Scheduler) Schedule(drawID int64, at time.Time) {
	s.mu.Lock()
	s.deadlines[drawID] = at
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done, firing deadlines as they elapse. Each fire
// runs in its own goroutine so a slow finalize never delays other draws.
func (s *Scheduler) Run(ctx context.Context) {
	log := logger.Logger()

	for {
		drawID, at, ok := s.earliest()

		var timer <-chan time.Time
		if ok {
			d := at.Sub(s.clock.Now())
			if d <= 0 {
				s.remove(drawID)
				log.Info("draw deadline elapsed", zap.Int64("draw_id", drawID))
				go s.fire(drawID)
				continue
			}
			timer = s.clock.After(d)
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer:
		}
	}
}

func (s *Scheduler) earliest() (int64, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		drawID int64
		at     time.Time
		found  bool
	)
	for id, t := range s.deadlines {
		if !found || t.Before(at) {
			drawID, at, found = id, t, true
		}
	}
	return drawID, at, found
}

func (s *Scheduler) remove(drawID int64) {
	s.mu.Lock()
	delete(s.deadlines, drawID)
	s.mu.Unlock()
}
