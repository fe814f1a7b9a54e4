package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/repository/memory"

	"github.com/stretchr/testify/require"
)

// fakeClock is a hand-driven Clock. Advance moves the current time and fires
// any After channels whose deadline has passed.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []clockWaiter
}

type clockWaiter struct {
	at time.Time
	ch chan time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func newTestRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	at := c.now.Add(d)
	if d <= 0 {
		ch <- at
		return ch
	}
	c.waiters = append(c.waiters, clockWaiter{at: at, ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)

	remaining := c.waiters[:0]
	var due []clockWaiter
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			due = append(due, w)
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
	now := c.now
	c.mu.Unlock()

	for _, w := range due {
		w.ch <- now
	}
}

// recordingNotifier captures notifications so tests can assert on them.
type recordingNotifier struct {
	mu    sync.Mutex
	notes []model.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n model.Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) byKind(kind model.NotificationKind) []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.Notification
	for _, n := range r.notes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type giveawayFixture struct {
	store    *memory.Store
	clock    *fakeClock
	notifier *recordingNotifier
	giveaway *GiveawayService
	users    *UserService
}

func newGiveawayFixture(t *testing.T, seed int64) *giveawayFixture {
	t.Helper()

	store := memory.New()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	notifier := &recordingNotifier{}
	rnd := newTestRand(seed)

	return &giveawayFixture{
		store:    store,
		clock:    clock,
		notifier: notifier,
		giveaway: NewGiveawayService(store, store, notifier, clock, NewDrawHub(), rnd),
		users:    NewUserService(store, notifier),
	}
}

// registerUsers syncs n users (ids 1..n) and returns their participant
// snapshots.
func (f *giveawayFixture) registerUsers(t *testing.T, n int) []model.Participant {
	t.Helper()

	participants := make([]model.Participant, 0, n)
	for i := 1; i <= n; i++ {
		id := int64(i)
		username := fmt.Sprintf("user%d", i)
		user, err := f.users.SyncUser(context.Background(), id, username, fmt.Sprintf("User %d", i))
		require.NoError(t, err)
		participants = append(participants, model.Participant{TelegramID: id, Name: user.DisplayName()})
	}
	return participants
}

func (f *giveawayFixture) joinAll(t *testing.T, drawID int64, participants []model.Participant) {
	t.Helper()

	for _, p := range participants {
		_, err := f.giveaway.Join(context.Background(), drawID, p.TelegramID, p.Name)
		require.NoError(t, err)
	}
}

func (f *giveawayFixture) balance(t *testing.T, telegramID int64) int64 {
	t.Helper()

	user, err := f.store.GetUser(context.Background(), telegramID)
	require.NoError(t, err)
	return user.Balance
}
