package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/repository"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGiveawayService_Create(t *testing.T) {
	f := newGiveawayFixture(t, 1)
	ctx := context.Background()

	tests := []struct {
		name            string
		prize           string
		duration        time.Duration
		winners         int
		expectedErr     error
		expectedWinners int
		expectedEndsIn  time.Duration
	}{
		{
			name:            "valid money draw",
			prize:           "900",
			duration:        time.Hour,
			winners:         4,
			expectedWinners: 4,
			expectedEndsIn:  time.Hour,
		},
		{
			name:        "empty prize rejected",
			prize:       "   ",
			duration:    time.Hour,
			winners:     1,
			expectedErr: ErrInvalidInput,
		},
		{
			name:            "winner count clamped to one",
			prize:           "iPhone 15",
			duration:        time.Hour,
			winners:         0,
			expectedWinners: 1,
			expectedEndsIn:  time.Hour,
		},
		{
			name:            "winner count clamped to cap",
			prize:           "10000",
			duration:        time.Hour,
			winners:         500,
			expectedWinners: MaxWinners,
			expectedEndsIn:  time.Hour,
		},
		{
			name:            "duration floored at a minute",
			prize:           "500",
			duration:        3 * time.Second,
			winners:         1,
			expectedWinners: 1,
			expectedEndsIn:  MinDrawDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draw, err := f.giveaway.Create(ctx, tt.prize, tt.duration, tt.winners, "")
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, draw.ID)
			assert.Equal(t, tt.expectedWinners, draw.WinnersWanted)
			assert.Equal(t, f.clock.Now().Add(tt.expectedEndsIn), draw.EndsAt)
			assert.Equal(t, model.DrawOpen, draw.State)
		})
	}
}

func TestGiveawayService_MoneySplit(t *testing.T) {
	f := newGiveawayFixture(t, 7)
	ctx := context.Background()

	participants := f.registerUsers(t, 4)
	draw, err := f.giveaway.Create(ctx, "900", time.Hour, 4, "")
	require.NoError(t, err)
	f.joinAll(t, draw.ID, participants)

	f.clock.Advance(time.Hour + time.Second)
	require.NoError(t, f.giveaway.Finalize(ctx, draw.ID))

	for _, p := range participants {
		assert.Equal(t, repository.StartingBalance+int64(225), f.balance(t, p.TelegramID))
	}

	winnerNotes := f.notifier.byKind(model.NotifyWinnerMoney)
	require.Len(t, winnerNotes, 4)
	for _, n := range winnerNotes {
		assert.Equal(t, int64(225), n.Amount)
		assert.Equal(t, repository.StartingBalance+int64(225), n.Balance)
	}

	summary := f.notifier.byKind(model.NotifyDrawFinished)
	require.Len(t, summary, 1)
	assert.Len(t, summary[0].Winners, 4)
	assert.Len(t, summary[0].Participants, 4)

	finished, err := f.giveaway.ListFinished(ctx)
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Equal(t, model.DrawFinalized, finished[0].State)
	assert.Len(t, finished[0].Winners, 4)
}

func TestGiveawayService_RemainderForfeited(t *testing.T) {
	f := newGiveawayFixture(t, 3)
	ctx := context.Background()

	participants := f.registerUsers(t, 3)
	draw, err := f.giveaway.Create(ctx, "1000", time.Hour, 3, "")
	require.NoError(t, err)
	f.joinAll(t, draw.ID, participants)

	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.giveaway.Finalize(ctx, draw.ID))

	var total int64
	for _, p := range participants {
		total += f.balance(t, p.TelegramID) - repository.StartingBalance
	}
	// 1000 / 3 pays 333 each; the leftover coin is not distributed.
	assert.Equal(t, int64(999), total)
}

func TestGiveawayService_ItemPrize(t *testing.T) {
	f := newGiveawayFixture(t, 5)
	ctx := context.Background()

	participants := f.registerUsers(t, 3)
	draw, err := f.giveaway.Create(ctx, "AirPods Pro", time.Hour, 1, "")
	require.NoError(t, err)
	f.joinAll(t, draw.ID, participants)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.giveaway.Finalize(ctx, draw.ID))

	for _, p := range participants {
		assert.Equal(t, repository.StartingBalance, f.balance(t, p.TelegramID))
	}

	itemNotes := f.notifier.byKind(model.NotifyWinnerItem)
	require.Len(t, itemNotes, 1)
	assert.Equal(t, "AirPods Pro", itemNotes[0].Prize)
	assert.Empty(t, f.notifier.byKind(model.NotifyWinnerMoney))
}

func TestGiveawayService_EmptyDraw(t *testing.T) {
	f := newGiveawayFixture(t, 5)
	ctx := context.Background()

	draw, err := f.giveaway.Create(ctx, "iPhone 15", time.Hour, 3, "")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.giveaway.Finalize(ctx, draw.ID))

	empty := f.notifier.byKind(model.NotifyDrawEmpty)
	require.Len(t, empty, 1)
	assert.Equal(t, draw.ID, empty[0].DrawID)
	assert.Empty(t, f.notifier.byKind(model.NotifyDrawFinished))

	finished, err := f.giveaway.ListFinished(ctx)
	require.NoError(t, err)
	require.Len(t, finished, 1)
	assert.Empty(t, finished[0].Winners)
}

func TestGiveawayService_WinnersCappedByParticipants(t *testing.T) {
	f := newGiveawayFixture(t, 11)
	ctx := context.Background()

	participants := f.registerUsers(t, 2)
	draw, err := f.giveaway.Create(ctx, "600", time.Hour, 5, "")
	require.NoError(t, err)
	f.joinAll(t, draw.ID, participants)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.giveaway.Finalize(ctx, draw.ID))

	// Both participants win and the pot splits two ways, not five.
	for _, p := range participants {
		assert.Equal(t, repository.StartingBalance+int64(300), f.balance(t, p.TelegramID))
	}
	summary := f.notifier.byKind(model.NotifyDrawFinished)
	require.Len(t, summary, 1)
	assert.Len(t, summary[0].Winners, 2)
}

func TestGiveawayService_JoinRejections(t *testing.T) {
	f := newGiveawayFixture(t, 2)
	ctx := context.Background()

	participants := f.registerUsers(t, 2)
	draw, err := f.giveaway.Create(ctx, "500", time.Hour, 1, "")
	require.NoError(t, err)

	count, err := f.giveaway.Join(ctx, draw.ID, participants[0].TelegramID, participants[0].Name)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	t.Run("unknown draw", func(t *testing.T) {
		_, err := f.giveaway.Join(ctx, 9999, participants[1].TelegramID, participants[1].Name)
		assert.ErrorIs(t, err, ErrDrawNotFound)
	})

	t.Run("duplicate join", func(t *testing.T) {
		_, err := f.giveaway.Join(ctx, draw.ID, participants[0].TelegramID, participants[0].Name)
		assert.ErrorIs(t, err, ErrAlreadyJoined)
	})

	t.Run("join past deadline", func(t *testing.T) {
		f.clock.Advance(time.Hour + time.Minute)
		_, err := f.giveaway.Join(ctx, draw.ID, participants[1].TelegramID, participants[1].Name)
		assert.ErrorIs(t, err, ErrDrawNotFound)
	})

	t.Run("join after finalize", func(t *testing.T) {
		require.NoError(t, f.giveaway.Finalize(ctx, draw.ID))
		_, err := f.giveaway.Join(ctx, draw.ID, participants[1].TelegramID, participants[1].Name)
		assert.ErrorIs(t, err, ErrDrawNotFound)
	})
}

func TestGiveawayService_FinalizeIdempotent(t *testing.T) {
	f := newGiveawayFixture(t, 9)
	ctx := context.Background()

	participants := f.registerUsers(t, 1)
	draw, err := f.giveaway.Create(ctx, "400", time.Hour, 1, "")
	require.NoError(t, err)
	f.joinAll(t, draw.ID, participants)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.giveaway.Finalize(ctx, draw.ID))
	require.NoError(t, f.giveaway.Finalize(ctx, draw.ID))
	require.NoError(t, f.giveaway.Finalize(ctx, draw.ID))

	assert.Equal(t, repository.StartingBalance+int64(400), f.balance(t, participants[0].TelegramID))
	assert.Len(t, f.notifier.byKind(model.NotifyDrawFinished), 1)
	assert.Len(t, f.notifier.byKind(model.NotifyWinnerMoney), 1)
}

type droppingNotifier struct{}

func (droppingNotifier) Notify(context.Context, model.Notification) {}

func TestGiveawayService_CreditsDoNotDependOnDelivery(t *testing.T) {
	store := memory.New()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	users := NewUserService(store, droppingNotifier{})
	gs := NewGiveawayService(store, store, droppingNotifier{}, clock, NewDrawHub(), newTestRand(41))
	ctx := context.Background()

	user, err := users.SyncUser(ctx, 1, "user1", "User 1")
	require.NoError(t, err)

	draw, err := gs.Create(ctx, "700", time.Hour, 1, "")
	require.NoError(t, err)
	_, err = gs.Join(ctx, draw.ID, user.TelegramID, user.DisplayName())
	require.NoError(t, err)

	clock.Advance(time.Hour)
	require.NoError(t, gs.Finalize(ctx, draw.ID))

	// A notifier that delivers nothing must not change ledger outcomes.
	got, err := store.GetUser(ctx, user.TelegramID)
	require.NoError(t, err)
	assert.Equal(t, repository.StartingBalance+int64(700), got.Balance)
}

func TestGiveawayService_ConcurrentJoins(t *testing.T) {
	f := newGiveawayFixture(t, 13)
	ctx := context.Background()

	const joiners = 50
	participants := f.registerUsers(t, joiners)
	draw, err := f.giveaway.Create(ctx, "5000", time.Hour, 3, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, p := range participants {
		wg.Add(1)
		go func(p model.Participant) {
			defer wg.Done()
			_, err := f.giveaway.Join(ctx, draw.ID, p.TelegramID, p.Name)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	stored, err := f.store.GetDraw(ctx, draw.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Participants, joiners)

	seen := make(map[int64]bool)
	for _, p := range stored.Participants {
		assert.False(t, seen[p.TelegramID], "participant %d recorded twice", p.TelegramID)
		seen[p.TelegramID] = true
	}
}

func TestGiveawayService_ConcurrentJoinsSameUser(t *testing.T) {
	f := newGiveawayFixture(t, 17)
	ctx := context.Background()

	participants := f.registerUsers(t, 1)
	draw, err := f.giveaway.Create(ctx, "100", time.Hour, 1, "")
	require.NoError(t, err)

	const attempts = 20
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.giveaway.Join(ctx, draw.ID, participants[0].TelegramID, participants[0].Name)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, duplicates int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrAlreadyJoined):
			duplicates++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, duplicates)
}

func TestGiveawayService_Delete(t *testing.T) {
	f := newGiveawayFixture(t, 21)
	ctx := context.Background()

	draw, err := f.giveaway.Create(ctx, "300", time.Hour, 1, "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.giveaway.Delete(ctx, draw.ID), ErrDrawStillActive)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.giveaway.Finalize(ctx, draw.ID))

	require.NoError(t, f.giveaway.Delete(ctx, draw.ID))
	assert.ErrorIs(t, f.giveaway.Delete(ctx, draw.ID), ErrDrawNotFound)
}

func TestGiveawayService_ListActiveExcludesExpired(t *testing.T) {
	f := newGiveawayFixture(t, 23)
	ctx := context.Background()

	short, err := f.giveaway.Create(ctx, "100", time.Minute, 1, "")
	require.NoError(t, err)
	long, err := f.giveaway.Create(ctx, "200", time.Hour, 1, "")
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)

	active, err := f.giveaway.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, long.ID, active[0].ID)
	assert.NotEqual(t, short.ID, active[0].ID)
}

func TestGiveawayService_JoinPublishesEvents(t *testing.T) {
	f := newGiveawayFixture(t, 29)
	ctx := context.Background()

	id, events := f.giveaway.Events().Subscribe()
	defer f.giveaway.Events().Unsubscribe(id)

	participants := f.registerUsers(t, 1)
	draw, err := f.giveaway.Create(ctx, "100", time.Hour, 1, "")
	require.NoError(t, err)
	f.joinAll(t, draw.ID, participants)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.giveaway.Finalize(ctx, draw.ID))

	joined := <-events
	assert.Equal(t, model.DrawEventJoined, joined.Type)
	assert.Equal(t, draw.ID, joined.DrawID)
	assert.Equal(t, 1, joined.ParticipantsCount)

	finished := <-events
	assert.Equal(t, model.DrawEventFinished, finished.Type)
	assert.Equal(t, draw.ID, finished.DrawID)
}

func TestGiveawayService_SchedulePending(t *testing.T) {
	f := newGiveawayFixture(t, 31)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	participants := f.registerUsers(t, 2)
	draw, err := f.giveaway.Create(ctx, "800", 30*time.Minute, 2, "")
	require.NoError(t, err)
	f.joinAll(t, draw.ID, participants)

	// Simulate a restart: a fresh service over the same store re-arms the
	// deadline from persisted state.
	restarted := NewGiveawayService(f.store, f.store, f.notifier, f.clock, NewDrawHub(), newTestRand(31))
	require.NoError(t, restarted.SchedulePending(ctx))

	go restarted.Scheduler().Run(ctx)

	f.clock.Advance(31 * time.Minute)

	// Keep nudging the clock so the loop cannot miss a wakeup while re-arming.
	require.Eventually(t, func() bool {
		f.clock.Advance(time.Minute)
		return len(f.notifier.byKind(model.NotifyDrawFinished)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	for _, p := range participants {
		assert.Equal(t, repository.StartingBalance+int64(400), f.balance(t, p.TelegramID))
	}
}

func TestGiveawayService_SelectionFairness(t *testing.T) {
	f := newGiveawayFixture(t, 37)
	ctx := context.Background()

	const (
		users  = 5
		rounds = 2000
	)
	participants := f.registerUsers(t, users)

	wins := make(map[int64]int)
	for i := 0; i < rounds; i++ {
		draw, err := f.giveaway.Create(ctx, fmt.Sprintf("prize %d", i), time.Hour, 1, "")
		require.NoError(t, err)
		f.joinAll(t, draw.ID, participants)

		f.clock.Advance(2 * time.Hour)
		require.NoError(t, f.giveaway.Finalize(ctx, draw.ID))

		stored, err := f.store.GetDraw(ctx, draw.ID)
		require.NoError(t, err)
		require.Len(t, stored.Winners, 1)
		wins[stored.Winners[0].TelegramID]++
	}

	// Expected 400 wins per user; allow a generous band for a seeded run.
	for _, p := range participants {
		assert.InDelta(t, rounds/users, wins[p.TelegramID], 100,
			"user %d won %d of %d rounds", p.TelegramID, wins[p.TelegramID], rounds)
	}
}
