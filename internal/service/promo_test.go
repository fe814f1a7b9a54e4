package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/repository"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPromoFixture(t *testing.T) (*PromoService, *memory.Store, *fakeClock) {
	t.Helper()

	store := memory.New()
	clock := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewPromoService(store, clock), store, clock
}

func TestNormalizePromoCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "welcome", expected: "WELCOME"},
		{input: "  Welcome2025  ", expected: "WELCOME2025"},
		{input: "VIP-ONLY", expected: "VIP-ONLY"},
		{input: "   ", expected: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizePromoCode(tt.input))
	}
}

func TestPromoService_CreatePromo(t *testing.T) {
	svc, _, clock := newPromoFixture(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		code        string
		reward      int64
		maxUses     int
		vipOnly     bool
		expectedErr error
	}{
		{name: "valid", code: "welcome", reward: 500, maxUses: 10},
		{name: "valid vip", code: "gold", reward: 5000, maxUses: 3, vipOnly: true},
		{name: "empty code", code: "  ", reward: 500, maxUses: 10, expectedErr: ErrInvalidInput},
		{name: "zero reward", code: "free", reward: 0, maxUses: 10, expectedErr: ErrInvalidInput},
		{name: "negative reward", code: "debt", reward: -5, maxUses: 10, expectedErr: ErrInvalidInput},
		{name: "zero cap", code: "none", reward: 100, maxUses: 0, expectedErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			promo, err := svc.CreatePromo(ctx, tt.code, tt.reward, tt.maxUses, tt.vipOnly)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, NormalizePromoCode(tt.code), promo.Code)
			assert.Equal(t, tt.reward, promo.Reward)
			assert.Equal(t, tt.maxUses, promo.MaxUses)
			assert.Equal(t, tt.vipOnly, promo.VipOnly)
			assert.Equal(t, clock.Now(), promo.CreatedAt)
		})
	}
}

func TestPromoService_Redeem(t *testing.T) {
	svc, store, _ := newPromoFixture(t)
	ctx := context.Background()

	_, err := svc.CreatePromo(ctx, "WELCOME", 500, 2, false)
	require.NoError(t, err)
	_, err = svc.CreatePromo(ctx, "GOLD", 5000, 10, true)
	require.NoError(t, err)

	t.Run("happy path credits balance", func(t *testing.T) {
		reward, balance, err := svc.Redeem(ctx, "welcome", 100, false)
		require.NoError(t, err)
		assert.Equal(t, int64(500), reward)
		assert.Equal(t, repository.StartingBalance+int64(500), balance)
	})

	t.Run("second redemption by same user rejected", func(t *testing.T) {
		_, _, err := svc.Redeem(ctx, "  Welcome ", 100, false)
		assert.ErrorIs(t, err, ErrPromoAlreadyUsed)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, _, err := svc.Redeem(ctx, "NOPE", 100, false)
		assert.ErrorIs(t, err, ErrPromoNotFound)
	})

	t.Run("empty code", func(t *testing.T) {
		_, _, err := svc.Redeem(ctx, "   ", 100, false)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("vip gate", func(t *testing.T) {
		_, _, err := svc.Redeem(ctx, "GOLD", 101, false)
		assert.ErrorIs(t, err, ErrVipRequired)

		reward, _, err := svc.Redeem(ctx, "GOLD", 101, true)
		require.NoError(t, err)
		assert.Equal(t, int64(5000), reward)
	})

	t.Run("exhausted after cap", func(t *testing.T) {
		_, _, err := svc.Redeem(ctx, "WELCOME", 102, false)
		require.NoError(t, err)

		_, _, err = svc.Redeem(ctx, "WELCOME", 103, false)
		assert.ErrorIs(t, err, ErrPromoExhausted)
	})

	promos, err := store.ListPromos(ctx)
	require.NoError(t, err)
	for _, p := range promos {
		if p.Code == "WELCOME" {
			assert.Equal(t, 2, p.UsedCount)
			assert.True(t, p.Exhausted())
		}
	}
}

func TestPromoService_RedeemConcurrentCap(t *testing.T) {
	svc, store, _ := newPromoFixture(t)
	ctx := context.Background()

	const (
		useCap   = 5
		attempts = 40
	)
	_, err := svc.CreatePromo(ctx, "RUSH", 1000, useCap, false)
	require.NoError(t, err)

	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(telegramID int64) {
			defer wg.Done()
			_, _, err := svc.Redeem(ctx, "RUSH", telegramID, false)
			results <- err
		}(int64(i + 1))
	}
	wg.Wait()
	close(results)

	var successes, exhausted int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrPromoExhausted):
			exhausted++
		}
	}
	assert.Equal(t, useCap, successes)
	assert.Equal(t, attempts-useCap, exhausted)

	promos, err := store.ListPromos(ctx)
	require.NoError(t, err)
	require.Len(t, promos, 1)
	assert.Equal(t, useCap, promos[0].UsedCount)
}
