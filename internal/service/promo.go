package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/repository"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"
)

type PromoService struct {
	promos PromoRepository
	clock  Clock
}

func NewPromoService(promos PromoRepository, clock Clock) *PromoService {
	return &PromoService{
		promos: promos,
		clock:  clock,
	}
}

// NormalizePromoCode maps user input onto the stored key: codes are
// case-insensitive and surrounding whitespace is ignored.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *PromoService) CreatePromo(ctx context.Context, code string, reward int64, maxUses int, vipOnly bool) (*model.PromoCode, error) {
	code = NormalizePromoCode(code)
	if code == "" || reward <= 0 || maxUses <= 0 {
		return nil, fmt.Errorf("%w: promo code needs a code, a positive reward and a positive use cap", ErrInvalidInput)
	}

	promo := &model.PromoCode{
		Code:      code,
		Reward:    reward,
		MaxUses:   maxUses,
		VipOnly:   vipOnly,
		CreatedAt: s.clock.Now(),
	}
	if err := s.promos.CreatePromo(ctx, promo); err != nil {
		return nil, fmt.Errorf("failed to create promo code: %w", err)
	}

	logger.Logger().Info("promo code created",
		zap.String("code", code),
		zap.Int64("reward", reward),
		zap.Int("max_uses", maxUses),
		zap.Bool("vip_only", vipOnly))

	return promo, nil
}

// Redeem applies a one-time redemption. The cap check and increment are
// atomic in the store, so the use cap holds under concurrent redemptions.
func (s *PromoService) Redeem(ctx context.Context, code string, telegramID int64, isVip bool) (reward int64, newBalance int64, err error) {
	code = NormalizePromoCode(code)
	if code == "" {
		return 0, 0, fmt.Errorf("%w: empty promo code", ErrInvalidInput)
	}

	reward, newBalance, err = s.promos.RedeemPromo(ctx, code, telegramID, isVip)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return 0, 0, ErrPromoNotFound
		case errors.Is(err, repository.ErrVipOnly):
			return 0, 0, ErrVipRequired
		case errors.Is(err, repository.ErrPromoExhausted):
			return 0, 0, ErrPromoExhausted
		case errors.Is(err, repository.ErrPromoUsed):
			return 0, 0, ErrPromoAlreadyUsed
		}
		return 0, 0, fmt.Errorf("failed to redeem promo code: %w", err)
	}

	return reward, newBalance, nil
}

func (s *PromoService) ListPromos(ctx context.Context) ([]*model.PromoCode, error) {
	promos, err := s.promos.ListPromos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list promo codes: %w", err)
	}
	return promos, nil
}
