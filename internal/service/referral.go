package service

import (
	"context"
	"fmt"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"
)

const (
	// ReferralBonus is credited to the inviter for every attributed referral.
	ReferralBonus int64 = 1000
	// MilestoneReferrals is the referral count that triggers the one-time
	// milestone bonus.
	MilestoneReferrals = 3
	MilestoneBonus     int64 = 2000
)

type ReferralService struct {
	users    UserRepository
	notifier Notifier
	clock    Clock
}

func NewReferralService(users UserRepository, notifier Notifier, clock Clock) *ReferralService {
	return &ReferralService{
		users:    users,
		notifier: notifier,
		clock:    clock,
	}
}

// AttributeReferral attributes a new user to an inviter exactly once and
// credits the tiered bonus. It reports false without error for self-referrals
// and for users whose referrer was already recorded, so replays are harmless.
func (s *ReferralService) AttributeReferral(ctx context.Context, newUserID, inviterID int64, displayName string) (bool, error) {
	if newUserID == inviterID {
		return false, nil
	}

	ok, err := s.users.SetReferrer(ctx, newUserID, inviterID)
	if err != nil {
		return false, fmt.Errorf("failed to set referrer: %w", err)
	}
	if !ok {
		return false, nil
	}

	ref := model.Referral{Name: displayName, JoinedAt: s.clock.Now()}
	refCount, balance, err := s.users.AddReferral(ctx, inviterID, ref, ReferralBonus)
	if err != nil {
		return false, fmt.Errorf("failed to credit referral bonus: %w", err)
	}

	logger.Logger().Info("referral attributed",
		zap.Int64("inviter_id", inviterID),
		zap.Int64("new_user_id", newUserID),
		zap.Int("referral_count", refCount))

	if refCount >= MilestoneReferrals {
		granted, err := s.users.ClaimMilestone(ctx, inviterID, MilestoneBonus)
		if err != nil {
			return false, fmt.Errorf("failed to claim milestone bonus: %w", err)
		}
		if granted {
			s.notifier.Notify(ctx, model.Notification{
				Kind:      model.NotifyReferralMilestone,
				Recipient: inviterID,
				Amount:    MilestoneBonus,
				Balance:   balance + MilestoneBonus,
			})
			return true, nil
		}
	}

	s.notifier.Notify(ctx, model.Notification{
		Kind:         model.NotifyReferralBonus,
		Recipient:    inviterID,
		Amount:       ReferralBonus,
		Balance:      balance,
		ReferralName: displayName,
	})

	return true, nil
}
