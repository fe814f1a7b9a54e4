package service

import (
	"context"
	"errors"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
)

var (
	ErrDrawNotFound    = errors.New("draw not found or already finished")
	ErrAlreadyJoined   = errors.New("already joined this draw")
	ErrDrawStillActive = errors.New("draw is still active")

	ErrPromoNotFound    = errors.New("promo code not found")
	ErrPromoAlreadyUsed = errors.New("promo code already used by this user")
	ErrPromoExhausted   = errors.New("promo code is no longer available")
	ErrVipRequired      = errors.New("promo code is VIP only")

	ErrUserNotFound = errors.New("user not found")
	ErrInvalidInput = errors.New("invalid input")
)

type Service struct {
	*UserService
	*GiveawayService
	*PromoService
	*ReferralService
}

func NewService(users *UserService, giveaways *GiveawayService, promos *PromoService, referrals *ReferralService) *Service {
	return &Service{
		UserService:     users,
		GiveawayService: giveaways,
		PromoService:    promos,
		ReferralService: referrals,
	}
}

type UserRepository interface {
	// SyncUser creates the user on first contact with the starting balance
	// and refreshes the name fields on every later contact.
	SyncUser(ctx context.Context, telegramID int64, username, firstName string) (*model.User, error)
	GetUser(ctx context.Context, telegramID int64) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	// CreditBalance atomically adds amount to the user's balance and returns
	// the new balance.
	CreditBalance(ctx context.Context, telegramID int64, amount int64) (int64, error)
	// SetReferrer records the referrer exactly once; it reports false when a
	// referrer was already recorded.
	SetReferrer(ctx context.Context, telegramID, referrerID int64) (bool, error)
	// AddReferral appends the referral record to the inviter, credits the
	// bonus and earnings counter in one step, and returns the inviter's new
	// referral count and balance.
	AddReferral(ctx context.Context, inviterID int64, ref model.Referral, bonus int64) (int, int64, error)
	// ClaimMilestone credits the one-time milestone bonus and sets the flag;
	// it reports false when the milestone was already granted.
	ClaimMilestone(ctx context.Context, inviterID int64, bonus int64) (bool, error)
	CountUsers(ctx context.Context) (int, error)
}

type DrawRepository interface {
	// CreateDraw stores the draw in the active collection and returns its
	// assigned sequential id.
	CreateDraw(ctx context.Context, draw *model.Draw) (int64, error)
	GetDraw(ctx context.Context, drawID int64) (*model.Draw, error)
	// AddParticipant atomically rejects duplicates and appends the snapshot.
	// It fails with ErrNotFound when the draw is absent and ErrDrawClosed
	// when it is finalized or past its deadline at the given moment.
	AddParticipant(ctx context.Context, drawID int64, p model.Participant, now time.Time) (int, error)
	// FinalizeDraw flips the draw to finalized exactly once, moves it to the
	// archive and returns the frozen draw. A second call fails with
	// ErrDrawClosed.
	FinalizeDraw(ctx context.Context, drawID int64, finishedAt time.Time) (*model.Draw, error)
	SetWinners(ctx context.Context, drawID int64, winners []model.Participant) error
	ListActive(ctx context.Context, now time.Time) ([]model.DrawSummary, error)
	ListOpen(ctx context.Context) ([]*model.Draw, error)
	ListFinished(ctx context.Context) ([]*model.Draw, error)
	DeleteFinished(ctx context.Context, drawID int64) error
}

type PromoRepository interface {
	CreatePromo(ctx context.Context, promo *model.PromoCode) error
	// RedeemPromo performs the whole redemption atomically: cap check,
	// per-user reuse check, used-count increment and balance credit.
	RedeemPromo(ctx context.Context, code string, telegramID int64, isVip bool) (reward int64, newBalance int64, err error)
	ListPromos(ctx context.Context) ([]*model.PromoCode, error)
}

// Notifier delivers notification intents. Delivery is fire-and-forget:
// implementations swallow transport failures, the caller never observes them.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification)
}

// MembershipOracle answers channel membership questions best-effort; provider
// errors read as false.
type MembershipOracle interface {
	IsMember(ctx context.Context, telegramID int64, channel string) bool
	IsSubscribed(ctx context.Context, telegramID int64, channel string) bool
}
