package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/repository"
)

type UserService struct {
	users    UserRepository
	notifier Notifier
}

func NewUserService(users UserRepository, notifier Notifier) *UserService {
	return &UserService{
		users:    users,
		notifier: notifier,
	}
}

// SyncUser creates the user lazily on first contact and refreshes the name
// snapshot on every later one.
func (s *UserService) SyncUser(ctx context.Context, telegramID int64, username, firstName string) (*model.User, error) {
	user, err := s.users.SyncUser(ctx, telegramID, strings.ToLower(username), firstName)
	if err != nil {
		return nil, fmt.Errorf("failed to sync user: %w", err)
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.users.GetUser(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// Grant credits an admin-issued amount to the user found by handle and
// notifies them.
func (s *UserService) Grant(ctx context.Context, username string, amount int64) (*model.User, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: grant amount must be positive", ErrInvalidInput)
	}

	username = strings.ToLower(strings.TrimPrefix(username, "@"))
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	balance, err := s.users.CreditBalance(ctx, user.TelegramID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}
	user.Balance = balance

	s.notifier.Notify(ctx, model.Notification{
		Kind:      model.NotifyAdminGrant,
		Recipient: user.TelegramID,
		Amount:    amount,
		Balance:   balance,
	})

	return user, nil
}

func (s *UserService) CountUsers(ctx context.Context) (int, error) {
	count, err := s.users.CountUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
