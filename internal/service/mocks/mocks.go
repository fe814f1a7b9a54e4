package mocks

import (
	"context"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) SyncUser(ctx context.Context, telegramID int64, username, firstName string) (*model.User, error) {
	args := m.Called(ctx, telegramID, username, firstName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) CreditBalance(ctx context.Context, telegramID int64, amount int64) (int64, error) {
	args := m.Called(ctx, telegramID, amount)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) SetReferrer(ctx context.Context, telegramID, referrerID int64) (bool, error) {
	args := m.Called(ctx, telegramID, referrerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) AddReferral(ctx context.Context, inviterID int64, ref model.Referral, bonus int64) (int, int64, error) {
	args := m.Called(ctx, inviterID, ref, bonus)
	return args.Int(0), args.Get(1).(int64), args.Error(2)
}

func (m *MockUserRepository) ClaimMilestone(ctx context.Context, inviterID int64, bonus int64) (bool, error) {
	args := m.Called(ctx, inviterID, bonus)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) CountUsers(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
