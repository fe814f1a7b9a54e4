package service

import (
	"context"
	"testing"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/repository"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestUserService_SyncUser(t *testing.T) {
	mockRepo := &mocks.MockUserRepository{}
	service := NewUserService(mockRepo, &recordingNotifier{})

	// The username is stored lowercased regardless of how Telegram sends it.
	mockRepo.On("SyncUser", mock.Anything, int64(123), "durov", "Pavel").
		Return(&model.User{TelegramID: 123, Username: "durov", FirstName: "Pavel", Balance: repository.StartingBalance}, nil)

	user, err := service.SyncUser(context.Background(), 123, "Durov", "Pavel")
	require.NoError(t, err)
	assert.Equal(t, "durov", user.Username)
	assert.Equal(t, repository.StartingBalance, user.Balance)
	mockRepo.AssertExpectations(t)
}

func TestUserService_GetUser(t *testing.T) {
	tests := []struct {
		name          string
		telegramID    int64
		mockSetup     func(*mocks.MockUserRepository)
		expectedError error
	}{
		{
			name:       "found",
			telegramID: 123,
			mockSetup: func(m *mocks.MockUserRepository) {
				m.On("GetUser", mock.Anything, int64(123)).
					Return(&model.User{TelegramID: 123}, nil)
			},
		},
		{
			name:       "not found",
			telegramID: 404,
			mockSetup: func(m *mocks.MockUserRepository) {
				m.On("GetUser", mock.Anything, int64(404)).
					Return(nil, repository.ErrNotFound)
			},
			expectedError: ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &mocks.MockUserRepository{}
			tt.mockSetup(mockRepo)
			service := NewUserService(mockRepo, &recordingNotifier{})

			user, err := service.GetUser(context.Background(), tt.telegramID)
			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.telegramID, user.TelegramID)
		})
	}
}

func TestUserService_Grant(t *testing.T) {
	tests := []struct {
		name          string
		username      string
		amount        int64
		mockSetup     func(*mocks.MockUserRepository)
		expectedError error
	}{
		{
			name:     "handle with at-sign and mixed case",
			username: "@Durov",
			amount:   500,
			mockSetup: func(m *mocks.MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "durov").
					Return(&model.User{TelegramID: 123, Username: "durov", Balance: 1000}, nil)
				m.On("CreditBalance", mock.Anything, int64(123), int64(500)).
					Return(int64(1500), nil)
			},
		},
		{
			name:          "non-positive amount",
			username:      "durov",
			amount:        0,
			mockSetup:     func(m *mocks.MockUserRepository) {},
			expectedError: ErrInvalidInput,
		},
		{
			name:     "unknown handle",
			username: "ghost",
			amount:   500,
			mockSetup: func(m *mocks.MockUserRepository) {
				m.On("FindByUsername", mock.Anything, "ghost").
					Return(nil, repository.ErrNotFound)
			},
			expectedError: ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := &mocks.MockUserRepository{}
			tt.mockSetup(mockRepo)
			notifier := &recordingNotifier{}
			service := NewUserService(mockRepo, notifier)

			user, err := service.Grant(context.Background(), tt.username, tt.amount)
			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1500), user.Balance)

			notes := notifier.byKind(model.NotifyAdminGrant)
			require.Len(t, notes, 1)
			assert.Equal(t, user.TelegramID, notes[0].Recipient)
			assert.Equal(t, tt.amount, notes[0].Amount)
			assert.Equal(t, int64(1500), notes[0].Balance)

			mockRepo.AssertExpectations(t)
		})
	}
}
