package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUser_DisplayName(t *testing.T) {
	tests := []struct {
		name     string
		user     User
		expected string
	}{
		{name: "handle wins", user: User{Username: "durov", FirstName: "Pavel"}, expected: "@durov"},
		{name: "first name fallback", user: User{FirstName: "Pavel"}, expected: "Pavel"},
		{name: "nothing known", user: User{}, expected: "Anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.user.DisplayName())
		})
	}
}

func TestUser_IsVip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-time.Hour)

	assert.False(t, (&User{}).IsVip(now))
	assert.True(t, (&User{VipExpiry: &future}).IsVip(now))
	assert.False(t, (&User{VipExpiry: &past}).IsVip(now))
}

func TestPromoCode_Exhausted(t *testing.T) {
	assert.False(t, (&PromoCode{MaxUses: 3, UsedCount: 2}).Exhausted())
	assert.True(t, (&PromoCode{MaxUses: 3, UsedCount: 3}).Exhausted())
}
