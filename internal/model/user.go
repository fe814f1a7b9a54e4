package model

import "time"

type User struct {
	TelegramID       int64
	Username         string
	FirstName        string
	Balance          int64
	ReferrerID       *int64
	Referrals        []Referral
	ReferralEarnings int64
	UsedPromoCodes   []string
	MilestoneGranted bool
	VipExpiry        *time.Time
	RegistrationDate time.Time
}

type Referral struct {
	Name     string
	JoinedAt time.Time
}

// IsVip reports whether the user's VIP status is active at the given moment.
func (u *User) IsVip(now time.Time) bool {
	return u.VipExpiry != nil && u.VipExpiry.After(now)
}

func (u *User) HasUsedPromo(code string) bool {
	for _, c := range u.UsedPromoCodes {
		if c == code {
			return true
		}
	}
	return false
}

// DisplayName is the name snapshot stored on draw participation, "@username"
// when the user has a handle and the first name otherwise.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return "Anonymous"
}
