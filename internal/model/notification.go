package model

// NotificationKind identifies the intent behind an outbound message. The
// engines emit intents; rendering and delivery belong to the notifier.
type NotificationKind string

const (
	NotifyWinnerMoney       NotificationKind = "winner_money"
	NotifyWinnerItem        NotificationKind = "winner_item"
	NotifyDrawFinished      NotificationKind = "draw_finished"
	NotifyDrawEmpty         NotificationKind = "draw_empty"
	NotifyReferralBonus     NotificationKind = "referral_bonus"
	NotifyReferralMilestone NotificationKind = "referral_milestone"
	NotifyAdminGrant        NotificationKind = "admin_grant"
)

// Notification is a typed delivery intent. Recipient 0 addresses the admin
// channel. Delivery is best-effort and never feeds back into ledger state.
type Notification struct {
	Kind         NotificationKind
	Recipient    int64
	DrawID       int64
	Prize        string
	Amount       int64
	Balance      int64
	ReferralName string
	Winners      []Participant
	Participants []Participant
}

// DrawEvent is broadcast to live mini-app clients watching open draws.
type DrawEvent struct {
	Type              string `json:"type"`
	DrawID            int64  `json:"draw_id"`
	ParticipantsCount int    `json:"participants_count,omitempty"`
}

const (
	DrawEventJoined   = "participant_joined"
	DrawEventFinished = "draw_finished"
)
