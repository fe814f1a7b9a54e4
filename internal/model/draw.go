package model

import (
	"strconv"
	"time"
)

type DrawState string

const (
	DrawOpen      DrawState = "open"
	DrawFinalized DrawState = "finalized"
)

type Draw struct {
	ID            int64
	Prize         string
	WinnersWanted int
	EndsAt        time.Time
	ImageURL      string
	Participants  []Participant
	Winners       []Participant
	State         DrawState
	CreatedAt     time.Time
	FinishedAt    *time.Time
}

// Participant is a snapshot taken at join time; the name is not re-synced
// when the user later changes it.
type Participant struct {
	TelegramID int64
	Name       string
}

// MoneyPrize parses the prize descriptor. A descriptor that is a plain
// non-negative integer is a coin amount split between winners; anything else
// is an item label handed out manually by the admin.
func (d *Draw) MoneyPrize() (int64, bool) {
	amount, err := strconv.ParseInt(d.Prize, 10, 64)
	if err != nil || amount < 0 {
		return 0, false
	}
	return amount, true
}

func (d *Draw) HasParticipant(telegramID int64) bool {
	for _, p := range d.Participants {
		if p.TelegramID == telegramID {
			return true
		}
	}
	return false
}

// DrawSummary is the privacy-preserving view of an open draw served to a
// general audience: counts only, no participant identities.
type DrawSummary struct {
	ID                int64
	Prize             string
	IsMoney           bool
	WinnersWanted     int
	EndsAt            time.Time
	ImageURL          string
	ParticipantsCount int
}

func (d *Draw) Summary() DrawSummary {
	_, isMoney := d.MoneyPrize()
	return DrawSummary{
		ID:                d.ID,
		Prize:             d.Prize,
		IsMoney:           isMoney,
		WinnersWanted:     d.WinnersWanted,
		EndsAt:            d.EndsAt,
		ImageURL:          d.ImageURL,
		ParticipantsCount: len(d.Participants),
	}
}
