package model

import "time"

type PromoCode struct {
	Code      string
	Reward    int64
	MaxUses   int
	UsedCount int
	VipOnly   bool
	CreatedAt time.Time
}

func (p *PromoCode) Exhausted() bool {
	return p.UsedCount >= p.MaxUses
}
