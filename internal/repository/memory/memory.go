// Package memory is an in-memory implementation of the store interfaces.
// Each user, draw and promo code is its own unit of mutual exclusion, so
// concurrent operations on different entities never serialize against each
// other. It backs the service tests and small deployments without postgres.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/repository"
)

type userEntry struct {
	mu   sync.Mutex
	user model.User
}

type drawEntry struct {
	mu   sync.Mutex
	draw model.Draw
}

type promoEntry struct {
	mu    sync.Mutex
	promo model.PromoCode
}

type Store struct {
	mu      sync.RWMutex
	users   map[int64]*userEntry
	active  map[int64]*drawEntry
	archive map[int64]*drawEntry
	promos  map[string]*promoEntry
	drawSeq int64
}

func New() *Store {
	return &Store{
		users:   make(map[int64]*userEntry),
		active:  make(map[int64]*drawEntry),
		archive: make(map[int64]*drawEntry),
		promos:  make(map[string]*promoEntry),
	}
}

func (s *Store) getOrCreateUser(telegramID int64) *userEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.users[telegramID]
	if !ok {
		entry = &userEntry{user: model.User{
			TelegramID:       telegramID,
			Balance:          repository.StartingBalance,
			RegistrationDate: time.Now(),
		}}
		s.users[telegramID] = entry
	}
	return entry
}

func (s *Store) lookupUser(telegramID int64) (*userEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.users[telegramID]
	return entry, ok
}

func copyUser(u model.User) *model.User {
	out := u
	out.Referrals = append([]model.Referral(nil), u.Referrals...)
	out.UsedPromoCodes = append([]string(nil), u.UsedPromoCodes...)
	return &out
}

func copyDraw(d model.Draw) *model.Draw {
	out := d
	out.Participants = append([]model.Participant(nil), d.Participants...)
	out.Winners = append([]model.Participant(nil), d.Winners...)
	return &out
}

func (s *Store) SyncUser(_ context.Context, telegramID int64, username, firstName string) (*model.User, error) {
	entry := s.getOrCreateUser(telegramID)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if username != "" {
		entry.user.Username = username
	}
	if firstName != "" {
		entry.user.FirstName = firstName
	}
	return copyUser(entry.user), nil
}

func (s *Store) GetUser(_ context.Context, telegramID int64) (*model.User, error) {
	entry, ok := s.lookupUser(telegramID)
	if !ok {
		return nil, repository.ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return copyUser(entry.user), nil
}

func (s *Store) FindByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.users {
		entry.mu.Lock()
		match := entry.user.Username == username
		u := copyUser(entry.user)
		entry.mu.Unlock()
		if match {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) CreditBalance(_ context.Context, telegramID int64, amount int64) (int64, error) {
	entry, ok := s.lookupUser(telegramID)
	if !ok {
		return 0, repository.ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.user.Balance += amount
	return entry.user.Balance, nil
}

func (s *Store) SetReferrer(_ context.Context, telegramID, referrerID int64) (bool, error) {
	entry := s.getOrCreateUser(telegramID)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.user.ReferrerID != nil {
		return false, nil
	}
	entry.user.ReferrerID = &referrerID
	return true, nil
}

func (s *Store) AddReferral(_ context.Context, inviterID int64, ref model.Referral, bonus int64) (int, int64, error) {
	entry := s.getOrCreateUser(inviterID)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.user.Referrals = append(entry.user.Referrals, ref)
	entry.user.Balance += bonus
	entry.user.ReferralEarnings += bonus
	return len(entry.user.Referrals), entry.user.Balance, nil
}

func (s *Store) ClaimMilestone(_ context.Context, inviterID int64, bonus int64) (bool, error) {
	entry, ok := s.lookupUser(inviterID)
	if !ok {
		return false, repository.ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.user.MilestoneGranted {
		return false, nil
	}
	entry.user.MilestoneGranted = true
	entry.user.Balance += bonus
	return true, nil
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *Store) CreateDraw(_ context.Context, d *model.Draw) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drawSeq++
	draw := *copyDraw(*d)
	draw.ID = s.drawSeq
	draw.State = model.DrawOpen
	s.active[draw.ID] = &drawEntry{draw: draw}
	return draw.ID, nil
}

func (s *Store) lookupDraw(drawID int64) (*drawEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if entry, ok := s.active[drawID]; ok {
		return entry, true
	}
	entry, ok := s.archive[drawID]
	return entry, ok
}

func (s *Store) GetDraw(_ context.Context, drawID int64) (*model.Draw, error) {
	entry, ok := s.lookupDraw(drawID)
	if !ok {
		return nil, repository.ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return copyDraw(entry.draw), nil
}

func (s *Store) AddParticipant(_ context.Context, drawID int64, p model.Participant, now time.Time) (int, error) {
	s.mu.RLock()
	entry, ok := s.active[drawID]
	s.mu.RUnlock()
	if !ok {
		return 0, repository.ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.draw.State != model.DrawOpen || !entry.draw.EndsAt.After(now) {
		return 0, repository.ErrDrawClosed
	}
	if entry.draw.HasParticipant(p.TelegramID) {
		return 0, repository.ErrAlreadyJoined
	}

	entry.draw.Participants = append(entry.draw.Participants, p)
	return len(entry.draw.Participants), nil
}

func (s *Store) FinalizeDraw(_ context.Context, drawID int64, finishedAt time.Time) (*model.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.active[drawID]
	if !ok {
		if _, archived := s.archive[drawID]; archived {
			return nil, repository.ErrDrawClosed
		}
		return nil, repository.ErrNotFound
	}

	// The state flip happens under the entry lock so a racing join either
	// lands before the participant list freezes or gets rejected.
	entry.mu.Lock()
	entry.draw.State = model.DrawFinalized
	entry.draw.FinishedAt = &finishedAt
	frozen := copyDraw(entry.draw)
	entry.mu.Unlock()

	delete(s.active, drawID)
	s.archive[drawID] = entry
	return frozen, nil
}

func (s *Store) SetWinners(_ context.Context, drawID int64, winners []model.Participant) error {
	entry, ok := s.lookupDraw(drawID)
	if !ok {
		return repository.ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.draw.Winners = append([]model.Participant(nil), winners...)
	return nil
}

func (s *Store) ListActive(_ context.Context, now time.Time) ([]model.DrawSummary, error) {
	s.mu.RLock()
	entries := make([]*drawEntry, 0, len(s.active))
	for _, entry := range s.active {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	summaries := make([]model.DrawSummary, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.draw.State == model.DrawOpen && entry.draw.EndsAt.After(now) {
			summaries = append(summaries, entry.draw.Summary())
		}
		entry.mu.Unlock()
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

func (s *Store) ListOpen(_ context.Context) ([]*model.Draw, error) {
	s.mu.RLock()
	entries := make([]*drawEntry, 0, len(s.active))
	for _, entry := range s.active {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	draws := make([]*model.Draw, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		draws = append(draws, copyDraw(entry.draw))
		entry.mu.Unlock()
	}

	sort.Slice(draws, func(i, j int) bool { return draws[i].ID < draws[j].ID })
	return draws, nil
}

func (s *Store) ListFinished(_ context.Context) ([]*model.Draw, error) {
	s.mu.RLock()
	entries := make([]*drawEntry, 0, len(s.archive))
	for _, entry := range s.archive {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	draws := make([]*model.Draw, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		draws = append(draws, copyDraw(entry.draw))
		entry.mu.Unlock()
	}

	sort.Slice(draws, func(i, j int) bool {
		return draws[i].FinishedAt.After(*draws[j].FinishedAt)
	})
	return draws, nil
}

func (s *Store) DeleteFinished(_ context.Context, drawID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[drawID]; ok {
		return repository.ErrStillActive
	}
	if _, ok := s.archive[drawID]; !ok {
		return repository.ErrNotFound
	}
	delete(s.archive, drawID)
	return nil
}

func (s *Store) CreatePromo(_ context.Context, promo *model.PromoCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promos[promo.Code] = &promoEntry{promo: *promo}
	return nil
}

// RedeemPromo locks the promo entry first and the user entry second; every
// cross-entity path takes locks in that order.
func (s *Store) RedeemPromo(_ context.Context, code string, telegramID int64, isVip bool) (int64, int64, error) {
	s.mu.RLock()
	entry, ok := s.promos[code]
	s.mu.RUnlock()
	if !ok {
		return 0, 0, repository.ErrNotFound
	}

	userEntry := s.getOrCreateUser(telegramID)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.promo.VipOnly && !isVip {
		return 0, 0, repository.ErrVipOnly
	}
	if entry.promo.Exhausted() {
		return 0, 0, repository.ErrPromoExhausted
	}

	userEntry.mu.Lock()
	defer userEntry.mu.Unlock()

	for _, used := range userEntry.user.UsedPromoCodes {
		if strings.EqualFold(used, code) {
			return 0, 0, repository.ErrPromoUsed
		}
	}

	entry.promo.UsedCount++
	userEntry.user.UsedPromoCodes = append(userEntry.user.UsedPromoCodes, code)
	userEntry.user.Balance += entry.promo.Reward
	return entry.promo.Reward, userEntry.user.Balance, nil
}

func (s *Store) ListPromos(_ context.Context) ([]*model.PromoCode, error) {
	s.mu.RLock()
	entries := make([]*promoEntry, 0, len(s.promos))
	for _, entry := range s.promos {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	promos := make([]*model.PromoCode, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		promo := entry.promo
		entry.mu.Unlock()
		promos = append(promos, &promo)
	}

	sort.Slice(promos, func(i, j int) bool { return promos[i].CreatedAt.Before(promos[j].CreatedAt) })
	return promos, nil
}
