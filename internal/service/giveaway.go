package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/repository"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"
)

const (
	// MinDrawDuration is the floor applied to admin-supplied durations so a
	// draw is always joinable for at least a minute.
	MinDrawDuration = time.Minute
	// MaxWinners caps how many winners a single draw may select.
	MaxWinners = 100
)

// GiveawayService owns the draw lifecycle: creation, joining, timed closure,
// winner selection, prize distribution and archival.
type GiveawayService struct {
	draws    DrawRepository
	users    UserRepository
	notifier Notifier
	clock    Clock
	hub      *DrawHub

	scheduler *Scheduler

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewGiveawayService(draws DrawRepository, users UserRepository, notifier Notifier, clock Clock, hub *DrawHub, rnd *rand.Rand) *GiveawayService {
	s := &GiveawayService{
		draws:    draws,
		users:    users,
		notifier: notifier,
		clock:    clock,
		hub:      hub,
		rnd:      rnd,
	}
	s.scheduler = NewScheduler(clock, func(drawID int64) {
		if err := s.Finalize(context.Background(), drawID); err != nil {
			logger.Logger().Error("scheduled finalize failed", zap.Int64("draw_id", drawID), zap.Error(err))
		}
	})
	return s
}

// Scheduler exposes the deadline loop so main can run it.
func (s *GiveawayService) Scheduler() *Scheduler {
	return s.scheduler
}

func (s *GiveawayService) Events() *DrawHub {
	return s.hub
}

// Create stores a new open draw and schedules its finalization. The winner
// count is clamped to [1, MaxWinners] and the duration is floored at
// MinDrawDuration, matching what the admin command promises.
func (s *GiveawayService) Create(ctx context.Context, prize string, duration time.Duration, winnersWanted int, imageURL string) (*model.Draw, error) {
	prize = strings.TrimSpace(prize)
	if prize == "" {
		return nil, fmt.Errorf("%w: empty prize", ErrInvalidInput)
	}

	if winnersWanted < 1 {
		winnersWanted = 1
	}
	if winnersWanted > MaxWinners {
		winnersWanted = MaxWinners
	}
	if duration < MinDrawDuration {
		duration = MinDrawDuration
	}

	now := s.clock.Now()
	draw := &model.Draw{
		Prize:         prize,
		WinnersWanted: winnersWanted,
		EndsAt:        now.Add(duration),
		ImageURL:      imageURL,
		State:         model.DrawOpen,
		CreatedAt:     now,
	}

	id, err := s.draws.CreateDraw(ctx, draw)
	if err != nil {
		return nil, fmt.Errorf("failed to create draw: %w", err)
	}
	draw.ID = id

	s.scheduler.Schedule(id, draw.EndsAt)

	logger.Logger().Info("draw created",
		zap.Int64("draw_id", id),
		zap.String("prize", prize),
		zap.Int("winners_wanted", winnersWanted),
		zap.Time("ends_at", draw.EndsAt))

	return draw, nil
}

// Join appends a participant snapshot and returns the updated count. A draw
// past its deadline rejects joins even if the scheduled finalize has not
// fired yet.
func (s *GiveawayService) Join(ctx context.Context, drawID, telegramID int64, displayName string) (int, error) {
	p := model.Participant{TelegramID: telegramID, Name: displayName}

	count, err := s.draws.AddParticipant(ctx, drawID, p, s.clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, repository.ErrDrawClosed):
			return 0, ErrDrawNotFound
		case errors.Is(err, repository.ErrAlreadyJoined):
			return 0, ErrAlreadyJoined
		}
		return 0, fmt.Errorf("failed to join draw: %w", err)
	}

	s.hub.Publish(model.DrawEvent{
		Type:              model.DrawEventJoined,
		DrawID:            drawID,
		ParticipantsCount: count,
	})

	return count, nil
}

// Finalize closes the draw, selects winners and distributes the prize. It is
// idempotent: a second call, whether from the timer or an admin early close,
// is a silent no-op. Notification failures never affect balance credits.
func (s *GiveawayService) Finalize(ctx context.Context, drawID int64) error {
	log := logger.Logger()

	draw, err := s.draws.FinalizeDraw(ctx, drawID, s.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrDrawClosed) {
			log.Debug("finalize skipped", zap.Int64("draw_id", drawID), zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to finalize draw: %w", err)
	}

	s.hub.Publish(model.DrawEvent{Type: model.DrawEventFinished, DrawID: drawID})

	if len(draw.Participants) == 0 {
		log.Info("draw finished without participants", zap.Int64("draw_id", drawID))
		s.notifier.Notify(ctx, model.Notification{
			Kind:   model.NotifyDrawEmpty,
			DrawID: drawID,
			Prize:  draw.Prize,
		})
		return nil
	}

	k := draw.WinnersWanted
	if k > len(draw.Participants) {
		k = len(draw.Participants)
	}

	s.rndMu.Lock()
	winners := pickWinners(s.rnd, draw.Participants, k)
	s.rndMu.Unlock()

	if err := s.draws.SetWinners(ctx, drawID, winners); err != nil {
		return fmt.Errorf("failed to store winners: %w", err)
	}

	amount, isMoney := draw.MoneyPrize()
	// Integer division: the remainder of an uneven split is forfeited.
	amountEach := int64(0)
	if isMoney {
		amountEach = amount / int64(k)
	}

	for _, winner := range winners {
		if isMoney {
			balance, err := s.users.CreditBalance(ctx, winner.TelegramID, amountEach)
			if err != nil {
				log.Error("failed to credit winner",
					zap.Int64("draw_id", drawID),
					zap.Int64("telegram_id", winner.TelegramID),
					zap.Error(err))
				continue
			}
			s.notifier.Notify(ctx, model.Notification{
				Kind:      model.NotifyWinnerMoney,
				Recipient: winner.TelegramID,
				DrawID:    drawID,
				Amount:    amountEach,
				Balance:   balance,
			})
			continue
		}
		s.notifier.Notify(ctx, model.Notification{
			Kind:      model.NotifyWinnerItem,
			Recipient: winner.TelegramID,
			DrawID:    drawID,
			Prize:     draw.Prize,
		})
	}

	s.notifier.Notify(ctx, model.Notification{
		Kind:         model.NotifyDrawFinished,
		DrawID:       drawID,
		Prize:        draw.Prize,
		Amount:       amountEach,
		Winners:      winners,
		Participants: draw.Participants,
	})

	log.Info("draw finalized",
		zap.Int64("draw_id", drawID),
		zap.Int("participants", len(draw.Participants)),
		zap.Int("winners", len(winners)))

	return nil
}

// Delete removes a finished draw from the archive. Open draws cannot be
// deleted.
func (s *GiveawayService) Delete(ctx context.Context, drawID int64) error {
	err := s.draws.DeleteFinished(ctx, drawID)
	switch {
	case errors.Is(err, repository.ErrStillActive):
		return ErrDrawStillActive
	case errors.Is(err, repository.ErrNotFound):
		return ErrDrawNotFound
	case err != nil:
		return fmt.Errorf("failed to delete draw: %w", err)
	}
	return nil
}

func (s *GiveawayService) ListActive(ctx context.Context) ([]model.DrawSummary, error) {
	summaries, err := s.draws.ListActive(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list active draws: %w", err)
	}
	return summaries, nil
}

func (s *GiveawayService) ListFinished(ctx context.Context) ([]*model.Draw, error) {
	draws, err := s.draws.ListFinished(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list finished draws: %w", err)
	}
	return draws, nil
}

// SchedulePending re-arms deadlines for draws that were open when the
// process last stopped. Overdue draws fire as soon as the loop runs.
func (s *GiveawayService) SchedulePending(ctx context.Context) error {
	open, err := s.draws.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open draws: %w", err)
	}
	for _, draw := range open {
		s.scheduler.Schedule(draw.ID, draw.EndsAt)
	}
	return nil
}
