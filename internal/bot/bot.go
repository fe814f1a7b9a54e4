// Package bot is the Telegram command surface: user onboarding with referral
// deep links and the admin commands that drive draws, promo codes and grants.
package bot

import (
	"context"
	"strings"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/service"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Bot struct {
	api     *tgbotapi.BotAPI
	svc     *service.Service
	adminID int64
	appURL  string
}

func New(api *tgbotapi.BotAPI, svc *service.Service, adminID int64, appURL string) *Bot {
	return &Bot{
		api:     api,
		svc:     svc,
		adminID: adminID,
		appURL:  appURL,
	}
}

// Run consumes updates until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case update := <-updates:
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	log := logger.Logger()

	user, err := b.svc.SyncUser(ctx, msg.From.ID, msg.From.UserName, msg.From.FirstName)
	if err != nil {
		log.Error("failed to sync user", zap.Int64("telegram_id", msg.From.ID), zap.Error(err))
		return
	}

	// Photo posts carry the command in the caption.
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if !strings.HasPrefix(text, "/") {
		return
	}

	fields := strings.Fields(text)
	command := strings.TrimPrefix(fields[0], "/")
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	args := fields[1:]

	switch command {
	case "start":
		b.handleStart(ctx, msg, args, user)
		return
	}

	if msg.From.ID != b.adminID {
		return
	}

	switch command {
	case "cdraw":
		b.handleCreateDraw(ctx, msg, args)
	case "ddelete":
		b.handleDeleteDraw(ctx, msg, args)
	case "cpromo":
		b.handleCreatePromo(ctx, msg, args, false)
	case "vpromo":
		b.handleCreatePromo(ctx, msg, args, true)
	case "pgive":
		b.handleGrant(ctx, msg, args)
	case "promos":
		b.handleListPromos(ctx, msg)
	case "draws":
		b.handleListDraws(ctx, msg)
	case "users":
		b.handleCountUsers(ctx, msg)
	}
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	if _, err := b.api.Send(out); err != nil {
		logger.Logger().Warn("failed to send reply", zap.Error(err))
	}
}
