// Package notifier delivers notification intents over Telegram. Delivery is
// best-effort: send failures are logged and swallowed, never surfaced to the
// engines that emitted the intent.
package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Telegram struct {
	bot     *tgbotapi.BotAPI
	adminID int64
}

func NewTelegram(bot *tgbotapi.BotAPI, adminID int64) *Telegram {
	return &Telegram{
		bot:     bot,
		adminID: adminID,
	}
}

func (t *Telegram) Notify(_ context.Context, n model.Notification) {
	recipient := n.Recipient
	if recipient == 0 {
		recipient = t.adminID
	}

	text := render(n)
	if text == "" {
		return
	}

	if _, err := t.bot.Send(tgbotapi.NewMessage(recipient, text)); err != nil {
		logger.Logger().Warn("failed to deliver notification",
			zap.String("kind", string(n.Kind)),
			zap.Int64("recipient", recipient),
			zap.Error(err))
	}
}

func render(n model.Notification) string {
	switch n.Kind {
	case model.NotifyWinnerMoney:
		return fmt.Sprintf("🎉 You won the draw!\n🏆 Prize: %d coins\n\n💰 Added to your balance!", n.Amount)
	case model.NotifyWinnerItem:
		return fmt.Sprintf("🎉 You won the draw!\n🏆 Prize: %s\n\nThe admin will contact you soon!", n.Prize)
	case model.NotifyDrawEmpty:
		return fmt.Sprintf("🎁 Draw #%d (%s) finished — nobody joined.", n.DrawID, n.Prize)
	case model.NotifyDrawFinished:
		winners := make([]string, 0, len(n.Winners))
		for _, w := range n.Winners {
			winners = append(winners, fmt.Sprintf("%s (ID: %d)", w.Name, w.TelegramID))
		}
		participants := make([]string, 0, len(n.Participants))
		for _, p := range n.Participants {
			participants = append(participants, p.Name)
		}
		return fmt.Sprintf("🎉 Draw #%d finished!\n🏆 Prize: %s\n👑 Winners:\n%s\n\n👥 Participants: %s",
			n.DrawID, n.Prize, strings.Join(winners, "\n"), strings.Join(participants, ", "))
	case model.NotifyReferralBonus:
		return fmt.Sprintf("🎉 %s joined with your link!\n💰 +%d coins!\n💼 Balance: %d",
			n.ReferralName, n.Amount, n.Balance)
	case model.NotifyReferralMilestone:
		return fmt.Sprintf("🎉 Bonus! 3 referrals — +%d coins!\n💼 Balance: %d", n.Amount, n.Balance)
	case model.NotifyAdminGrant:
		return fmt.Sprintf("💰 The admin credited you %d coins!\n💼 Balance: %d", n.Amount, n.Balance)
	}
	return ""
}

// Oracle answers channel membership questions via getChatMember. Any API
// error reads as "not a member".
type Oracle struct {
	bot *tgbotapi.BotAPI
}

func NewOracle(bot *tgbotapi.BotAPI) *Oracle {
	return &Oracle{bot: bot}
}

func (o *Oracle) member(telegramID int64, channel string) (string, error) {
	member, err := o.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			SuperGroupUsername: "@" + strings.TrimPrefix(channel, "@"),
			UserID:             telegramID,
		},
	})
	if err != nil {
		return "", err
	}
	return member.Status, nil
}

// IsSubscribed requires an active membership role in the channel.
func (o *Oracle) IsSubscribed(_ context.Context, telegramID int64, channel string) bool {
	status, err := o.member(telegramID, channel)
	if err != nil {
		logger.Logger().Debug("subscription check failed", zap.String("channel", channel), zap.Error(err))
		return false
	}
	return status == "member" || status == "administrator" || status == "creator"
}

// IsMember is looser than IsSubscribed: anything but left/kicked counts.
func (o *Oracle) IsMember(_ context.Context, telegramID int64, channel string) bool {
	status, err := o.member(telegramID, channel)
	if err != nil {
		logger.Logger().Debug("membership check failed", zap.String("channel", channel), zap.Error(err))
		return false
	}
	return status != "" && status != "left" && status != "kicked"
}
