package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/service"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message, args []string, user *model.User) {
	log := logger.Logger()

	if len(args) > 0 && strings.HasPrefix(args[0], "ref_") {
		inviterID, err := strconv.ParseInt(strings.TrimPrefix(args[0], "ref_"), 10, 64)
		if err == nil {
			attributed, err := b.svc.AttributeReferral(ctx, msg.From.ID, inviterID, user.DisplayName())
			if err != nil {
				log.Error("failed to attribute referral",
					zap.Int64("inviter_id", inviterID),
					zap.Int64("new_user_id", msg.From.ID),
					zap.Error(err))
			} else if attributed {
				log.Info("referral attributed via start link",
					zap.Int64("inviter_id", inviterID),
					zap.Int64("new_user_id", msg.From.ID))
			}
		}
	}

	out := tgbotapi.NewMessage(msg.Chat.ID,
		fmt.Sprintf("👋 Hi, %s!\n\n🎁 Welcome to GiftBot!\n💰 Balance: %d coins", msg.From.FirstName, user.Balance))
	if b.appURL != "" {
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.InlineKeyboardButton{
				Text:   "🎁 Open GiftBot",
				WebApp: &tgbotapi.WebAppInfo{URL: b.appURL},
			}),
		)
	}
	if _, err := b.api.Send(out); err != nil {
		log.Warn("failed to send start reply", zap.Error(err))
	}
}

const cdrawUsage = "Usage: /cdraw PRIZE DURATION [WINNERS]\n\n" +
	"Examples:\n" +
	"/cdraw 1000 1m       — 1 winner\n" +
	"/cdraw iPhone 2h     — 1 winner\n" +
	"/cdraw 5000 1d 3     — 3 winners\n\n" +
	"💡 A numeric prize is split between the winners automatically.\n" +
	"📎 Attach a picture if you like!"

func (b *Bot) handleCreateDraw(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 2 {
		b.reply(msg, cdrawUsage)
		return
	}

	prize := args[0]
	duration, err := parseDuration(args[1])
	if err != nil {
		b.reply(msg, "❌ Bad duration, use forms like 30m, 2h or 1d")
		return
	}

	winnersWanted := 1
	if len(args) >= 3 {
		winnersWanted, err = strconv.Atoi(args[2])
		if err != nil {
			b.reply(msg, cdrawUsage)
			return
		}
	}

	imageURL := b.attachedImageURL(msg)

	draw, err := b.svc.GiveawayService.Create(ctx, prize, duration, winnersWanted, imageURL)
	if err != nil {
		logger.Logger().Error("failed to create draw", zap.Error(err))
		b.reply(msg, "❌ Could not create the draw")
		return
	}

	amount, isMoney := draw.MoneyPrize()
	note := "\n📦 Winners get a notification"
	if isMoney {
		note = "\n💰 Coins are credited automatically"
		if draw.WinnersWanted > 1 {
			note = fmt.Sprintf("\n💰 %d coins each", amount/int64(draw.WinnersWanted))
		}
	}

	b.reply(msg, fmt.Sprintf("✅ Draw #%d created!\n🏆 Prize: %s\n👑 Winners: %d\n⏱ Ends: %s%s",
		draw.ID, draw.Prize, draw.WinnersWanted, draw.EndsAt.Format("2 Jan 15:04"), note))
}

// attachedImageURL resolves the largest size of an attached photo to a
// direct file URL, matching what the mini-app can embed.
func (b *Bot) attachedImageURL(msg *tgbotapi.Message) string {
	if len(msg.Photo) == 0 {
		return ""
	}

	photo := msg.Photo[len(msg.Photo)-1]
	url, err := b.api.GetFileDirectURL(photo.FileID)
	if err != nil {
		logger.Logger().Warn("failed to resolve draw image", zap.Error(err))
		return ""
	}
	return url
}

// parseDuration accepts time.ParseDuration forms plus a day suffix.
func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func (b *Bot) handleDeleteDraw(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 1 {
		b.reply(msg, "Usage: /ddelete #ID")
		return
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		b.reply(msg, "❌ Bad draw id")
		return
	}

	switch err := b.svc.GiveawayService.Delete(ctx, id); err {
	case nil:
		b.reply(msg, fmt.Sprintf("✅ Draw #%d removed from the archive.", id))
	case service.ErrDrawStillActive:
		b.reply(msg, fmt.Sprintf("❌ Draw #%d is still active, only finished draws can be deleted.", id))
	case service.ErrDrawNotFound:
		b.reply(msg, fmt.Sprintf("❌ Finished draw #%d not found.", id))
	default:
		logger.Logger().Error("failed to delete draw", zap.Int64("draw_id", id), zap.Error(err))
		b.reply(msg, "❌ Could not delete the draw")
	}
}

func (b *Bot) handleCreatePromo(ctx context.Context, msg *tgbotapi.Message, args []string, vipOnly bool) {
	if len(args) < 3 {
		b.reply(msg, "Usage: /cpromo CODE REWARD USES\nExample: /cpromo SUMMER500 500 100")
		return
	}

	reward, err1 := strconv.ParseInt(args[1], 10, 64)
	maxUses, err2 := strconv.Atoi(args[2])
	if err1 != nil || err2 != nil {
		b.reply(msg, "❌ Reward and use count must be numbers")
		return
	}

	promo, err := b.svc.CreatePromo(ctx, args[0], reward, maxUses, vipOnly)
	if err != nil {
		b.reply(msg, "❌ Could not create the promo code")
		return
	}

	suffix := ""
	if vipOnly {
		suffix = "\n👑 VIP only"
	}
	b.reply(msg, fmt.Sprintf("✅ Promo code created!\n📌 Code: %s\n💰 Reward: %d coins\n🔢 Uses: %d%s",
		promo.Code, promo.Reward, promo.MaxUses, suffix))
}

func (b *Bot) handleGrant(ctx context.Context, msg *tgbotapi.Message, args []string) {
	if len(args) < 2 {
		b.reply(msg, "Usage: /pgive @username AMOUNT\nExample: /pgive @assate 5000")
		return
	}

	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || amount <= 0 {
		b.reply(msg, "❌ Bad amount")
		return
	}

	user, err := b.svc.Grant(ctx, args[0], amount)
	switch err {
	case nil:
		b.reply(msg, fmt.Sprintf("✅ %s received %d coins\n💼 Balance: %d", args[0], amount, user.Balance))
	case service.ErrUserNotFound:
		b.reply(msg, fmt.Sprintf("❌ %s not found.\nAsk them to /start the bot and retry.", args[0]))
	default:
		logger.Logger().Error("failed to grant coins", zap.Error(err))
		b.reply(msg, "❌ Could not credit the coins")
	}
}

func (b *Bot) handleListPromos(ctx context.Context, msg *tgbotapi.Message) {
	promos, err := b.svc.ListPromos(ctx)
	if err != nil {
		logger.Logger().Error("failed to list promo codes", zap.Error(err))
		b.reply(msg, "❌ Could not list promo codes")
		return
	}
	if len(promos) == 0 {
		b.reply(msg, "No promo codes yet")
		return
	}

	lines := make([]string, 0, len(promos))
	for _, p := range promos {
		vip := ""
		if p.VipOnly {
			vip = " 👑"
		}
		lines = append(lines, fmt.Sprintf("• %s: +%d🪙  %d/%d%s", p.Code, p.Reward, p.UsedCount, p.MaxUses, vip))
	}
	b.reply(msg, "📋 Promo codes:\n\n"+strings.Join(lines, "\n"))
}

func (b *Bot) handleListDraws(ctx context.Context, msg *tgbotapi.Message) {
	log := logger.Logger()

	active, err := b.svc.ListActive(ctx)
	if err != nil {
		log.Error("failed to list active draws", zap.Error(err))
		b.reply(msg, "❌ Could not list draws")
		return
	}
	finished, err := b.svc.ListFinished(ctx)
	if err != nil {
		log.Error("failed to list finished draws", zap.Error(err))
		b.reply(msg, "❌ Could not list draws")
		return
	}

	var sb strings.Builder
	if len(active) > 0 {
		sb.WriteString("🟢 Active:\n")
		for _, d := range active {
			sb.WriteString(fmt.Sprintf("• #%d: %s | %d joined | ~%d min left | %d winners\n",
				d.ID, d.Prize, d.ParticipantsCount, int(time.Until(d.EndsAt).Minutes())+1, d.WinnersWanted))
		}
	}
	if len(finished) > 0 {
		sb.WriteString("\n🔴 Finished:\n")
		for _, d := range finished {
			names := make([]string, 0, len(d.Winners))
			for _, w := range d.Winners {
				names = append(names, w.Name)
			}
			winners := strings.Join(names, ", ")
			if winners == "" {
				winners = "none"
			}
			sb.WriteString(fmt.Sprintf("• #%d: %s | %d joined | Winners: %s\n",
				d.ID, d.Prize, len(d.Participants), winners))
		}
	}

	if sb.Len() == 0 {
		b.reply(msg, "No draws yet")
		return
	}
	b.reply(msg, sb.String())
}

func (b *Bot) handleCountUsers(ctx context.Context, msg *tgbotapi.Message) {
	count, err := b.svc.CountUsers(ctx)
	if err != nil {
		logger.Logger().Error("failed to count users", zap.Error(err))
		b.reply(msg, "❌ Could not count users")
		return
	}
	b.reply(msg, fmt.Sprintf("👥 Users: %d", count))
}
