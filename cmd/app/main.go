package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/api"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/bot"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/notifier"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/repository"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/service"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/auth"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Initialize(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zapLogger := logger.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		zapLogger.Fatal("Failed to initialize telegram bot", zap.Error(err))
	}
	botAPI.Debug = cfg.Telegram.Debug

	tgNotifier := notifier.NewTelegram(botAPI, cfg.Telegram.AdminID)
	oracle := notifier.NewOracle(botAPI)
	clock := service.NewRealClock()

	userService := service.NewUserService(repo, tgNotifier)
	giveawayService := service.NewGiveawayService(repo, repo, tgNotifier, clock,
		service.NewDrawHub(), rand.New(rand.NewSource(time.Now().UnixNano())))
	promoService := service.NewPromoService(repo, clock)
	referralService := service.NewReferralService(repo, tgNotifier, clock)
	svc := service.NewService(userService, giveawayService, promoService, referralService)

	if err := giveawayService.SchedulePending(ctx); err != nil {
		zapLogger.Fatal("Failed to schedule pending draws", zap.Error(err))
	}
	go giveawayService.Scheduler().Run(ctx)

	go bot.New(botAPI, svc, cfg.Telegram.AdminID, cfg.Telegram.AppURL).Run(ctx)

	telegramAuth := auth.NewTelegramAuth(cfg.Telegram.BotToken, cfg.Telegram.Debug)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{
		http.MethodHead,
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
	}
	corsConfig.AllowHeaders = []string{"*"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour

	router.Use(cors.New(corsConfig))

	a := router.Group("/api/v1")
	api.NewUserRoutes(a, userService, telegramAuth)
	api.NewDrawRoutes(a, giveawayService, userService, telegramAuth)
	api.NewPromoRoutes(a, promoService, userService, telegramAuth)
	api.NewMembershipRoutes(a, oracle, telegramAuth)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	zapLogger.Info("Starting server", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		zapLogger.Fatal("Failed to start server", zap.Error(err))
	}
}
