package api

import (
	"net/http"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/service"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/auth"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

type membershipRoutes struct {
	oracle service.MembershipOracle
	a      *auth.TelegramAuth
}

func NewMembershipRoutes(handler *gin.RouterGroup, oracle service.MembershipOracle, a *auth.TelegramAuth) {
	r := &membershipRoutes{oracle: oracle, a: a}

	h := handler.Group("/")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.POST("/check-sub", r.CheckSubscription)
		h.POST("/check-chat", r.CheckMembership)
	}
}

type MembershipRequest struct {
	Channel string `json:"channel"`
}

func (r *membershipRoutes) CheckSubscription(c *gin.Context) {
	channel, tgUser, ok := r.bind(c)
	if !ok {
		return
	}

	subscribed := r.oracle.IsSubscribed(c.Request.Context(), tgUser.ID, channel)
	c.JSON(http.StatusOK, gin.H{"ok": true, "subscribed": subscribed})
}

func (r *membershipRoutes) CheckMembership(c *gin.Context) {
	channel, tgUser, ok := r.bind(c)
	if !ok {
		return
	}

	member := r.oracle.IsMember(c.Request.Context(), tgUser.ID, channel)
	c.JSON(http.StatusOK, gin.H{"ok": true, "member": member})
}

func (r *membershipRoutes) bind(c *gin.Context) (string, *auth.TelegramUserData, bool) {
	var req MembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Channel == "" {
		logger.Logger().Error("failed to bind membership request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return "", nil, false
	}

	tgUser, ok := telegramUser(c)
	if !ok {
		return "", nil, false
	}

	return req.Channel, tgUser, true
}
