package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/service"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/auth"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

var timeNow = time.Now

type promoRoutes struct {
	ps *service.PromoService
	us *service.UserService
	a  *auth.TelegramAuth
}

func NewPromoRoutes(handler *gin.RouterGroup, ps *service.PromoService, us *service.UserService, a *auth.TelegramAuth) {
	r := &promoRoutes{ps: ps, us: us, a: a}

	h := handler.Group("/promo")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.POST("", r.Redeem)
	}
}

type RedeemRequest struct {
	Code string `json:"code"`
}

type RedeemResponse struct {
	Reward  int64 `json:"reward"`
	Balance int64 `json:"balance"`
}

func (r *promoRoutes) Redeem(c *gin.Context) {
	log := logger.Logger()

	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	tgUser, ok := telegramUser(c)
	if !ok {
		return
	}

	// The server decides VIP status from the stored expiry; the client is
	// not trusted with it.
	user, err := r.us.SyncUser(c.Request.Context(), tgUser.ID, tgUser.Username, "")
	if err != nil {
		log.Error("failed to sync user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to redeem promo code"})
		return
	}

	reward, balance, err := r.ps.Redeem(c.Request.Context(), req.Code, user.TelegramID, user.IsVip(timeNow()))
	switch {
	case errors.Is(err, service.ErrPromoNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown promo code"})
		return
	case errors.Is(err, service.ErrVipRequired):
		c.JSON(http.StatusForbidden, gin.H{"error": "promo code is VIP only"})
		return
	case errors.Is(err, service.ErrPromoExhausted):
		c.JSON(http.StatusGone, gin.H{"error": "promo code is no longer available"})
		return
	case errors.Is(err, service.ErrPromoAlreadyUsed):
		c.JSON(http.StatusConflict, gin.H{"error": "promo code already used"})
		return
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid promo code"})
		return
	case err != nil:
		log.Error("failed to redeem promo code", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to redeem promo code"})
		return
	}

	c.JSON(http.StatusOK, RedeemResponse{Reward: reward, Balance: balance})
}
