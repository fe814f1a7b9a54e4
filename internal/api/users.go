package api

import (
	"net/http"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/service"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/auth"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

type userRoutes struct {
	us *service.UserService
	a  *auth.TelegramAuth
}

func NewUserRoutes(handler *gin.RouterGroup, us *service.UserService, a *auth.TelegramAuth) {
	r := &userRoutes{us: us, a: a}

	handler.GET("/health", r.Health)

	h := handler.Group("/user")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.POST("/sync", r.SyncUser)
	}
}

type SyncUserRequest struct {
	FirstName string `json:"first_name"`
}

type ReferralView struct {
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

type SyncUserResponse struct {
	TelegramID       int64          `json:"telegram_id"`
	Balance          int64          `json:"balance"`
	Referrals        []ReferralView `json:"referrals"`
	ReferralEarnings int64          `json:"referral_earnings"`
	VipExpiry        *time.Time     `json:"vip_expiry"`
}

func (r *userRoutes) SyncUser(c *gin.Context) {
	log := logger.Logger()

	var req SyncUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Error("failed to bind request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	tgUser, ok := telegramUser(c)
	if !ok {
		return
	}

	firstName := req.FirstName
	if firstName == "" {
		firstName = tgUser.FirstName
	}

	user, err := r.us.SyncUser(c.Request.Context(), tgUser.ID, tgUser.Username, firstName)
	if err != nil {
		log.Error("failed to sync user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sync user"})
		return
	}

	out := SyncUserResponse{
		TelegramID:       user.TelegramID,
		Balance:          user.Balance,
		Referrals:        make([]ReferralView, 0, len(user.Referrals)),
		ReferralEarnings: user.ReferralEarnings,
		VipExpiry:        user.VipExpiry,
	}
	for _, ref := range user.Referrals {
		out.Referrals = append(out.Referrals, ReferralView{Name: ref.Name, JoinedAt: ref.JoinedAt})
	}

	c.JSON(http.StatusOK, out)
}

func (r *userRoutes) Health(c *gin.Context) {
	count, err := r.us.CountUsers(c.Request.Context())
	if err != nil {
		logger.Logger().Error("failed to count users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "users": count})
}

// telegramUser pulls the authenticated identity set by the auth middleware.
func telegramUser(c *gin.Context) (*auth.TelegramUserData, bool) {
	log := logger.Logger()

	userData, exists := c.Get("telegram_user")
	if !exists {
		log.Error("telegram user data not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}

	user, ok := userData.(*auth.TelegramUserData)
	if !ok {
		log.Error("invalid type assertion for telegram user data")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}

	return user, true
}
