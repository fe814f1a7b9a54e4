package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/thxxxf51-hue/giftbot-miniapp/internal/model"
	"github.com/thxxxf51-hue/giftbot-miniapp/internal/service"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/auth"
	"github.com/thxxxf51-hue/giftbot-miniapp/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

type drawRoutes struct {
	gs *service.GiveawayService
	us *service.UserService
	a  *auth.TelegramAuth
}

func NewDrawRoutes(handler *gin.RouterGroup, gs *service.GiveawayService, us *service.UserService, a *auth.TelegramAuth) {
	r := &drawRoutes{gs: gs, us: us, a: a}

	h := handler.Group("/draws")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.GET("", r.ListActive)
		h.GET("/finished", r.ListFinished)
		h.POST("/join", r.Join)
		h.GET("/ws", r.DrawEvents)
	}
}

type DrawSummaryView struct {
	ID                int64     `json:"id"`
	Prize             string    `json:"prize"`
	IsMoney           bool      `json:"is_money"`
	WinnersCount      int       `json:"winners_count"`
	EndsAt            time.Time `json:"ends_at"`
	ImageURL          string    `json:"image_url,omitempty"`
	ParticipantsCount int       `json:"participants_count"`
}

func (r *drawRoutes) ListActive(c *gin.Context) {
	summaries, err := r.gs.ListActive(c.Request.Context())
	if err != nil {
		logger.Logger().Error("failed to list active draws", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list draws"})
		return
	}

	out := make([]DrawSummaryView, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, DrawSummaryView{
			ID:                s.ID,
			Prize:             s.Prize,
			IsMoney:           s.IsMoney,
			WinnersCount:      s.WinnersWanted,
			EndsAt:            s.EndsAt,
			ImageURL:          s.ImageURL,
			ParticipantsCount: s.ParticipantsCount,
		})
	}

	c.JSON(http.StatusOK, gin.H{"draws": out})
}

type ParticipantView struct {
	TelegramID int64  `json:"telegram_id"`
	Name       string `json:"name"`
}

type FinishedDrawView struct {
	ID           int64             `json:"id"`
	Prize        string            `json:"prize"`
	IsMoney      bool              `json:"is_money"`
	WinnersCount int               `json:"winners_count"`
	ImageURL     string            `json:"image_url,omitempty"`
	Participants []ParticipantView `json:"participants"`
	Winners      []ParticipantView `json:"winners"`
	FinishedAt   *time.Time        `json:"finished_at"`
}

func participantViews(participants []model.Participant) []ParticipantView {
	out := make([]ParticipantView, 0, len(participants))
	for _, p := range participants {
		out = append(out, ParticipantView{TelegramID: p.TelegramID, Name: p.Name})
	}
	return out
}

func (r *drawRoutes) ListFinished(c *gin.Context) {
	draws, err := r.gs.ListFinished(c.Request.Context())
	if err != nil {
		logger.Logger().Error("failed to list finished draws", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list draws"})
		return
	}

	out := make([]FinishedDrawView, 0, len(draws))
	for _, d := range draws {
		_, isMoney := d.MoneyPrize()
		out = append(out, FinishedDrawView{
			ID:           d.ID,
			Prize:        d.Prize,
			IsMoney:      isMoney,
			WinnersCount: d.WinnersWanted,
			ImageURL:     d.ImageURL,
			Participants: participantViews(d.Participants),
			Winners:      participantViews(d.Winners),
			FinishedAt:   d.FinishedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"draws": out})
}

type JoinDrawRequest struct {
	DrawID    int64  `json:"draw_id"`
	FirstName string `json:"first_name"`
}

func (r *drawRoutes) Join(c *gin.Context) {
	log := logger.Logger()

	var req JoinDrawRequest
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

	// Sync first so the participant snapshot carries the current name and
	// the user exists for a later prize credit.
	user, err := r.us.SyncUser(c.Request.Context(), tgUser.ID, tgUser.Username, firstName)
	if err != nil {
		log.Error("failed to sync user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join draw"})
		return
	}

	count, err := r.gs.Join(c.Request.Context(), req.DrawID, user.TelegramID, user.DisplayName())
	switch {
	case errors.Is(err, service.ErrDrawNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "draw not found or already finished"})
		return
	case errors.Is(err, service.ErrAlreadyJoined):
		c.JSON(http.StatusConflict, gin.H{"error": "already joined"})
		return
	case err != nil:
		log.Error("failed to join draw", zap.Int64("draw_id", req.DrawID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to join draw"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "count": count})
}
