package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"vibe/internal/realtime"
	"vibe/internal/services"
)

type EventsHandler struct {
	hub      *realtime.VerificationHub
	svc      services.VerificationService
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// allowedOrigins: те же origin, что у CORS; пусто означает любой.
func NewEventsHandler(hub *realtime.VerificationHub, svc services.VerificationService, log *zap.Logger, allowedOrigins ...string) *EventsHandler {
	return &EventsHandler{
		hub:      hub,
		svc:      svc,
		upgrader: realtime.NewUpgrader(allowedOrigins),
		log:      log,
	}
}

// @Summary      Подписка на подтверждение e-mail (WebSocket)
// @Description  Сразу присылает текущий статус, затем событие email_verified, когда пользователь подтвердит адрес.
// @Tags         EmailVerification
// @Param        user_id  path  int  true  "ID пользователя"
// @Success      101
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /email-verification/events/{user_id} [get]
func (h *EventsHandler) Subscribe(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || userID <= 0 {
		fail(c, http.StatusBadRequest, "bad_request", "invalid user_id")
		return
	}
	verified, err := h.svc.Status(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, h.log, err, "", 0)
		return
	}

	if !websocket.IsWebSocketUpgrade(c.Request) {
		fail(c, http.StatusBadRequest, "bad_request", "websocket upgrade required")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrader уже ответил клиенту
		reqLog(c, h.log).Warn("[events] upgrade failed", zap.Error(err))
		return
	}

	h.hub.Attach(conn, userID, realtime.VerificationEvent{
		Type:     realtime.EventStatus,
		UserID:   userID,
		Verified: verified,
		At:       time.Now().UTC(),
	})
	reqLog(c, h.log).Debug("[events] subscriber left", zap.Int("user_id", userID))
}
