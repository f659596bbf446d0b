package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vibe/internal/models"
	"vibe/internal/services"
)

type VerificationHandler struct {
	svc    services.VerificationService
	window time.Duration
	log    *zap.Logger
}

type SendVerificationResponse struct {
	Success    bool   `json:"success" example:"true"`
	Message    string `json:"message"`
	ExpiresIn  int64  `json:"expires_in" example:"300000"`
	CooldownMs int64  `json:"cooldown_ms" example:"60000"`
}

type VerifyTokenResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message"`
	UserID  int    `json:"user_id"`
}

type VerificationStatusResponse struct {
	Success  bool `json:"success" example:"true"`
	UserID   int  `json:"user_id"`
	Verified bool `json:"verified"`
}

type HealthResponse struct {
	Status    string    `json:"status" example:"ok"`
	Service   string    `json:"service" example:"email-verification"`
	Timestamp time.Time `json:"timestamp"`
}

// window: окно лимита выдач, уходит в Retry-After при rate_limited.
func NewVerificationHandler(svc services.VerificationService, window time.Duration, log *zap.Logger) *VerificationHandler {
	return &VerificationHandler{svc: svc, window: window, log: log}
}

// @Summary      Отправить код подтверждения e-mail
// @Description  Выдаёт новый 6-значный код и ссылку, отправляет на e-mail аккаунта. Предыдущие коды перестают действовать.
// @Tags         EmailVerification
// @Accept       json
// @Produce      json
// @Param        body  body      models.SendVerificationRequest  true  "Пользователь"
// @Success      200   {object}  SendVerificationResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      404   {object}  ErrorResponse
// @Failure      429   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /email-verification/send-verification [post]
func (h *VerificationHandler) SendVerification(c *gin.Context) {
	var req models.SendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	d, err := h.svc.SendVerification(c.Request.Context(), req.UserID, req.Email)
	if err != nil {
		respondServiceError(c, h.log, err, "invalid_code", h.window)
		return
	}
	c.JSON(http.StatusOK, SendVerificationResponse{
		Success:    true,
		Message:    "Verification email sent",
		ExpiresIn:  d.ExpiresIn.Milliseconds(),
		CooldownMs: d.Cooldown.Milliseconds(),
	})
}

// @Summary      Подтвердить e-mail кодом
// @Tags         EmailVerification
// @Accept       json
// @Produce      json
// @Param        body  body      models.VerifyCodeRequest  true  "Код"
// @Success      200   {object}  MessageResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /email-verification/verify-code [post]
func (h *VerificationHandler) VerifyCode(c *gin.Context) {
	var req models.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.VerifyCode(c.Request.Context(), req.UserID, req.Code); err != nil {
		respondServiceError(c, h.log, err, "invalid_code", h.window)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Email verified successfully"})
}

// @Summary      Подтвердить e-mail по ссылке
// @Tags         EmailVerification
// @Accept       json
// @Produce      json
// @Param        body  body      models.VerifyTokenRequest  true  "Токен из ссылки"
// @Success      200   {object}  VerifyTokenResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /email-verification/verify-token [post]
func (h *VerificationHandler) VerifyToken(c *gin.Context) {
	var req models.VerifyTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	userID, err := h.svc.VerifyToken(c.Request.Context(), req.Token)
	if err != nil {
		respondServiceError(c, h.log, err, "invalid_token", h.window)
		return
	}
	c.JSON(http.StatusOK, VerifyTokenResponse{Success: true, Message: "Email verified successfully", UserID: userID})
}

// @Summary      Статус подтверждения e-mail
// @Tags         EmailVerification
// @Produce      json
// @Param        user_id  path      int  true  "ID пользователя"
// @Success      200      {object}  VerificationStatusResponse
// @Failure      400      {object}  ErrorResponse
// @Failure      404      {object}  ErrorResponse
// @Router       /email-verification/verification-status/{user_id} [get]
func (h *VerificationHandler) Status(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || userID <= 0 {
		fail(c, http.StatusBadRequest, "bad_request", "invalid user_id")
		return
	}
	verified, err := h.svc.Status(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, h.log, err, "invalid_code", h.window)
		return
	}
	c.JSON(http.StatusOK, VerificationStatusResponse{Success: true, UserID: userID, Verified: verified})
}

// @Summary      Проверка сервиса подтверждения e-mail
// @Tags         EmailVerification
// @Produce      json
// @Success      200  {object}  HealthResponse
// @Router       /email-verification/health [get]
func (h *VerificationHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "email-verification",
		Timestamp: time.Now().UTC(),
	})
}
