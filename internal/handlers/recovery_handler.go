package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vibe/internal/models"
	"vibe/internal/services"
)

type RecoveryHandler struct {
	svc    services.PasswordRecoveryService
	window time.Duration
	log    *zap.Logger
}

type RecoveryCodeResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message"`
	Token   string `json:"token"`
	UserID  int    `json:"user_id"`
}

type RecoveryTokenResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message"`
	UserID  int    `json:"user_id"`
	Email   string `json:"email"`
}

func NewRecoveryHandler(svc services.PasswordRecoveryService, window time.Duration, log *zap.Logger) *RecoveryHandler {
	return &RecoveryHandler{svc: svc, window: window, log: log}
}

// @Summary      Запросить восстановление пароля
// @Description  Для неизвестного e-mail ответ такой же, как для существующего.
// @Tags         PasswordRecovery
// @Accept       json
// @Produce      json
// @Param        body  body      models.RecoveryRequest  true  "E-mail"
// @Success      200   {object}  MessageResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      429   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /password-recovery/send [post]
func (h *RecoveryHandler) Send(c *gin.Context) {
	var req models.RecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.RequestRecovery(c.Request.Context(), req.Email); err != nil {
		respondServiceError(c, h.log, err, "invalid_code", h.window)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{
		Success: true,
		Message: "If this email is registered, you will receive recovery instructions.",
	})
}

// @Summary      Проверить код восстановления
// @Tags         PasswordRecovery
// @Accept       json
// @Produce      json
// @Param        body  body      models.RecoveryCodeRequest  true  "E-mail и код"
// @Success      200   {object}  RecoveryCodeResponse
// @Failure      400   {object}  ErrorResponse
// @Router       /password-recovery/verify-code [post]
func (h *RecoveryHandler) VerifyCode(c *gin.Context) {
	var req models.RecoveryCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.svc.VerifyCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondServiceError(c, h.log, err, "invalid_code", h.window)
		return
	}
	c.JSON(http.StatusOK, RecoveryCodeResponse{Success: true, Message: "Code is valid", Token: rec.Token, UserID: rec.UserID})
}

// @Summary      Проверить токен восстановления
// @Tags         PasswordRecovery
// @Accept       json
// @Produce      json
// @Param        body  body      models.RecoveryTokenRequest  true  "Токен"
// @Success      200   {object}  RecoveryTokenResponse
// @Failure      400   {object}  ErrorResponse
// @Router       /password-recovery/verify-token [post]
func (h *RecoveryHandler) VerifyToken(c *gin.Context) {
	var req models.RecoveryTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rec, err := h.svc.VerifyToken(c.Request.Context(), req.Token)
	if err != nil {
		respondServiceError(c, h.log, err, "invalid_token", h.window)
		return
	}
	c.JSON(http.StatusOK, RecoveryTokenResponse{Success: true, Message: "Token is valid", UserID: rec.UserID, Email: rec.Email})
}

// @Summary      Установить новый пароль
// @Tags         PasswordRecovery
// @Accept       json
// @Produce      json
// @Param        body  body      models.CompleteRecoveryRequest  true  "Токен и новый пароль"
// @Success      200   {object}  MessageResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /password-recovery/complete [post]
func (h *RecoveryHandler) Complete(c *gin.Context) {
	var req models.CompleteRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, err := h.svc.Complete(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		respondServiceError(c, h.log, err, "invalid_token", h.window)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Success: true, Message: "Password reset successfully"})
}
