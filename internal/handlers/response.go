package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vibe/internal/services"
)

// ErrorResponse: тело ответа при ошибке.
type ErrorResponse struct {
	Success bool   `json:"success" example:"false"`
	Error   string `json:"error" example:"code invalid or expired"`
	Code    string `json:"code" example:"invalid_code"`
	// RetryAfterMs заполняется для 429.
	RetryAfterMs int64 `json:"retry_after_ms,omitempty"`
}

type MessageResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message"`
}

func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

func badRequest(c *gin.Context, err error) {
	fail(c, http.StatusBadRequest, "bad_request", err.Error())
}

func tooManyRequests(c *gin.Context, code, msg string, retry time.Duration) {
	secs := int(retry / time.Second)
	if secs < 1 {
		secs = 1
	}
	c.Header("Retry-After", strconv.Itoa(secs))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
		Error:        msg,
		Code:         code,
		RetryAfterMs: retry.Milliseconds(),
	})
}

// respondServiceError переводит ошибку сервиса в HTTP-ответ. invalidCode:
// машинный код для ErrInvalidChallenge (invalid_code / invalid_token),
// window: окно лимита выдач для Retry-After.
func respondServiceError(c *gin.Context, log *zap.Logger, err error, invalidCode string, window time.Duration) {
	var cd *services.CooldownError
	switch {
	case errors.As(err, &cd):
		tooManyRequests(c, "cooldown", err.Error(), time.Duration(cd.RemainingSeconds)*time.Second)
	case errors.Is(err, services.ErrRateLimited):
		tooManyRequests(c, "rate_limited", err.Error(), window)
	case errors.Is(err, services.ErrInvalidChallenge):
		fail(c, http.StatusBadRequest, invalidCode, err.Error())
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, services.ErrEmailMismatch):
		fail(c, http.StatusBadRequest, "email_mismatch", err.Error())
	case errors.Is(err, services.ErrAlreadyVerified):
		fail(c, http.StatusBadRequest, "already_verified", err.Error())
	case errors.Is(err, services.ErrValidation):
		fail(c, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, services.ErrEmailTaken):
		fail(c, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
	case errors.Is(err, services.ErrInactiveUser):
		fail(c, http.StatusForbidden, "inactive_user", err.Error())
	default:
		reqLog(c, log).Error("[http] internal error", zap.String("path", c.FullPath()), zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal", "internal server error")
	}
}
