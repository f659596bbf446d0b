package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vibe/internal/models"
	"vibe/internal/services"
)

type AuthHandler struct {
	userService services.UserService
	authService services.AuthService
	log         *zap.Logger
}

type RegisterResponse struct {
	Success bool         `json:"success" example:"true"`
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

type LoginResponse struct {
	Success     bool         `json:"success" example:"true"`
	Message     string       `json:"message"`
	User        *models.User `json:"user"`
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type" example:"Bearer"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

type UserResponse struct {
	Success bool         `json:"success" example:"true"`
	User    *models.User `json:"user"`
}

type CheckEmailResponse struct {
	Success bool `json:"success" example:"true"`
	Exists  bool `json:"exists"`
}

func NewAuthHandler(userService services.UserService, authService services.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{userService: userService, authService: authService, log: log}
}

// @Summary      Регистрация
// @Description  Создаёт пользователя и отправляет код подтверждения e-mail. Ошибка отправки кода регистрацию не отменяет.
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.RegisterRequest  true  "Данные пользователя"
// @Success      201   {object}  RegisterResponse
// @Failure      400   {object}  ErrorResponse
// @Failure      409   {object}  ErrorResponse
// @Failure      500   {object}  ErrorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.userService.Register(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, h.log, err, "", 0)
		return
	}
	c.JSON(http.StatusCreated, RegisterResponse{
		Success: true,
		Message: "User registered. Check your email for the verification code.",
		User:    user,
	})
}

// @Summary      Вход в систему
// @Description  Проверяет e-mail и пароль, возвращает access-токен (JWT)
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        login  body      models.LoginRequest  true  "Данные для входа"
// @Success      200    {object}  LoginResponse
// @Failure      400    {object}  ErrorResponse
// @Failure      401    {object}  ErrorResponse
// @Failure      403    {object}  ErrorResponse
// @Failure      500    {object}  ErrorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	start := time.Now()

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.userService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(c, h.log, err, "", 0)
		return
	}

	token, exp, err := h.authService.GenerateAccessToken(user)
	if err != nil {
		respondServiceError(c, h.log, err, "", 0)
		return
	}

	reqLog(c, h.log).Info("[auth][login] success",
		zap.Int("user_id", user.ID),
		zap.Bool("verified", user.IsVerified),
		zap.Duration("took", time.Since(start)),
	)
	c.JSON(http.StatusOK, LoginResponse{
		Success:     true,
		Message:     "Login successful",
		User:        user,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   exp,
	})
}

// @Summary      Текущий пользователь
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  UserResponse
// @Failure      401  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		fail(c, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, h.log, err, "", 0)
		return
	}
	c.JSON(http.StatusOK, UserResponse{Success: true, User: user})
}

// @Summary      Проверить, занят ли e-mail
// @Tags         Auth
// @Produce      json
// @Param        email  query     string  true  "E-mail"
// @Success      200    {object}  CheckEmailResponse
// @Failure      400    {object}  ErrorResponse
// @Router       /auth/check-email [get]
func (h *AuthHandler) CheckEmail(c *gin.Context) {
	exists, err := h.userService.EmailExists(c.Request.Context(), c.Query("email"))
	if err != nil {
		respondServiceError(c, h.log, err, "", 0)
		return
	}
	c.JSON(http.StatusOK, CheckEmailResponse{Success: true, Exists: exists})
}
