package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vibe/internal/services"
)

const CtxUserID = "user_id"

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   msg,
		"code":    "unauthorized",
	})
}

// AuthMiddleware проверяет Bearer-токен и кладёт user_id в контекст.
func AuthMiddleware(auth services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1) пропускаем preflight
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		// 2) читаем Authorization
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			unauthorized(c, "Missing or invalid Authorization header")
			return
		}

		// 3) парсим и валидируем токен (подпись, срок, leeway)
		claims, err := auth.ParseAccessToken(strings.TrimSpace(parts[1]))
		if err != nil {
			unauthorized(c, "Invalid or expired token")
			return
		}

		// 4) прокидываем пользователя в контекст
		c.Set(CtxUserID, claims.UserID)
		c.Next()
	}
}
