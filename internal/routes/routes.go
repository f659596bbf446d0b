package routes

import (
	"github.com/gin-gonic/gin"

	"vibe/internal/handlers"
)

// SetupRoutes регистрирует маршруты API. throttle: ограничитель по IP для
// эндпоинтов, принимающих коды; nil отключает его. eventsHandler тоже
// необязателен.
func SetupRoutes(
	r *gin.Engine,
	authHandler *handlers.AuthHandler,
	verificationHandler *handlers.VerificationHandler,
	recoveryHandler *handlers.RecoveryHandler,
	healthHandler *handlers.HealthHandler,
	eventsHandler *handlers.EventsHandler,
	authMiddleware gin.HandlerFunc,
	throttle gin.HandlerFunc,
) *gin.Engine {
	guarded := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if throttle == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{throttle, h}
	}

	// ---- ops
	r.GET("/healthz", healthHandler.Healthz)

	// ---- auth
	auth := r.Group("/auth")
	{
		auth.POST("/register", guarded(authHandler.Register)...)
		auth.POST("/login", guarded(authHandler.Login)...)
		auth.GET("/check-email", authHandler.CheckEmail)
		auth.GET("/me", authMiddleware, authHandler.Me)
	}

	// ---- email verification
	ev := r.Group("/email-verification")
	{
		ev.GET("/health", verificationHandler.Health)
		ev.POST("/send-verification", verificationHandler.SendVerification)
		ev.POST("/verify-code", guarded(verificationHandler.VerifyCode)...)
		ev.POST("/verify-token", guarded(verificationHandler.VerifyToken)...)
		ev.GET("/verification-status/:user_id", verificationHandler.Status)
		if eventsHandler != nil {
			ev.GET("/events/:user_id", eventsHandler.Subscribe)
		}
	}

	// ---- password recovery
	pr := r.Group("/password-recovery")
	{
		pr.POST("/send", guarded(recoveryHandler.Send)...)
		pr.POST("/verify-code", guarded(recoveryHandler.VerifyCode)...)
		pr.POST("/verify-token", guarded(recoveryHandler.VerifyToken)...)
		pr.POST("/complete", guarded(recoveryHandler.Complete)...)
	}

	return r
}
