package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vibe/internal/metrics"
	"vibe/internal/ratelimit"
)

// RateLimit ограничивает число запросов с одного IP на группу маршрутов.
// При ошибке лимитера (например, недоступен Redis) запрос пропускается.
func RateLimit(limiter ratelimit.Limiter, scope string, limit int, window time.Duration, m *metrics.Metrics, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + c.ClientIP()

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			log.Warn("[ratelimit] limiter error, failing open", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			if m != nil {
				m.RateLimited.WithLabelValues(scope).Inc()
			}
			log.Info("[ratelimit] rejected", zap.String("scope", scope), zap.String("client_ip", c.ClientIP()))
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many requests",
				"code":    "too_many_requests",
			})
			return
		}
		c.Next()
	}
}
