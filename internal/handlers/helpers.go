package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vibe/internal/logger"
	"vibe/internal/middleware"
)

// более устойчиво к типам (int / int64 / float64 / string)
func getIntFromCtx(c *gin.Context, key string) (int, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n, true
		}
	}
	return 0, false
}

func currentUserID(c *gin.Context) (int, bool) {
	id, ok := getIntFromCtx(c, middleware.CtxUserID)
	return id, ok && id > 0
}

func reqLog(c *gin.Context, l *zap.Logger) *zap.Logger {
	return logger.WithRequestID(l, c.GetString(middleware.CtxRequestID))
}
