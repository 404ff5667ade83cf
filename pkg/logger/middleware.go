package logger

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKey is the gin context key the request-scoped logger is stored under.
const ContextKey = "logger"

// pollPaths are hit on a timer by the UI; completed requests to them are
// logged at debug level only.
var pollPaths = map[string]bool{
	"/metrics":        true,
	"/api/health":     true,
	"/api/connection": true,
	"/api/unread":     true,
	"/api/sidebar":    true,
}

// Middleware assigns the request ID, stores a request-scoped logger and
// logs each completed request. Routes with an :id parameter log it as
// chat_id.
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("requestID", requestID)

		reqLogger := logger.WithRequestID(requestID)
		c.Set(ContextKey, reqLogger)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := requestLevel(c.Request.Method, c.FullPath(), status)
		reqLogger.WithChat(c.Param("id")).LogRequest(level, c.Request.Method, c.Request.URL.Path, status, time.Since(start))
	}
}

func requestLevel(method, route string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case method == http.MethodGet && (pollPaths[route] || strings.HasPrefix(route, "/api/docs")):
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// FromGin returns the request-scoped logger, or fallback if none was set.
func FromGin(c *gin.Context, fallback *Logger) *Logger {
	if v, ok := c.Get(ContextKey); ok {
		if l, ok := v.(*Logger); ok {
			return l
		}
	}
	return fallback
}
