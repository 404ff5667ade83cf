package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the key for request ID values in contexts
const RequestIDKey contextKey = "requestID"

// RequestIDMiddleware copies the request ID into the request context so it
// survives into work started by the handler. The logger middleware, when
// installed first, has already chosen the ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetString("requestID")
		if requestID == "" {
			requestID = c.GetHeader("X-Request-ID")
		}
		if requestID == "" {
			requestID = uuid.New().String()
			c.Header("X-Request-ID", requestID)
			c.Set("requestID", requestID)
		}

		ctx := context.WithValue(c.Request.Context(), RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetRequestID extracts the request ID from a context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// Detach returns a context that keeps the request's values but is not
// cancelled when the HTTP request finishes, for work that outlives it.
func Detach(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
