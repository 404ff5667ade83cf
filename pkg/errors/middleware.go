package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"chatmallu/client/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the first error recorded with c.Error as
// {"error": {code, message, details}}. Server-side failures are logged with
// their cause; client errors are already visible in the request log.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := FromError(c.Errors[0].Err)

		log := logger.FromGin(c, logger.GetGlobal())
		args := []any{"path", c.Request.URL.Path, "error_code", appErr.Code}
		if appErr.Cause != nil {
			args = append(args, "cause", appErr.Cause.Error())
		}
		if appErr.StatusCode >= http.StatusInternalServerError {
			log.Error(appErr.Message, args...)
		} else {
			log.Debug(appErr.Message, args...)
		}

		c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			},
		})
	}
}

// RecoveryWithLogger returns a middleware that recovers from any panics
// and logs the error with the request-scoped logger if available
func RecoveryWithLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())

				log := logger.FromGin(c, logger.GetGlobal())
				log.Error("Panic recovered",
					"error", fmt.Sprint(r),
					"stack", stack,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				var details any
				if gin.Mode() == gin.DebugMode {
					details = fmt.Sprintf("Panic: %v\n%s", r, stack)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{
						"code":    CodeInternal,
						"message": "The server encountered an unexpected error",
						"details": details,
					},
				})
			}
		}()

		c.Next()
	}
}
