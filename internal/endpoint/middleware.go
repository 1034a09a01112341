package endpoint

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "X-Request-ID"

// RequestID injects a unique request ID into each request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDKey)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Header(requestIDKey, requestID)
		c.Set(requestIDKey, requestID)
		c.Next()
	}
}

// Logging logs HTTP requests with structured fields.
func Logging(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.String("latency", time.Since(start).String()),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

// Recovery recovers from handler panics and returns a structured error.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered",
					slog.String("request_id", c.GetString(requestIDKey)),
					slog.Any("error", err),
					slog.String("path", c.Request.URL.Path),
				)

				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
				c.Abort()
			}
		}()

		c.Next()
	}
}
