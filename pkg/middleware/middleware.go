package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"

	"userbus/pkg/logging"
	"userbus/pkg/models"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// requestLogger is the slice of logger.Logger the HTTP middleware needs.
type requestLogger interface {
	LogwCtx(ctx context.Context, level zapcore.Level, msg string, keysAndValues ...interface{})
}

// quietPaths are probe endpoints that would otherwise flood the access log.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// LoggerMiddleware writes one access line per request, with the invocation id
// taken from the request context. 4xx responses log at warn, 5xx at error.
func LoggerMiddleware(logger requestLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if quietPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.RequestURI(),
			"bytes_in", c.Request.ContentLength,
		}
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			fields = append(fields, "error", msg)
		}

		level := zapcore.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zapcore.ErrorLevel
		case status >= http.StatusBadRequest:
			level = zapcore.WarnLevel
		}
		logger.LogwCtx(c.Request.Context(), level, "HTTP Request", fields...)
	}
}

// RecoveryMiddleware answers a panic with the same 500 body the submission
// endpoint uses for internal failures.
func RecoveryMiddleware(logger requestLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.LogwCtx(c.Request.Context(), zapcore.ErrorLevel, "Panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			models.NewAPIResponse(http.StatusInternalServerError, RequestID(c), models.MessageInternalServerError))
	})
}

// RequestIDMiddleware reuses the caller's X-Request-ID or mints a UUID. The id
// becomes the invocation id of the request.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logging.WithInvocationID(c.Request.Context(), requestID))
		c.Next()
	}
}

// RequestID returns the id set by RequestIDMiddleware, falling back to the
// header when the middleware is not installed.
func RequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(RequestIDHeader)
}
