package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderUserID    = "X-User-Id"
	HeaderUserRole  = "X-User-Role"

	ctxRequestID = "request_id"
	ctxUserID    = "principal_id"
	ctxUserRole  = "principal_role"
)

// RequestID reuses the caller's X-Request-Id or generates one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// Logger writes one structured line per request.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(ctxRequestID)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// Principal copies the identity asserted by the upstream identity edge into
// the request context. The values are trusted as-is.
func Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader(HeaderUserID); id != "" {
			c.Set(ctxUserID, id)
		}
		if role := c.GetHeader(HeaderUserRole); role != "" {
			c.Set(ctxUserRole, role)
		}
		c.Next()
	}
}

// RequireRole aborts with 403 unless the principal has role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if PrincipalRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "details": "requires role " + role})
			return
		}
		c.Next()
	}
}

func RequestIDFrom(c *gin.Context) string { return c.GetString(ctxRequestID) }

func PrincipalID(c *gin.Context) string { return c.GetString(ctxUserID) }

func PrincipalRole(c *gin.Context) string { return c.GetString(ctxUserRole) }
