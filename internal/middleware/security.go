// Package middleware holds the gin middleware shared by the HTTP API: security headers,
// correlation IDs, structured request logging, request deadlines, rate limiting and
// request metrics.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/clinical-fact-validator/internal/domain"
)

// CorrelationIDKey is the gin context key holding the request's correlation ID.
const CorrelationIDKey = "correlation_id"

// CorrelationHeader carries the correlation ID on requests and responses.
const CorrelationHeader = "X-Correlation-ID"

// SecurityHeaders adds security headers to all responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		// reports carry patient data
		h.Set("Cache-Control", "no-store")

		if gin.Mode() == gin.ReleaseMode {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// CorrelationID propagates the caller's correlation ID or assigns a new one, so a
// validation report can be traced across logs and events.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationHeader)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		c.Set(CorrelationIDKey, correlationID)
		c.Header(CorrelationHeader, correlationID)

		c.Next()
	}
}

// RequestTimeout attaches a deadline to the request context. Handlers observe it
// through c.Request.Context().
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusGatewayTimeout,
				domain.NewAPIError(domain.CodeTimeout, "Request timeout", "", c.GetString(CorrelationIDKey)))
		}
	}
}
