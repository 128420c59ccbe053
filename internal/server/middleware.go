package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const ingestSecretHeader = "X-Ingest-Secret"

// IngestAuthRequired gates the webhook with the shared ingest secret.
// Comparison is constant time so the secret cannot be probed byte by
// byte.
func (s *Server) IngestAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := strings.TrimSpace(s.cfg.IngestSecret)
		if secret == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		provided := strings.TrimSpace(c.GetHeader(ingestSecretHeader))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Next()
	}
}

// allowIngest applies the per-calendar token bucket. Runs after body
// binding because the calendar id lives in the payload.
func (s *Server) allowIngest(c *gin.Context, calendarID string) bool {
	if !s.limiter.Enabled() {
		return true
	}

	res, err := s.limiter.AllowCalendar(c.Request.Context(), calendarID)
	if err != nil {
		// Redis trouble never blocks the webhook.
		return true
	}
	if res.Allowed {
		return true
	}

	s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), "ingest", "calendar_bucket")
	if res.RetryAfter > 0 {
		c.Header("Retry-After", res.RetryAfter.Round(time.Second).String())
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
		Type:    "rate_limited",
		Message: "too many deliveries for this calendar",
	}})
	return false
}
