package ingestion

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	httperr "github.com/beacon-lab/project-beacon/internal/core/errors"
	"github.com/gin-gonic/gin"
)

// SecretHeader carries the shared webhook secret. Providers that cannot set
// headers pass it as the "secret" query parameter instead.
const SecretHeader = "X-Webhook-Secret"

// secretMiddleware rejects requests without the shared secret. This is a
// coarse gate, not signature verification; the providers in use either do
// not sign payloads or sign them inconsistently.
func (s *Service) secretMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.WebhookSecret == "" {
			slog.Warn("Webhook secret not configured, rejecting request", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, httperr.ErrorResponse{
				ErrorType: httperr.HttpUnauthorizedError,
				Message:   "unauthorized",
			})
			return
		}

		provided := c.GetHeader(SecretHeader)
		if provided == "" {
			provided = c.Query("secret")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.WebhookSecret)) != 1 {
			slog.Warn("Webhook secret mismatch", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, httperr.ErrorResponse{
				ErrorType: httperr.HttpUnauthorizedError,
				Message:   "unauthorized",
			})
			return
		}
		c.Next()
	}
}

// corsMiddleware answers preflight and tags responses for the configured
// origins. The track endpoint is called cross-origin from the site.
func (s *Service) corsMiddleware() gin.HandlerFunc {
	allowed := make(map[string]bool, len(s.cfg.CORSOrigins))
	allowAll := false
	for _, origin := range s.cfg.CORSOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, X-Tracking-Consent")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
