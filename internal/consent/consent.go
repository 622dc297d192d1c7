package consent

import (
	"log/slog"
	"net/http"

	"github.com/beacon-lab/project-beacon/internal/identity"
	"github.com/gin-gonic/gin"
)

const (
	// HeaderName is the explicit per-request consent signal set by the client.
	HeaderName = "X-Tracking-Consent"

	// CookieName is the fallback consent signal for server actions.
	CookieName = "cookie-consent"

	// Granted is the only value that counts as consent. Anything else,
	// including absence, is non-consent.
	Granted = "granted"

	// AnonCookieName holds the durable anonymous id. Only set with consent.
	AnonCookieName = "bp_anon_id"

	// AnonCookieMaxAge is one year in seconds.
	AnonCookieMaxAge = 60 * 60 * 24 * 365

	contextKey = "hasConsent"
)

// Middleware resolves the consent signal for the request and stores it in
// the gin context. The header wins over the cookie.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		value := c.GetHeader(HeaderName)
		source := "header"
		if value == "" {
			value, _ = c.Cookie(CookieName)
			source = "cookie"
			if value == "" {
				source = "none"
			}
		}

		hasConsent := value == Granted
		c.Set(contextKey, hasConsent)

		slog.Debug("Consent resolved",
			"has_consent", hasConsent,
			"source", source)

		c.Next()
	}
}

// FromContext reports the consent decision recorded by Middleware. Requests
// that never passed through the middleware are non-consented.
func FromContext(c *gin.Context) bool {
	v, ok := c.Get(contextKey)
	if !ok {
		return false
	}
	consented, _ := v.(bool)
	return consented
}

// AnonymousID returns the anonymous id for this request.
//
// With consent the server-side cookie is the source of truth: an existing
// cookie is reused, otherwise a new id is issued and set as a durable
// cookie. Without consent every request gets a fresh one-time id and no
// cookie is written, so no client-side persistent correlation is possible.
func AnonymousID(c *gin.Context, secureCookies bool) string {
	if !FromContext(c) {
		return identity.NewAnonymousID()
	}

	if existing, err := c.Cookie(AnonCookieName); err == nil && existing != "" {
		return existing
	}

	id := identity.NewAnonymousID()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AnonCookieName, id, AnonCookieMaxAge, "/", "", secureCookies, true)
	return id
}
