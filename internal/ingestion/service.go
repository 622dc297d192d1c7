// Package ingestion is the HTTP boundary: browser event endpoints, provider
// webhooks, the pixel script, and the banner API. Handlers validate and
// normalize, publish to the queue, and return; no business logic runs here.
package ingestion

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/beacon-lab/project-beacon/internal/consent"
	"github.com/beacon-lab/project-beacon/internal/sitesettings"
	"github.com/gin-gonic/gin"
)

// Config carries the service's knobs.
type Config struct {
	// WebhookSecret guards the webhook and server-side endpoints.
	WebhookSecret string

	// CORSOrigins are the origins allowed to call the public track endpoint.
	CORSOrigins []string

	// SecureCookies marks issued cookies Secure (release mode).
	SecureCookies bool

	// MaxBodySizeBytes caps inbound payloads.
	MaxBodySizeBytes int

	// CMSDatabaseID is the content database synced by the CMS webhook.
	CMSDatabaseID string
}

type Service struct {
	publisher message.Publisher
	settings  *sitesettings.Store
	cfg       Config
}

// NewService creates the ingestion service.
func NewService(publisher message.Publisher, settings *sitesettings.Store, cfg Config) *Service {
	if publisher == nil {
		panic("ingestion: publisher must not be nil")
	}
	if cfg.MaxBodySizeBytes <= 0 {
		cfg.MaxBodySizeBytes = 1 << 20
	}
	return &Service{
		publisher: publisher,
		settings:  settings,
		cfg:       cfg,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	// Public browser surface.
	r.POST("/events/track", s.corsMiddleware(), consent.Middleware(), s.TrackHandler)
	r.OPTIONS("/events/track", s.corsMiddleware())
	r.GET("/pixel.js", s.PixelHandler)
	r.GET("/api/banner", s.GetBannerHandler)

	// Trusted server-side surface.
	secret := s.secretMiddleware()
	r.POST("/events/ingest", secret, consent.Middleware(), s.IngestHandler)
	r.POST("/webhooks/ghost", secret, s.GhostWebhookHandler)
	r.POST("/webhooks/resend", secret, s.ResendWebhookHandler)
	r.POST("/webhooks/notion", secret, s.NotionWebhookHandler)
	r.POST("/webhooks/airtable", secret, s.AirtableWebhookHandler)
	r.PUT("/api/banner", secret, s.PutBannerHandler)
	r.DELETE("/api/banner", secret, s.DeleteBannerHandler)
}
