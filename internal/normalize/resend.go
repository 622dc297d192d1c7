package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/beacon-lab/project-beacon/internal/core/event"
)

// ResendBounce carries bounce classification for email.bounced events.
type ResendBounce struct {
	Type    string `json:"type"`
	SubType string `json:"subType,omitempty"`
	Message string `json:"message,omitempty"`
}

// ResendData is the data block of a Resend webhook. Email events and
// contact events share the shape with different fields populated.
type ResendData struct {
	// Email event fields.
	EmailID string        `json:"email_id,omitempty"`
	From    string        `json:"from,omitempty"`
	To      []string      `json:"to,omitempty"`
	Subject string        `json:"subject,omitempty"`
	URL     string        `json:"url,omitempty"`
	Bounce  *ResendBounce `json:"bounce,omitempty"`

	// Contact event fields.
	ID           string `json:"id,omitempty"`
	AudienceID   string `json:"audience_id,omitempty"`
	Email        string `json:"email,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Unsubscribed bool   `json:"unsubscribed,omitempty"`
}

// ResendWebhookPayload is the body of a Resend webhook.
type ResendWebhookPayload struct {
	Type      string     `json:"type" binding:"required"`
	CreatedAt string     `json:"created_at"`
	Data      ResendData `json:"data"`
}

// RecipientEmail extracts the primary recipient: the contact email field
// when present, otherwise the first entry of the to list.
func (p *ResendWebhookPayload) RecipientEmail() string {
	if p.Data.Email != "" {
		return p.Data.Email
	}
	if len(p.Data.To) > 0 {
		return p.Data.To[0]
	}
	return ""
}

// FromResend builds the canonical event for a Resend webhook. The provider's
// type (email.opened, contact.created, ...) is used directly as the
// canonical type. Payloads without a resolvable recipient are rejected.
func FromResend(p *ResendWebhookPayload) (*event.Event, error) {
	if p.Type == "" {
		return nil, fmt.Errorf("type is required")
	}

	email := p.RecipientEmail()
	if email == "" {
		return nil, fmt.Errorf("resend event missing recipient email")
	}

	occurredAt := time.Now().UTC()
	if p.CreatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, p.CreatedAt); err == nil {
			occurredAt = parsed.UTC()
		}
	}

	props := map[string]interface{}{
		"email": email,
	}
	setIfNotEmpty := func(key, value string) {
		if value != "" {
			props[key] = value
		}
	}
	setIfNotEmpty("subject", p.Data.Subject)
	setIfNotEmpty("email_id", p.Data.EmailID)
	setIfNotEmpty("url", p.Data.URL)
	setIfNotEmpty("contact_id", p.Data.ID)
	setIfNotEmpty("audience_id", p.Data.AudienceID)
	setIfNotEmpty("first_name", p.Data.FirstName)
	setIfNotEmpty("last_name", p.Data.LastName)
	if p.Data.Bounce != nil {
		setIfNotEmpty("bounce_type", p.Data.Bounce.Type)
		setIfNotEmpty("bounce_message", p.Data.Bounce.Message)
	}
	if p.Data.Unsubscribed {
		props["unsubscribed"] = true
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to preserve raw payload: %w", err)
	}

	evt := &event.Event{
		Source:        event.SourceResend,
		Type:          p.Type,
		IdentityType:  event.IdentityEmail,
		IdentityValue: email,
		Traits: event.Traits{
			Properties: props,
			// Delivery events exist only for recipients who signed up.
			HasConsent: true,
		},
		Timestamp: occurredAt,
		Raw:       raw,
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return evt, nil
}
