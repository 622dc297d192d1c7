// Package normalize converts heterogeneous source payloads (browser pixel
// events, Ghost member webhooks, Resend email webhooks) into the canonical
// event envelope. Every payload is validated against a strict, source-
// specific shape before normalization; malformed payloads never reach the
// queue.
package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/identity"
)

// WebEvent is the generic browser payload accepted by the ingestion
// endpoints: a dot-namespaced event name, optional client timestamp,
// optional identity block, shared web context and free-form properties.
type WebEvent struct {
	Name        string                 `json:"name" binding:"required"`
	Timestamp   *time.Time             `json:"timestamp,omitempty"`
	AnonymousID string                 `json:"anonymousId,omitempty"`
	User        *event.UserTraits      `json:"user,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Properties  map[string]interface{} `json:"properties,omitempty"`
}

// Validate rejects payloads that cannot become a canonical event.
func (w *WebEvent) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// FromWeb builds the canonical event for a browser payload. The traits carry
// the nested context/properties/user blocks plus the flattened spread; the
// event name is used directly as the canonical type.
func FromWeb(we *WebEvent, sig identity.Signals, hasConsent bool) (*event.Event, error) {
	if err := we.Validate(); err != nil {
		return nil, err
	}

	occurredAt := time.Now().UTC()
	if we.Timestamp != nil && !we.Timestamp.IsZero() {
		occurredAt = we.Timestamp.UTC()
	}

	var user event.UserTraits
	if we.User != nil {
		user = *we.User
	}

	raw, err := json.Marshal(we)
	if err != nil {
		return nil, fmt.Errorf("failed to preserve raw payload: %w", err)
	}

	evt := &event.Event{
		Source:        event.SourceWeb,
		Type:          we.Name,
		IdentityType:  sig.IdentityType,
		IdentityValue: sig.IdentityValue,
		Traits: event.Traits{
			Context:     event.ContextFromMap(we.Context),
			Properties:  we.Properties,
			User:        user,
			AnonymousID: sig.AnonymousID,
			HasConsent:  hasConsent,
		},
		Timestamp: occurredAt,
		Raw:       raw,
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return evt, nil
}
