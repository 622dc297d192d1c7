// Package processors holds the per-event-type business logic executed by the
// router. Each processor follows the same contract: a returned error nacks
// the message for retry, nil acks it. Side effects that must not block the
// pipeline (notifications, audience sync, acknowledgment emails) run through
// notify.BestEffort.
package processors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/beacon-lab/project-beacon/internal/clients/resend"
	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/core/storage"
	"github.com/beacon-lab/project-beacon/internal/identity"
	"github.com/google/uuid"
)

// Notifier delivers operator notifications. Implemented by telegram.Client;
// a nil client drops everything, so processors never branch on configuration.
type Notifier interface {
	Notify(ctx context.Context, title string, fields ...[2]string) error
}

// Mailer covers the transactional email and audience surface of the email
// provider.
type Mailer interface {
	SendEmail(ctx context.Context, params resend.SendEmailParams) (string, error)
	UpsertContact(ctx context.Context, contact resend.Contact) error
	RemoveContact(ctx context.Context, email string) error
}

// Deps wires every processor's collaborators in one place.
type Deps struct {
	Resolver      *identity.Resolver
	Events        storage.EventRecordStore
	Engagement    storage.EngagementStore
	Subscriptions storage.SubscriptionStore
	Profiles      storage.ProfileStore
	Content       storage.ContentStore
	Notifier      Notifier
	Mailer        Mailer

	// ContactFrom/ContactTo configure the contact-form acknowledgment email.
	ContactFrom string
	ContactTo   string
}

// Processors is the set of event handlers the router dispatches to.
type Processors struct {
	deps Deps
}

// New creates the processor set.
func New(deps Deps) *Processors {
	return &Processors{deps: deps}
}

// recordEvent appends the consent-gated analytics record for an event.
// Without consent the identity columns are nulled; traits and raw stay
// intact for aggregate counting. Persistence failures propagate so the
// message retries.
func (p *Processors) recordEvent(ctx context.Context, evt *event.Event) error {
	traits, err := json.Marshal(evt.Traits)
	if err != nil {
		return fmt.Errorf("failed to serialize traits: %w", err)
	}

	rec := &storage.EventRecord{
		ID:         uuid.NewString(),
		OccurredAt: evt.Timestamp,
		IngestedAt: time.Now().UTC(),
		Source:     evt.Source,
		Type:       evt.Type,
		Traits:     traits,
		Raw:        evt.Raw,
	}
	if evt.Traits.HasConsent {
		identityType := evt.IdentityType
		identityValue := evt.IdentityValue
		rec.IdentityType = &identityType
		rec.IdentityValue = &identityValue
	}

	if err := p.deps.Events.SaveEventRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to record %s event: %w", evt.Type, err)
	}
	return nil
}
