package processors

import (
	"context"
	"fmt"

	"github.com/beacon-lab/project-beacon/internal/core/event"
)

// HandleResendEvent is the fallback for email-delivery events
// (email.opened, email.clicked, email.bounced, contact.updated, ...). The
// recipient's profile is upserted so delivery history attaches to the right
// visitor, then the event is recorded.
func (p *Processors) HandleResendEvent(ctx context.Context, evt *event.Event) error {
	et, err := evt.Traits.Email()
	if err != nil {
		return fmt.Errorf("invalid email-delivery payload: %w", err)
	}

	name := et.FirstName
	if name != "" && et.LastName != "" {
		name = name + " " + et.LastName
	}
	if _, err := p.deps.Profiles.UpsertProfileByEmail(ctx, et.Email, name, ""); err != nil {
		return err
	}
	return p.recordEvent(ctx, evt)
}
