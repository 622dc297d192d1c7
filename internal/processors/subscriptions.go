package processors

import (
	"context"
	"fmt"

	"github.com/beacon-lab/project-beacon/internal/clients/resend"
	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/notify"
)

// HandleSubscription processes subscriber.created, newsletter.subscribed,
// newsletter.unsubscribed and member.edited. The profile upsert and the
// subscription state flip are the critical path; audience sync and the
// operator notification are best-effort.
func (p *Processors) HandleSubscription(ctx context.Context, evt *event.Event) error {
	st, err := evt.Traits.Subscription()
	if err != nil {
		return fmt.Errorf("invalid subscription payload: %w", err)
	}

	profile, err := p.deps.Profiles.UpsertProfileByEmail(ctx, st.Email, st.Name, st.Status)
	if err != nil {
		return err
	}

	switch evt.Type {
	case event.TypeSubscriberCreated, event.TypeNewsletterSubscribed:
		if err := p.deps.Subscriptions.ActivateSubscription(ctx, profile.ID, evt.Source, evt.Timestamp); err != nil {
			return err
		}
		notify.BestEffort(ctx, "audience-upsert", func(ctx context.Context) error {
			return p.deps.Mailer.UpsertContact(ctx, resend.Contact{
				Email:     st.Email,
				FirstName: st.Name,
			})
		})
		if evt.Type == event.TypeSubscriberCreated {
			notify.BestEffort(ctx, "subscriber-notification", func(ctx context.Context) error {
				return p.deps.Notifier.Notify(ctx, "New subscriber",
					[2]string{"Email", st.Email},
					[2]string{"Name", st.Name},
					[2]string{"Source", string(evt.Source)})
			})
		}

	case event.TypeNewsletterUnsubscribed:
		if err := p.deps.Subscriptions.DeactivateSubscription(ctx, profile.ID, evt.Source, evt.Timestamp); err != nil {
			return err
		}
		notify.BestEffort(ctx, "audience-remove", func(ctx context.Context) error {
			return p.deps.Mailer.RemoveContact(ctx, st.Email)
		})

	case event.TypeMemberEdited:
		// Attribute refresh only; the upsert above already applied it.

	default:
		return fmt.Errorf("unsupported subscription event type: %s", evt.Type)
	}

	return p.recordEvent(ctx, evt)
}
