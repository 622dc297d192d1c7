package processors

import (
	"context"
	"fmt"

	"github.com/beacon-lab/project-beacon/internal/clients/resend"
	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/notify"
)

// HandleContact processes contact.submitted. The durable record is the
// critical path; the operator notification and the acknowledgment email to
// the sender are best-effort.
func (p *Processors) HandleContact(ctx context.Context, evt *event.Event) error {
	ct, err := evt.Traits.Contact()
	if err != nil {
		return fmt.Errorf("invalid contact payload: %w", err)
	}

	if _, err := p.deps.Resolver.Resolve(ctx, evt); err != nil {
		return err
	}
	if err := p.recordEvent(ctx, evt); err != nil {
		return err
	}

	notify.BestEffort(ctx, "contact-notification", func(ctx context.Context) error {
		return p.deps.Notifier.Notify(ctx, "Contact form submission",
			[2]string{"From", ct.Name},
			[2]string{"Email", ct.Email},
			[2]string{"Subject", ct.Subject},
			[2]string{"Message", truncate(ct.Message, 500)})
	})

	if p.deps.ContactFrom != "" {
		notify.BestEffort(ctx, "contact-acknowledgment", func(ctx context.Context) error {
			_, err := p.deps.Mailer.SendEmail(ctx, resend.SendEmailParams{
				From:    p.deps.ContactFrom,
				To:      []string{ct.Email},
				ReplyTo: p.deps.ContactTo,
				Subject: "Thanks for getting in touch",
				Text: fmt.Sprintf("Hi %s,\n\nThanks for your message. I read everything "+
					"and will get back to you soon.\n", firstNonEmpty(ct.Name, "there")),
			})
			return err
		})
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
