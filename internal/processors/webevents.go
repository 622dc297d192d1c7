package processors

import (
	"context"

	"github.com/beacon-lab/project-beacon/internal/core/event"
)

// HandleWebEvent is the fallback for web-sourced events with no dedicated
// processor (page views, snippet searches, custom events). Identity
// resolution keeps the graph warm; the consent-gated record is the only
// durable effect.
func (p *Processors) HandleWebEvent(ctx context.Context, evt *event.Event) error {
	if _, err := p.deps.Resolver.Resolve(ctx, evt); err != nil {
		return err
	}
	return p.recordEvent(ctx, evt)
}
