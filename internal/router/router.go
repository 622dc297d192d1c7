// Package router consumes queued messages and dispatches them to processors.
// Dispatch tries an exact event-type match first, then falls back to a
// source-level handler; events matching neither are acknowledged and dropped
// with a warning, never retried.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/processors"
	"github.com/beacon-lab/project-beacon/internal/queue"
	"github.com/beacon-lab/project-beacon/internal/summary"
)

// Config tunes the retry/backoff middleware.
type Config struct {
	CloseTimeout    time.Duration
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CloseTimeout:    30 * time.Second,
		MaxRetries:      5,
		InitialInterval: time.Second,
		MaxInterval:     time.Minute,
		Multiplier:      2.0,
	}
}

// Handler processes one canonical event. A returned error nacks the message.
type Handler func(ctx context.Context, evt *event.Event) error

// Router owns the watermill message router and the dispatch table.
type Router struct {
	router   *message.Router
	byType   map[string]Handler
	byPrefix map[string]Handler
	bySource map[event.Source]Handler
}

// New builds the router over the given queue, wiring the full middleware
// chain: panic recovery, exponential-backoff retry, and dead-lettering to
// the DLQ topic once retries are exhausted.
func New(cfg Config, q *queue.Queue, procs *processors.Processors, cms *processors.CMSSync, reporter *summary.Reporter, dlq *DLQConsumer, logger watermill.LoggerAdapter) (*Router, error) {
	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create message router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		Multiplier:      cfg.Multiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	poison, err := middleware.PoisonQueue(q.Publisher(), queue.TopicDLQ)
	if err != nil {
		return nil, fmt.Errorf("failed to create poison queue middleware: %w", err)
	}
	wmRouter.AddMiddleware(poison)

	r := &Router{
		router: wmRouter,
		byType: map[string]Handler{
			event.TypeContactSubmitted:       procs.HandleContact,
			event.TypePostLiked:              procs.HandleLike,
			event.TypePostUnliked:            procs.HandleLike,
			event.TypeSnippetLiked:           procs.HandleLike,
			event.TypeSnippetUnliked:         procs.HandleLike,
			event.TypeSubscriberCreated:      procs.HandleSubscription,
			event.TypeNewsletterSubscribed:   procs.HandleSubscription,
			event.TypeNewsletterUnsubscribed: procs.HandleSubscription,
			event.TypeMemberEdited:           procs.HandleSubscription,
		},
		byPrefix: map[string]Handler{
			"comment.": procs.HandleComment,
		},
		bySource: map[event.Source]Handler{
			event.SourceWeb:    procs.HandleWebEvent,
			event.SourceResend: procs.HandleResendEvent,
		},
	}

	wmRouter.AddNoPublisherHandler("event_dispatcher", queue.TopicEvents, q.Subscriber(), r.dispatch)
	wmRouter.AddNoPublisherHandler("cms_sync", queue.TopicCMSSync, q.Subscriber(), func(msg *message.Message) error {
		var job processors.CMSJob
		if err := json.Unmarshal(msg.Payload, &job); err != nil {
			slog.Warn("[Router] Dropping undecodable cms job", "message_id", msg.UUID, "error", err)
			return nil
		}
		return cms.Handle(msg.Context(), &job)
	})

	wmRouter.AddNoPublisherHandler("daily_summary", queue.TopicSummary, q.Subscriber(), func(msg *message.Message) error {
		return reporter.Run(msg.Context())
	})

	// The DLQ consumer sits outside the retry chain: it must always ack.
	wmRouter.AddNoPublisherHandler("dlq_recorder", queue.TopicDLQ, q.Subscriber(), dlq.Handle)

	return r, nil
}

// dispatch decodes the canonical event and routes it. Undecodable payloads
// and unroutable events are acked; retrying cannot fix either.
func (r *Router) dispatch(msg *message.Message) error {
	evt, err := event.Unmarshal(msg.Payload)
	if err != nil {
		slog.Warn("[Router] Dropping undecodable message", "message_id", msg.UUID, "error", err)
		return nil
	}

	handler := r.resolveHandler(evt)
	if handler == nil {
		slog.Warn("[Router] No handler for event",
			"type", evt.Type, "source", evt.Source, "message_id", msg.UUID)
		return nil
	}

	if err := handler(msg.Context(), evt); err != nil {
		return fmt.Errorf("handler for %s failed: %w", evt.Type, err)
	}
	slog.Debug("[Router] Event processed", "type", evt.Type, "source", evt.Source)
	return nil
}

func (r *Router) resolveHandler(evt *event.Event) Handler {
	if h, ok := r.byType[evt.Type]; ok {
		return h
	}
	for prefix, h := range r.byPrefix {
		if strings.HasPrefix(evt.Type, prefix) {
			return h
		}
	}
	return r.bySource[evt.Source]
}

// Run starts consuming and blocks until the context is cancelled.
func (r *Router) Run(ctx context.Context) error {
	return r.router.Run(ctx)
}

// Running closes when every handler is consuming.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// Close drains in-flight messages up to the configured close timeout.
func (r *Router) Close() error {
	return r.router.Close()
}
