package router

import (
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/beacon-lab/project-beacon/internal/core/storage"
	"github.com/google/uuid"
)

// DLQConsumer durably captures dead-lettered messages for manual inspection.
// No remediation happens here; operators replay by hand.
type DLQConsumer struct {
	store storage.FailedEventStore
}

// NewDLQConsumer creates the consumer over the failed-event store.
func NewDLQConsumer(store storage.FailedEventStore) *DLQConsumer {
	return &DLQConsumer{store: store}
}

// Handle persists one poisoned message. It always acks: a failed capture is
// logged with the full payload so nothing is silently lost, but redelivering
// a poison message back into the DLQ loop helps no one.
func (c *DLQConsumer) Handle(msg *message.Message) error {
	fe := &storage.FailedEvent{
		ID:       uuid.NewString(),
		Topic:    msg.Metadata.Get(middleware.PoisonedTopicKey),
		Payload:  append([]byte(nil), msg.Payload...),
		Reason:   msg.Metadata.Get(middleware.ReasonForPoisonedKey),
		FailedAt: time.Now().UTC(),
	}

	if err := c.store.SaveFailedEvent(msg.Context(), fe); err != nil {
		slog.Error("[DLQ] Failed to persist dead-lettered message",
			"message_id", msg.UUID,
			"reason", fe.Reason,
			"payload", string(msg.Payload),
			"error", err)
		return nil
	}

	slog.Warn("[DLQ] Dead-lettered message captured",
		"message_id", msg.UUID, "topic", fe.Topic, "reason", fe.Reason)
	return nil
}
