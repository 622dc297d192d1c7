// Package queue provides the at-least-once delivery channel between the
// ingestion boundary and the event router. The in-process Go channel Pub/Sub
// stands in for a hosted broker; the contract consumers rely on (explicit
// ack/nack per message, redelivery on nack, a dead-letter topic) is the same.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/beacon-lab/project-beacon/internal/core/event"
)

// Topics carried by the queue.
const (
	// TopicEvents carries canonical events from ingestion to the router.
	TopicEvents = "events.pipeline"

	// TopicDLQ receives messages that exhausted their retries.
	TopicDLQ = "events.dlq"

	// TopicCMSSync carries CMS sync job descriptors.
	TopicCMSSync = "cms.sync"

	// TopicSummary carries daily-summary job descriptors.
	TopicSummary = "jobs.summary"
)

// Queue owns the Pub/Sub backing every topic.
type Queue struct {
	pubsub *gochannel.GoChannel
}

// New creates the in-process queue.
func New(logger watermill.LoggerAdapter) *Queue {
	return &Queue{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, logger),
	}
}

// Publisher exposes the publishing half.
func (q *Queue) Publisher() message.Publisher {
	return q.pubsub
}

// Subscriber exposes the consuming half.
func (q *Queue) Subscriber() message.Subscriber {
	return q.pubsub
}

// Close shuts the queue down; undelivered messages are dropped.
func (q *Queue) Close() error {
	return q.pubsub.Close()
}

// PublishEvent enqueues one canonical event.
func PublishEvent(pub message.Publisher, evt *event.Event) error {
	payload, err := evt.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize event for queue: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := pub.Publish(TopicEvents, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// PublishJSON enqueues an arbitrary job descriptor on the given topic.
func PublishJSON(pub message.Publisher, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize job for queue: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}
