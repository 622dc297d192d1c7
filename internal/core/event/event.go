package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Source identifies the origin system of a canonical event.
type Source string

const (
	SourceWeb    Source = "web"
	SourceGhost  Source = "ghost"
	SourceResend Source = "resend"
	SourceNotion Source = "notion"
)

// IdentityType classifies the identity signal attached to an event.
type IdentityType string

const (
	IdentityEmail     IdentityType = "email"
	IdentityAnonymous IdentityType = "anonymous_id"
	IdentityUserID    IdentityType = "user_id"
)

// Well-known event types. Type is dot-namespaced (domain.action); unknown
// types are still valid envelopes and fall through to source-level routing.
const (
	TypeSubscriberCreated      = "subscriber.created"
	TypeNewsletterSubscribed   = "newsletter.subscribed"
	TypeNewsletterUnsubscribed = "newsletter.unsubscribed"
	TypeMemberEdited           = "member.edited"

	TypeContactSubmitted = "contact.submitted"

	TypeCommentCreated = "comment.created"
	TypeCommentUpdated = "comment.updated"
	TypeCommentDeleted = "comment.deleted"

	TypePostLiked   = "post.liked"
	TypePostUnliked = "post.unliked"

	TypeSnippetViewed   = "snippet.viewed"
	TypeSnippetLiked    = "snippet.liked"
	TypeSnippetUnliked  = "snippet.unliked"
	TypeSnippetCopied   = "snippet.copied"
	TypeSnippetSearched = "snippet.searched"
)

// Event is the canonical, source-agnostic representation of any inbound
// occurrence. It is constructed once at the ingestion boundary, serialized
// onto the queue, and consumed by exactly one processor. The envelope is
// immutable after construction.
type Event struct {
	Source Source `json:"source"`

	// Type is the dot-namespaced event name, e.g. "post.liked".
	Type string `json:"type"`

	// IdentityType/IdentityValue are always populated, falling back to an
	// anonymous id. The consent gate decides whether they are persisted.
	IdentityType  IdentityType `json:"identity_type"`
	IdentityValue string       `json:"identity_value"`

	Traits Traits `json:"traits"`

	// Timestamp is event-time (client clock where available), distinct from
	// ingestion time.
	Timestamp time.Time `json:"timestamp"`

	// Raw preserves the original source payload for audit and replay.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Validate ensures the envelope carries every required attribute.
func (e *Event) Validate() error {
	if e.Source == "" {
		return fmt.Errorf("source is required")
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if !strings.Contains(e.Type, ".") {
		return fmt.Errorf("type %q must be dot-namespaced", e.Type)
	}
	if err := ValidateIdentityType(e.IdentityType); err != nil {
		return err
	}
	if e.IdentityValue == "" {
		return fmt.Errorf("identity_value is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// ValidateIdentityType rejects identity types outside the known set.
func ValidateIdentityType(t IdentityType) error {
	switch t {
	case IdentityEmail, IdentityAnonymous, IdentityUserID:
		return nil
	default:
		return fmt.Errorf("unknown identity_type %q", t)
	}
}

// Marshal serializes the event for the queue.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes a queued event payload.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode canonical event: %w", err)
	}
	return &e, nil
}
