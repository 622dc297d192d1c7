package normalize

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/beacon-lab/project-beacon/internal/core/event"
)

// Ghost webhook event names we recognize, as delivered in the X-Ghost-Event
// header when present.
const (
	GhostMemberAdded   = "member.added"
	GhostMemberEdited  = "member.edited"
	GhostMemberDeleted = "member.deleted"
)

// GhostNewsletter is one newsletter membership entry.
type GhostNewsletter struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// GhostMember is the current-member snapshot in a Ghost webhook.
type GhostMember struct {
	ID          string            `json:"id"`
	UUID        string            `json:"uuid,omitempty"`
	Email       string            `json:"email" binding:"required"`
	Name        string            `json:"name,omitempty"`
	Status      string            `json:"status,omitempty"`
	CreatedAt   string            `json:"created_at,omitempty"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
	LastSeenAt  string            `json:"last_seen_at,omitempty"`
	Newsletters []GhostNewsletter `json:"newsletters"`
}

// GhostMemberPrevious is the partial previous-state snapshot. Ghost only
// includes changed fields here.
type GhostMemberPrevious struct {
	UpdatedAt   string             `json:"updated_at,omitempty"`
	LastSeenAt  string             `json:"last_seen_at,omitempty"`
	Newsletters *[]GhostNewsletter `json:"newsletters,omitempty"`
}

// GhostMemberPayload is the member webhook body.
type GhostMemberPayload struct {
	Member struct {
		Current  GhostMember         `json:"current" binding:"required"`
		Previous GhostMemberPrevious `json:"previous"`
	} `json:"member" binding:"required"`
}

// Validate rejects payloads without a member email.
func (p *GhostMemberPayload) Validate() error {
	if p.Member.Current.Email == "" {
		return fmt.Errorf("member.current.email is required")
	}
	return nil
}

// eventType determines the Ghost event from the header when present,
// otherwise infers it: an empty previous last_seen_at on a member whose
// created_at equals updated_at looks like a brand-new member.
func (p *GhostMemberPayload) eventType(header string) string {
	if header != "" {
		return header
	}
	current := p.Member.Current
	if p.Member.Previous.LastSeenAt == "" && current.CreatedAt != "" && current.CreatedAt == current.UpdatedAt {
		return GhostMemberAdded
	}
	return GhostMemberEdited
}

// classifyEdit infers subscription changes by diffing the newsletter
// membership list between the previous and current snapshots. A zero to
// nonzero transition is a subscribe, nonzero to zero an unsubscribe, and
// anything else a generic member edit.
//
// This heuristic treats "member of any newsletter" as subscribed; it cannot
// distinguish switching newsletters from staying subscribed, and an edit
// webhook that omits the previous newsletters block entirely classifies as a
// subscribe when the member holds any membership.
func (p *GhostMemberPayload) classifyEdit() string {
	current := p.Member.Current.Newsletters

	var previous []GhostNewsletter
	if p.Member.Previous.Newsletters != nil {
		previous = *p.Member.Previous.Newsletters
	}

	wasSubscribed := len(previous) > 0
	isSubscribed := len(current) > 0

	switch {
	case !wasSubscribed && isSubscribed:
		return event.TypeNewsletterSubscribed
	case wasSubscribed && !isSubscribed:
		return event.TypeNewsletterUnsubscribed
	default:
		return event.TypeMemberEdited
	}
}

// FromGhost builds the canonical event for a Ghost member webhook.
// eventHeader is the X-Ghost-Event value, empty when absent. Deletions are
// not processed and return a nil event.
func FromGhost(p *GhostMemberPayload, eventHeader string) (*event.Event, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	current := p.Member.Current

	var canonicalType string
	switch p.eventType(eventHeader) {
	case GhostMemberAdded:
		canonicalType = event.TypeSubscriberCreated
	case GhostMemberEdited:
		canonicalType = p.classifyEdit()
	case GhostMemberDeleted:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown ghost event type %q", eventHeader)
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to preserve raw payload: %w", err)
	}

	evt := &event.Event{
		Source:        event.SourceGhost,
		Type:          canonicalType,
		IdentityType:  event.IdentityEmail,
		IdentityValue: current.Email,
		Traits: event.Traits{
			User: event.UserTraits{
				Email:  current.Email,
				Name:   current.Name,
				Status: current.Status,
			},
			// Membership webhooks originate from an explicit signup, which
			// is the consent signal for this source.
			HasConsent: true,
		},
		Timestamp: time.Now().UTC(),
		Raw:       raw,
	}
	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return evt, nil
}
