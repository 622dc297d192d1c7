package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/beacon-lab/project-beacon/internal/core/event"
)

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("entity not found")

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("entity already exists")

// Profile is a durable visitor record. Exactly one profile exists per
// distinct real-world visitor once identities are merged. Profiles are never
// hard-deleted; a merge orphans the losing row.
type Profile struct {
	ID     string
	Email  string // empty when the profile is anonymous-only
	Name   string
	Status string // free-text tier marker ("free", "paid", ...)
}

// MergeResult reports the outcome of reconciling an anonymous identity with
// an email identity. It is transient; only its effects on profiles and
// identity links are persisted.
type MergeResult struct {
	ProfileID     string
	WasNewProfile bool
	WasMerged     bool
}

// IdentityStore maintains the identity graph: the mapping from every known
// (identity_type, identity_value) signal to a canonical profile id.
//
// All mutating operations are atomic with respect to concurrent events from
// the same visitor and idempotent under queue redelivery. An identity that
// already exists is the expected case, never an error.
type IdentityStore interface {
	// GetOrCreateProfileByAnonymousID resolves an anonymous id to its
	// profile, creating an email-less profile when the id is new. Two
	// concurrent callers with the same new id observe the same profile.
	GetOrCreateProfileByAnonymousID(ctx context.Context, anonymousID string) (string, error)

	// MergeAnonymousToEmail reconciles an anonymous identity with an email
	// identity. If both already resolve to different profiles the email
	// profile wins and the anonymous identity is repointed to it.
	MergeAnonymousToEmail(ctx context.Context, email, anonymousID, name, status string) (MergeResult, error)

	// LinkAnonymousToProfile attaches an anonymous id to a known profile id
	// (magic-link case). Idempotent upsert; no profile attributes change.
	LinkAnonymousToProfile(ctx context.Context, profileID, anonymousID string) error

	// GetProfileByIdentity looks up the profile for a signal and refreshes
	// its last_seen timestamp. Returns ErrNotFound for unknown signals.
	GetProfileByIdentity(ctx context.Context, identityType event.IdentityType, identityValue string) (string, error)
}

// ProfileStore persists profile attribute mutations.
type ProfileStore interface {
	// UpsertProfileByEmail creates or updates a profile keyed by email and
	// ensures the email identity link exists.
	UpsertProfileByEmail(ctx context.Context, email, name, status string) (Profile, error)
}

// EventRecord is the append-only persisted form of a canonical event.
// Identity columns are nulled for non-consented events; traits and raw stay
// intact for aggregate, non-identifying counting.
type EventRecord struct {
	ID            string
	OccurredAt    time.Time
	IngestedAt    time.Time
	Source        event.Source
	Type          string
	IdentityType  *event.IdentityType
	IdentityValue *string
	Traits        json.RawMessage
	Raw           json.RawMessage
}

// EventRecordStore appends analytics event records. Records are never
// mutated or deleted.
type EventRecordStore interface {
	SaveEventRecord(ctx context.Context, rec *EventRecord) error

	// CountEventsSince aggregates record counts grouped by (source, type)
	// for events that occurred after the given time.
	CountEventsSince(ctx context.Context, since time.Time) (map[string]int64, error)
}

// PostLike is one like keyed by (post_id, identity). The upsert-shaped
// insert makes queue redelivery safe.
type PostLike struct {
	PostID        string
	ProfileID     string
	IdentityType  event.IdentityType
	IdentityValue string
}

// Comment is a reader comment on a post. Deletes are soft.
type Comment struct {
	ID              string
	PostID          string
	ProfileID       string
	ParentCommentID string
	Content         string
	IsEdited        bool
	IsDeleted       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Post is the minimal content entity engagement processors reference.
type Post struct {
	ID        string
	Slug      string
	Title     string
	LikeCount int64
}

// EngagementStore persists likes and comments against posts.
type EngagementStore interface {
	// GetPost returns ErrNotFound when the referenced post does not exist.
	GetPost(ctx context.Context, postID string) (Post, error)

	// InsertLike records a like. Returns ErrDuplicate when the identity has
	// already liked the post.
	InsertLike(ctx context.Context, like PostLike) error
	DeleteLike(ctx context.Context, postID string, identityType event.IdentityType, identityValue string) error

	InsertComment(ctx context.Context, c Comment) error
	// UpdateComment edits a comment body; the profile must own the comment.
	UpdateComment(ctx context.Context, commentID, profileID, content string, at time.Time) error
	// SoftDeleteComment marks a comment deleted; the profile must own it.
	SoftDeleteComment(ctx context.Context, commentID, profileID string, at time.Time) error
}

// ContentItem is a content entry synced from the CMS into the posts table.
type ContentItem struct {
	Slug      string
	Title     string
	Tags      []string
	UpdatedAt time.Time
}

// ContentStore syncs CMS content into the local posts table so engagement
// processors can reference it.
type ContentStore interface {
	// UpsertPost creates or updates the post keyed by slug and replaces its
	// tag set. Returns the post id.
	UpsertPost(ctx context.Context, item ContentItem) (string, error)
}

// SubscriptionStore tracks newsletter subscription state per profile.
type SubscriptionStore interface {
	ActivateSubscription(ctx context.Context, profileID string, source event.Source, at time.Time) error
	DeactivateSubscription(ctx context.Context, profileID string, source event.Source, at time.Time) error
}

// FailedEvent is a terminally-failed message captured off the dead-letter
// path for manual inspection.
type FailedEvent struct {
	ID       string
	Topic    string
	Payload  json.RawMessage
	Reason   string
	FailedAt time.Time
}

// FailedEventStore durably logs dead-lettered messages. No remediation.
type FailedEventStore interface {
	SaveFailedEvent(ctx context.Context, fe *FailedEvent) error
}
