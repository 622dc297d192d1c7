package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/core/storage"
	"github.com/lib/pq"
)

// pqUniqueViolation is the postgres error code for unique constraint hits.
const pqUniqueViolation = "23505"

// SaveEventRecord implements storage.EventRecordStore. The events table is
// append-only; identity columns are NULL for non-consented records.
func (a *Adapter) SaveEventRecord(ctx context.Context, rec *storage.EventRecord) error {
	var identityType, identityValue interface{}
	if rec.IdentityType != nil {
		identityType = string(*rec.IdentityType)
	}
	if rec.IdentityValue != nil {
		identityValue = *rec.IdentityValue
	}

	_, err := a.stmtSaveEvent.ExecContext(ctx,
		rec.ID,
		rec.OccurredAt,
		rec.IngestedAt,
		rec.Source,
		rec.Type,
		identityType,
		identityValue,
		nullableJSON(rec.Traits),
		nullableJSON(rec.Raw),
	)
	if err != nil {
		return fmt.Errorf("failed to save event record: %w", err)
	}

	slog.Debug("[Postgres] Saved event record",
		"event_id", rec.ID,
		"source", rec.Source,
		"type", rec.Type,
		"linked", rec.IdentityType != nil)
	return nil
}

// CountEventsSince implements storage.EventRecordStore. Keys are
// "source/type" pairs.
func (a *Adapter) CountEventsSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := a.db.QueryContext(ctx, queryCountEventsSince, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var source, eventType string
		var n int64
		if err := rows.Scan(&source, &eventType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[source+"/"+eventType] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event counts: %w", err)
	}
	return counts, nil
}

// GetPost implements storage.EngagementStore.
func (a *Adapter) GetPost(ctx context.Context, postID string) (storage.Post, error) {
	var p storage.Post
	err := a.stmtGetPost.QueryRowContext(ctx, postID).
		Scan(&p.ID, &p.Slug, &p.Title, &p.LikeCount)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Post{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Post{}, fmt.Errorf("failed to get post: %w", err)
	}
	return p, nil
}

// InsertLike implements storage.EngagementStore. The ON CONFLICT DO NOTHING
// arm returns no rows when the identity already liked the post.
func (a *Adapter) InsertLike(ctx context.Context, like storage.PostLike) error {
	var id int64
	err := a.stmtInsertLike.QueryRowContext(ctx,
		like.PostID, like.ProfileID, like.IdentityType, like.IdentityValue).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to insert like: %w", err)
	}
	return nil
}

// DeleteLike implements storage.EngagementStore.
func (a *Adapter) DeleteLike(ctx context.Context, postID string, identityType event.IdentityType, identityValue string) error {
	if _, err := a.db.ExecContext(ctx, queryDeleteLike, postID, identityType, identityValue); err != nil {
		return fmt.Errorf("failed to delete like: %w", err)
	}
	return nil
}

// InsertComment implements storage.EngagementStore.
func (a *Adapter) InsertComment(ctx context.Context, c storage.Comment) error {
	_, err := a.db.ExecContext(ctx, queryInsertComment,
		c.PostID, c.ProfileID, c.ParentCommentID, c.Content, c.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// UpdateComment implements storage.EngagementStore. Ownership is enforced by
// the profile_id predicate; a non-owned or missing comment is ErrNotFound.
func (a *Adapter) UpdateComment(ctx context.Context, commentID, profileID, content string, at time.Time) error {
	res, err := a.db.ExecContext(ctx, queryUpdateComment, commentID, profileID, content, at)
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	return requireRowAffected(res, "comment")
}

// SoftDeleteComment implements storage.EngagementStore.
func (a *Adapter) SoftDeleteComment(ctx context.Context, commentID, profileID string, at time.Time) error {
	res, err := a.db.ExecContext(ctx, querySoftDeleteComment, commentID, profileID, at)
	if err != nil {
		return fmt.Errorf("failed to soft-delete comment: %w", err)
	}
	return requireRowAffected(res, "comment")
}

// ActivateSubscription implements storage.SubscriptionStore.
func (a *Adapter) ActivateSubscription(ctx context.Context, profileID string, source event.Source, at time.Time) error {
	_, err := a.stmtUpsertSubState.ExecContext(ctx, profileID, source, true, at, nil)
	if err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}
	return nil
}

// DeactivateSubscription implements storage.SubscriptionStore.
func (a *Adapter) DeactivateSubscription(ctx context.Context, profileID string, source event.Source, at time.Time) error {
	_, err := a.stmtUpsertSubState.ExecContext(ctx, profileID, source, false, nil, at)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}
	return nil
}

// SaveFailedEvent implements storage.FailedEventStore.
func (a *Adapter) SaveFailedEvent(ctx context.Context, fe *storage.FailedEvent) error {
	_, err := a.stmtSaveFailedMsg.ExecContext(ctx,
		fe.ID, fe.Topic, nullableJSON(fe.Payload), fe.Reason, fe.FailedAt)
	if err != nil {
		return fmt.Errorf("failed to save dead-lettered event: %w", err)
	}
	return nil
}

func requireRowAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
