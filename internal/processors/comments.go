package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/core/storage"
	"github.com/beacon-lab/project-beacon/internal/notify"
)

// HandleComment processes the comment.* family. Every comment is owned by a
// profile; updates and deletes are rejected when the resolved profile does
// not own the comment. Deletes are soft.
func (p *Processors) HandleComment(ctx context.Context, evt *event.Event) error {
	ct, err := evt.Traits.Comment(evt.Type)
	if err != nil {
		return fmt.Errorf("invalid comment payload: %w", err)
	}

	profileID, err := p.deps.Resolver.RequireProfile(ctx, evt)
	if err != nil {
		return err
	}

	switch evt.Type {
	case event.TypeCommentCreated:
		post, err := p.deps.Engagement.GetPost(ctx, ct.PostID)
		if err != nil {
			return fmt.Errorf("post %s lookup failed: %w", ct.PostID, err)
		}
		err = p.deps.Engagement.InsertComment(ctx, storage.Comment{
			PostID:          post.ID,
			ProfileID:       profileID,
			ParentCommentID: ct.ParentCommentID,
			Content:         ct.Content,
			CreatedAt:       evt.Timestamp,
		})
		if errors.Is(err, storage.ErrDuplicate) {
			slog.Debug("Comment already recorded", "post_id", post.ID, "profile_id", profileID)
		} else if err != nil {
			return err
		}

		if evt.Traits.HasConsent {
			notify.BestEffort(ctx, "comment-notification", func(ctx context.Context) error {
				return p.deps.Notifier.Notify(ctx, "New comment",
					[2]string{"Post", post.Title},
					[2]string{"Comment", truncate(ct.Content, 200)})
			})
		}

	case event.TypeCommentUpdated:
		if err := p.deps.Engagement.UpdateComment(ctx, ct.CommentID, profileID, ct.Content, evt.Timestamp); err != nil {
			return fmt.Errorf("comment %s update failed: %w", ct.CommentID, err)
		}

	case event.TypeCommentDeleted:
		if err := p.deps.Engagement.SoftDeleteComment(ctx, ct.CommentID, profileID, evt.Timestamp); err != nil {
			return fmt.Errorf("comment %s delete failed: %w", ct.CommentID, err)
		}

	default:
		return fmt.Errorf("unsupported comment event type: %s", evt.Type)
	}

	return p.recordEvent(ctx, evt)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
