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

// HandleLike processes post.liked, post.unliked and the snippet engagement
// family. Likes are keyed by (post_id, identity), so redelivery and repeated
// taps are idempotent; a duplicate like is success. A like against a post the
// content store does not know is a hard failure and retries, since the post
// may simply not have synced yet.
func (p *Processors) HandleLike(ctx context.Context, evt *event.Event) error {
	lt, err := evt.Traits.Like()
	if err != nil {
		return fmt.Errorf("invalid like payload: %w", err)
	}

	profileID, err := p.deps.Resolver.RequireProfile(ctx, evt)
	if err != nil {
		return err
	}

	post, err := p.deps.Engagement.GetPost(ctx, lt.PostID)
	if err != nil {
		return fmt.Errorf("post %s lookup failed: %w", lt.PostID, err)
	}

	switch evt.Type {
	case event.TypePostUnliked, event.TypeSnippetUnliked:
		if err := p.deps.Engagement.DeleteLike(ctx, post.ID, evt.IdentityType, evt.IdentityValue); err != nil {
			return err
		}
	default:
		err := p.deps.Engagement.InsertLike(ctx, storage.PostLike{
			PostID:        post.ID,
			ProfileID:     profileID,
			IdentityType:  evt.IdentityType,
			IdentityValue: evt.IdentityValue,
		})
		if errors.Is(err, storage.ErrDuplicate) {
			slog.Debug("Like already recorded", "post_id", post.ID, "profile_id", profileID)
		} else if err != nil {
			return err
		}
	}

	if err := p.recordEvent(ctx, evt); err != nil {
		return err
	}

	if evt.Traits.HasConsent && evt.Type == event.TypePostLiked {
		notify.BestEffort(ctx, "like-notification", func(ctx context.Context) error {
			return p.deps.Notifier.Notify(ctx, "New like",
				[2]string{"Post", post.Title},
				[2]string{"Slug", post.Slug},
				[2]string{"Total", fmt.Sprintf("%d", post.LikeCount+1)})
		})
	}
	return nil
}
