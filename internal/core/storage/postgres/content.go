package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/beacon-lab/project-beacon/internal/core/storage"
)

// UpsertPost implements storage.ContentStore. The post row and its tag set
// are replaced together so a sync job that fails mid-item never leaves a post
// with stale tags.
func (a *Adapter) UpsertPost(ctx context.Context, item storage.ContentItem) (string, error) {
	var postID string

	err := a.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, queryUpsertPostBySlug,
			item.Slug, item.Title, item.UpdatedAt).Scan(&postID); err != nil {
			return fmt.Errorf("failed to upsert post: %w", err)
		}
		if _, err := tx.ExecContext(ctx, queryDeletePostTags, postID); err != nil {
			return fmt.Errorf("failed to clear post tags: %w", err)
		}
		for _, tag := range item.Tags {
			if _, err := tx.ExecContext(ctx, queryInsertPostTag, postID, tag); err != nil {
				return fmt.Errorf("failed to insert post tag: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	slog.Debug("[Postgres] Synced content item", "slug", item.Slug, "post_id", postID)
	return postID, nil
}
