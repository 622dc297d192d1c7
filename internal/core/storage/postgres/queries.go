package postgres

// SQL for the identity graph, profiles, and the append-only event log.

const (
	// querySelectLinkForUpdate locks one identity link row for the duration
	// of a merge/get-or-create transaction. Locks are always acquired in
	// ascending (identity_type, identity_value) order to avoid deadlocks
	// between concurrent resolutions ("anonymous_id" sorts before "email").
	querySelectLinkForUpdate = `
		SELECT profile_id
		FROM identity_links
		WHERE identity_type = $1 AND identity_value = $2
		FOR UPDATE
	`

	// queryUpsertLink attaches an identity to a profile. The conflict arm
	// refreshes last_seen_at and reports the winning profile_id, which makes
	// concurrent first-sightings of the same signal converge on one profile.
	queryUpsertLink = `
		INSERT INTO identity_links (identity_type, identity_value, profile_id, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (identity_type, identity_value)
		DO UPDATE SET last_seen_at = now()
		RETURNING profile_id
	`

	// queryForceLink points an identity at the given profile unconditionally.
	// The magic-link path uses this: the caller already knows the owning
	// profile, so an existing link is repointed rather than kept. The
	// converge-on-existing arm of queryUpsertLink would silently leave the
	// link on its old anonymous profile here.
	queryForceLink = `
		INSERT INTO identity_links (identity_type, identity_value, profile_id, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (identity_type, identity_value)
		DO UPDATE SET profile_id = EXCLUDED.profile_id, last_seen_at = now()
		RETURNING profile_id
	`

	queryTouchLink = `
		UPDATE identity_links
		SET last_seen_at = now()
		WHERE identity_type = $1 AND identity_value = $2
		RETURNING profile_id
	`

	// queryRepointLinks moves every identity of the losing profile onto the
	// surviving one. The losing profile row is orphaned, never deleted.
	queryRepointLinks = `
		UPDATE identity_links
		SET profile_id = $2
		WHERE profile_id = $1
	`

	queryInsertAnonymousProfile = `
		INSERT INTO profiles (status) VALUES ('free') RETURNING id
	`

	queryDeleteProfile = `
		DELETE FROM profiles WHERE id = $1
	`

	// queryInsertEmailProfile converges on the existing row when two first
	// identifies race on the same new email; without the conflict arm the
	// loser would burn a retry on the unique violation.
	queryInsertEmailProfile = `
		INSERT INTO profiles (email, name, status)
		VALUES ($1, NULLIF($2, ''), COALESCE(NULLIF($3, ''), 'free'))
		ON CONFLICT (email)
		DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), profiles.name),
			status = COALESCE(NULLIF(EXCLUDED.status, ''), profiles.status),
			updated_at = now()
		RETURNING id
	`

	// queryUpsertProfileByEmail is a plain attribute upsert keyed by email.
	// Empty inbound name/status never clobber existing values.
	queryUpsertProfileByEmail = `
		INSERT INTO profiles (email, name, status)
		VALUES ($1, NULLIF($2, ''), COALESCE(NULLIF($3, ''), 'free'))
		ON CONFLICT (email)
		DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), profiles.name),
			status = COALESCE(NULLIF(EXCLUDED.status, ''), profiles.status),
			updated_at = now()
		RETURNING id, email, COALESCE(name, ''), COALESCE(status, '')
	`

	queryUpdateProfileAttributes = `
		UPDATE profiles
		SET email = COALESCE(profiles.email, $2),
			name = COALESCE(NULLIF($3, ''), profiles.name),
			status = COALESCE(NULLIF($4, ''), profiles.status),
			updated_at = now()
		WHERE id = $1
	`

	// querySaveEventRecord appends one analytics record. Identity columns
	// arrive NULL when consent was absent.
	querySaveEventRecord = `
		INSERT INTO events (
			id, occurred_at, ingested_at, source, type,
			identity_type, identity_value, traits, raw
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	queryCountEventsSince = `
		SELECT source, type, COUNT(*)
		FROM events
		WHERE occurred_at > $1
		GROUP BY source, type
	`

	queryGetPost = `
		SELECT id, slug, title, like_count
		FROM posts
		WHERE id = $1
	`

	// queryInsertLike relies on the (post_id, identity_type, identity_value)
	// unique constraint for redelivery safety. A trigger maintains
	// posts.like_count.
	queryInsertLike = `
		INSERT INTO post_likes (post_id, profile_id, identity_type, identity_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (post_id, identity_type, identity_value) DO NOTHING
		RETURNING id
	`

	queryDeleteLike = `
		DELETE FROM post_likes
		WHERE post_id = $1 AND identity_type = $2 AND identity_value = $3
	`

	queryInsertComment = `
		INSERT INTO comments (post_id, profile_id, parent_comment_id, content, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $5)
	`

	queryUpdateComment = `
		UPDATE comments
		SET content = $3, is_edited = TRUE, updated_at = $4
		WHERE id = $1 AND profile_id = $2 AND is_deleted = FALSE
	`

	querySoftDeleteComment = `
		UPDATE comments
		SET is_deleted = TRUE, updated_at = $3
		WHERE id = $1 AND profile_id = $2
	`

	queryUpsertSubscription = `
		INSERT INTO email_subscriptions (profile_id, source, subscribed, subscribed_at, unsubscribed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (profile_id)
		DO UPDATE SET
			source = EXCLUDED.source,
			subscribed = EXCLUDED.subscribed,
			subscribed_at = EXCLUDED.subscribed_at,
			unsubscribed_at = EXCLUDED.unsubscribed_at
	`

	queryUpsertPostBySlug = `
		INSERT INTO posts (slug, title, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (slug)
		DO UPDATE SET title = EXCLUDED.title, updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	queryDeletePostTags = `
		DELETE FROM post_tags WHERE post_id = $1
	`

	queryInsertPostTag = `
		INSERT INTO post_tags (post_id, tag) VALUES ($1, $2)
		ON CONFLICT (post_id, tag) DO NOTHING
	`

	querySaveFailedEvent = `
		INSERT INTO failed_events (id, topic, payload, reason, failed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
)
