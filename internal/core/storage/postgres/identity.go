package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/core/storage"
)

// Identity graph operations.
//
// The stored-procedure atomicity of the original design is replaced by
// explicit transactions around SELECT ... FOR UPDATE plus conditional
// upserts. The contract is unchanged: get-or-create and merge are race-safe
// and idempotent, and an already-existing identity is never an error.

// GetOrCreateProfileByAnonymousID implements storage.IdentityStore.
func (a *Adapter) GetOrCreateProfileByAnonymousID(ctx context.Context, anonymousID string) (string, error) {
	var profileID string

	err := a.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, querySelectLinkForUpdate,
			event.IdentityAnonymous, anonymousID).Scan(&profileID)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx, queryTouchLink, event.IdentityAnonymous, anonymousID)
			return err
		case errors.Is(err, sql.ErrNoRows):
			// Fall through to create.
		default:
			return fmt.Errorf("failed to lock anonymous identity: %w", err)
		}

		var created string
		if err := tx.QueryRowContext(ctx, queryInsertAnonymousProfile).Scan(&created); err != nil {
			return fmt.Errorf("failed to create anonymous profile: %w", err)
		}

		// A concurrent transaction may have inserted the link between our
		// lock attempt and here; the conflict arm hands back the winner.
		if err := tx.QueryRowContext(ctx, queryUpsertLink,
			event.IdentityAnonymous, anonymousID, created).Scan(&profileID); err != nil {
			return fmt.Errorf("failed to upsert anonymous identity: %w", err)
		}
		if profileID != created {
			if _, err := tx.ExecContext(ctx, queryDeleteProfile, created); err != nil {
				return fmt.Errorf("failed to discard duplicate profile: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return profileID, nil
}

// MergeAnonymousToEmail implements storage.IdentityStore.
//
// Branches:
//   - neither identity known: one new profile owns both signals
//   - only the email known: the anonymous id is attached to its profile
//   - only the anonymous id known: the profile is upgraded with the email
//   - both known, different profiles: the email profile is authoritative;
//     every identity of the anonymous profile is repointed to it and the
//     anonymous profile row is orphaned
func (a *Adapter) MergeAnonymousToEmail(ctx context.Context, email, anonymousID, name, status string) (storage.MergeResult, error) {
	var res storage.MergeResult

	err := a.withTx(ctx, func(tx *sql.Tx) error {
		// Lock order: anonymous_id sorts before email.
		anonPID, err := lockLink(ctx, tx, event.IdentityAnonymous, anonymousID)
		if err != nil {
			return err
		}
		emailPID, err := lockLink(ctx, tx, event.IdentityEmail, email)
		if err != nil {
			return err
		}

		switch {
		case anonPID == "" && emailPID == "":
			var created string
			if err := tx.QueryRowContext(ctx, queryInsertEmailProfile, email, name, status).Scan(&created); err != nil {
				return fmt.Errorf("failed to create profile for merge: %w", err)
			}
			for _, link := range []struct {
				t event.IdentityType
				v string
			}{
				{event.IdentityAnonymous, anonymousID},
				{event.IdentityEmail, email},
			} {
				var got string
				if err := tx.QueryRowContext(ctx, queryUpsertLink, link.t, link.v, created).Scan(&got); err != nil {
					return fmt.Errorf("failed to attach %s identity: %w", link.t, err)
				}
			}
			res = storage.MergeResult{ProfileID: created, WasNewProfile: true}

		case anonPID == "":
			var got string
			if err := tx.QueryRowContext(ctx, queryUpsertLink,
				event.IdentityAnonymous, anonymousID, emailPID).Scan(&got); err != nil {
				return fmt.Errorf("failed to attach anonymous identity: %w", err)
			}
			if err := updateAttributes(ctx, tx, emailPID, email, name, status); err != nil {
				return err
			}
			res = storage.MergeResult{ProfileID: emailPID}

		case emailPID == "":
			var got string
			if err := tx.QueryRowContext(ctx, queryUpsertLink,
				event.IdentityEmail, email, anonPID).Scan(&got); err != nil {
				return fmt.Errorf("failed to attach email identity: %w", err)
			}
			if err := updateAttributes(ctx, tx, anonPID, email, name, status); err != nil {
				return err
			}
			res = storage.MergeResult{ProfileID: anonPID}

		case anonPID == emailPID:
			if err := updateAttributes(ctx, tx, emailPID, email, name, status); err != nil {
				return err
			}
			res = storage.MergeResult{ProfileID: emailPID}

		default:
			// Two pre-existing profiles. The email profile survives.
			if _, err := tx.ExecContext(ctx, queryRepointLinks, anonPID, emailPID); err != nil {
				return fmt.Errorf("failed to repoint identities: %w", err)
			}
			if err := updateAttributes(ctx, tx, emailPID, email, name, status); err != nil {
				return err
			}
			res = storage.MergeResult{ProfileID: emailPID, WasMerged: true}
		}
		return nil
	})
	if err != nil {
		return storage.MergeResult{}, err
	}

	slog.Debug("[Postgres] Identity merge resolved",
		"profile_id", res.ProfileID,
		"was_new_profile", res.WasNewProfile,
		"was_merged", res.WasMerged)
	return res, nil
}

// LinkAnonymousToProfile implements storage.IdentityStore.
//
// The anonymous id commonly already has a link from earlier page views, so
// this must repoint on conflict; converging on the existing profile would
// leave the link on the orphan anonymous profile forever.
func (a *Adapter) LinkAnonymousToProfile(ctx context.Context, profileID, anonymousID string) error {
	var got string
	err := a.stmtForceLink.QueryRowContext(ctx,
		event.IdentityAnonymous, anonymousID, profileID).Scan(&got)
	if err != nil {
		return fmt.Errorf("failed to link anonymous id to profile: %w", err)
	}
	if got != profileID {
		return fmt.Errorf("anonymous id %s linked to unexpected profile %s", anonymousID, got)
	}
	return nil
}

// GetProfileByIdentity implements storage.IdentityStore.
func (a *Adapter) GetProfileByIdentity(ctx context.Context, identityType event.IdentityType, identityValue string) (string, error) {
	var profileID string
	err := a.stmtTouchLink.QueryRowContext(ctx, identityType, identityValue).Scan(&profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get profile by identity: %w", err)
	}
	return profileID, nil
}

// UpsertProfileByEmail implements storage.ProfileStore.
func (a *Adapter) UpsertProfileByEmail(ctx context.Context, email, name, status string) (storage.Profile, error) {
	var p storage.Profile
	err := a.stmtUpsertProfile.QueryRowContext(ctx, email, name, status).
		Scan(&p.ID, &p.Email, &p.Name, &p.Status)
	if err != nil {
		return storage.Profile{}, fmt.Errorf("failed to upsert profile: %w", err)
	}

	// Keep the graph consistent: the email signal always has a link.
	var got string
	if err := a.stmtUpsertLink.QueryRowContext(ctx,
		event.IdentityEmail, email, p.ID).Scan(&got); err != nil {
		return storage.Profile{}, fmt.Errorf("failed to upsert email identity: %w", err)
	}
	return p, nil
}

func lockLink(ctx context.Context, tx *sql.Tx, t event.IdentityType, v string) (string, error) {
	var profileID string
	err := tx.QueryRowContext(ctx, querySelectLinkForUpdate, t, v).Scan(&profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to lock %s identity: %w", t, err)
	}
	return profileID, nil
}

func updateAttributes(ctx context.Context, tx *sql.Tx, profileID, email, name, status string) error {
	if _, err := tx.ExecContext(ctx, queryUpdateProfileAttributes, profileID, email, name, status); err != nil {
		return fmt.Errorf("failed to update profile attributes: %w", err)
	}
	return nil
}

func (a *Adapter) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("[Postgres] Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
