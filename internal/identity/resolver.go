package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/core/storage"
	"github.com/google/uuid"
)

// AnonymousIDPrefix marks server-issued anonymous ids.
const AnonymousIDPrefix = "anon_"

// NewAnonymousID generates a fresh anonymous id.
func NewAnonymousID() string {
	return AnonymousIDPrefix + uuid.NewString()
}

// Signals is the identity information extracted from an inbound event before
// normalization. Priority when choosing the primary signal: email > user id >
// anonymous id. An explicit profile id (magic link) rides along separately
// and is handled at resolution time.
type Signals struct {
	IdentityType  event.IdentityType
	IdentityValue string
	AnonymousID   string
}

// ExtractSignals picks the strongest identity signal from the user block of
// a browser event. anonymousID is the server-resolved anonymous id and is
// always carried, whichever signal wins.
func ExtractSignals(user event.UserTraits, anonymousID string) Signals {
	if user.Email != "" {
		return Signals{IdentityType: event.IdentityEmail, IdentityValue: user.Email, AnonymousID: anonymousID}
	}
	if user.ID != "" {
		return Signals{IdentityType: event.IdentityUserID, IdentityValue: user.ID, AnonymousID: anonymousID}
	}
	return Signals{IdentityType: event.IdentityAnonymous, IdentityValue: anonymousID, AnonymousID: anonymousID}
}

// Resolution is the outcome of resolving an event's identity against the
// graph. ProfileID is empty when the event carried no resolvable signal
// (user-id-only events mutate no graph state).
type Resolution struct {
	ProfileID string
	Merge     *storage.MergeResult
}

// Resolver maps an event's identity signals to a single canonical profile
// and keeps the identity graph consistent with every signal seen. All
// mutations go through the store's atomic primitives, so resolution is safe
// under redelivery and cross-invocation races.
type Resolver struct {
	identities storage.IdentityStore
	profiles   storage.ProfileStore
}

// NewResolver creates a resolver over the given stores.
func NewResolver(identities storage.IdentityStore, profiles storage.ProfileStore) *Resolver {
	return &Resolver{identities: identities, profiles: profiles}
}

// Resolve executes the branch policy, highest priority first:
//
//  1. Magic link: the event carries both a profile id and an anonymous id.
//     The anonymous id is linked to that profile; nothing else changes. The
//     link is not ownership proof, so no attributes are mutated.
//  2. Email + anonymous id: the core merge trigger. Both signals end up on
//     one profile; the email profile wins when two already exist.
//  3. Pure anonymous: get-or-create keyed by the anonymous id.
//  4. Email only: a plain profile upsert keyed by email.
//
// User-id-only events resolve to an existing profile when the graph knows
// the signal, and to nothing otherwise.
func (r *Resolver) Resolve(ctx context.Context, evt *event.Event) (Resolution, error) {
	traits := evt.Traits

	// Case 1: magic link.
	if traits.User.ProfileID != "" && traits.AnonymousID != "" {
		if err := r.identities.LinkAnonymousToProfile(ctx, traits.User.ProfileID, traits.AnonymousID); err != nil {
			return Resolution{}, fmt.Errorf("magic-link resolution failed: %w", err)
		}
		slog.Info("Linked anonymous session to known profile",
			"profile_id", traits.User.ProfileID,
			"anonymous_id", traits.AnonymousID)
		return Resolution{ProfileID: traits.User.ProfileID}, nil
	}

	switch evt.IdentityType {
	case event.IdentityEmail:
		// Case 2: email + anonymous id co-occurrence.
		if traits.AnonymousID != "" {
			merge, err := r.identities.MergeAnonymousToEmail(ctx,
				evt.IdentityValue, traits.AnonymousID, traits.User.Name, traits.User.Status)
			if err != nil {
				return Resolution{}, fmt.Errorf("identity merge failed: %w", err)
			}
			slog.Info("Identity merge completed",
				"profile_id", merge.ProfileID,
				"was_new_profile", merge.WasNewProfile,
				"was_merged", merge.WasMerged,
				"anonymous_id", traits.AnonymousID)
			return Resolution{ProfileID: merge.ProfileID, Merge: &merge}, nil
		}

		// Case 4: email only.
		profile, err := r.profiles.UpsertProfileByEmail(ctx,
			evt.IdentityValue, traits.User.Name, traits.User.Status)
		if err != nil {
			return Resolution{}, fmt.Errorf("email resolution failed: %w", err)
		}
		return Resolution{ProfileID: profile.ID}, nil

	case event.IdentityAnonymous:
		// Case 3: pure anonymous.
		profileID, err := r.identities.GetOrCreateProfileByAnonymousID(ctx, evt.IdentityValue)
		if err != nil {
			return Resolution{}, fmt.Errorf("anonymous resolution failed: %w", err)
		}
		return Resolution{ProfileID: profileID}, nil

	case event.IdentityUserID:
		profileID, err := r.identities.GetProfileByIdentity(ctx, event.IdentityUserID, evt.IdentityValue)
		if errors.Is(err, storage.ErrNotFound) {
			// Unknown user ids mutate no graph state.
			return Resolution{}, nil
		}
		if err != nil {
			return Resolution{}, fmt.Errorf("user-id resolution failed: %w", err)
		}
		return Resolution{ProfileID: profileID}, nil
	}

	return Resolution{}, fmt.Errorf("unsupported identity_type: %s", evt.IdentityType)
}

// RequireProfile resolves the event's identity and fails when no profile can
// be produced. Processors that persist rows against a profile use this.
func (r *Resolver) RequireProfile(ctx context.Context, evt *event.Event) (string, error) {
	res, err := r.Resolve(ctx, evt)
	if err != nil {
		return "", err
	}
	if res.ProfileID == "" {
		return "", fmt.Errorf("no profile resolvable for identity_type %s", evt.IdentityType)
	}
	return res.ProfileID, nil
}
