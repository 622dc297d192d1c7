package identity

import (
	"context"
	"testing"
	"time"

	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/core/storage"
	"github.com/stretchr/testify/require"
)

// fakeIdentityStore records calls and plays back canned results.
type fakeIdentityStore struct {
	linkedProfileID   string
	linkedAnonymousID string
	mergeResult       storage.MergeResult
	mergeErr          error
	getOrCreateID     string
	profileByIdentity map[string]string
}

func (f *fakeIdentityStore) GetOrCreateProfileByAnonymousID(_ context.Context, anonymousID string) (string, error) {
	return f.getOrCreateID, nil
}

func (f *fakeIdentityStore) MergeAnonymousToEmail(_ context.Context, email, anonymousID, name, status string) (storage.MergeResult, error) {
	return f.mergeResult, f.mergeErr
}

func (f *fakeIdentityStore) LinkAnonymousToProfile(_ context.Context, profileID, anonymousID string) error {
	f.linkedProfileID = profileID
	f.linkedAnonymousID = anonymousID
	return nil
}

func (f *fakeIdentityStore) GetProfileByIdentity(_ context.Context, identityType event.IdentityType, identityValue string) (string, error) {
	id, ok := f.profileByIdentity[string(identityType)+"/"+identityValue]
	if !ok {
		return "", storage.ErrNotFound
	}
	return id, nil
}

type fakeProfileStore struct {
	upserted storage.Profile
}

func (f *fakeProfileStore) UpsertProfileByEmail(_ context.Context, email, name, status string) (storage.Profile, error) {
	f.upserted = storage.Profile{ID: "prof-email", Email: email, Name: name, Status: status}
	return f.upserted, nil
}

func webEvent(identityType event.IdentityType, identityValue string, traits event.Traits) *event.Event {
	return &event.Event{
		Source:        event.SourceWeb,
		Type:          "page.viewed",
		IdentityType:  identityType,
		IdentityValue: identityValue,
		Traits:        traits,
		Timestamp:     time.Now().UTC(),
	}
}

func TestExtractSignals_Priority(t *testing.T) {
	sig := ExtractSignals(event.UserTraits{Email: "a@b.c", ID: "u-1"}, "anon_1")
	require.Equal(t, event.IdentityEmail, sig.IdentityType)
	require.Equal(t, "a@b.c", sig.IdentityValue)
	require.Equal(t, "anon_1", sig.AnonymousID)

	sig = ExtractSignals(event.UserTraits{ID: "u-1"}, "anon_1")
	require.Equal(t, event.IdentityUserID, sig.IdentityType)
	require.Equal(t, "u-1", sig.IdentityValue)

	sig = ExtractSignals(event.UserTraits{}, "anon_1")
	require.Equal(t, event.IdentityAnonymous, sig.IdentityType)
	require.Equal(t, "anon_1", sig.IdentityValue)
}

func TestResolve_MagicLink(t *testing.T) {
	identities := &fakeIdentityStore{}
	r := NewResolver(identities, &fakeProfileStore{})

	evt := webEvent(event.IdentityAnonymous, "anon_m", event.Traits{
		User:        event.UserTraits{ProfileID: "prof-42"},
		AnonymousID: "anon_m",
	})

	res, err := r.Resolve(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, "prof-42", res.ProfileID)
	require.Equal(t, "prof-42", identities.linkedProfileID)
	require.Equal(t, "anon_m", identities.linkedAnonymousID)
}

func TestResolve_EmailWithAnonymousTriggersMerge(t *testing.T) {
	identities := &fakeIdentityStore{
		mergeResult: storage.MergeResult{ProfileID: "prof-merged", WasMerged: true},
	}
	r := NewResolver(identities, &fakeProfileStore{})

	evt := webEvent(event.IdentityEmail, "a@b.c", event.Traits{AnonymousID: "anon_m"})

	res, err := r.Resolve(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, "prof-merged", res.ProfileID)
	require.NotNil(t, res.Merge)
	require.True(t, res.Merge.WasMerged)
}

func TestResolve_EmailOnlyUpserts(t *testing.T) {
	profiles := &fakeProfileStore{}
	r := NewResolver(&fakeIdentityStore{}, profiles)

	evt := webEvent(event.IdentityEmail, "a@b.c", event.Traits{User: event.UserTraits{Name: "A"}})

	res, err := r.Resolve(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, "prof-email", res.ProfileID)
	require.Nil(t, res.Merge)
	require.Equal(t, "a@b.c", profiles.upserted.Email)
}

func TestResolve_PureAnonymous(t *testing.T) {
	r := NewResolver(&fakeIdentityStore{getOrCreateID: "prof-anon"}, &fakeProfileStore{})

	evt := webEvent(event.IdentityAnonymous, "anon_p", event.Traits{AnonymousID: "anon_p"})

	res, err := r.Resolve(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, "prof-anon", res.ProfileID)
}

func TestResolve_UnknownUserIDMutatesNothing(t *testing.T) {
	r := NewResolver(&fakeIdentityStore{}, &fakeProfileStore{})

	evt := webEvent(event.IdentityUserID, "u-unknown", event.Traits{})

	res, err := r.Resolve(context.Background(), evt)
	require.NoError(t, err)
	require.Empty(t, res.ProfileID)
}

func TestResolve_KnownUserID(t *testing.T) {
	r := NewResolver(&fakeIdentityStore{
		profileByIdentity: map[string]string{"user_id/u-1": "prof-u1"},
	}, &fakeProfileStore{})

	evt := webEvent(event.IdentityUserID, "u-1", event.Traits{})

	res, err := r.Resolve(context.Background(), evt)
	require.NoError(t, err)
	require.Equal(t, "prof-u1", res.ProfileID)
}

func TestRequireProfile_FailsWithoutProfile(t *testing.T) {
	r := NewResolver(&fakeIdentityStore{}, &fakeProfileStore{})

	evt := webEvent(event.IdentityUserID, "u-unknown", event.Traits{})

	_, err := r.RequireProfile(context.Background(), evt)
	require.Error(t, err)
}

func TestNewAnonymousID_Prefix(t *testing.T) {
	id := NewAnonymousID()
	require.Contains(t, id, AnonymousIDPrefix)
	require.NotEqual(t, NewAnonymousID(), id)
}
