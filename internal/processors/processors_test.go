package processors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beacon-lab/project-beacon/internal/clients/resend"
	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/core/storage"
	"github.com/beacon-lab/project-beacon/internal/identity"
	"github.com/stretchr/testify/require"
)

// fakeGraph implements IdentityStore and ProfileStore for the real resolver.
type fakeGraph struct {
	profiles map[string]string // identity_type/identity_value -> profile id
}

func (f *fakeGraph) GetOrCreateProfileByAnonymousID(_ context.Context, anonymousID string) (string, error) {
	return "prof-" + anonymousID, nil
}

func (f *fakeGraph) MergeAnonymousToEmail(_ context.Context, email, _, _, _ string) (storage.MergeResult, error) {
	return storage.MergeResult{ProfileID: "prof-" + email}, nil
}

func (f *fakeGraph) LinkAnonymousToProfile(_ context.Context, _, _ string) error { return nil }

func (f *fakeGraph) GetProfileByIdentity(_ context.Context, identityType event.IdentityType, identityValue string) (string, error) {
	id, ok := f.profiles[string(identityType)+"/"+identityValue]
	if !ok {
		return "", storage.ErrNotFound
	}
	return id, nil
}

func (f *fakeGraph) UpsertProfileByEmail(_ context.Context, email, name, status string) (storage.Profile, error) {
	return storage.Profile{ID: "prof-" + email, Email: email, Name: name, Status: status}, nil
}

type fakeEventStore struct {
	records []*storage.EventRecord
	err     error
}

func (f *fakeEventStore) SaveEventRecord(_ context.Context, rec *storage.EventRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeEventStore) CountEventsSince(_ context.Context, _ time.Time) (map[string]int64, error) {
	return nil, nil
}

type fakeEngagement struct {
	posts         map[string]storage.Post
	insertLikeErr error
	likes         []storage.PostLike
	deletes       []string
	comments      []storage.Comment
	updateErr     error
}

func (f *fakeEngagement) GetPost(_ context.Context, postID string) (storage.Post, error) {
	post, ok := f.posts[postID]
	if !ok {
		return storage.Post{}, storage.ErrNotFound
	}
	return post, nil
}

func (f *fakeEngagement) InsertLike(_ context.Context, like storage.PostLike) error {
	if f.insertLikeErr != nil {
		return f.insertLikeErr
	}
	f.likes = append(f.likes, like)
	return nil
}

func (f *fakeEngagement) DeleteLike(_ context.Context, postID string, _ event.IdentityType, _ string) error {
	f.deletes = append(f.deletes, postID)
	return nil
}

func (f *fakeEngagement) InsertComment(_ context.Context, c storage.Comment) error {
	f.comments = append(f.comments, c)
	return nil
}

func (f *fakeEngagement) UpdateComment(_ context.Context, _, _, _ string, _ time.Time) error {
	return f.updateErr
}

func (f *fakeEngagement) SoftDeleteComment(_ context.Context, _, _ string, _ time.Time) error {
	return f.updateErr
}

type fakeSubscriptions struct {
	activated   []string
	deactivated []string
}

func (f *fakeSubscriptions) ActivateSubscription(_ context.Context, profileID string, _ event.Source, _ time.Time) error {
	f.activated = append(f.activated, profileID)
	return nil
}

func (f *fakeSubscriptions) DeactivateSubscription(_ context.Context, profileID string, _ event.Source, _ time.Time) error {
	f.deactivated = append(f.deactivated, profileID)
	return nil
}

type fakeNotifier struct {
	titles []string
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, title string, _ ...[2]string) error {
	f.titles = append(f.titles, title)
	return f.err
}

type fakeMailer struct {
	sent     []resend.SendEmailParams
	upserted []resend.Contact
	removed  []string
	err      error
}

func (f *fakeMailer) SendEmail(_ context.Context, params resend.SendEmailParams) (string, error) {
	f.sent = append(f.sent, params)
	return "em-1", f.err
}

func (f *fakeMailer) UpsertContact(_ context.Context, contact resend.Contact) error {
	f.upserted = append(f.upserted, contact)
	return f.err
}

func (f *fakeMailer) RemoveContact(_ context.Context, email string) error {
	f.removed = append(f.removed, email)
	return f.err
}

type fixture struct {
	procs         *Processors
	events        *fakeEventStore
	engagement    *fakeEngagement
	subscriptions *fakeSubscriptions
	notifier      *fakeNotifier
	mailer        *fakeMailer
}

func newFixture() *fixture {
	graph := &fakeGraph{}
	f := &fixture{
		events: &fakeEventStore{},
		engagement: &fakeEngagement{posts: map[string]storage.Post{
			"p-1": {ID: "p-1", Slug: "go-post", Title: "A Go Post", LikeCount: 4},
		}},
		subscriptions: &fakeSubscriptions{},
		notifier:      &fakeNotifier{},
		mailer:        &fakeMailer{},
	}
	f.procs = New(Deps{
		Resolver:      identity.NewResolver(graph, graph),
		Events:        f.events,
		Engagement:    f.engagement,
		Subscriptions: f.subscriptions,
		Profiles:      graph,
		Notifier:      f.notifier,
		Mailer:        f.mailer,
		ContactFrom:   "hello@beacon.example",
		ContactTo:     "owner@beacon.example",
	})
	return f
}

func consentedEvent(eventType string, props map[string]interface{}) *event.Event {
	return &event.Event{
		Source:        event.SourceWeb,
		Type:          eventType,
		IdentityType:  event.IdentityAnonymous,
		IdentityValue: "anon_1",
		Traits: event.Traits{
			Properties:  props,
			AnonymousID: "anon_1",
			HasConsent:  true,
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestHandleLike_InsertsAndNotifies(t *testing.T) {
	f := newFixture()

	evt := consentedEvent(event.TypePostLiked, map[string]interface{}{"post_id": "p-1"})
	require.NoError(t, f.procs.HandleLike(context.Background(), evt))

	require.Len(t, f.engagement.likes, 1)
	require.Equal(t, "p-1", f.engagement.likes[0].PostID)
	require.Equal(t, "prof-anon_1", f.engagement.likes[0].ProfileID)
	require.Len(t, f.events.records, 1)
	require.Equal(t, []string{"New like"}, f.notifier.titles)
}

func TestHandleLike_DuplicateIsSuccess(t *testing.T) {
	f := newFixture()
	f.engagement.insertLikeErr = storage.ErrDuplicate

	evt := consentedEvent(event.TypePostLiked, map[string]interface{}{"post_id": "p-1"})
	require.NoError(t, f.procs.HandleLike(context.Background(), evt))
	require.Len(t, f.events.records, 1, "redelivered like still records the event")
}

func TestHandleLike_UnknownPostRetries(t *testing.T) {
	f := newFixture()

	evt := consentedEvent(event.TypePostLiked, map[string]interface{}{"post_id": "p-unsynced"})
	err := f.procs.HandleLike(context.Background(), evt)
	require.Error(t, err, "the post may not have synced yet; the message must retry")
	require.Empty(t, f.events.records)
}

func TestHandleLike_UnlikeDeletes(t *testing.T) {
	f := newFixture()

	evt := consentedEvent(event.TypePostUnliked, map[string]interface{}{"post_id": "p-1"})
	require.NoError(t, f.procs.HandleLike(context.Background(), evt))

	require.Equal(t, []string{"p-1"}, f.engagement.deletes)
	require.Empty(t, f.notifier.titles, "unlikes never notify")
}

func TestHandleWebEvent_ConsentGatesIdentityColumns(t *testing.T) {
	tests := []struct {
		name        string
		consent     bool
		wantIdentiy bool
	}{
		{name: "consented record keeps identity", consent: true, wantIdentiy: true},
		{name: "non-consented record nulls identity", consent: false, wantIdentiy: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			evt := consentedEvent("page.viewed", nil)
			evt.Traits.HasConsent = tt.consent
			require.NoError(t, f.procs.HandleWebEvent(context.Background(), evt))

			require.Len(t, f.events.records, 1)
			rec := f.events.records[0]
			if tt.wantIdentiy {
				require.NotNil(t, rec.IdentityType)
				require.Equal(t, "anon_1", *rec.IdentityValue)
			} else {
				require.Nil(t, rec.IdentityType)
				require.Nil(t, rec.IdentityValue)
			}
			require.NotEmpty(t, rec.Traits, "traits stay intact for aggregate counting")
		})
	}
}

func TestHandleSubscription_SubscriberCreated(t *testing.T) {
	f := newFixture()

	evt := consentedEvent(event.TypeSubscriberCreated, nil)
	evt.Source = event.SourceGhost
	evt.IdentityType = event.IdentityEmail
	evt.IdentityValue = "new@example.com"
	evt.Traits.User = event.UserTraits{Email: "new@example.com", Name: "Reader", Status: "free"}
	evt.Traits.AnonymousID = ""

	require.NoError(t, f.procs.HandleSubscription(context.Background(), evt))

	require.Equal(t, []string{"prof-new@example.com"}, f.subscriptions.activated)
	require.Len(t, f.mailer.upserted, 1)
	require.Equal(t, "new@example.com", f.mailer.upserted[0].Email)
	require.Equal(t, []string{"New subscriber"}, f.notifier.titles)
	require.Len(t, f.events.records, 1)
}

func TestHandleSubscription_UnsubscribeRemovesContact(t *testing.T) {
	f := newFixture()

	evt := consentedEvent(event.TypeNewsletterUnsubscribed, nil)
	evt.Source = event.SourceGhost
	evt.IdentityType = event.IdentityEmail
	evt.IdentityValue = "gone@example.com"
	evt.Traits.User = event.UserTraits{Email: "gone@example.com"}

	require.NoError(t, f.procs.HandleSubscription(context.Background(), evt))

	require.Equal(t, []string{"prof-gone@example.com"}, f.subscriptions.deactivated)
	require.Equal(t, []string{"gone@example.com"}, f.mailer.removed)
	require.Empty(t, f.notifier.titles)
}

func TestHandleSubscription_AudienceSyncFailureIsBestEffort(t *testing.T) {
	f := newFixture()
	f.mailer.err = errors.New("resend down")

	evt := consentedEvent(event.TypeNewsletterSubscribed, nil)
	evt.Traits.User = event.UserTraits{Email: "a@b.c"}

	require.NoError(t, f.procs.HandleSubscription(context.Background(), evt))
	require.Len(t, f.events.records, 1)
}

func TestHandleContact_NotifiesAndAcknowledges(t *testing.T) {
	f := newFixture()

	evt := consentedEvent(event.TypeContactSubmitted, map[string]interface{}{
		"subject": "Question",
		"message": "How does the pipeline work?",
	})
	evt.Traits.User = event.UserTraits{Email: "asker@example.com", Name: "Asker"}

	require.NoError(t, f.procs.HandleContact(context.Background(), evt))

	require.Equal(t, []string{"Contact form submission"}, f.notifier.titles)
	require.Len(t, f.mailer.sent, 1)
	require.Equal(t, "hello@beacon.example", f.mailer.sent[0].From)
	require.Equal(t, []string{"asker@example.com"}, f.mailer.sent[0].To)
	require.Len(t, f.events.records, 1)
}

func TestHandleContact_NoAckEmailWithoutSender(t *testing.T) {
	f := newFixture()
	f.procs.deps.ContactFrom = ""

	evt := consentedEvent(event.TypeContactSubmitted, map[string]interface{}{"message": "hi"})
	evt.Traits.User = event.UserTraits{Email: "asker@example.com"}

	require.NoError(t, f.procs.HandleContact(context.Background(), evt))
	require.Empty(t, f.mailer.sent)
}

func TestHandleContact_RejectsMissingMessage(t *testing.T) {
	f := newFixture()

	evt := consentedEvent(event.TypeContactSubmitted, nil)
	evt.Traits.User = event.UserTraits{Email: "asker@example.com"}

	require.Error(t, f.procs.HandleContact(context.Background(), evt))
	require.Empty(t, f.events.records)
}

func TestHandleComment_CreatedPersists(t *testing.T) {
	f := newFixture()

	evt := consentedEvent(event.TypeCommentCreated, map[string]interface{}{
		"post_id": "p-1",
		"content": "Great write-up",
	})
	require.NoError(t, f.procs.HandleComment(context.Background(), evt))

	require.Len(t, f.engagement.comments, 1)
	require.Equal(t, "p-1", f.engagement.comments[0].PostID)
	require.Equal(t, []string{"New comment"}, f.notifier.titles)
	require.Len(t, f.events.records, 1)
}

func TestHandleComment_UpdateOnForeignCommentFails(t *testing.T) {
	f := newFixture()
	f.engagement.updateErr = storage.ErrNotFound

	evt := consentedEvent(event.TypeCommentUpdated, map[string]interface{}{
		"comment_id": "c-1",
		"content":    "edited",
	})
	require.Error(t, f.procs.HandleComment(context.Background(), evt))
}

func TestRecordEventFailurePropagates(t *testing.T) {
	f := newFixture()
	f.events.err = errors.New("db down")

	evt := consentedEvent("page.viewed", nil)
	require.Error(t, f.procs.HandleWebEvent(context.Background(), evt))
}
