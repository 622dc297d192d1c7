package normalize

import (
	"testing"
	"time"

	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/stretchr/testify/require"
)

func TestFromResend_RecipientFallbackOrder(t *testing.T) {
	tests := []struct {
		name      string
		data      ResendData
		wantEmail string
		wantErr   bool
	}{
		{
			name:      "contact email wins over to list",
			data:      ResendData{Email: "contact@example.com", To: []string{"to@example.com"}},
			wantEmail: "contact@example.com",
		},
		{
			name:      "first to entry when no contact email",
			data:      ResendData{To: []string{"first@example.com", "second@example.com"}},
			wantEmail: "first@example.com",
		},
		{
			name:    "no recipient rejects",
			data:    ResendData{Subject: "hi"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := FromResend(&ResendWebhookPayload{Type: "email.opened", Data: tt.data})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, event.IdentityEmail, evt.IdentityType)
			require.Equal(t, tt.wantEmail, evt.IdentityValue)
			require.Equal(t, event.SourceResend, evt.Source)
			require.True(t, evt.Traits.HasConsent)
		})
	}
}

func TestFromResend_TraitMapping(t *testing.T) {
	p := &ResendWebhookPayload{
		Type:      "email.bounced",
		CreatedAt: "2026-08-15T08:30:00Z",
		Data: ResendData{
			EmailID: "em-1",
			To:      []string{"reader@example.com"},
			Subject: "Weekly digest",
			Bounce:  &ResendBounce{Type: "hard", Message: "mailbox full"},
		},
	}

	evt, err := FromResend(p)
	require.NoError(t, err)

	et, err := evt.Traits.Email()
	require.NoError(t, err)
	require.Equal(t, "reader@example.com", et.Email)
	require.Equal(t, "em-1", et.EmailID)
	require.Equal(t, "Weekly digest", et.Subject)
	require.Equal(t, "hard", et.BounceType)
	require.Equal(t, "mailbox full", et.BounceMessage)

	want, _ := time.Parse(time.RFC3339, "2026-08-15T08:30:00Z")
	require.True(t, evt.Timestamp.Equal(want))
}

func TestFromResend_BadTimestampFallsBackToNow(t *testing.T) {
	before := time.Now().UTC()
	evt, err := FromResend(&ResendWebhookPayload{
		Type:      "email.sent",
		CreatedAt: "not-a-timestamp",
		Data:      ResendData{To: []string{"a@b.c"}},
	})
	require.NoError(t, err)
	require.False(t, evt.Timestamp.Before(before))
}
