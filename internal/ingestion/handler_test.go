package ingestion

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/beacon-lab/project-beacon/internal/consent"
	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/identity"
	"github.com/beacon-lab/project-beacon/internal/processors"
	"github.com/beacon-lab/project-beacon/internal/queue"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	topics   []string
	payloads []message.Payload
	err      error
}

func (p *capturingPublisher) Publish(topic string, messages ...*message.Message) error {
	if p.err != nil {
		return p.err
	}
	for _, msg := range messages {
		p.topics = append(p.topics, topic)
		p.payloads = append(p.payloads, msg.Payload)
	}
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func setupTestService(t *testing.T, cfg Config) (*capturingPublisher, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pub := &capturingPublisher{}
	svc := NewService(pub, nil, cfg)

	r := gin.New()
	svc.RegisterRoutes(r)
	return pub, r
}

func postJSON(r *gin.Engine, path, body string, configure func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if configure != nil {
		configure(req)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodedEvent(t *testing.T, payload message.Payload) *event.Event {
	t.Helper()
	evt, err := event.Unmarshal(payload)
	require.NoError(t, err)
	return evt
}

func TestTrackHandler_AcceptsAndEchoesAnonymousID(t *testing.T) {
	pub, r := setupTestService(t, Config{WebhookSecret: "s3cret"})

	resp := postJSON(r, "/events/track", `{"name":"page.viewed","context":{"path":"/posts/go"}}`,
		func(req *http.Request) {
			req.Header.Set(consent.HeaderName, consent.Granted)
		})

	require.Equal(t, http.StatusAccepted, resp.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, "accepted", body["status"])
	require.True(t, strings.HasPrefix(body["anonymousId"], identity.AnonymousIDPrefix))

	require.Equal(t, []string{queue.TopicEvents}, pub.topics)
	evt := decodedEvent(t, pub.payloads[0])
	require.Equal(t, "page.viewed", evt.Type)
	require.Equal(t, event.SourceWeb, evt.Source)
	require.True(t, evt.Traits.HasConsent)
	require.Equal(t, body["anonymousId"], evt.Traits.AnonymousID)
	require.Equal(t, "/posts/go", evt.Traits.Context.Path)
}

func TestTrackHandler_BodyAnonymousIDWins(t *testing.T) {
	pub, r := setupTestService(t, Config{})

	resp := postJSON(r, "/events/track", `{"name":"page.viewed","anonymousId":"anon_pixel"}`, nil)
	require.Equal(t, http.StatusAccepted, resp.Code)

	evt := decodedEvent(t, pub.payloads[0])
	require.Equal(t, "anon_pixel", evt.Traits.AnonymousID)
	require.False(t, evt.Traits.HasConsent)
}

func TestTrackHandler_InvalidJSONRejected(t *testing.T) {
	pub, r := setupTestService(t, Config{})

	resp := postJSON(r, "/events/track", `{not-json`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Empty(t, pub.topics)
}

func TestTrackHandler_NonNamespacedNameRejected(t *testing.T) {
	pub, r := setupTestService(t, Config{})

	resp := postJSON(r, "/events/track", `{"name":"pageviewed"}`, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Empty(t, pub.topics)
}

func TestTrackHandler_OversizedBodyRejected(t *testing.T) {
	pub, r := setupTestService(t, Config{MaxBodySizeBytes: 64})

	big := `{"name":"page.viewed","properties":{"blob":"` + strings.Repeat("x", 128) + `"}}`
	resp := postJSON(r, "/events/track", big, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	require.Empty(t, pub.topics)
}

func TestTrackHandler_EnqueueFailureIs500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pub := &capturingPublisher{err: errors.New("queue closed")}
	svc := NewService(pub, nil, Config{})
	r := gin.New()
	svc.RegisterRoutes(r)

	resp := postJSON(r, "/events/track", `{"name":"page.viewed"}`, nil)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestTrackHandler_CORSPreflight(t *testing.T) {
	_, r := setupTestService(t, Config{CORSOrigins: []string{"https://site.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/events/track", nil)
	req.Header.Set("Origin", "https://site.example")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNoContent, resp.Code)
	require.Equal(t, "https://site.example", resp.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, resp.Header().Get("Access-Control-Allow-Headers"), consent.HeaderName)
}

func TestSecretMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		configure func(*http.Request)
		wantCode  int
	}{
		{
			name:      "missing secret rejected",
			secret:    "s3cret",
			configure: nil,
			wantCode:  http.StatusUnauthorized,
		},
		{
			name:   "wrong secret rejected",
			secret: "s3cret",
			configure: func(req *http.Request) {
				req.Header.Set(SecretHeader, "wrong")
			},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:   "header secret accepted",
			secret: "s3cret",
			configure: func(req *http.Request) {
				req.Header.Set(SecretHeader, "s3cret")
			},
			wantCode: http.StatusAccepted,
		},
		{
			name:   "unconfigured secret rejects everything",
			secret: "",
			configure: func(req *http.Request) {
				req.Header.Set(SecretHeader, "")
			},
			wantCode: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, r := setupTestService(t, Config{WebhookSecret: tt.secret})
			resp := postJSON(r, "/events/ingest", `{"name":"page.viewed"}`, tt.configure)
			require.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestSecretMiddleware_QueryParamFallback(t *testing.T) {
	pub, r := setupTestService(t, Config{WebhookSecret: "s3cret"})

	resp := postJSON(r, "/events/ingest?secret=s3cret", `{"name":"page.viewed"}`, nil)
	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Len(t, pub.topics, 1)
}

func TestIngestHandler_NeverSetsCookies(t *testing.T) {
	_, r := setupTestService(t, Config{WebhookSecret: "s3cret"})

	resp := postJSON(r, "/events/ingest", `{"name":"page.viewed"}`, func(req *http.Request) {
		req.Header.Set(SecretHeader, "s3cret")
		req.Header.Set(consent.HeaderName, consent.Granted)
	})
	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Empty(t, resp.Result().Cookies())
}

func TestGhostWebhook_DeletionIgnored(t *testing.T) {
	pub, r := setupTestService(t, Config{WebhookSecret: "s3cret"})

	body := `{"member":{"current":{"id":"m-1","email":"gone@example.com"}}}`
	resp := postJSON(r, "/webhooks/ghost", body, func(req *http.Request) {
		req.Header.Set(SecretHeader, "s3cret")
		req.Header.Set(GhostEventHeader, "member.deleted")
	})

	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "ignored")
	require.Empty(t, pub.topics)
}

func TestGhostWebhook_MemberAddedEnqueued(t *testing.T) {
	pub, r := setupTestService(t, Config{WebhookSecret: "s3cret"})

	body := `{"member":{"current":{"id":"m-1","email":"new@example.com","name":"Reader","status":"free"}}}`
	resp := postJSON(r, "/webhooks/ghost", body, func(req *http.Request) {
		req.Header.Set(SecretHeader, "s3cret")
		req.Header.Set(GhostEventHeader, "member.added")
	})

	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Equal(t, []string{queue.TopicEvents}, pub.topics)

	evt := decodedEvent(t, pub.payloads[0])
	require.Equal(t, event.TypeSubscriberCreated, evt.Type)
	require.Equal(t, event.SourceGhost, evt.Source)
	require.Equal(t, "new@example.com", evt.IdentityValue)
}

func TestResendWebhook_Enqueued(t *testing.T) {
	pub, r := setupTestService(t, Config{WebhookSecret: "s3cret"})

	body := `{"type":"email.opened","created_at":"2026-08-15T08:30:00Z","data":{"email_id":"em-1","to":["reader@example.com"]}}`
	resp := postJSON(r, "/webhooks/resend", body, func(req *http.Request) {
		req.Header.Set(SecretHeader, "s3cret")
	})

	require.Equal(t, http.StatusAccepted, resp.Code)
	evt := decodedEvent(t, pub.payloads[0])
	require.Equal(t, "email.opened", evt.Type)
	require.Equal(t, event.SourceResend, evt.Source)
}

func TestNotionWebhook_PageImport(t *testing.T) {
	pub, r := setupTestService(t, Config{WebhookSecret: "s3cret", CMSDatabaseID: "db-1"})

	resp := postJSON(r, "/webhooks/notion", `{"page_id":"pg-7"}`, func(req *http.Request) {
		req.Header.Set(SecretHeader, "s3cret")
	})

	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Equal(t, []string{queue.TopicCMSSync}, pub.topics)

	var job processors.CMSJob
	require.NoError(t, json.Unmarshal(pub.payloads[0], &job))
	require.Equal(t, processors.CMSActionImportPage, job.Action)
	require.Equal(t, "pg-7", job.PageID)
}

func TestNotionWebhook_EmptyBodyMeansFullImport(t *testing.T) {
	pub, r := setupTestService(t, Config{WebhookSecret: "s3cret", CMSDatabaseID: "db-1"})

	resp := postJSON(r, "/webhooks/notion", "", func(req *http.Request) {
		req.Header.Set(SecretHeader, "s3cret")
	})

	require.Equal(t, http.StatusAccepted, resp.Code)

	var job processors.CMSJob
	require.NoError(t, json.Unmarshal(pub.payloads[0], &job))
	require.Equal(t, processors.CMSActionImportAll, job.Action)
	require.Equal(t, "db-1", job.DatabaseID)
}

func TestAirtableWebhook_RefreshesWithoutSettings(t *testing.T) {
	_, r := setupTestService(t, Config{WebhookSecret: "s3cret"})

	resp := postJSON(r, "/webhooks/airtable", "", func(req *http.Request) {
		req.Header.Set(SecretHeader, "s3cret")
	})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "refreshed")
}
