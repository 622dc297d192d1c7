package ingestion

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/beacon-lab/project-beacon/internal/consent"
	httperr "github.com/beacon-lab/project-beacon/internal/core/errors"
	"github.com/beacon-lab/project-beacon/internal/core/event"
	"github.com/beacon-lab/project-beacon/internal/identity"
	"github.com/beacon-lab/project-beacon/internal/normalize"
	"github.com/beacon-lab/project-beacon/internal/queue"
	"github.com/gin-gonic/gin"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgInvalidPayload = "Payload rejected"
	msgEnqueueFailed  = "Failed to enqueue event"
)

// ingestionError carries the structured HTTP error shape from a helper back
// to the handler. Helpers return this instead of writing to gin.Context
// directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// TrackHandler accepts public browser events. Consent decides whether a
// durable anonymous id is issued; the event is accepted either way.
func (s *Service) TrackHandler(c *gin.Context) {
	we, ierr := s.parseWebEvent(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	hasConsent := consent.FromContext(c)
	anonID := we.AnonymousID
	if anonID == "" {
		anonID = consent.AnonymousID(c, s.cfg.SecureCookies)
	}

	s.acceptWebEvent(c, we, anonID, hasConsent)
}

// IngestHandler accepts trusted server-side events behind the shared secret.
// No cookies are issued; the caller supplies the anonymous id or a one-time
// id is generated.
func (s *Service) IngestHandler(c *gin.Context) {
	we, ierr := s.parseWebEvent(c)
	if ierr != nil {
		writeError(c, ierr)
		return
	}

	anonID := we.AnonymousID
	if anonID == "" {
		anonID = identity.NewAnonymousID()
	}

	s.acceptWebEvent(c, we, anonID, consent.FromContext(c))
}

// acceptWebEvent normalizes and enqueues a browser event, answering with the
// resolved anonymous id so the pixel can persist it client-side.
func (s *Service) acceptWebEvent(c *gin.Context, we *normalize.WebEvent, anonID string, hasConsent bool) {
	var user event.UserTraits
	if we.User != nil {
		user = *we.User
	}
	sig := identity.ExtractSignals(user, anonID)

	evt, err := normalize.FromWeb(we, sig, hasConsent)
	if err != nil {
		slog.Warn("Web event rejected", "error", err, "name", we.Name)
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidPayload,
			message:    msgInvalidPayload,
			details:    map[string]interface{}{"reason": err.Error()},
		})
		return
	}

	if err := queue.PublishEvent(s.publisher, evt); err != nil {
		slog.Error("Failed to enqueue web event", "error", err, "type", evt.Type)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpEnqueueError,
			message:    msgEnqueueFailed,
		})
		return
	}

	slog.Info("Event accepted",
		"type", evt.Type,
		"source", evt.Source,
		"identity_type", evt.IdentityType,
		"has_consent", hasConsent)

	c.JSON(http.StatusAccepted, gin.H{
		"status":      "accepted",
		"anonymousId": anonID,
	})
}

// parseWebEvent reads the size-capped body and binds the browser payload.
func (s *Service) parseWebEvent(c *gin.Context) (*normalize.WebEvent, *ingestionError) {
	maxBytes := int64(s.cfg.MaxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1)

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}
	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_bytes": maxBytes,
			},
		}
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var we normalize.WebEvent
	if err := c.ShouldBindJSON(&we); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}
	return &we, nil
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
