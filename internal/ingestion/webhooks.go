package ingestion

import (
	"log/slog"
	"net/http"

	httperr "github.com/beacon-lab/project-beacon/internal/core/errors"
	"github.com/beacon-lab/project-beacon/internal/normalize"
	"github.com/beacon-lab/project-beacon/internal/processors"
	"github.com/beacon-lab/project-beacon/internal/queue"
	"github.com/gin-gonic/gin"
)

// GhostEventHeader names the member event when the CMS sends it.
const GhostEventHeader = "X-Ghost-Event"

// GhostWebhookHandler accepts membership webhooks. Deletions are
// acknowledged and dropped.
func (s *Service) GhostWebhookHandler(c *gin.Context) {
	var payload normalize.GhostMemberPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		slog.Warn("Invalid ghost webhook body", "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		})
		return
	}

	evt, err := normalize.FromGhost(&payload, c.GetHeader(GhostEventHeader))
	if err != nil {
		slog.Warn("Ghost webhook rejected", "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidPayload,
			message:    msgInvalidPayload,
			details:    map[string]interface{}{"reason": err.Error()},
		})
		return
	}
	if evt == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := queue.PublishEvent(s.publisher, evt); err != nil {
		slog.Error("Failed to enqueue ghost event", "error", err, "type", evt.Type)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpEnqueueError,
			message:    msgEnqueueFailed,
		})
		return
	}

	slog.Info("Webhook event accepted", "source", evt.Source, "type", evt.Type)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// ResendWebhookHandler accepts email-delivery webhooks.
func (s *Service) ResendWebhookHandler(c *gin.Context) {
	var payload normalize.ResendWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		slog.Warn("Invalid resend webhook body", "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		})
		return
	}

	evt, err := normalize.FromResend(&payload)
	if err != nil {
		slog.Warn("Resend webhook rejected", "error", err, "type", payload.Type)
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidPayload,
			message:    msgInvalidPayload,
			details:    map[string]interface{}{"reason": err.Error()},
		})
		return
	}

	if err := queue.PublishEvent(s.publisher, evt); err != nil {
		slog.Error("Failed to enqueue resend event", "error", err, "type", evt.Type)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpEnqueueError,
			message:    msgEnqueueFailed,
		})
		return
	}

	slog.Info("Webhook event accepted", "source", evt.Source, "type", evt.Type)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type notionWebhookPayload struct {
	PageID string `json:"page_id"`
}

// NotionWebhookHandler enqueues a CMS sync job: a single page when the
// payload names one, otherwise a full import of the configured database.
func (s *Service) NotionWebhookHandler(c *gin.Context) {
	var payload notionWebhookPayload
	// Body is optional; an empty body means full import.
	_ = c.ShouldBindJSON(&payload)

	job := processors.CMSJob{
		Action:     processors.CMSActionImportAll,
		DatabaseID: s.cfg.CMSDatabaseID,
	}
	if payload.PageID != "" {
		job = processors.CMSJob{
			Action: processors.CMSActionImportPage,
			PageID: payload.PageID,
		}
	}

	if err := queue.PublishJSON(s.publisher, queue.TopicCMSSync, job); err != nil {
		slog.Error("Failed to enqueue cms sync job", "error", err, "action", job.Action)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpEnqueueError,
			message:    msgEnqueueFailed,
		})
		return
	}

	slog.Info("CMS sync job accepted", "action", job.Action, "page_id", payload.PageID)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// AirtableWebhookHandler refreshes the site settings cache after an upstream
// edit. The webhook body is ignored; the next read re-fetches from Redis.
func (s *Service) AirtableWebhookHandler(c *gin.Context) {
	if s.settings != nil {
		s.settings.Refresh()
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}
