package ingestion

import (
	"log/slog"
	"net/http"

	httperr "github.com/beacon-lab/project-beacon/internal/core/errors"
	"github.com/beacon-lab/project-beacon/internal/sitesettings"
	"github.com/gin-gonic/gin"
)

// GetBannerHandler serves the current site banner. Public; the site polls it
// on page load.
func (s *Service) GetBannerHandler(c *gin.Context) {
	if s.settings == nil {
		c.JSON(http.StatusOK, gin.H{"banner": sitesettings.Banner{}})
		return
	}

	banner, err := s.settings.GetBanner(c.Request.Context())
	if err != nil {
		slog.Error("Failed to read banner", "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to read banner",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"banner": banner})
}

// PutBannerHandler replaces the banner. Behind the shared secret.
func (s *Service) PutBannerHandler(c *gin.Context) {
	var banner sitesettings.Banner
	if err := c.ShouldBindJSON(&banner); err != nil {
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		})
		return
	}
	if banner.Message == "" {
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidPayload,
			message:    "banner message is required",
		})
		return
	}

	if err := s.settings.SetBanner(c.Request.Context(), banner); err != nil {
		slog.Error("Failed to write banner", "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to write banner",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated", "banner": banner})
}

// DeleteBannerHandler removes the banner. Behind the shared secret.
func (s *Service) DeleteBannerHandler(c *gin.Context) {
	if err := s.settings.DeleteBanner(c.Request.Context()); err != nil {
		slog.Error("Failed to delete banner", "error", err)
		writeError(c, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    "Failed to delete banner",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
