package ingestion

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed pixel.js
var pixelScript []byte

// PixelHandler serves the browser tracking script. The script is immutable
// per deploy, so intermediaries may cache it for a day.
func (s *Service) PixelHandler(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", pixelScript)
}
