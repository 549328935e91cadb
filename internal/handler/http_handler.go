package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/iroosevelt/nerderland-live/internal/repository"
	"github.com/iroosevelt/nerderland-live/internal/service"
	"github.com/iroosevelt/nerderland-live/pkg/response"
)

// HTTPHandler serves the read-only HTTP API the web app polls for viewer
// counts and live stream ids.
type HTTPHandler struct {
	service service.SignalService
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc service.SignalService) *HTTPHandler {
	return &HTTPHandler{service: svc}
}

// GetViewerCount handles GET /api/v1/streams/:stream_id/viewers
func (h *HTTPHandler) GetViewerCount(c *gin.Context) {
	streamID := c.Param("stream_id")
	if streamID == "" {
		response.BadRequest(c, "stream_id is required")
		return
	}

	count, err := h.service.ViewerCount(c.Request.Context(), streamID)
	if err != nil {
		if errors.Is(err, repository.ErrStreamNotFound) {
			response.NotFound(c, "stream not found")
			return
		}
		response.InternalError(c, "failed to get viewer count")
		return
	}

	response.Success(c, gin.H{"stream_id": streamID, "viewers": count})
}

// GetLiveStreams handles GET /api/v1/live-streams
func (h *HTTPHandler) GetLiveStreams(c *gin.Context) {
	streams, err := h.service.LiveStreams(c.Request.Context())
	if err != nil {
		response.InternalError(c, "failed to list live streams")
		return
	}
	if streams == nil {
		streams = []string{}
	}

	response.Success(c, gin.H{"streams": streams})
}

// RegisterRoutes registers the HTTP API routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/live-streams", h.GetLiveStreams)
		api.GET("/streams/:stream_id/viewers", h.GetViewerCount)
	}
}
