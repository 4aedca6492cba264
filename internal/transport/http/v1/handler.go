// Package v1 provides the HTTP handlers for the runtime's API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/replaykit/replayd/internal/errs"
	"github.com/replaykit/replayd/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Session control plane
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)
	e.POST("/v1/sessions/:session_id/input", h.AppendInput)
	e.POST("/v1/sessions/:session_id/pause", h.PauseSession)
	e.POST("/v1/sessions/:session_id/resume", h.ResumeSession)
	e.POST("/v1/sessions/:session_id/fork", h.ForkSession)

	// Event streaming and state
	e.GET("/v1/sessions/:session_id/events", h.StreamEvents)
	e.GET("/v1/sessions/:session_id/events/ws", h.StreamEventsWS)
	e.GET("/v1/sessions/:session_id/state", h.GetState)

	// Recording catalog
	e.GET("/v1/recordings", h.ListRecordings)
	e.GET("/v1/recordings/:hash", h.GetRecording)
	e.DELETE("/v1/recordings/:hash", h.DeleteRecording)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// respondError maps a domain error to a status code and safe body.
func respondError(c echo.Context, err error) error {
	return c.JSON(errs.HTTPStatus(err), map[string]string{
		"error": errs.UserMessage(err),
		"code":  string(errs.GetCode(err)),
	})
}
