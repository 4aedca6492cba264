package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/replaykit/replayd/internal/domain"
	"github.com/replaykit/replayd/internal/errs"
)

// CreateSessionRequest is the request to create and start a session.
type CreateSessionRequest struct {
	Input string `json:"input"`
}

// CreateSession creates and starts a new session.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, errs.New(errs.CodeValidation, "invalid request body"))
	}
	if req.Input == "" {
		return respondError(c, errs.New(errs.CodeValidation, "input is required"))
	}

	sessionID, err := h.service.CreateSession(ctx, req.Input)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"session_id": sessionID,
	})
}

// ListSessions lists all sessions.
// GET /v1/sessions
func (h *Handler) ListSessions(c echo.Context) error {
	sessions, err := h.service.ListSessions(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	if sessions == nil {
		sessions = []domain.SessionInfo{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// GetSession returns one session's summary.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	info, err := h.service.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// DeleteSession cancels and purges a session.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.service.DeleteSession(c.Request().Context(), c.Param("session_id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AppendInput appends and publishes a caller-supplied event.
// POST /v1/sessions/:session_id/input
func (h *Handler) AppendInput(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	var event domain.Event
	if err := c.Bind(&event); err != nil {
		return respondError(c, errs.New(errs.CodeValidation, "invalid event body"))
	}

	stored, err := h.service.AppendInput(ctx, sessionID, event)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":       stored.ID,
		"position": stored.Position,
	})
}

// PauseSession cancels the session's execution unit.
// POST /v1/sessions/:session_id/pause
func (h *Handler) PauseSession(c echo.Context) error {
	wasPaused, err := h.service.PauseSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{
		"wasPaused": wasPaused,
	})
}

// ResumeSession restarts a dormant session from its last recorded phase.
// POST /v1/sessions/:session_id/resume
func (h *Handler) ResumeSession(c echo.Context) error {
	wasResumed, err := h.service.ResumeSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{
		"wasResumed": wasResumed,
	})
}

// ForkSession copies the full event log into a new session.
// POST /v1/sessions/:session_id/fork
func (h *Handler) ForkSession(c echo.Context) error {
	forkID, copied, err := h.service.ForkSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessionId":    forkID,
		"eventsCopied": copied,
	})
}

// GetState returns the session's computed state, current or at an explicit
// position.
// GET /v1/sessions/:session_id/state?position=N
func (h *Handler) GetState(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	var position *int
	if raw := c.QueryParam("position"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return respondError(c, errs.New(errs.CodeValidation, "position must be an integer"))
		}
		position = &p
	}

	state, at, err := h.service.SessionState(ctx, sessionID, position)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"position": at,
		"state":    state,
	})
}
