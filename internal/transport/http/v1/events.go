package v1

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/replaykit/replayd/internal/domain"
	"github.com/replaykit/replayd/internal/errs"
)

// StreamEvents streams a session's events via SSE. With history=true past
// events are sent first (from fromPosition=N onwards), then the live feed.
// GET /v1/sessions/:session_id/events?history=true&fromPosition=N
func (h *Handler) StreamEvents(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	includeHistory := c.QueryParam("history") == "true"
	fromPosition := 0
	if raw := c.QueryParam("fromPosition"); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return respondError(c, errs.New(errs.CodeValidation, "fromPosition must be an integer"))
		}
		fromPosition = p
	}

	// Subscribe before reading history so no event falls in the gap;
	// duplicates on the seam are filtered by position below.
	sub := h.service.Subscribe(sessionID)
	defer h.service.Unsubscribe(sub)

	lastPosition := -1
	var history []domain.StoredEvent
	if includeHistory {
		events, err := h.service.Events(ctx, sessionID, fromPosition)
		if err != nil {
			return respondError(c, err)
		}
		history = events
	} else if exists, err := h.sessionExists(c, sessionID); err != nil {
		return respondError(c, err)
	} else if !exists {
		return respondError(c, errs.New(errs.CodeSessionNotFound, "session %s not found", sessionID))
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	for _, evt := range history {
		if err := writeSSEEvent(c, evt); err != nil {
			return nil
		}
		lastPosition = evt.Position
	}

	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			return nil
		case evt, ok := <-sub.C:
			if !ok {
				return nil
			}
			if evt.Position <= lastPosition {
				continue
			}
			if err := writeSSEEvent(c, evt); err != nil {
				return nil
			}
			lastPosition = evt.Position
		}
	}
}

func (h *Handler) sessionExists(c echo.Context, sessionID string) (bool, error) {
	if _, err := h.service.GetSession(c.Request().Context(), sessionID); err != nil {
		if errs.GetCode(err) == errs.CodeSessionNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// writeSSEEvent writes one event frame:
//
//	event: <name>
//	id: <id>
//	data: <json>
//
// terminated by a blank line.
func writeSSEEvent(c echo.Context, evt domain.StoredEvent) error {
	data, err := json.Marshal(evt.Event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(c.Response().Writer, "event: %s\nid: %s\ndata: %s\n\n", evt.Name, evt.ID, data); err != nil {
		return err
	}

	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamEventsWS mirrors the SSE feed over a WebSocket, one JSON event per
// message.
// GET /v1/sessions/:session_id/events/ws?history=true&fromPosition=N
func (h *Handler) StreamEventsWS(c echo.Context) error {
	sessionID := c.Param("session_id")

	if exists, err := h.sessionExists(c, sessionID); err != nil {
		return respondError(c, err)
	} else if !exists {
		return respondError(c, errs.New(errs.CodeSessionNotFound, "session %s not found", sessionID))
	}

	includeHistory := c.QueryParam("history") == "true"
	fromPosition := 0
	if raw := c.QueryParam("fromPosition"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil {
			fromPosition = p
		}
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := h.service.Subscribe(sessionID)
	defer h.service.Unsubscribe(sub)

	// Reader goroutine: surfaces the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	lastPosition := -1
	if includeHistory {
		events, err := h.service.Events(c.Request().Context(), sessionID, fromPosition)
		if err != nil {
			log.Printf("ERROR: failed to load history for session %s: %v", sessionID, err)
			return nil
		}
		for _, evt := range events {
			if err := conn.WriteJSON(evt); err != nil {
				return nil
			}
			lastPosition = evt.Position
		}
	}

	for {
		select {
		case <-done:
			return nil
		case evt, ok := <-sub.C:
			if !ok {
				return nil
			}
			if evt.Position <= lastPosition {
				continue
			}
			if err := conn.WriteJSON(evt); err != nil {
				return nil
			}
			lastPosition = evt.Position
		}
	}
}
