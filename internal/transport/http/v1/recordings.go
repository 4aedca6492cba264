package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/replaykit/replayd/internal/domain"
	"github.com/replaykit/replayd/internal/errs"
)

// ListRecordings lists the finalized provider recordings.
// GET /v1/recordings
func (h *Handler) ListRecordings(c echo.Context) error {
	recordings, err := h.service.Recorder().List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	if recordings == nil {
		recordings = []domain.RecordingInfo{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"recordings": recordings,
	})
}

// GetRecording returns one finalized recording, stream events included.
// GET /v1/recordings/:hash
func (h *Handler) GetRecording(c echo.Context) error {
	hash := c.Param("hash")

	rec, err := h.service.Recorder().Load(c.Request().Context(), hash)
	if err != nil {
		return respondError(c, err)
	}
	if rec == nil {
		return respondError(c, errs.New(errs.CodeRecordingNotFound, "recording %s not found", hash))
	}
	return c.JSON(http.StatusOK, rec)
}

// DeleteRecording removes all captures for a hash.
// DELETE /v1/recordings/:hash
func (h *Handler) DeleteRecording(c echo.Context) error {
	if err := h.service.Recorder().Delete(c.Request().Context(), c.Param("hash")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
