package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/leadconsole/pkg/api/errors"
	"github.com/jordanlanch/leadconsole/pkg/api/middleware"
	"github.com/jordanlanch/leadconsole/pkg/models"
)

// SaveNote appends a note to a lead's history and updates the list field.
// PUT /api/v1/:pipeline/leads/:id/note
func (h *LeadHandler) SaveNote(c echo.Context) error {
	deps, ok := h.pipeline(c)
	if !ok {
		return errors.NotFoundError(c, "pipeline")
	}
	actor, ok := middleware.GetActor(c)
	if !ok {
		return errors.UnauthorizedError(c, "no actor")
	}

	var req models.NoteRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	pipeKey := c.Param("pipeline")
	lead, err := deps.Service.SaveNote(c.Request().Context(), actor, c.Param("id"), req.Note)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordLeadMutation(pipeKey, "note", false)
		}
		return errors.FromDomain(c, err)
	}
	if h.metrics != nil {
		h.metrics.RecordLeadMutation(pipeKey, "note", true)
	}
	h.refreshSessions(pipeKey, *lead)
	return c.JSON(http.StatusOK, models.NewLeadResponse(*lead))
}
