package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/leadconsole/pkg/api/errors"
	"github.com/jordanlanch/leadconsole/pkg/api/middleware"
	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/models"
)

// Assign puts a lead into an operator's queue. Agents may only assign to
// themselves; managers assign anyone.
// PUT /api/v1/:pipeline/leads/:id/assign
func (h *LeadHandler) Assign(c echo.Context) error {
	deps, ok := h.pipeline(c)
	if !ok {
		return errors.NotFoundError(c, "pipeline")
	}
	actor, ok := middleware.GetActor(c)
	if !ok {
		return errors.UnauthorizedError(c, "no actor")
	}

	var req models.AssignRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	pipeKey := c.Param("pipeline")
	assignee := domain.Actor{ID: req.AssigneeID, Name: req.AssigneeName, Role: domain.RoleAgent}
	lead, err := deps.Service.Assign(c.Request().Context(), actor, c.Param("id"), assignee)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordLeadMutation(pipeKey, "assign", false)
		}
		return errors.FromDomain(c, err)
	}
	if h.metrics != nil {
		h.metrics.RecordLeadMutation(pipeKey, "assign", true)
	}
	h.refreshSessions(pipeKey, *lead)
	return c.JSON(http.StatusOK, models.NewLeadResponse(*lead))
}

// Unassign returns a lead to the unowned pool.
// PUT /api/v1/:pipeline/leads/:id/unassign
func (h *LeadHandler) Unassign(c echo.Context) error {
	deps, ok := h.pipeline(c)
	if !ok {
		return errors.NotFoundError(c, "pipeline")
	}
	actor, ok := middleware.GetActor(c)
	if !ok {
		return errors.UnauthorizedError(c, "no actor")
	}

	pipeKey := c.Param("pipeline")
	lead, err := deps.Service.Unassign(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordLeadMutation(pipeKey, "unassign", false)
		}
		return errors.FromDomain(c, err)
	}
	if h.metrics != nil {
		h.metrics.RecordLeadMutation(pipeKey, "unassign", true)
	}
	h.refreshSessions(pipeKey, *lead)
	return c.JSON(http.StatusOK, models.NewLeadResponse(*lead))
}
