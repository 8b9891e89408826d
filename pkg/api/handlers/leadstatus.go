package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/leadconsole/pkg/api/errors"
	"github.com/jordanlanch/leadconsole/pkg/api/middleware"
	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/models"
)

// submittedCapture adapts the data the client collected in its capture form
// to the workflow hook the mutation service expects.
type submittedCapture struct {
	req models.StatusRequest
}

func (s submittedCapture) Capture(ctx context.Context, lead domain.Lead, target domain.Status) (*domain.CaptureResult, error) {
	res := &domain.CaptureResult{
		Confirmed: s.req.Confirmed,
		Language:  s.req.Language,
	}
	if s.req.CallbackAt != nil {
		at := time.UnixMilli(*s.req.CallbackAt)
		res.CallbackAt = &at
	}
	if s.req.ConvertedAt != nil {
		at := time.UnixMilli(*s.req.ConvertedAt)
		res.ConvertedAt = &at
	}
	return res, nil
}

// ChangeStatus moves a lead to a new status. Gated transitions carry the
// capture form data in the request body.
// PUT /api/v1/:pipeline/leads/:id/status
func (h *LeadHandler) ChangeStatus(c echo.Context) error {
	deps, ok := h.pipeline(c)
	if !ok {
		return errors.NotFoundError(c, "pipeline")
	}
	actor, ok := middleware.GetActor(c)
	if !ok {
		return errors.UnauthorizedError(c, "no actor")
	}

	var req models.StatusRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	pipeKey := c.Param("pipeline")
	lead, err := deps.Service.ChangeStatusWith(
		c.Request().Context(), actor, c.Param("id"),
		domain.Status(req.Status), submittedCapture{req: req},
	)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordLeadMutation(pipeKey, "status", false)
		}
		return errors.FromDomain(c, err)
	}
	if h.metrics != nil {
		h.metrics.RecordLeadMutation(pipeKey, "status", true)
		if lead.Status == domain.StatusConverted {
			h.metrics.RecordConversion(pipeKey)
		}
	}
	h.refreshSessions(pipeKey, *lead)
	return c.JSON(http.StatusOK, models.NewLeadResponse(*lead))
}
