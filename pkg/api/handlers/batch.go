package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/leadconsole/pkg/api/errors"
	"github.com/jordanlanch/leadconsole/pkg/api/middleware"
	"github.com/jordanlanch/leadconsole/pkg/batch"
	"github.com/jordanlanch/leadconsole/pkg/models"
)

// RunBatch applies one action across a set of leads and returns the job
// summary once every item has settled. The operator's live view session, if
// any, receives the optimistic updates and rollbacks.
// POST /api/v1/:pipeline/leads/batch
func (h *LeadHandler) RunBatch(c echo.Context) error {
	deps, ok := h.pipeline(c)
	if !ok {
		return errors.NotFoundError(c, "pipeline")
	}
	actor, ok := middleware.GetActor(c)
	if !ok {
		return errors.UnauthorizedError(c, "no actor")
	}

	var req models.BatchRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	pipeKey := c.Param("pipeline")
	engine := deps.Batch
	if cache := h.sessionCache(actor, pipeKey); cache != nil {
		engine = engine.WithCache(cache)
	}

	summary, err := engine.Run(c.Request().Context(), actor, batch.Request{
		Action:       batch.Action(req.Action),
		LeadIDs:      req.LeadIDs,
		AssigneeName: req.AssigneeName,
		AssigneeID:   req.AssigneeID,
		TemplateID:   req.TemplateID,
		Params:       req.Params,
	}, nil)
	if err != nil {
		return errors.FromDomain(c, err)
	}

	if h.metrics != nil {
		for _, item := range summary.Items {
			h.metrics.RecordBatchItem(pipeKey, req.Action, string(item.State))
			if req.Action == string(batch.ActionMessage) {
				h.metrics.RecordMessageSent(pipeKey, item.State == batch.StateCommitted)
			}
		}
	}
	return c.JSON(http.StatusOK, summary)
}
