package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/jordanlanch/leadconsole/pkg/api/errors"
	"github.com/jordanlanch/leadconsole/pkg/api/middleware"
	"github.com/jordanlanch/leadconsole/pkg/batch"
	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/leads"
	"github.com/jordanlanch/leadconsole/pkg/listview"
	"github.com/jordanlanch/leadconsole/pkg/logger"
	"github.com/jordanlanch/leadconsole/pkg/metrics"
	"github.com/jordanlanch/leadconsole/pkg/models"
	"github.com/jordanlanch/leadconsole/pkg/query"
)

// sessionTTL bounds how long an idle operator view session is kept.
const sessionTTL = 30 * time.Minute

// PageCache caches browse pages between identical list requests.
// cache.Client satisfies it.
type PageCache interface {
	GetPage(ctx context.Context, pipeline, stateKey, cursor string) (*domain.Page, error)
	CachePage(ctx context.Context, pipeline, stateKey, cursor string, page *domain.Page) error
}

// PipelineDeps bundles the per-pipeline engines.
type PipelineDeps struct {
	Composer *query.Composer
	Service  *leads.Service
	Batch    *batch.Engine
}

// viewSession is one operator's live view of one pipeline.
type viewSession struct {
	engine   *listview.Engine
	lastSeen time.Time
}

// LeadHandler handles lead endpoints for all pipelines.
type LeadHandler struct {
	deps      map[string]PipelineDeps
	pages     PageCache
	metrics   *metrics.Metrics
	debounce  time.Duration
	log       logger.Logger
	validator *validator.Validate

	sessionsMu sync.Mutex
	sessions   map[string]*viewSession
}

// NewLeadHandler creates a lead handler. pages and m are optional; a
// non-positive debounce falls back to the listview default.
func NewLeadHandler(deps map[string]PipelineDeps, pages PageCache, m *metrics.Metrics, debounce time.Duration, log logger.Logger) *LeadHandler {
	if log == nil {
		log = logger.Nop()
	}
	h := &LeadHandler{
		deps:      deps,
		pages:     pages,
		metrics:   m,
		debounce:  debounce,
		log:       log,
		validator: validator.New(),
		sessions:  make(map[string]*viewSession),
	}
	go h.cleanupSessions()
	return h
}

func (h *LeadHandler) pipeline(c echo.Context) (PipelineDeps, bool) {
	d, ok := h.deps[c.Param("pipeline")]
	return d, ok
}

// filterState converts the request into engine filter state.
func filterState(req models.LeadListRequest) query.FilterState {
	state := query.FilterState{
		Query:      req.Query,
		Source:     req.Source,
		Status:     domain.Status(req.Status),
		AssignedTo: req.AssignedTo,
		Converted:  req.Converted,
		From:       req.From,
		To:         req.To,
		SortKey:    req.SortKey,
		SortDesc:   req.SortDesc,
		View:       query.ViewBrowse,
	}
	if req.View == string(query.ViewFollowUp) {
		state.View = query.ViewFollowUp
	}
	return state
}

// filterHash identifies a browse filter selection, ignoring the cursor, so
// pagination through the same selection shares cached pages.
func filterHash(req models.LeadListRequest) string {
	req.Cursor = ""
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// List returns one page of leads: a ranked search when q is present, a
// cursor-paginated browse page otherwise.
// GET /api/v1/:pipeline/leads
func (h *LeadHandler) List(c echo.Context) error {
	deps, ok := h.pipeline(c)
	if !ok {
		return errors.NotFoundError(c, "pipeline")
	}

	var req models.LeadListRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	ctx := c.Request().Context()
	state := filterState(req)
	pipeKey := c.Param("pipeline")

	if state.SearchMode() {
		if h.metrics != nil {
			h.metrics.RecordLeadSearch(pipeKey)
		}
		found, err := deps.Composer.Search(ctx, state)
		if err != nil {
			return errors.FromDomain(c, domain.NewLoadFailedError(err))
		}
		return c.JSON(http.StatusOK, models.NewLeadListResponse(found, "", false))
	}

	if h.metrics != nil {
		h.metrics.RecordListQuery(pipeKey)
	}

	stateKey := filterHash(req)
	if h.pages != nil {
		cached, err := h.pages.GetPage(ctx, pipeKey, stateKey, req.Cursor)
		if err != nil {
			h.log.Warn("page cache read failed", "error", err)
		}
		if cached != nil {
			if h.metrics != nil {
				h.metrics.RecordCacheHit("list_page")
			}
			return c.JSON(http.StatusOK, models.NewLeadListResponse(cached.Items, cached.NextCursor, cached.HasMore))
		}
		if h.metrics != nil {
			h.metrics.RecordCacheMiss("list_page")
		}
	}

	page, err := deps.Composer.Page(ctx, state, req.Cursor)
	if err != nil {
		return errors.FromDomain(c, domain.NewLoadFailedError(err))
	}
	if h.pages != nil {
		if err := h.pages.CachePage(ctx, pipeKey, stateKey, req.Cursor, page); err != nil {
			h.log.Warn("page cache write failed", "error", err)
		}
	}
	return c.JSON(http.StatusOK, models.NewLeadListResponse(page.Items, page.NextCursor, page.HasMore))
}

// View returns the operator's assembled console view: residual filters and
// the active sort applied, callback ordering in the follow-up view. The view
// is session-scoped so repeated calls page through one consistent result set.
// GET /api/v1/:pipeline/leads/view
func (h *LeadHandler) View(c echo.Context) error {
	deps, ok := h.pipeline(c)
	if !ok {
		return errors.NotFoundError(c, "pipeline")
	}
	actor, ok := middleware.GetActor(c)
	if !ok {
		return errors.UnauthorizedError(c, "no actor")
	}

	var req models.LeadListRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	ctx := c.Request().Context()
	engine := h.session(actor, c.Param("pipeline"), deps)
	engine.SetState(ctx, filterState(req))

	if req.Cursor != "" {
		if err := engine.LoadMore(ctx); err != nil {
			return errors.FromDomain(c, domain.NewLoadFailedError(err))
		}
	} else {
		if err := engine.Refresh(ctx); err != nil {
			return errors.FromDomain(c, domain.NewLoadFailedError(err))
		}
	}

	cursor := ""
	if engine.HasMore() {
		cursor = "next"
	}
	return c.JSON(http.StatusOK, models.NewLeadListResponse(engine.View(), cursor, engine.HasMore()))
}

// Get returns one lead with its history.
// GET /api/v1/:pipeline/leads/:id
func (h *LeadHandler) Get(c echo.Context) error {
	deps, ok := h.pipeline(c)
	if !ok {
		return errors.NotFoundError(c, "pipeline")
	}
	lead, err := deps.Service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errors.FromDomain(c, err)
	}
	return c.JSON(http.StatusOK, models.NewLeadResponse(*lead))
}

// Delete removes a lead. Elevated roles only.
// DELETE /api/v1/:pipeline/leads/:id
func (h *LeadHandler) Delete(c echo.Context) error {
	deps, ok := h.pipeline(c)
	if !ok {
		return errors.NotFoundError(c, "pipeline")
	}
	actor, ok := middleware.GetActor(c)
	if !ok {
		return errors.UnauthorizedError(c, "no actor")
	}
	if err := deps.Service.Delete(c.Request().Context(), actor, c.Param("id")); err != nil {
		return errors.FromDomain(c, err)
	}
	h.dropFromSessions(c.Param("pipeline"), c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// session returns (or creates) the operator's view engine for a pipeline.
func (h *LeadHandler) session(actor domain.Actor, pipeKey string, deps PipelineDeps) *listview.Engine {
	key := actor.ID + ":" + pipeKey
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()

	if s, ok := h.sessions[key]; ok {
		s.lastSeen = time.Now()
		return s.engine
	}
	engine := listview.NewEngine(deps.Composer, h.debounce, h.log)
	h.sessions[key] = &viewSession{engine: engine, lastSeen: time.Now()}
	return engine
}

// sessionCache adapts an operator's view engine for batch optimistic
// updates. Nil when the operator has no live session.
func (h *LeadHandler) sessionCache(actor domain.Actor, pipeKey string) batch.Cache {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	if s, ok := h.sessions[actor.ID+":"+pipeKey]; ok {
		return s.engine
	}
	return nil
}

func (h *LeadHandler) dropFromSessions(pipeKey, id string) {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	for key, s := range h.sessions {
		if strings.HasSuffix(key, ":"+pipeKey) {
			s.engine.Remove(id)
		}
	}
}

// refreshSessions pushes a mutated lead into every live session that caches
// it, keeping open console views consistent.
func (h *LeadHandler) refreshSessions(pipeKey string, lead domain.Lead) {
	h.sessionsMu.Lock()
	defer h.sessionsMu.Unlock()
	for key, s := range h.sessions {
		if strings.HasSuffix(key, ":"+pipeKey) {
			s.engine.Replace(lead)
		}
	}
}

// cleanupSessions drops view sessions idle past the TTL.
func (h *LeadHandler) cleanupSessions() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		h.sessionsMu.Lock()
		now := time.Now()
		for key, s := range h.sessions {
			if now.Sub(s.lastSeen) > sessionTTL {
				s.engine.Stop()
				delete(h.sessions, key)
			}
		}
		h.sessionsMu.Unlock()
	}
}
