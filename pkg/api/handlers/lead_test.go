package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/leadconsole/pkg/batch"
	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/leads"
	"github.com/jordanlanch/leadconsole/pkg/leadstore"
	"github.com/jordanlanch/leadconsole/pkg/logger"
	"github.com/jordanlanch/leadconsole/pkg/models"
	"github.com/jordanlanch/leadconsole/pkg/pipeline"
	"github.com/jordanlanch/leadconsole/pkg/query"
)

var (
	testAdmin = domain.Actor{ID: "adm-1", Name: "Morgan", Role: domain.RoleAdmin}
	testAlice = domain.Actor{ID: "agt-1", Name: "Alice", Role: domain.RoleAgent}
)

func setupLeadTestHandler(t *testing.T) (*LeadHandler, *leadstore.Memory, pipeline.Config) {
	t.Helper()

	reg := pipeline.Defaults()
	pipe, err := reg.Get("web")
	require.NoError(t, err)

	store := leadstore.NewMemory(reg)
	store.Put(pipe.Collection, domain.Lead{
		ID: "l1", Name: "Dana Cole", Email: "dana.cole@example.com",
		Status: domain.StatusInterested, AssignedTo: "Alice", AssignedToID: "agt-1",
		CreatedAt: 1000,
	})
	store.Put(pipe.Collection, domain.Lead{
		ID: "l2", Name: "Marcus Webb", Email: "marcus@example.com",
		Status: domain.StatusInterested, AssignedTo: "-",
		CreatedAt: 2000,
	})
	store.Put(pipe.Collection, domain.Lead{
		ID: "l3", Name: "Dana Fox", Email: "dana.fox@example.com",
		Status: domain.StatusInterested, AssignedTo: "Bob", AssignedToID: "agt-2",
		CreatedAt: 3000,
	})

	composer := query.NewComposer(store, pipe, query.Options{PageSize: 2}, logger.Nop())
	service := leads.NewService(store, nil, nil, nil, pipe, logger.Nop())
	engine := batch.NewEngine(store, nil, nil, pipe, batch.Options{ChunkDelay: time.Millisecond}, logger.Nop())

	deps := map[string]PipelineDeps{
		pipe.Key: {Composer: composer, Service: service, Batch: engine},
	}
	return NewLeadHandler(deps, nil, nil, 0, logger.Nop()), store, pipe
}

func newLeadTestContext(t *testing.T, method, target, body string, actor *domain.Actor) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if actor != nil {
		c.Set("actor", *actor)
	}
	return c, rec
}

// --- List ---

func TestLeadHandler_List_Browse(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	c, rec := newLeadTestContext(t, http.MethodGet, "/api/v1/web/leads", "", &testAlice)
	c.SetParamNames("pipeline")
	c.SetParamValues("web")

	require.NoError(t, handler.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.LeadListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	// Default ordering is newest first.
	assert.Equal(t, "l3", resp.Data[0].ID)
	assert.Equal(t, "l2", resp.Data[1].ID)
	assert.True(t, resp.HasMore)
	assert.NotEmpty(t, resp.NextCursor)
}

func TestLeadHandler_List_Search(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	c, rec := newLeadTestContext(t, http.MethodGet, "/api/v1/web/leads?q=dana", "", &testAlice)
	c.SetParamNames("pipeline")
	c.SetParamValues("web")

	require.NoError(t, handler.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.LeadListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.False(t, resp.HasMore)
	for _, l := range resp.Data {
		assert.Contains(t, l.Name, "Dana")
	}
}

func TestLeadHandler_List_UnknownPipeline(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	c, rec := newLeadTestContext(t, http.MethodGet, "/api/v1/sms/leads", "", &testAlice)
	c.SetParamNames("pipeline")
	c.SetParamValues("sms")

	require.NoError(t, handler.List(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Error)
}

// --- View ---

func TestLeadHandler_View_ResidualFilter(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	c, rec := newLeadTestContext(t, http.MethodGet, "/api/v1/web/leads/view?assigned_to=-", "", &testAlice)
	c.SetParamNames("pipeline")
	c.SetParamValues("web")

	require.NoError(t, handler.View(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.LeadListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "l2", resp.Data[0].ID)
}

// countingLeadStore counts Query calls to observe session refresh behavior.
type countingLeadStore struct {
	domain.LeadStore
	queries atomic.Int32
}

func (s *countingLeadStore) Query(ctx context.Context, collection string, preds []domain.Predicate, srt domain.Sort, cursor string, limit int) (*domain.Page, error) {
	s.queries.Add(1)
	return s.LeadStore.Query(ctx, collection, preds, srt, cursor, limit)
}

func setupCountingHandler(t *testing.T, debounce time.Duration) (*LeadHandler, *countingLeadStore, PipelineDeps, pipeline.Config) {
	t.Helper()

	reg := pipeline.Defaults()
	pipe, err := reg.Get("web")
	require.NoError(t, err)

	mem := leadstore.NewMemory(reg)
	mem.Put(pipe.Collection, domain.Lead{ID: "l1", Name: "Solo Lead", Status: domain.StatusInterested, CreatedAt: 100})
	store := &countingLeadStore{LeadStore: mem}

	composer := query.NewComposer(store, pipe, query.Options{}, logger.Nop())
	deps := PipelineDeps{Composer: composer}
	h := NewLeadHandler(map[string]PipelineDeps{pipe.Key: deps}, nil, nil, debounce, logger.Nop())
	return h, store, deps, pipe
}

func TestLeadHandler_View_NoTrailingRefresh(t *testing.T) {
	handler, store, _, _ := setupCountingHandler(t, 20*time.Millisecond)

	c, rec := newLeadTestContext(t, http.MethodGet, "/api/v1/web/leads/view", "", &testAlice)
	c.SetParamNames("pipeline")
	c.SetParamValues("web")

	require.NoError(t, handler.View(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	served := store.queries.Load()

	// The synchronous refresh answered the request; nothing fires later
	// against the finished request's context.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, served, store.queries.Load())
}

func TestLeadHandler_Session_ConfiguredDebounce(t *testing.T) {
	handler, store, deps, pipe := setupCountingHandler(t, 25*time.Millisecond)

	engine := handler.session(testAlice, pipe.Key, deps)
	engine.SetState(context.Background(), query.FilterState{})

	// Well before the package default window would elapse, the session's
	// configured window has already fired the recompute.
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, int32(1), store.queries.Load())
	assert.Len(t, engine.View(), 1)
}

// --- Get ---

func TestLeadHandler_Get_Success(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	c, rec := newLeadTestContext(t, http.MethodGet, "/api/v1/web/leads/l1", "", &testAlice)
	c.SetParamNames("pipeline", "id")
	c.SetParamValues("web", "l1")

	require.NoError(t, handler.Get(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.LeadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Dana Cole", resp.Name)
}

func TestLeadHandler_Get_NotFound(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	c, rec := newLeadTestContext(t, http.MethodGet, "/api/v1/web/leads/ghost", "", &testAlice)
	c.SetParamNames("pipeline", "id")
	c.SetParamValues("web", "ghost")

	require.NoError(t, handler.Get(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- SaveNote ---

func TestLeadHandler_SaveNote_Success(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	body := `{"note":"Called, asked to ring back tomorrow."}`
	c, rec := newLeadTestContext(t, http.MethodPut, "/api/v1/web/leads/l1/note", body, &testAlice)
	c.SetParamNames("pipeline", "id")
	c.SetParamValues("web", "l1")

	require.NoError(t, handler.SaveNote(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.LeadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Called, asked to ring back tomorrow.", resp.Note)
	require.Len(t, resp.History, 1)
	assert.Equal(t, "Alice", resp.History[0].CreatedBy)
}

func TestLeadHandler_SaveNote_ForbiddenOnOthersLead(t *testing.T) {
	handler, store, pipe := setupLeadTestHandler(t)

	body := `{"note":"should not land"}`
	c, rec := newLeadTestContext(t, http.MethodPut, "/api/v1/web/leads/l3/note", body, &testAlice)
	c.SetParamNames("pipeline", "id")
	c.SetParamValues("web", "l3")

	require.NoError(t, handler.SaveNote(c))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "forbidden", resp.Error)

	stored, err := store.Get(t.Context(), pipe.Collection, "l3")
	require.NoError(t, err)
	assert.Empty(t, stored.Note)
}

func TestLeadHandler_SaveNote_EmptyNote(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	c, rec := newLeadTestContext(t, http.MethodPut, "/api/v1/web/leads/l1/note", `{"note":""}`, &testAlice)
	c.SetParamNames("pipeline", "id")
	c.SetParamValues("web", "l1")

	require.NoError(t, handler.SaveNote(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Error)
}

// --- ChangeStatus ---

func TestLeadHandler_ChangeStatus_FollowUpWithCallback(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	at := time.Now().Add(24 * time.Hour).UnixMilli()
	body := `{"status":"follow_up","confirmed":true,"callback_at":` + jsonInt(at) + `}`
	c, rec := newLeadTestContext(t, http.MethodPut, "/api/v1/web/leads/l1/status", body, &testAlice)
	c.SetParamNames("pipeline", "id")
	c.SetParamValues("web", "l1")

	require.NoError(t, handler.ChangeStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.LeadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "follow_up", resp.Status)
	require.NotNil(t, resp.Callback)
	assert.Equal(t, at, resp.Callback.ScheduledAt.UnixMilli())
	assert.Equal(t, "Alice", resp.Callback.ScheduledBy)
}

func TestLeadHandler_ChangeStatus_BackedOutCaptureKeepsStatus(t *testing.T) {
	handler, store, pipe := setupLeadTestHandler(t)

	body := `{"status":"follow_up","confirmed":false}`
	c, rec := newLeadTestContext(t, http.MethodPut, "/api/v1/web/leads/l1/status", body, &testAlice)
	c.SetParamNames("pipeline", "id")
	c.SetParamValues("web", "l1")

	require.NoError(t, handler.ChangeStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	stored, err := store.Get(t.Context(), pipe.Collection, "l1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInterested, stored.Status)
}

func TestLeadHandler_ChangeStatus_UnknownStatus(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	body := `{"status":"archived"}`
	c, rec := newLeadTestContext(t, http.MethodPut, "/api/v1/web/leads/l1/status", body, &testAlice)
	c.SetParamNames("pipeline", "id")
	c.SetParamValues("web", "l1")

	require.NoError(t, handler.ChangeStatus(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Assign ---

func TestLeadHandler_Assign_ClaimUnassigned(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	body := `{"assignee_id":"agt-1","assignee_name":"Alice"}`
	c, rec := newLeadTestContext(t, http.MethodPut, "/api/v1/web/leads/l2/assign", body, &testAlice)
	c.SetParamNames("pipeline", "id")
	c.SetParamValues("web", "l2")

	require.NoError(t, handler.Assign(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.LeadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Alice", resp.AssignedTo)
}

func TestLeadHandler_Unassign_Success(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	c, rec := newLeadTestContext(t, http.MethodPut, "/api/v1/web/leads/l1/unassign", "", &testAlice)
	c.SetParamNames("pipeline", "id")
	c.SetParamValues("web", "l1")

	require.NoError(t, handler.Unassign(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.LeadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.AssignedTo)
}

// --- Delete ---

func TestLeadHandler_Delete_ElevatedOnly(t *testing.T) {
	handler, store, pipe := setupLeadTestHandler(t)

	t.Run("Error - agent may not delete", func(t *testing.T) {
		c, rec := newLeadTestContext(t, http.MethodDelete, "/api/v1/web/leads/l1", "", &testAlice)
		c.SetParamNames("pipeline", "id")
		c.SetParamValues("web", "l1")

		require.NoError(t, handler.Delete(c))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Success - manager deletes", func(t *testing.T) {
		c, rec := newLeadTestContext(t, http.MethodDelete, "/api/v1/web/leads/l1", "", &testAdmin)
		c.SetParamNames("pipeline", "id")
		c.SetParamValues("web", "l1")

		require.NoError(t, handler.Delete(c))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		_, err := store.Get(t.Context(), pipe.Collection, "l1")
		assert.True(t, domain.IsNotFound(err))
	})
}

// --- Batch ---

func TestLeadHandler_RunBatch_Assign(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	body := `{"action":"assign","lead_ids":["l1","l2","ghost"],"assignee_id":"agt-1","assignee_name":"Alice"}`
	c, rec := newLeadTestContext(t, http.MethodPost, "/api/v1/web/leads/batch", body, &testAdmin)
	c.SetParamNames("pipeline")
	c.SetParamValues("web")

	require.NoError(t, handler.RunBatch(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var summary batch.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.NotEmpty(t, summary.JobID)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Items, 3)
}

func TestLeadHandler_RunBatch_UnknownAction(t *testing.T) {
	handler, _, _ := setupLeadTestHandler(t)

	body := `{"action":"purge","lead_ids":["l1"]}`
	c, rec := newLeadTestContext(t, http.MethodPost, "/api/v1/web/leads/batch", body, &testAdmin)
	c.SetParamNames("pipeline")
	c.SetParamValues("web")

	require.NoError(t, handler.RunBatch(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func jsonInt(v int64) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
