// Package batch applies one action uniformly across a set of leads:
// assignment changes or templated outbound messages. Targets are updated
// optimistically in the view cache, mutated in bounded-concurrency chunks,
// and rolled back individually on failure.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jordanlanch/leadconsole/pkg/authz"
	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/logger"
	"github.com/jordanlanch/leadconsole/pkg/pipeline"
)

// Action is the bulk operation kind.
type Action string

const (
	ActionAssign   Action = "assign"
	ActionUnassign Action = "unassign"
	ActionMessage  Action = "message"
)

// Valid reports whether the action is one the engine knows.
func (a Action) Valid() bool {
	switch a {
	case ActionAssign, ActionUnassign, ActionMessage:
		return true
	}
	return false
}

// ItemState tracks one target through the batch lifecycle.
type ItemState string

const (
	StatePending    ItemState = "pending"
	StateCommitted  ItemState = "committed"
	StateRolledBack ItemState = "rolledBack"
)

// Request describes one batch job. LeadIDs may contain duplicates; the
// engine deduplicates while preserving order.
type Request struct {
	Action       Action
	LeadIDs      []string
	AssigneeName string
	AssigneeID   string
	TemplateID   string
	Params       map[string]string
}

// ItemResult is the final outcome for one target.
type ItemResult struct {
	LeadID string    `json:"lead_id"`
	State  ItemState `json:"state"`
	Reason string    `json:"reason,omitempty"`
}

// Summary is the terminal report for a batch job.
type Summary struct {
	JobID     string       `json:"job_id"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Reasons   []string     `json:"reasons,omitempty"`
	Items     []ItemResult `json:"items"`
}

// Progress reports incremental completion, called after every settled item.
type Progress func(done, total int)

// Cache is the slice of the view layer the engine needs for optimistic
// updates and rollback. listview.Engine satisfies it.
type Cache interface {
	Lookup(id string) (*domain.Lead, bool)
	Replace(l domain.Lead) bool
}

// Options tune chunking. Chunks run sequentially; items within a chunk run
// concurrently.
type Options struct {
	ChunkSize  int           // default 5
	ChunkDelay time.Duration // minimum spacing between chunk starts
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 5
	}
	if o.ChunkDelay <= 0 {
		o.ChunkDelay = 200 * time.Millisecond
	}
	return o
}

// Engine executes batch jobs for one pipeline.
type Engine struct {
	store    domain.LeadStore
	notifier domain.Notifier
	cache    Cache
	pipe     pipeline.Config
	opts     Options
	log      logger.Logger
}

// NewEngine wires a batch engine. The cache is optional; without it the
// engine skips optimistic updates and mutates the store directly.
func NewEngine(store domain.LeadStore, notifier domain.Notifier, cache Cache, pipe pipeline.Config, opts Options, log logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		cache:    cache,
		pipe:     pipe,
		opts:     opts.withDefaults(),
		log:      log.With("pipeline", pipe.Key),
	}
}

// WithCache returns a copy of the engine bound to a different view cache,
// typically the calling operator's session.
func (e *Engine) WithCache(cache Cache) *Engine {
	clone := *e
	clone.cache = cache
	return &clone
}

type item struct {
	lead   domain.Lead
	prev   *domain.Lead // pre-batch snapshot for rollback, nil when uncached
	state  ItemState
	reason string
}

// Run executes one batch job to completion. Per-item failures never abort
// the batch; the summary carries every outcome. Message dispatch is not
// retried and not deduplicated across reruns.
func (e *Engine) Run(ctx context.Context, actor domain.Actor, req Request, onProgress Progress) (*Summary, error) {
	if !req.Action.Valid() {
		return nil, domain.NewValidationError(fmt.Sprintf("unknown batch action: %s", req.Action))
	}
	if req.Action == ActionAssign && req.AssigneeName == "" {
		return nil, domain.NewValidationError("assignee is required")
	}
	// Agents may only assign to themselves, the same rule the single-lead
	// path enforces through authz.CanAssign.
	if req.Action == ActionAssign && actor.Role == domain.RoleAgent && req.AssigneeID != actor.ID {
		return nil, domain.NewForbiddenError(authz.ReasonAssignSelf)
	}
	if req.Action == ActionMessage && req.TemplateID == "" {
		req.TemplateID = e.pipe.MessageTemplateID
	}

	ids := dedupe(req.LeadIDs)
	if len(ids) == 0 {
		return nil, domain.NewValidationError("no target leads")
	}

	jobID := uuid.New().String()
	log := e.log.With("job_id", jobID, "action", string(req.Action))
	log.Info("batch started", "targets", len(ids))

	items, missing := e.load(ctx, ids)

	leads := make([]domain.Lead, len(items))
	for i := range items {
		leads[i] = items[i].lead
	}
	if d := authz.CanBulkMutate(actor, leads, mutationKind(req.Action)); !d.Allowed {
		return nil, domain.NewForbiddenError(d.Reason)
	}

	// Optimistic pass: every target reflects the pending result before any
	// store round trip. Failed items are restored afterwards.
	if e.cache != nil && req.Action != ActionMessage {
		for i := range items {
			e.cache.Replace(applyAction(items[i].lead, req))
		}
	}

	total := len(items) + len(missing)
	done := len(missing)
	report := func() {
		if onProgress != nil {
			onProgress(done, total)
		}
	}
	report()

	limiter := rate.NewLimiter(rate.Every(e.opts.ChunkDelay), 1)
	for start := 0; start < len(items); start += e.opts.ChunkSize {
		end := start + e.opts.ChunkSize
		if end > len(items) {
			end = len(items)
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to pace batch chunks: %w", err)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				e.settle(gctx, &items[i], actor, req)
				return nil
			})
		}
		_ = g.Wait()

		done += end - start
		report()
	}

	summary := &Summary{JobID: jobID, Items: make([]ItemResult, 0, total)}
	for _, id := range missing {
		summary.Failed++
		summary.Reasons = append(summary.Reasons, fmt.Sprintf("%s: lead not found", id))
		summary.Items = append(summary.Items, ItemResult{LeadID: id, State: StateRolledBack, Reason: "lead not found"})
	}
	for _, it := range items {
		if it.state == StateCommitted {
			summary.Succeeded++
		} else {
			summary.Failed++
			summary.Reasons = append(summary.Reasons, fmt.Sprintf("%s: %s", it.lead.ID, it.reason))
		}
		summary.Items = append(summary.Items, ItemResult{LeadID: it.lead.ID, State: it.state, Reason: it.reason})
	}

	log.Info("batch finished", "succeeded", summary.Succeeded, "failed", summary.Failed)
	return summary, nil
}

// settle performs the real mutation for one item and reconciles the
// optimistic update on failure.
func (e *Engine) settle(ctx context.Context, it *item, actor domain.Actor, req Request) {
	var err error
	switch req.Action {
	case ActionAssign, ActionUnassign:
		err = e.mutateAssignment(ctx, it.lead, actor, req)
	case ActionMessage:
		err = e.sendMessage(ctx, it.lead, req)
	}

	if err != nil {
		it.state = StateRolledBack
		it.reason = err.Error()
		if e.cache != nil && it.prev != nil && req.Action != ActionMessage {
			e.cache.Replace(*it.prev)
		}
		e.log.Warn("batch item failed", "lead_id", it.lead.ID, "error", err)
		return
	}
	it.state = StateCommitted
	if e.cache != nil && req.Action != ActionMessage {
		e.cache.Replace(applyAction(it.lead, req))
	}
}

func (e *Engine) mutateAssignment(ctx context.Context, l domain.Lead, actor domain.Actor, req Request) error {
	fields := map[string]interface{}{
		e.pipe.Field(pipeline.FieldAssignedTo):   req.AssigneeName,
		e.pipe.Field(pipeline.FieldAssignedToID): req.AssigneeID,
		e.pipe.Field(pipeline.FieldUpdatedAt):    time.Now().UnixMilli(),
	}
	content := fmt.Sprintf("assigned to %s", req.AssigneeName)
	if req.Action == ActionUnassign {
		fields[e.pipe.Field(pipeline.FieldAssignedTo)] = ""
		fields[e.pipe.Field(pipeline.FieldAssignedToID)] = ""
		content = "unassigned"
	}

	if err := e.store.Write(ctx, e.pipe.Collection, l.ID, fields); err != nil {
		return fmt.Errorf("failed to write assignment: %w", err)
	}
	entry := domain.HistoryEntry{
		Content:   content,
		CreatedBy: actor.Name,
		CreatedAt: time.Now().UnixMilli(),
		Kind:      domain.HistoryAssignment,
	}
	if err := e.store.AppendHistory(ctx, e.pipe.Collection, l.ID, entry); err != nil {
		return fmt.Errorf("failed to append assignment history: %w", err)
	}
	return nil
}

func (e *Engine) sendMessage(ctx context.Context, l domain.Lead, req Request) error {
	if e.notifier == nil {
		return domain.NewInternalError(errors.New("no notifier configured"))
	}
	params := map[string]string{"name": l.Name}
	for k, v := range req.Params {
		params[k] = v
	}
	res := e.notifier.Send(ctx, l.Email, req.TemplateID, params)
	if !res.Success {
		return fmt.Errorf("message rejected: %s", res.Reason)
	}
	return nil
}

// load resolves targets from the cache first, falling back to the store.
// Unresolvable ids are reported, not fatal.
func (e *Engine) load(ctx context.Context, ids []string) ([]item, []string) {
	var (
		items   []item
		missing []string
	)
	for _, id := range ids {
		if e.cache != nil {
			if cached, ok := e.cache.Lookup(id); ok {
				snapshot := cached.Clone()
				items = append(items, item{lead: cached.Clone(), prev: &snapshot})
				continue
			}
		}
		l, err := e.store.Get(ctx, e.pipe.Collection, id)
		if err != nil {
			missing = append(missing, id)
			continue
		}
		items = append(items, item{lead: *l})
	}
	return items, missing
}

// applyAction computes the post-mutation replacement value for the cache.
func applyAction(l domain.Lead, req Request) domain.Lead {
	next := l.Clone()
	switch req.Action {
	case ActionAssign:
		next.AssignedTo = req.AssigneeName
		next.AssignedToID = req.AssigneeID
	case ActionUnassign:
		next.AssignedTo = ""
		next.AssignedToID = ""
	}
	next.UpdatedAt = time.Now().UnixMilli()
	return next
}

// mutationKind maps batch actions onto the authorization table. Messaging is
// gated like a plain edit.
func mutationKind(a Action) authz.Mutation {
	switch a {
	case ActionAssign:
		return authz.MutationAssign
	case ActionUnassign:
		return authz.MutationUnassign
	default:
		return authz.MutationEdit
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
