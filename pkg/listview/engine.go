// Package listview assembles the ordered, filtered list the operator sees.
// It owns the in-memory lead cache and treats it as copy-on-write: every
// mutation installs a whole replacement slice, so concurrent readers never
// observe a half-updated item.
package listview

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jordanlanch/leadconsole/pkg/authz"
	"github.com/jordanlanch/leadconsole/pkg/callback"
	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/logger"
	"github.com/jordanlanch/leadconsole/pkg/query"
)

// DefaultDebounce collapses rapid filter changes (fast typing) into one
// recomputation.
const DefaultDebounce = 250 * time.Millisecond

// Engine turns composer output plus residual client-side filters into the
// final view. One engine per operator session and pipeline.
type Engine struct {
	composer *query.Composer
	log      logger.Logger
	debounce time.Duration
	now      func() time.Time

	mu      sync.Mutex
	state   query.FilterState
	cache   []domain.Lead
	cursor  string
	hasMore bool
	timer   *time.Timer
}

// NewEngine creates an engine around a composer. A non-positive debounce
// falls back to DefaultDebounce.
func NewEngine(composer *query.Composer, debounce time.Duration, log logger.Logger) *Engine {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		composer: composer,
		log:      log,
		debounce: debounce,
		now:      time.Now,
	}
}

// SetState installs a new filter selection and schedules a debounced
// recompute. Switching between search and browse, or changing any browse
// filter, invalidates the pagination cursor and returns the view to page one.
func (e *Engine) SetState(ctx context.Context, next query.FilterState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	modeSwitch := e.state.SearchMode() != next.SearchMode()
	if modeSwitch || !e.state.BrowseEqual(next) {
		e.cursor = ""
		e.hasMore = false
	}
	e.state = next
	e.schedule(ctx)
}

// schedule arms the single-slot debounce timer; a newer trigger replaces any
// pending one. Caller holds e.mu.
func (e *Engine) schedule(ctx context.Context) {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.debounce, func() {
		if err := e.Refresh(ctx); err != nil {
			e.log.Warn("debounced refresh failed", "error", err)
		}
	})
}

// cancelPendingLocked drops any armed debounced recompute. A synchronous
// recompute supersedes it; firing later would only replay a stale trigger,
// typically on a context that is already done. Caller holds e.mu.
func (e *Engine) cancelPendingLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Refresh recomputes the cache immediately from the store: a ranked search in
// search mode, the first browse page otherwise. Any pending debounced
// recompute is cancelled.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	e.cancelPendingLocked()
	state := e.state
	e.mu.Unlock()

	var (
		items   []domain.Lead
		cursor  string
		hasMore bool
	)
	if state.SearchMode() {
		found, err := e.composer.Search(ctx, state)
		if err != nil {
			return err
		}
		items = found
	} else {
		page, err := e.composer.Page(ctx, state, "")
		if err != nil {
			return err
		}
		items = page.Items
		cursor = page.NextCursor
		hasMore = page.HasMore
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.state.BrowseEqual(state) || e.state.SearchMode() != state.SearchMode() {
		// The selection moved on while we were querying; drop the result.
		return nil
	}
	e.cache = items
	e.cursor = cursor
	e.hasMore = hasMore
	return nil
}

// LoadMore appends the next browse page to the cache. No-op in search mode or
// when the store reported no further pages.
func (e *Engine) LoadMore(ctx context.Context) error {
	e.mu.Lock()
	e.cancelPendingLocked()
	state := e.state
	cursor := e.cursor
	more := e.hasMore
	e.mu.Unlock()

	if state.SearchMode() || !more {
		return nil
	}

	page, err := e.composer.Page(ctx, state, cursor)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cursor != cursor {
		return nil
	}
	next := make([]domain.Lead, 0, len(e.cache)+len(page.Items))
	next = append(next, e.cache...)
	next = append(next, page.Items...)
	e.cache = next
	e.cursor = page.NextCursor
	e.hasMore = page.HasMore
	return nil
}

// HasMore reports whether another browse page is available.
func (e *Engine) HasMore() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasMore
}

// View applies the residual filters and the active sort to the cache and
// returns a fresh slice. Pure with respect to the cache.
func (e *Engine) View() []domain.Lead {
	e.mu.Lock()
	state := e.state
	cache := e.cache
	e.mu.Unlock()

	out := applyResidual(cache, state)
	sortLeads(out, state, e.now())
	return out
}

// Lookup returns a copy of one cached lead by id.
func (e *Engine) Lookup(id string) (*domain.Lead, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.cache {
		if e.cache[i].ID == id {
			c := e.cache[i].Clone()
			return &c, true
		}
	}
	return nil, false
}

// Replace swaps one lead in the cache for a replacement value, installing a
// new slice. Returns false when the lead is not cached.
func (e *Engine) Replace(l domain.Lead) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.cache {
		if e.cache[i].ID == l.ID {
			next := make([]domain.Lead, len(e.cache))
			copy(next, e.cache)
			next[i] = l.Clone()
			e.cache = next
			return true
		}
	}
	return false
}

// Remove drops one lead from the cache.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.cache {
		if e.cache[i].ID == id {
			next := make([]domain.Lead, 0, len(e.cache)-1)
			next = append(next, e.cache[:i]...)
			next = append(next, e.cache[i+1:]...)
			e.cache = next
			return true
		}
	}
	return false
}

// Stop cancels any pending debounced recompute.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelPendingLocked()
}

// applyResidual evaluates the filters the store query could not express, in a
// fixed order. Every predicate is a pure function of the lead.
func applyResidual(leads []domain.Lead, state query.FilterState) []domain.Lead {
	out := make([]domain.Lead, 0, len(leads))
	for _, l := range leads {
		if state.From > 0 && l.CreatedAt < state.From {
			continue
		}
		if state.To > 0 && l.CreatedAt > state.To {
			continue
		}
		if state.AssignedTo != "" {
			if authz.Unassigned(state.AssignedTo) {
				if !authz.Unassigned(l.AssignedTo) {
					continue
				}
			} else if l.AssignedTo != state.AssignedTo {
				continue
			}
		}
		if state.Converted != nil && l.Converted() != *state.Converted {
			continue
		}
		if state.Source != "" && l.Source != state.Source {
			continue
		}
		if state.Status != "" && l.Status != state.Status {
			continue
		}
		out = append(out, l)
	}
	return out
}

// sortLeads orders the slice in place. The follow-up view sorts by callback
// urgency first; the operator's sort key only breaks ties there. Everywhere
// else the operator's key (default: ingestion timestamp descending) wins.
func sortLeads(leads []domain.Lead, state query.FilterState, now time.Time) {
	if state.View == query.ViewFollowUp {
		type keyed struct {
			lead domain.Lead
			key  callback.Key
		}
		entries := make([]keyed, len(leads))
		for i, l := range leads {
			entries[i] = keyed{lead: l, key: callback.Priority(l, now)}
		}
		sort.SliceStable(entries, func(i, j int) bool {
			if callback.Less(entries[i].key, entries[j].key) {
				return true
			}
			if callback.Less(entries[j].key, entries[i].key) {
				return false
			}
			return lessByState(entries[i].lead, entries[j].lead, state)
		})
		for i, e := range entries {
			leads[i] = e.lead
		}
		return
	}

	sort.SliceStable(leads, func(i, j int) bool {
		return lessByState(leads[i], leads[j], state)
	})
}

func lessByState(a, b domain.Lead, state query.FilterState) bool {
	key := state.SortKey
	desc := state.SortDesc
	if key == "" {
		key, desc = query.SortCreatedAt, true
	}

	switch key {
	case query.SortName:
		return lessString(a.Name, b.Name, a.ID, b.ID, desc)
	case query.SortStatus:
		return lessString(string(a.Status), string(b.Status), a.ID, b.ID, desc)
	case query.SortAssignee:
		return lessString(a.AssignedTo, b.AssignedTo, a.ID, b.ID, desc)
	default:
		return lessTimestamp(a.CreatedAt, b.CreatedAt, a.ID, b.ID, desc)
	}
}

// Missing values sort last ascending and first descending, so toggling the
// direction never reshuffles the leads that lack the field.
func lessString(av, bv, aid, bid string, desc bool) bool {
	am, bm := strings.TrimSpace(av) == "", strings.TrimSpace(bv) == ""
	if am != bm {
		if desc {
			return am
		}
		return bm
	}
	if av != bv {
		if desc {
			return av > bv
		}
		return av < bv
	}
	return aid < bid
}

func lessTimestamp(av, bv int64, aid, bid string, desc bool) bool {
	am, bm := av == 0, bv == 0
	if am != bm {
		if desc {
			return am
		}
		return bm
	}
	if av != bv {
		if desc {
			return av > bv
		}
		return av < bv
	}
	return aid < bid
}
