package domain

import (
	"context"
	"time"
)

// Op is a predicate operator supported by the lead store. The store only
// supports equality/range on numeric and date fields and prefix/range on
// string fields; anything richer happens client-side.
type Op string

const (
	OpEq     Op = "eq"
	OpGte    Op = "gte"
	OpLte    Op = "lte"
	OpPrefix Op = "prefix"
)

// Predicate is a single field condition. Predicates combine with logical AND.
type Predicate struct {
	Field string
	Op    Op
	Value interface{}
}

// Sort is the deterministic ordering appended to every store query so that
// pagination cursors remain stable across pages.
type Sort struct {
	Field string
	Desc  bool
}

// Page is one page of query results with an opaque continuation cursor.
type Page struct {
	Items      []Lead
	NextCursor string
	HasMore    bool
}

// LeadStore defines data access operations against the remote document store.
// Implementations issue their own cursors; callers treat them as opaque.
type LeadStore interface {
	Query(ctx context.Context, collection string, preds []Predicate, sort Sort, cursor string, limit int) (*Page, error)
	Get(ctx context.Context, collection, id string) (*Lead, error)
	Write(ctx context.Context, collection, id string, fields map[string]interface{}) error
	AppendHistory(ctx context.Context, collection, id string, entry HistoryEntry) error
	Delete(ctx context.Context, collection, id string) error
}

// SendResult is the outcome of a single outbound message. Delivery is
// fire-and-forget; no receipt callback is consumed here.
type SendResult struct {
	Success bool
	Reason  string
}

// Notifier delivers a templated message to a single destination.
type Notifier interface {
	Send(ctx context.Context, destination, templateID string, params map[string]string) SendResult
}

// CaptureResult carries the data collected by a side-channel capture form.
// Confirmed=false means the operator backed out and the status change must
// not be applied.
type CaptureResult struct {
	Confirmed   bool
	CallbackAt  *time.Time
	Language    string
	ConvertedAt *time.Time
}

// CaptureWorkflow is the hook invoked before committing a status transition
// that requires extra input (follow-up scheduling, language preference,
// conversion details). The workflow itself lives outside this core.
type CaptureWorkflow interface {
	Capture(ctx context.Context, lead Lead, target Status) (*CaptureResult, error)
}

// TargetsCounter is the external counter of converted leads per pipeline.
// A conversion increments it; reverting a conversion decrements it.
type TargetsCounter interface {
	IncrTargets(ctx context.Context, pipeline string) error
	DecrTargets(ctx context.Context, pipeline string) error
}
