// Package query translates operator filter state into lead store requests:
// predicate-based cursor pagination for browsing and ranked multi-field
// prefix probing for full-text search.
package query

import (
	"context"
	"fmt"

	"github.com/jordanlanch/leadconsole/pkg/authz"
	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/logger"
	"github.com/jordanlanch/leadconsole/pkg/pipeline"
)

// Options tunes the composer. Zero values fall back to defaults; the
// fallback threshold is deliberately configurable rather than a constant.
type Options struct {
	PageSize          int
	MaxSearchResults  int
	FallbackScanLimit int
	// FallbackThreshold triggers the broad recent-records scan when the
	// query is this short or no probe returned candidates.
	FallbackThreshold int
	// DefaultRegion is the country code used to normalize phone queries.
	DefaultRegion string
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 25
	}
	if o.MaxSearchResults <= 0 {
		o.MaxSearchResults = 100
	}
	if o.FallbackScanLimit <= 0 {
		o.FallbackScanLimit = 200
	}
	if o.FallbackThreshold <= 0 {
		o.FallbackThreshold = 3
	}
	if o.DefaultRegion == "" {
		o.DefaultRegion = "US"
	}
	return o
}

// Composer builds paginated browse queries and search candidate lists for
// one pipeline.
type Composer struct {
	store domain.LeadStore
	pipe  pipeline.Config
	opts  Options
	log   logger.Logger
}

// NewComposer creates a composer for the given pipeline.
func NewComposer(store domain.LeadStore, pipe pipeline.Config, opts Options, log logger.Logger) *Composer {
	if log == nil {
		log = logger.Default()
	}
	return &Composer{
		store: store,
		pipe:  pipe,
		opts:  opts.withDefaults(),
		log:   log.With("pipeline", pipe.Key),
	}
}

// Pipeline returns the pipeline config this composer serves.
func (c *Composer) Pipeline() pipeline.Config {
	return c.pipe
}

// Options returns the effective options after defaulting.
func (c *Composer) Options() Options {
	return c.opts
}

// Predicates emits one equality/range predicate per active filter, combined
// with logical AND by the store. Filters the store cannot express (sentinel
// owner sets, negated flags) stay client-side.
func (c *Composer) Predicates(state FilterState) []domain.Predicate {
	var preds []domain.Predicate

	if state.Source != "" {
		preds = append(preds, domain.Predicate{Field: c.pipe.Field(pipeline.FieldSource), Op: domain.OpEq, Value: state.Source})
	}
	if state.Status != "" {
		preds = append(preds, domain.Predicate{Field: c.pipe.Field(pipeline.FieldStatus), Op: domain.OpEq, Value: string(state.Status)})
	}
	// An owner filter set to a sentinel means "unassigned"; the sentinel
	// equivalence cannot be pushed to the store, so it stays residual.
	if state.AssignedTo != "" && !authz.Unassigned(state.AssignedTo) {
		preds = append(preds, domain.Predicate{Field: c.pipe.Field(pipeline.FieldAssignedTo), Op: domain.OpEq, Value: state.AssignedTo})
	}
	if state.Converted != nil && *state.Converted {
		preds = append(preds, domain.Predicate{Field: c.pipe.Field(pipeline.FieldStatus), Op: domain.OpEq, Value: string(domain.StatusConverted)})
	}
	if state.From > 0 {
		preds = append(preds, domain.Predicate{Field: c.pipe.Field(pipeline.FieldCreatedAt), Op: domain.OpGte, Value: state.From})
	}
	if state.To > 0 {
		preds = append(preds, domain.Predicate{Field: c.pipe.Field(pipeline.FieldCreatedAt), Op: domain.OpLte, Value: state.To})
	}
	if state.View == ViewFollowUp {
		preds = append(preds, domain.Predicate{Field: c.pipe.Field(pipeline.FieldStatus), Op: domain.OpEq, Value: string(c.pipe.FollowUpStatus)})
	}

	return preds
}

// Sort is the deterministic ordering appended to every browse query so
// cursors remain stable across pages: ingestion timestamp descending.
func (c *Composer) Sort() domain.Sort {
	return domain.Sort{Field: c.pipe.Field(pipeline.FieldCreatedAt), Desc: true}
}

// Page fetches one page of the browse view. The cursor is opaque and
// store-issued; pass the previous page's NextCursor to continue.
func (c *Composer) Page(ctx context.Context, state FilterState, cursor string) (*domain.Page, error) {
	page, err := c.store.Query(ctx, c.pipe.Collection, c.Predicates(state), c.Sort(), cursor, c.opts.PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	return page, nil
}
