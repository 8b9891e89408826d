package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/phone"
	"github.com/jordanlanch/leadconsole/pkg/pipeline"
)

// Candidate ranks, highest first.
const (
	scorePrefix    = 3
	scoreSubstring = 2
	scoreFallback  = 1
)

type candidate struct {
	lead      domain.Lead
	score     int
	fromProbe bool
}

// Search runs full-text search. The store only supports prefix/range matching
// on single fields, so the composer issues one prefix probe per searchable
// field in parallel, merges candidates by id, optionally adds a bounded scan
// of the most recent records, and ranks everything client-side:
// exact-prefix > substring > fallback, each field scored independently with
// the maximum taken.
//
// Individual probes may fail (missing index and the like); those are logged
// and skipped. Search only errors when every probe and the fallback scan all
// fail.
func (c *Composer) Search(ctx context.Context, state FilterState) ([]domain.Lead, error) {
	q := state.NormalizedQuery()
	if q == "" {
		return nil, nil
	}

	var (
		mu         sync.Mutex
		candidates = make(map[string]*candidate)
		failed     atomic.Int32
	)

	merge := func(leads []domain.Lead, fromProbe bool) {
		mu.Lock()
		defer mu.Unlock()
		for _, l := range leads {
			if existing, ok := candidates[l.ID]; ok {
				existing.fromProbe = existing.fromProbe || fromProbe
				continue
			}
			candidates[l.ID] = &candidate{lead: l, fromProbe: fromProbe}
		}
	}

	probes := c.probeValues(q)
	g, gctx := errgroup.WithContext(ctx)
	for field, value := range probes {
		g.Go(func() error {
			pred := domain.Predicate{Field: c.pipe.Field(field), Op: domain.OpPrefix, Value: value}
			page, err := c.store.Query(gctx, c.pipe.Collection, []domain.Predicate{pred}, domain.Sort{Field: c.pipe.Field(field)}, "", c.opts.MaxSearchResults)
			if err != nil {
				// A single unindexed field must not sink the search.
				failed.Add(1)
				c.log.Warn("search probe failed", "field", field, "error", err)
				return nil
			}
			merge(page.Items, true)
			return nil
		})
	}
	_ = g.Wait()

	probesFailed := int(failed.Load()) == len(probes)

	// Short or fruitless queries get a broad scan of recent records. The
	// threshold is configuration, not product truth (see Options).
	fallbackErr := error(nil)
	if len(q) <= c.opts.FallbackThreshold || len(candidates) == 0 {
		page, err := c.store.Query(ctx, c.pipe.Collection, nil, c.Sort(), "", c.opts.FallbackScanLimit)
		if err != nil {
			fallbackErr = err
			c.log.Warn("search fallback scan failed", "error", err)
		} else {
			merge(page.Items, false)
		}
	}

	if probesFailed && (fallbackErr != nil || len(candidates) == 0) {
		return nil, fmt.Errorf("failed to search leads: all probes failed: %w", fallbackErr)
	}

	ranked := c.rank(candidates, q)
	if len(ranked) > c.opts.MaxSearchResults {
		ranked = ranked[:c.opts.MaxSearchResults]
	}
	return ranked, nil
}

// probeValues maps each searchable canonical field to the value probed for
// it. The phone fields probe normalized digits rather than the raw query.
func (c *Composer) probeValues(q string) map[string]string {
	probes := make(map[string]string, len(c.pipe.SearchFields))
	for _, field := range c.pipe.SearchFields {
		switch field {
		case pipeline.FieldPhoneNormalized:
			if key := phone.SearchKey(q, c.opts.DefaultRegion); key != "" {
				probes[field] = key
			}
		case pipeline.FieldPhone:
			if digits := phone.Digits(q); digits != "" {
				probes[field] = digits
			}
		default:
			probes[field] = q
		}
	}
	return probes
}

// rank scores every candidate and drops the ones that match nothing. Probe
// results always survive: the store matched them on a prefix even when the
// client-side comparison disagrees about casing.
func (c *Composer) rank(candidates map[string]*candidate, q string) []domain.Lead {
	scored := make([]*candidate, 0, len(candidates))
	for _, cand := range candidates {
		cand.score = c.score(cand.lead, q)
		if cand.score == 0 && cand.fromProbe {
			cand.score = scoreSubstring
		}
		if cand.score > 0 {
			scored = append(scored, cand)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		if scored[i].lead.CreatedAt != scored[j].lead.CreatedAt {
			return scored[i].lead.CreatedAt > scored[j].lead.CreatedAt
		}
		return scored[i].lead.ID < scored[j].lead.ID
	})

	out := make([]domain.Lead, len(scored))
	for i, cand := range scored {
		out[i] = cand.lead
	}
	return out
}

// score rates one lead against the query: each field scored independently,
// maximum taken.
func (c *Composer) score(l domain.Lead, q string) int {
	best := 0
	fields := []string{l.Name, l.Email, l.Phone}
	for _, v := range fields {
		v = strings.ToLower(v)
		switch {
		case v == "":
		case strings.HasPrefix(v, q):
			if scorePrefix > best {
				best = scorePrefix
			}
		case strings.Contains(v, q):
			if scoreSubstring > best {
				best = scoreSubstring
			}
		}
	}

	// Digit-level phone match is the weakest signal: it only fires through
	// the fallback scan or a normalized-number probe.
	if best == 0 {
		if digits := phone.Digits(q); digits != "" {
			if strings.Contains(l.PhoneNormalized, digits) || strings.Contains(phone.Digits(l.Phone), digits) {
				best = scoreFallback
			}
		}
	}
	return best
}
