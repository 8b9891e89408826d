package query

import (
	"context"
	"testing"

	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/leadstore"
	"github.com/jordanlanch/leadconsole/pkg/logger"
	"github.com/jordanlanch/leadconsole/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testComposer(t *testing.T, opts Options) (*Composer, *leadstore.Memory) {
	t.Helper()
	reg := pipeline.Defaults()
	store := leadstore.NewMemory(reg)
	pipe, err := reg.Get("web")
	require.NoError(t, err)
	return NewComposer(store, pipe, opts, logger.Nop()), store
}

func seedLeads(store *leadstore.Memory) {
	leads := []domain.Lead{
		{ID: "l1", Name: "Acme Corp", Email: "info@acme.com", Phone: "(212) 555-0101", PhoneNormalized: "+12125550101", Source: "web", Status: domain.StatusInterested, AssignedTo: "Alice", CreatedAt: 100},
		{ID: "l2", Name: "Beta LLC", Email: "hello@beta.io", Phone: "(212) 555-0102", PhoneNormalized: "+12125550102", Source: "ads", Status: domain.StatusFollowUp, AssignedTo: "-", CreatedAt: 200},
		{ID: "l3", Name: "Acorn Ltd", Email: "sales@acorn.dev", Phone: "+44 20 7183 0001", PhoneNormalized: "+442071830001", Source: "web", Status: domain.StatusFollowUp, AssignedTo: "Bob", CreatedAt: 300},
		{ID: "l4", Name: "Delta Inc", Email: "ops@delta.example", Phone: "", Source: "referral", Status: domain.StatusConverted, AssignedTo: "", CreatedAt: 400},
	}
	for _, l := range leads {
		store.Put("web_leads", l)
	}
}

func TestPredicates(t *testing.T) {
	c, _ := testComposer(t, Options{})

	t.Run("Empty state - no predicates", func(t *testing.T) {
		assert.Empty(t, c.Predicates(FilterState{}))
	})

	t.Run("One predicate per active filter, ANDed", func(t *testing.T) {
		converted := true
		preds := c.Predicates(FilterState{
			Source:     "web",
			Status:     domain.StatusInterested,
			AssignedTo: "Alice",
			Converted:  &converted,
			From:       100,
			To:         400,
		})
		assert.Len(t, preds, 6)
	})

	t.Run("Sentinel owner filter stays client-side", func(t *testing.T) {
		preds := c.Predicates(FilterState{AssignedTo: "-"})
		assert.Empty(t, preds)
	})

	t.Run("Follow-up view appends the mandatory status predicate", func(t *testing.T) {
		preds := c.Predicates(FilterState{View: ViewFollowUp})
		require.Len(t, preds, 1)
		assert.Equal(t, string(domain.StatusFollowUp), preds[0].Value)
	})
}

func TestPage(t *testing.T) {
	c, store := testComposer(t, Options{PageSize: 2})
	seedLeads(store)
	ctx := context.Background()

	t.Run("Success - newest first with continuation cursor", func(t *testing.T) {
		page, err := c.Page(ctx, FilterState{}, "")
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "l4", page.Items[0].ID)
		assert.True(t, page.HasMore)

		next, err := c.Page(ctx, FilterState{}, page.NextCursor)
		require.NoError(t, err)
		require.Len(t, next.Items, 2)
		assert.Equal(t, "l2", next.Items[0].ID)
		assert.False(t, next.HasMore)
	})

	t.Run("Success - filtered page", func(t *testing.T) {
		page, err := c.Page(ctx, FilterState{Source: "web"}, "")
		require.NoError(t, err)
		require.Len(t, page.Items, 2)
		for _, l := range page.Items {
			assert.Equal(t, "web", l.Source)
		}
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("Prefix match outranks substring match", func(t *testing.T) {
		c, store := testComposer(t, Options{FallbackThreshold: 1})
		seedLeads(store)
		store.Put("web_leads", domain.Lead{ID: "l5", Name: "Corp of Ac", Email: "x@corpofac.com", CreatedAt: 500})

		got, err := c.Search(ctx, FilterState{Query: "ac"})
		require.NoError(t, err)
		require.NotEmpty(t, got)
		// "Acorn"/"Acme" are prefix matches and must precede the
		// substring-only "Corp of Ac" despite its newer timestamp.
		assert.Equal(t, "Acorn Ltd", got[0].Name)
		assert.Equal(t, "Acme Corp", got[1].Name)
	})

	t.Run("Candidates merged by id across fields", func(t *testing.T) {
		c, store := testComposer(t, Options{FallbackThreshold: 1})
		seedLeads(store)
		// Matched by the name probe and the email probe at once; must
		// appear exactly once in the results.
		store.Put("web_leads", domain.Lead{ID: "l6", Name: "Acme East", Email: "acme.east@acme.com", CreatedAt: 600})

		got, err := c.Search(ctx, FilterState{Query: "acme"})
		require.NoError(t, err)

		count := 0
		for _, l := range got {
			if l.ID == "l6" {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("Phone digits match through normalized field", func(t *testing.T) {
		c, store := testComposer(t, Options{FallbackThreshold: 1})
		seedLeads(store)

		got, err := c.Search(ctx, FilterState{Query: "+1212555"})
		require.NoError(t, err)
		require.Len(t, got, 2)
	})

	t.Run("Short query triggers fallback scan", func(t *testing.T) {
		c, store := testComposer(t, Options{FallbackThreshold: 3, FallbackScanLimit: 10})
		seedLeads(store)

		// "eta" is not a prefix of any field but is inside "Beta".
		got, err := c.Search(ctx, FilterState{Query: "eta"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "l2", got[0].ID)
	})

	t.Run("No match - success with zero results", func(t *testing.T) {
		c, store := testComposer(t, Options{})
		seedLeads(store)

		got, err := c.Search(ctx, FilterState{Query: "zzzzzz"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Result cap respected", func(t *testing.T) {
		c, store := testComposer(t, Options{MaxSearchResults: 2})
		seedLeads(store)
		for _, id := range []string{"x1", "x2", "x3"} {
			store.Put("web_leads", domain.Lead{ID: id, Name: "Acme " + id, CreatedAt: 900})
		}

		got, err := c.Search(ctx, FilterState{Query: "acme"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("Deterministic ordering on equal scores", func(t *testing.T) {
		c, store := testComposer(t, Options{})
		seedLeads(store)

		first, err := c.Search(ctx, FilterState{Query: "acme"})
		require.NoError(t, err)
		second, err := c.Search(ctx, FilterState{Query: "acme"})
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

// flakyStore fails probes on selected fields to exercise partial-failure
// recovery.
type flakyStore struct {
	domain.LeadStore
	failFields map[string]bool
	failAll    bool
}

func (f *flakyStore) Query(ctx context.Context, collection string, preds []domain.Predicate, s domain.Sort, cursor string, limit int) (*domain.Page, error) {
	if f.failAll {
		return nil, assert.AnError
	}
	for _, p := range preds {
		if f.failFields[p.Field] {
			return nil, assert.AnError
		}
	}
	return f.LeadStore.Query(ctx, collection, preds, s, cursor, limit)
}

func TestSearchProbeFailures(t *testing.T) {
	ctx := context.Background()
	reg := pipeline.Defaults()
	pipe, err := reg.Get("web")
	require.NoError(t, err)

	t.Run("Single failing probe is swallowed", func(t *testing.T) {
		mem := leadstore.NewMemory(reg)
		seedLeads(mem)
		flaky := &flakyStore{LeadStore: mem, failFields: map[string]bool{"email": true}}
		c := NewComposer(flaky, pipe, Options{FallbackThreshold: 1}, logger.Nop())

		got, err := c.Search(ctx, FilterState{Query: "acme"})
		require.NoError(t, err)
		require.NotEmpty(t, got)
		assert.Equal(t, "l1", got[0].ID)
	})

	t.Run("All probes failing surfaces a hard error", func(t *testing.T) {
		mem := leadstore.NewMemory(reg)
		seedLeads(mem)
		flaky := &flakyStore{LeadStore: mem, failAll: true}
		c := NewComposer(flaky, pipe, Options{}, logger.Nop())

		_, err := c.Search(ctx, FilterState{Query: "acme"})
		require.Error(t, err)
	})
}
