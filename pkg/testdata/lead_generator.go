// Package testdata generates realistic lead records for local development
// and seeding the in-memory store.
package testdata

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/leadstore"
	"github.com/jordanlanch/leadconsole/pkg/pipeline"
)

// LeadGeneratorConfig configures lead generation parameters
type LeadGeneratorConfig struct {
	Pipeline       pipeline.Config
	Count          int
	EmailChance    float64 // 0.0-1.0 (probability of having email)
	PhoneChance    float64
	NoteChance     float64
	AssignChance   float64
	CallbackChance float64 // only applies to follow-up leads
	MaxAgeDays     int     // created_at spread backwards from now
}

// Operators is the fake roster leads get assigned to.
var Operators = []domain.Actor{
	{ID: "op-1", Name: "Alice Ramos", Role: domain.RoleAgent},
	{ID: "op-2", Name: "Bruno Keller", Role: domain.RoleAgent},
	{ID: "op-3", Name: "Carmen Díaz", Role: domain.RoleAgent},
	{ID: "op-4", Name: "Derek Osei", Role: domain.RoleManager},
}

var sourcesByPipeline = map[string][]string{
	"web":      {"landing_page", "pricing_page", "blog", "webinar", "google_ads"},
	"walkin":   {"storefront", "event_booth", "open_house"},
	"referral": {"customer_referral", "partner_referral", "employee_referral"},
}

var customerQueries = []string{
	"Looking for a quote on the annual plan",
	"Do you support teams of 50+?",
	"Interested after the webinar, please call back",
	"Need a demo before end of quarter",
	"Comparing you against two other vendors",
	"",
}

// GenerateLead creates a single lead with realistic data
func GenerateLead(config LeadGeneratorConfig) domain.Lead {
	now := time.Now()
	maxAge := config.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 30
	}
	createdAt := now.Add(-time.Duration(rand.Intn(maxAge*24)) * time.Hour)

	name := gofakeit.Name()
	l := domain.Lead{
		ID:            uuid.New().String(),
		Name:          name,
		Source:        pickSource(config.Pipeline.Key),
		Status:        pickStatus(config.Pipeline),
		AssignedTo:    "-",
		CustomerQuery: customerQueries[rand.Intn(len(customerQueries))],
		CreatedAt:     createdAt.UnixMilli(),
		UpdatedAt:     createdAt.UnixMilli(),
	}

	if rand.Float64() < config.EmailChance {
		local := strings.ToLower(strings.ReplaceAll(name, " ", "."))
		l.Email = fmt.Sprintf("%s@%s", local, gofakeit.DomainName())
	}
	if rand.Float64() < config.PhoneChance {
		l.Phone = gofakeit.Phone()
	}

	if rand.Float64() < config.AssignChance {
		op := Operators[rand.Intn(len(Operators))]
		l.AssignedTo = op.Name
		l.AssignedToID = op.ID
	}

	if rand.Float64() < config.NoteChance {
		entry := domain.HistoryEntry{
			Content:   gofakeit.Sentence(8),
			CreatedBy: l.AssignedTo,
			CreatedAt: createdAt.Add(time.Hour).UnixMilli(),
			Kind:      domain.HistoryNote,
		}
		if entry.CreatedBy == "-" {
			entry.CreatedBy = Operators[rand.Intn(len(Operators))].Name
		}
		l.Note = entry.Content
		l.History = append(l.History, entry)
		l.UpdatedAt = entry.CreatedAt
	}

	switch l.Status {
	case config.Pipeline.FollowUpStatus:
		if rand.Float64() < config.CallbackChance {
			// Spread callbacks from two days back to a week ahead so the
			// follow-up view exercises every urgency bucket.
			offset := time.Duration(rand.Intn(9*24)-2*24) * time.Hour
			l.Callback = &domain.CallbackInfo{
				ScheduledAt: now.Add(offset),
				ScheduledBy: l.AssignedTo,
				CreatedAt:   createdAt,
			}
		}
	case domain.StatusConverted:
		at := createdAt.Add(48 * time.Hour).UnixMilli()
		l.ConvertedAt = &at
	case domain.StatusLanguageBarrier:
		l.Language = gofakeit.RandomString([]string{"es", "pt", "fr", "de", "ja"})
	}

	return l
}

// GenerateLeads creates multiple leads with the given config
func GenerateLeads(config LeadGeneratorConfig) []domain.Lead {
	leads := make([]domain.Lead, config.Count)
	for i := 0; i < config.Count; i++ {
		leads[i] = GenerateLead(config)
	}
	return leads
}

// SeedMemory fills an in-memory store with count leads per pipeline. Used by
// the dev server when no document store is configured.
func SeedMemory(store *leadstore.Memory, reg *pipeline.Registry, count int) {
	for _, pipe := range reg.All() {
		config := LeadGeneratorConfig{
			Pipeline:       pipe,
			Count:          count,
			EmailChance:    0.8,
			PhoneChance:    0.7,
			NoteChance:     0.5,
			AssignChance:   0.6,
			CallbackChance: 0.8,
			MaxAgeDays:     60,
		}
		for _, l := range GenerateLeads(config) {
			store.Put(pipe.Collection, l)
		}
	}
}

func pickSource(pipelineKey string) string {
	sources, ok := sourcesByPipeline[pipelineKey]
	if !ok {
		return gofakeit.RandomString([]string{"import", "manual", "api"})
	}
	return sources[rand.Intn(len(sources))]
}

// pickStatus skews towards untouched leads the way a real queue looks.
func pickStatus(pipe pipeline.Config) domain.Status {
	r := rand.Float64()
	switch {
	case r < 0.35:
		return domain.StatusNone
	case r < 0.55:
		return domain.StatusInterested
	case r < 0.70:
		return pipe.FollowUpStatus
	case r < 0.80 && pipe.HasStatus(domain.StatusNotAnswering):
		return domain.StatusNotAnswering
	case r < 0.90:
		return domain.StatusNotInterested
	case r < 0.95:
		return domain.StatusConverted
	default:
		return domain.StatusClosed
	}
}
