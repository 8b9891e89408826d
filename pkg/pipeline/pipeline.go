package pipeline

import (
	"fmt"

	"github.com/jordanlanch/leadconsole/pkg/domain"
)

// Canonical field names used by the query composer and services. Each
// pipeline maps them to its own store field names; unmapped names pass
// through unchanged.
const (
	FieldName            = "name"
	FieldEmail           = "email"
	FieldPhone           = "phone"
	FieldPhoneNormalized = "phone_normalized"
	FieldSource          = "source"
	FieldStatus          = "status"
	FieldAssignedTo      = "assigned_to"
	FieldAssignedToID    = "assigned_to_id"
	FieldNote            = "note"
	FieldLanguage        = "language"
	FieldCreatedAt       = "created_at"
	FieldUpdatedAt       = "updated_at"
	FieldConvertedAt     = "converted_at"
	FieldCallback        = "callback"
)

// Config parametrizes one lead pipeline. The engine is written once and
// instantiated with a Config per pipeline instead of duplicating the logic.
type Config struct {
	// Key identifies the pipeline in URLs, metrics labels and counters.
	Key string
	// Collection is the store collection holding this pipeline's leads.
	Collection string
	// Statuses is the full status enumeration for this pipeline.
	Statuses []domain.Status
	// FollowUpStatus is the status that the follow-up view restricts to.
	FollowUpStatus domain.Status
	// FieldMap translates canonical field names to store field names.
	FieldMap map[string]string
	// SearchFields are the canonical fields the search composer probes
	// with prefix queries.
	SearchFields []string
	// MessageTemplateID is the default bulk-message template.
	MessageTemplateID string
}

// Field returns the store field name for a canonical field.
func (c Config) Field(name string) string {
	if c.FieldMap != nil {
		if mapped, ok := c.FieldMap[name]; ok {
			return mapped
		}
	}
	return name
}

// HasStatus reports whether the status belongs to this pipeline's enumeration.
func (c Config) HasStatus(s domain.Status) bool {
	for _, st := range c.Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// Registry holds the configured pipelines keyed by pipeline key.
type Registry struct {
	configs map[string]Config
	order   []string
}

// NewRegistry creates a registry from the given configs.
func NewRegistry(configs ...Config) *Registry {
	r := &Registry{configs: make(map[string]Config, len(configs))}
	for _, c := range configs {
		r.configs[c.Key] = c
		r.order = append(r.order, c.Key)
	}
	return r
}

// Get returns the pipeline config for a key.
func (r *Registry) Get(key string) (Config, error) {
	c, ok := r.configs[key]
	if !ok {
		return Config{}, fmt.Errorf("unknown pipeline: %s", key)
	}
	return c, nil
}

// All returns the configs in registration order.
func (r *Registry) All() []Config {
	out := make([]Config, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.configs[k])
	}
	return out
}

var defaultStatuses = []domain.Status{
	domain.StatusNone,
	domain.StatusInterested,
	domain.StatusNotInterested,
	domain.StatusNotAnswering,
	domain.StatusFollowUp,
	domain.StatusLanguageBarrier,
	domain.StatusConverted,
	domain.StatusClosed,
}

var defaultSearchFields = []string{FieldName, FieldEmail, FieldPhone, FieldPhoneNormalized}

// Defaults returns the three shipped pipelines. They differ only in
// collection names, status sets and field spellings; the engine itself is
// shared.
func Defaults() *Registry {
	return NewRegistry(
		Config{
			Key:               "web",
			Collection:        "web_leads",
			Statuses:          defaultStatuses,
			FollowUpStatus:    domain.StatusFollowUp,
			SearchFields:      defaultSearchFields,
			MessageTemplateID: "d-web-outreach",
		},
		Config{
			Key:            "walkin",
			Collection:     "walkin_leads",
			Statuses:       defaultStatuses,
			FollowUpStatus: domain.StatusFollowUp,
			// The walk-in collection predates the field naming cleanup.
			FieldMap: map[string]string{
				FieldAssignedTo:   "assignee",
				FieldAssignedToID: "assignee_id",
				FieldNote:         "latest_note",
			},
			SearchFields:      defaultSearchFields,
			MessageTemplateID: "d-walkin-outreach",
		},
		Config{
			Key:        "referral",
			Collection: "referral_leads",
			Statuses: []domain.Status{
				domain.StatusNone,
				domain.StatusInterested,
				domain.StatusNotInterested,
				domain.StatusFollowUp,
				domain.StatusConverted,
				domain.StatusClosed,
			},
			FollowUpStatus:    domain.StatusFollowUp,
			SearchFields:      []string{FieldName, FieldEmail, FieldPhone},
			MessageTemplateID: "d-referral-outreach",
		},
	)
}
