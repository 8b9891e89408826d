package domain

import "time"

// Status is the pipeline stage of a lead. The set is fixed per pipeline;
// the constants below are the superset shared by all shipped pipelines.
type Status string

const (
	StatusNone            Status = "no_status"
	StatusInterested      Status = "interested"
	StatusNotInterested   Status = "not_interested"
	StatusNotAnswering    Status = "not_answering"
	StatusFollowUp        Status = "follow_up"
	StatusLanguageBarrier Status = "language_barrier"
	StatusConverted       Status = "converted"
	StatusClosed          Status = "closed"
)

// HistoryKind distinguishes operator notes from system-generated records.
type HistoryKind string

const (
	HistoryNote       HistoryKind = "note"
	HistoryAssignment HistoryKind = "assignment"
)

// HistoryEntry is one immutable record in a lead's append-only log.
type HistoryEntry struct {
	Content   string      `bson:"content" json:"content"`
	CreatedBy string      `bson:"created_by" json:"created_by"`
	CreatedAt int64       `bson:"created_at" json:"created_at"` // epoch millis
	Kind      HistoryKind `bson:"kind" json:"kind"`
}

// CallbackInfo is the single active scheduled follow-up for a lead.
// Created on first schedule, updated in place on reschedule, never multiplied.
type CallbackInfo struct {
	ScheduledAt time.Time `bson:"scheduled_at" json:"scheduled_at"`
	ScheduledBy string    `bson:"scheduled_by" json:"scheduled_by"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// Lead is one prospective customer record. The store owns the record; any
// in-memory copy is advisory and must be replaced wholesale, never mutated
// in place.
type Lead struct {
	ID              string         `bson:"_id" json:"id"`
	Name            string         `bson:"name" json:"name"`
	Email           string         `bson:"email" json:"email"`
	Phone           string         `bson:"phone" json:"phone"`
	PhoneNormalized string         `bson:"phone_normalized" json:"phone_normalized,omitempty"`
	Source          string         `bson:"source" json:"source"`
	Status          Status         `bson:"status" json:"status"`
	AssignedTo      string         `bson:"assigned_to" json:"assigned_to"`
	AssignedToID    string         `bson:"assigned_to_id" json:"assigned_to_id"`
	Note            string         `bson:"note" json:"note"`
	CustomerQuery   string         `bson:"customer_query" json:"customer_query"`
	Language        string         `bson:"language,omitempty" json:"language,omitempty"`
	CreatedAt       int64          `bson:"created_at" json:"created_at"` // epoch millis
	UpdatedAt       int64          `bson:"updated_at" json:"updated_at"`
	ConvertedAt     *int64         `bson:"converted_at,omitempty" json:"converted_at,omitempty"`
	Callback        *CallbackInfo  `bson:"callback,omitempty" json:"callback,omitempty"`
	History         []HistoryEntry `bson:"history,omitempty" json:"history,omitempty"`
}

// Clone returns a deep copy, so a caller can build a replacement value
// without touching the original.
func (l Lead) Clone() Lead {
	c := l
	if l.ConvertedAt != nil {
		v := *l.ConvertedAt
		c.ConvertedAt = &v
	}
	if l.Callback != nil {
		cb := *l.Callback
		c.Callback = &cb
	}
	if l.History != nil {
		c.History = make([]HistoryEntry, len(l.History))
		copy(c.History, l.History)
	}
	return c
}

// LatestHistory returns the most recent entry of the given kind, or nil.
// The denormalized Note field is a fast-path cache of the latest note entry.
func (l Lead) LatestHistory(kind HistoryKind) *HistoryEntry {
	var latest *HistoryEntry
	for i := range l.History {
		e := &l.History[i]
		if e.Kind != kind {
			continue
		}
		if latest == nil || e.CreatedAt > latest.CreatedAt {
			latest = e
		}
	}
	return latest
}

// Converted reports whether the lead has a recorded conversion.
func (l Lead) Converted() bool {
	return l.ConvertedAt != nil || l.Status == StatusConverted
}
