package query

import (
	"strings"

	"github.com/jordanlanch/leadconsole/pkg/domain"
)

// View selects between the normal browse list and the follow-up list.
type View string

const (
	ViewBrowse   View = "browse"
	ViewFollowUp View = "follow_up"
)

// Sort keys accepted from the operator. Anything else falls back to the
// default ingestion-timestamp ordering.
const (
	SortCreatedAt = "created_at"
	SortName      = "name"
	SortStatus    = "status"
	SortAssignee  = "assigned_to"
)

// FilterState is the operator's current filter selection. It is transient
// view-layer state and never persisted. At most one of search mode and
// browse mode is active: a non-empty Query means search mode.
type FilterState struct {
	Query      string
	Source     string
	Status     domain.Status
	AssignedTo string
	Converted  *bool
	From       int64 // epoch millis, 0 = unset
	To         int64
	SortKey    string
	SortDesc   bool
	View       View
}

// SearchMode reports whether full-text search is active. Search and browse
// are mutually exclusive; switching between them resets pagination.
func (s FilterState) SearchMode() bool {
	return strings.TrimSpace(s.Query) != ""
}

// NormalizedQuery is the trimmed, lowercased search text.
func (s FilterState) NormalizedQuery() string {
	return strings.ToLower(strings.TrimSpace(s.Query))
}

// BrowseEqual reports whether two states produce the same server-side query,
// ignoring the free-text query. Used to decide when a cursor is still valid.
func (s FilterState) BrowseEqual(o FilterState) bool {
	convEq := (s.Converted == nil) == (o.Converted == nil) &&
		(s.Converted == nil || *s.Converted == *o.Converted)
	return s.Source == o.Source &&
		s.Status == o.Status &&
		s.AssignedTo == o.AssignedTo &&
		convEq &&
		s.From == o.From &&
		s.To == o.To &&
		s.View == o.View
}
