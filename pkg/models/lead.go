package models

import "github.com/jordanlanch/leadconsole/pkg/domain"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// LeadListRequest carries the browse filters for a list page.
type LeadListRequest struct {
	Query      string `query:"q"`
	Source     string `query:"source"`
	Status     string `query:"status"`
	AssignedTo string `query:"assigned_to"`
	Converted  *bool  `query:"converted"`
	From       int64  `query:"from"`
	To         int64  `query:"to"`
	SortKey    string `query:"sort" validate:"omitempty,oneof=created_at name status assigned_to"`
	SortDesc   bool   `query:"desc"`
	View       string `query:"view" validate:"omitempty,oneof=browse follow_up"`
	Cursor     string `query:"cursor"`
}

// LeadResponse is a single lead in API responses.
type LeadResponse struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Email       string                `json:"email,omitempty"`
	Phone       string                `json:"phone,omitempty"`
	Source      string                `json:"source,omitempty"`
	Status      string                `json:"status"`
	AssignedTo  string                `json:"assigned_to,omitempty"`
	Note        string                `json:"note,omitempty"`
	Language    string                `json:"language,omitempty"`
	CreatedAt   int64                 `json:"created_at"`
	UpdatedAt   int64                 `json:"updated_at,omitempty"`
	ConvertedAt *int64                `json:"converted_at,omitempty"`
	Callback    *domain.CallbackInfo  `json:"callback,omitempty"`
	History     []domain.HistoryEntry `json:"history,omitempty"`
}

// LeadListResponse is one page of leads.
type LeadListResponse struct {
	Data       []LeadResponse `json:"data"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

// NoteRequest saves a note on a lead.
type NoteRequest struct {
	Note string `json:"note" validate:"required,max=2000"`
}

// StatusRequest changes a lead's status. The captured fields supply the data
// the capture workflow collected client-side.
type StatusRequest struct {
	Status      string `json:"status" validate:"required"`
	Confirmed   bool   `json:"confirmed"`
	CallbackAt  *int64 `json:"callback_at,omitempty"` // epoch millis
	Language    string `json:"language,omitempty"`
	ConvertedAt *int64 `json:"converted_at,omitempty"`
}

// AssignRequest assigns a lead to an operator.
type AssignRequest struct {
	AssigneeID   string `json:"assignee_id" validate:"required"`
	AssigneeName string `json:"assignee_name" validate:"required"`
}

// BatchRequest applies one action to a set of leads.
type BatchRequest struct {
	Action       string            `json:"action" validate:"required,oneof=assign unassign message"`
	LeadIDs      []string          `json:"lead_ids" validate:"required,min=1,max=500"`
	AssigneeID   string            `json:"assignee_id,omitempty"`
	AssigneeName string            `json:"assignee_name,omitempty"`
	TemplateID   string            `json:"template_id,omitempty"`
	Params       map[string]string `json:"params,omitempty"`
}

// NewLeadResponse converts a domain lead.
func NewLeadResponse(l domain.Lead) LeadResponse {
	return LeadResponse{
		ID:          l.ID,
		Name:        l.Name,
		Email:       l.Email,
		Phone:       l.Phone,
		Source:      l.Source,
		Status:      string(l.Status),
		AssignedTo:  l.AssignedTo,
		Note:        l.Note,
		Language:    l.Language,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
		ConvertedAt: l.ConvertedAt,
		Callback:    l.Callback,
		History:     l.History,
	}
}

// NewLeadListResponse converts a page of domain leads.
func NewLeadListResponse(items []domain.Lead, nextCursor string, hasMore bool) LeadListResponse {
	data := make([]LeadResponse, len(items))
	for i, l := range items {
		data[i] = NewLeadResponse(l)
	}
	return LeadListResponse{Data: data, NextCursor: nextCursor, HasMore: hasMore}
}
