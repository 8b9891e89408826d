// Package leadstore provides implementations of domain.LeadStore: a
// mongo-backed store for production and an in-memory store for tests and
// local development. Both honor the same predicate semantics: equality and
// range on numeric/date fields, case-insensitive prefix on strings.
package leadstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/pipeline"
)

// Memory is an in-memory LeadStore. Safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]domain.Lead
	// fieldNames maps collection -> store field name -> canonical name,
	// so pipelines with legacy field spellings still resolve.
	fieldNames map[string]map[string]string
}

// NewMemory creates an empty in-memory store aware of the registered
// pipelines' field mappings.
func NewMemory(reg *pipeline.Registry) *Memory {
	return &Memory{
		collections: make(map[string]map[string]domain.Lead),
		fieldNames:  reverseFieldNames(reg),
	}
}

// reverseFieldNames builds the per-collection stored-name -> canonical-name
// translation from the registered pipelines. Both stores use it so legacy
// field spellings resolve the same way everywhere.
func reverseFieldNames(reg *pipeline.Registry) map[string]map[string]string {
	out := make(map[string]map[string]string)
	if reg == nil {
		return out
	}
	for _, cfg := range reg.All() {
		reverse := make(map[string]string, len(cfg.FieldMap))
		for canonical, stored := range cfg.FieldMap {
			reverse[stored] = canonical
		}
		out[cfg.Collection] = reverse
	}
	return out
}

// Put inserts or replaces a lead. Test seeding helper.
func (m *Memory) Put(collection string, l domain.Lead) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]domain.Lead)
	}
	m.collections[collection][l.ID] = l.Clone()
}

// Len returns the number of leads in a collection.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func (m *Memory) canonical(collection, field string) string {
	if reverse, ok := m.fieldNames[collection]; ok {
		if canonical, ok := reverse[field]; ok {
			return canonical
		}
	}
	return field
}

// Query filters, sorts and paginates a collection. The cursor encodes a
// plain offset; it is opaque to callers.
func (m *Memory) Query(ctx context.Context, collection string, preds []domain.Predicate, s domain.Sort, cursor string, limit int) (*domain.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 25
	}

	m.mu.RLock()
	var matched []domain.Lead
	for _, l := range m.collections[collection] {
		ok := true
		for _, p := range preds {
			if !m.eval(collection, l, p) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, l.Clone())
		}
	}
	m.mu.RUnlock()

	sortField := m.canonical(collection, s.Field)
	sort.SliceStable(matched, func(i, j int) bool {
		return lessByField(matched[i], matched[j], sortField, s.Desc)
	})

	offset, err := decodeOffsetCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cursor: %w", err)
	}
	if offset > len(matched) {
		offset = len(matched)
	}

	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	page := &domain.Page{
		Items:   matched[offset:end],
		HasMore: end < len(matched),
	}
	if page.HasMore {
		page.NextCursor = encodeOffsetCursor(end)
	}
	return page, nil
}

// Get retrieves a single lead.
func (m *Memory) Get(ctx context.Context, collection, id string) (*domain.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.collections[collection][id]
	if !ok {
		return nil, domain.NewNotFoundError("lead")
	}
	c := l.Clone()
	return &c, nil
}

// Write applies a partial field update.
func (m *Memory) Write(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.collections[collection][id]
	if !ok {
		return domain.NewNotFoundError("lead")
	}
	updated := l.Clone()
	for field, value := range fields {
		if err := applyField(&updated, m.canonical(collection, field), value); err != nil {
			return err
		}
	}
	m.collections[collection][id] = updated
	return nil
}

// AppendHistory appends one immutable entry to the lead's log.
func (m *Memory) AppendHistory(ctx context.Context, collection, id string, entry domain.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.collections[collection][id]
	if !ok {
		return domain.NewNotFoundError("lead")
	}
	updated := l.Clone()
	updated.History = append(updated.History, entry)
	m.collections[collection][id] = updated
	return nil
}

// Delete removes a lead.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection][id]; !ok {
		return domain.NewNotFoundError("lead")
	}
	delete(m.collections[collection], id)
	return nil
}

func (m *Memory) eval(collection string, l domain.Lead, p domain.Predicate) bool {
	field := m.canonical(collection, p.Field)
	switch p.Op {
	case domain.OpEq:
		return stringField(l, field) == fmt.Sprintf("%v", p.Value) || numericEq(l, field, p.Value)
	case domain.OpGte:
		v, ok := numericField(l, field)
		return ok && v >= toInt64(p.Value)
	case domain.OpLte:
		v, ok := numericField(l, field)
		return ok && v <= toInt64(p.Value)
	case domain.OpPrefix:
		prefix, _ := p.Value.(string)
		if prefix == "" {
			return false
		}
		return strings.HasPrefix(strings.ToLower(stringField(l, field)), strings.ToLower(prefix))
	}
	return false
}

func stringField(l domain.Lead, canonical string) string {
	switch canonical {
	case pipeline.FieldName:
		return l.Name
	case pipeline.FieldEmail:
		return l.Email
	case pipeline.FieldPhone:
		return l.Phone
	case pipeline.FieldPhoneNormalized:
		return l.PhoneNormalized
	case pipeline.FieldSource:
		return l.Source
	case pipeline.FieldStatus:
		return string(l.Status)
	case pipeline.FieldAssignedTo:
		return l.AssignedTo
	case pipeline.FieldAssignedToID:
		return l.AssignedToID
	case pipeline.FieldNote:
		return l.Note
	case pipeline.FieldLanguage:
		return l.Language
	}
	return ""
}

func numericField(l domain.Lead, canonical string) (int64, bool) {
	switch canonical {
	case pipeline.FieldCreatedAt:
		return l.CreatedAt, true
	case pipeline.FieldUpdatedAt:
		return l.UpdatedAt, true
	case pipeline.FieldConvertedAt:
		if l.ConvertedAt == nil {
			return 0, false
		}
		return *l.ConvertedAt, true
	}
	return 0, false
}

func numericEq(l domain.Lead, canonical string, value interface{}) bool {
	v, ok := numericField(l, canonical)
	return ok && v == toInt64(value)
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	}
	return 0
}

func lessByField(a, b domain.Lead, canonical string, desc bool) bool {
	if av, ok := numericField(a, canonical); ok {
		bv, _ := numericField(b, canonical)
		if desc {
			return av > bv
		}
		return av < bv
	}
	as, bs := stringField(a, canonical), stringField(b, canonical)
	if desc {
		return as > bs
	}
	return as < bs
}

func applyField(l *domain.Lead, canonical string, value interface{}) error {
	switch canonical {
	case pipeline.FieldName:
		l.Name, _ = value.(string)
	case pipeline.FieldEmail:
		l.Email, _ = value.(string)
	case pipeline.FieldPhone:
		l.Phone, _ = value.(string)
	case pipeline.FieldPhoneNormalized:
		l.PhoneNormalized, _ = value.(string)
	case pipeline.FieldSource:
		l.Source, _ = value.(string)
	case pipeline.FieldStatus:
		switch s := value.(type) {
		case domain.Status:
			l.Status = s
		case string:
			l.Status = domain.Status(s)
		}
	case pipeline.FieldAssignedTo:
		l.AssignedTo, _ = value.(string)
	case pipeline.FieldAssignedToID:
		l.AssignedToID, _ = value.(string)
	case pipeline.FieldNote:
		l.Note, _ = value.(string)
	case pipeline.FieldLanguage:
		l.Language, _ = value.(string)
	case pipeline.FieldUpdatedAt:
		l.UpdatedAt = toInt64(value)
	case pipeline.FieldConvertedAt:
		if value == nil {
			l.ConvertedAt = nil
		} else {
			v := toInt64(value)
			l.ConvertedAt = &v
		}
	case pipeline.FieldCallback:
		switch cb := value.(type) {
		case nil:
			l.Callback = nil
		case *domain.CallbackInfo:
			l.Callback = cb
		case domain.CallbackInfo:
			l.Callback = &cb
		default:
			return fmt.Errorf("unsupported callback value %T", value)
		}
	default:
		return fmt.Errorf("unknown field: %s", canonical)
	}
	return nil
}

func encodeOffsetCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte("o:" + strconv.Itoa(offset)))
}

func decodeOffsetCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, err
	}
	s := strings.TrimPrefix(string(raw), "o:")
	return strconv.Atoi(s)
}

// nowMillis is a small helper shared by the stores.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
