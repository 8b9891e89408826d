package leadstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jordanlanch/leadconsole/pkg/domain"
	"github.com/jordanlanch/leadconsole/pkg/pipeline"
)

// Mongo is the production LeadStore backed by a mongo database. One database
// holds all pipeline collections.
type Mongo struct {
	db *mongo.Database
	// fieldNames maps collection -> stored field name -> canonical name.
	// Predicates arrive store-spelled, so filters pass through untouched;
	// documents are remapped onto the canonical lead shape on decode.
	fieldNames map[string]map[string]string
}

// NewMongo connects to the document store and pings it.
func NewMongo(ctx context.Context, uri, database string, reg *pipeline.Registry) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to document store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping document store: %w", err)
	}
	return &Mongo{db: client.Database(database), fieldNames: reverseFieldNames(reg)}, nil
}

// Close disconnects the underlying client.
func (s *Mongo) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

type mongoCursor struct {
	SortValue int64  `json:"s"`
	ID        string `json:"id"`
}

// Query translates predicates into a filter document and pages with a
// keyset cursor over (sort field, _id), so pages stay stable while rows
// are inserted ahead of the cursor.
func (s *Mongo) Query(ctx context.Context, collection string, preds []domain.Predicate, srt domain.Sort, cursor string, limit int) (*domain.Page, error) {
	if limit <= 0 {
		limit = 25
	}

	filter := bson.M{}
	for _, p := range preds {
		switch p.Op {
		case domain.OpEq:
			filter[p.Field] = p.Value
		case domain.OpGte:
			merged, _ := filter[p.Field].(bson.M)
			if merged == nil {
				merged = bson.M{}
			}
			merged["$gte"] = p.Value
			filter[p.Field] = merged
		case domain.OpLte:
			merged, _ := filter[p.Field].(bson.M)
			if merged == nil {
				merged = bson.M{}
			}
			merged["$lte"] = p.Value
			filter[p.Field] = merged
		case domain.OpPrefix:
			prefix, _ := p.Value.(string)
			filter[p.Field] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(prefix), Options: "i"}
		default:
			return nil, fmt.Errorf("unsupported predicate op: %s", p.Op)
		}
	}

	sortField := srt.Field
	if sortField == "" {
		sortField = "created_at"
	}
	direction := 1
	if srt.Desc {
		direction = -1
	}

	if cursor != "" {
		after, err := decodeMongoCursor(cursor)
		if err != nil {
			return nil, fmt.Errorf("failed to decode cursor: %w", err)
		}
		cmp := "$gt"
		if srt.Desc {
			cmp = "$lt"
		}
		filter["$or"] = bson.A{
			bson.M{sortField: bson.M{cmp: after.SortValue}},
			bson.M{sortField: after.SortValue, "_id": bson.M{"$gt": after.ID}},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: sortField, Value: direction}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit) + 1)

	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer cur.Close(ctx)

	var raws []bson.M
	if err := cur.All(ctx, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode leads: %w", err)
	}
	items := make([]domain.Lead, 0, len(raws))
	for _, raw := range raws {
		l, err := s.decodeLead(collection, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}

	page := &domain.Page{}
	if len(items) > limit {
		items = items[:limit]
		page.HasMore = true
		last := items[len(items)-1]
		page.NextCursor = encodeMongoCursor(mongoCursor{SortValue: sortKeyValue(last, s.canonical(collection, sortField)), ID: last.ID})
	}
	page.Items = items
	return page, nil
}

// Get retrieves a single lead by id.
func (s *Mongo) Get(ctx context.Context, collection, id string) (*domain.Lead, error) {
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if err == mongo.ErrNoDocuments {
		return nil, domain.NewNotFoundError("lead")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	l, err := s.decodeLead(collection, raw)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// decodeLead remaps a raw document's legacy field spellings onto the
// canonical lead shape before decoding. Collections without a field map
// pass through unchanged.
func (s *Mongo) decodeLead(collection string, raw bson.M) (domain.Lead, error) {
	for stored, canonical := range s.fieldNames[collection] {
		if stored == canonical {
			continue
		}
		if v, ok := raw[stored]; ok {
			raw[canonical] = v
			delete(raw, stored)
		}
	}
	data, err := bson.Marshal(raw)
	if err != nil {
		return domain.Lead{}, fmt.Errorf("failed to re-encode lead: %w", err)
	}
	var l domain.Lead
	if err := bson.Unmarshal(data, &l); err != nil {
		return domain.Lead{}, fmt.Errorf("failed to decode lead: %w", err)
	}
	return l, nil
}

// encodeLead is the inverse translation, used when inserting whole leads
// into a collection with legacy field spellings.
func (s *Mongo) encodeLead(collection string, l domain.Lead) (bson.M, error) {
	data, err := bson.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lead: %w", err)
	}
	var raw bson.M
	if err := bson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to re-decode lead: %w", err)
	}
	for stored, canonical := range s.fieldNames[collection] {
		if stored == canonical {
			continue
		}
		if v, ok := raw[canonical]; ok {
			raw[stored] = v
			delete(raw, canonical)
		}
	}
	return raw, nil
}

// Write applies a partial field update.
func (s *Mongo) Write(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	set := bson.M{}
	unset := bson.M{}
	for k, v := range fields {
		if v == nil {
			unset[k] = ""
		} else {
			set[k] = v
		}
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		return nil
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to write lead: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("lead")
	}
	return nil
}

// AppendHistory pushes one entry onto the append-only log.
func (s *Mongo) AppendHistory(ctx context.Context, collection, id string, entry domain.HistoryEntry) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$push": bson.M{"history": entry}},
	)
	if err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.NewNotFoundError("lead")
	}
	return nil
}

// Delete removes a lead.
func (s *Mongo) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete lead: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.NewNotFoundError("lead")
	}
	return nil
}

// Seed inserts a batch of leads; ingestion helper for local environments.
func (s *Mongo) Seed(ctx context.Context, collection string, leads []domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	docs := make([]interface{}, len(leads))
	for i, l := range leads {
		if l.CreatedAt == 0 {
			l.CreatedAt = nowMillis()
		}
		doc, err := s.encodeLead(collection, l)
		if err != nil {
			return err
		}
		docs[i] = doc
	}
	if _, err := s.db.Collection(collection).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to seed leads: %w", err)
	}
	return nil
}

func (s *Mongo) canonical(collection, field string) string {
	if reverse, ok := s.fieldNames[collection]; ok {
		if canonical, ok := reverse[field]; ok {
			return canonical
		}
	}
	return field
}

func sortKeyValue(l domain.Lead, sortField string) int64 {
	switch sortField {
	case "updated_at":
		return l.UpdatedAt
	default:
		return l.CreatedAt
	}
}

func encodeMongoCursor(c mongoCursor) string {
	raw, _ := json.Marshal(c)
	return base64.StdEncoding.EncodeToString(raw)
}

func decodeMongoCursor(cursor string) (*mongoCursor, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, err
	}
	var c mongoCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
