package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"inquiryflow/db"
	"inquiryflow/inquiry"
)

const (
	inquiriesCollection = "inquiries"
	countersCollection  = "counters"
	inquirySequence     = "inquiries"
)

// inquiryDocument is the stored shape of an inquiry. Status keeps the same
// flat record the JSON codec uses so both drivers agree on field names.
type inquiryDocument struct {
	ID            int64                `bson:"_id"`
	Name          string               `bson:"name"`
	Description   string               `bson:"description"`
	CreatedAt     time.Time            `bson:"createdAt"`
	Deadline      *time.Time           `bson:"deadline,omitempty"`
	Service       string               `bson:"service"`
	ContactNumber string               `bson:"contactNumber"`
	DeliveryArea  string               `bson:"deliveryArea"`
	Reference     bool                 `bson:"reference"`
	Status        inquiry.StatusRecord `bson:"status"`
	Version       int64                `bson:"version"`
	UpdatedAt     time.Time            `bson:"updatedAt"`
}

type counterDocument struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// Store keeps inquiries in a MongoDB collection. Writes are filtered on
// {_id, version} so a stale writer matches nothing.
type Store struct {
	inquiries *mongo.Collection
	counters  *mongo.Collection
}

func New(database *mongo.Database) *Store {
	return &Store{
		inquiries: database.Collection(inquiriesCollection),
		counters:  database.Collection(countersCollection),
	}
}

var _ inquiry.Store = (*Store)(nil)

// EnsureIndexes creates the status label index used by ListByStatus.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.inquiries.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "status.label", Value: 1}, {Key: "_id", Value: 1}},
		Options: options.Index().SetName("status_label"),
	})
	if err != nil {
		return fmt.Errorf("mongo: create index: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (inquiry.Inquiry, error) {
	var doc inquiryDocument
	err := s.inquiries.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return inquiry.Inquiry{}, inquiry.NotFound(id)
		}
		return inquiry.Inquiry{}, fmt.Errorf("mongo: get inquiry %d: %w", id, err)
	}
	return fromDocument(doc)
}

func (s *Store) ListByStatus(ctx context.Context, label inquiry.Label) ([]inquiry.Inquiry, error) {
	cursor, err := s.inquiries.Find(ctx,
		bson.M{"status.label": string(label)},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo: list inquiries: %w", err)
	}
	defer cursor.Close(ctx)

	var out []inquiry.Inquiry
	for cursor.Next(ctx) {
		var doc inquiryDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode inquiry: %w", err)
		}
		inq, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, inq)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo: list inquiries: %w", err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, details inquiry.Details, status inquiry.Status) (inquiry.Inquiry, error) {
	rec, err := inquiry.ToRecord(status)
	if err != nil {
		return inquiry.Inquiry{}, err
	}
	id, err := s.nextID(ctx)
	if err != nil {
		return inquiry.Inquiry{}, err
	}

	doc := inquiryDocument{
		ID:            id,
		Name:          details.Name,
		Description:   details.Description,
		CreatedAt:     details.CreatedAt.UTC(),
		Service:       details.Service,
		ContactNumber: details.ContactNumber,
		DeliveryArea:  details.DeliveryArea,
		Reference:     details.Reference,
		Status:        rec,
		Version:       1,
		UpdatedAt:     time.Now().UTC(),
	}
	if !details.Deadline.IsZero() {
		deadline := details.Deadline.UTC()
		doc.Deadline = &deadline
	}

	if _, err := s.inquiries.InsertOne(ctx, doc); err != nil {
		return inquiry.Inquiry{}, fmt.Errorf("mongo: insert inquiry: %w", err)
	}
	return fromDocument(doc)
}

// nextID draws from a counter document. Two first-time upserts can race on
// the counter's _id, so duplicate key errors are retried.
func (s *Store) nextID(ctx context.Context) (int64, error) {
	var counter counterDocument
	op := func() error {
		return s.counters.FindOneAndUpdate(ctx,
			bson.M{"_id": inquirySequence},
			bson.M{"$inc": bson.M{"seq": int64(1)}},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&counter)
	}
	if err := db.WithRetries(ctx, op, 3, db.IsMongoDuplicateKeyError); err != nil {
		return 0, fmt.Errorf("mongo: next inquiry id: %w", err)
	}
	return counter.Seq, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, id, expectedVersion int64, next inquiry.Status) (int64, error) {
	rec, err := inquiry.ToRecord(next)
	if err != nil {
		return 0, err
	}

	res, err := s.inquiries.UpdateOne(ctx,
		bson.M{"_id": id, "version": expectedVersion},
		bson.M{
			"$set": bson.M{"status": rec, "updatedAt": time.Now().UTC()},
			"$inc": bson.M{"version": int64(1)},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("mongo: update inquiry %d: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return 0, s.missReason(ctx, id, expectedVersion)
	}
	return expectedVersion + 1, nil
}

func (s *Store) Delete(ctx context.Context, id, expectedVersion int64) error {
	res, err := s.inquiries.DeleteOne(ctx, bson.M{"_id": id, "version": expectedVersion})
	if err != nil {
		return fmt.Errorf("mongo: delete inquiry %d: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return s.missReason(ctx, id, expectedVersion)
	}
	return nil
}

func (s *Store) missReason(ctx context.Context, id, expectedVersion int64) error {
	n, err := s.inquiries.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("mongo: check inquiry %d: %w", id, err)
	}
	if n == 0 {
		return inquiry.NotFound(id)
	}
	return inquiry.VersionConflict(id, expectedVersion)
}

func fromDocument(doc inquiryDocument) (inquiry.Inquiry, error) {
	status, err := inquiry.FromRecord(doc.Status)
	if err != nil {
		return inquiry.Inquiry{}, err
	}
	inq := inquiry.Inquiry{
		ID: doc.ID,
		Details: inquiry.Details{
			Name:          doc.Name,
			Description:   doc.Description,
			CreatedAt:     doc.CreatedAt.UTC(),
			Service:       doc.Service,
			ContactNumber: doc.ContactNumber,
			DeliveryArea:  doc.DeliveryArea,
			Reference:     doc.Reference,
		},
		Status:  status,
		Version: doc.Version,
	}
	if doc.Deadline != nil {
		inq.Details.Deadline = doc.Deadline.UTC()
	}
	return inq, nil
}
