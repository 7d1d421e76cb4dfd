// Package mongo stores expenses in a MongoDB collection and receipts in GridFS.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"bookkeeper/internal/expense"
	"bookkeeper/internal/models"
)

const (
	expensesCollection = "expenses"
	receiptsBucket     = "receipts"
)

type document struct {
	ID         bson.ObjectID   `bson:"_id,omitempty"`
	Date       time.Time       `bson:"date"`
	Vendor     *string         `bson:"vendor,omitempty"`
	Category   *string         `bson:"category,omitempty"`
	Amount     bson.Decimal128 `bson:"amount"`
	Notes      *string         `bson:"notes,omitempty"`
	ReceiptRef *string         `bson:"receipt_ref,omitempty"`
	CreatedAt  time.Time       `bson:"created_at"`
	UpdatedAt  *time.Time      `bson:"updated_at,omitempty"`
}

// Store is the document expense.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	coll   *mongo.Collection
	now    func() time.Time
}

var _ expense.Store = (*Store)(nil)

// Connect opens a client for uri, verifies it and ensures indexes on dbName.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{
		client: client,
		db:     db,
		coll:   db.Collection(expensesCollection),
		now:    time.Now,
	}

	_, err = s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create indexes: %w", err)
	}

	return s, nil
}

// Receipts returns the GridFS receipt store sharing this connection.
func (s *Store) Receipts() *Receipts {
	return NewReceipts(s.db)
}

// Find yields matching expenses ordered by date and id, both descending.
func (s *Store) Find(ctx context.Context, f expense.Filter) iter.Seq2[models.Expense, error] {
	return func(yield func(models.Expense, error) bool) {
		opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}})
		cursor, err := s.coll.Find(ctx, filterDocument(f), opts)
		if err != nil {
			yield(models.Expense{}, mapError(err))
			return
		}
		// Closed with a fresh context so an abandoned request still releases the cursor.
		defer cursor.Close(context.WithoutCancel(ctx))

		for cursor.Next(ctx) {
			var doc document
			if err := cursor.Decode(&doc); err != nil {
				yield(models.Expense{}, mapError(err))
				return
			}
			e, err := doc.toModel()
			if err != nil {
				yield(models.Expense{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(models.Expense{}, mapError(err))
		}
	}
}

// filterDocument translates f into a query document.
func filterDocument(f expense.Filter) bson.M {
	q := bson.M{}
	if f.Start != nil || f.End != nil {
		date := bson.M{}
		if f.Start != nil {
			date["$gte"] = models.DateOf(*f.Start)
		}
		if end, ok := f.EndExclusive(); ok {
			date["$lt"] = end
		}
		q["date"] = date
	}
	if f.Category != nil {
		q["category"] = *f.Category
	}
	if f.Search != nil {
		pattern := bson.Regex{Pattern: regexp.QuoteMeta(*f.Search), Options: "i"}
		q["$or"] = bson.A{
			bson.M{"vendor": pattern},
			bson.M{"notes": pattern},
		}
	}
	return q
}

// Get retrieves a single expense by ID.
func (s *Store) Get(ctx context.Context, id string) (models.Expense, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return models.Expense{}, expense.ErrNotFound
	}

	var doc document
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return models.Expense{}, mapError(err)
	}
	return doc.toModel()
}

// Insert stores e and returns its new ID.
func (s *Store) Insert(ctx context.Context, e models.Expense) (string, error) {
	amount, err := toDecimal128(e.Amount)
	if err != nil {
		return "", err
	}
	doc := document{
		ID:         bson.NewObjectID(),
		Date:       models.DateOf(e.Date),
		Vendor:     e.Vendor,
		Category:   e.Category,
		Amount:     amount,
		Notes:      e.Notes,
		ReceiptRef: e.ReceiptRef,
		CreatedAt:  e.CreatedAt.UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", mapError(err)
	}
	return doc.ID.Hex(), nil
}

// Update replaces every mutable field and stamps updated_at.
// Absent optional fields are removed from the document.
func (s *Store) Update(ctx context.Context, id string, e models.Expense) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return expense.ErrNotFound
	}
	amount, err := toDecimal128(e.Amount)
	if err != nil {
		return err
	}

	set := bson.M{
		"date":       models.DateOf(e.Date),
		"amount":     amount,
		"updated_at": s.now().UTC(),
	}
	unset := bson.M{}
	for field, value := range map[string]*string{
		"vendor":      e.Vendor,
		"category":    e.Category,
		"notes":       e.Notes,
		"receipt_ref": e.ReceiptRef,
	} {
		if value == nil {
			unset[field] = ""
		} else {
			set[field] = *value
		}
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	result, err := s.coll.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return expense.ErrNotFound
	}
	return nil
}

// Delete removes the expense.
func (s *Store) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return expense.ErrNotFound
	}
	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return mapError(err)
	}
	if result.DeletedCount == 0 {
		return expense.ErrNotFound
	}
	return nil
}

// DistinctCategories returns the non-empty categories in use, sorted.
func (s *Store) DistinctCategories(ctx context.Context) ([]string, error) {
	var categories []string
	err := s.coll.Distinct(ctx, "category", bson.M{"category": bson.M{"$nin": bson.A{nil, ""}}}).Decode(&categories)
	if err != nil {
		return nil, mapError(err)
	}
	if categories == nil {
		categories = []string{}
	}
	slices.Sort(categories)
	return categories, nil
}

// Ping checks that the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return mapError(err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (d document) toModel() (models.Expense, error) {
	amount, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return models.Expense{}, fmt.Errorf("%w: expense %s: parse amount: %w", expense.ErrStorageUnavailable, d.ID.Hex(), err)
	}
	e := models.Expense{
		ID:         d.ID.Hex(),
		Date:       models.DateOf(d.Date.UTC()),
		Vendor:     d.Vendor,
		Category:   d.Category,
		Amount:     amount,
		Notes:      d.Notes,
		ReceiptRef: d.ReceiptRef,
		CreatedAt:  d.CreatedAt.UTC(),
	}
	if d.UpdatedAt != nil {
		t := d.UpdatedAt.UTC()
		e.UpdatedAt = &t
	}
	return e, nil
}

func toDecimal128(d decimal.Decimal) (bson.Decimal128, error) {
	v, err := bson.ParseDecimal128(d.String())
	if err != nil {
		return bson.Decimal128{}, fmt.Errorf("%w: %s", expense.ErrInvalidAmount, d.String())
	}
	return v, nil
}

// mapError translates driver errors into expense sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) || errors.Is(err, mongo.ErrFileNotFound) {
		return expense.ErrNotFound
	}
	return fmt.Errorf("%w: %w", expense.ErrStorageUnavailable, err)
}
