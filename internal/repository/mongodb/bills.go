package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
)

type billDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	models.Bill `bson:",inline"`
}

func (d billDocument) model() models.Bill {
	bill := d.Bill
	bill.ID = d.ID.Hex()
	if bill.History == nil {
		bill.History = []models.BillHistoryEntry{}
	}
	return bill
}

type counterDocument struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}

// NextBillSequence atomically increments the bill counter and returns the new value.
func (r *MongoDBRepository) NextBillSequence(ctx context.Context) (int64, error) {
	var counter counterDocument
	err := r.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": billCounterID},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, writeErr("increment bill counter", err)
	}
	return counter.Seq, nil
}

// CreateBill inserts a bill with an empty history. createdAt is taken from
// the server clock.
func (r *MongoDBRepository) CreateBill(ctx context.Context, bill models.Bill) (models.Bill, error) {
	doc := billDocument{Bill: bill.Clone()}
	doc.History = []models.BillHistoryEntry{}

	var stored billDocument
	if err := insertStamped(ctx, r.db.Collection(billsCollection), doc, &stored, "createdAt"); err != nil {
		return models.Bill{}, writeErr("insert bill", err)
	}
	return stored.model(), nil
}

// GetBill reads one bill.
func (r *MongoDBRepository) GetBill(ctx context.Context, id string) (models.Bill, error) {
	oid, err := parseID("bill", id)
	if err != nil {
		return models.Bill{}, err
	}

	var doc billDocument
	if err := r.db.Collection(billsCollection).FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return models.Bill{}, fmt.Errorf("bill %s: %w", id, models.ErrNotFound)
		}
		return models.Bill{}, fmt.Errorf("find bill %s: %w", id, err)
	}
	return doc.model(), nil
}

// ListBills returns every bill, newest first.
func (r *MongoDBRepository) ListBills(ctx context.Context) ([]models.Bill, error) {
	return r.ListBillsCreatedBetween(ctx, time.Time{}, time.Time{})
}

// ListBillsCreatedBetween returns bills created in [start, end), newest first.
// A zero bound is open.
func (r *MongoDBRepository) ListBillsCreatedBetween(ctx context.Context, start, end time.Time) ([]models.Bill, error) {
	filter := bson.M{}
	createdAt := bson.M{}
	if !start.IsZero() {
		createdAt["$gte"] = start.UTC()
	}
	if !end.IsZero() {
		createdAt["$lt"] = end.UTC()
	}
	if len(createdAt) > 0 {
		filter["createdAt"] = createdAt
	}

	cursor, err := r.db.Collection(billsCollection).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}

	var docs []billDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode bills: %w", err)
	}

	bills := make([]models.Bill, 0, len(docs))
	for _, doc := range docs {
		bills = append(bills, doc.model())
	}
	return bills, nil
}

// AppendBillRevision replaces the mutable fields and pushes the history entry
// in a single update, so readers never see one without the other.
func (r *MongoDBRepository) AppendBillRevision(ctx context.Context, id string, rev repository.BillRevision) (models.Bill, error) {
	oid, err := parseID("bill", id)
	if err != nil {
		return models.Bill{}, err
	}

	filter := bson.M{"_id": oid}
	if rev.ExpectedRevision != repository.Unconditional {
		filter["history"] = bson.M{"$size": rev.ExpectedRevision}
	}

	entry, err := historyEntryLiteral(rev.Entry)
	if err != nil {
		return models.Bill{}, fmt.Errorf("encode history entry of bill %s: %w", id, err)
	}

	// Pipeline form so the entry's updatedAt comes from the server clock.
	// Client values go through $literal so strings starting with $ stay data.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "tableNumber", Value: bson.M{"$literal": rev.Fields.TableNumber}},
			{Key: "note", Value: bson.M{"$literal": rev.Fields.Note}},
			{Key: "foods", Value: bson.M{"$literal": models.CloneFoods(rev.Fields.Foods)}},
			{Key: "history", Value: bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$history", bson.A{}}},
				bson.A{bson.M{"$mergeObjects": bson.A{
					bson.M{"$literal": entry},
					bson.M{"updatedAt": "$$NOW"},
				}}},
			}}},
		}}},
	}

	var doc billDocument
	err = r.db.Collection(billsCollection).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err == nil {
		return doc.model(), nil
	}
	if !isNoDocuments(err) {
		return models.Bill{}, writeErr("update bill "+id, err)
	}

	if rev.ExpectedRevision == repository.Unconditional {
		return models.Bill{}, fmt.Errorf("bill %s: %w", id, models.ErrNotFound)
	}

	// The conditional filter missed: tell a vanished bill from a moved revision.
	count, cerr := r.db.Collection(billsCollection).CountDocuments(ctx, bson.M{"_id": oid})
	if cerr != nil {
		return models.Bill{}, fmt.Errorf("check bill %s: %w", id, cerr)
	}
	if count == 0 {
		return models.Bill{}, fmt.Errorf("bill %s: %w", id, models.ErrNotFound)
	}
	return models.Bill{}, fmt.Errorf("bill %s: %w", id, models.ErrRevisionConflict)
}

// historyEntryLiteral encodes a history entry without its updatedAt.
func historyEntryLiteral(entry models.BillHistoryEntry) (bson.M, error) {
	entry.OldData.Foods = models.CloneFoods(entry.OldData.Foods)
	raw, err := bson.Marshal(entry)
	if err != nil {
		return nil, err
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, "updatedAt")
	return fields, nil
}

// WatchBill streams the bill on every change to its document.
func (r *MongoDBRepository) WatchBill(ctx context.Context, id string, fn func(*models.Bill)) (repository.CancelFunc, error) {
	if fn == nil {
		return nil, fmt.Errorf("watch bill %s: nil callback", id)
	}
	oid, err := parseID("bill", id)
	if err != nil {
		return nil, err
	}

	coll := r.db.Collection(billsCollection)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: oid}}}},
	}

	push := func(ctx context.Context) {
		bill, err := r.GetBill(ctx, id)
		if err != nil {
			if isNotFound(err) {
				fn(nil)
				return
			}
			r.logger.Warn("bill refresh failed", zap.String("bill_id", id), zap.Error(err))
			return
		}
		fn(&bill)
	}

	return r.watch(ctx, coll, pipeline, "bill:"+id, push)
}
