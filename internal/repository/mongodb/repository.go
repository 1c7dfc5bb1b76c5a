package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/mamadbah2/restopos/internal/domain/models"
	"github.com/mamadbah2/restopos/internal/repository"
)

const (
	billsCollection    = "bills"
	foodsCollection    = "foods"
	countersCollection = "counters"
	billCounterID      = "bills"
)

// queueCollections maps each print channel to the collection its agent watches.
var queueCollections = map[models.Channel]string{
	models.ChannelClient:  "printQueue",
	models.ChannelKitchen: "kitchenPrintQueue",
}

// MongoDBRepository implements repository.Store on MongoDB. Realtime
// subscriptions use change streams, so the deployment must be a replica set.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

var _ repository.Store = (*MongoDBRepository)(nil)

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
	}, nil
}

// EnsureIndexes creates the indexes behind the latest-job query, the stale
// job sweep and the bill listing.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	for channel, name := range queueCollections {
		_, err := r.db.Collection(name).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "billId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		})
		if err != nil {
			return fmt.Errorf("create %s queue indexes: %w", channel, err)
		}
	}

	_, err := r.db.Collection(billsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create bill indexes: %w", err)
	}

	r.logger.Info("mongodb indexes ensured")
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoDBRepository) queue(channel models.Channel) (*mongo.Collection, error) {
	name, ok := queueCollections[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownChannel, channel)
	}
	return r.db.Collection(name), nil
}

// parseID converts a hex id into an ObjectID. Ids that cannot exist are
// reported as not found rather than as bad input.
func parseID(kind, id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return oid, nil
}

// writeErr tags a driver error as a rejected write.
func writeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrWriteFailed, err)
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// stampedInsert builds an upsert body that inserts doc with each stamped field
// set from the server clock.
func stampedInsert(doc interface{}, stamped ...string) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	delete(fields, "_id")

	current := bson.M{}
	for _, name := range stamped {
		delete(fields, name)
		current[name] = bson.M{"$type": "date"}
	}
	return bson.M{"$setOnInsert": fields, "$currentDate": current}, nil
}

// insertStamped inserts doc under a fresh _id, stamping the named fields with
// the server time, and decodes the stored document into out.
func insertStamped(ctx context.Context, coll *mongo.Collection, doc interface{}, out interface{}, stamped ...string) error {
	update, err := stampedInsert(doc, stamped...)
	if err != nil {
		return err
	}
	return coll.FindOneAndUpdate(ctx,
		bson.M{"_id": primitive.NewObjectID()},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(out)
}
