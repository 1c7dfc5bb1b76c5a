package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/restopos/internal/domain/models"
)

type foodDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	models.Food `bson:",inline"`
}

func (d foodDocument) model() models.Food {
	food := d.Food
	food.ID = d.ID.Hex()
	return food
}

// CreateFood inserts a menu item.
func (r *MongoDBRepository) CreateFood(ctx context.Context, food models.Food) (models.Food, error) {
	doc := foodDocument{Food: food}
	doc.CreatedAt = time.Now().UTC()

	res, err := r.db.Collection(foodsCollection).InsertOne(ctx, doc)
	if err != nil {
		return models.Food{}, writeErr("insert food", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return models.Food{}, fmt.Errorf("insert food: unexpected id type %T", res.InsertedID)
	}
	doc.ID = oid
	return doc.model(), nil
}

// ListFoods returns the menu ordered by name.
func (r *MongoDBRepository) ListFoods(ctx context.Context) ([]models.Food, error) {
	return r.findFoods(ctx, bson.M{})
}

// GetFoods returns the foods with the given ids in the same order.
func (r *MongoDBRepository) GetFoods(ctx context.Context, ids []string) ([]models.Food, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := parseID("food", id)
		if err != nil {
			return nil, err
		}
		oids = append(oids, oid)
	}

	found, err := r.findFoods(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Food, len(found))
	for _, food := range found {
		byID[food.ID] = food
	}

	out := make([]models.Food, 0, len(ids))
	for _, id := range ids {
		food, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("food %s: %w", id, models.ErrNotFound)
		}
		out = append(out, food)
	}
	return out, nil
}

func (r *MongoDBRepository) findFoods(ctx context.Context, filter bson.M) ([]models.Food, error) {
	cursor, err := r.db.Collection(foodsCollection).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find foods: %w", err)
	}

	var docs []foodDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode foods: %w", err)
	}

	foods := make([]models.Food, 0, len(docs))
	for _, doc := range docs {
		foods = append(foods, doc.model())
	}
	return foods, nil
}
