package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hanko-field/storefront/internal/repositories"
)

// CounterRepository issues sequence values with an upserted $inc.
type CounterRepository struct {
	counters *mongo.Collection
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository binds the repository to db.
func NewCounterRepository(db *mongo.Database) *CounterRepository {
	return &CounterRepository{counters: db.Collection(countersCollection)}
}

func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	const op = "counters.next"
	id, increment, err := repositories.ValidateCounterID(op, counterID, step)
	if err != nil {
		return 0, err
	}
	var doc struct {
		CurrentValue int64 `bson:"currentValue"`
	}
	err = r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$inc": bson.M{"currentValue": increment},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, wrapError(op, err)
	}
	return doc.CurrentValue, nil
}
