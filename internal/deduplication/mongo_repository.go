package deduplication

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"veritas/internal/constants"
)

// MongoRepository keys documents by _id so the unique primary index provides
// atomic admission. A TTL index on first_seen_at (see pkg/migrations) expires
// documents in the background; Sweep covers the TTL monitor's lag.
type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database, collection string) *MongoRepository {
	return &MongoRepository{collection: db.Collection(collection)}
}

func (r *MongoRepository) CreateIfAbsent(ctx context.Context, key string, now time.Time, retention time.Duration) (bool, error) {
	// Upsert only matches an expired document; a live one makes the upsert
	// attempt an insert that collides on _id.
	filter := bson.M{"_id": key, "first_seen_at": bson.M{"$lt": now.Add(-retention)}}
	update := bson.M{"$set": bson.M{"status": StatusInProgress, "first_seen_at": now}}

	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("mongodb upsert dedup record: %w", err)
	}
	return true, nil
}

func (r *MongoRepository) MarkCompleted(ctx context.Context, key string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": key, "status": StatusInProgress},
		bson.M{"$set": bson.M{"status": StatusCompleted, "completed_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("mongodb complete dedup record: %w", err)
	}
	return nil
}

func (r *MongoRepository) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"first_seen_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("mongodb sweep dedup records: %w", err)
	}
	return int(res.DeletedCount), nil
}

func (r *MongoRepository) Name() string { return constants.StoreTypeMongoDB }
