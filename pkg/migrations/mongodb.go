package migrations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureMongoDedupCollection creates the TTL index that lets MongoDB expire
// deduplication records retention after first_seen_at.
func EnsureMongoDedupCollection(ctx context.Context, db *mongo.Database, collection string, retention time.Duration) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "first_seen_at", Value: 1}},
			Options: options.Index().
				SetName("idx_dedup_first_seen_at_ttl").
				SetExpireAfterSeconds(int32(retention.Seconds())),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_dedup_status"),
		},
	}

	_, err := db.Collection(collection).Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
