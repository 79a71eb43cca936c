package deduplication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"veritas/internal/constants"
)

// RedisRepository stores one string key per event whose value is the status.
// Expiry is delegated to the key TTL, so Sweep has nothing to do.
type RedisRepository struct {
	client redis.Cmdable
	prefix string
}

func NewRedisRepository(client redis.Cmdable) *RedisRepository {
	return &RedisRepository{client: client, prefix: constants.CacheKeyPrefixDedup}
}

func (r *RedisRepository) CreateIfAbsent(ctx context.Context, key string, _ time.Time, retention time.Duration) (bool, error) {
	created, err := r.client.SetNX(ctx, r.prefix+key, string(StatusInProgress), retention).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return created, nil
}

func (r *RedisRepository) MarkCompleted(ctx context.Context, key string) error {
	err := r.client.SetArgs(ctx, r.prefix+key, string(StatusCompleted), redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis SET XX failed: %w", err)
	}
	return nil
}

func (r *RedisRepository) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (r *RedisRepository) Name() string { return constants.StoreTypeRedis }
