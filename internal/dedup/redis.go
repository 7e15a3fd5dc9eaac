package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// claimMarker is stored by Claim when the result is not known yet. Redis
// values cannot be NULL, so an empty payload stands in for "claimed, no
// result". Real results are never empty: the engine always caches at least
// an empty JSON object.
const claimMarker = ""

// RedisStore implements Store on Redis. SET NX carries the same
// insert-if-absent atomicity as the Postgres ON CONFLICT path, and key TTLs
// replace the periodic sweep entirely.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed deduplication store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(key Key) string {
	return fmt.Sprintf("dedup:%s:%s", key.Class, key.OperationID)
}

// Claim records the key via SET NX with the TTL derived from expiresAt.
func (s *RedisStore) Claim(ctx context.Context, key Key, processedAt, expiresAt time.Time, result []byte) (bool, error) {
	ttl := expiresAt.Sub(processedAt)
	if ttl <= 0 {
		return false, fmt.Errorf("dedup: non-positive ttl for %s/%s", key.Class, key.OperationID)
	}
	value := claimMarker
	if len(result) > 0 {
		value = string(result)
	}
	return s.client.SetNX(ctx, redisKey(key), value, ttl).Result()
}

// Exists reports whether the key is claimed.
func (s *RedisStore) Exists(ctx context.Context, key Key) (bool, error) {
	n, err := s.client.Exists(ctx, redisKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetResult returns the cached result when one has been back-filled. Expiry
// is enforced by Redis itself, so now is unused here.
func (s *RedisStore) GetResult(ctx context.Context, key Key, _ time.Time) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if value == claimMarker {
		return nil, false, nil
	}
	return []byte(value), true, nil
}

// UpdateResult overwrites the value while preserving the original TTL.
func (s *RedisStore) UpdateResult(ctx context.Context, key Key, result []byte) error {
	value := claimMarker
	if len(result) > 0 {
		value = string(result)
	}
	return s.client.Set(ctx, redisKey(key), value, redis.KeepTTL).Err()
}

// Release drops a claim whose work did not complete.
func (s *RedisStore) Release(ctx context.Context, key Key) error {
	return s.client.Del(ctx, redisKey(key)).Err()
}

// SweepExpired is a no-op: Redis evicts expired keys on its own.
func (s *RedisStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

var _ Store = (*RedisStore)(nil)
