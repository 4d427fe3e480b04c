package trustregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"rxchange/internal/sentinel"
)

const redisKeyPrefix = "trust:issuer:"

// RedisStore persists accreditation statuses in Redis with TTL eviction, so
// cached answers survive restarts and are shared across instances.
type RedisStore struct {
	client   *redis.Client
	cacheTTL time.Duration
}

// NewRedisStore constructs a Redis-backed status cache.
func NewRedisStore(client *redis.Client, cacheTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, cacheTTL: cacheTTL}
}

// Find loads a cached status by issuer DID. TTL eviction happens in Redis, so
// an expired entry is simply gone.
func (s *RedisStore) Find(ctx context.Context, issuerDID string) (*Status, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+issuerDID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find trust status: %w", err)
	}

	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("decode trust status: %w", err)
	}
	return &status, nil
}

// Save writes a status to Redis with TTL eviction.
func (s *RedisStore) Save(ctx context.Context, status *Status) error {
	if status == nil {
		return nil
	}
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode trust status: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+status.IssuerDID, payload, s.cacheTTL).Err(); err != nil {
		return fmt.Errorf("save trust status: %w", err)
	}
	return nil
}
