package revocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"rxchange/internal/sentinel"
)

// Store caches revocation statuses.
//
// Revoked entries are sticky and never expire. Not-revoked entries expire
// after the cache TTL, after which implementations return
// sentinel.ErrNotFound as if the entry had never existed.
type Store interface {
	Find(ctx context.Context, credentialID string) (*Status, error)
	Save(ctx context.Context, status *Status) error
}

type cachedStatus struct {
	status   Status
	storedAt time.Time
}

// MemoryStore is an in-memory revocation cache.
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[string]cachedStatus
	cacheTTL time.Duration
}

// NewMemoryStore creates an in-memory cache; cacheTTL bounds only the
// not-revoked entries.
func NewMemoryStore(cacheTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		statuses: make(map[string]cachedStatus),
		cacheTTL: cacheTTL,
	}
}

func (s *MemoryStore) Find(_ context.Context, credentialID string) (*Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cached, ok := s.statuses[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !cached.status.Revoked && time.Since(cached.storedAt) >= s.cacheTTL {
		return nil, sentinel.ErrNotFound
	}
	status := cached.status
	return &status, nil
}

func (s *MemoryStore) Save(_ context.Context, status *Status) error {
	if status == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Never let a not-revoked answer overwrite a sticky revoked one.
	if existing, ok := s.statuses[status.CredentialID]; ok && existing.status.Revoked && !status.Revoked {
		return nil
	}
	s.statuses[status.CredentialID] = cachedStatus{status: *status, storedAt: time.Now()}
	return nil
}

const redisKeyPrefix = "revocation:credential:"

// RedisStore persists revocation statuses in Redis. Revoked entries are
// written without expiry; not-revoked entries carry the cache TTL.
type RedisStore struct {
	client   *redis.Client
	cacheTTL time.Duration
}

// NewRedisStore constructs a Redis-backed revocation cache.
func NewRedisStore(client *redis.Client, cacheTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, cacheTTL: cacheTTL}
}

func (s *RedisStore) Find(ctx context.Context, credentialID string) (*Status, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+credentialID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find revocation status: %w", err)
	}

	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("decode revocation status: %w", err)
	}
	return &status, nil
}

func (s *RedisStore) Save(ctx context.Context, status *Status) error {
	if status == nil {
		return nil
	}
	key := redisKeyPrefix + status.CredentialID
	if !status.Revoked {
		// SETNX-like guard is unnecessary here: a revoked entry has no TTL,
		// so only overwrite when no sticky entry exists.
		existing, err := s.Find(ctx, status.CredentialID)
		if err == nil && existing.Revoked {
			return nil
		}
	}

	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encode revocation status: %w", err)
	}
	ttl := s.cacheTTL
	if status.Revoked {
		ttl = 0 // sticky
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save revocation status: %w", err)
	}
	return nil
}
