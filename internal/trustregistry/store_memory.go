package trustregistry

import (
	"context"
	"sync"
	"time"

	"rxchange/internal/sentinel"
)

// Store caches accreditation statuses with TTL eviction.
//
// Implementations return sentinel.ErrNotFound for both missing and expired
// entries; callers must not be able to tell the difference.
type Store interface {
	Find(ctx context.Context, issuerDID string) (*Status, error)
	Save(ctx context.Context, status *Status) error
}

type cachedStatus struct {
	status   Status
	storedAt time.Time
}

// MemoryStore is an in-memory status cache with TTL expiration.
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[string]cachedStatus
	cacheTTL time.Duration
}

// NewMemoryStore creates an in-memory cache with the specified TTL.
func NewMemoryStore(cacheTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		statuses: make(map[string]cachedStatus),
		cacheTTL: cacheTTL,
	}
}

// Find retrieves a cached status. Expired entries are reported as missing.
func (s *MemoryStore) Find(_ context.Context, issuerDID string) (*Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cached, ok := s.statuses[issuerDID]; ok {
		if time.Since(cached.storedAt) < s.cacheTTL {
			status := cached.status
			return &status, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Save stores a status, keyed by issuer DID.
func (s *MemoryStore) Save(_ context.Context, status *Status) error {
	if status == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.IssuerDID] = cachedStatus{status: *status, storedAt: time.Now()}
	return nil
}
