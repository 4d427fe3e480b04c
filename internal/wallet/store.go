package wallet

import (
	"context"
	"sort"
	gosync "sync"

	"rxchange/internal/sentinel"
	"rxchange/pkg/platform/sync"
)

// Store persists wallet entries.
//
// Insert is atomic check-and-insert: when an entry for the credential already
// exists the stored entry is returned with created=false and nothing is
// written. Find returns sentinel.ErrNotFound for unknown credentials.
type Store interface {
	Insert(ctx context.Context, entry *WalletEntry) (stored *WalletEntry, created bool, err error)
	Find(ctx context.Context, credentialID string) (*WalletEntry, error)
	List(ctx context.Context) ([]*WalletEntry, error)
	AppendDispense(ctx context.Context, credentialID string, record DispenseRecord) error
}

// MemoryStore is an in-memory ledger. Per-credential operations serialize on
// a sharded mutex so concurrent accepts of different credentials do not
// contend.
type MemoryStore struct {
	mu       gosync.RWMutex
	entries  map[string]*WalletEntry
	keyLocks *sync.ShardedMutex
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]*WalletEntry),
		keyLocks: sync.NewShardedMutex(),
	}
}

func (s *MemoryStore) Insert(_ context.Context, entry *WalletEntry) (*WalletEntry, bool, error) {
	s.keyLocks.Lock(entry.CredentialID)
	defer s.keyLocks.Unlock(entry.CredentialID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[entry.CredentialID]; ok {
		return copyEntry(existing), false, nil
	}
	s.entries[entry.CredentialID] = copyEntry(entry)
	return copyEntry(entry), true, nil
}

func (s *MemoryStore) Find(_ context.Context, credentialID string) (*WalletEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[credentialID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyEntry(entry), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*WalletEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*WalletEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, copyEntry(entry))
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AcceptedAt.Before(entries[j].AcceptedAt)
	})
	return entries, nil
}

func (s *MemoryStore) AppendDispense(_ context.Context, credentialID string, record DispenseRecord) error {
	s.keyLocks.Lock(credentialID)
	defer s.keyLocks.Unlock(credentialID)

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[credentialID]
	if !ok {
		return sentinel.ErrNotFound
	}
	entry.Dispenses = append(entry.Dispenses, record)
	return nil
}

// copyEntry shields stored state from caller mutation. The credential and
// report pointers are shared; both are immutable once stored.
func copyEntry(entry *WalletEntry) *WalletEntry {
	dup := *entry
	dup.Dispenses = append([]DispenseRecord(nil), entry.Dispenses...)
	return &dup
}
