package exchange

import (
	"context"
	"sync"

	"rxchange/internal/sentinel"
	"rxchange/pkg/domain"
)

// OfferStore persists issuer-side offers.
type OfferStore interface {
	// Save upserts an offer by ID.
	Save(ctx context.Context, offer *Offer) error
	// Find returns sentinel.ErrNotFound for unknown offers.
	Find(ctx context.Context, id domain.OfferID) (*Offer, error)
	// List returns all offers in creation order.
	List(ctx context.Context) ([]*Offer, error)
}

// MemoryOfferStore is the in-memory OfferStore for tests and the demo CLI.
type MemoryOfferStore struct {
	mu     sync.RWMutex
	offers map[domain.OfferID]*Offer
	order  []domain.OfferID
}

func NewMemoryOfferStore() *MemoryOfferStore {
	return &MemoryOfferStore{offers: make(map[domain.OfferID]*Offer)}
}

func (s *MemoryOfferStore) Save(_ context.Context, offer *Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.offers[offer.ID]; !ok {
		s.order = append(s.order, offer.ID)
	}
	copied := *offer
	s.offers[offer.ID] = &copied
	return nil
}

func (s *MemoryOfferStore) Find(_ context.Context, id domain.OfferID) (*Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offer, ok := s.offers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *offer
	return &copied, nil
}

func (s *MemoryOfferStore) List(_ context.Context) ([]*Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Offer, 0, len(s.order))
	for _, id := range s.order {
		copied := *s.offers[id]
		out = append(out, &copied)
	}
	return out, nil
}
