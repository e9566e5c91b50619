// Package memory provides in-process implementations of the domain stores
// and signal bus. They back tests and single-node demos.
package memory

import (
	"context"
	"sync"

	"github.com/lavirtualzone/transfers/internal/domain"
)

var _ domain.OfferStore = (*OfferStore)(nil)

// OfferStore keeps offers in insertion order behind a mutex.
type OfferStore struct {
	mu     sync.RWMutex
	offers []domain.Offer
	index  map[string]int
}

// NewOfferStore returns an empty OfferStore.
func NewOfferStore() *OfferStore {
	return &OfferStore{index: make(map[string]int)}
}

// Get returns the offer with the given ID or domain.ErrNotFound.
func (s *OfferStore) Get(_ context.Context, id string) (domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return domain.Offer{}, domain.ErrNotFound
	}
	return s.offers[i], nil
}

// List returns a copy of all offers in insertion order.
func (s *OfferStore) List(_ context.Context) ([]domain.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Offer, len(s.offers))
	copy(out, s.offers)
	return out, nil
}

// Put inserts or replaces an offer by ID.
func (s *OfferStore) Put(_ context.Context, o domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(o)
	return nil
}

// PutBatch applies Put for every offer under one lock.
func (s *OfferStore) PutBatch(_ context.Context, offers []domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range offers {
		s.put(o)
	}
	return nil
}

func (s *OfferStore) put(o domain.Offer) {
	if i, ok := s.index[o.ID]; ok {
		s.offers[i] = o
		return
	}
	s.index[o.ID] = len(s.offers)
	s.offers = append(s.offers, o)
}

// Delete removes an offer. Deleting an unknown ID returns domain.ErrNotFound.
func (s *OfferStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return domain.ErrNotFound
	}
	s.offers = append(s.offers[:i], s.offers[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.offers); j++ {
		s.index[s.offers[j].ID] = j
	}
	return nil
}
