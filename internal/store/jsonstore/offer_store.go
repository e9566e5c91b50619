package jsonstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lavirtualzone/transfers/internal/domain"
)

var _ domain.OfferStore = (*OfferStore)(nil)

// OfferStore keeps every offer in one JSON array. Each mutation re-reads the
// document, applies the change and writes the whole array back, so writers in
// other processes are overwritten by whoever writes last.
type OfferStore struct {
	mu  sync.Mutex
	doc Document
}

// NewOfferStore returns an OfferStore persisted in doc.
func NewOfferStore(doc Document) *OfferStore {
	return &OfferStore{doc: doc}
}

func (s *OfferStore) Get(ctx context.Context, id string) (domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	offers, err := s.load(ctx)
	if err != nil {
		return domain.Offer{}, err
	}
	for _, o := range offers {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.Offer{}, domain.ErrNotFound
}

func (s *OfferStore) List(ctx context.Context) ([]domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *OfferStore) Put(ctx context.Context, o domain.Offer) error {
	return s.PutBatch(ctx, []domain.Offer{o})
}

// PutBatch upserts offers in a single read-modify-write cycle.
func (s *OfferStore) PutBatch(ctx context.Context, batch []domain.Offer) error {
	if len(batch) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	offers, err := s.load(ctx)
	if err != nil {
		return err
	}
	pos := make(map[string]int, len(offers))
	for i, o := range offers {
		pos[o.ID] = i
	}
	for _, o := range batch {
		if i, ok := pos[o.ID]; ok {
			offers[i] = o
			continue
		}
		pos[o.ID] = len(offers)
		offers = append(offers, o)
	}
	return s.save(ctx, offers)
}

func (s *OfferStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	offers, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i, o := range offers {
		if o.ID == id {
			return s.save(ctx, append(offers[:i], offers[i+1:]...))
		}
	}
	return domain.ErrNotFound
}

func (s *OfferStore) load(ctx context.Context) ([]domain.Offer, error) {
	data, err := s.doc.Read(ctx)
	if err != nil {
		return nil, persistErr("read", s.doc.Location(), err)
	}
	if len(data) == 0 {
		return []domain.Offer{}, nil
	}
	var offers []domain.Offer
	if err := json.Unmarshal(data, &offers); err != nil {
		return nil, persistErr("decode", s.doc.Location(), err)
	}
	return offers, nil
}

func (s *OfferStore) save(ctx context.Context, offers []domain.Offer) error {
	data, err := json.MarshalIndent(offers, "", "  ")
	if err != nil {
		return persistErr("encode", s.doc.Location(), err)
	}
	if err := s.doc.Write(ctx, data); err != nil {
		return persistErr("write", s.doc.Location(), err)
	}
	return nil
}
