package memory

import (
	"context"
	"sync"

	"solana-presale/internal/domain"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data []*domain.LedgerEvent
	keys map[string]bool
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		data: make([]*domain.LedgerEvent, 0),
		keys: make(map[string]bool),
	}
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicates (both existing and intra-batch)
	batchKeys := make(map[string]bool)
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if s.keys[e.EventID] || batchKeys[e.EventID] {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.EventID] = true
	}

	for _, e := range events {
		copy := *e
		s.data = append(s.data, &copy)
		s.keys[e.EventID] = true
	}

	return nil
}

// GetBySale retrieves all events of a sale, ordered by sequence ASC.
func (s *EventStore) GetBySale(_ context.Context, saleAddress solana.PublicKey) ([]*domain.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerEvent
	for _, e := range s.data {
		if e.SaleAddress == saleAddress {
			copy := *e
			result = append(result, &copy)
		}
	}

	sortEvents(result)
	return result, nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive), ordered by sequence ASC.
func (s *EventStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.LedgerEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerEvent
	for _, e := range s.data {
		if e.Timestamp >= start && e.Timestamp <= end {
			copy := *e
			result = append(result, &copy)
		}
	}

	sortEvents(result)
	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.EventStore = (*EventStore)(nil)
