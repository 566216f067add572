package memory

import (
	"context"
	"sync"

	"solana-presale/internal/storage"
)

// ExportProgressStore is an in-memory implementation of storage.ExportProgressStore.
type ExportProgressStore struct {
	mu       sync.RWMutex
	progress map[string]int64
}

// NewExportProgressStore creates a new in-memory export progress store.
func NewExportProgressStore() *ExportProgressStore {
	return &ExportProgressStore{
		progress: make(map[string]int64),
	}
}

// GetLastExported returns the last exported sequence for sink.
func (s *ExportProgressStore) GetLastExported(_ context.Context, sink string) (int64, error) {
	if sink == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seq, ok := s.progress[sink]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return seq, nil
}

// SetLastExported saves the last exported sequence for sink.
func (s *ExportProgressStore) SetLastExported(_ context.Context, sink string, sequence int64) error {
	if sink == "" || sequence < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress[sink] = sequence
	return nil
}

// Verify interface compliance at compile time.
var _ storage.ExportProgressStore = (*ExportProgressStore)(nil)
