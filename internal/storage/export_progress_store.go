package storage

import "context"

// ExportProgressStore persists how far each event sink has consumed the ledger.
// This enables resumption after restarts without re-exporting or skipping events.
type ExportProgressStore interface {
	// GetLastExported returns the last exported event sequence for sink.
	// Returns ErrNotFound if the sink has never exported anything.
	GetLastExported(ctx context.Context, sink string) (int64, error)

	// SetLastExported saves the last exported event sequence for sink.
	SetLastExported(ctx context.Context, sink string, sequence int64) error
}
