package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"solana-presale/internal/storage"
)

// ExportProgressStore is a PostgreSQL implementation of storage.ExportProgressStore.
// One row per sink in export_progress.
type ExportProgressStore struct {
	pool *Pool
}

// NewExportProgressStore creates a new PostgreSQL export progress store.
func NewExportProgressStore(pool *Pool) *ExportProgressStore {
	return &ExportProgressStore{pool: pool}
}

// GetLastExported returns the last exported sequence for sink.
func (s *ExportProgressStore) GetLastExported(ctx context.Context, sink string) (int64, error) {
	if sink == "" {
		return 0, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT sequence
		FROM export_progress
		WHERE sink = $1
	`, sink)

	var sequence int64
	err := row.Scan(&sequence)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, err
	}

	return sequence, nil
}

// SetLastExported saves the last exported sequence for sink.
// Uses upsert to handle initial insert and subsequent updates.
func (s *ExportProgressStore) SetLastExported(ctx context.Context, sink string, sequence int64) error {
	if sink == "" || sequence < 0 {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO export_progress (sink, sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (sink) DO UPDATE
		SET sequence = EXCLUDED.sequence,
		    updated_at = NOW()
	`, sink, sequence)

	return err
}

// Verify interface compliance at compile time.
var _ storage.ExportProgressStore = (*ExportProgressStore)(nil)
