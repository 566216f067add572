package clickhouse

import (
	"context"
	"fmt"

	"solana-presale/internal/domain"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
// MergeTree does not enforce uniqueness; duplicates are rejected by explicit
// event_id checks before insert.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[string]struct{})
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, e := range events {
		exists, err := s.exists(ctx, e.EventID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO presale_events (
			sequence, event_id, kind, sale_id, sale_address, actor,
			lamports, tokens, total_raised, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.Sequence, e.EventID, string(e.Kind), e.SaleID, e.SaleAddress.String(), e.Actor.String(),
			e.Lamports, e.Tokens, e.TotalRaised, e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySale retrieves all events of a sale, ordered by sequence ASC.
func (s *EventStore) GetBySale(ctx context.Context, saleAddress solana.PublicKey) ([]*domain.LedgerEvent, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT
			sequence, event_id, kind, sale_id, sale_address, actor,
			lamports, tokens, total_raised, timestamp
		FROM presale_events
		WHERE sale_address = ?
		ORDER BY sequence ASC
	`, saleAddress.String())
	if err != nil {
		return nil, fmt.Errorf("query by sale: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events within [start, end] (inclusive), ordered by sequence ASC.
func (s *EventStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.LedgerEvent, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT
			sequence, event_id, kind, sale_id, sale_address, actor,
			lamports, tokens, total_raised, timestamp
		FROM presale_events
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY sequence ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// exists checks if an event_id is already stored.
func (s *EventStore) exists(ctx context.Context, eventID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM presale_events WHERE event_id = ?
	`, eventID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanEvents scans multiple rows into a slice.
func scanEvents(rows chRows) ([]*domain.LedgerEvent, error) {
	var events []*domain.LedgerEvent

	for rows.Next() {
		var (
			e                 domain.LedgerEvent
			kind, sale, actor string
		)
		err := rows.Scan(
			&e.Sequence, &e.EventID, &kind, &e.SaleID, &sale, &actor,
			&e.Lamports, &e.Tokens, &e.TotalRaised, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Kind = domain.EventKind(kind)
		if e.SaleAddress, err = solana.ParsePublicKey(sale); err != nil {
			return nil, fmt.Errorf("decode sale address: %w", err)
		}
		if e.Actor, err = solana.ParsePublicKey(actor); err != nil {
			return nil, fmt.Errorf("decode actor: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}

	return events, nil
}
