// Package bolt stores an embedded, single-file archive of committed ledger
// events. It serves as an export sink that needs no database server.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"solana-presale/internal/domain"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
)

var (
	bucketEvents   = []byte("events_by_sequence")
	bucketEventIDs = []byte("sequence_by_event_id")
	bucketProgress = []byte("export_progress")
)

// Archive is a bbolt-backed storage.EventStore and storage.ExportProgressStore.
// Events are keyed by big-endian sequence, so cursor order is commit order.
type Archive struct {
	db *bbolt.DB
}

// Open opens or creates the archive file at path.
func Open(path string) (*Archive, error) {
	if path == "" {
		return nil, fmt.Errorf("archive path required")
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open bbolt: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketEvents, bucketEventIDs, bucketProgress} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", string(b), err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Archive{db: db}, nil
}

// Close closes the archive file.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// InsertBulk adds multiple events in one bbolt transaction. Fails the entire
// batch on any duplicate event_id or sequence.
func (a *Archive) InsertBulk(_ context.Context, events []*domain.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	return a.db.Update(func(tx *bbolt.Tx) error {
		byseq := tx.Bucket(bucketEvents)
		ids := tx.Bucket(bucketEventIDs)

		for _, e := range events {
			if e == nil || e.EventID == "" || e.Sequence <= 0 {
				return storage.ErrInvalidInput
			}
			key := seqKey(e.Sequence)
			if ids.Get([]byte(e.EventID)) != nil || byseq.Get(key) != nil {
				return storage.ErrDuplicateKey
			}

			value, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode event %s: %w", e.EventID, err)
			}
			if err := byseq.Put(key, value); err != nil {
				return err
			}
			if err := ids.Put([]byte(e.EventID), key); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetBySale retrieves all events of a sale, ordered by sequence ASC.
func (a *Archive) GetBySale(_ context.Context, saleAddress solana.PublicKey) ([]*domain.LedgerEvent, error) {
	return a.scan(func(e *domain.LedgerEvent) bool {
		return e.SaleAddress == saleAddress
	})
}

// GetByTimeRange retrieves events within [start, end] (inclusive), ordered by sequence ASC.
func (a *Archive) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.LedgerEvent, error) {
	return a.scan(func(e *domain.LedgerEvent) bool {
		return e.Timestamp >= start && e.Timestamp <= end
	})
}

func (a *Archive) scan(keep func(*domain.LedgerEvent) bool) ([]*domain.LedgerEvent, error) {
	var result []*domain.LedgerEvent
	err := a.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvents).ForEach(func(k, v []byte) error {
			var e domain.LedgerEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode event at sequence %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if keep(&e) {
				result = append(result, &e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetLastExported returns the last exported sequence for sink.
func (a *Archive) GetLastExported(_ context.Context, sink string) (int64, error) {
	if sink == "" {
		return 0, storage.ErrInvalidInput
	}

	var seq int64
	err := a.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketProgress).Get([]byte(sink))
		if v == nil {
			return storage.ErrNotFound
		}
		seq = int64(binary.BigEndian.Uint64(v))
		return nil
	})
	return seq, err
}

// SetLastExported saves the last exported sequence for sink.
func (a *Archive) SetLastExported(_ context.Context, sink string, sequence int64) error {
	if sink == "" || sequence < 0 {
		return storage.ErrInvalidInput
	}

	return a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProgress).Put([]byte(sink), seqKey(sequence))
	})
}

func seqKey(seq int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(seq))
	return k[:]
}

// Verify interface compliance at compile time.
var (
	_ storage.EventStore          = (*Archive)(nil)
	_ storage.ExportProgressStore = (*Archive)(nil)
)
