package memory

import (
	"context"
	"errors"
	"testing"

	"solana-presale/internal/domain"
	"solana-presale/internal/storage"
)

func TestEventStore_InsertBulkAndQuery(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()
	saleA, saleB := testKey(1), testKey(2)

	events := []*domain.LedgerEvent{
		testEvent(3, domain.EventPurchase, saleA, 3000),
		testEvent(1, domain.EventInitialize, saleA, 1000),
		testEvent(2, domain.EventInitialize, saleB, 2000),
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	bySale, err := store.GetBySale(ctx, saleA)
	if err != nil {
		t.Fatalf("GetBySale failed: %v", err)
	}
	if len(bySale) != 2 {
		t.Fatalf("expected 2 events, got %d", len(bySale))
	}
	if bySale[0].Sequence != 1 || bySale[1].Sequence != 3 {
		t.Errorf("events not ordered by sequence: %d, %d", bySale[0].Sequence, bySale[1].Sequence)
	}

	byTime, err := store.GetByTimeRange(ctx, 1000, 2000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(byTime) != 2 {
		t.Errorf("expected 2 events in [1000, 2000], got %d", len(byTime))
	}
}

func TestEventStore_DuplicateKey(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()
	e := testEvent(1, domain.EventInitialize, testKey(1), 1000)

	if err := store.InsertBulk(ctx, []*domain.LedgerEvent{e}); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*domain.LedgerEvent{testEvent(2, domain.EventPurchase, testKey(1), 1), e})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}

	// The whole batch was rejected.
	got, _ := store.GetBySale(ctx, testKey(1))
	if len(got) != 1 {
		t.Errorf("expected 1 stored event after rejected batch, got %d", len(got))
	}
}

func TestExportProgressStore(t *testing.T) {
	store := NewExportProgressStore()
	ctx := context.Background()

	if _, err := store.GetLastExported(ctx, "clickhouse"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.SetLastExported(ctx, "clickhouse", 42); err != nil {
		t.Fatalf("SetLastExported failed: %v", err)
	}

	got, err := store.GetLastExported(ctx, "clickhouse")
	if err != nil {
		t.Fatalf("GetLastExported failed: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}

	if err := store.SetLastExported(ctx, "", 1); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty sink, got %v", err)
	}
}
