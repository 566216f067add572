package storage

import (
	"context"

	"solana-presale/internal/domain"
	"solana-presale/internal/solana"
)

// Ledger is the transactional account store behind the presale program.
// Every operation runs inside exactly one Update: either all writes made
// through the Tx commit, or none do.
type Ledger interface {
	// Update runs fn in a read-write transaction. If fn returns an error,
	// every write made through tx is discarded and the error is returned.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View runs fn in a read-only transaction. Writes through tx fail.
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of account reads and writes available inside a ledger transaction.
type Tx interface {
	// GetSale retrieves a sale by its derived address. Returns ErrNotFound if not exists.
	GetSale(ctx context.Context, address solana.PublicKey) (*domain.Sale, error)

	// InsertSale creates a sale. Returns ErrDuplicateKey if the address exists.
	InsertSale(ctx context.Context, s *domain.Sale) error

	// UpdateSale overwrites a sale. Returns ErrNotFound if not exists.
	UpdateSale(ctx context.Context, s *domain.Sale) error

	// GetVault retrieves a vault with its current lamport balance. Returns ErrNotFound if not exists.
	GetVault(ctx context.Context, address solana.PublicKey) (*domain.Vault, error)

	// InsertVault creates a vault record. Its balance is moved separately with SetLamports.
	// Returns ErrDuplicateKey if the address exists.
	InsertVault(ctx context.Context, v *domain.Vault) error

	// GetPurchaseRecord retrieves a purchase record. Returns ErrNotFound if not exists.
	GetPurchaseRecord(ctx context.Context, address solana.PublicKey) (*domain.PurchaseRecord, error)

	// InsertPurchaseRecord creates a purchase record. Returns ErrDuplicateKey if exists.
	InsertPurchaseRecord(ctx context.Context, r *domain.PurchaseRecord) error

	// UpdatePurchaseRecord overwrites a purchase record. Returns ErrNotFound if not exists.
	UpdatePurchaseRecord(ctx context.Context, r *domain.PurchaseRecord) error

	// GetTokenAccount retrieves a token account. Returns ErrNotFound if not exists.
	GetTokenAccount(ctx context.Context, address solana.PublicKey) (*domain.TokenAccount, error)

	// InsertTokenAccount creates a token account. Returns ErrDuplicateKey if exists.
	InsertTokenAccount(ctx context.Context, a *domain.TokenAccount) error

	// UpdateTokenAccount overwrites a token account. Returns ErrNotFound if not exists.
	UpdateTokenAccount(ctx context.Context, a *domain.TokenAccount) error

	// GetLamports returns the lamport balance of an address, 0 if never funded.
	GetLamports(ctx context.Context, address solana.PublicKey) (uint64, error)

	// SetLamports overwrites the lamport balance of an address.
	SetLamports(ctx context.Context, address solana.PublicKey, lamports uint64) error

	// NextSequence returns the sequence number the next appended event must carry.
	NextSequence(ctx context.Context) (int64, error)

	// AppendEvent appends a ledger event. Returns ErrDuplicateKey if the
	// event_id or sequence exists.
	AppendEvent(ctx context.Context, e *domain.LedgerEvent) error

	// ListEventsBySale retrieves events of one sale, ordered by sequence ASC.
	ListEventsBySale(ctx context.Context, saleAddress solana.PublicKey) ([]*domain.LedgerEvent, error)

	// ListEventsAfter retrieves up to limit events with sequence > after, ordered by sequence ASC.
	ListEventsAfter(ctx context.Context, after int64, limit int) ([]*domain.LedgerEvent, error)
}

// EventStore provides access to the analytics copy of committed ledger events.
type EventStore interface {
	// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate event_id.
	InsertBulk(ctx context.Context, events []*domain.LedgerEvent) error

	// GetBySale retrieves all events of a sale, ordered by sequence ASC.
	GetBySale(ctx context.Context, saleAddress solana.PublicKey) ([]*domain.LedgerEvent, error)

	// GetByTimeRange retrieves events with timestamp within [start, end] (inclusive), ordered by sequence ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.LedgerEvent, error)
}
