package domain

import "solana-presale/internal/solana"

// EventKind identifies which operation produced a LedgerEvent.
type EventKind string

const (
	EventInitialize EventKind = "INITIALIZE"
	EventPurchase   EventKind = "PURCHASE"
	EventWithdraw   EventKind = "WITHDRAW"
	EventClaim      EventKind = "CLAIM"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventInitialize, EventPurchase, EventWithdraw, EventClaim:
		return true
	}
	return false
}

// LedgerEvent is an append-only record of a committed presale operation.
// Corresponds to ledger_events (PostgreSQL) and presale_events (ClickHouse).
type LedgerEvent struct {
	EventID     string           // deterministic hash, see idhash.ComputeEventID
	Sequence    int64            // ledger-wide commit order
	Kind        EventKind        // INITIALIZE | PURCHASE | WITHDRAW | CLAIM
	SaleID      string           // presale identifier
	SaleAddress solana.PublicKey // sale PDA
	Actor       solana.PublicKey // authority or purchaser
	Lamports    uint64           // lamports moved (purchase amount, withdrawal, rent)
	Tokens      uint64           // tokens moved (claims only)
	TotalRaised uint64           // sale total after the operation
	Timestamp   int64            // operation clock time, unix seconds
}
