// Package reporting renders per-sale reports from ledger state and the event log.
package reporting

import (
	"time"

	"solana-presale/internal/domain"
	"solana-presale/internal/presale"
	"solana-presale/internal/solana"
	"solana-presale/internal/verification"
)

// Report represents one sale's report.
type Report struct {
	// Metadata
	GeneratedAt time.Time

	// Sale state at generation time
	Summary *presale.SaleSummary

	// Purchaser table (sorted by amount spent DESC, purchaser ASC)
	Purchasers []PurchaserRow

	// Totals folded from the event log
	Activity ActivitySection

	// Ledger audit, nil when the generator has no verifier
	Audit *verification.VerificationResult
}

// PurchaserRow represents one purchaser's position in the sale.
type PurchaserRow struct {
	Purchaser   solana.PublicKey
	Purchases   int
	AmountSpent uint64
	TokensOwed  uint64 // AmountSpent / price, rounded down
	Claimed     bool
	ShareBps    uint64 // AmountSpent in basis points of TotalRaised
}

// ActivitySection contains totals per operation kind.
type ActivitySection struct {
	Purchases         int
	LamportsPurchased uint64
	Withdrawals       int
	LamportsWithdrawn uint64
	Claims            int
	TokensClaimed     uint64
	FirstPurchaseAt   int64 // unix seconds, 0 if none
	LastPurchaseAt    int64 // unix seconds, 0 if none
}

// ClaimedCount returns the number of purchasers who have claimed.
func (r *Report) ClaimedCount() int {
	n := 0
	for _, p := range r.Purchasers {
		if p.Claimed {
			n++
		}
	}
	return n
}

// Phase returns the sale phase at generation time.
func (r *Report) Phase() domain.Phase {
	return r.Summary.Phase
}
