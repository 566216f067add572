package domain

import "solana-presale/internal/solana"

// PurchaseRecord tracks one purchaser's contributions to one sale.
// Stored at PDA ["purchase", sale_id, purchaser].
type PurchaseRecord struct {
	Address     solana.PublicKey // derived record address (PRIMARY KEY)
	Bump        uint8
	SaleAddress solana.PublicKey
	Purchaser   solana.PublicKey
	AmountSpent uint64 // sum of lamports contributed
	Claimed     bool   // flipped once by ClaimTokens
}

// TokensOwed returns AmountSpent / price, rounded down.
// Lamports that do not buy a whole token are kept by the sale.
func (r *PurchaseRecord) TokensOwed(priceLamports uint64) uint64 {
	if priceLamports == 0 {
		return 0
	}
	return r.AmountSpent / priceLamports
}
