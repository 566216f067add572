package domain

import (
	"math/bits"

	"solana-presale/internal/solana"
)

// Sale is the presale state record stored at PDA ["sale", sale_id].
// Corresponds to sales table in PostgreSQL.
type Sale struct {
	SaleID  string           // presale identifier, empty for the legacy singleton sale
	Address solana.PublicKey // derived sale address (PRIMARY KEY)
	Bump    uint8            // bump seed of Address

	Authority        solana.PublicKey // may withdraw, immutable
	Treasury         solana.PublicKey // withdrawal destination, immutable
	Vault            solana.PublicKey // derived escrow address
	TokenMint        solana.PublicKey // token being sold
	SaleTokenAccount solana.PublicKey // ATA(sale, mint) holding tokens to distribute

	PriceLamports   uint64 // lamports per whole token
	SoftCapLamports uint64
	HardCapLamports uint64
	TotalRaised     uint64 // never exceeds HardCapLamports

	StartTime int64 // unix seconds, inclusive
	EndTime   int64 // unix seconds, exclusive for purchases
	IsActive  bool
}

// Phase computes the sale phase at now.
func (s *Sale) Phase(now int64) Phase {
	return PhaseAt(s.StartTime, s.EndTime, now)
}

// SoftCapReached reports whether TotalRaised has met the soft cap.
func (s *Sale) SoftCapReached() bool {
	return s.TotalRaised >= s.SoftCapLamports
}

// RemainingCapacity returns how many lamports may still be raised.
func (s *Sale) RemainingCapacity() uint64 {
	if s.TotalRaised >= s.HardCapLamports {
		return 0
	}
	return s.HardCapLamports - s.TotalRaised
}

// ProgressBps returns TotalRaised as basis points of the hard cap (0..10000).
func (s *Sale) ProgressBps() uint64 {
	if s.HardCapLamports == 0 {
		return 0
	}
	// Div64 requires the high word to be below the divisor, which holds
	// whenever TotalRaised < HardCapLamports.
	if s.TotalRaised >= s.HardCapLamports {
		return 10000
	}
	hi, lo := bits.Mul64(s.TotalRaised, 10000)
	quo, _ := bits.Div64(hi, lo, s.HardCapLamports)
	return quo
}
