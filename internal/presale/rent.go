package presale

import (
	"context"

	"solana-presale/internal/solana"
)

// RentSource reports the rent-exempt minimum balance for an account size.
type RentSource interface {
	MinimumBalance(ctx context.Context, dataLen uint64) (uint64, error)
}

// StaticRent applies the default cluster rent parameters locally.
type StaticRent struct{}

// MinimumBalance returns the rent-exempt minimum for dataLen bytes.
func (StaticRent) MinimumBalance(_ context.Context, dataLen uint64) (uint64, error) {
	return solana.MinimumBalanceForRentExemption(dataLen), nil
}

// Compile-time interface checks.
var (
	_ RentSource = StaticRent{}
	_ RentSource = (*solana.RPCRent)(nil)
	_ Clock      = SystemClock{}
	_ Clock      = (*FixedClock)(nil)
	_ Clock      = (*solana.ClusterClock)(nil)
)
