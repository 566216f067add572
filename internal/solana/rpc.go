package solana

import "context"

// RPCClient defines the subset of the Solana JSON-RPC API the presale service reads.
type RPCClient interface {
	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)

	// GetBlockTime retrieves the estimated production time of a block (unix seconds).
	GetBlockTime(ctx context.Context, slot int64) (*int64, error)

	// GetMinimumBalanceForRentExemption returns the rent-exempt minimum for dataLen bytes.
	GetMinimumBalanceForRentExemption(ctx context.Context, dataLen uint64) (uint64, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
}

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)
