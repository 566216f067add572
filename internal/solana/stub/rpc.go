package stub

import (
	"context"
	"errors"
	"sync"

	"solana-presale/internal/solana"
)

// ErrNotFound is returned when an account balance is not set in the stub.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu         sync.Mutex
	Slot       int64
	BlockTimes map[int64]int64
	Balances   map[string]uint64
	// RentPerByte overrides the default rent formula when non-zero.
	RentPerByte uint64
	Calls       []string
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		BlockTimes: make(map[int64]int64),
		Balances:   make(map[string]uint64),
	}
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.record("getSlot")
	return c.Slot, nil
}

// GetBlockTime returns the configured block time, or nil if none is set.
func (c *RPCClient) GetBlockTime(_ context.Context, slot int64) (*int64, error) {
	c.record("getBlockTime")
	bt, ok := c.BlockTimes[slot]
	if !ok {
		return nil, nil
	}
	return &bt, nil
}

// GetMinimumBalanceForRentExemption applies the default rent formula.
func (c *RPCClient) GetMinimumBalanceForRentExemption(_ context.Context, dataLen uint64) (uint64, error) {
	c.record("getMinimumBalanceForRentExemption")
	if c.RentPerByte > 0 {
		return (solana.AccountStorageOverhead + dataLen) * c.RentPerByte, nil
	}
	return solana.MinimumBalanceForRentExemption(dataLen), nil
}

// GetBalance returns a configured balance.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.record("getBalance")
	bal, ok := c.Balances[pubkey]
	if !ok {
		return 0, ErrNotFound
	}
	return bal, nil
}

func (c *RPCClient) record(method string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, method)
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)
