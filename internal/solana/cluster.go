package solana

import (
	"context"
	"fmt"
)

// maxBlockTimeLookback bounds how many slots ClusterClock walks back when the
// newest slot has no block time yet (skipped or not yet confirmed).
const maxBlockTimeLookback = 32

// ClusterClock reads the current unix time from the cluster instead of the
// local wall clock: block time of the latest slot that has one.
type ClusterClock struct {
	rpc RPCClient
}

// NewClusterClock creates a ClusterClock backed by rpc.
func NewClusterClock(rpc RPCClient) *ClusterClock {
	return &ClusterClock{rpc: rpc}
}

// Now returns the block time of the newest slot with a known timestamp.
func (c *ClusterClock) Now(ctx context.Context) (int64, error) {
	slot, err := c.rpc.GetSlot(ctx)
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}

	for i := int64(0); i < maxBlockTimeLookback && slot-i > 0; i++ {
		bt, err := c.rpc.GetBlockTime(ctx, slot-i)
		if err != nil {
			return 0, fmt.Errorf("get block time for slot %d: %w", slot-i, err)
		}
		if bt != nil {
			return *bt, nil
		}
	}

	return 0, fmt.Errorf("block time not available near slot %d", slot)
}

// RPCRent asks the cluster for rent-exempt minimums.
type RPCRent struct {
	rpc RPCClient
}

// NewRPCRent creates an RPCRent backed by rpc.
func NewRPCRent(rpc RPCClient) *RPCRent {
	return &RPCRent{rpc: rpc}
}

// MinimumBalance returns the rent-exempt minimum for an account of dataLen bytes.
func (r *RPCRent) MinimumBalance(ctx context.Context, dataLen uint64) (uint64, error) {
	lamports, err := r.rpc.GetMinimumBalanceForRentExemption(ctx, dataLen)
	if err != nil {
		return 0, fmt.Errorf("get minimum balance for rent exemption: %w", err)
	}
	return lamports, nil
}
