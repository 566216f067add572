package domain

import "solana-presale/internal/solana"

// Vault is the lamport escrow at PDA ["vault", sale_id].
type Vault struct {
	Address     solana.PublicKey
	Bump        uint8
	Lamports    uint64 // total balance including the reserve
	RentReserve uint64 // rent-exempt minimum that must stay in the account
}

// Withdrawable returns the balance above the rent reserve.
func (v *Vault) Withdrawable() uint64 {
	if v.Lamports <= v.RentReserve {
		return 0
	}
	return v.Lamports - v.RentReserve
}

// TokenAccount is an SPL-style token balance owned by Owner for Mint.
type TokenAccount struct {
	Address solana.PublicKey
	Mint    solana.PublicKey
	Owner   solana.PublicKey
	Amount  uint64
}
