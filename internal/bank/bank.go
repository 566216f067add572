// Package bank moves lamports and tokens between ledger accounts.
// Every call runs inside the caller's ledger transaction, so a failed
// transfer aborts the whole operation.
package bank

import (
	"context"
	"errors"
	"fmt"
	"math"

	"solana-presale/internal/domain"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
)

// ErrOverflow is returned when a credit would exceed the u64 balance range.
var ErrOverflow = errors.New("balance overflow")

// Bank performs checked transfers against a storage.Tx.
type Bank struct{}

// New creates a Bank.
func New() *Bank {
	return &Bank{}
}

// TransferLamports debits from and credits to by amount.
// Returns storage.ErrInsufficientFunds if from cannot cover amount.
// A zero amount is a valid no-op. A transfer to self changes nothing but
// still requires from to cover amount.
func (b *Bank) TransferLamports(ctx context.Context, tx storage.Tx, from, to solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}

	fromBal, err := tx.GetLamports(ctx, from)
	if err != nil {
		return fmt.Errorf("get lamports %s: %w", from, err)
	}
	if fromBal < amount {
		return fmt.Errorf("transfer %d lamports from %s (balance %d): %w", amount, from, fromBal, storage.ErrInsufficientFunds)
	}
	if from == to {
		return nil
	}

	toBal, err := tx.GetLamports(ctx, to)
	if err != nil {
		return fmt.Errorf("get lamports %s: %w", to, err)
	}
	if toBal > math.MaxUint64-amount {
		return fmt.Errorf("credit %d lamports to %s: %w", amount, to, ErrOverflow)
	}

	if err := tx.SetLamports(ctx, from, fromBal-amount); err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	if err := tx.SetLamports(ctx, to, toBal+amount); err != nil {
		return fmt.Errorf("credit %s: %w", to, err)
	}
	return nil
}

// Airdrop credits lamports to an account out of thin air.
// Only dev and test ledgers expose it.
func (b *Bank) Airdrop(ctx context.Context, tx storage.Tx, to solana.PublicKey, amount uint64) error {
	bal, err := tx.GetLamports(ctx, to)
	if err != nil {
		return fmt.Errorf("get lamports %s: %w", to, err)
	}
	if bal > math.MaxUint64-amount {
		return fmt.Errorf("airdrop %d lamports to %s: %w", amount, to, ErrOverflow)
	}
	return tx.SetLamports(ctx, to, bal+amount)
}

// CreateAssociatedTokenAccount creates the associated token account of
// (owner, mint) if it does not exist yet and returns it.
func (b *Bank) CreateAssociatedTokenAccount(ctx context.Context, tx storage.Tx, owner, mint solana.PublicKey) (*domain.TokenAccount, error) {
	address, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated token address: %w", err)
	}

	account, err := tx.GetTokenAccount(ctx, address)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get token account %s: %w", address, err)
	}

	account = &domain.TokenAccount{Address: address, Mint: mint, Owner: owner}
	if err := tx.InsertTokenAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("create token account %s: %w", address, err)
	}
	return account, nil
}

// TransferTokens moves amount tokens between two accounts of the same mint.
// authority must own the source account.
func (b *Bank) TransferTokens(ctx context.Context, tx storage.Tx, from, to, authority solana.PublicKey, amount uint64) error {
	src, err := tx.GetTokenAccount(ctx, from)
	if err != nil {
		return fmt.Errorf("get source token account %s: %w", from, err)
	}
	dst, err := tx.GetTokenAccount(ctx, to)
	if err != nil {
		return fmt.Errorf("get destination token account %s: %w", to, err)
	}

	if src.Owner != authority {
		return fmt.Errorf("token account %s is not owned by %s: %w", from, authority, storage.ErrInvalidInput)
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("mint mismatch %s != %s: %w", src.Mint, dst.Mint, storage.ErrInvalidInput)
	}
	if amount == 0 {
		return nil
	}
	if src.Amount < amount {
		return fmt.Errorf("transfer %d tokens from %s (balance %d): %w", amount, from, src.Amount, storage.ErrInsufficientFunds)
	}
	if from == to {
		return nil
	}
	if dst.Amount > math.MaxUint64-amount {
		return fmt.Errorf("credit %d tokens to %s: %w", amount, to, ErrOverflow)
	}

	src.Amount -= amount
	dst.Amount += amount
	if err := tx.UpdateTokenAccount(ctx, src); err != nil {
		return fmt.Errorf("debit token account %s: %w", from, err)
	}
	if err := tx.UpdateTokenAccount(ctx, dst); err != nil {
		return fmt.Errorf("credit token account %s: %w", to, err)
	}
	return nil
}

// MintTo credits amount tokens of mint to the associated token account of
// owner, creating it if needed. Only dev and test ledgers expose it.
func (b *Bank) MintTo(ctx context.Context, tx storage.Tx, mint, owner solana.PublicKey, amount uint64) (*domain.TokenAccount, error) {
	account, err := b.CreateAssociatedTokenAccount(ctx, tx, owner, mint)
	if err != nil {
		return nil, err
	}
	if account.Amount > math.MaxUint64-amount {
		return nil, fmt.Errorf("mint %d tokens to %s: %w", amount, account.Address, ErrOverflow)
	}

	account.Amount += amount
	if err := tx.UpdateTokenAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("update token account %s: %w", account.Address, err)
	}
	return account, nil
}
