package presale

import (
	"context"
	"errors"
	"fmt"

	"solana-presale/internal/domain"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
)

// SaleSummary is a read-only view of a sale at one instant.
type SaleSummary struct {
	Sale             *domain.Sale
	Now              int64
	Phase            domain.Phase
	ProgressBps      uint64
	SoftCapReached   bool
	VaultLamports    uint64
	Withdrawable     uint64
	SaleTokenBalance uint64
}

// GetSale returns the sale for saleID.
func (p *Program) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	addrs, err := DeriveAddresses(p.programID, saleID)
	if err != nil {
		return nil, err
	}

	var sale *domain.Sale
	err = p.ledger.View(ctx, func(tx storage.Tx) error {
		var err error
		sale, err = p.loadSale(ctx, tx, addrs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sale, nil
}

// GetPurchaseRecord returns the purchase record of purchaser in saleID.
func (p *Program) GetPurchaseRecord(ctx context.Context, saleID string, purchaser solana.PublicKey) (*domain.PurchaseRecord, error) {
	addr, _, err := PurchaseRecordAddress(p.programID, saleID, purchaser)
	if err != nil {
		return nil, err
	}

	var record *domain.PurchaseRecord
	err = p.ledger.View(ctx, func(tx storage.Tx) error {
		var err error
		record, err = tx.GetPurchaseRecord(ctx, addr)
		if errors.Is(err, storage.ErrNotFound) {
			return newError(KindNoPurchaseRecord, "%s has no purchase in sale %q", purchaser, saleID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Summary reports the sale with its phase, progress and balances at the clock's now.
func (p *Program) Summary(ctx context.Context, saleID string) (*SaleSummary, error) {
	addrs, err := DeriveAddresses(p.programID, saleID)
	if err != nil {
		return nil, err
	}
	now, err := p.clock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("read clock: %w", err)
	}

	summary := &SaleSummary{Now: now}
	err = p.ledger.View(ctx, func(tx storage.Tx) error {
		sale, err := p.loadSale(ctx, tx, addrs)
		if err != nil {
			return err
		}
		vault, err := tx.GetVault(ctx, sale.Vault)
		if err != nil {
			return fmt.Errorf("get vault: %w", err)
		}

		var tokens uint64
		account, err := tx.GetTokenAccount(ctx, sale.SaleTokenAccount)
		switch {
		case err == nil:
			tokens = account.Amount
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("get sale token account: %w", err)
		}

		summary.Sale = sale
		summary.Phase = sale.Phase(now)
		summary.ProgressBps = sale.ProgressBps()
		summary.SoftCapReached = sale.SoftCapReached()
		summary.VaultLamports = vault.Lamports
		summary.Withdrawable = vault.Withdrawable()
		summary.SaleTokenBalance = tokens
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// Events returns the committed events of saleID in sequence order.
func (p *Program) Events(ctx context.Context, saleID string) ([]*domain.LedgerEvent, error) {
	addrs, err := DeriveAddresses(p.programID, saleID)
	if err != nil {
		return nil, err
	}

	var events []*domain.LedgerEvent
	err = p.ledger.View(ctx, func(tx storage.Tx) error {
		if _, err := p.loadSale(ctx, tx, addrs); err != nil {
			return err
		}
		var err error
		events, err = tx.ListEventsBySale(ctx, addrs.Sale)
		return err
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Balance returns the lamport balance of address.
func (p *Program) Balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	var lamports uint64
	err := p.ledger.View(ctx, func(tx storage.Tx) error {
		var err error
		lamports, err = tx.GetLamports(ctx, address)
		return err
	})
	return lamports, err
}

// TokenBalance returns the balance of owner's associated token account for
// mint, zero if the account does not exist.
func (p *Program) TokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return 0, fmt.Errorf("derive token account: %w", err)
	}

	var amount uint64
	err = p.ledger.View(ctx, func(tx storage.Tx) error {
		account, err := tx.GetTokenAccount(ctx, ata)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		amount = account.Amount
		return nil
	})
	return amount, err
}
