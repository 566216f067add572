package presale

import (
	"context"
	"fmt"

	"solana-presale/internal/domain"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
)

// The faucet operations create value out of nothing and exist for dev and
// test ledgers. They append no ledger events.

// Airdrop credits lamports to address.
func (p *Program) Airdrop(ctx context.Context, address solana.PublicKey, lamports uint64) error {
	if lamports == 0 {
		return newError(KindInvalidAmount, "airdrop amount must be greater than zero")
	}
	err := p.ledger.Update(ctx, func(tx storage.Tx) error {
		if err := p.bank.Airdrop(ctx, tx, address, lamports); err != nil {
			return transferError(err, "airdrop")
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.logger.Printf("Airdropped %d lamports to %s", lamports, address)
	return nil
}

// MintTo credits amount tokens of mint to owner's associated token account.
func (p *Program) MintTo(ctx context.Context, mint, owner solana.PublicKey, amount uint64) (*domain.TokenAccount, error) {
	if amount == 0 {
		return nil, newError(KindInvalidAmount, "mint amount must be greater than zero")
	}

	var account *domain.TokenAccount
	err := p.ledger.Update(ctx, func(tx storage.Tx) error {
		var err error
		account, err = p.bank.MintTo(ctx, tx, mint, owner, amount)
		if err != nil {
			return transferError(err, "mint")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Printf("Minted %d tokens of %s to %s", amount, mint, owner)
	return account, nil
}

// FundSale moves amount tokens from the authority's associated token account
// into the sale token account. Only the sale authority may fund.
func (p *Program) FundSale(ctx context.Context, saleID string, caller solana.PublicKey, amount uint64) error {
	addrs, err := DeriveAddresses(p.programID, saleID)
	if err != nil {
		return err
	}
	if amount == 0 {
		return newError(KindInvalidAmount, "fund amount must be greater than zero")
	}

	err = p.ledger.Update(ctx, func(tx storage.Tx) error {
		sale, err := p.loadSale(ctx, tx, addrs)
		if err != nil {
			return err
		}
		if err := requireSigner(caller, sale.Authority, roleAuthority); err != nil {
			return err
		}

		source, _, err := solana.FindAssociatedTokenAddress(caller, sale.TokenMint)
		if err != nil {
			return fmt.Errorf("derive authority token account: %w", err)
		}
		if err := p.bank.TransferTokens(ctx, tx, source, sale.SaleTokenAccount, caller, amount); err != nil {
			return transferError(err, "authority cannot fund sale")
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.logger.Printf("Funded sale %q with %d tokens", saleID, amount)
	return nil
}
