// Package presale implements the presale program: a capped, time-boxed sale
// that escrows lamport deposits in a vault, pays the treasury after the sale
// ends, and releases tokens to each purchaser exactly once.
package presale

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"solana-presale/internal/bank"
	"solana-presale/internal/domain"
	"solana-presale/internal/idhash"
	"solana-presale/internal/observability"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
)

// DefaultProgramID is the deployed presale program address.
const DefaultProgramID = "9oemjxjE2zFJFVRynHVmWg1nTMWgTM3hGCetuAJkG21U"

// Publisher receives events after the transaction that produced them commits.
// Publish must not block.
type Publisher interface {
	Publish(e *domain.LedgerEvent)
}

// Options contains configuration for creating a Program.
type Options struct {
	Ledger     storage.Ledger
	Bank       *bank.Bank       // Default: bank.New()
	Clock      Clock            // Default: SystemClock
	Rent       RentSource       // Default: StaticRent
	ProgramID  solana.PublicKey // Default: DefaultProgramID
	Publishers []Publisher
	Logger     *log.Logger // Default: discard
}

// Program executes presale operations against a ledger.
type Program struct {
	ledger     storage.Ledger
	bank       *bank.Bank
	clock      Clock
	rent       RentSource
	programID  solana.PublicKey
	publishers []Publisher
	logger     *log.Logger
}

// NewProgram creates a new Program.
func NewProgram(opts Options) *Program {
	b := opts.Bank
	if b == nil {
		b = bank.New()
	}

	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	rent := opts.Rent
	if rent == nil {
		rent = StaticRent{}
	}

	programID := opts.ProgramID
	if programID.IsZero() {
		programID = solana.MustPublicKey(DefaultProgramID)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Program{
		ledger:     opts.Ledger,
		bank:       b,
		clock:      clock,
		rent:       rent,
		programID:  programID,
		publishers: opts.Publishers,
		logger:     logger,
	}
}

// ProgramID returns the program address all records are derived under.
func (p *Program) ProgramID() solana.PublicKey {
	return p.programID
}

// InitializeParams are the inputs of Initialize.
type InitializeParams struct {
	SaleID          string
	PriceLamports   uint64 // lamports per whole token
	SoftCapLamports uint64
	HardCapLamports uint64
	StartTime       int64
	EndTime         int64
	TokenMint       solana.PublicKey
	Authority       solana.PublicKey // authenticated caller, recorded as authority
	Treasury        solana.PublicKey
}

// Initialize creates the sale, its vault and its token account.
// The authority pays the vault's rent-exempt reserve.
func (p *Program) Initialize(ctx context.Context, params InitializeParams) (*domain.Sale, error) {
	if params.Authority.IsZero() {
		return nil, newError(KindUnauthorized, "initialize requires an authenticated authority")
	}
	addrs, err := DeriveAddresses(p.programID, params.SaleID)
	if err != nil {
		return nil, err
	}
	if err := requireExternal(params.Authority, addrs, roleAuthority); err != nil {
		return nil, err
	}
	if err := validateConfig(params); err != nil {
		return nil, err
	}
	if params.Treasury.Equal(addrs.Sale) || params.Treasury.Equal(addrs.Vault) {
		return nil, newError(KindInvalidTreasury, "treasury %s is a program account of the sale", params.Treasury)
	}

	reserve, err := p.rent.MinimumBalance(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("get vault rent reserve: %w", err)
	}
	now, err := p.clock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("read clock: %w", err)
	}
	saleToken, err := SaleTokenAddress(addrs.Sale, params.TokenMint)
	if err != nil {
		return nil, err
	}

	sale := &domain.Sale{
		SaleID:           params.SaleID,
		Address:          addrs.Sale,
		Bump:             addrs.SaleBump,
		Authority:        params.Authority,
		Treasury:         params.Treasury,
		Vault:            addrs.Vault,
		TokenMint:        params.TokenMint,
		SaleTokenAccount: saleToken,
		PriceLamports:    params.PriceLamports,
		SoftCapLamports:  params.SoftCapLamports,
		HardCapLamports:  params.HardCapLamports,
		TotalRaised:      0,
		StartTime:        params.StartTime,
		EndTime:          params.EndTime,
		IsActive:         true,
	}

	err = p.execute(ctx, "initialize", func(tx storage.Tx) (*domain.LedgerEvent, error) {
		if _, err := tx.GetSale(ctx, addrs.Sale); err == nil {
			return nil, newError(KindAlreadyInitialized, "sale %q already exists at %s", params.SaleID, addrs.Sale)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("get sale: %w", err)
		}

		if err := tx.InsertSale(ctx, sale); err != nil {
			return nil, fmt.Errorf("insert sale: %w", err)
		}
		vault := &domain.Vault{Address: addrs.Vault, Bump: addrs.VaultBump, RentReserve: reserve}
		if err := tx.InsertVault(ctx, vault); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return nil, newError(KindAlreadyInitialized, "vault %s already exists", addrs.Vault)
			}
			return nil, fmt.Errorf("insert vault: %w", err)
		}
		// The authority pays for the vault account, as the payer of its creation.
		if err := p.bank.TransferLamports(ctx, tx, params.Authority, addrs.Vault, reserve); err != nil {
			return nil, transferError(err, "authority cannot fund vault rent reserve")
		}
		if _, err := p.bank.CreateAssociatedTokenAccount(ctx, tx, addrs.Sale, params.TokenMint); err != nil {
			return nil, fmt.Errorf("create sale token account: %w", err)
		}

		return &domain.LedgerEvent{
			Kind:        domain.EventInitialize,
			SaleID:      sale.SaleID,
			SaleAddress: sale.Address,
			Actor:       params.Authority,
			Lamports:    reserve,
			Timestamp:   now,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Printf("Presale initialized: id=%q sale=%s vault=%s", sale.SaleID, sale.Address, sale.Vault)
	return sale, nil
}

func validateConfig(params InitializeParams) error {
	switch {
	case params.SoftCapLamports > params.HardCapLamports:
		return newError(KindInvalidConfig, "soft cap %d exceeds hard cap %d", params.SoftCapLamports, params.HardCapLamports)
	case params.StartTime >= params.EndTime:
		return newError(KindInvalidConfig, "start time %d is not before end time %d", params.StartTime, params.EndTime)
	case params.PriceLamports == 0:
		return newError(KindInvalidConfig, "price must be greater than zero")
	}
	return nil
}

// PurchaseParams are the inputs of Purchase.
type PurchaseParams struct {
	SaleID         string
	Caller         solana.PublicKey // authenticated caller
	Purchaser      solana.PublicKey
	AmountLamports uint64
}

// Purchase moves AmountLamports from the purchaser into the vault and
// accumulates the purchaser's record. Each call adds a new contribution.
func (p *Program) Purchase(ctx context.Context, params PurchaseParams) (*domain.PurchaseRecord, error) {
	if err := requireSigner(params.Caller, params.Purchaser, rolePurchaser); err != nil {
		return nil, err
	}
	addrs, err := DeriveAddresses(p.programID, params.SaleID)
	if err != nil {
		return nil, err
	}
	if err := requireExternal(params.Purchaser, addrs, rolePurchaser); err != nil {
		return nil, err
	}
	recordAddr, recordBump, err := PurchaseRecordAddress(p.programID, params.SaleID, params.Purchaser)
	if err != nil {
		return nil, err
	}
	now, err := p.clock.Now(ctx)
	if err != nil {
		return nil, fmt.Errorf("read clock: %w", err)
	}

	var (
		record *domain.PurchaseRecord
		sale   *domain.Sale
	)
	err = p.execute(ctx, "purchase", func(tx storage.Tx) (*domain.LedgerEvent, error) {
		var err error
		sale, err = p.loadSale(ctx, tx, addrs)
		if err != nil {
			return nil, err
		}

		if !sale.IsActive {
			return nil, newError(KindSaleInactive, "the sale is currently not active")
		}
		switch sale.Phase(now) {
		case domain.PhaseUpcoming:
			return nil, newError(KindSaleNotStarted, "the sale starts at %d, now %d", sale.StartTime, now)
		case domain.PhaseEnded:
			return nil, newError(KindSaleEnded, "the sale ended at %d, now %d", sale.EndTime, now)
		}
		if params.AmountLamports == 0 {
			return nil, newError(KindInvalidAmount, "amount must be greater than zero")
		}

		total, err := checkedAdd(sale.TotalRaised, params.AmountLamports, "total raised")
		if err != nil {
			return nil, err
		}
		if total > sale.HardCapLamports {
			return nil, newError(KindHardCapExceeded, "raising %d would reach %d, hard cap %d",
				params.AmountLamports, total, sale.HardCapLamports)
		}

		record, err = tx.GetPurchaseRecord(ctx, recordAddr)
		isNew := errors.Is(err, storage.ErrNotFound)
		switch {
		case isNew:
			record = &domain.PurchaseRecord{
				Address:     recordAddr,
				Bump:        recordBump,
				SaleAddress: sale.Address,
				Purchaser:   params.Purchaser,
			}
		case err != nil:
			return nil, fmt.Errorf("get purchase record: %w", err)
		}
		spent, err := checkedAdd(record.AmountSpent, params.AmountLamports, "amount spent")
		if err != nil {
			return nil, err
		}

		if err := p.bank.TransferLamports(ctx, tx, params.Purchaser, sale.Vault, params.AmountLamports); err != nil {
			return nil, transferError(err, "purchaser cannot pay")
		}

		sale.TotalRaised = total
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return nil, fmt.Errorf("update sale: %w", err)
		}
		record.AmountSpent = spent
		if isNew {
			err = tx.InsertPurchaseRecord(ctx, record)
		} else {
			err = tx.UpdatePurchaseRecord(ctx, record)
		}
		if err != nil {
			return nil, fmt.Errorf("save purchase record: %w", err)
		}

		return &domain.LedgerEvent{
			Kind:        domain.EventPurchase,
			SaleID:      sale.SaleID,
			SaleAddress: sale.Address,
			Actor:       params.Purchaser,
			Lamports:    params.AmountLamports,
			TotalRaised: total,
			Timestamp:   now,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordPurchase(sale.SaleID, params.AmountLamports, sale.TotalRaised)
	p.logger.Printf("User %s purchased for %d lamports (sale %q, total raised %d)",
		params.Purchaser, params.AmountLamports, sale.SaleID, sale.TotalRaised)
	return record, nil
}

// WithdrawParams are the inputs of WithdrawFunds.
type WithdrawParams struct {
	SaleID   string
	Caller   solana.PublicKey // authenticated caller, must be the authority
	Treasury solana.PublicKey
}

// WithdrawFunds moves the vault's withdrawable balance to the treasury and
// returns the amount moved. The vault keeps its rent-exempt reserve.
// Withdrawing an empty vault succeeds and moves zero.
func (p *Program) WithdrawFunds(ctx context.Context, params WithdrawParams) (uint64, error) {
	addrs, err := DeriveAddresses(p.programID, params.SaleID)
	if err != nil {
		return 0, err
	}
	now, err := p.clock.Now(ctx)
	if err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}

	var withdrawn uint64
	err = p.execute(ctx, "withdraw", func(tx storage.Tx) (*domain.LedgerEvent, error) {
		sale, err := p.loadSale(ctx, tx, addrs)
		if err != nil {
			return nil, err
		}

		if sale.Phase(now) != domain.PhaseEnded {
			return nil, newError(KindSaleNotEnded, "the sale ends at %d, now %d", sale.EndTime, now)
		}
		if err := requireSigner(params.Caller, sale.Authority, roleAuthority); err != nil {
			return nil, err
		}
		if err := requireTreasury(params.Treasury, sale.Treasury); err != nil {
			return nil, err
		}

		vault, err := tx.GetVault(ctx, sale.Vault)
		if err != nil {
			return nil, fmt.Errorf("get vault: %w", err)
		}
		withdrawn = vault.Withdrawable()
		if err := p.bank.TransferLamports(ctx, tx, sale.Vault, sale.Treasury, withdrawn); err != nil {
			return nil, transferError(err, "vault cannot pay treasury")
		}

		return &domain.LedgerEvent{
			Kind:        domain.EventWithdraw,
			SaleID:      sale.SaleID,
			SaleAddress: sale.Address,
			Actor:       params.Caller,
			Lamports:    withdrawn,
			TotalRaised: sale.TotalRaised,
			Timestamp:   now,
		}, nil
	})
	if err != nil {
		return 0, err
	}

	observability.RecordWithdrawal(withdrawn)
	p.logger.Printf("Withdrew %d lamports from the vault to the treasury (sale %q)", withdrawn, params.SaleID)
	return withdrawn, nil
}

// ClaimParams are the inputs of ClaimTokens.
type ClaimParams struct {
	SaleID                string
	Caller                solana.PublicKey // authenticated caller
	Purchaser             solana.PublicKey
	TokenMint             solana.PublicKey
	PurchaserTokenAccount solana.PublicKey // must be the purchaser's associated token account
}

// ClaimTokens pays floor(AmountSpent / Price) tokens to the purchaser's
// associated token account, creating it if needed, and marks the record
// claimed. The remainder of the division is not refunded.
func (p *Program) ClaimTokens(ctx context.Context, params ClaimParams) (uint64, error) {
	if err := requireSigner(params.Caller, params.Purchaser, rolePurchaser); err != nil {
		return 0, err
	}
	addrs, err := DeriveAddresses(p.programID, params.SaleID)
	if err != nil {
		return 0, err
	}
	if err := requireExternal(params.Purchaser, addrs, rolePurchaser); err != nil {
		return 0, err
	}
	recordAddr, _, err := PurchaseRecordAddress(p.programID, params.SaleID, params.Purchaser)
	if err != nil {
		return 0, err
	}
	now, err := p.clock.Now(ctx)
	if err != nil {
		return 0, fmt.Errorf("read clock: %w", err)
	}

	var tokens uint64
	err = p.execute(ctx, "claim", func(tx storage.Tx) (*domain.LedgerEvent, error) {
		sale, err := p.loadSale(ctx, tx, addrs)
		if err != nil {
			return nil, err
		}

		if sale.Phase(now) != domain.PhaseEnded {
			return nil, newError(KindSaleNotEnded, "the sale ends at %d, now %d", sale.EndTime, now)
		}
		if !params.TokenMint.Equal(sale.TokenMint) {
			return nil, newError(KindMintMismatch, "mint %s is not the sale mint %s", params.TokenMint, sale.TokenMint)
		}
		ata, _, err := solana.FindAssociatedTokenAddress(params.Purchaser, sale.TokenMint)
		if err != nil {
			return nil, fmt.Errorf("derive purchaser token account: %w", err)
		}
		if params.PurchaserTokenAccount != ata {
			return nil, newError(KindInvalidTokenAccount, "token account %s is not the associated account %s",
				params.PurchaserTokenAccount, ata)
		}

		record, err := tx.GetPurchaseRecord(ctx, recordAddr)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(KindNoPurchaseRecord, "%s has no purchase in sale %q", params.Purchaser, sale.SaleID)
		}
		if err != nil {
			return nil, fmt.Errorf("get purchase record: %w", err)
		}
		if record.Claimed {
			return nil, newError(KindAlreadyClaimed, "tokens have already been claimed")
		}

		tokens = record.TokensOwed(sale.PriceLamports)
		if _, err := p.bank.CreateAssociatedTokenAccount(ctx, tx, params.Purchaser, sale.TokenMint); err != nil {
			return nil, fmt.Errorf("create purchaser token account: %w", err)
		}
		if err := p.bank.TransferTokens(ctx, tx, sale.SaleTokenAccount, ata, sale.Address, tokens); err != nil {
			return nil, transferError(err, "sale token account cannot pay claim")
		}

		record.Claimed = true
		if err := tx.UpdatePurchaseRecord(ctx, record); err != nil {
			return nil, fmt.Errorf("update purchase record: %w", err)
		}

		return &domain.LedgerEvent{
			Kind:        domain.EventClaim,
			SaleID:      sale.SaleID,
			SaleAddress: sale.Address,
			Actor:       params.Purchaser,
			Tokens:      tokens,
			TotalRaised: sale.TotalRaised,
			Timestamp:   now,
		}, nil
	})
	if err != nil {
		return 0, err
	}

	observability.RecordClaim(tokens)
	p.logger.Printf("User %s claimed %d tokens (sale %q)", params.Purchaser, tokens, params.SaleID)
	return tokens, nil
}

// loadSale reads the sale at addrs, mapping absence to SaleNotFound.
func (p *Program) loadSale(ctx context.Context, tx storage.Tx, addrs Addresses) (*domain.Sale, error) {
	sale, err := tx.GetSale(ctx, addrs.Sale)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newError(KindSaleNotFound, "no sale %q at %s", addrs.SaleID, addrs.Sale)
	}
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	return sale, nil
}

// execute runs op in one ledger transaction, appends the event it returns,
// and publishes the event once committed. fn may run more than once if the
// ledger retries the transaction.
func (p *Program) execute(ctx context.Context, op string, fn func(tx storage.Tx) (*domain.LedgerEvent, error)) error {
	start := time.Now()

	var event *domain.LedgerEvent
	err := p.ledger.Update(ctx, func(tx storage.Tx) error {
		e, err := fn(tx)
		if err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx)
		if err != nil {
			return fmt.Errorf("next event sequence: %w", err)
		}
		e.Sequence = seq
		e.EventID = idhash.ComputeEventIDFor(e)
		if err := tx.AppendEvent(ctx, e); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		event = e
		return nil
	})

	elapsed := time.Since(start).Seconds()
	observability.RecordLedgerTx("update", elapsed, err)
	observability.RecordOperation(op, resultLabel(err), elapsed)
	if err != nil {
		if KindOf(err) == "" {
			p.logger.Printf("%s failed: %v", op, err)
		}
		return err
	}

	observability.RecordCommit(event.Timestamp)
	for _, pub := range p.publishers {
		pub.Publish(event)
	}
	return nil
}

// transferError maps value transfer failures to presale kinds.
func transferError(err error, msg string) error {
	switch {
	case errors.Is(err, storage.ErrInsufficientFunds), errors.Is(err, storage.ErrNotFound):
		return newError(KindInsufficientFunds, "%s: %v", msg, err)
	case errors.Is(err, bank.ErrOverflow):
		return newError(KindArithmeticOverflow, "%s: %v", msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
