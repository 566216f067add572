package presale

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-presale/internal/domain"
	"solana-presale/internal/idhash"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
	"solana-presale/internal/storage/memory"
)

const (
	sol       = uint64(1_000_000_000)
	testStart = int64(1_700_000_000)
	testEnd   = testStart + 3
	testPrice = sol / 2
	vaultRent = uint64(890_880)
	testSale  = "phnx"
)

func testKey(b byte) solana.PublicKey {
	var pk solana.PublicKey
	pk[0] = b
	pk[31] = b
	return pk
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*domain.LedgerEvent
}

func (p *recordingPublisher) Publish(e *domain.LedgerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) kinds() []domain.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]domain.EventKind, len(p.events))
	for i, e := range p.events {
		kinds[i] = e.Kind
	}
	return kinds
}

type fixture struct {
	ctx       context.Context
	program   *Program
	ledger    *memory.Ledger
	clock     *FixedClock
	publisher *recordingPublisher

	authority solana.PublicKey
	treasury  solana.PublicKey
	purchaser solana.PublicKey
	mint      solana.PublicKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:       context.Background(),
		ledger:    memory.NewLedger(),
		clock:     NewFixedClock(testStart),
		publisher: &recordingPublisher{},
		authority: testKey(1),
		treasury:  testKey(2),
		purchaser: testKey(3),
		mint:      testKey(4),
	}
	f.program = NewProgram(Options{
		Ledger:     f.ledger,
		Clock:      f.clock,
		Publishers: []Publisher{f.publisher},
	})

	require.NoError(t, f.program.Airdrop(f.ctx, f.authority, sol))
	require.NoError(t, f.program.Airdrop(f.ctx, f.purchaser, 5*sol))
	return f
}

func (f *fixture) initParams(saleID string) InitializeParams {
	return InitializeParams{
		SaleID:          saleID,
		PriceLamports:   testPrice,
		SoftCapLamports: 50 * sol,
		HardCapLamports: 100 * sol,
		StartTime:       testStart,
		EndTime:         testEnd,
		TokenMint:       f.mint,
		Authority:       f.authority,
		Treasury:        f.treasury,
	}
}

func (f *fixture) initialize(t *testing.T, params InitializeParams) *domain.Sale {
	t.Helper()
	sale, err := f.program.Initialize(f.ctx, params)
	require.NoError(t, err)
	return sale
}

func (f *fixture) purchase(t *testing.T, amount uint64) *domain.PurchaseRecord {
	t.Helper()
	record, err := f.program.Purchase(f.ctx, PurchaseParams{
		SaleID:         testSale,
		Caller:         f.purchaser,
		Purchaser:      f.purchaser,
		AmountLamports: amount,
	})
	require.NoError(t, err)
	return record
}

func (f *fixture) fundSale(t *testing.T, tokens uint64) {
	t.Helper()
	_, err := f.program.MintTo(f.ctx, f.mint, f.authority, tokens)
	require.NoError(t, err)
	require.NoError(t, f.program.FundSale(f.ctx, testSale, f.authority, tokens))
}

func (f *fixture) claimParams(purchaser solana.PublicKey) ClaimParams {
	ata, _, _ := solana.FindAssociatedTokenAddress(purchaser, f.mint)
	return ClaimParams{
		SaleID:                testSale,
		Caller:                purchaser,
		Purchaser:             purchaser,
		TokenMint:             f.mint,
		PurchaserTokenAccount: ata,
	}
}

func (f *fixture) addresses(t *testing.T) Addresses {
	t.Helper()
	addrs, err := DeriveAddresses(f.program.ProgramID(), testSale)
	require.NoError(t, err)
	return addrs
}

func (f *fixture) balance(t *testing.T, address solana.PublicKey) uint64 {
	t.Helper()
	lamports, err := f.program.Balance(f.ctx, address)
	require.NoError(t, err)
	return lamports
}

func (f *fixture) events(t *testing.T) []*domain.LedgerEvent {
	t.Helper()
	events, err := f.program.Events(f.ctx, testSale)
	require.NoError(t, err)
	return events
}

func TestInitialize(t *testing.T) {
	f := newFixture(t)

	sale := f.initialize(t, f.initParams(testSale))

	addrs, err := DeriveAddresses(f.program.ProgramID(), testSale)
	require.NoError(t, err)
	assert.Equal(t, addrs.Sale, sale.Address)
	assert.Equal(t, addrs.Vault, sale.Vault)
	assert.True(t, sale.IsActive)
	assert.Zero(t, sale.TotalRaised)
	assert.Equal(t, f.authority, sale.Authority)
	assert.Equal(t, f.treasury, sale.Treasury)

	got, err := f.program.GetSale(f.ctx, testSale)
	require.NoError(t, err)
	assert.Equal(t, sale, got)

	// The authority paid the vault rent reserve.
	assert.Equal(t, vaultRent, f.balance(t, sale.Vault))
	assert.Equal(t, sol-vaultRent, f.balance(t, f.authority))

	summary, err := f.program.Summary(f.ctx, testSale)
	require.NoError(t, err)
	assert.Zero(t, summary.Withdrawable)
	assert.Zero(t, summary.SaleTokenBalance)
	assert.Equal(t, domain.PhaseActive, summary.Phase)

	events := f.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventInitialize, events[0].Kind)
	assert.Equal(t, vaultRent, events[0].Lamports)
	assert.Equal(t, []domain.EventKind{domain.EventInitialize}, f.publisher.kinds())
}

func TestInitialize_Validation(t *testing.T) {
	addrs, err := DeriveAddresses(solana.MustPublicKey(DefaultProgramID), testSale)
	require.NoError(t, err)

	tests := []struct {
		name   string
		modify func(p *InitializeParams)
		want   error
	}{
		{"sale id too long", func(p *InitializeParams) { p.SaleID = strings.Repeat("x", MaxSaleIDLength+1) }, ErrInvalidSaleID},
		{"soft cap above hard cap", func(p *InitializeParams) { p.SoftCapLamports = p.HardCapLamports + 1 }, ErrInvalidConfig},
		{"start equals end", func(p *InitializeParams) { p.EndTime = p.StartTime }, ErrInvalidConfig},
		{"start after end", func(p *InitializeParams) { p.StartTime = p.EndTime + 1 }, ErrInvalidConfig},
		{"zero price", func(p *InitializeParams) { p.PriceLamports = 0 }, ErrInvalidConfig},
		{"no authority", func(p *InitializeParams) { p.Authority = solana.PublicKey{} }, ErrUnauthorized},
		{"vault as authority", func(p *InitializeParams) { p.Authority = addrs.Vault }, ErrUnauthorized},
		{"sale as authority", func(p *InitializeParams) { p.Authority = addrs.Sale }, ErrUnauthorized},
		{"vault as treasury", func(p *InitializeParams) { p.Treasury = addrs.Vault }, ErrInvalidTreasury},
		{"long id checked before config", func(p *InitializeParams) {
			p.SaleID = strings.Repeat("x", MaxSaleIDLength+1)
			p.PriceLamports = 0
		}, ErrInvalidSaleID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			params := f.initParams(testSale)
			tt.modify(&params)

			_, err := f.program.Initialize(f.ctx, params)
			assert.ErrorIs(t, err, tt.want)

			_, err = f.program.GetSale(f.ctx, testSale)
			assert.ErrorIs(t, err, ErrSaleNotFound)
			assert.Equal(t, sol, f.balance(t, f.authority))
		})
	}
}

func TestInitialize_EqualCapsAllowed(t *testing.T) {
	f := newFixture(t)
	params := f.initParams(testSale)
	params.SoftCapLamports = params.HardCapLamports

	f.initialize(t, params)
}

func TestInitialize_AlreadyInitialized(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, f.initParams(testSale))

	_, err := f.program.Initialize(f.ctx, f.initParams(testSale))
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
	assert.Equal(t, sol-vaultRent, f.balance(t, f.authority))
	assert.Len(t, f.events(t), 1)
}

func TestInitialize_AuthorityCannotPayRent(t *testing.T) {
	f := newFixture(t)
	params := f.initParams(testSale)
	params.Authority = testKey(9)

	_, err := f.program.Initialize(f.ctx, params)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = f.program.GetSale(f.ctx, testSale)
	assert.ErrorIs(t, err, ErrSaleNotFound)
	assert.Empty(t, f.publisher.kinds())
}

func TestInitialize_IndependentSales(t *testing.T) {
	f := newFixture(t)
	first := f.initialize(t, f.initParams("alpha"))
	second := f.initialize(t, f.initParams("beta"))

	assert.NotEqual(t, first.Address, second.Address)
	assert.NotEqual(t, first.Vault, second.Vault)
	assert.NotEqual(t, first.SaleTokenAccount, second.SaleTokenAccount)

	// The empty identifier is its own sale.
	singleton := f.initialize(t, f.initParams(""))
	assert.NotEqual(t, first.Address, singleton.Address)
}

func TestPurchase(t *testing.T) {
	f := newFixture(t)
	sale := f.initialize(t, f.initParams(testSale))

	record := f.purchase(t, sol)

	assert.Equal(t, sol, record.AmountSpent)
	assert.False(t, record.Claimed)
	assert.Equal(t, sale.Address, record.SaleAddress)
	assert.Equal(t, vaultRent+sol, f.balance(t, sale.Vault))
	assert.Equal(t, 4*sol, f.balance(t, f.purchaser))

	got, err := f.program.GetSale(f.ctx, testSale)
	require.NoError(t, err)
	assert.Equal(t, sol, got.TotalRaised)

	stored, err := f.program.GetPurchaseRecord(f.ctx, testSale, f.purchaser)
	require.NoError(t, err)
	assert.Equal(t, record, stored)

	events := f.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventPurchase, events[1].Kind)
	assert.Equal(t, f.purchaser, events[1].Actor)
	assert.Equal(t, sol, events[1].Lamports)
	assert.Equal(t, sol, events[1].TotalRaised)
}

func TestPurchase_Accumulates(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, f.initParams(testSale))

	f.purchase(t, sol)
	record := f.purchase(t, sol/4)

	assert.Equal(t, sol+sol/4, record.AmountSpent)

	sale, err := f.program.GetSale(f.ctx, testSale)
	require.NoError(t, err)
	assert.Equal(t, sol+sol/4, sale.TotalRaised)
}

func TestPurchase_SaleNotStarted(t *testing.T) {
	f := newFixture(t)
	params := f.initParams(testSale)
	params.StartTime = testStart + 10
	params.EndTime = testStart + 20
	sale := f.initialize(t, params)

	_, err := f.program.Purchase(f.ctx, PurchaseParams{
		SaleID: testSale, Caller: f.purchaser, Purchaser: f.purchaser, AmountLamports: sol,
	})
	require.ErrorIs(t, err, ErrSaleNotStarted)
	assert.True(t, KindOf(err).Retryable())

	assert.Equal(t, vaultRent, f.balance(t, sale.Vault))
	assert.Equal(t, 5*sol, f.balance(t, f.purchaser))
	_, err = f.program.GetPurchaseRecord(f.ctx, testSale, f.purchaser)
	assert.ErrorIs(t, err, ErrNoPurchaseRecord)

	// Waiting out the start makes the same request succeed.
	f.clock.Set(params.StartTime)
	f.purchase(t, sol)
}

func TestPurchase_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		now    int64
		params func(f *fixture) PurchaseParams
		want   error
	}{
		{
			name: "caller is not purchaser",
			now:  testStart,
			params: func(f *fixture) PurchaseParams {
				return PurchaseParams{SaleID: testSale, Caller: f.authority, Purchaser: f.purchaser, AmountLamports: sol}
			},
			want: ErrUnauthorized,
		},
		{
			name: "unauthorized checked before sale lookup",
			now:  testStart,
			params: func(f *fixture) PurchaseParams {
				return PurchaseParams{SaleID: "missing", Caller: f.authority, Purchaser: f.purchaser, AmountLamports: sol}
			},
			want: ErrUnauthorized,
		},
		{
			name: "sale not found",
			now:  testStart,
			params: func(f *fixture) PurchaseParams {
				return PurchaseParams{SaleID: "missing", Caller: f.purchaser, Purchaser: f.purchaser, AmountLamports: sol}
			},
			want: ErrSaleNotFound,
		},
		{
			name: "sale ended at end time",
			now:  testEnd,
			params: func(f *fixture) PurchaseParams {
				return PurchaseParams{SaleID: testSale, Caller: f.purchaser, Purchaser: f.purchaser, AmountLamports: sol}
			},
			want: ErrSaleEnded,
		},
		{
			name: "ended checked before amount",
			now:  testEnd + 100,
			params: func(f *fixture) PurchaseParams {
				return PurchaseParams{SaleID: testSale, Caller: f.purchaser, Purchaser: f.purchaser}
			},
			want: ErrSaleEnded,
		},
		{
			name: "zero amount",
			now:  testStart,
			params: func(f *fixture) PurchaseParams {
				return PurchaseParams{SaleID: testSale, Caller: f.purchaser, Purchaser: f.purchaser}
			},
			want: ErrInvalidAmount,
		},
		{
			name: "above hard cap",
			now:  testStart,
			params: func(f *fixture) PurchaseParams {
				return PurchaseParams{SaleID: testSale, Caller: f.purchaser, Purchaser: f.purchaser, AmountLamports: 100*sol + 1}
			},
			want: ErrHardCapExceeded,
		},
		{
			name: "purchaser cannot pay",
			now:  testStart,
			params: func(f *fixture) PurchaseParams {
				return PurchaseParams{SaleID: testSale, Caller: f.purchaser, Purchaser: f.purchaser, AmountLamports: 6 * sol}
			},
			want: ErrInsufficientFunds,
		},
		{
			name: "vault as purchaser",
			now:  testStart,
			params: func(f *fixture) PurchaseParams {
				vault := f.addresses(t).Vault
				return PurchaseParams{SaleID: testSale, Caller: vault, Purchaser: vault, AmountLamports: 100 * sol}
			},
			want: ErrUnauthorized,
		},
		{
			name: "sale as purchaser",
			now:  testStart,
			params: func(f *fixture) PurchaseParams {
				sale := f.addresses(t).Sale
				return PurchaseParams{SaleID: testSale, Caller: sale, Purchaser: sale, AmountLamports: sol}
			},
			want: ErrUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sale := f.initialize(t, f.initParams(testSale))
			f.clock.Set(tt.now)

			_, err := f.program.Purchase(f.ctx, tt.params(f))
			assert.ErrorIs(t, err, tt.want)

			got, err := f.program.GetSale(f.ctx, testSale)
			require.NoError(t, err)
			assert.Zero(t, got.TotalRaised)
			assert.Equal(t, vaultRent, f.balance(t, sale.Vault))
			assert.Equal(t, 5*sol, f.balance(t, f.purchaser))
			assert.Len(t, f.events(t), 1)
		})
	}
}

func TestPurchase_InactiveSale(t *testing.T) {
	f := newFixture(t)
	sale := f.initialize(t, f.initParams(testSale))

	err := f.ledger.Update(f.ctx, func(tx storage.Tx) error {
		sale.IsActive = false
		return tx.UpdateSale(f.ctx, sale)
	})
	require.NoError(t, err)

	_, err = f.program.Purchase(f.ctx, PurchaseParams{
		SaleID: testSale, Caller: f.purchaser, Purchaser: f.purchaser, AmountLamports: sol,
	})
	assert.ErrorIs(t, err, ErrSaleInactive)
}

func TestPurchase_HardCapBoundary(t *testing.T) {
	f := newFixture(t)
	params := f.initParams(testSale)
	params.SoftCapLamports = sol
	params.HardCapLamports = 2 * sol
	f.initialize(t, params)

	f.purchase(t, 2*sol)

	_, err := f.program.Purchase(f.ctx, PurchaseParams{
		SaleID: testSale, Caller: f.purchaser, Purchaser: f.purchaser, AmountLamports: 1,
	})
	assert.ErrorIs(t, err, ErrHardCapExceeded)

	summary, err := f.program.Summary(f.ctx, testSale)
	require.NoError(t, err)
	assert.Equal(t, uint64(10000), summary.ProgressBps)
	assert.True(t, summary.SoftCapReached)
}

func TestPurchase_Overflow(t *testing.T) {
	f := newFixture(t)
	params := f.initParams(testSale)
	params.HardCapLamports = math.MaxUint64
	sale := f.initialize(t, params)

	err := f.ledger.Update(f.ctx, func(tx storage.Tx) error {
		sale.TotalRaised = math.MaxUint64 - 5
		return tx.UpdateSale(f.ctx, sale)
	})
	require.NoError(t, err)

	_, err = f.program.Purchase(f.ctx, PurchaseParams{
		SaleID: testSale, Caller: f.purchaser, Purchaser: f.purchaser, AmountLamports: 10,
	})
	assert.ErrorIs(t, err, ErrArithmeticOverflow)
	assert.Equal(t, 5*sol, f.balance(t, f.purchaser))
}

func TestPurchase_ConcurrentRespectsHardCap(t *testing.T) {
	f := newFixture(t)
	params := f.initParams(testSale)
	params.SoftCapLamports = sol
	params.HardCapLamports = 10 * sol
	sale := f.initialize(t, params)

	const buyers = 20
	for i := 0; i < buyers; i++ {
		require.NoError(t, f.program.Airdrop(f.ctx, testKey(byte(100+i)), 2*sol))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(buyer solana.PublicKey) {
			defer wg.Done()
			_, err := f.program.Purchase(f.ctx, PurchaseParams{
				SaleID: testSale, Caller: buyer, Purchaser: buyer, AmountLamports: sol,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrHardCapExceeded):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(testKey(byte(100 + i)))
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 10, rejected)

	got, err := f.program.GetSale(f.ctx, testSale)
	require.NoError(t, err)
	assert.Equal(t, 10*sol, got.TotalRaised)
	assert.Equal(t, vaultRent+10*sol, f.balance(t, sale.Vault))
}

func TestWithdrawFunds(t *testing.T) {
	f := newFixture(t)
	sale := f.initialize(t, f.initParams(testSale))
	f.purchase(t, sol)

	f.clock.Set(testEnd)
	withdrawn, err := f.program.WithdrawFunds(f.ctx, WithdrawParams{
		SaleID: testSale, Caller: f.authority, Treasury: f.treasury,
	})
	require.NoError(t, err)

	assert.Equal(t, sol, withdrawn)
	assert.Equal(t, sol, f.balance(t, f.treasury))
	assert.Equal(t, vaultRent, f.balance(t, sale.Vault))

	// An emptied vault withdraws zero.
	withdrawn, err = f.program.WithdrawFunds(f.ctx, WithdrawParams{
		SaleID: testSale, Caller: f.authority, Treasury: f.treasury,
	})
	require.NoError(t, err)
	assert.Zero(t, withdrawn)
	assert.Equal(t, sol, f.balance(t, f.treasury))

	events := f.events(t)
	require.Len(t, events, 4)
	assert.Equal(t, domain.EventWithdraw, events[2].Kind)
	assert.Equal(t, sol, events[2].Lamports)
	assert.Zero(t, events[3].Lamports)
}

func TestWithdrawFunds_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		now    int64
		params func(f *fixture) WithdrawParams
		want   error
	}{
		{
			name: "sale not found",
			now:  testEnd,
			params: func(f *fixture) WithdrawParams {
				return WithdrawParams{SaleID: "missing", Caller: f.authority, Treasury: f.treasury}
			},
			want: ErrSaleNotFound,
		},
		{
			name: "sale still active",
			now:  testEnd - 1,
			params: func(f *fixture) WithdrawParams {
				return WithdrawParams{SaleID: testSale, Caller: f.authority, Treasury: f.treasury}
			},
			want: ErrSaleNotEnded,
		},
		{
			name: "not ended checked before authority",
			now:  testStart,
			params: func(f *fixture) WithdrawParams {
				return WithdrawParams{SaleID: testSale, Caller: f.purchaser, Treasury: f.treasury}
			},
			want: ErrSaleNotEnded,
		},
		{
			name: "caller is not authority",
			now:  testEnd,
			params: func(f *fixture) WithdrawParams {
				return WithdrawParams{SaleID: testSale, Caller: f.purchaser, Treasury: f.treasury}
			},
			want: ErrUnauthorized,
		},
		{
			name: "wrong treasury",
			now:  testEnd,
			params: func(f *fixture) WithdrawParams {
				return WithdrawParams{SaleID: testSale, Caller: f.authority, Treasury: f.purchaser}
			},
			want: ErrInvalidTreasury,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			sale := f.initialize(t, f.initParams(testSale))
			f.purchase(t, sol)
			f.clock.Set(tt.now)

			_, err := f.program.WithdrawFunds(f.ctx, tt.params(f))
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, vaultRent+sol, f.balance(t, sale.Vault))
			assert.Zero(t, f.balance(t, f.treasury))
		})
	}
}

func TestClaimTokens(t *testing.T) {
	f := newFixture(t)
	sale := f.initialize(t, f.initParams(testSale))
	f.fundSale(t, 10)
	f.purchase(t, sol)

	f.clock.Set(testEnd)
	tokens, err := f.program.ClaimTokens(f.ctx, f.claimParams(f.purchaser))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), tokens)

	balance, err := f.program.TokenBalance(f.ctx, f.purchaser, f.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), balance)

	saleTokens, err := f.program.TokenBalance(f.ctx, sale.Address, f.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), saleTokens)

	record, err := f.program.GetPurchaseRecord(f.ctx, testSale, f.purchaser)
	require.NoError(t, err)
	assert.True(t, record.Claimed)
	assert.Equal(t, sol, record.AmountSpent)

	_, err = f.program.ClaimTokens(f.ctx, f.claimParams(f.purchaser))
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	balance, err = f.program.TokenBalance(f.ctx, f.purchaser, f.mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), balance)

	events := f.events(t)
	last := events[len(events)-1]
	assert.Equal(t, domain.EventClaim, last.Kind)
	assert.Equal(t, uint64(2), last.Tokens)
}

func TestClaimTokens_RemainderForfeited(t *testing.T) {
	f := newFixture(t)
	params := f.initParams(testSale)
	params.PriceLamports = 300_000_000
	f.initialize(t, params)
	f.fundSale(t, 10)
	f.purchase(t, sol)

	f.clock.Set(testEnd)
	tokens, err := f.program.ClaimTokens(f.ctx, f.claimParams(f.purchaser))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), tokens)
}

func TestClaimTokens_ZeroTokensStillClaims(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, f.initParams(testSale))
	f.purchase(t, testPrice-1)

	f.clock.Set(testEnd)
	tokens, err := f.program.ClaimTokens(f.ctx, f.claimParams(f.purchaser))
	require.NoError(t, err)
	assert.Zero(t, tokens)

	_, err = f.program.ClaimTokens(f.ctx, f.claimParams(f.purchaser))
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaimTokens_Rejections(t *testing.T) {
	stranger := testKey(7)

	tests := []struct {
		name   string
		now    int64
		fund   uint64
		params func(f *fixture) ClaimParams
		want   error
	}{
		{
			name: "caller is not purchaser",
			now:  testEnd,
			fund: 10,
			params: func(f *fixture) ClaimParams {
				p := f.claimParams(f.purchaser)
				p.Caller = stranger
				return p
			},
			want: ErrUnauthorized,
		},
		{
			name: "sale not found",
			now:  testEnd,
			fund: 10,
			params: func(f *fixture) ClaimParams {
				p := f.claimParams(f.purchaser)
				p.SaleID = "missing"
				return p
			},
			want: ErrSaleNotFound,
		},
		{
			name: "sale still active",
			now:  testEnd - 1,
			fund: 10,
			params: func(f *fixture) ClaimParams {
				return f.claimParams(f.purchaser)
			},
			want: ErrSaleNotEnded,
		},
		{
			name: "wrong mint",
			now:  testEnd,
			fund: 10,
			params: func(f *fixture) ClaimParams {
				p := f.claimParams(f.purchaser)
				p.TokenMint = stranger
				return p
			},
			want: ErrMintMismatch,
		},
		{
			name: "not the associated token account",
			now:  testEnd,
			fund: 10,
			params: func(f *fixture) ClaimParams {
				p := f.claimParams(f.purchaser)
				p.PurchaserTokenAccount = stranger
				return p
			},
			want: ErrInvalidTokenAccount,
		},
		{
			name: "no purchase record",
			now:  testEnd,
			fund: 10,
			params: func(f *fixture) ClaimParams {
				return f.claimParams(stranger)
			},
			want: ErrNoPurchaseRecord,
		},
		{
			name: "sale as purchaser",
			now:  testEnd,
			fund: 10,
			params: func(f *fixture) ClaimParams {
				return f.claimParams(f.addresses(t).Sale)
			},
			want: ErrUnauthorized,
		},
		{
			name: "vault as purchaser",
			now:  testEnd,
			fund: 10,
			params: func(f *fixture) ClaimParams {
				return f.claimParams(f.addresses(t).Vault)
			},
			want: ErrUnauthorized,
		},
		{
			name: "sale token account underfunded",
			now:  testEnd,
			fund: 1,
			params: func(f *fixture) ClaimParams {
				return f.claimParams(f.purchaser)
			},
			want: ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.initialize(t, f.initParams(testSale))
			f.fundSale(t, tt.fund)
			f.purchase(t, sol)
			f.clock.Set(tt.now)

			_, err := f.program.ClaimTokens(f.ctx, tt.params(f))
			assert.ErrorIs(t, err, tt.want)

			record, err := f.program.GetPurchaseRecord(f.ctx, testSale, f.purchaser)
			require.NoError(t, err)
			assert.False(t, record.Claimed)

			balance, err := f.program.TokenBalance(f.ctx, f.purchaser, f.mint)
			require.NoError(t, err)
			assert.Zero(t, balance)
		})
	}
}

func TestSummary_Phases(t *testing.T) {
	f := newFixture(t)
	params := f.initParams(testSale)
	params.StartTime = testStart + 10
	params.EndTime = testStart + 20
	f.initialize(t, params)

	for _, tc := range []struct {
		now  int64
		want domain.Phase
	}{
		{testStart, domain.PhaseUpcoming},
		{testStart + 10, domain.PhaseActive},
		{testStart + 19, domain.PhaseActive},
		{testStart + 20, domain.PhaseEnded},
	} {
		f.clock.Set(tc.now)
		summary, err := f.program.Summary(f.ctx, testSale)
		require.NoError(t, err)
		assert.Equal(t, tc.want, summary.Phase, fmt.Sprintf("now=%d", tc.now))
		assert.Equal(t, tc.now, summary.Now)
	}
}

func TestSummary_Progress(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, f.initParams(testSale))
	f.fundSale(t, 40)
	f.purchase(t, sol)

	summary, err := f.program.Summary(f.ctx, testSale)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), summary.ProgressBps)
	assert.False(t, summary.SoftCapReached)
	assert.Equal(t, vaultRent+sol, summary.VaultLamports)
	assert.Equal(t, sol, summary.Withdrawable)
	assert.Equal(t, uint64(40), summary.SaleTokenBalance)
}

func TestEvents_SequencedWithDeterministicIDs(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, f.initParams(testSale))
	f.fundSale(t, 10)
	f.purchase(t, sol)
	f.clock.Set(testEnd)
	_, err := f.program.WithdrawFunds(f.ctx, WithdrawParams{SaleID: testSale, Caller: f.authority, Treasury: f.treasury})
	require.NoError(t, err)
	_, err = f.program.ClaimTokens(f.ctx, f.claimParams(f.purchaser))
	require.NoError(t, err)

	events := f.events(t)
	require.Len(t, events, 4)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
		assert.Equal(t, idhash.ComputeEventIDFor(e), e.EventID)
	}
	assert.Equal(t, []domain.EventKind{
		domain.EventInitialize, domain.EventPurchase, domain.EventWithdraw, domain.EventClaim,
	}, f.publisher.kinds())
}

func TestEvents_SaleNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.program.Events(f.ctx, testSale)
	assert.ErrorIs(t, err, ErrSaleNotFound)
}

func TestFundSale_OnlyAuthority(t *testing.T) {
	f := newFixture(t)
	f.initialize(t, f.initParams(testSale))
	_, err := f.program.MintTo(f.ctx, f.mint, f.purchaser, 10)
	require.NoError(t, err)

	err = f.program.FundSale(f.ctx, testSale, f.purchaser, 10)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = f.program.FundSale(f.ctx, testSale, f.authority, 10)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestFaucet_RejectsZero(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.program.Airdrop(f.ctx, f.purchaser, 0), ErrInvalidAmount)

	_, err := f.program.MintTo(f.ctx, f.mint, f.purchaser, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
