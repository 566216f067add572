// Package verification audits the presale ledger. It replays each sale's
// event log and compares the replayed totals with the stored accounts.
package verification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"solana-presale/internal/domain"
	"solana-presale/internal/idhash"
	"solana-presale/internal/presale"
	"solana-presale/internal/solana"
	"solana-presale/internal/storage"
)

// scanBatchSize is the page size used when walking the whole event log.
const scanBatchSize = 500

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      // field name, prefixed with the record it belongs to
	Expected interface{} // replayed value
	Actual   interface{} // stored value
}

// String formats the divergence for logs and reports.
func (d FieldDivergence) String() string {
	return fmt.Sprintf("%s: expected %v, got %v", d.Field, d.Expected, d.Actual)
}

// VerificationResult contains the result of auditing a single sale.
type VerificationResult struct {
	SaleID      string
	SaleAddress solana.PublicKey
	Match       bool              // true if no divergences were found
	Divergences []FieldDivergence // list of divergent fields
	Events      int               // events replayed
	Purchasers  int               // distinct purchasers seen in the log

	// VaultSurplus is lamports in the vault beyond what the log accounts
	// for, such as direct transfers to the vault address. Not a divergence.
	VaultSurplus uint64
}

// VerificationReport contains results for a full ledger audit.
type VerificationReport struct {
	TotalSales     int
	MatchedSales   int
	DivergentSales int
	Results        []VerificationResult
}

// Verifier audits presale ledger state.
type Verifier interface {
	// VerifySale replays one sale's events and compares them with its accounts.
	// Returns presale.ErrSaleNotFound if the sale does not exist.
	VerifySale(ctx context.Context, saleID string) (*VerificationResult, error)

	// VerifyAll audits every sale that has an INITIALIZE event, in log order.
	VerifyAll(ctx context.Context) (*VerificationReport, error)
}

// LedgerVerifier implements Verifier against a storage.Ledger.
type LedgerVerifier struct {
	ledger    storage.Ledger
	programID solana.PublicKey
}

// NewLedgerVerifier creates a verifier for sales owned by programID.
func NewLedgerVerifier(ledger storage.Ledger, programID solana.PublicKey) *LedgerVerifier {
	return &LedgerVerifier{ledger: ledger, programID: programID}
}

// replayed is the sale state rebuilt from the event log.
type replayed struct {
	initialized int
	rentReserve uint64
	raised      uint64
	withdrawn   uint64
	spent       map[solana.PublicKey]uint64
	claims      map[solana.PublicKey]int
	claimed     map[solana.PublicKey]uint64
}

// VerifySale audits one sale inside a single read-only ledger transaction.
func (v *LedgerVerifier) VerifySale(ctx context.Context, saleID string) (*VerificationResult, error) {
	addrs, err := presale.DeriveAddresses(v.programID, saleID)
	if err != nil {
		return nil, err
	}

	result := &VerificationResult{SaleID: saleID, SaleAddress: addrs.Sale}
	err = v.ledger.View(ctx, func(tx storage.Tx) error {
		sale, err := tx.GetSale(ctx, addrs.Sale)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: %q", presale.ErrSaleNotFound, saleID)
		}
		if err != nil {
			return fmt.Errorf("load sale: %w", err)
		}
		vault, err := tx.GetVault(ctx, sale.Vault)
		if err != nil {
			return fmt.Errorf("load vault: %w", err)
		}
		events, err := tx.ListEventsBySale(ctx, sale.Address)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}

		state, divs := replayEvents(events)
		saleDivs, surplus := compareSale(sale, vault, state)
		divs = append(divs, saleDivs...)
		result.VaultSurplus = surplus

		purchasers := sortedKeys(state.spent)
		for _, purchaser := range purchasers {
			recordDivs, err := v.comparePurchaser(ctx, tx, sale, purchaser, state)
			if err != nil {
				return err
			}
			divs = append(divs, recordDivs...)
		}

		// Claims without a purchase cannot be matched to a record.
		for _, claimant := range sortedKeys(state.claimed) {
			if _, ok := state.spent[claimant]; !ok {
				divs = append(divs, FieldDivergence{
					Field:    "claim[" + claimant.String() + "]",
					Expected: "purchase before claim",
					Actual:   "no purchase",
				})
			}
		}

		result.Divergences = divs
		result.Events = len(events)
		result.Purchasers = len(purchasers)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Match = len(result.Divergences) == 0
	return result, nil
}

// VerifyAll walks the event log for INITIALIZE events and audits each sale.
func (v *LedgerVerifier) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	var saleIDs []string
	var after int64

	for {
		var batch []*domain.LedgerEvent
		err := v.ledger.View(ctx, func(tx storage.Tx) error {
			var err error
			batch, err = tx.ListEventsAfter(ctx, after, scanBatchSize)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("scan events after %d: %w", after, err)
		}
		for _, e := range batch {
			if e.Kind == domain.EventInitialize {
				saleIDs = append(saleIDs, e.SaleID)
			}
			after = e.Sequence
		}
		if len(batch) < scanBatchSize {
			break
		}
	}

	report := &VerificationReport{}
	for _, saleID := range saleIDs {
		result, err := v.VerifySale(ctx, saleID)
		if err != nil {
			return nil, fmt.Errorf("verify sale %q: %w", saleID, err)
		}
		report.TotalSales++
		if result.Match {
			report.MatchedSales++
		} else {
			report.DivergentSales++
		}
		report.Results = append(report.Results, *result)
	}
	return report, nil
}

// replayEvents folds a sale's events into totals and checks the log itself:
// event IDs, sequence order, and the running TotalRaised of each event.
func replayEvents(events []*domain.LedgerEvent) (*replayed, []FieldDivergence) {
	state := &replayed{
		spent:   make(map[solana.PublicKey]uint64),
		claims:  make(map[solana.PublicKey]int),
		claimed: make(map[solana.PublicKey]uint64),
	}
	var divs []FieldDivergence
	var lastSeq int64

	for i, e := range events {
		prefix := fmt.Sprintf("events[%d]", i)

		if want := idhash.ComputeEventIDFor(e); e.EventID != want {
			divs = append(divs, FieldDivergence{Field: prefix + ".EventID", Expected: want, Actual: e.EventID})
		}
		if e.Sequence <= lastSeq {
			divs = append(divs, FieldDivergence{
				Field:    prefix + ".Sequence",
				Expected: fmt.Sprintf("> %d", lastSeq),
				Actual:   e.Sequence,
			})
		}
		lastSeq = e.Sequence

		if i == 0 && e.Kind != domain.EventInitialize {
			divs = append(divs, FieldDivergence{Field: prefix + ".Kind", Expected: domain.EventInitialize, Actual: e.Kind})
		}

		switch e.Kind {
		case domain.EventInitialize:
			state.initialized++
			state.rentReserve = e.Lamports
		case domain.EventPurchase:
			state.raised += e.Lamports
			state.spent[e.Actor] += e.Lamports
		case domain.EventWithdraw:
			state.withdrawn += e.Lamports
		case domain.EventClaim:
			state.claims[e.Actor]++
			state.claimed[e.Actor] += e.Tokens
		default:
			divs = append(divs, FieldDivergence{Field: prefix + ".Kind", Expected: "known kind", Actual: e.Kind})
			continue
		}

		if e.Kind != domain.EventInitialize && e.TotalRaised != state.raised {
			divs = append(divs, FieldDivergence{Field: prefix + ".TotalRaised", Expected: state.raised, Actual: e.TotalRaised})
		}
	}

	if state.initialized != 1 {
		divs = append(divs, FieldDivergence{Field: "events.INITIALIZE", Expected: 1, Actual: state.initialized})
	}
	return state, divs
}

// compareSale checks the sale and vault accounts against the replayed totals.
// The vault may hold more than the log explains; the excess is returned as
// surplus. Holding less is a divergence.
func compareSale(sale *domain.Sale, vault *domain.Vault, state *replayed) ([]FieldDivergence, uint64) {
	var (
		divs    []FieldDivergence
		surplus uint64
	)

	if sale.TotalRaised != state.raised {
		divs = append(divs, FieldDivergence{Field: "sale.TotalRaised", Expected: state.raised, Actual: sale.TotalRaised})
	}
	if sale.TotalRaised > sale.HardCapLamports {
		divs = append(divs, FieldDivergence{
			Field:    "sale.TotalRaised",
			Expected: fmt.Sprintf("<= %d", sale.HardCapLamports),
			Actual:   sale.TotalRaised,
		})
	}
	if vault.RentReserve != state.rentReserve {
		divs = append(divs, FieldDivergence{Field: "vault.RentReserve", Expected: state.rentReserve, Actual: vault.RentReserve})
	}

	// reserve + raised - withdrawn, computed without wrapping.
	inflow := state.rentReserve + state.raised
	if inflow < state.withdrawn {
		divs = append(divs, FieldDivergence{
			Field:    "vault.Lamports",
			Expected: fmt.Sprintf("withdrawals <= %d", inflow),
			Actual:   state.withdrawn,
		})
	} else if want := inflow - state.withdrawn; vault.Lamports < want {
		divs = append(divs, FieldDivergence{
			Field:    "vault.Lamports",
			Expected: fmt.Sprintf(">= %d", want),
			Actual:   vault.Lamports,
		})
	} else {
		surplus = vault.Lamports - want
	}
	return divs, surplus
}

// comparePurchaser checks one purchase record against the replayed
// contributions and claims of its purchaser.
func (v *LedgerVerifier) comparePurchaser(ctx context.Context, tx storage.Tx, sale *domain.Sale, purchaser solana.PublicKey, state *replayed) ([]FieldDivergence, error) {
	prefix := "record[" + purchaser.String() + "]"

	addr, _, err := presale.PurchaseRecordAddress(v.programID, sale.SaleID, purchaser)
	if err != nil {
		return nil, err
	}
	record, err := tx.GetPurchaseRecord(ctx, addr)
	if errors.Is(err, storage.ErrNotFound) {
		return []FieldDivergence{{Field: prefix, Expected: "present", Actual: "missing"}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load purchase record: %w", err)
	}

	var divs []FieldDivergence
	if record.AmountSpent != state.spent[purchaser] {
		divs = append(divs, FieldDivergence{Field: prefix + ".AmountSpent", Expected: state.spent[purchaser], Actual: record.AmountSpent})
	}

	claims := state.claims[purchaser]
	if claims > 1 {
		divs = append(divs, FieldDivergence{Field: prefix + ".claims", Expected: "at most 1", Actual: claims})
	}
	if record.Claimed != (claims > 0) {
		divs = append(divs, FieldDivergence{Field: prefix + ".Claimed", Expected: claims > 0, Actual: record.Claimed})
	}
	if claims > 0 {
		if owed := record.TokensOwed(sale.PriceLamports); state.claimed[purchaser] != owed {
			divs = append(divs, FieldDivergence{Field: prefix + ".tokens", Expected: owed, Actual: state.claimed[purchaser]})
		}
	}
	return divs, nil
}

func sortedKeys[V any](m map[solana.PublicKey]V) []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
	return keys
}

// Compile-time interface check.
var _ Verifier = (*LedgerVerifier)(nil)
