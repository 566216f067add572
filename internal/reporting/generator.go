package reporting

import (
	"bytes"
	"context"
	"fmt"
	"math/bits"
	"sort"
	"time"

	"solana-presale/internal/domain"
	"solana-presale/internal/presale"
	"solana-presale/internal/solana"
	"solana-presale/internal/verification"
)

// Generator produces sale reports.
type Generator struct {
	program  *presale.Program
	verifier verification.Verifier // optional
	now      func() time.Time      // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. verifier may be nil.
func NewGenerator(program *presale.Program, verifier verification.Verifier) *Generator {
	return &Generator{
		program:  program,
		verifier: verifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces the report of saleID.
func (g *Generator) Generate(ctx context.Context, saleID string) (*Report, error) {
	summary, err := g.program.Summary(ctx, saleID)
	if err != nil {
		return nil, err
	}

	events, err := g.program.Events(ctx, saleID)
	if err != nil {
		return nil, err
	}

	activity, purchases := foldEvents(events)

	purchasers, err := g.generatePurchasers(ctx, summary.Sale, purchases)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt: g.now(),
		Summary:     summary,
		Purchasers:  purchasers,
		Activity:    activity,
	}

	if g.verifier != nil {
		audit, err := g.verifier.VerifySale(ctx, saleID)
		if err != nil {
			return nil, fmt.Errorf("audit sale: %w", err)
		}
		report.Audit = audit
	}

	return report, nil
}

// foldEvents totals the event log and counts purchases per purchaser.
func foldEvents(events []*domain.LedgerEvent) (ActivitySection, map[solana.PublicKey]int) {
	var a ActivitySection
	purchases := make(map[solana.PublicKey]int)

	for _, e := range events {
		switch e.Kind {
		case domain.EventPurchase:
			a.Purchases++
			a.LamportsPurchased += e.Lamports
			if a.FirstPurchaseAt == 0 {
				a.FirstPurchaseAt = e.Timestamp
			}
			a.LastPurchaseAt = e.Timestamp
			purchases[e.Actor]++
		case domain.EventWithdraw:
			a.Withdrawals++
			a.LamportsWithdrawn += e.Lamports
		case domain.EventClaim:
			a.Claims++
			a.TokensClaimed += e.Tokens
		}
	}
	return a, purchases
}

func (g *Generator) generatePurchasers(ctx context.Context, sale *domain.Sale, purchases map[solana.PublicKey]int) ([]PurchaserRow, error) {
	rows := make([]PurchaserRow, 0, len(purchases))
	for purchaser, count := range purchases {
		record, err := g.program.GetPurchaseRecord(ctx, sale.SaleID, purchaser)
		if err != nil {
			return nil, fmt.Errorf("load record of %s: %w", purchaser, err)
		}
		rows = append(rows, PurchaserRow{
			Purchaser:   purchaser,
			Purchases:   count,
			AmountSpent: record.AmountSpent,
			TokensOwed:  record.TokensOwed(sale.PriceLamports),
			Claimed:     record.Claimed,
			ShareBps:    shareBps(record.AmountSpent, sale.TotalRaised),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].AmountSpent != rows[j].AmountSpent {
			return rows[i].AmountSpent > rows[j].AmountSpent
		}
		return bytes.Compare(rows[i].Purchaser[:], rows[j].Purchaser[:]) < 0
	})
	return rows, nil
}

// shareBps returns part as basis points of total, rounded down.
func shareBps(part, total uint64) uint64 {
	if total == 0 {
		return 0
	}
	if part >= total {
		return 10000
	}
	hi, lo := bits.Mul64(part, 10000)
	quo, _ := bits.Div64(hi, lo, total)
	return quo
}
