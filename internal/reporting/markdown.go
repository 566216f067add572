package reporting

import (
	"fmt"
	"strings"
	"time"

	"solana-presale/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	sale := r.Summary.Sale

	// Header
	name := sale.SaleID
	if name == "" {
		name = "(singleton)"
	}
	sb.WriteString(fmt.Sprintf("# Presale Report: %s\n\n", name))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Phase: %s | Purchasers: %d | Claimed: %d\n\n", r.Phase(), len(r.Purchasers), r.ClaimedCount()))

	// Sale
	sb.WriteString("## Sale\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Address | %s |\n", sale.Address))
	sb.WriteString(fmt.Sprintf("| Authority | %s |\n", sale.Authority))
	sb.WriteString(fmt.Sprintf("| Treasury | %s |\n", sale.Treasury))
	sb.WriteString(fmt.Sprintf("| Token Mint | %s |\n", sale.TokenMint))
	sb.WriteString(fmt.Sprintf("| Price (SOL/token) | %s |\n", domain.FormatSOL(sale.PriceLamports)))
	sb.WriteString(fmt.Sprintf("| Soft Cap (SOL) | %s |\n", domain.FormatSOL(sale.SoftCapLamports)))
	sb.WriteString(fmt.Sprintf("| Hard Cap (SOL) | %s |\n", domain.FormatSOL(sale.HardCapLamports)))
	sb.WriteString(fmt.Sprintf("| Total Raised (SOL) | %s |\n", domain.FormatSOL(sale.TotalRaised)))
	sb.WriteString(fmt.Sprintf("| Progress | %s%% |\n", formatBps(r.Summary.ProgressBps)))
	sb.WriteString(fmt.Sprintf("| Soft Cap Reached | %t |\n", r.Summary.SoftCapReached))
	sb.WriteString(fmt.Sprintf("| Start | %s |\n", time.Unix(sale.StartTime, 0).UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| End | %s |\n", time.Unix(sale.EndTime, 0).UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("| Vault Balance (SOL) | %s |\n", domain.FormatSOL(r.Summary.VaultLamports)))
	sb.WriteString(fmt.Sprintf("| Withdrawable (SOL) | %s |\n", domain.FormatSOL(r.Summary.Withdrawable)))
	sb.WriteString(fmt.Sprintf("| Sale Token Balance | %d |\n", r.Summary.SaleTokenBalance))
	sb.WriteString("\n")

	// Activity
	a := r.Activity
	sb.WriteString("## Activity\n\n")
	sb.WriteString("| Operation | Count | Amount |\n")
	sb.WriteString("|-----------|-------|--------|\n")
	sb.WriteString(fmt.Sprintf("| Purchase | %d | %s SOL |\n", a.Purchases, domain.FormatSOL(a.LamportsPurchased)))
	sb.WriteString(fmt.Sprintf("| Withdraw | %d | %s SOL |\n", a.Withdrawals, domain.FormatSOL(a.LamportsWithdrawn)))
	sb.WriteString(fmt.Sprintf("| Claim | %d | %d tokens |\n", a.Claims, a.TokensClaimed))
	sb.WriteString("\n")

	// Purchasers
	sb.WriteString("## Purchasers\n\n")
	if len(r.Purchasers) > 0 {
		sb.WriteString("| Purchaser | Purchases | Spent (SOL) | Share | Tokens | Claimed |\n")
		sb.WriteString("|-----------|-----------|-------------|-------|--------|---------|\n")
		for _, p := range r.Purchasers {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s%% | %d | %t |\n",
				p.Purchaser, p.Purchases, domain.FormatSOL(p.AmountSpent),
				formatBps(p.ShareBps), p.TokensOwed, p.Claimed))
		}
	} else {
		sb.WriteString("No purchases.\n")
	}
	sb.WriteString("\n")

	// Audit
	if r.Audit != nil {
		sb.WriteString("## Ledger Audit\n\n")
		if r.Audit.Match {
			sb.WriteString(fmt.Sprintf("**Ledger matches its event log** (%d events replayed).\n\n", r.Audit.Events))
			if r.Audit.VaultSurplus > 0 {
				sb.WriteString(fmt.Sprintf("Vault holds %d lamports beyond the log.\n\n", r.Audit.VaultSurplus))
			}
		} else {
			sb.WriteString(fmt.Sprintf("**%d divergences found.**\n\n", len(r.Audit.Divergences)))
			for _, d := range r.Audit.Divergences {
				sb.WriteString(fmt.Sprintf("- %s\n", d))
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// formatBps renders basis points as a percentage with two decimals.
func formatBps(bps uint64) string {
	return fmt.Sprintf("%d.%02d", bps/100, bps%100)
}
