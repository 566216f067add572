package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the purchaser table as CSV string. Amounts are lamports.
func RenderCSV(rows []PurchaserRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("purchaser,purchases,amount_spent_lamports,share_bps,tokens_owed,claimed\n")

	// Rows
	for _, p := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%d,%d,%t\n",
			p.Purchaser,
			p.Purchases,
			p.AmountSpent,
			p.ShareBps,
			p.TokensOwed,
			p.Claimed,
		))
	}

	return sb.String()
}
