package api

import (
	"fmt"

	"solana-presale/internal/domain"
	"solana-presale/internal/presale"
	"solana-presale/internal/solana"
	"solana-presale/internal/verification"
)

// InitializeRequest is the body of POST /v1/sales.
type InitializeRequest struct {
	SaleID          string           `json:"sale_id"`
	PriceLamports   uint64           `json:"price_lamports"`
	SoftCapLamports uint64           `json:"soft_cap_lamports"`
	HardCapLamports uint64           `json:"hard_cap_lamports"`
	StartTime       int64            `json:"start_time"`
	EndTime         int64            `json:"end_time"`
	TokenMint       solana.PublicKey `json:"token_mint"`
	Treasury        solana.PublicKey `json:"treasury"`
	Caller          solana.PublicKey `json:"caller"`
}

// PurchaseRequest is the body of POST /v1/sales/{id}/purchase.
type PurchaseRequest struct {
	Purchaser      solana.PublicKey `json:"purchaser"`
	AmountLamports uint64           `json:"amount_lamports"`
	Caller         solana.PublicKey `json:"caller"`
}

// WithdrawRequest is the body of POST /v1/sales/{id}/withdraw.
type WithdrawRequest struct {
	Treasury solana.PublicKey `json:"treasury"`
	Caller   solana.PublicKey `json:"caller"`
}

// WithdrawResponse reports the lamports moved to the treasury.
type WithdrawResponse struct {
	WithdrawnLamports uint64 `json:"withdrawn_lamports"`
}

// ClaimRequest is the body of POST /v1/sales/{id}/claim.
type ClaimRequest struct {
	Purchaser             solana.PublicKey `json:"purchaser"`
	TokenMint             solana.PublicKey `json:"token_mint"`
	PurchaserTokenAccount solana.PublicKey `json:"purchaser_token_account"`
	Caller                solana.PublicKey `json:"caller"`
}

// ClaimResponse reports the tokens paid out.
type ClaimResponse struct {
	Tokens uint64 `json:"tokens"`
}

// AirdropRequest is the body of POST /v1/faucet/airdrop.
type AirdropRequest struct {
	Address  solana.PublicKey `json:"address"`
	Lamports uint64           `json:"lamports"`
}

// MintRequest is the body of POST /v1/faucet/mint.
type MintRequest struct {
	Mint   solana.PublicKey `json:"mint"`
	Owner  solana.PublicKey `json:"owner"`
	Amount uint64           `json:"amount"`
}

// FundRequest is the body of POST /v1/sales/{id}/fund.
type FundRequest struct {
	Amount uint64           `json:"amount"`
	Caller solana.PublicKey `json:"caller"`
}

// SaleResponse is the JSON form of a sale.
type SaleResponse struct {
	SaleID           string           `json:"sale_id"`
	Address          solana.PublicKey `json:"address"`
	Authority        solana.PublicKey `json:"authority"`
	Treasury         solana.PublicKey `json:"treasury"`
	Vault            solana.PublicKey `json:"vault"`
	TokenMint        solana.PublicKey `json:"token_mint"`
	SaleTokenAccount solana.PublicKey `json:"sale_token_account"`
	PriceLamports    uint64           `json:"price_lamports"`
	SoftCapLamports  uint64           `json:"soft_cap_lamports"`
	HardCapLamports  uint64           `json:"hard_cap_lamports"`
	TotalRaised      uint64           `json:"total_raised"`
	StartTime        int64            `json:"start_time"`
	EndTime          int64            `json:"end_time"`
	IsActive         bool             `json:"is_active"`
}

// SummaryResponse is the body of GET /v1/sales/{id}.
type SummaryResponse struct {
	Sale             SaleResponse `json:"sale"`
	Now              int64        `json:"now"`
	Phase            domain.Phase `json:"phase"`
	ProgressBps      uint64       `json:"progress_bps"`
	SoftCapReached   bool         `json:"soft_cap_reached"`
	VaultLamports    uint64       `json:"vault_lamports"`
	Withdrawable     uint64       `json:"withdrawable_lamports"`
	SaleTokenBalance uint64       `json:"sale_token_balance"`
}

// PurchaseRecordResponse is the JSON form of a purchase record.
type PurchaseRecordResponse struct {
	Address     solana.PublicKey `json:"address"`
	SaleAddress solana.PublicKey `json:"sale_address"`
	Purchaser   solana.PublicKey `json:"purchaser"`
	AmountSpent uint64           `json:"amount_spent"`
	Claimed     bool             `json:"claimed"`
}

// EventResponse is the JSON form of a ledger event, used by the event log
// and the WebSocket stream.
type EventResponse struct {
	EventID     string           `json:"event_id"`
	Sequence    int64            `json:"sequence"`
	Kind        domain.EventKind `json:"kind"`
	SaleID      string           `json:"sale_id"`
	SaleAddress solana.PublicKey `json:"sale_address"`
	Actor       solana.PublicKey `json:"actor"`
	Lamports    uint64           `json:"lamports"`
	Tokens      uint64           `json:"tokens"`
	TotalRaised uint64           `json:"total_raised"`
	Timestamp   int64            `json:"timestamp"`
}

// AccountResponse is the body of GET /v1/accounts/{address}.
type AccountResponse struct {
	Address  solana.PublicKey  `json:"address"`
	Lamports uint64            `json:"lamports"`
	Mint     *solana.PublicKey `json:"mint,omitempty"`
	Tokens   *uint64           `json:"tokens,omitempty"`
}

// DivergenceResponse is one field that disagrees with the replayed event log.
type DivergenceResponse struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// AuditResponse is the body of GET /v1/sales/{id}/audit.
type AuditResponse struct {
	SaleID       string               `json:"sale_id"`
	SaleAddress  solana.PublicKey     `json:"sale_address"`
	Match        bool                 `json:"match"`
	Events       int                  `json:"events"`
	Purchasers   int                  `json:"purchasers"`
	VaultSurplus uint64               `json:"vault_surplus_lamports"`
	Divergences  []DivergenceResponse `json:"divergences"`
}

// AuditReportResponse is the body of GET /v1/audit.
type AuditReportResponse struct {
	TotalSales     int             `json:"total_sales"`
	MatchedSales   int             `json:"matched_sales"`
	DivergentSales int             `json:"divergent_sales"`
	Results        []AuditResponse `json:"results"`
}

func newSaleResponse(s *domain.Sale) SaleResponse {
	return SaleResponse{
		SaleID:           s.SaleID,
		Address:          s.Address,
		Authority:        s.Authority,
		Treasury:         s.Treasury,
		Vault:            s.Vault,
		TokenMint:        s.TokenMint,
		SaleTokenAccount: s.SaleTokenAccount,
		PriceLamports:    s.PriceLamports,
		SoftCapLamports:  s.SoftCapLamports,
		HardCapLamports:  s.HardCapLamports,
		TotalRaised:      s.TotalRaised,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		IsActive:         s.IsActive,
	}
}

func newSummaryResponse(s *presale.SaleSummary) SummaryResponse {
	return SummaryResponse{
		Sale:             newSaleResponse(s.Sale),
		Now:              s.Now,
		Phase:            s.Phase,
		ProgressBps:      s.ProgressBps,
		SoftCapReached:   s.SoftCapReached,
		VaultLamports:    s.VaultLamports,
		Withdrawable:     s.Withdrawable,
		SaleTokenBalance: s.SaleTokenBalance,
	}
}

func newPurchaseRecordResponse(r *domain.PurchaseRecord) PurchaseRecordResponse {
	return PurchaseRecordResponse{
		Address:     r.Address,
		SaleAddress: r.SaleAddress,
		Purchaser:   r.Purchaser,
		AmountSpent: r.AmountSpent,
		Claimed:     r.Claimed,
	}
}

func newEventResponse(e *domain.LedgerEvent) EventResponse {
	return EventResponse{
		EventID:     e.EventID,
		Sequence:    e.Sequence,
		Kind:        e.Kind,
		SaleID:      e.SaleID,
		SaleAddress: e.SaleAddress,
		Actor:       e.Actor,
		Lamports:    e.Lamports,
		Tokens:      e.Tokens,
		TotalRaised: e.TotalRaised,
		Timestamp:   e.Timestamp,
	}
}

func newAuditResponse(r *verification.VerificationResult) AuditResponse {
	divs := make([]DivergenceResponse, len(r.Divergences))
	for i, d := range r.Divergences {
		divs[i] = DivergenceResponse{
			Field:    d.Field,
			Expected: fmt.Sprint(d.Expected),
			Actual:   fmt.Sprint(d.Actual),
		}
	}
	return AuditResponse{
		SaleID:       r.SaleID,
		SaleAddress:  r.SaleAddress,
		Match:        r.Match,
		Events:       r.Events,
		Purchasers:   r.Purchasers,
		VaultSurplus: r.VaultSurplus,
		Divergences:  divs,
	}
}
