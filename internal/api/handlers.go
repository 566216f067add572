package api

import (
	"net/http"

	"solana-presale/internal/presale"
	"solana-presale/internal/reporting"
	"solana-presale/internal/solana"
)

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	authority, ok := s.caller(w, r, req.Caller)
	if !ok {
		return
	}
	if req.SaleID == SingletonSaleID {
		req.SaleID = ""
	}

	sale, err := s.program.Initialize(r.Context(), presale.InitializeParams{
		SaleID:          req.SaleID,
		PriceLamports:   req.PriceLamports,
		SoftCapLamports: req.SoftCapLamports,
		HardCapLamports: req.HardCapLamports,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		TokenMint:       req.TokenMint,
		Authority:       authority,
		Treasury:        req.Treasury,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSaleResponse(sale))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.program.Summary(r.Context(), saleID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(summary))
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	who, ok := s.caller(w, r, req.Caller)
	if !ok {
		return
	}

	record, err := s.program.Purchase(r.Context(), presale.PurchaseParams{
		SaleID:         saleID(r),
		Caller:         who,
		Purchaser:      req.Purchaser,
		AmountLamports: req.AmountLamports,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPurchaseRecordResponse(record))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	who, ok := s.caller(w, r, req.Caller)
	if !ok {
		return
	}

	withdrawn, err := s.program.WithdrawFunds(r.Context(), presale.WithdrawParams{
		SaleID:   saleID(r),
		Caller:   who,
		Treasury: req.Treasury,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WithdrawResponse{WithdrawnLamports: withdrawn})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	who, ok := s.caller(w, r, req.Caller)
	if !ok {
		return
	}

	tokens, err := s.program.ClaimTokens(r.Context(), presale.ClaimParams{
		SaleID:                saleID(r),
		Caller:                who,
		Purchaser:             req.Purchaser,
		TokenMint:             req.TokenMint,
		PurchaserTokenAccount: req.PurchaserTokenAccount,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ClaimResponse{Tokens: tokens})
}

func (s *Server) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	purchaser, err := solana.ParsePublicKey(r.PathValue("purchaser"))
	if err != nil {
		writeBadRequest(w, "invalid purchaser: "+err.Error())
		return
	}

	record, err := s.program.GetPurchaseRecord(r.Context(), saleID(r), purchaser)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPurchaseRecordResponse(record))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.program.Events(r.Context(), saleID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := make([]EventResponse, len(events))
	for i, e := range events {
		resp[i] = newEventResponse(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	address, err := solana.ParsePublicKey(r.PathValue("address"))
	if err != nil {
		writeBadRequest(w, "invalid address: "+err.Error())
		return
	}

	lamports, err := s.program.Balance(r.Context(), address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := AccountResponse{Address: address, Lamports: lamports}

	if m := r.URL.Query().Get("mint"); m != "" {
		mint, err := solana.ParsePublicKey(m)
		if err != nil {
			writeBadRequest(w, "invalid mint: "+err.Error())
			return
		}
		tokens, err := s.program.TokenBalance(r.Context(), address, mint)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.Mint = &mint
		resp.Tokens = &tokens
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAirdrop(w http.ResponseWriter, r *http.Request) {
	var req AirdropRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if err := s.program.Airdrop(r.Context(), req.Address, req.Lamports); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	account, err := s.program.MintTo(r.Context(), req.Mint, req.Owner, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{
		Address: account.Address,
		Mint:    &account.Mint,
		Tokens:  &account.Amount,
	})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	var req FundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	who, ok := s.caller(w, r, req.Caller)
	if !ok {
		return
	}
	if err := s.program.FundSale(r.Context(), saleID(r), who, req.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuditSale(w http.ResponseWriter, r *http.Request) {
	result, err := s.verifier.VerifySale(r.Context(), saleID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !result.Match {
		s.logger.Printf("Audit of sale %q found %d divergences", result.SaleID, len(result.Divergences))
	}
	writeJSON(w, http.StatusOK, newAuditResponse(result))
}

func (s *Server) handleAuditAll(w http.ResponseWriter, r *http.Request) {
	report, err := s.verifier.VerifyAll(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := AuditReportResponse{
		TotalSales:     report.TotalSales,
		MatchedSales:   report.MatchedSales,
		DivergentSales: report.DivergentSales,
		Results:        make([]AuditResponse, len(report.Results)),
	}
	for i := range report.Results {
		resp.Results[i] = newAuditResponse(&report.Results[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReport renders a sale report. The format query parameter selects
// markdown (default) or csv, which carries only the purchaser table.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "markdown" && format != "csv" {
		writeBadRequest(w, "format must be markdown or csv")
		return
	}

	report, err := s.reports.Generate(r.Context(), saleID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if format == "csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Write([]byte(reporting.RenderCSV(report.Purchasers)))
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(reporting.RenderMarkdown(report)))
}
