// Package api exposes the presale program over HTTP and streams committed
// ledger events over WebSocket.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"solana-presale/internal/auth"
	"solana-presale/internal/observability"
	"solana-presale/internal/presale"
	"solana-presale/internal/reporting"
	"solana-presale/internal/solana"
	"solana-presale/internal/verification"
)

// CallerHeader carries the already-authenticated caller identity. It is
// ignored when the server verifies bearer tokens.
const CallerHeader = "X-Presale-Caller"

// RequestIDHeader carries the request correlation ID in both directions.
const RequestIDHeader = "X-Request-ID"

// SingletonSaleID is the path segment that selects the sale with the empty identifier.
const SingletonSaleID = "_"

// Server serves the presale HTTP API.
type Server struct {
	program  *presale.Program
	hub      *Hub
	verifier verification.Verifier
	reports  *reporting.Generator
	secret   []byte
	faucet   bool
	logger   *log.Logger
}

// Options contains configuration for creating a Server.
type Options struct {
	Program  *presale.Program
	Hub      *Hub                  // Default: NewHub(nil)
	Verifier verification.Verifier // enables the audit endpoints when set

	// TokenSecret, when set, requires an HS256 bearer token on every
	// caller-bearing request and takes the caller from its claims.
	TokenSecret []byte

	// EnableFaucet exposes airdrop, mint and sale funding endpoints.
	EnableFaucet bool
	Logger       *log.Logger
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	hub := opts.Hub
	if hub == nil {
		hub = NewHub(logger)
	}

	return &Server{
		program:  opts.Program,
		hub:      hub,
		verifier: opts.Verifier,
		reports:  reporting.NewGenerator(opts.Program, opts.Verifier),
		secret:   opts.TokenSecret,
		faucet:   opts.EnableFaucet,
		logger:   logger,
	}
}

// Handler returns the HTTP handler with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "GET /health", s.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())

	s.handle(mux, "POST /v1/sales", s.handleInitialize)
	s.handle(mux, "GET /v1/sales/{id}", s.handleSummary)
	s.handle(mux, "POST /v1/sales/{id}/purchase", s.handlePurchase)
	s.handle(mux, "POST /v1/sales/{id}/withdraw", s.handleWithdraw)
	s.handle(mux, "POST /v1/sales/{id}/claim", s.handleClaim)
	s.handle(mux, "GET /v1/sales/{id}/purchases/{purchaser}", s.handleGetPurchase)
	s.handle(mux, "GET /v1/sales/{id}/events", s.handleEvents)
	s.handle(mux, "GET /v1/sales/{id}/report", s.handleReport)
	s.handle(mux, "GET /v1/accounts/{address}", s.handleAccount)
	mux.HandleFunc("GET /v1/events/ws", s.hub.ServeWS)

	if s.verifier != nil {
		s.handle(mux, "GET /v1/audit", s.handleAuditAll)
		s.handle(mux, "GET /v1/sales/{id}/audit", s.handleAuditSale)
	}

	if s.faucet {
		s.handle(mux, "POST /v1/faucet/airdrop", s.handleAirdrop)
		s.handle(mux, "POST /v1/faucet/mint", s.handleMint)
		s.handle(mux, "POST /v1/sales/{id}/fund", s.handleFund)
	}

	return mux
}

// handle registers h under pattern, tagging each request with an ID and
// recording per-route request metrics.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		observability.RecordHTTPRequest(pattern, rec.status)
	})
}

type requestIDKey struct{}

// RequestID returns the correlation ID assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// saleID reads the {id} path segment.
func saleID(r *http.Request) string {
	id := r.PathValue("id")
	if id == SingletonSaleID {
		return ""
	}
	return id
}

// caller resolves the request's caller. With a token secret configured the
// bearer token is the only source; otherwise CallerHeader wins over the
// request body field. On failure the error response is already written.
func (s *Server) caller(w http.ResponseWriter, r *http.Request, fromBody solana.PublicKey) (solana.PublicKey, bool) {
	if len(s.secret) > 0 {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || token == "" {
			writeUnauthenticated(w, "missing bearer token")
			return solana.PublicKey{}, false
		}
		who, err := auth.CallerFromToken(token, s.secret)
		if err != nil {
			writeUnauthenticated(w, err.Error())
			return solana.PublicKey{}, false
		}
		return who, true
	}

	header := r.Header.Get(CallerHeader)
	if header == "" {
		return fromBody, true
	}
	who, err := solana.ParsePublicKey(header)
	if err != nil {
		writeBadRequest(w, "invalid caller: "+err.Error())
		return solana.PublicKey{}, false
	}
	return who, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Compile-time interface check.
var _ presale.Publisher = (*Hub)(nil)
