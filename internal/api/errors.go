package api

import (
	"net/http"

	"solana-presale/internal/presale"
)

// Error kinds produced by the transport itself.
const (
	kindBadRequest      = "BadRequest"
	kindUnauthenticated = "Unauthenticated"
	kindInternal        = "Internal"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// statusForKind maps presale error kinds to HTTP status codes.
var statusForKind = map[presale.Kind]int{
	presale.KindSaleNotFound:        http.StatusNotFound,
	presale.KindNoPurchaseRecord:    http.StatusNotFound,
	presale.KindUnauthorized:        http.StatusForbidden,
	presale.KindAlreadyInitialized:  http.StatusConflict,
	presale.KindAlreadyClaimed:      http.StatusConflict,
	presale.KindSaleInactive:        http.StatusConflict,
	presale.KindSaleNotStarted:      http.StatusConflict,
	presale.KindSaleEnded:           http.StatusConflict,
	presale.KindSaleNotEnded:        http.StatusConflict,
	presale.KindHardCapExceeded:     http.StatusUnprocessableEntity,
	presale.KindInsufficientFunds:   http.StatusUnprocessableEntity,
	presale.KindArithmeticOverflow:  http.StatusUnprocessableEntity,
	presale.KindInvalidAmount:       http.StatusBadRequest,
	presale.KindInvalidConfig:       http.StatusBadRequest,
	presale.KindInvalidSaleID:       http.StatusBadRequest,
	presale.KindInvalidTreasury:     http.StatusBadRequest,
	presale.KindMintMismatch:        http.StatusBadRequest,
	presale.KindInvalidTokenAccount: http.StatusBadRequest,
}

// writeError writes err as an ErrorBody. Errors that are not presale errors
// are logged and reported as internal without their message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := presale.KindOf(err)
	if kind == "" {
		id := RequestID(r.Context())
		s.logger.Printf("Internal error (request %s): %v", id, err)
		writeJSON(w, http.StatusInternalServerError, ErrorBody{Error: ErrorDetail{
			Kind:      kindInternal,
			Message:   "internal error",
			RequestID: id,
		}})
		return
	}

	status, ok := statusForKind[kind]
	if !ok {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{
		Kind:      string(kind),
		Message:   err.Error(),
		Retryable: kind.Retryable(),
	}})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
		Kind:    kindBadRequest,
		Message: msg,
	}})
}

func writeUnauthenticated(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSON(w, http.StatusUnauthorized, ErrorBody{Error: ErrorDetail{
		Kind:    kindUnauthenticated,
		Message: msg,
	}})
}
