package presale

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable presale error class.
type Kind string

const (
	KindAlreadyInitialized  Kind = "AlreadyInitialized"
	KindSaleNotFound        Kind = "SaleNotFound"
	KindSaleInactive        Kind = "SaleInactive"
	KindSaleNotStarted      Kind = "SaleNotStarted"
	KindSaleEnded           Kind = "SaleEnded"
	KindSaleNotEnded        Kind = "SaleNotEnded"
	KindInvalidAmount       Kind = "InvalidAmount"
	KindHardCapExceeded     Kind = "HardCapExceeded"
	KindUnauthorized        Kind = "Unauthorized"
	KindInvalidTreasury     Kind = "InvalidTreasury"
	KindNoPurchaseRecord    Kind = "NoPurchaseRecord"
	KindAlreadyClaimed      Kind = "AlreadyClaimed"
	KindArithmeticOverflow  Kind = "ArithmeticOverflow"
	KindInvalidConfig       Kind = "InvalidConfig"
	KindInvalidSaleID       Kind = "InvalidSaleID"
	KindInsufficientFunds   Kind = "InsufficientFunds"
	KindMintMismatch        Kind = "MintMismatch"
	KindInvalidTokenAccount Kind = "InvalidTokenAccount"
)

// Retryable reports whether waiting and resubmitting the same request can
// succeed. Only a sale that has not started yet resolves itself.
func (k Kind) Retryable() bool {
	return k == KindSaleNotStarted
}

// Error is a presale precondition failure. No state was mutated.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrSaleEnded)
// works regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is.
var (
	ErrAlreadyInitialized  = &Error{Kind: KindAlreadyInitialized}
	ErrSaleNotFound        = &Error{Kind: KindSaleNotFound}
	ErrSaleInactive        = &Error{Kind: KindSaleInactive}
	ErrSaleNotStarted      = &Error{Kind: KindSaleNotStarted}
	ErrSaleEnded           = &Error{Kind: KindSaleEnded}
	ErrSaleNotEnded        = &Error{Kind: KindSaleNotEnded}
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount}
	ErrHardCapExceeded     = &Error{Kind: KindHardCapExceeded}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrInvalidTreasury     = &Error{Kind: KindInvalidTreasury}
	ErrNoPurchaseRecord    = &Error{Kind: KindNoPurchaseRecord}
	ErrAlreadyClaimed      = &Error{Kind: KindAlreadyClaimed}
	ErrArithmeticOverflow  = &Error{Kind: KindArithmeticOverflow}
	ErrInvalidConfig       = &Error{Kind: KindInvalidConfig}
	ErrInvalidSaleID       = &Error{Kind: KindInvalidSaleID}
	ErrInsufficientFunds   = &Error{Kind: KindInsufficientFunds}
	ErrMintMismatch        = &Error{Kind: KindMintMismatch}
	ErrInvalidTokenAccount = &Error{Kind: KindInvalidTokenAccount}
)

func newError(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the presale kind of err, or "" if err is not a presale error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
