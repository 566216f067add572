package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// solDecimals is the number of decimal places between SOL and lamports.
const solDecimals = 9

var maxLamports = decimal.NewFromBigInt(new(big.Int).SetUint64(^uint64(0)), 0)

// ErrInvalidAmount is returned when a SOL amount cannot be represented in lamports.
var ErrInvalidAmount = errors.New("invalid SOL amount")

// ParseSOL converts a decimal SOL string ("0.5", "12") to lamports exactly.
// Fractions below one lamport, negative values and values above uint64 are rejected.
func ParseSOL(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	if d.Sign() < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}

	lamports := d.Shift(solDecimals)
	if !lamports.IsInteger() {
		return 0, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, solDecimals)
	}
	if lamports.GreaterThan(maxLamports) {
		return 0, fmt.Errorf("%w: %q overflows lamports", ErrInvalidAmount, s)
	}

	return lamports.BigInt().Uint64(), nil
}

// FormatSOL renders lamports as a SOL decimal string without trailing zeros.
func FormatSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -solDecimals).String()
}
