// Package numeric wraps shopspring/decimal with the conversions and guards
// used across pool and token accounting. Entity math never touches floats.
package numeric

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrDivisionByZero is returned by SafeDiv when the denominator is zero.
// Callers are expected to check denominators before dividing; hitting this
// error indicates a logic defect, not a data condition.
var ErrDivisionByZero = errors.New("numeric: division by zero")

// SecondsPerYear is used for gauge emission projections.
const SecondsPerYear = 31_536_000

var (
	Zero    = decimal.Zero
	One     = decimal.NewFromInt(1)
	Hundred = decimal.NewFromInt(100)

	basisPoints = decimal.NewFromInt(10_000)
)

// FromRawAmount converts a raw integer token amount into its
// decimal-normalized value: amount / 10^decimals.
func FromRawAmount(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	d := decimal.NewFromBigInt(amount, 0)
	if decimals == 0 {
		return d
	}
	return d.Shift(-decimals)
}

// SafeDiv divides a by b, refusing a zero denominator.
func SafeDiv(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	return a.Div(b), nil
}

// FeePercentFromBasisPoints converts a factory fee in basis points into a
// percentage: 30 -> 0.3, 5 -> 0.05.
func FeePercentFromBasisPoints(fee *big.Int) decimal.Decimal {
	if fee == nil {
		return decimal.Zero
	}
	pct, _ := SafeDiv(decimal.NewFromBigInt(fee, 0).Mul(Hundred), basisPoints)
	return pct
}
