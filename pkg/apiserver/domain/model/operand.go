package model

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// MaxOperandExponent bounds the adjusted exponent (exponent of the leading digit) of an operand.
	MaxOperandExponent = 9999
	// MaxResultExponent bounds results; a product or quotient of two operands in range fits.
	MaxResultExponent = 2*MaxOperandExponent + 1
)

// AdjustedExponent returns the power of ten of the leading digit of d, 0 for 1.5, 2 for 250.
// It reads the coefficient and exponent only, never the expanded value.
func AdjustedExponent(d decimal.Decimal) int64 {
	digits := len(new(big.Int).Abs(d.Coefficient()).String())
	return int64(d.Exponent()) + int64(digits) - 1
}

// CheckOperand rejects operands whose magnitude is outside ±1e(MaxOperandExponent).
func CheckOperand(d decimal.Decimal) *Error {
	if withinExponent(d, MaxOperandExponent) {
		return nil
	}
	return NewOperandOutOfRange(AdjustedExponent(d))
}

// CheckResult is CheckOperand for values coming back from the evaluator.
func CheckResult(d decimal.Decimal) *Error {
	if withinExponent(d, MaxResultExponent) {
		return nil
	}
	return NewInternal(fmt.Errorf("result exponent %d outside ±%d", AdjustedExponent(d), MaxResultExponent))
}

func withinExponent(d decimal.Decimal, limit int64) bool {
	adj := AdjustedExponent(d)
	return adj <= limit && adj >= -limit
}
