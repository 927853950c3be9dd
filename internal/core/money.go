package core

import "github.com/shopspring/decimal"

// partialThreshold absorbs rounding on a slot; anything below 99% is a shortfall.
var partialThreshold = decimal.RequireFromString("0.99")

// AmountsEqual compares two currency amounts to the cent.
func AmountsEqual(a, b decimal.Decimal) bool {
	return a.Round(2).Equal(b.Round(2))
}

// IsPartial reports whether paid falls short of the slot amount.
func IsPartial(paid, slotAmount decimal.Decimal) bool {
	return paid.LessThan(slotAmount.Mul(partialThreshold))
}

// InstallmentCount returns ceil(total / monthly), or 0 when either side is not positive.
func InstallmentCount(total, monthly decimal.Decimal) int {
	if !total.IsPositive() || !monthly.IsPositive() {
		return 0
	}
	return int(total.Div(monthly).Ceil().IntPart())
}

// PaymentsRemaining is the quick-display count ceil(balance / monthly).
func PaymentsRemaining(balance, monthly decimal.Decimal) int {
	return InstallmentCount(balance, monthly)
}
