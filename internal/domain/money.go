package domain

import "github.com/shopspring/decimal"

// MoneyScale is the number of fractional digits stored for every amount column.
const MoneyScale = 2

// IsWholeCents reports whether d can be stored without rounding.
func IsWholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}
