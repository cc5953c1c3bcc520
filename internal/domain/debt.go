package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Debt is an installment balance owed by a single user.
// RemainingDebt always equals TotalDebt - PaidAmount.
type Debt struct {
	ID          string  `json:"id"`
	UserID      int64   `json:"user_id"`
	Description *string `json:"description"`

	TotalDebt     decimal.Decimal `json:"total_debt"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	RemainingDebt decimal.Decimal `json:"remaining_debt"`

	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}
