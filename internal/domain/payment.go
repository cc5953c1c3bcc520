package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DebtPayment is an append-only ledger entry; it is never updated after insert.
type DebtPayment struct {
	ID     string          `json:"id"`
	DebtID string          `json:"debt_id"`
	UserID int64           `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`

	Proof *string `json:"proof"`
	Notes *string `json:"notes"`

	CreatedAt time.Time `json:"created_at"`
}
