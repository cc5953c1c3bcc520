package service

import (
	"fmt"

	"pawedaran/internal/domain"

	"github.com/shopspring/decimal"
)

// ComputePayment validates a payment of amount against debt on behalf of requester and
// returns the debt with its new balances. debt itself is left untouched.
//
// Checks run in a fixed order: amount, existence, ownership, remaining balance.
func ComputePayment(debt *domain.Debt, amount decimal.Decimal, requester domain.Requester) (domain.Debt, error) {
	if !amount.IsPositive() {
		return domain.Debt{}, domain.ErrInvalidAmount
	}
	if debt == nil {
		return domain.Debt{}, domain.ErrDebtNotFound
	}
	if !requester.CanAccess(debt.UserID) {
		return domain.Debt{}, domain.ErrForbidden
	}
	if amount.GreaterThan(debt.RemainingDebt) {
		return domain.Debt{}, domain.ErrExceedsRemaining
	}

	updated := *debt
	updated.PaidAmount = debt.PaidAmount.Add(amount)
	updated.RemainingDebt = debt.TotalDebt.Sub(updated.PaidAmount)

	if expected := debt.RemainingDebt.Sub(amount); !updated.RemainingDebt.Equal(expected) {
		return domain.Debt{}, fmt.Errorf("%w: debt %s total-paid=%s, remaining-amount=%s",
			domain.ErrLedgerInconsistent, debt.ID, updated.RemainingDebt, expected)
	}

	return updated, nil
}
