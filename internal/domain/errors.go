package domain

import "errors"

var (
	ErrPromoNotFound   = errors.New("promo not found")
	ErrDuplicatePromo  = errors.New("promo code already exists")
	ErrPromoUsageLimit = errors.New("promo usage limit reached")

	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrDebtNotFound       = errors.New("debt not found")
	ErrForbidden          = errors.New("forbidden")
	ErrExceedsRemaining   = errors.New("amount exceeds remaining debt")
	ErrLedgerInconsistent = errors.New("debt balance is inconsistent")
	ErrPersistence        = errors.New("persistence failure")

	ErrExportNotFound = errors.New("export not found")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
