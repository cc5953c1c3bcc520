package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pawedaran/internal/domain"

	"github.com/shopspring/decimal"
)

// Messages returned by EvaluatePromo for an unusable code.
const (
	MsgCodeRequired      = "code required"
	MsgPromoNotFound     = "not found"
	MsgPromoInactive     = "inactive"
	MsgUsageLimitReached = "usage limit reached"
	MsgNotYetValid       = "not yet valid"
	MsgExpired           = "expired"
)

var hundred = decimal.NewFromInt(100)

// PromoLookup fetches a promo by its normalised code. It returns domain.ErrPromoNotFound
// for unknown codes; any other error is treated as an infrastructure failure.
type PromoLookup func(ctx context.Context, code string) (*domain.Promo, error)

type EvaluationResult struct {
	Valid    bool                 `json:"valid"`
	Message  string               `json:"message,omitempty"`
	Discount *decimal.Decimal     `json:"discount,omitempty"`
	Promo    *domain.PromoSummary `json:"promo,omitempty"`
}

func invalid(msg string) EvaluationResult {
	return EvaluationResult{Valid: false, Message: msg}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// EvaluatePromo checks whether code can be applied to an order of subtotal at now and
// computes the discount. Business rejections come back as an invalid result with a nil
// error; only lookup failures other than "not found" produce an error.
func EvaluatePromo(ctx context.Context, code string, subtotal decimal.Decimal, lookup PromoLookup, now time.Time) (EvaluationResult, error) {
	code = NormalizeCode(code)
	if code == "" {
		return invalid(MsgCodeRequired), nil
	}

	promo, err := lookup(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrPromoNotFound) {
			return invalid(MsgPromoNotFound), nil
		}
		return EvaluationResult{}, fmt.Errorf("lookup promo %q: %w", code, err)
	}
	if promo == nil {
		return invalid(MsgPromoNotFound), nil
	}

	if !promo.IsActive {
		return invalid(MsgPromoInactive), nil
	}
	if promo.MaxUsage != nil && promo.UsedCount >= *promo.MaxUsage {
		return invalid(MsgUsageLimitReached), nil
	}
	if promo.ValidFrom != nil && now.Before(*promo.ValidFrom) {
		return invalid(MsgNotYetValid), nil
	}
	if promo.ValidUntil != nil && now.After(*promo.ValidUntil) {
		return invalid(MsgExpired), nil
	}

	discount := ComputeDiscount(*promo, subtotal)
	summary := promo.Summary()

	return EvaluationResult{
		Valid:    true,
		Discount: &discount,
		Promo:    &summary,
	}, nil
}

// ComputeDiscount never returns more than subtotal, nor less than zero.
func ComputeDiscount(promo domain.Promo, subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}

	var discount decimal.Decimal
	switch promo.DiscountType {
	case domain.DiscountPercentage:
		discount = subtotal.Mul(promo.DiscountValue).Div(hundred)
	default:
		discount = promo.DiscountValue
	}

	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount
}
