package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pawedaran/internal/domain"
	"pawedaran/internal/repository"
	"pawedaran/internal/service"

	"github.com/shopspring/decimal"
)

type ValidationError = domain.ValidationError

const maxNotesLength = 500

var errInvalidJSON = errors.New("invalid JSON")

// decodeJSON keeps numbers as json.Number so money never passes through float64.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil && err != io.EOF {
		return errInvalidJSON
	}
	return nil
}

type EvaluateRequest struct {
	Code     string
	Subtotal decimal.Decimal
}

type rawEvaluateRequest struct {
	Code     interface{} `json:"code"`
	Subtotal interface{} `json:"subtotal"`
}

func ValidateEvaluateRequest(r *http.Request) (*EvaluateRequest, error) {
	var raw rawEvaluateRequest
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}

	code, err := toStringPtr(raw.Code)
	if err != nil {
		return nil, &ValidationError{Field: "code", Message: "code must be a string"}
	}

	subtotal, err := toDecimal(raw.Subtotal)
	if err != nil {
		return nil, &ValidationError{Field: "subtotal", Message: "subtotal is required and must be a number"}
	}

	req := &EvaluateRequest{Subtotal: subtotal}
	if code != nil {
		req.Code = *code
	}
	return req, nil
}

type PaymentRequest struct {
	Amount decimal.Decimal
	Proof  *string
	Notes  *string
}

type rawPaymentRequest struct {
	Amount interface{} `json:"amount"`
	Proof  interface{} `json:"proof"`
	Notes  interface{} `json:"notes"`
}

// ValidatePaymentRequest reports a missing, non-numeric or sub-cent amount as
// domain.ErrInvalidAmount, the same failure as a non-positive one.
func ValidatePaymentRequest(r *http.Request) (*PaymentRequest, error) {
	var raw rawPaymentRequest
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}

	amount, err := toDecimal(raw.Amount)
	if err != nil || !domain.IsWholeCents(amount) {
		return nil, domain.ErrInvalidAmount
	}

	proof, err := toStringPtr(raw.Proof)
	if err != nil {
		return nil, &ValidationError{Field: "proof", Message: "proof must be a string or empty"}
	}

	notes, err := toStringPtr(raw.Notes)
	if err != nil {
		return nil, &ValidationError{Field: "notes", Message: "notes must be a string or empty"}
	}
	if notes != nil && len([]rune(*notes)) > maxNotesLength {
		return nil, &ValidationError{Field: "notes", Message: "notes must be at most 500 characters"}
	}

	return &PaymentRequest{Amount: amount, Proof: proof, Notes: notes}, nil
}

func (p *PaymentRequest) ToInput(debtID string) service.PaymentInput {
	return service.PaymentInput{
		DebtID: debtID,
		Amount: p.Amount,
		Proof:  p.Proof,
		Notes:  p.Notes,
	}
}

type rawPromoRequest struct {
	Code          interface{} `json:"code"`
	Description   interface{} `json:"description"`
	DiscountType  interface{} `json:"discount_type"`
	DiscountValue interface{} `json:"discount_value"`
	MaxUsage      interface{} `json:"max_usage"`
	IsActive      interface{} `json:"is_active"`
	ValidFrom     interface{} `json:"valid_from"`
	ValidUntil    interface{} `json:"valid_until"`
}

// ValidatePromoRequest only checks shapes; business rules on the values live in the service.
func ValidatePromoRequest(r *http.Request) (*service.PromoInput, error) {
	var raw rawPromoRequest
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}

	code, err := toStringPtr(raw.Code)
	if err != nil || code == nil {
		return nil, &ValidationError{Field: "code", Message: "code is required"}
	}

	description, err := toStringPtr(raw.Description)
	if err != nil {
		return nil, &ValidationError{Field: "description", Message: "description must be a string or empty"}
	}

	discountType, err := toStringPtr(raw.DiscountType)
	if err != nil || discountType == nil {
		return nil, &ValidationError{Field: "discount_type", Message: "discount_type is required"}
	}

	value, err := toDecimal(raw.DiscountValue)
	if err != nil {
		return nil, &ValidationError{Field: "discount_value", Message: "discount_value is required and must be a number"}
	}

	maxUsage, err := toIntPtr(raw.MaxUsage)
	if err != nil {
		return nil, &ValidationError{Field: "max_usage", Message: "max_usage must be integer or empty"}
	}

	var isActive *bool
	switch v := raw.IsActive.(type) {
	case nil:
	case bool:
		isActive = &v
	default:
		return nil, &ValidationError{Field: "is_active", Message: "is_active must be boolean"}
	}

	validFrom, err := toTimePtr(raw.ValidFrom)
	if err != nil {
		return nil, &ValidationError{Field: "valid_from", Message: "valid_from must be RFC3339, YYYY-MM-DD or empty"}
	}
	validUntil, err := toTimePtr(raw.ValidUntil)
	if err != nil {
		return nil, &ValidationError{Field: "valid_until", Message: "valid_until must be RFC3339, YYYY-MM-DD or empty"}
	}

	return &service.PromoInput{
		Code:          *code,
		Description:   description,
		DiscountType:  domain.DiscountType(strings.ToUpper(*discountType)),
		DiscountValue: value,
		MaxUsage:      maxUsage,
		IsActive:      isActive,
		ValidFrom:     validFrom,
		ValidUntil:    validUntil,
	}, nil
}

func PromosFilterFromQuery(r *http.Request) (repository.PromosFilter, error) {
	var f repository.PromosFilter
	q := r.URL.Query()

	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return f, &ValidationError{Field: "active", Message: "active must be true or false"}
		}
		f.Active = &active
	}
	if v := strings.TrimSpace(q.Get("search")); v != "" {
		f.Search = &v
	}
	return f, nil
}

var errNotNumber = errors.New("not a number")

func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch t := v.(type) {
	case json.Number:
		return decimal.NewFromString(t.String())
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return decimal.Decimal{}, errNotNumber
		}
		return decimal.NewFromString(t)
	default:
		return decimal.Decimal{}, errNotNumber
	}
}

func toStringPtr(v interface{}) (*string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, nil
		}
		return &t, nil
	default:
		return nil, &ValidationError{Message: "invalid type for string field"}
	}
}

func toIntPtr(v interface{}) (*int, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		i, err := strconv.Atoi(t.String())
		if err != nil {
			return nil, err
		}
		return &i, nil
	case string:
		if t == "" {
			return nil, nil
		}
		i, err := strconv.Atoi(t)
		if err != nil {
			return nil, err
		}
		return &i, nil
	default:
		return nil, &ValidationError{Message: "invalid type for int field"}
	}
}

func toTimePtr(v interface{}) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return &parsed, nil
		}
		parsed, err := time.Parse("2006-01-02", t)
		if err != nil {
			return nil, err
		}
		return &parsed, nil
	default:
		return nil, &ValidationError{Message: "invalid type for date field"}
	}
}

// sniffContentType trusts the bytes over the client-supplied header.
func sniffContentType(data []byte) string {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	ct := http.DetectContentType(head)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct
}
