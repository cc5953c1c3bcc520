package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"pawedaran/internal/clients"
	"pawedaran/internal/domain"
	"pawedaran/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PromoRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Promo, error)
	GetByID(ctx context.Context, id string) (*domain.Promo, error)
	List(ctx context.Context, f repository.PromosFilter) ([]domain.Promo, error)
	Create(ctx context.Context, p domain.Promo) error
	Update(ctx context.Context, p domain.Promo) error
	Delete(ctx context.Context, id string) error
	IncrementUsage(ctx context.Context, code string) (*domain.Promo, error)
}

var promoCodePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

// PromoInput is the admin-editable part of a promo.
type PromoInput struct {
	Code          string
	Description   *string
	DiscountType  domain.DiscountType
	DiscountValue decimal.Decimal
	MaxUsage      *int
	IsActive      *bool
	ValidFrom     *time.Time
	ValidUntil    *time.Time
}

func (in PromoInput) validate() error {
	if !promoCodePattern.MatchString(NormalizeCode(in.Code)) {
		return &domain.ValidationError{Field: "code", Message: "code must be 3-32 characters of A-Z, 0-9, '-' or '_'"}
	}
	if !in.DiscountType.Valid() {
		return &domain.ValidationError{Field: "discount_type", Message: "discount_type must be PERCENTAGE or FIXED"}
	}
	if in.DiscountValue.IsNegative() {
		return &domain.ValidationError{Field: "discount_value", Message: "discount_value must not be negative"}
	}
	if !domain.IsWholeCents(in.DiscountValue) {
		return &domain.ValidationError{Field: "discount_value", Message: "discount_value must have at most 2 decimal places"}
	}
	if in.DiscountType == domain.DiscountPercentage && in.DiscountValue.GreaterThan(hundred) {
		return &domain.ValidationError{Field: "discount_value", Message: "percentage discount must not exceed 100"}
	}
	if in.MaxUsage != nil && *in.MaxUsage < 1 {
		return &domain.ValidationError{Field: "max_usage", Message: "max_usage must be at least 1"}
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && !in.ValidFrom.Before(*in.ValidUntil) {
		return &domain.ValidationError{Field: "valid_until", Message: "valid_until must be after valid_from"}
	}
	return nil
}

type PromoService struct {
	repo     PromoRepository
	cache    Cache
	cacheTTL time.Duration
	now      Clock
	newID    IDGenerator
}

// NewPromoService wires the evaluator to the repository. cache may be nil, in which case
// every lookup goes to the database.
func NewPromoService(repo PromoRepository, cache Cache, cacheTTL time.Duration, now Clock, newID IDGenerator) *PromoService {
	return &PromoService{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      now,
		newID:    newID,
	}
}

func promoCacheKey(code string) string {
	return "promo:" + code
}

// Evaluate is the storefront entry point: it never fails for an unusable code,
// only for infrastructure errors.
func (s *PromoService) Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (EvaluationResult, error) {
	return EvaluatePromo(ctx, code, subtotal, s.lookup, s.now())
}

func (s *PromoService) lookup(ctx context.Context, code string) (*domain.Promo, error) {
	key := promoCacheKey(code)

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var p domain.Promo
			if jsonErr := json.Unmarshal([]byte(raw), &p); jsonErr == nil {
				return &p, nil
			}
			log.Printf("[PROMO] dropping undecodable cache entry %s", key)
		case !errors.Is(err, clients.ErrCacheMiss):
			log.Printf("[PROMO] cache get %s: %v", key, err)
		}
	}

	p, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if data, err := json.Marshal(p); err == nil {
			if err := s.cache.Set(ctx, key, string(data), s.cacheTTL); err != nil {
				log.Printf("[PROMO] cache set %s: %v", key, err)
			}
		}
	}
	return p, nil
}

func (s *PromoService) invalidate(ctx context.Context, codes ...string) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(codes))
	for _, c := range codes {
		keys = append(keys, promoCacheKey(c))
	}
	if err := s.cache.Del(ctx, keys...); err != nil {
		log.Printf("[PROMO] cache invalidate %v: %v", codes, err)
	}
}

// promo ids are uuid columns; anything else cannot match a row.
func checkPromoID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrPromoNotFound
	}
	return nil
}

func requireAdmin(requester domain.Requester) error {
	if !requester.IsSuperAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

func (s *PromoService) Create(ctx context.Context, in PromoInput, requester domain.Requester) (*domain.Promo, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	p := domain.Promo{
		ID:            s.newID(),
		Code:          NormalizeCode(in.Code),
		Description:   in.Description,
		DiscountType:  in.DiscountType,
		DiscountValue: in.DiscountValue,
		MaxUsage:      in.MaxUsage,
		IsActive:      active,
		ValidFrom:     in.ValidFrom,
		ValidUntil:    in.ValidUntil,
		CreatedAt:     &now,
		UpdatedAt:     &now,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	// a code may have been looked up (and missed) before it existed
	s.invalidate(ctx, p.Code)
	log.Printf("[PROMO] created %s (%s %s) by user=%d", p.Code, p.DiscountType, p.DiscountValue, requester.ID)
	return &p, nil
}

func (s *PromoService) Update(ctx context.Context, id string, in PromoInput, requester domain.Requester) (*domain.Promo, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	if err := checkPromoID(id); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldCode := existing.Code

	now := s.now()
	updated := *existing
	updated.Code = NormalizeCode(in.Code)
	updated.Description = in.Description
	updated.DiscountType = in.DiscountType
	updated.DiscountValue = in.DiscountValue
	updated.MaxUsage = in.MaxUsage
	if in.IsActive != nil {
		updated.IsActive = *in.IsActive
	}
	updated.ValidFrom = in.ValidFrom
	updated.ValidUntil = in.ValidUntil
	updated.UpdatedAt = &now

	if err := s.repo.Update(ctx, updated); err != nil {
		return nil, err
	}

	s.invalidate(ctx, oldCode, updated.Code)
	return &updated, nil
}

func (s *PromoService) Delete(ctx context.Context, id string, requester domain.Requester) error {
	if err := requireAdmin(requester); err != nil {
		return err
	}

	if err := checkPromoID(id); err != nil {
		return err
	}
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx, existing.Code)
	log.Printf("[PROMO] deleted %s by user=%d", existing.Code, requester.ID)
	return nil
}

func (s *PromoService) Get(ctx context.Context, id string, requester domain.Requester) (*domain.Promo, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	if err := checkPromoID(id); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *PromoService) List(ctx context.Context, f repository.PromosFilter, requester domain.Requester) ([]domain.Promo, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	if f.Search != nil {
		trimmed := strings.TrimSpace(*f.Search)
		f.Search = &trimmed
	}
	return s.repo.List(ctx, f)
}

// Redeem records one use of code after an order using it has been placed.
func (s *PromoService) Redeem(ctx context.Context, code string, requester domain.Requester) (*domain.Promo, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, &domain.ValidationError{Field: "code", Message: MsgCodeRequired}
	}

	p, err := s.repo.IncrementUsage(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrPromoNotFound) || errors.Is(err, domain.ErrPromoUsageLimit) {
			return nil, err
		}
		return nil, fmt.Errorf("redeem promo %q: %w", code, err)
	}

	s.invalidate(ctx, code)
	return p, nil
}
