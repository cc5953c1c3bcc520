package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pawedaran/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PromosFilter struct {
	Active *bool
	Search *string
}

type PromoRepository struct {
	db *sql.DB
}

func NewPromoRepository(db *sql.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

const promoColumns = `id, code, description, discount_type, discount_value, max_usage, used_count, is_active, valid_from, valid_until, created_at, updated_at`

func scanPromo(row interface{ Scan(dest ...any) error }) (*domain.Promo, error) {
	var (
		p        domain.Promo
		maxUsage sql.NullInt64
		dtype    string
	)
	if err := row.Scan(
		&p.ID,
		&p.Code,
		&p.Description,
		&dtype,
		&p.DiscountValue,
		&maxUsage,
		&p.UsedCount,
		&p.IsActive,
		&p.ValidFrom,
		&p.ValidUntil,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.DiscountType = domain.DiscountType(dtype)
	if maxUsage.Valid {
		v := int(maxUsage.Int64)
		p.MaxUsage = &v
	}
	return &p, nil
}

// GetByCode expects an already normalised (upper-case) code.
func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*domain.Promo, error) {
	query := `SELECT ` + promoColumns + ` FROM promos WHERE code = $1`

	p, err := scanPromo(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPromoNotFound
		}
		return nil, fmt.Errorf("get promo %q: %w", code, err)
	}
	return p, nil
}

func (r *PromoRepository) GetByID(ctx context.Context, id string) (*domain.Promo, error) {
	query := `SELECT ` + promoColumns + ` FROM promos WHERE id = $1`

	p, err := scanPromo(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPromoNotFound
		}
		return nil, fmt.Errorf("get promo %s: %w", id, err)
	}
	return p, nil
}

func (r *PromoRepository) List(ctx context.Context, f PromosFilter) ([]domain.Promo, error) {
	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.Active != nil {
		where = append(where, fmt.Sprintf("is_active = $%d", i))
		args = append(args, *f.Active)
		i++
	}

	if f.Search != nil && *f.Search != "" {
		where = append(where, fmt.Sprintf("(code ILIKE $%d OR description ILIKE $%d)", i, i))
		args = append(args, "%"+*f.Search+"%")
		i++
	}

	query := `SELECT ` + promoColumns + ` FROM promos WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Promo
	for rows.Next() {
		p, err := scanPromo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PromoRepository) Create(ctx context.Context, p domain.Promo) error {
	query := `
		INSERT INTO promos (id, code, description, discount_type, discount_value, max_usage, used_count, is_active, valid_from, valid_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Code,
		p.Description,
		string(p.DiscountType),
		p.DiscountValue,
		p.MaxUsage,
		p.UsedCount,
		p.IsActive,
		p.ValidFrom,
		p.ValidUntil,
		timeOrNow(p.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicatePromo
		}
		return fmt.Errorf("insert promo: %w", err)
	}
	return nil
}

func (r *PromoRepository) Update(ctx context.Context, p domain.Promo) error {
	query := `
		UPDATE promos
		SET code = $2, description = $3, discount_type = $4, discount_value = $5, max_usage = $6,
		    is_active = $7, valid_from = $8, valid_until = $9, updated_at = $10
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Code,
		p.Description,
		string(p.DiscountType),
		p.DiscountValue,
		p.MaxUsage,
		p.IsActive,
		p.ValidFrom,
		p.ValidUntil,
		timeOrNow(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicatePromo
		}
		return fmt.Errorf("update promo: %w", err)
	}
	return expectOneRow(res, domain.ErrPromoNotFound)
}

func (r *PromoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM promos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete promo: %w", err)
	}
	return expectOneRow(res, domain.ErrPromoNotFound)
}

// IncrementUsage bumps used_count only while the promo is still under its cap,
// so concurrent redemptions can never push it past max_usage.
func (r *PromoRepository) IncrementUsage(ctx context.Context, code string) (*domain.Promo, error) {
	query := `
		UPDATE promos
		SET used_count = used_count + 1, updated_at = now()
		WHERE code = $1
		  AND (max_usage IS NULL OR used_count < max_usage)
		RETURNING ` + promoColumns

	p, err := scanPromo(r.db.QueryRowContext(ctx, query, code))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("increment promo usage: %w", err)
	}

	// no row updated: either the code is unknown or the cap is reached
	if _, err := r.GetByCode(ctx, code); err != nil {
		return nil, err
	}
	return nil, domain.ErrPromoUsageLimit
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func timeOrNow(t *time.Time) time.Time {
	if t == nil {
		return time.Now()
	}
	return *t
}
