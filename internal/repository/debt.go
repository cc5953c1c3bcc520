package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"pawedaran/internal/domain"
)

type DebtsFilter struct {
	UserID *int64
}

type PaymentsFilter struct {
	DebtID string
	Limit  int
}

// LedgerQuerier is the set of statements that must run inside one ledger transaction.
type LedgerQuerier interface {
	GetDebtForUpdate(ctx context.Context, id string) (*domain.Debt, error)
	InsertPayment(ctx context.Context, p domain.DebtPayment) error
	UpdateDebtBalance(ctx context.Context, d domain.Debt) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type DebtRepository struct {
	db *sql.DB
}

func NewDebtRepository(db *sql.DB) *DebtRepository {
	return &DebtRepository{db: db}
}

// ExecTx runs fn in a single transaction; any error from fn rolls back every write it made.
func (r *DebtRepository) ExecTx(ctx context.Context, fn func(LedgerQuerier) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&ledgerTx{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %w, rollback err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const debtColumns = `d.id, d.user_id, d.description, d.total_debt, d.paid_amount, d.remaining_debt, d.created_at, d.updated_at`

func scanDebt(row interface{ Scan(dest ...any) error }) (*domain.Debt, error) {
	var d domain.Debt
	if err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Description,
		&d.TotalDebt,
		&d.PaidAmount,
		&d.RemainingDebt,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

func getDebt(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts d WHERE d.id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	d, err := scanDebt(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDebtNotFound
		}
		return nil, fmt.Errorf("get debt %s: %w", id, err)
	}
	return d, nil
}

func (r *DebtRepository) GetByID(ctx context.Context, id string) (*domain.Debt, error) {
	return getDebt(ctx, r.db, id, false)
}

func (r *DebtRepository) List(ctx context.Context, f DebtsFilter) ([]domain.Debt, error) {
	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.UserID != nil {
		where = append(where, fmt.Sprintf("d.user_id = $%d", i))
		args = append(args, *f.UserID)
		i++
	}

	query := `SELECT ` + debtColumns + ` FROM debts d WHERE ` + strings.Join(where, " AND ") + ` ORDER BY d.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListPayments returns the ledger of a debt, most recent first.
func (r *DebtRepository) ListPayments(ctx context.Context, f PaymentsFilter) ([]domain.DebtPayment, error) {
	query := `
		SELECT p.id, p.debt_id, p.user_id, p.amount, p.proof, p.notes, p.created_at
		FROM debt_payments p
		WHERE p.debt_id = $1
		ORDER BY p.created_at DESC, p.id DESC
	`
	args := []any{f.DebtID}
	if f.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DebtPayment
	for rows.Next() {
		var p domain.DebtPayment
		if err := rows.Scan(
			&p.ID,
			&p.DebtID,
			&p.UserID,
			&p.Amount,
			&p.Proof,
			&p.Notes,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type ledgerTx struct {
	q queryer
}

func (t *ledgerTx) GetDebtForUpdate(ctx context.Context, id string) (*domain.Debt, error) {
	return getDebt(ctx, t.q, id, true)
}

func (t *ledgerTx) InsertPayment(ctx context.Context, p domain.DebtPayment) error {
	query := `
		INSERT INTO debt_payments (id, debt_id, user_id, amount, proof, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := t.q.ExecContext(ctx, query, p.ID, p.DebtID, p.UserID, p.Amount, p.Proof, p.Notes, p.CreatedAt); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (t *ledgerTx) UpdateDebtBalance(ctx context.Context, d domain.Debt) error {
	query := `
		UPDATE debts
		SET paid_amount = $2, remaining_debt = $3, updated_at = $4
		WHERE id = $1
	`
	res, err := t.q.ExecContext(ctx, query, d.ID, d.PaidAmount, d.RemainingDebt, timeOrNow(d.UpdatedAt))
	if err != nil {
		return fmt.Errorf("update debt balance: %w", err)
	}
	return expectOneRow(res, domain.ErrDebtNotFound)
}
