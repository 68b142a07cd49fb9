package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// ErrPaymentNotFound reports a missing payment.
var ErrPaymentNotFound = fmt.Errorf("payments: payment: %w", shared.ErrNotFound)

// Repository persists payments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("payments repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *txRepository) Ledger() ledger.TxRepository {
	return ledger.TxView(r.tx)
}

const paymentColumns = `id, uid, company_id, partner_id, journal_id, move_id, currency_id, date, amount,
payment_type, state, reference, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.UID, &p.CompanyID, &p.PartnerID, &p.JournalID, &p.MoveID, &p.CurrencyID, &p.Date,
		&p.Amount, &p.Type, &p.State, &p.Reference, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, mapPaymentError(err)
	}
	return p, nil
}

func mapPaymentError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return shared.NewConflictError("payment", "duplicate key", err)
		case "23503":
			return shared.NewConflictError("payment", "still referenced", err)
		}
	}
	return err
}

func (r *txRepository) GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(r.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) InsertPayment(ctx context.Context, input PaymentInput) (Payment, error) {
	return scanPayment(r.tx.QueryRow(ctx, `INSERT INTO payments
(uid, company_id, partner_id, journal_id, currency_id, date, amount, payment_type, state, reference, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'draft',$9,now(),now())
RETURNING `+paymentColumns,
		uuid.New(), input.CompanyID, input.PartnerID, input.JournalID, input.CurrencyID, input.Date,
		input.Amount, input.Type, input.Reference))
}

func (r *txRepository) UpdatePayment(ctx context.Context, id int64, input PaymentInput) (Payment, error) {
	return scanPayment(r.tx.QueryRow(ctx, `UPDATE payments SET
partner_id=$2, journal_id=$3, currency_id=$4, date=$5, amount=$6, payment_type=$7, reference=$8, updated_at=now()
WHERE id=$1
RETURNING `+paymentColumns,
		id, input.PartnerID, input.JournalID, input.CurrencyID, input.Date, input.Amount, input.Type, input.Reference))
}

func (r *txRepository) SetPaymentPosted(ctx context.Context, id, moveID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE payments SET move_id=$2, state='posted', updated_at=now() WHERE id=$1`, id, moveID)
	if err != nil {
		return mapPaymentError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *txRepository) SetPaymentState(ctx context.Context, id int64, state PaymentState) error {
	tag, err := r.tx.Exec(ctx, `UPDATE payments SET state=$2, updated_at=now() WHERE id=$1`, id, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *txRepository) GetSettings(ctx context.Context, companyID int64) (masterdata.AccountingSettings, error) {
	var s masterdata.AccountingSettings
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, transfer_account_id, fiscal_year_last_day, fiscal_year_last_month, created_at, updated_at
FROM accounting_settings WHERE company_id=$1`, companyID).
		Scan(&s.ID, &s.CompanyID, &s.TransferAccountID, &s.FiscalYearLastDay, &s.FiscalYearLastMonth, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return masterdata.AccountingSettings{CompanyID: companyID, FiscalYearLastDay: 31, FiscalYearLastMonth: 12}, nil
		}
		return masterdata.AccountingSettings{}, err
	}
	return s, nil
}

// GetPayment returns one payment.
func (r *Repository) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
}

// ListPayments lists payments with pagination.
func (r *Repository) ListPayments(ctx context.Context, filters PaymentFilters) ([]Payment, int, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset := 0
	if filters.Page > 1 {
		offset = (filters.Page - 1) * limit
	}

	query := `SELECT ` + paymentColumns + `, COUNT(*) OVER() AS total FROM payments WHERE 1=1`
	args := []any{}
	if filters.CompanyID != nil {
		args = append(args, *filters.CompanyID)
		query += fmt.Sprintf(" AND company_id=$%d", len(args))
	}
	if filters.JournalID != nil {
		args = append(args, *filters.JournalID)
		query += fmt.Sprintf(" AND journal_id=$%d", len(args))
	}
	if filters.State != nil {
		args = append(args, *filters.State)
		query += fmt.Sprintf(" AND state=$%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		payments []Payment
		total    int
	)
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.UID, &p.CompanyID, &p.PartnerID, &p.JournalID, &p.MoveID, &p.CurrencyID, &p.Date,
			&p.Amount, &p.Type, &p.State, &p.Reference, &p.CreatedAt, &p.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		payments = append(payments, p)
	}
	return payments, total, rows.Err()
}
