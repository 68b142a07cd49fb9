package invoicing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// ErrLineNotFound reports a missing invoice line.
var ErrLineNotFound = fmt.Errorf("invoicing: line: %w", shared.ErrNotFound)

// Repository persists invoice lines alongside the ledger store.
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
		return errors.New("invoicing repository not initialised")
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

const lineColumns = `id, move_id, account_id, tax_id, name, quantity, unit_price, discount_percent,
line_subtotal, line_tax, line_total, created_at, updated_at`

func scanInvoiceLine(row pgx.Row) (InvoiceLine, error) {
	var l InvoiceLine
	err := row.Scan(&l.ID, &l.MoveID, &l.AccountID, &l.TaxID, &l.Name, &l.Quantity, &l.UnitPrice, &l.DiscountPercent,
		&l.Subtotal, &l.TaxAmount, &l.Total, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InvoiceLine{}, ErrLineNotFound
		}
		return InvoiceLine{}, mapLineError(err)
	}
	return l, nil
}

func mapLineError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return shared.NewConflictError("invoice_line", "duplicate key", err)
		case "23503":
			return shared.NewConflictError("invoice_line", "still referenced", err)
		}
	}
	return err
}

func (r *txRepository) ListInvoiceLines(ctx context.Context, moveID int64) ([]InvoiceLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lineColumns+` FROM invoice_lines WHERE move_id=$1 ORDER BY id ASC`, moveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoiceLines(rows)
}

func collectInvoiceLines(rows pgx.Rows) ([]InvoiceLine, error) {
	var lines []InvoiceLine
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.MoveID, &l.AccountID, &l.TaxID, &l.Name, &l.Quantity, &l.UnitPrice, &l.DiscountPercent,
			&l.Subtotal, &l.TaxAmount, &l.Total, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *txRepository) GetInvoiceLine(ctx context.Context, lineID int64) (InvoiceLine, error) {
	return scanInvoiceLine(r.tx.QueryRow(ctx, `SELECT `+lineColumns+` FROM invoice_lines WHERE id=$1 FOR UPDATE`, lineID))
}

func (r *txRepository) InsertInvoiceLine(ctx context.Context, moveID int64, input InvoiceLineInput, amounts LineAmounts) (InvoiceLine, error) {
	return scanInvoiceLine(r.tx.QueryRow(ctx, `INSERT INTO invoice_lines
(move_id, account_id, tax_id, name, quantity, unit_price, discount_percent, line_subtotal, line_tax, line_total, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
RETURNING `+lineColumns,
		moveID, input.AccountID, input.TaxID, input.Name, input.Quantity, input.UnitPrice, input.DiscountPercent,
		amounts.Subtotal, amounts.Tax, amounts.Total))
}

func (r *txRepository) UpdateInvoiceLine(ctx context.Context, lineID int64, input InvoiceLineInput, amounts LineAmounts) (InvoiceLine, error) {
	return scanInvoiceLine(r.tx.QueryRow(ctx, `UPDATE invoice_lines SET
account_id=$2, tax_id=$3, name=$4, quantity=$5, unit_price=$6, discount_percent=$7,
line_subtotal=$8, line_tax=$9, line_total=$10, updated_at=now()
WHERE id=$1
RETURNING `+lineColumns,
		lineID, input.AccountID, input.TaxID, input.Name, input.Quantity, input.UnitPrice, input.DiscountPercent,
		amounts.Subtotal, amounts.Tax, amounts.Total))
}

func (r *txRepository) DeleteInvoiceLine(ctx context.Context, lineID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM invoice_lines WHERE id=$1`, lineID)
	if err != nil {
		return mapLineError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *txRepository) GetTax(ctx context.Context, id int64) (masterdata.Tax, error) {
	var t masterdata.Tax
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, name, amount_type, amount, type_tax_use, tax_group_id, account_id, active, created_at, updated_at
FROM taxes WHERE id=$1`, id).Scan(&t.ID, &t.CompanyID, &t.Name, &t.AmountType, &t.Amount, &t.TypeTaxUse, &t.TaxGroupID, &t.AccountID, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return masterdata.Tax{}, shared.Validationf("tax_id", "tax %d does not exist", id)
		}
		return masterdata.Tax{}, err
	}
	return t, nil
}

// GetInvoice loads an invoice-type move with its commercial lines.
func (r *Repository) GetInvoice(ctx context.Context, moveID int64) (ledger.Move, []InvoiceLine, error) {
	move, err := ledger.NewRepository(r.pool).GetMoveWithLines(ctx, moveID)
	if err != nil {
		return ledger.Move{}, nil, err
	}
	if !move.Type.IsInvoiceLike() {
		return ledger.Move{}, nil, ledger.ErrMoveNotFound
	}
	rows, err := r.pool.Query(ctx, `SELECT `+lineColumns+` FROM invoice_lines WHERE move_id=$1 ORDER BY id ASC`, moveID)
	if err != nil {
		return ledger.Move{}, nil, err
	}
	defer rows.Close()
	lines, err := collectInvoiceLines(rows)
	if err != nil {
		return ledger.Move{}, nil, err
	}
	return move, lines, nil
}

// ListInvoices lists invoice-type moves with the usual move filters.
func (r *Repository) ListInvoices(ctx context.Context, filters ledger.MoveFilters) ([]ledger.Move, int, error) {
	if filters.Type != nil {
		if !filters.Type.IsInvoiceLike() {
			return nil, 0, shared.Validationf("move_type", "%q is not an invoice type", *filters.Type)
		}
		return ledger.NewRepository(r.pool).ListMoves(ctx, filters)
	}

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

	query := `SELECT id, company_id, journal_id, move_type, state, date, reference, partner_id, currency_id,
is_debit_note, reversed_entry_id, debit_origin_id, source_module, source_id, posted_at, created_at, updated_at,
COUNT(*) OVER() AS total
FROM moves WHERE move_type IN ('out_invoice','in_invoice','out_refund','in_refund')`
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
		moves []ledger.Move
		total int
	)
	for rows.Next() {
		var m ledger.Move
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.JournalID, &m.Type, &m.State, &m.Date, &m.Reference, &m.PartnerID, &m.CurrencyID,
			&m.IsDebitNote, &m.ReversedEntryID, &m.DebitOriginID, &m.SourceModule, &m.SourceID, &m.PostedAt, &m.CreatedAt, &m.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		moves = append(moves, m)
	}
	return moves, total, rows.Err()
}
