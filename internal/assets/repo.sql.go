package assets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// ErrAssetNotFound reports a missing asset.
var ErrAssetNotFound = fmt.Errorf("assets: asset: %w", shared.ErrNotFound)

// ErrLineNotFound reports a missing depreciation line.
var ErrLineNotFound = fmt.Errorf("assets: depreciation line: %w", shared.ErrNotFound)

// Repository persists assets and their depreciation schedules.
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
		return errors.New("assets repository not initialised")
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

const assetColumns = `id, company_id, name, code, partner_id, currency_id, asset_account_id,
depreciation_account_id, expense_account_id, journal_id, acquisition_date, first_depreciation_date,
original_value, salvage_value, method, method_number, method_period, prorata, state, note, created_at, updated_at`

func scanAsset(row pgx.Row) (Asset, error) {
	var a Asset
	err := row.Scan(&a.ID, &a.CompanyID, &a.Name, &a.Code, &a.PartnerID, &a.CurrencyID, &a.AssetAccountID,
		&a.DepreciationAccountID, &a.ExpenseAccountID, &a.JournalID, &a.AcquisitionDate, &a.FirstDepreciationDate,
		&a.OriginalValue, &a.SalvageValue, &a.Method, &a.MethodNumber, &a.MethodPeriod, &a.Prorata, &a.State, &a.Note,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, ErrAssetNotFound
		}
		return Asset{}, mapAssetError(err)
	}
	return a, nil
}

func mapAssetError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return shared.NewConflictError("asset", "duplicate key", err)
		case "23503":
			return shared.NewConflictError("asset", "still referenced", err)
		}
	}
	return err
}

func (r *txRepository) GetAssetForUpdate(ctx context.Context, id int64) (Asset, error) {
	return scanAsset(r.tx.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) InsertAsset(ctx context.Context, input AssetInput) (Asset, error) {
	return scanAsset(r.tx.QueryRow(ctx, `INSERT INTO assets
(company_id, name, code, partner_id, currency_id, asset_account_id, depreciation_account_id, expense_account_id,
journal_id, acquisition_date, first_depreciation_date, original_value, salvage_value, method, method_number,
method_period, prorata, state, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,'draft',$18,now(),now())
RETURNING `+assetColumns,
		input.CompanyID, input.Name, input.Code, input.PartnerID, input.CurrencyID, input.AssetAccountID,
		input.DepreciationAccountID, input.ExpenseAccountID, input.JournalID, input.AcquisitionDate,
		input.FirstDepreciationDate, input.OriginalValue, input.SalvageValue, input.Method, input.MethodNumber,
		input.MethodPeriod, input.Prorata, input.Note))
}

func (r *txRepository) UpdateAsset(ctx context.Context, id int64, input AssetInput) (Asset, error) {
	return scanAsset(r.tx.QueryRow(ctx, `UPDATE assets SET
name=$2, code=$3, partner_id=$4, currency_id=$5, asset_account_id=$6, depreciation_account_id=$7,
expense_account_id=$8, journal_id=$9, acquisition_date=$10, first_depreciation_date=$11, original_value=$12,
salvage_value=$13, method=$14, method_number=$15, method_period=$16, prorata=$17, note=$18, updated_at=now()
WHERE id=$1
RETURNING `+assetColumns,
		id, input.Name, input.Code, input.PartnerID, input.CurrencyID, input.AssetAccountID,
		input.DepreciationAccountID, input.ExpenseAccountID, input.JournalID, input.AcquisitionDate,
		input.FirstDepreciationDate, input.OriginalValue, input.SalvageValue, input.Method, input.MethodNumber,
		input.MethodPeriod, input.Prorata, input.Note))
}

func (r *txRepository) UpdateAssetState(ctx context.Context, id int64, state AssetState) error {
	tag, err := r.tx.Exec(ctx, `UPDATE assets SET state=$2, updated_at=now() WHERE id=$1`, id, state)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

const lineColumns = `id, asset_id, move_id, sequence, date, amount, depreciated_value, residual_value, state, created_at, updated_at`

func (r *txRepository) ListDepreciationLines(ctx context.Context, assetID int64) ([]DepreciationLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lineColumns+` FROM asset_depreciation_lines WHERE asset_id=$1 ORDER BY sequence ASC, id ASC`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

func collectLines(rows pgx.Rows) ([]DepreciationLine, error) {
	var lines []DepreciationLine
	for rows.Next() {
		var l DepreciationLine
		if err := rows.Scan(&l.ID, &l.AssetID, &l.MoveID, &l.Sequence, &l.Date, &l.Amount,
			&l.DepreciatedValue, &l.ResidualValue, &l.State, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *txRepository) GetDepreciationLineForUpdate(ctx context.Context, id int64) (DepreciationLine, error) {
	var l DepreciationLine
	err := r.tx.QueryRow(ctx, `SELECT `+lineColumns+` FROM asset_depreciation_lines WHERE id=$1 FOR UPDATE`, id).
		Scan(&l.ID, &l.AssetID, &l.MoveID, &l.Sequence, &l.Date, &l.Amount,
			&l.DepreciatedValue, &l.ResidualValue, &l.State, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepreciationLine{}, ErrLineNotFound
		}
		return DepreciationLine{}, err
	}
	return l, nil
}

func (r *txRepository) DeleteDraftLines(ctx context.Context, assetID int64) (int, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM asset_depreciation_lines WHERE asset_id=$1 AND state='draft'`, assetID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *txRepository) InsertDepreciationLines(ctx context.Context, assetID int64, board []ScheduleLine) (int, error) {
	for _, line := range board {
		if _, err := r.tx.Exec(ctx, `INSERT INTO asset_depreciation_lines
(asset_id, sequence, date, amount, depreciated_value, residual_value, state, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,'draft',now(),now())`,
			assetID, line.Sequence, line.Date, line.Amount, line.DepreciatedValue, line.ResidualValue); err != nil {
			return 0, mapAssetError(err)
		}
	}
	return len(board), nil
}

func (r *txRepository) MarkLinePosted(ctx context.Context, lineID, moveID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE asset_depreciation_lines SET move_id=$2, state='posted', updated_at=now() WHERE id=$1`, lineID, moveID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

// GetAsset loads an asset with its schedule.
func (r *Repository) GetAsset(ctx context.Context, id int64) (Asset, []DepreciationLine, error) {
	asset, err := scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=$1`, id))
	if err != nil {
		return Asset{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+lineColumns+` FROM asset_depreciation_lines WHERE asset_id=$1 ORDER BY sequence ASC, id ASC`, id)
	if err != nil {
		return Asset{}, nil, err
	}
	defer rows.Close()
	lines, err := collectLines(rows)
	if err != nil {
		return Asset{}, nil, err
	}
	return asset, lines, nil
}

// ListAssets lists assets with pagination.
func (r *Repository) ListAssets(ctx context.Context, filters AssetFilters) ([]Asset, int, error) {
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

	query := `SELECT ` + assetColumns + `, COUNT(*) OVER() AS total FROM assets WHERE 1=1`
	args := []any{}
	if filters.CompanyID != nil {
		args = append(args, *filters.CompanyID)
		query += fmt.Sprintf(" AND company_id=$%d", len(args))
	}
	if filters.State != nil {
		args = append(args, *filters.State)
		query += fmt.Sprintf(" AND state=$%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY acquisition_date DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		assets []Asset
		total  int
	)
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Name, &a.Code, &a.PartnerID, &a.CurrencyID, &a.AssetAccountID,
			&a.DepreciationAccountID, &a.ExpenseAccountID, &a.JournalID, &a.AcquisitionDate, &a.FirstDepreciationDate,
			&a.OriginalValue, &a.SalvageValue, &a.Method, &a.MethodNumber, &a.MethodPeriod, &a.Prorata, &a.State, &a.Note,
			&a.CreatedAt, &a.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		assets = append(assets, a)
	}
	return assets, total, rows.Err()
}
