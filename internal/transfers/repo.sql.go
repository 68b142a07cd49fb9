package transfers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// ErrModelNotFound reports a missing transfer model.
var ErrModelNotFound = fmt.Errorf("transfers: model: %w", shared.ErrNotFound)

// ErrLineNotFound reports a missing transfer model line.
var ErrLineNotFound = fmt.Errorf("transfers: line: %w", shared.ErrNotFound)

// Repository persists transfer models and their period links.
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
		return errors.New("transfers repository not initialised")
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

const modelColumns = `id, company_id, journal_id, name, active, date_start, date_stop, frequency,
source_account_ids, total_percent, state, created_at, updated_at`

func scanModel(row pgx.Row) (TransferModel, error) {
	var m TransferModel
	err := row.Scan(&m.ID, &m.CompanyID, &m.JournalID, &m.Name, &m.Active, &m.DateStart, &m.DateStop, &m.Frequency,
		&m.SourceAccountIDs, &m.TotalPercent, &m.State, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TransferModel{}, ErrModelNotFound
		}
		return TransferModel{}, mapModelError(err)
	}
	return m, nil
}

const lineColumns = `id, model_id, account_id, percent, partner_ids, analytic_account_ids, sequence,
created_at, updated_at`

func scanModelLine(row pgx.Row) (ModelLine, error) {
	var l ModelLine
	err := row.Scan(&l.ID, &l.ModelID, &l.AccountID, &l.Percent, &l.PartnerIDs, &l.AnalyticAccountIDs, &l.Sequence,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ModelLine{}, ErrLineNotFound
		}
		return ModelLine{}, mapModelError(err)
	}
	return l, nil
}

func mapModelError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return shared.NewConflictError("transfer_model", "duplicate key", err)
		case "23503":
			return shared.NewConflictError("transfer_model", "still referenced", err)
		}
	}
	return err
}

func (r *txRepository) GetModelForUpdate(ctx context.Context, id int64) (TransferModel, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+modelColumns+` FROM transfer_models WHERE id=$1 FOR UPDATE`, id)
	return scanModel(row)
}

func (r *txRepository) InsertModel(ctx context.Context, input ModelInput) (TransferModel, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO transfer_models (company_id, journal_id, name, active, date_start, date_stop, frequency,
			source_account_ids, total_percent, state, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $5, $6, $7, 0, 'disabled', NOW(), NOW())
		RETURNING `+modelColumns,
		input.CompanyID, input.JournalID, input.Name, input.DateStart, input.DateStop, input.Frequency,
		input.SourceAccountIDs)
	return scanModel(row)
}

func (r *txRepository) UpdateModel(ctx context.Context, id int64, input ModelInput) (TransferModel, error) {
	row := r.tx.QueryRow(ctx, `
		UPDATE transfer_models
		SET journal_id=$2, name=$3, date_start=$4, date_stop=$5, frequency=$6, source_account_ids=$7, updated_at=NOW()
		WHERE id=$1
		RETURNING `+modelColumns,
		id, input.JournalID, input.Name, input.DateStart, input.DateStop, input.Frequency, input.SourceAccountIDs)
	return scanModel(row)
}

func (r *txRepository) SetModelState(ctx context.Context, id int64, state ModelState) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transfer_models SET state=$2, updated_at=NOW() WHERE id=$1`, id, state)
	if err != nil {
		return mapModelError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrModelNotFound
	}
	return nil
}

func (r *txRepository) SetTotalPercent(ctx context.Context, id int64, percent decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE transfer_models SET total_percent=$2, updated_at=NOW() WHERE id=$1`, id, percent)
	if err != nil {
		return mapModelError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrModelNotFound
	}
	return nil
}

func (r *txRepository) DeleteModel(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM transfer_model_lines WHERE model_id=$1`, id); err != nil {
		return mapModelError(err)
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM transfer_model_moves WHERE model_id=$1`, id); err != nil {
		return mapModelError(err)
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM transfer_models WHERE id=$1`, id)
	if err != nil {
		return mapModelError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrModelNotFound
	}
	return nil
}

func (r *txRepository) ListModelLines(ctx context.Context, modelID int64) ([]ModelLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lineColumns+` FROM transfer_model_lines WHERE model_id=$1 ORDER BY sequence ASC, id ASC`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectModelLines(rows)
}

func collectModelLines(rows pgx.Rows) ([]ModelLine, error) {
	var out []ModelLine
	for rows.Next() {
		line, err := scanModelLine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func (r *txRepository) GetModelLine(ctx context.Context, lineID int64) (ModelLine, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+lineColumns+` FROM transfer_model_lines WHERE id=$1 FOR UPDATE`, lineID)
	return scanModelLine(row)
}

func (r *txRepository) InsertModelLine(ctx context.Context, modelID int64, input LineInput) (ModelLine, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO transfer_model_lines (model_id, account_id, percent, partner_ids, analytic_account_ids, sequence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING `+lineColumns,
		modelID, input.AccountID, input.Percent, input.PartnerIDs, input.AnalyticAccountIDs, input.Sequence)
	return scanModelLine(row)
}

func (r *txRepository) UpdateModelLine(ctx context.Context, lineID int64, input LineInput) (ModelLine, error) {
	row := r.tx.QueryRow(ctx, `
		UPDATE transfer_model_lines
		SET account_id=$2, percent=$3, partner_ids=$4, analytic_account_ids=$5, sequence=$6, updated_at=NOW()
		WHERE id=$1
		RETURNING `+lineColumns,
		lineID, input.AccountID, input.Percent, input.PartnerIDs, input.AnalyticAccountIDs, input.Sequence)
	return scanModelLine(row)
}

func (r *txRepository) DeleteModelLine(ctx context.Context, lineID int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM transfer_model_lines WHERE id=$1`, lineID)
	if err != nil {
		return mapModelError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

// PostedSourceLines sweeps the posted move lines matching the filter.
// Analytic matching looks inside the jsonb distribution of each line.
func (r *txRepository) PostedSourceLines(ctx context.Context, filter SourceLineFilter) ([]SourceLine, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	conds = append(conds, "ml.account_id = ANY("+arg(filter.AccountIDs)+")")
	conds = append(conds, "m.date >= "+arg(filter.Start))
	conds = append(conds, "m.date <= "+arg(filter.End))
	conds = append(conds, "m.state = 'posted'")
	if len(filter.PartnerIDs) > 0 {
		conds = append(conds, "ml.partner_id = ANY("+arg(filter.PartnerIDs)+")")
	}
	if len(filter.AnalyticAccountIDs) > 0 {
		conds = append(conds, `EXISTS (
			SELECT 1 FROM jsonb_array_elements(COALESCE(ml.analytic_distribution, '[]'::jsonb)) AS e
			WHERE (e->>'analytic_account_id')::bigint = ANY(`+arg(filter.AnalyticAccountIDs)+`))`)
	}
	if len(filter.ExcludePartnerIDs) > 0 {
		conds = append(conds, "(ml.partner_id IS NULL OR NOT (ml.partner_id = ANY("+arg(filter.ExcludePartnerIDs)+")))")
	}
	if len(filter.ExcludeAnalyticAccountIDs) > 0 {
		conds = append(conds, `NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements(COALESCE(ml.analytic_distribution, '[]'::jsonb)) AS e
			WHERE (e->>'analytic_account_id')::bigint = ANY(`+arg(filter.ExcludeAnalyticAccountIDs)+`))`)
	}
	if len(filter.ExcludeLineIDs) > 0 {
		conds = append(conds, "NOT (ml.id = ANY("+arg(filter.ExcludeLineIDs)+"))")
	}

	query := `SELECT ml.id, ml.account_id, ml.debit, ml.credit
		FROM move_lines ml JOIN moves m ON m.id = ml.move_id
		WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY ml.id ASC`
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceLine
	for rows.Next() {
		var line SourceLine
		if err := rows.Scan(&line.ID, &line.AccountID, &line.Debit, &line.Credit); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

func (r *txRepository) LastPostedPeriod(ctx context.Context, modelID int64) (*time.Time, error) {
	var last *time.Time
	err := r.tx.QueryRow(ctx, `
		SELECT MAX(tm.period_end) FROM transfer_model_moves tm
		JOIN moves m ON m.id = tm.move_id
		WHERE tm.model_id=$1 AND m.state='posted'`, modelID).Scan(&last)
	if err != nil {
		return nil, err
	}
	return last, nil
}

func (r *txRepository) FindDraftPeriodMove(ctx context.Context, modelID int64, end time.Time) (int64, bool, error) {
	var moveID int64
	err := r.tx.QueryRow(ctx, `
		SELECT tm.move_id FROM transfer_model_moves tm
		JOIN moves m ON m.id = tm.move_id
		WHERE tm.model_id=$1 AND tm.period_end=$2 AND m.state='draft'
		ORDER BY tm.move_id DESC LIMIT 1`, modelID, end).Scan(&moveID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return moveID, true, nil
}

func (r *txRepository) LinkPeriodMove(ctx context.Context, modelID, moveID int64, end time.Time) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO transfer_model_moves (model_id, move_id, period_end, created_at)
		VALUES ($1, $2, $3, NOW())`, modelID, moveID, end)
	return mapModelError(err)
}

func (r *txRepository) CountModelMoves(ctx context.Context, modelID int64, state ledger.MoveState) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM transfer_model_moves tm
		JOIN moves m ON m.id = tm.move_id
		WHERE tm.model_id=$1 AND m.state=$2`, modelID, state).Scan(&n)
	return n, err
}

// Pool-level reads.

func (r *Repository) GetModel(ctx context.Context, id int64) (TransferModel, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+modelColumns+` FROM transfer_models WHERE id=$1`, id)
	model, err := scanModel(row)
	if err != nil {
		return TransferModel{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+lineColumns+` FROM transfer_model_lines WHERE model_id=$1 ORDER BY sequence ASC, id ASC`, id)
	if err != nil {
		return TransferModel{}, err
	}
	defer rows.Close()
	model.Lines, err = collectModelLines(rows)
	if err != nil {
		return TransferModel{}, err
	}
	return model, nil
}

func (r *Repository) ListModels(ctx context.Context, filters ModelFilters) ([]TransferModel, int, error) {
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

	var (
		conds = []string{"TRUE"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.CompanyID != nil {
		conds = append(conds, "company_id = "+arg(*filters.CompanyID))
	}
	if filters.State != nil {
		conds = append(conds, "state = "+arg(*filters.State))
	}
	query := `SELECT ` + modelColumns + `, COUNT(*) OVER() AS total FROM transfer_models
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY id ASC LIMIT ` + arg(limit) + ` OFFSET ` + arg(offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		models []TransferModel
		total  int
	)
	for rows.Next() {
		var m TransferModel
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.JournalID, &m.Name, &m.Active, &m.DateStart, &m.DateStop, &m.Frequency,
			&m.SourceAccountIDs, &m.TotalPercent, &m.State, &m.CreatedAt, &m.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return models, total, nil
}

func (r *Repository) ListRunnableModels(ctx context.Context) ([]TransferModel, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+modelColumns+` FROM transfer_models WHERE state='in_progress' AND active ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TransferModel
	for rows.Next() {
		model, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, model)
	}
	return out, rows.Err()
}
