package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository persists moves and their lines.
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

// TxView wraps an open transaction in the posting engine's repository
// interface, letting sibling packages post inside their own transaction.
func TxView(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
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

const moveColumns = `id, company_id, journal_id, move_type, state, date, reference, partner_id, currency_id,
is_debit_note, reversed_entry_id, debit_origin_id, source_module, source_id, posted_at, created_at, updated_at`

func scanMove(row pgx.Row) (Move, error) {
	var m Move
	err := row.Scan(&m.ID, &m.CompanyID, &m.JournalID, &m.Type, &m.State, &m.Date, &m.Reference, &m.PartnerID, &m.CurrencyID,
		&m.IsDebitNote, &m.ReversedEntryID, &m.DebitOriginID, &m.SourceModule, &m.SourceID, &m.PostedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Move{}, ErrMoveNotFound
		}
		return Move{}, err
	}
	return m, nil
}

func (r *txRepository) GetMoveForUpdate(ctx context.Context, id int64) (Move, error) {
	return scanMove(r.tx.QueryRow(ctx, `SELECT `+moveColumns+` FROM moves WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) GetMoveLines(ctx context.Context, moveID int64) ([]MoveLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, move_id, account_id, partner_id, name, debit, credit, currency_id, amount_currency, analytic_distribution, created_at, updated_at
FROM move_lines WHERE move_id=$1 ORDER BY id ASC`, moveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMoveLines(rows)
}

func collectMoveLines(rows pgx.Rows) ([]MoveLine, error) {
	var lines []MoveLine
	for rows.Next() {
		var line MoveLine
		var analytic []byte
		if err := rows.Scan(&line.ID, &line.MoveID, &line.AccountID, &line.PartnerID, &line.Name, &line.Debit, &line.Credit,
			&line.CurrencyID, &line.AmountCurrency, &analytic, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return nil, err
		}
		dist, err := shared.ScanDistribution(analytic)
		if err != nil {
			return nil, err
		}
		line.Analytic = dist
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) GetJournal(ctx context.Context, id int64) (masterdata.Journal, error) {
	var j masterdata.Journal
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, code, name, journal_type, default_account_id, created_at, updated_at FROM journals WHERE id=$1`, id).
		Scan(&j.ID, &j.CompanyID, &j.Code, &j.Name, &j.Type, &j.DefaultAccountID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return masterdata.Journal{}, shared.Validationf("journal_id", "journal %d does not exist", id)
		}
		return masterdata.Journal{}, err
	}
	return j, nil
}

func (r *txRepository) GetCompany(ctx context.Context, id int64) (masterdata.Company, error) {
	var c masterdata.Company
	err := r.tx.QueryRow(ctx, `SELECT id, code, name, currency_id, country_id, lock_date, created_at, updated_at FROM companies WHERE id=$1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.CurrencyID, &c.CountryID, &c.LockDate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return masterdata.Company{}, shared.Validationf("company_id", "company %d does not exist", id)
		}
		return masterdata.Company{}, err
	}
	return c, nil
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (masterdata.Account, error) {
	var a masterdata.Account
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, code, name, account_type, root_id, group_id, currency_id, reconcile, deprecated, created_at, updated_at FROM accounts WHERE id=$1`, id).
		Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.RootID, &a.GroupID, &a.CurrencyID, &a.Reconcile, &a.Deprecated, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return masterdata.Account{}, shared.Validationf("account_id", "account %d does not exist", id)
		}
		return masterdata.Account{}, err
	}
	return a, nil
}

func (r *txRepository) InsertMove(ctx context.Context, input MoveInput, state MoveState) (Move, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO moves (company_id, journal_id, move_type, state, date, reference, partner_id, currency_id,
is_debit_note, reversed_entry_id, debit_origin_id, source_module, source_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
RETURNING id, created_at, updated_at`,
		input.CompanyID, input.JournalID, input.Type, state, input.Date, input.Reference, input.PartnerID, input.CurrencyID,
		input.IsDebitNote, input.ReversedEntryID, input.DebitOriginID, input.SourceModule, input.SourceID)
	move := Move{
		CompanyID:       input.CompanyID,
		JournalID:       input.JournalID,
		Type:            input.Type,
		State:           state,
		Date:            input.Date,
		Reference:       input.Reference,
		PartnerID:       input.PartnerID,
		CurrencyID:      input.CurrencyID,
		IsDebitNote:     input.IsDebitNote,
		ReversedEntryID: input.ReversedEntryID,
		DebitOriginID:   input.DebitOriginID,
		SourceModule:    input.SourceModule,
		SourceID:        input.SourceID,
	}
	if err := row.Scan(&move.ID, &move.CreatedAt, &move.UpdatedAt); err != nil {
		return Move{}, err
	}
	return move, nil
}

func (r *txRepository) InsertMoveLines(ctx context.Context, moveID int64, lines []LineInput) ([]MoveLine, error) {
	out := make([]MoveLine, 0, len(lines))
	for _, line := range lines {
		analytic, err := line.Analytic.Value()
		if err != nil {
			return nil, err
		}
		inserted := MoveLine{
			MoveID:         moveID,
			AccountID:      line.AccountID,
			PartnerID:      line.PartnerID,
			Name:           line.Name,
			Debit:          shared.Round6(line.Debit),
			Credit:         shared.Round6(line.Credit),
			CurrencyID:     line.CurrencyID,
			AmountCurrency: shared.Round6(line.AmountCurrency),
			Analytic:       line.Analytic,
		}
		err = r.tx.QueryRow(ctx, `INSERT INTO move_lines (move_id, account_id, partner_id, name, debit, credit, currency_id, amount_currency, analytic_distribution)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at, updated_at`,
			moveID, line.AccountID, line.PartnerID, line.Name, inserted.Debit, inserted.Credit, line.CurrencyID, inserted.AmountCurrency, analytic).
			Scan(&inserted.ID, &inserted.CreatedAt, &inserted.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

func (r *txRepository) DeleteMoveLines(ctx context.Context, moveID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM move_lines WHERE move_id=$1`, moveID)
	return err
}

func (r *txRepository) UpdateMoveState(ctx context.Context, moveID int64, state MoveState, postedAt *time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE moves SET state=$2, posted_at=$3, updated_at=NOW() WHERE id=$1`, moveID, state, postedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrMoveNotFound
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, moveID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, move_id) VALUES ($1,$2,$3)`, module, ref, moveID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.NewConflictError("source_link", "source already linked to a move", err)
		}
		return err
	}
	return nil
}

// GetMoveWithLines fetches a move and its lines outside a transaction.
func (r *Repository) GetMoveWithLines(ctx context.Context, id int64) (Move, error) {
	move, err := scanMove(r.pool.QueryRow(ctx, `SELECT `+moveColumns+` FROM moves WHERE id=$1`, id))
	if err != nil {
		return Move{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, move_id, account_id, partner_id, name, debit, credit, currency_id, amount_currency, analytic_distribution, created_at, updated_at
FROM move_lines WHERE move_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Move{}, err
	}
	defer rows.Close()
	move.Lines, err = collectMoveLines(rows)
	if err != nil {
		return Move{}, err
	}
	return move, nil
}

// ListMoves lists move headers matching the filters.
func (r *Repository) ListMoves(ctx context.Context, filters MoveFilters) ([]Move, int, error) {
	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	page := filters.Page
	if page < 1 {
		page = 1
	}
	rows, err := r.pool.Query(ctx, `SELECT `+moveColumns+`, COUNT(*) OVER() FROM moves
WHERE ($1::bigint IS NULL OR company_id=$1)
  AND ($2::bigint IS NULL OR journal_id=$2)
  AND ($3::text IS NULL OR state=$3)
  AND ($4::text IS NULL OR move_type=$4)
ORDER BY date DESC, id DESC LIMIT $5 OFFSET $6`,
		filters.CompanyID, filters.JournalID, filters.State, filters.Type, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var moves []Move
	var total int
	for rows.Next() {
		var m Move
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.JournalID, &m.Type, &m.State, &m.Date, &m.Reference, &m.PartnerID, &m.CurrencyID,
			&m.IsDebitNote, &m.ReversedEntryID, &m.DebitOriginID, &m.SourceModule, &m.SourceID, &m.PostedAt, &m.CreatedAt, &m.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		moves = append(moves, m)
	}
	return moves, total, rows.Err()
}
