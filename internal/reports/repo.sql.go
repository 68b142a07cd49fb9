package reports

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the aggregation queries behind the reports. All reads
// go through a repeatable-read transaction so one report sees a single
// consistent snapshot even while postings land concurrently.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) snapshot(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func activityConds(q ActivityQuery, args *[]any) []string {
	arg := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}
	conds := []string{
		"m.company_id = " + arg(q.CompanyID),
		"NOT a.deprecated",
	}
	if q.PostedOnly {
		conds = append(conds, "m.state = 'posted'")
	}
	if q.DateFrom != nil {
		conds = append(conds, "m.date >= "+arg(*q.DateFrom))
	}
	if q.DateTo != nil {
		conds = append(conds, "m.date <= "+arg(*q.DateTo))
	}
	if len(q.Types) > 0 {
		types := make([]string, len(q.Types))
		for i, t := range q.Types {
			types[i] = string(t)
		}
		conds = append(conds, "a.account_type = ANY("+arg(types)+")")
	}
	if q.AccountID != nil {
		conds = append(conds, "ml.account_id = "+arg(*q.AccountID))
	}
	return conds
}

// AccountTotals aggregates debit and credit per account over the window.
func (r *Repository) AccountTotals(ctx context.Context, q ActivityQuery) ([]AccountActivity, error) {
	var args []any
	conds := activityConds(q, &args)
	query := `
		SELECT ml.account_id, a.code, a.name, a.account_type,
			COALESCE(SUM(ml.debit), 0), COALESCE(SUM(ml.credit), 0)
		FROM move_lines ml
		JOIN moves m ON m.id = ml.move_id
		JOIN accounts a ON a.id = ml.account_id
		WHERE ` + strings.Join(conds, " AND ") + `
		GROUP BY ml.account_id, a.code, a.name, a.account_type
		ORDER BY a.code ASC, ml.account_id ASC`

	var rows []AccountActivity
	err := r.snapshot(ctx, func(tx pgx.Tx) error {
		res, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer res.Close()
		for res.Next() {
			var row AccountActivity
			if err := res.Scan(&row.AccountID, &row.Code, &row.Name, &row.Type, &row.Debit, &row.Credit); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return res.Err()
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// PeriodEntries lists the raw move lines in the window, ordered for the
// general ledger's running balance walk.
func (r *Repository) PeriodEntries(ctx context.Context, q ActivityQuery) ([]JournalEntry, error) {
	var args []any
	conds := activityConds(q, &args)
	query := `
		SELECT ml.id, ml.account_id, a.code, a.name, a.account_type,
			m.date, m.id, m.reference, ml.partner_id, COALESCE(p.name, ''),
			ml.name, ml.debit, ml.credit
		FROM move_lines ml
		JOIN moves m ON m.id = ml.move_id
		JOIN accounts a ON a.id = ml.account_id
		LEFT JOIN partners p ON p.id = ml.partner_id
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY a.code ASC, m.date ASC, ml.id ASC`

	var entries []JournalEntry
	err := r.snapshot(ctx, func(tx pgx.Tx) error {
		res, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer res.Close()
		for res.Next() {
			var e JournalEntry
			if err := res.Scan(&e.LineID, &e.AccountID, &e.Code, &e.Name, &e.Type,
				&e.Date, &e.MoveID, &e.MoveReference, &e.PartnerID, &e.PartnerName,
				&e.Label, &e.Debit, &e.Credit); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return res.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
