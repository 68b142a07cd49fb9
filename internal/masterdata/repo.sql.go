package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// SQLRepository persists master data in PostgreSQL.
type SQLRepository struct {
	pool *pgxpool.Pool
}

// NewSQLRepository constructs SQLRepository.
func NewSQLRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

func mapStoreError(entity string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("masterdata: %s: %w", entity, shared.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return shared.NewConflictError(entity, "duplicate key", err)
		case "23503":
			return shared.NewConflictError(entity, "still referenced", err)
		}
	}
	return err
}

func listWindow(filters ListFilters) (limit, offset int) {
	limit = filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	page := filters.Page
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// Company operations

func (r *SQLRepository) ListCompanies(ctx context.Context, filters ListFilters) ([]Company, int, error) {
	limit, offset := listWindow(filters)
	search := "%" + strings.TrimSpace(filters.Search) + "%"
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, currency_id, country_id, lock_date, created_at, updated_at,
COUNT(*) OVER() FROM companies WHERE ($1 = '%%' OR name ILIKE $1 OR code ILIKE $1) ORDER BY code LIMIT $2 OFFSET $3`, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Company
	var total int
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.CurrencyID, &c.CountryID, &c.LockDate, &c.CreatedAt, &c.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) GetCompany(ctx context.Context, id int64) (Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, currency_id, country_id, lock_date, created_at, updated_at FROM companies WHERE id=$1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.CurrencyID, &c.CountryID, &c.LockDate, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Company{}, mapStoreError("company", err)
	}
	return c, nil
}

func (r *SQLRepository) CreateCompany(ctx context.Context, company Company) (Company, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO companies (code, name, currency_id, country_id) VALUES ($1,$2,$3,$4)
RETURNING id, created_at, updated_at`, company.Code, company.Name, company.CurrencyID, company.CountryID).
		Scan(&company.ID, &company.CreatedAt, &company.UpdatedAt)
	if err != nil {
		return Company{}, mapStoreError("company", err)
	}
	return company, nil
}

func (r *SQLRepository) UpdateCompany(ctx context.Context, id int64, company Company) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE companies SET code=$2, name=$3, currency_id=$4, country_id=$5, updated_at=NOW() WHERE id=$1`,
		id, company.Code, company.Name, company.CurrencyID, company.CountryID)
	if err != nil {
		return mapStoreError("company", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("masterdata: company: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) SetCompanyLockDate(ctx context.Context, id int64, lockDate *time.Time) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE companies SET lock_date=$2, updated_at=NOW() WHERE id=$1`, id, lockDate)
	if err != nil {
		return mapStoreError("company", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("masterdata: company: %w", shared.ErrNotFound)
	}
	return nil
}

// Currency and geo reference data

func (r *SQLRepository) ListCurrencies(ctx context.Context, filters ListFilters) ([]Currency, int, error) {
	limit, offset := listWindow(filters)
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, symbol, COUNT(*) OVER() FROM currencies ORDER BY code LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Currency
	var total int
	for rows.Next() {
		var c Currency
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Symbol, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) GetCurrency(ctx context.Context, id int64) (Currency, error) {
	var c Currency
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, symbol FROM currencies WHERE id=$1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.Symbol)
	if err != nil {
		return Currency{}, mapStoreError("currency", err)
	}
	return c, nil
}

func (r *SQLRepository) CreateCurrency(ctx context.Context, currency Currency) (Currency, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO currencies (code, name, symbol) VALUES ($1,$2,$3) RETURNING id`,
		currency.Code, currency.Name, currency.Symbol).Scan(&currency.ID)
	if err != nil {
		return Currency{}, mapStoreError("currency", err)
	}
	return currency, nil
}

func (r *SQLRepository) ListCountries(ctx context.Context, filters ListFilters) ([]Country, int, error) {
	limit, offset := listWindow(filters)
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, COUNT(*) OVER() FROM countries ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Country
	var total int
	for rows.Next() {
		var c Country
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) GetCountry(ctx context.Context, id int64) (Country, error) {
	var c Country
	err := r.pool.QueryRow(ctx, `SELECT id, code, name FROM countries WHERE id=$1`, id).Scan(&c.ID, &c.Code, &c.Name)
	if err != nil {
		return Country{}, mapStoreError("country", err)
	}
	return c, nil
}

func (r *SQLRepository) GetState(ctx context.Context, id int64) (CountryState, error) {
	var s CountryState
	err := r.pool.QueryRow(ctx, `SELECT id, country_id, code, name FROM country_states WHERE id=$1`, id).
		Scan(&s.ID, &s.CountryID, &s.Code, &s.Name)
	if err != nil {
		return CountryState{}, mapStoreError("state", err)
	}
	return s, nil
}

func (r *SQLRepository) GetCity(ctx context.Context, id int64) (CountryCity, error) {
	var c CountryCity
	err := r.pool.QueryRow(ctx, `SELECT id, state_id, name FROM country_cities WHERE id=$1`, id).
		Scan(&c.ID, &c.StateID, &c.Name)
	if err != nil {
		return CountryCity{}, mapStoreError("city", err)
	}
	return c, nil
}

// Partner operations

func (r *SQLRepository) ListPartners(ctx context.Context, filters ListFilters) ([]Partner, int, error) {
	limit, offset := listWindow(filters)
	search := "%" + strings.TrimSpace(filters.Search) + "%"
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, code, name, email, phone, country_id, state_id, city_id, is_active, created_at, updated_at,
COUNT(*) OVER() FROM partners
WHERE ($1::bigint IS NULL OR company_id=$1) AND ($2 = '%%' OR name ILIKE $2 OR code ILIKE $2) AND ($3::bool IS NULL OR is_active=$3)
ORDER BY name LIMIT $4 OFFSET $5`, filters.CompanyID, search, filters.IsActive, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Partner
	var total int
	for rows.Next() {
		var p Partner
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Code, &p.Name, &p.Email, &p.Phone, &p.CountryID, &p.StateID, &p.CityID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) GetPartner(ctx context.Context, id int64) (Partner, error) {
	var p Partner
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, code, name, email, phone, country_id, state_id, city_id, is_active, created_at, updated_at FROM partners WHERE id=$1`, id).
		Scan(&p.ID, &p.CompanyID, &p.Code, &p.Name, &p.Email, &p.Phone, &p.CountryID, &p.StateID, &p.CityID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Partner{}, mapStoreError("partner", err)
	}
	return p, nil
}

func (r *SQLRepository) CreatePartner(ctx context.Context, partner Partner) (Partner, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO partners (company_id, code, name, email, phone, country_id, state_id, city_id, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at, updated_at`,
		partner.CompanyID, partner.Code, partner.Name, partner.Email, partner.Phone, partner.CountryID, partner.StateID, partner.CityID, partner.IsActive).
		Scan(&partner.ID, &partner.CreatedAt, &partner.UpdatedAt)
	if err != nil {
		return Partner{}, mapStoreError("partner", err)
	}
	return partner, nil
}

func (r *SQLRepository) UpdatePartner(ctx context.Context, id int64, partner Partner) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE partners SET code=$2, name=$3, email=$4, phone=$5, country_id=$6, state_id=$7, city_id=$8, is_active=$9, updated_at=NOW() WHERE id=$1`,
		id, partner.Code, partner.Name, partner.Email, partner.Phone, partner.CountryID, partner.StateID, partner.CityID, partner.IsActive)
	if err != nil {
		return mapStoreError("partner", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("masterdata: partner: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) DeletePartner(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM partners WHERE id=$1`, id)
	if err != nil {
		return mapStoreError("partner", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("masterdata: partner: %w", shared.ErrNotFound)
	}
	return nil
}

// Account operations

func (r *SQLRepository) ListAccounts(ctx context.Context, filters ListFilters) ([]Account, int, error) {
	limit, offset := listWindow(filters)
	search := "%" + strings.TrimSpace(filters.Search) + "%"
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, code, name, account_type, root_id, group_id, currency_id, reconcile, deprecated, created_at, updated_at,
COUNT(*) OVER() FROM accounts
WHERE ($1::bigint IS NULL OR company_id=$1) AND ($2 = '%%' OR name ILIKE $2 OR code ILIKE $2)
ORDER BY code LIMIT $3 OFFSET $4`, filters.CompanyID, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Account
	var total int
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.RootID, &a.GroupID, &a.CurrencyID, &a.Reconcile, &a.Deprecated, &a.CreatedAt, &a.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, code, name, account_type, root_id, group_id, currency_id, reconcile, deprecated, created_at, updated_at FROM accounts WHERE id=$1`, id).
		Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.RootID, &a.GroupID, &a.CurrencyID, &a.Reconcile, &a.Deprecated, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, mapStoreError("account", err)
	}
	return a, nil
}

func (r *SQLRepository) CreateAccount(ctx context.Context, account Account) (Account, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO accounts (company_id, code, name, account_type, root_id, group_id, currency_id, reconcile, deprecated)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at, updated_at`,
		account.CompanyID, account.Code, account.Name, account.Type, account.RootID, account.GroupID, account.CurrencyID, account.Reconcile, account.Deprecated).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return Account{}, mapStoreError("account", err)
	}
	return account, nil
}

func (r *SQLRepository) UpdateAccount(ctx context.Context, id int64, account Account) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE accounts SET code=$2, name=$3, account_type=$4, root_id=$5, group_id=$6, currency_id=$7, reconcile=$8, deprecated=$9, updated_at=NOW() WHERE id=$1`,
		id, account.Code, account.Name, account.Type, account.RootID, account.GroupID, account.CurrencyID, account.Reconcile, account.Deprecated)
	if err != nil {
		return mapStoreError("account", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("masterdata: account: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) DeleteAccount(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id=$1`, id)
	if err != nil {
		return mapStoreError("account", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("masterdata: account: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) AccountHasMoveLines(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM move_lines WHERE account_id=$1)`, id).Scan(&exists)
	return exists, err
}

// Journal operations

func (r *SQLRepository) ListJournals(ctx context.Context, filters ListFilters) ([]Journal, int, error) {
	limit, offset := listWindow(filters)
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, code, name, journal_type, default_account_id, created_at, updated_at,
COUNT(*) OVER() FROM journals WHERE ($1::bigint IS NULL OR company_id=$1) ORDER BY code LIMIT $2 OFFSET $3`, filters.CompanyID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Journal
	var total int
	for rows.Next() {
		var j Journal
		if err := rows.Scan(&j.ID, &j.CompanyID, &j.Code, &j.Name, &j.Type, &j.DefaultAccountID, &j.CreatedAt, &j.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, j)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) GetJournal(ctx context.Context, id int64) (Journal, error) {
	var j Journal
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, code, name, journal_type, default_account_id, created_at, updated_at FROM journals WHERE id=$1`, id).
		Scan(&j.ID, &j.CompanyID, &j.Code, &j.Name, &j.Type, &j.DefaultAccountID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return Journal{}, mapStoreError("journal", err)
	}
	return j, nil
}

func (r *SQLRepository) CreateJournal(ctx context.Context, journal Journal) (Journal, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO journals (company_id, code, name, journal_type, default_account_id)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`,
		journal.CompanyID, journal.Code, journal.Name, journal.Type, journal.DefaultAccountID).
		Scan(&journal.ID, &journal.CreatedAt, &journal.UpdatedAt)
	if err != nil {
		return Journal{}, mapStoreError("journal", err)
	}
	return journal, nil
}

func (r *SQLRepository) UpdateJournal(ctx context.Context, id int64, journal Journal) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE journals SET code=$2, name=$3, journal_type=$4, default_account_id=$5, updated_at=NOW() WHERE id=$1`,
		id, journal.Code, journal.Name, journal.Type, journal.DefaultAccountID)
	if err != nil {
		return mapStoreError("journal", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("masterdata: journal: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) DeleteJournal(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM journals WHERE id=$1`, id)
	if err != nil {
		return mapStoreError("journal", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("masterdata: journal: %w", shared.ErrNotFound)
	}
	return nil
}

// Tax operations

func (r *SQLRepository) ListTaxes(ctx context.Context, filters ListFilters) ([]Tax, int, error) {
	limit, offset := listWindow(filters)
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, name, amount_type, amount, type_tax_use, tax_group_id, account_id, active, created_at, updated_at,
COUNT(*) OVER() FROM taxes WHERE ($1::bigint IS NULL OR company_id=$1) AND ($2::bool IS NULL OR active=$2) ORDER BY name LIMIT $3 OFFSET $4`,
		filters.CompanyID, filters.IsActive, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Tax
	var total int
	for rows.Next() {
		var t Tax
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Name, &t.AmountType, &t.Amount, &t.TypeTaxUse, &t.TaxGroupID, &t.AccountID, &t.Active, &t.CreatedAt, &t.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) GetTax(ctx context.Context, id int64) (Tax, error) {
	var t Tax
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, name, amount_type, amount, type_tax_use, tax_group_id, account_id, active, created_at, updated_at FROM taxes WHERE id=$1`, id).
		Scan(&t.ID, &t.CompanyID, &t.Name, &t.AmountType, &t.Amount, &t.TypeTaxUse, &t.TaxGroupID, &t.AccountID, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Tax{}, mapStoreError("tax", err)
	}
	return t, nil
}

func (r *SQLRepository) CreateTax(ctx context.Context, tax Tax) (Tax, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO taxes (company_id, name, amount_type, amount, type_tax_use, tax_group_id, account_id, active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at, updated_at`,
		tax.CompanyID, tax.Name, tax.AmountType, tax.Amount, tax.TypeTaxUse, tax.TaxGroupID, tax.AccountID, tax.Active).
		Scan(&tax.ID, &tax.CreatedAt, &tax.UpdatedAt)
	if err != nil {
		return Tax{}, mapStoreError("tax", err)
	}
	return tax, nil
}

func (r *SQLRepository) UpdateTax(ctx context.Context, id int64, tax Tax) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE taxes SET name=$2, amount_type=$3, amount=$4, type_tax_use=$5, tax_group_id=$6, account_id=$7, active=$8, updated_at=NOW() WHERE id=$1`,
		id, tax.Name, tax.AmountType, tax.Amount, tax.TypeTaxUse, tax.TaxGroupID, tax.AccountID, tax.Active)
	if err != nil {
		return mapStoreError("tax", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("masterdata: tax: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) DeleteTax(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM taxes WHERE id=$1`, id)
	if err != nil {
		return mapStoreError("tax", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("masterdata: tax: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) ListTaxRepartitionLines(ctx context.Context, taxID int64) ([]TaxRepartitionLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tax_id, repartition_type, document_type, factor_percent, account_id FROM tax_repartition_lines WHERE tax_id=$1 ORDER BY id`, taxID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TaxRepartitionLine
	for rows.Next() {
		var l TaxRepartitionLine
		if err := rows.Scan(&l.ID, &l.TaxID, &l.RepartitionType, &l.DocumentType, &l.FactorPercent, &l.AccountID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLRepository) ReplaceTaxRepartitionLines(ctx context.Context, taxID int64, lines []TaxRepartitionLine) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `DELETE FROM tax_repartition_lines WHERE tax_id=$1`, taxID); err != nil {
		return mapStoreError("tax_repartition_line", err)
	}
	for _, line := range lines {
		if _, err := tx.Exec(ctx, `INSERT INTO tax_repartition_lines (tax_id, repartition_type, document_type, factor_percent, account_id) VALUES ($1,$2,$3,$4,$5)`,
			taxID, line.RepartitionType, line.DocumentType, line.FactorPercent, line.AccountID); err != nil {
			return mapStoreError("tax_repartition_line", err)
		}
	}
	return tx.Commit(ctx)
}

// Analytic operations

func (r *SQLRepository) ListAnalyticAccounts(ctx context.Context, filters ListFilters) ([]AnalyticAccount, int, error) {
	limit, offset := listWindow(filters)
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, plan_id, code, name, active, created_at, updated_at,
COUNT(*) OVER() FROM analytic_accounts WHERE ($1::bigint IS NULL OR company_id=$1) AND ($2::bool IS NULL OR active=$2) ORDER BY code LIMIT $3 OFFSET $4`,
		filters.CompanyID, filters.IsActive, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []AnalyticAccount
	var total int
	for rows.Next() {
		var a AnalyticAccount
		if err := rows.Scan(&a.ID, &a.CompanyID, &a.PlanID, &a.Code, &a.Name, &a.Active, &a.CreatedAt, &a.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) GetAnalyticAccount(ctx context.Context, id int64) (AnalyticAccount, error) {
	var a AnalyticAccount
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, plan_id, code, name, active, created_at, updated_at FROM analytic_accounts WHERE id=$1`, id).
		Scan(&a.ID, &a.CompanyID, &a.PlanID, &a.Code, &a.Name, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return AnalyticAccount{}, mapStoreError("analytic_account", err)
	}
	return a, nil
}

func (r *SQLRepository) CreateAnalyticAccount(ctx context.Context, account AnalyticAccount) (AnalyticAccount, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO analytic_accounts (company_id, plan_id, code, name, active)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`,
		account.CompanyID, account.PlanID, account.Code, account.Name, account.Active).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return AnalyticAccount{}, mapStoreError("analytic_account", err)
	}
	return account, nil
}

func (r *SQLRepository) UpdateAnalyticAccount(ctx context.Context, id int64, account AnalyticAccount) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE analytic_accounts SET plan_id=$2, code=$3, name=$4, active=$5, updated_at=NOW() WHERE id=$1`,
		id, account.PlanID, account.Code, account.Name, account.Active)
	if err != nil {
		return mapStoreError("analytic_account", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("masterdata: analytic_account: %w", shared.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) GetAnalyticPlan(ctx context.Context, id int64) (AnalyticPlan, error) {
	var p AnalyticPlan
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, name FROM analytic_plans WHERE id=$1`, id).
		Scan(&p.ID, &p.CompanyID, &p.Name)
	if err != nil {
		return AnalyticPlan{}, mapStoreError("analytic_plan", err)
	}
	return p, nil
}

func (r *SQLRepository) CreateAnalyticPlan(ctx context.Context, plan AnalyticPlan) (AnalyticPlan, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO analytic_plans (company_id, name) VALUES ($1,$2) RETURNING id`,
		plan.CompanyID, plan.Name).Scan(&plan.ID)
	if err != nil {
		return AnalyticPlan{}, mapStoreError("analytic_plan", err)
	}
	return plan, nil
}

// Settings

func (r *SQLRepository) GetSettings(ctx context.Context, companyID int64) (AccountingSettings, error) {
	var s AccountingSettings
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, transfer_account_id, fiscal_year_last_day, fiscal_year_last_month, created_at, updated_at
FROM accounting_settings WHERE company_id=$1`, companyID).
		Scan(&s.ID, &s.CompanyID, &s.TransferAccountID, &s.FiscalYearLastDay, &s.FiscalYearLastMonth, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Absent settings row behaves as all defaults unset.
			return AccountingSettings{CompanyID: companyID, FiscalYearLastDay: 31, FiscalYearLastMonth: 12}, nil
		}
		return AccountingSettings{}, err
	}
	return s, nil
}

func (r *SQLRepository) UpsertSettings(ctx context.Context, settings AccountingSettings) (AccountingSettings, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO accounting_settings (company_id, transfer_account_id, fiscal_year_last_day, fiscal_year_last_month)
VALUES ($1,$2,$3,$4)
ON CONFLICT (company_id) DO UPDATE SET transfer_account_id=EXCLUDED.transfer_account_id,
fiscal_year_last_day=EXCLUDED.fiscal_year_last_day, fiscal_year_last_month=EXCLUDED.fiscal_year_last_month, updated_at=NOW()
RETURNING id, created_at, updated_at`,
		settings.CompanyID, settings.TransferAccountID, settings.FiscalYearLastDay, settings.FiscalYearLastMonth).
		Scan(&settings.ID, &settings.CreatedAt, &settings.UpdatedAt)
	if err != nil {
		return AccountingSettings{}, mapStoreError("accounting_settings", err)
	}
	return settings, nil
}

// Chart template store

type txChartStore struct {
	tx pgx.Tx
}

func (s *txChartStore) ListChartGroupTemplates(ctx context.Context, countryID int64) ([]ChartGroupTemplate, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, country_id, code_prefix_start, code_prefix_end, name, COALESCE(parent_prefix, '') FROM chart_group_templates WHERE country_id=$1 ORDER BY code_prefix_start`, countryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChartGroupTemplate
	for rows.Next() {
		var t ChartGroupTemplate
		if err := rows.Scan(&t.ID, &t.CountryID, &t.CodePrefixStart, &t.CodePrefixEnd, &t.Name, &t.ParentPrefix); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *txChartStore) ListChartAccountTemplates(ctx context.Context, countryID int64) ([]ChartAccountTemplate, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, country_id, code, name, account_type, COALESCE(group_prefix, '') FROM chart_account_templates WHERE country_id=$1 ORDER BY code`, countryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChartAccountTemplate
	for rows.Next() {
		var t ChartAccountTemplate
		if err := rows.Scan(&t.ID, &t.CountryID, &t.Code, &t.Name, &t.Type, &t.GroupPrefix); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *txChartStore) UpsertAccountGroup(ctx context.Context, group AccountGroup) (AccountGroup, bool, error) {
	var created bool
	err := s.tx.QueryRow(ctx, `INSERT INTO account_groups (company_id, code_prefix_start, code_prefix_end, name, parent_id)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (company_id, code_prefix_start) DO UPDATE SET code_prefix_end=EXCLUDED.code_prefix_end, name=EXCLUDED.name, parent_id=EXCLUDED.parent_id
RETURNING id, (xmax = 0)`,
		group.CompanyID, group.CodePrefixStart, group.CodePrefixEnd, group.Name, group.ParentID).
		Scan(&group.ID, &created)
	if err != nil {
		return AccountGroup{}, false, mapStoreError("account_group", err)
	}
	return group, created, nil
}

func (s *txChartStore) UpsertAccount(ctx context.Context, account Account) (Account, bool, error) {
	var created bool
	// Account type is frozen for existing accounts; the template only
	// refreshes name and group.
	err := s.tx.QueryRow(ctx, `INSERT INTO accounts (company_id, code, name, account_type, group_id)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (company_id, code) DO UPDATE SET name=EXCLUDED.name, group_id=EXCLUDED.group_id, updated_at=NOW()
RETURNING id, (xmax = 0)`,
		account.CompanyID, account.Code, account.Name, account.Type, account.GroupID).
		Scan(&account.ID, &created)
	if err != nil {
		return Account{}, false, mapStoreError("account", err)
	}
	return account, created, nil
}

// ApplyChart installs a country chart template into the company inside one
// repeatable-read transaction, so a rejected template leaves nothing behind.
func (r *SQLRepository) ApplyChart(ctx context.Context, companyID, countryID int64) (ChartApplyStats, error) {
	var stats ChartApplyStats
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return stats, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	stats, err = ApplyChartTemplate(ctx, &txChartStore{tx: tx}, companyID, countryID)
	if err != nil {
		return ChartApplyStats{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ChartApplyStats{}, err
	}
	return stats, nil
}
