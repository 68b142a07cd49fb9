package masterdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeIncome    AccountType = "income"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// JournalType constrains which move types may post through a journal.
type JournalType string

const (
	JournalTypeSale     JournalType = "sale"
	JournalTypePurchase JournalType = "purchase"
	JournalTypeBank     JournalType = "bank"
	JournalTypeCash     JournalType = "cash"
	JournalTypeGeneral  JournalType = "general"
)

// Valid reports whether t is a known journal type.
func (t JournalType) Valid() bool {
	switch t {
	case JournalTypeSale, JournalTypePurchase, JournalTypeBank, JournalTypeCash, JournalTypeGeneral:
		return true
	}
	return false
}

// TaxAmountType selects the tax computation formula.
type TaxAmountType string

const (
	TaxAmountPercent  TaxAmountType = "percent"
	TaxAmountFixed    TaxAmountType = "fixed"
	TaxAmountDivision TaxAmountType = "division"
)

// Valid reports whether t is a known tax amount type.
func (t TaxAmountType) Valid() bool {
	switch t {
	case TaxAmountPercent, TaxAmountFixed, TaxAmountDivision:
		return true
	}
	return false
}

// Company is the isolation boundary for every scoped entity. Once LockDate is
// set, no ledger line may be dated on or before it.
type Company struct {
	ID         int64      `json:"id"`
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	CurrencyID int64      `json:"currency_id"`
	CountryID  *int64     `json:"country_id"`
	LockDate   *time.Time `json:"lock_date"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Currency is localization reference data.
type Currency struct {
	ID     int64  `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Country is localization reference data.
type Country struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// CountryState belongs to a Country.
type CountryState struct {
	ID        int64  `json:"id"`
	CountryID int64  `json:"country_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
}

// CountryCity belongs to a CountryState.
type CountryCity struct {
	ID      int64  `json:"id"`
	StateID int64  `json:"state_id"`
	Name    string `json:"name"`
}

// Partner represents a customer or vendor scoped to a company.
type Partner struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CountryID *int64    `json:"country_id"`
	StateID   *int64    `json:"state_id"`
	CityID    *int64    `json:"city_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountRoot is the top-level code prefix bucket for reporting rollups.
type AccountRoot struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
}

// AccountGroup is a hierarchical code-prefix range under a root.
type AccountGroup struct {
	ID              int64  `json:"id"`
	CompanyID       int64  `json:"company_id"`
	CodePrefixStart string `json:"code_prefix_start"`
	CodePrefixEnd   string `json:"code_prefix_end"`
	Name            string `json:"name"`
	ParentID        *int64 `json:"parent_id"`
}

// Account is a chart of accounts node. Company, code, and account type are
// immutable once any move line references the account.
type Account struct {
	ID         int64       `json:"id"`
	CompanyID  int64       `json:"company_id"`
	Code       string      `json:"code"`
	Name       string      `json:"name"`
	Type       AccountType `json:"account_type"`
	RootID     *int64      `json:"root_id"`
	GroupID    *int64      `json:"group_id"`
	CurrencyID *int64      `json:"currency_id"`
	Reconcile  bool        `json:"reconcile"`
	Deprecated bool        `json:"deprecated"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Journal is a named ledger stream.
type Journal struct {
	ID               int64       `json:"id"`
	CompanyID        int64       `json:"company_id"`
	Code             string      `json:"code"`
	Name             string      `json:"name"`
	Type             JournalType `json:"journal_type"`
	DefaultAccountID *int64      `json:"default_account_id"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// TaxGroup batches taxes for display and reporting.
type TaxGroup struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Name      string `json:"name"`
}

// Tax defines a tax computation attached to invoice lines.
type Tax struct {
	ID         int64           `json:"id"`
	CompanyID  int64           `json:"company_id"`
	Name       string          `json:"name"`
	AmountType TaxAmountType   `json:"amount_type"`
	Amount     decimal.Decimal `json:"amount"`
	TypeTaxUse string          `json:"type_tax_use"`
	TaxGroupID *int64          `json:"tax_group_id"`
	AccountID  *int64          `json:"account_id"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// TaxRepartitionLine splits a tax's base or amount across accounts.
type TaxRepartitionLine struct {
	ID              int64           `json:"id"`
	TaxID           int64           `json:"tax_id"`
	RepartitionType string          `json:"repartition_type"` // base or tax
	DocumentType    string          `json:"document_type"`    // invoice or refund
	FactorPercent   decimal.Decimal `json:"factor_percent"`
	AccountID       *int64          `json:"account_id"`
}

// AnalyticPlan groups analytic accounts into a dimension.
type AnalyticPlan struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Name      string `json:"name"`
}

// AnalyticAccount is a secondary cost-tracking dimension.
type AnalyticAccount struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	PlanID    int64     `json:"plan_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountingSettings is the per-company posting configuration, passed
// explicitly into the services that need it.
type AccountingSettings struct {
	ID                  int64     `json:"id"`
	CompanyID           int64     `json:"company_id"`
	TransferAccountID   *int64    `json:"transfer_account_id"`
	FiscalYearLastDay   int       `json:"fiscal_year_last_day"`
	FiscalYearLastMonth int       `json:"fiscal_year_last_month"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// ListFilters represents standard list filters.
type ListFilters struct {
	Page      int
	Limit     int
	Search    string
	IsActive  *bool
	CompanyID *int64
}

// Repository interface for master data operations.
type Repository interface {
	// Company operations
	ListCompanies(ctx context.Context, filters ListFilters) ([]Company, int, error)
	GetCompany(ctx context.Context, id int64) (Company, error)
	CreateCompany(ctx context.Context, company Company) (Company, error)
	UpdateCompany(ctx context.Context, id int64, company Company) error
	SetCompanyLockDate(ctx context.Context, id int64, lockDate *time.Time) error

	// Currency and geo reference data
	ListCurrencies(ctx context.Context, filters ListFilters) ([]Currency, int, error)
	GetCurrency(ctx context.Context, id int64) (Currency, error)
	CreateCurrency(ctx context.Context, currency Currency) (Currency, error)
	ListCountries(ctx context.Context, filters ListFilters) ([]Country, int, error)
	GetCountry(ctx context.Context, id int64) (Country, error)
	GetState(ctx context.Context, id int64) (CountryState, error)
	GetCity(ctx context.Context, id int64) (CountryCity, error)

	// Partner operations
	ListPartners(ctx context.Context, filters ListFilters) ([]Partner, int, error)
	GetPartner(ctx context.Context, id int64) (Partner, error)
	CreatePartner(ctx context.Context, partner Partner) (Partner, error)
	UpdatePartner(ctx context.Context, id int64, partner Partner) error
	DeletePartner(ctx context.Context, id int64) error

	// Account operations
	ListAccounts(ctx context.Context, filters ListFilters) ([]Account, int, error)
	GetAccount(ctx context.Context, id int64) (Account, error)
	CreateAccount(ctx context.Context, account Account) (Account, error)
	UpdateAccount(ctx context.Context, id int64, account Account) error
	DeleteAccount(ctx context.Context, id int64) error
	AccountHasMoveLines(ctx context.Context, id int64) (bool, error)

	// Journal operations
	ListJournals(ctx context.Context, filters ListFilters) ([]Journal, int, error)
	GetJournal(ctx context.Context, id int64) (Journal, error)
	CreateJournal(ctx context.Context, journal Journal) (Journal, error)
	UpdateJournal(ctx context.Context, id int64, journal Journal) error
	DeleteJournal(ctx context.Context, id int64) error

	// Tax operations
	ListTaxes(ctx context.Context, filters ListFilters) ([]Tax, int, error)
	GetTax(ctx context.Context, id int64) (Tax, error)
	CreateTax(ctx context.Context, tax Tax) (Tax, error)
	UpdateTax(ctx context.Context, id int64, tax Tax) error
	DeleteTax(ctx context.Context, id int64) error
	ListTaxRepartitionLines(ctx context.Context, taxID int64) ([]TaxRepartitionLine, error)
	ReplaceTaxRepartitionLines(ctx context.Context, taxID int64, lines []TaxRepartitionLine) error

	// Analytic operations
	ListAnalyticAccounts(ctx context.Context, filters ListFilters) ([]AnalyticAccount, int, error)
	GetAnalyticAccount(ctx context.Context, id int64) (AnalyticAccount, error)
	CreateAnalyticAccount(ctx context.Context, account AnalyticAccount) (AnalyticAccount, error)
	UpdateAnalyticAccount(ctx context.Context, id int64, account AnalyticAccount) error
	GetAnalyticPlan(ctx context.Context, id int64) (AnalyticPlan, error)
	CreateAnalyticPlan(ctx context.Context, plan AnalyticPlan) (AnalyticPlan, error)

	// Settings
	GetSettings(ctx context.Context, companyID int64) (AccountingSettings, error)
	UpsertSettings(ctx context.Context, settings AccountingSettings) (AccountingSettings, error)
}
