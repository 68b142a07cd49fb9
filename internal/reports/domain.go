// Package reports aggregates posted ledger activity into the standard
// financial statements. The builders are pure: they fold pre-aggregated
// account activity into report structures, so the database work stays in
// the repository and the shaping logic stays testable.
package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/masterdata"
)

// BalanceSheetOptions selects the cumulative position as of DateTo.
type BalanceSheetOptions struct {
	CompanyID                  int64
	DateTo                     time.Time
	PostedOnly                 bool
	IncludeCurrentYearEarnings bool
}

// ProfitAndLossOptions selects income and expense activity in a window.
type ProfitAndLossOptions struct {
	CompanyID  int64
	DateFrom   time.Time
	DateTo     time.Time
	PostedOnly bool
}

// TrialBalanceOptions selects opening, period and ending columns per account.
type TrialBalanceOptions struct {
	CompanyID     int64
	DateFrom      time.Time
	DateTo        time.Time
	PostedOnly    bool
	HideZeroLines bool
}

// GeneralLedgerOptions selects per-account journal detail with running
// balances.
type GeneralLedgerOptions struct {
	CompanyID     int64
	DateFrom      time.Time
	DateTo        time.Time
	PostedOnly    bool
	AccountID     *int64
	HideZeroLines bool
}

// AccountActivity is one account's aggregated debit/credit over a window.
type AccountActivity struct {
	AccountID int64                  `json:"account_id"`
	Code      string                 `json:"code"`
	Name      string                 `json:"name"`
	Type      masterdata.AccountType `json:"account_type"`
	Debit     decimal.Decimal        `json:"debit"`
	Credit    decimal.Decimal        `json:"credit"`
}

// JournalEntry is one posted move line feeding the general ledger detail.
type JournalEntry struct {
	LineID        int64                  `json:"id"`
	AccountID     int64                  `json:"account_id"`
	Code          string                 `json:"code"`
	Name          string                 `json:"name"`
	Type          masterdata.AccountType `json:"account_type"`
	Date          time.Time              `json:"date"`
	MoveID        int64                  `json:"move_id"`
	MoveReference string                 `json:"move_reference"`
	PartnerID     *int64                 `json:"partner_id"`
	PartnerName   string                 `json:"partner_name"`
	Label         string                 `json:"label"`
	Debit         decimal.Decimal        `json:"debit"`
	Credit        decimal.Decimal        `json:"credit"`
}

// ReportLine is one account row in the balance sheet or P&L. Balance is
// signed by the account's natural side: debit minus credit for assets and
// expenses, credit minus debit otherwise.
type ReportLine struct {
	AccountID int64                  `json:"account_id"`
	Code      string                 `json:"code"`
	Name      string                 `json:"name"`
	Type      masterdata.AccountType `json:"account_type"`
	Debit     decimal.Decimal        `json:"debit"`
	Credit    decimal.Decimal        `json:"credit"`
	Balance   decimal.Decimal        `json:"balance"`
}

// ReportSection groups lines under a labelled total.
type ReportSection struct {
	Key   string          `json:"key"`
	Label string          `json:"label"`
	Total decimal.Decimal `json:"total"`
	Lines []ReportLine    `json:"lines"`
}

// BalanceSheet is the cumulative position report.
type BalanceSheet struct {
	CompanyID  int64              `json:"company_id"`
	DateTo     time.Time          `json:"date_to"`
	PostedOnly bool               `json:"posted_only"`
	Sections   []ReportSection    `json:"sections"`
	Totals     BalanceSheetTotals `json:"totals"`
}

// BalanceSheetTotals exposes the equation sides, the folded current-year
// earnings and the residual imbalance.
type BalanceSheetTotals struct {
	Assets               decimal.Decimal `json:"assets"`
	Liabilities          decimal.Decimal `json:"liabilities"`
	Equity               decimal.Decimal `json:"equity"`
	CurrentYearEarnings  decimal.Decimal `json:"current_year_earnings"`
	LiabilitiesAndEquity decimal.Decimal `json:"liabilities_and_equity"`
	Imbalance            decimal.Decimal `json:"imbalance"`
}

// ProfitAndLoss is the period income statement.
type ProfitAndLoss struct {
	CompanyID  int64               `json:"company_id"`
	DateFrom   time.Time           `json:"date_from"`
	DateTo     time.Time           `json:"date_to"`
	PostedOnly bool                `json:"posted_only"`
	Sections   []ReportSection     `json:"sections"`
	Totals     ProfitAndLossTotals `json:"totals"`
}

// ProfitAndLossTotals summarizes the income statement.
type ProfitAndLossTotals struct {
	Income    decimal.Decimal `json:"income"`
	Expenses  decimal.Decimal `json:"expenses"`
	NetProfit decimal.Decimal `json:"net_profit"`
}

// TrialBalanceLine carries the three debit/credit column pairs for one
// account. The ending pair nets opening plus period onto a single side.
type TrialBalanceLine struct {
	AccountID     int64                  `json:"account_id"`
	Code          string                 `json:"code"`
	Name          string                 `json:"name"`
	Type          masterdata.AccountType `json:"account_type"`
	OpeningDebit  decimal.Decimal        `json:"opening_debit"`
	OpeningCredit decimal.Decimal        `json:"opening_credit"`
	PeriodDebit   decimal.Decimal        `json:"period_debit"`
	PeriodCredit  decimal.Decimal        `json:"period_credit"`
	EndingDebit   decimal.Decimal        `json:"ending_debit"`
	EndingCredit  decimal.Decimal        `json:"ending_credit"`
}

// TrialBalanceTotals sums each column across all lines.
type TrialBalanceTotals struct {
	OpeningDebit  decimal.Decimal `json:"opening_debit"`
	OpeningCredit decimal.Decimal `json:"opening_credit"`
	PeriodDebit   decimal.Decimal `json:"period_debit"`
	PeriodCredit  decimal.Decimal `json:"period_credit"`
	EndingDebit   decimal.Decimal `json:"ending_debit"`
	EndingCredit  decimal.Decimal `json:"ending_credit"`
}

// TrialBalanceChecks reports whether each column pair balances.
type TrialBalanceChecks struct {
	OpeningBalanced bool `json:"opening_balanced"`
	PeriodBalanced  bool `json:"period_balanced"`
	EndingBalanced  bool `json:"ending_balanced"`
}

// TrialBalance is the three-column balance listing.
type TrialBalance struct {
	CompanyID     int64              `json:"company_id"`
	DateFrom      time.Time          `json:"date_from"`
	DateTo        time.Time          `json:"date_to"`
	PostedOnly    bool               `json:"posted_only"`
	HideZeroLines bool               `json:"hide_zero_lines"`
	Lines         []TrialBalanceLine `json:"lines"`
	Totals        TrialBalanceTotals `json:"totals"`
	Checks        TrialBalanceChecks `json:"checks"`
}

// GeneralLedgerEntry is one journal line inside a ledger account block,
// with the running balance after it.
type GeneralLedgerEntry struct {
	LineID         int64           `json:"id"`
	Date           time.Time       `json:"date"`
	MoveID         int64           `json:"move_id"`
	MoveReference  string          `json:"move_reference"`
	PartnerID      *int64          `json:"partner_id"`
	PartnerName    string          `json:"partner_name"`
	Label          string          `json:"label"`
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	RunningBalance decimal.Decimal `json:"running_balance"`
}

// GeneralLedgerAccount is one account's detail block.
type GeneralLedgerAccount struct {
	AccountID      int64                  `json:"account_id"`
	Code           string                 `json:"code"`
	Name           string                 `json:"name"`
	Type           masterdata.AccountType `json:"account_type"`
	OpeningDebit   decimal.Decimal        `json:"opening_debit"`
	OpeningCredit  decimal.Decimal        `json:"opening_credit"`
	OpeningBalance decimal.Decimal        `json:"opening_balance"`
	PeriodDebit    decimal.Decimal        `json:"period_debit"`
	PeriodCredit   decimal.Decimal        `json:"period_credit"`
	ClosingBalance decimal.Decimal        `json:"closing_balance"`
	Lines          []GeneralLedgerEntry   `json:"lines"`
}

// GeneralLedgerTotals sums the account blocks.
type GeneralLedgerTotals struct {
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	PeriodDebit    decimal.Decimal `json:"period_debit"`
	PeriodCredit   decimal.Decimal `json:"period_credit"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
}

// GeneralLedger is the full journal detail report.
type GeneralLedger struct {
	CompanyID     int64                  `json:"company_id"`
	AccountID     *int64                 `json:"account_id"`
	DateFrom      time.Time              `json:"date_from"`
	DateTo        time.Time              `json:"date_to"`
	PostedOnly    bool                   `json:"posted_only"`
	HideZeroLines bool                   `json:"hide_zero_lines"`
	Accounts      []GeneralLedgerAccount `json:"accounts"`
	Totals        GeneralLedgerTotals    `json:"totals"`
}
