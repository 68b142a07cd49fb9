package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// ActivityQuery narrows the aggregated move line activity fed into a
// report. Nil date bounds leave that side open.
type ActivityQuery struct {
	CompanyID  int64
	DateFrom   *time.Time
	DateTo     *time.Time
	PostedOnly bool
	Types      []masterdata.AccountType
	AccountID  *int64
}

// ReadRepository is the aggregation surface reports run against. Reads
// are snapshot-consistent; reports never mutate.
type ReadRepository interface {
	AccountTotals(ctx context.Context, q ActivityQuery) ([]AccountActivity, error)
	PeriodEntries(ctx context.Context, q ActivityQuery) ([]JournalEntry, error)
}

// Service computes the financial reports, with a version-keyed cache in
// front of the aggregation queries.
type Service struct {
	repo  ReadRepository
	cache *Cache
}

// NewService wires the report repository with a Cache helper.
func NewService(repo ReadRepository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

func dateKey(t time.Time) string { return t.Format("2006-01-02") }

// BalanceSheet reports the cumulative position as of DateTo.
func (s *Service) BalanceSheet(ctx context.Context, opts BalanceSheetOptions) (BalanceSheet, error) {
	if err := validateWindow(time.Time{}, opts.DateTo); err != nil {
		return BalanceSheet{}, err
	}
	key, err := s.cache.BuildKey(ctx, "reports", "balance_sheet",
		fmt.Sprintf("%d", opts.CompanyID), dateKey(opts.DateTo),
		fmt.Sprintf("%t", opts.PostedOnly), fmt.Sprintf("%t", opts.IncludeCurrentYearEarnings))
	if err != nil {
		return BalanceSheet{}, err
	}
	var report BalanceSheet
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		rows, err := s.repo.AccountTotals(ctx, ActivityQuery{
			CompanyID:  opts.CompanyID,
			DateTo:     &opts.DateTo,
			PostedOnly: opts.PostedOnly,
			Types: []masterdata.AccountType{
				masterdata.AccountTypeAsset, masterdata.AccountTypeLiability, masterdata.AccountTypeEquity,
			},
		})
		if err != nil {
			return nil, err
		}
		var earnings EarningsActivity
		if opts.IncludeCurrentYearEarnings {
			yearStart := time.Date(opts.DateTo.Year(), time.January, 1, 0, 0, 0, 0, opts.DateTo.Location())
			plRows, err := s.repo.AccountTotals(ctx, ActivityQuery{
				CompanyID:  opts.CompanyID,
				DateFrom:   &yearStart,
				DateTo:     &opts.DateTo,
				PostedOnly: opts.PostedOnly,
				Types: []masterdata.AccountType{
					masterdata.AccountTypeIncome, masterdata.AccountTypeExpense,
				},
			})
			if err != nil {
				return nil, err
			}
			for _, row := range plRows {
				switch row.Type {
				case masterdata.AccountTypeIncome:
					earnings.IncomeDebit = earnings.IncomeDebit.Add(row.Debit)
					earnings.IncomeCredit = earnings.IncomeCredit.Add(row.Credit)
				case masterdata.AccountTypeExpense:
					earnings.ExpenseDebit = earnings.ExpenseDebit.Add(row.Debit)
					earnings.ExpenseCredit = earnings.ExpenseCredit.Add(row.Credit)
				}
			}
		}
		return BuildBalanceSheet(opts, rows, earnings), nil
	})
	return report, err
}

// ProfitAndLoss reports the income statement for the window.
func (s *Service) ProfitAndLoss(ctx context.Context, opts ProfitAndLossOptions) (ProfitAndLoss, error) {
	if err := validateWindow(opts.DateFrom, opts.DateTo); err != nil {
		return ProfitAndLoss{}, err
	}
	key, err := s.cache.BuildKey(ctx, "reports", "profit_and_loss",
		fmt.Sprintf("%d", opts.CompanyID), dateKey(opts.DateFrom), dateKey(opts.DateTo),
		fmt.Sprintf("%t", opts.PostedOnly))
	if err != nil {
		return ProfitAndLoss{}, err
	}
	var report ProfitAndLoss
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		rows, err := s.repo.AccountTotals(ctx, ActivityQuery{
			CompanyID:  opts.CompanyID,
			DateFrom:   &opts.DateFrom,
			DateTo:     &opts.DateTo,
			PostedOnly: opts.PostedOnly,
			Types: []masterdata.AccountType{
				masterdata.AccountTypeIncome, masterdata.AccountTypeExpense,
			},
		})
		if err != nil {
			return nil, err
		}
		return BuildProfitAndLoss(opts, rows), nil
	})
	return report, err
}

// TrialBalance reports opening, period and ending columns per account.
func (s *Service) TrialBalance(ctx context.Context, opts TrialBalanceOptions) (TrialBalance, error) {
	if err := validateWindow(opts.DateFrom, opts.DateTo); err != nil {
		return TrialBalance{}, err
	}
	key, err := s.cache.BuildKey(ctx, "reports", "trial_balance",
		fmt.Sprintf("%d", opts.CompanyID), dateKey(opts.DateFrom), dateKey(opts.DateTo),
		fmt.Sprintf("%t", opts.PostedOnly), fmt.Sprintf("%t", opts.HideZeroLines))
	if err != nil {
		return TrialBalance{}, err
	}
	var report TrialBalance
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		dayBefore := opts.DateFrom.AddDate(0, 0, -1)
		opening, err := s.repo.AccountTotals(ctx, ActivityQuery{
			CompanyID:  opts.CompanyID,
			DateTo:     &dayBefore,
			PostedOnly: opts.PostedOnly,
		})
		if err != nil {
			return nil, err
		}
		period, err := s.repo.AccountTotals(ctx, ActivityQuery{
			CompanyID:  opts.CompanyID,
			DateFrom:   &opts.DateFrom,
			DateTo:     &opts.DateTo,
			PostedOnly: opts.PostedOnly,
		})
		if err != nil {
			return nil, err
		}
		return BuildTrialBalance(opts, opening, period), nil
	})
	return report, err
}

// GeneralLedger reports per-account journal detail with running balances.
func (s *Service) GeneralLedger(ctx context.Context, opts GeneralLedgerOptions) (GeneralLedger, error) {
	if err := validateWindow(opts.DateFrom, opts.DateTo); err != nil {
		return GeneralLedger{}, err
	}
	account := "all"
	if opts.AccountID != nil {
		account = fmt.Sprintf("%d", *opts.AccountID)
	}
	key, err := s.cache.BuildKey(ctx, "reports", "general_ledger",
		fmt.Sprintf("%d", opts.CompanyID), account, dateKey(opts.DateFrom), dateKey(opts.DateTo),
		fmt.Sprintf("%t", opts.PostedOnly), fmt.Sprintf("%t", opts.HideZeroLines))
	if err != nil {
		return GeneralLedger{}, err
	}
	var report GeneralLedger
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		dayBefore := opts.DateFrom.AddDate(0, 0, -1)
		opening, err := s.repo.AccountTotals(ctx, ActivityQuery{
			CompanyID:  opts.CompanyID,
			DateTo:     &dayBefore,
			PostedOnly: opts.PostedOnly,
			AccountID:  opts.AccountID,
		})
		if err != nil {
			return nil, err
		}
		entries, err := s.repo.PeriodEntries(ctx, ActivityQuery{
			CompanyID:  opts.CompanyID,
			DateFrom:   &opts.DateFrom,
			DateTo:     &opts.DateTo,
			PostedOnly: opts.PostedOnly,
			AccountID:  opts.AccountID,
		})
		if err != nil {
			return nil, err
		}
		return BuildGeneralLedger(opts, opening, entries), nil
	})
	return report, err
}

// InvalidateCache drops every cached report. Called after posting
// activity changes the underlying ledger.
func (s *Service) InvalidateCache(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func validateWindow(from, to time.Time) error {
	if to.IsZero() {
		return shared.Validationf("date_to", "date_to is required")
	}
	if !from.IsZero() && to.Before(from) {
		return shared.Validationf("date_to", "date_to cannot be before date_from")
	}
	return nil
}
