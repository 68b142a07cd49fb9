package reports_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/reports"
	"github.com/ledgerline/ledgerline/internal/shared"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func activity(id int64, code, name string, accountType masterdata.AccountType, debit, credit string) reports.AccountActivity {
	return reports.AccountActivity{
		AccountID: id, Code: code, Name: name, Type: accountType,
		Debit: dec(debit), Credit: dec(credit),
	}
}

func TestBuildBalanceSheetFoldsEarnings(t *testing.T) {
	opts := reports.BalanceSheetOptions{
		CompanyID:                  1,
		DateTo:                     time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		PostedOnly:                 true,
		IncludeCurrentYearEarnings: true,
	}
	rows := []reports.AccountActivity{
		activity(10, "101000", "Cash", masterdata.AccountTypeAsset, "1500", "200"),
		activity(11, "201000", "Payables", masterdata.AccountTypeLiability, "0", "300"),
		activity(12, "301000", "Capital", masterdata.AccountTypeEquity, "0", "500"),
	}
	earnings := reports.EarningsActivity{
		IncomeCredit: dec("900"),
		ExpenseDebit: dec("400"),
	}

	sheet := reports.BuildBalanceSheet(opts, rows, earnings)

	require.True(t, sheet.Totals.Assets.Equal(dec("1300")))
	require.True(t, sheet.Totals.Liabilities.Equal(dec("300")))
	require.True(t, sheet.Totals.CurrentYearEarnings.Equal(dec("500")))
	require.True(t, sheet.Totals.Equity.Equal(dec("1000")), "equity folds current year earnings")
	require.True(t, sheet.Totals.LiabilitiesAndEquity.Equal(dec("1300")))
	require.True(t, sheet.Totals.Imbalance.IsZero())

	// Without the fold, the gap surfaces as imbalance instead of being
	// hidden.
	opts.IncludeCurrentYearEarnings = false
	sheet = reports.BuildBalanceSheet(opts, rows, earnings)
	require.True(t, sheet.Totals.CurrentYearEarnings.IsZero())
	require.True(t, sheet.Totals.Imbalance.Equal(dec("500")))
}

func TestBuildProfitAndLoss(t *testing.T) {
	opts := reports.ProfitAndLossOptions{
		CompanyID: 1,
		DateFrom:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:    time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	rows := []reports.AccountActivity{
		activity(20, "400000", "Sales", masterdata.AccountTypeIncome, "50", "950"),
		activity(21, "600000", "Rent", masterdata.AccountTypeExpense, "400", "0"),
		activity(22, "101000", "Cash", masterdata.AccountTypeAsset, "999", "0"),
	}

	pl := reports.BuildProfitAndLoss(opts, rows)

	require.True(t, pl.Totals.Income.Equal(dec("900")))
	require.True(t, pl.Totals.Expenses.Equal(dec("400")))
	require.True(t, pl.Totals.NetProfit.Equal(dec("500")))
	require.Len(t, pl.Sections, 2)
	require.Len(t, pl.Sections[0].Lines, 1, "non P&L accounts are excluded")
}

func TestBuildTrialBalance(t *testing.T) {
	opts := reports.TrialBalanceOptions{
		CompanyID: 1,
		DateFrom:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		DateTo:    time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
	}
	opening := []reports.AccountActivity{
		activity(10, "101000", "Cash", masterdata.AccountTypeAsset, "1000", "0"),
		activity(11, "201000", "Payables", masterdata.AccountTypeLiability, "0", "1000"),
	}
	period := []reports.AccountActivity{
		activity(10, "101000", "Cash", masterdata.AccountTypeAsset, "200", "0"),
		activity(20, "400000", "Sales", masterdata.AccountTypeIncome, "0", "200"),
	}

	tb := reports.BuildTrialBalance(opts, opening, period)

	require.Len(t, tb.Lines, 3, "opening-only accounts still get a row")
	require.True(t, tb.Checks.OpeningBalanced)
	require.True(t, tb.Checks.PeriodBalanced)
	require.True(t, tb.Checks.EndingBalanced)

	byAccount := map[int64]reports.TrialBalanceLine{}
	for _, line := range tb.Lines {
		byAccount[line.AccountID] = line
	}
	require.True(t, byAccount[10].EndingDebit.Equal(dec("1200")))
	require.True(t, byAccount[10].EndingCredit.IsZero())
	require.True(t, byAccount[11].EndingCredit.Equal(dec("1000")))
	require.True(t, byAccount[20].EndingCredit.Equal(dec("200")))
}

func TestBuildTrialBalanceHidesZeroLines(t *testing.T) {
	opts := reports.TrialBalanceOptions{
		CompanyID:     1,
		DateFrom:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		DateTo:        time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		HideZeroLines: true,
	}
	period := []reports.AccountActivity{
		activity(10, "101000", "Cash", masterdata.AccountTypeAsset, "0", "0"),
		activity(20, "400000", "Sales", masterdata.AccountTypeIncome, "0", "200"),
	}
	tb := reports.BuildTrialBalance(opts, nil, period)
	require.Len(t, tb.Lines, 1)
	require.Equal(t, int64(20), tb.Lines[0].AccountID)
}

func TestBuildGeneralLedgerRunningBalances(t *testing.T) {
	opts := reports.GeneralLedgerOptions{
		CompanyID: 1,
		DateFrom:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		DateTo:    time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
	}
	opening := []reports.AccountActivity{
		activity(10, "101000", "Cash", masterdata.AccountTypeAsset, "100", "0"),
	}
	entries := []reports.JournalEntry{
		{LineID: 1, AccountID: 10, Code: "101000", Name: "Cash", Type: masterdata.AccountTypeAsset,
			Date: time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), MoveID: 7, Label: "receipt", Debit: dec("50"), Credit: decimal.Zero},
		{LineID: 2, AccountID: 10, Code: "101000", Name: "Cash", Type: masterdata.AccountTypeAsset,
			Date: time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC), MoveID: 8, Label: "payment", Debit: decimal.Zero, Credit: dec("30")},
	}

	gl := reports.BuildGeneralLedger(opts, opening, entries)

	require.Len(t, gl.Accounts, 1)
	account := gl.Accounts[0]
	require.True(t, account.OpeningBalance.Equal(dec("100")))
	require.Len(t, account.Lines, 2)
	require.True(t, account.Lines[0].RunningBalance.Equal(dec("150")))
	require.True(t, account.Lines[1].RunningBalance.Equal(dec("120")))
	require.True(t, account.ClosingBalance.Equal(dec("120")))

	// Conservation: closing is opening plus period movement.
	expected := gl.Totals.OpeningBalance.Add(gl.Totals.PeriodDebit).Sub(gl.Totals.PeriodCredit)
	require.True(t, gl.Totals.ClosingBalance.Equal(expected))
}

type stubRepo struct {
	totalsCalls  int
	entriesCalls int
}

func (s *stubRepo) AccountTotals(ctx context.Context, q reports.ActivityQuery) ([]reports.AccountActivity, error) {
	s.totalsCalls++
	return []reports.AccountActivity{
		activity(10, "101000", "Cash", masterdata.AccountTypeAsset, "1000", "0"),
	}, nil
}

func (s *stubRepo) PeriodEntries(ctx context.Context, q reports.ActivityQuery) ([]reports.JournalEntry, error) {
	s.entriesCalls++
	return nil, nil
}

func TestBalanceSheetCaching(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &stubRepo{}
	service := reports.NewService(repo, reports.NewCache(client, time.Minute))

	ctx := context.Background()
	opts := reports.BalanceSheetOptions{
		CompanyID:                  1,
		DateTo:                     time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		PostedOnly:                 true,
		IncludeCurrentYearEarnings: true,
	}

	first, err := service.BalanceSheet(ctx, opts)
	require.NoError(t, err)
	callsAfterFirst := repo.totalsCalls
	require.Positive(t, callsAfterFirst)

	second, err := service.BalanceSheet(ctx, opts)
	require.NoError(t, err)
	require.Equal(t, callsAfterFirst, repo.totalsCalls, "second read must come from cache")
	require.True(t, second.Totals.Assets.Equal(first.Totals.Assets))

	// Different options form a different key.
	opts.PostedOnly = false
	_, err = service.BalanceSheet(ctx, opts)
	require.NoError(t, err)
	require.Greater(t, repo.totalsCalls, callsAfterFirst)

	// Bumping the version drops every cached report.
	calls := repo.totalsCalls
	opts.PostedOnly = true
	require.NoError(t, service.InvalidateCache(ctx))
	_, err = service.BalanceSheet(ctx, opts)
	require.NoError(t, err)
	require.Greater(t, repo.totalsCalls, calls)
}

func TestReportWindowValidation(t *testing.T) {
	service := reports.NewService(&stubRepo{}, nil)
	ctx := context.Background()

	_, err := service.ProfitAndLoss(ctx, reports.ProfitAndLossOptions{
		CompanyID: 1,
		DateFrom:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		DateTo:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.True(t, shared.IsValidation(err))

	_, err = service.BalanceSheet(ctx, reports.BalanceSheetOptions{CompanyID: 1})
	require.True(t, shared.IsValidation(err))
}
