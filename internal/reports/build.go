package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/masterdata"
)

// naturalBalance signs an account's balance by its natural side: debit
// minus credit for assets and expenses, credit minus debit for the rest.
func naturalBalance(accountType masterdata.AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	switch accountType {
	case masterdata.AccountTypeAsset, masterdata.AccountTypeExpense:
		return debit.Sub(credit)
	default:
		return credit.Sub(debit)
	}
}

func reportLine(row AccountActivity) ReportLine {
	return ReportLine{
		AccountID: row.AccountID,
		Code:      row.Code,
		Name:      row.Name,
		Type:      row.Type,
		Debit:     row.Debit,
		Credit:    row.Credit,
		Balance:   naturalBalance(row.Type, row.Debit, row.Credit),
	}
}

func sectionTotal(lines []ReportLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Balance)
	}
	return total
}

// EarningsActivity carries the income and expense aggregates from the
// start of the reporting year, used to fold current-year earnings into
// equity.
type EarningsActivity struct {
	IncomeDebit   decimal.Decimal
	IncomeCredit  decimal.Decimal
	ExpenseDebit  decimal.Decimal
	ExpenseCredit decimal.Decimal
}

// NetEarnings is income balance minus expense balance.
func (e EarningsActivity) NetEarnings() decimal.Decimal {
	income := e.IncomeCredit.Sub(e.IncomeDebit)
	expense := e.ExpenseDebit.Sub(e.ExpenseCredit)
	return income.Sub(expense)
}

// BuildBalanceSheet folds cumulative account activity into the balance
// sheet. rows must already be restricted to the company and date window;
// earnings folds the current year's P&L result into equity so the report
// balances mid-year.
func BuildBalanceSheet(opts BalanceSheetOptions, rows []AccountActivity, earnings EarningsActivity) BalanceSheet {
	var assets, liabilities, equity []ReportLine
	for _, row := range sortedRows(rows) {
		line := reportLine(row)
		switch row.Type {
		case masterdata.AccountTypeAsset:
			assets = append(assets, line)
		case masterdata.AccountTypeLiability:
			liabilities = append(liabilities, line)
		case masterdata.AccountTypeEquity:
			equity = append(equity, line)
		}
	}

	assetsTotal := sectionTotal(assets)
	liabilitiesTotal := sectionTotal(liabilities)
	equityTotal := sectionTotal(equity)

	currentYearEarnings := decimal.Zero
	if opts.IncludeCurrentYearEarnings {
		currentYearEarnings = earnings.NetEarnings()
		equityTotal = equityTotal.Add(currentYearEarnings)
	}
	liabilitiesAndEquity := liabilitiesTotal.Add(equityTotal)

	return BalanceSheet{
		CompanyID:  opts.CompanyID,
		DateTo:     opts.DateTo,
		PostedOnly: opts.PostedOnly,
		Sections: []ReportSection{
			{Key: "assets", Label: "ASSETS", Total: assetsTotal, Lines: assets},
			{Key: "liabilities", Label: "LIABILITIES", Total: liabilitiesTotal, Lines: liabilities},
			{Key: "equity", Label: "EQUITY", Total: equityTotal, Lines: equity},
		},
		Totals: BalanceSheetTotals{
			Assets:               assetsTotal,
			Liabilities:          liabilitiesTotal,
			Equity:               equityTotal,
			CurrentYearEarnings:  currentYearEarnings,
			LiabilitiesAndEquity: liabilitiesAndEquity,
			Imbalance:            assetsTotal.Sub(liabilitiesAndEquity),
		},
	}
}

// BuildProfitAndLoss folds period income and expense activity into the
// income statement.
func BuildProfitAndLoss(opts ProfitAndLossOptions, rows []AccountActivity) ProfitAndLoss {
	var income, expenses []ReportLine
	for _, row := range sortedRows(rows) {
		line := reportLine(row)
		switch row.Type {
		case masterdata.AccountTypeIncome:
			income = append(income, line)
		case masterdata.AccountTypeExpense:
			expenses = append(expenses, line)
		}
	}

	totalIncome := sectionTotal(income)
	totalExpenses := sectionTotal(expenses)

	return ProfitAndLoss{
		CompanyID:  opts.CompanyID,
		DateFrom:   opts.DateFrom,
		DateTo:     opts.DateTo,
		PostedOnly: opts.PostedOnly,
		Sections: []ReportSection{
			{Key: "income", Label: "INCOME", Total: totalIncome, Lines: income},
			{Key: "expenses", Label: "EXPENSES", Total: totalExpenses, Lines: expenses},
		},
		Totals: ProfitAndLossTotals{
			Income:    totalIncome,
			Expenses:  totalExpenses,
			NetProfit: totalIncome.Sub(totalExpenses),
		},
	}
}

// BuildTrialBalance nets opening and period activity per account into the
// three-column listing. Accounts present in only one of the two windows
// still get a row.
func BuildTrialBalance(opts TrialBalanceOptions, opening, period []AccountActivity) TrialBalance {
	type bucket struct {
		meta    AccountActivity
		opening AccountActivity
		period  AccountActivity
	}
	buckets := make(map[int64]*bucket)
	get := func(row AccountActivity) *bucket {
		b, ok := buckets[row.AccountID]
		if !ok {
			b = &bucket{meta: row}
			buckets[row.AccountID] = b
		}
		return b
	}
	for _, row := range opening {
		get(row).opening = row
	}
	for _, row := range period {
		b := get(row)
		b.meta = row
		b.period = row
	}

	ids := make([]int64, 0, len(buckets))
	for id := range buckets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := buckets[ids[i]].meta, buckets[ids[j]].meta
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return ids[i] < ids[j]
	})

	report := TrialBalance{
		CompanyID:     opts.CompanyID,
		DateFrom:      opts.DateFrom,
		DateTo:        opts.DateTo,
		PostedOnly:    opts.PostedOnly,
		HideZeroLines: opts.HideZeroLines,
		Totals: TrialBalanceTotals{
			OpeningDebit:  decimal.Zero,
			OpeningCredit: decimal.Zero,
			PeriodDebit:   decimal.Zero,
			PeriodCredit:  decimal.Zero,
			EndingDebit:   decimal.Zero,
			EndingCredit:  decimal.Zero,
		},
	}

	for _, id := range ids {
		b := buckets[id]
		net := b.opening.Debit.Add(b.period.Debit).Sub(b.opening.Credit.Add(b.period.Credit))
		endingDebit, endingCredit := decimal.Zero, decimal.Zero
		if net.Sign() > 0 {
			endingDebit = net
		} else if net.Sign() < 0 {
			endingCredit = net.Neg()
		}

		line := TrialBalanceLine{
			AccountID:     id,
			Code:          b.meta.Code,
			Name:          b.meta.Name,
			Type:          b.meta.Type,
			OpeningDebit:  b.opening.Debit,
			OpeningCredit: b.opening.Credit,
			PeriodDebit:   b.period.Debit,
			PeriodCredit:  b.period.Credit,
			EndingDebit:   endingDebit,
			EndingCredit:  endingCredit,
		}
		if opts.HideZeroLines && zeroTrialLine(line) {
			continue
		}
		report.Lines = append(report.Lines, line)
		report.Totals.OpeningDebit = report.Totals.OpeningDebit.Add(line.OpeningDebit)
		report.Totals.OpeningCredit = report.Totals.OpeningCredit.Add(line.OpeningCredit)
		report.Totals.PeriodDebit = report.Totals.PeriodDebit.Add(line.PeriodDebit)
		report.Totals.PeriodCredit = report.Totals.PeriodCredit.Add(line.PeriodCredit)
		report.Totals.EndingDebit = report.Totals.EndingDebit.Add(line.EndingDebit)
		report.Totals.EndingCredit = report.Totals.EndingCredit.Add(line.EndingCredit)
	}

	report.Checks = TrialBalanceChecks{
		OpeningBalanced: report.Totals.OpeningDebit.Equal(report.Totals.OpeningCredit),
		PeriodBalanced:  report.Totals.PeriodDebit.Equal(report.Totals.PeriodCredit),
		EndingBalanced:  report.Totals.EndingDebit.Equal(report.Totals.EndingCredit),
	}
	return report
}

func zeroTrialLine(line TrialBalanceLine) bool {
	return line.OpeningDebit.IsZero() && line.OpeningCredit.IsZero() &&
		line.PeriodDebit.IsZero() && line.PeriodCredit.IsZero() &&
		line.EndingDebit.IsZero() && line.EndingCredit.IsZero()
}

// BuildGeneralLedger folds opening balances and the period's journal
// entries into per-account detail blocks with running balances. entries
// must arrive ordered by account code, date, line id.
func BuildGeneralLedger(opts GeneralLedgerOptions, opening []AccountActivity, entries []JournalEntry) GeneralLedger {
	blocks := make(map[int64]*GeneralLedgerAccount)
	ensure := func(accountID int64, code, name string, accountType masterdata.AccountType) *GeneralLedgerAccount {
		block, ok := blocks[accountID]
		if !ok {
			block = &GeneralLedgerAccount{AccountID: accountID, Code: code, Name: name, Type: accountType}
			blocks[accountID] = block
		}
		return block
	}

	for _, row := range opening {
		block := ensure(row.AccountID, row.Code, row.Name, row.Type)
		block.OpeningDebit = row.Debit
		block.OpeningCredit = row.Credit
		block.OpeningBalance = row.Debit.Sub(row.Credit)
	}

	running := make(map[int64]decimal.Decimal, len(blocks))
	for id, block := range blocks {
		running[id] = block.OpeningBalance
	}
	for _, entry := range entries {
		block := ensure(entry.AccountID, entry.Code, entry.Name, entry.Type)
		running[entry.AccountID] = running[entry.AccountID].Add(entry.Debit).Sub(entry.Credit)
		block.PeriodDebit = block.PeriodDebit.Add(entry.Debit)
		block.PeriodCredit = block.PeriodCredit.Add(entry.Credit)
		block.Lines = append(block.Lines, GeneralLedgerEntry{
			LineID:         entry.LineID,
			Date:           entry.Date,
			MoveID:         entry.MoveID,
			MoveReference:  entry.MoveReference,
			PartnerID:      entry.PartnerID,
			PartnerName:    entry.PartnerName,
			Label:          entry.Label,
			Debit:          entry.Debit,
			Credit:         entry.Credit,
			RunningBalance: running[entry.AccountID],
		})
	}

	ids := make([]int64, 0, len(blocks))
	for id := range blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := blocks[ids[i]], blocks[ids[j]]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return ids[i] < ids[j]
	})

	report := GeneralLedger{
		CompanyID:     opts.CompanyID,
		AccountID:     opts.AccountID,
		DateFrom:      opts.DateFrom,
		DateTo:        opts.DateTo,
		PostedOnly:    opts.PostedOnly,
		HideZeroLines: opts.HideZeroLines,
		Totals: GeneralLedgerTotals{
			OpeningBalance: decimal.Zero,
			PeriodDebit:    decimal.Zero,
			PeriodCredit:   decimal.Zero,
			ClosingBalance: decimal.Zero,
		},
	}
	for _, id := range ids {
		block := blocks[id]
		block.ClosingBalance = block.OpeningBalance.Add(block.PeriodDebit).Sub(block.PeriodCredit)
		if opts.HideZeroLines && zeroLedgerBlock(*block) {
			continue
		}
		report.Accounts = append(report.Accounts, *block)
		report.Totals.OpeningBalance = report.Totals.OpeningBalance.Add(block.OpeningBalance)
		report.Totals.PeriodDebit = report.Totals.PeriodDebit.Add(block.PeriodDebit)
		report.Totals.PeriodCredit = report.Totals.PeriodCredit.Add(block.PeriodCredit)
		report.Totals.ClosingBalance = report.Totals.ClosingBalance.Add(block.ClosingBalance)
	}
	return report
}

func zeroLedgerBlock(block GeneralLedgerAccount) bool {
	return block.OpeningDebit.IsZero() && block.OpeningCredit.IsZero() &&
		block.PeriodDebit.IsZero() && block.PeriodCredit.IsZero() &&
		block.ClosingBalance.IsZero()
}

func sortedRows(rows []AccountActivity) []AccountActivity {
	out := append([]AccountActivity(nil), rows...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out
}
