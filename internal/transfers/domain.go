// Package transfers implements recurring allocation models: rules that
// periodically redistribute posted balances from a set of source accounts
// across destination accounts by percentage, optionally filtered by partner
// or analytic dimension.
package transfers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// ModelState is the activation state of a transfer model.
type ModelState string

const (
	ModelStateDisabled   ModelState = "disabled"
	ModelStateInProgress ModelState = "in_progress"
)

// Frequency is the period length of a transfer model.
type Frequency string

const (
	FrequencyMonth   Frequency = "month"
	FrequencyQuarter Frequency = "quarter"
	FrequencyYear    Frequency = "year"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	return f == FrequencyMonth || f == FrequencyQuarter || f == FrequencyYear
}

// Months returns the period length in months.
func (f Frequency) Months() int {
	switch f {
	case FrequencyQuarter:
		return 3
	case FrequencyYear:
		return 12
	}
	return 1
}

// TransferModel is a recurring allocation rule. SourceAccountIDs are the
// accounts whose posted balance is swept each period; the model's lines
// describe where it goes.
type TransferModel struct {
	ID               int64           `json:"id"`
	CompanyID        int64           `json:"company_id"`
	JournalID        int64           `json:"journal_id"`
	Name             string          `json:"name"`
	Active           bool            `json:"active"`
	DateStart        time.Time       `json:"date_start"`
	DateStop         *time.Time      `json:"date_stop"`
	Frequency        Frequency       `json:"frequency"`
	SourceAccountIDs []int64         `json:"source_account_ids"`
	TotalPercent     decimal.Decimal `json:"total_percent"`
	State            ModelState      `json:"state"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Lines            []ModelLine     `json:"lines,omitempty"`
}

// ModelLine is one destination of a transfer model. A line with partner or
// analytic filters captures the matching slice in full; its percent is
// forced to 100 and it does not count toward the model's total percent.
type ModelLine struct {
	ID                 int64           `json:"id"`
	ModelID            int64           `json:"model_id"`
	AccountID          int64           `json:"account_id"`
	Percent            decimal.Decimal `json:"percent"`
	PartnerIDs         []int64         `json:"partner_ids,omitempty"`
	AnalyticAccountIDs []int64         `json:"analytic_account_ids,omitempty"`
	Sequence           int             `json:"sequence"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Filtered reports whether the line targets a partner or analytic slice.
func (l ModelLine) Filtered() bool {
	return len(l.PartnerIDs) > 0 || len(l.AnalyticAccountIDs) > 0
}

// ModelInput groups the fields for creating or updating a transfer model.
type ModelInput struct {
	CompanyID        int64
	JournalID        int64
	Name             string
	DateStart        time.Time
	DateStop         *time.Time
	Frequency        Frequency
	SourceAccountIDs []int64
}

// LineInput groups the fields for creating or updating a model line.
type LineInput struct {
	AccountID          int64
	Percent            decimal.Decimal
	PartnerIDs         []int64
	AnalyticAccountIDs []int64
	Sequence           int
}

// Period is one materialization window of a transfer model. End is the move
// date of the period's draft entry.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RunStats summarizes one PerformAutoTransfer run.
type RunStats struct {
	ModelID      int64 `json:"model_id"`
	Periods      int   `json:"periods"`
	MovesDrafted int   `json:"moves_drafted"`
}

var hundred = decimal.NewFromInt(100)

// NextPeriodEnd returns the last day of the period starting at base.
func NextPeriodEnd(base time.Time, f Frequency) time.Time {
	return base.AddDate(0, f.Months(), 0).AddDate(0, 0, -1)
}

// PeriodSchedule walks the periods a model must materialize. The walk starts
// at the day after the last posted transfer, or at date_start when nothing
// has been posted yet. Complete periods run up to min(today, date_stop); an
// open-ended model also materializes the current partial period under its
// full period end date, while a model whose date_stop falls mid-period gets
// a final window clamped to date_stop.
func PeriodSchedule(model TransferModel, lastPosted *time.Time, today time.Time) []Period {
	start := model.DateStart
	if lastPosted != nil {
		start = lastPosted.AddDate(0, 0, 1)
	}
	maxDate := today
	if model.DateStop != nil && model.DateStop.Before(today) {
		maxDate = *model.DateStop
	}

	var periods []Period
	end := NextPeriodEnd(start, model.Frequency)
	for !end.After(maxDate) {
		periods = append(periods, Period{Start: start, End: end})
		start = end.AddDate(0, 0, 1)
		end = NextPeriodEnd(start, model.Frequency)
	}

	if model.DateStop == nil {
		periods = append(periods, Period{Start: start, End: end})
	} else if today.Before(*model.DateStop) {
		stop := *model.DateStop
		if stop.Before(end) {
			end = stop
		}
		periods = append(periods, Period{Start: start, End: end})
	}
	return periods
}

// ComputeTotalPercent derives a model's total percent from its lines. Only
// unfiltered lines count; a model with nothing but filtered lines allocates
// everything they capture and reports 100.
func ComputeTotalPercent(lines []ModelLine) decimal.Decimal {
	var unfiltered int
	total := decimal.Zero
	for _, line := range lines {
		if line.Filtered() {
			continue
		}
		unfiltered++
		total = total.Add(line.Percent)
	}
	if len(lines) > 0 && unfiltered == 0 {
		return hundred
	}
	if total.Sub(hundred).Abs().LessThanOrEqual(decimal.New(1, -6)) {
		return hundred
	}
	return total
}

// SplitAmount allocates amount across the unfiltered destination lines by
// percentage. When totalPercent is exactly 100 the last line absorbs the
// rounding remainder so the split sums to the full amount. Returns the
// per-line amounts in line order and the unallocated remainder.
func SplitAmount(lines []ModelLine, totalPercent, amount decimal.Decimal) ([]decimal.Decimal, decimal.Decimal) {
	takeTheRest := totalPercent.Equal(hundred)
	amounts := make([]decimal.Decimal, len(lines))
	left := amount
	for i, line := range lines {
		if takeTheRest && i == len(lines)-1 {
			amounts[i] = left
			left = decimal.Zero
			continue
		}
		share := shared.Round6(line.Percent.Div(hundred).Mul(amount))
		amounts[i] = share
		left = left.Sub(share)
	}
	return amounts, left
}
