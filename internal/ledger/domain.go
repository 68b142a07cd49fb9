package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// MoveState enumerates the move lifecycle.
type MoveState string

const (
	MoveStateDraft     MoveState = "draft"
	MoveStatePosted    MoveState = "posted"
	MoveStateCancelled MoveState = "cancelled"
)

// MoveType enumerates the document kinds sharing the move table.
type MoveType string

const (
	MoveTypeEntry      MoveType = "entry"
	MoveTypeOutInvoice MoveType = "out_invoice"
	MoveTypeInInvoice  MoveType = "in_invoice"
	MoveTypeOutRefund  MoveType = "out_refund"
	MoveTypeInRefund   MoveType = "in_refund"
)

// Valid reports whether t is a known move type.
func (t MoveType) Valid() bool {
	switch t {
	case MoveTypeEntry, MoveTypeOutInvoice, MoveTypeInInvoice, MoveTypeOutRefund, MoveTypeInRefund:
		return true
	}
	return false
}

// IsInvoice reports whether t is an invoice or bill.
func (t MoveType) IsInvoice() bool {
	return t == MoveTypeOutInvoice || t == MoveTypeInInvoice
}

// IsInvoiceLike reports whether t carries invoice lines.
func (t MoveType) IsInvoiceLike() bool {
	switch t {
	case MoveTypeOutInvoice, MoveTypeInInvoice, MoveTypeOutRefund, MoveTypeInRefund:
		return true
	}
	return false
}

// RefundType returns the mirrored refund move type for an invoice.
func (t MoveType) RefundType() (MoveType, bool) {
	switch t {
	case MoveTypeOutInvoice:
		return MoveTypeOutRefund, true
	case MoveTypeInInvoice:
		return MoveTypeInRefund, true
	}
	return "", false
}

// Move is the transaction header, the unit of atomic posting.
type Move struct {
	ID              int64      `json:"id"`
	CompanyID       int64      `json:"company_id"`
	JournalID       int64      `json:"journal_id"`
	Type            MoveType   `json:"move_type"`
	State           MoveState  `json:"state"`
	Date            time.Time  `json:"date"`
	Reference       string     `json:"reference"`
	PartnerID       *int64     `json:"partner_id"`
	CurrencyID      *int64     `json:"currency_id"`
	IsDebitNote     bool       `json:"is_debit_note"`
	ReversedEntryID *int64     `json:"reversed_entry_id"`
	DebitOriginID   *int64     `json:"debit_origin_id"`
	SourceModule    string     `json:"source_module,omitempty"`
	SourceID        *uuid.UUID `json:"source_id,omitempty"`
	PostedAt        *time.Time `json:"posted_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	Lines           []MoveLine `json:"lines,omitempty"`
}

// MoveLine is one debit or credit leg of a move. Exactly one of Debit/Credit
// may be positive; lines freeze once the move is posted.
type MoveLine struct {
	ID             int64               `json:"id"`
	MoveID         int64               `json:"move_id"`
	AccountID      int64               `json:"account_id"`
	PartnerID      *int64              `json:"partner_id"`
	Name           string              `json:"name"`
	Debit          decimal.Decimal     `json:"debit"`
	Credit         decimal.Decimal     `json:"credit"`
	CurrencyID     *int64              `json:"currency_id"`
	AmountCurrency decimal.Decimal     `json:"amount_currency"`
	Analytic       shared.Distribution `json:"analytic_distribution,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// PostingResult summarizes a successful posting.
type PostingResult struct {
	MoveID      int64           `json:"move_id"`
	LineCount   int             `json:"line_count"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	State       MoveState       `json:"state"`
	PostedAt    time.Time       `json:"posted_at"`
}

// LineInput describes one leg when building a move.
type LineInput struct {
	AccountID      int64
	PartnerID      *int64
	Name           string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	CurrencyID     *int64
	AmountCurrency decimal.Decimal
	Analytic       shared.Distribution
}

// MoveInput groups the fields required to create a draft move.
type MoveInput struct {
	CompanyID       int64
	JournalID       int64
	Type            MoveType
	Date            time.Time
	Reference       string
	PartnerID       *int64
	CurrencyID      *int64
	IsDebitNote     bool
	ReversedEntryID *int64
	DebitOriginID   *int64
	SourceModule    string
	SourceID        *uuid.UUID
	Lines           []LineInput
}

// ReverseInput wraps parameters for building a reversal.
type ReverseInput struct {
	MoveID   int64
	Date     *time.Time
	Reason   string
	AutoPost bool
}

// ErrMoveNotFound indicates a missing move.
var ErrMoveNotFound = fmt.Errorf("ledger: move: %w", shared.ErrNotFound)

// journalCompat maps each move type to the journal types it may post through.
var journalCompat = map[MoveType][]masterdata.JournalType{
	MoveTypeEntry:      {masterdata.JournalTypeGeneral, masterdata.JournalTypeBank, masterdata.JournalTypeCash},
	MoveTypeOutInvoice: {masterdata.JournalTypeSale},
	MoveTypeOutRefund:  {masterdata.JournalTypeSale},
	MoveTypeInInvoice:  {masterdata.JournalTypePurchase},
	MoveTypeInRefund:   {masterdata.JournalTypePurchase},
}

// CheckJournalCompat validates the move-type/journal-type pairing.
func CheckJournalCompat(moveType MoveType, journalType masterdata.JournalType) error {
	allowed, ok := journalCompat[moveType]
	if !ok {
		return shared.Validationf("move_type", "unknown move type %q", moveType)
	}
	for _, jt := range allowed {
		if jt == journalType {
			return nil
		}
	}
	return shared.Validationf("journal", "move type %s cannot post through a %s journal", moveType, journalType)
}

// CheckLockDate rejects dates on or before the company lock date.
func CheckLockDate(date time.Time, lockDate *time.Time) error {
	if lockDate == nil {
		return nil
	}
	if !date.After(*lockDate) {
		return shared.Validationf("date", "date %s falls on or before the company lock date %s",
			date.Format("2006-01-02"), lockDate.Format("2006-01-02"))
	}
	return nil
}

// ValidateLineShape checks a single leg: non-negative amounts and at most one
// positive side.
func ValidateLineShape(idx int, debit, credit decimal.Decimal) error {
	field := fmt.Sprintf("lines[%d]", idx)
	if debit.IsNegative() || credit.IsNegative() {
		return shared.Validationf(field, "debit and credit must be non-negative")
	}
	if debit.IsPositive() && credit.IsPositive() {
		return shared.Validationf(field, "a line cannot carry both a debit and a credit")
	}
	return nil
}

// SumLines totals debit and credit across lines, rounded to stored precision.
func SumLines(lines []MoveLine) (totalDebit, totalCredit decimal.Decimal) {
	for _, line := range lines {
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}
	return shared.Round6(totalDebit), shared.Round6(totalCredit)
}

// CheckBalance enforces the core invariant: at least one line,
// sum(debit) == sum(credit), and both strictly positive.
func CheckBalance(lines []MoveLine) (totalDebit, totalCredit decimal.Decimal, err error) {
	if len(lines) == 0 {
		return decimal.Decimal{}, decimal.Decimal{}, shared.Validationf("lines", "move has no lines")
	}
	for idx, line := range lines {
		if err := ValidateLineShape(idx, line.Debit, line.Credit); err != nil {
			return decimal.Decimal{}, decimal.Decimal{}, err
		}
	}
	totalDebit, totalCredit = SumLines(lines)
	if !totalDebit.Equal(totalCredit) {
		return decimal.Decimal{}, decimal.Decimal{}, shared.Validationf("lines", "move is unbalanced: debit %s != credit %s", totalDebit, totalCredit)
	}
	if totalDebit.IsZero() {
		return decimal.Decimal{}, decimal.Decimal{}, shared.Validationf("lines", "move total must be positive")
	}
	return totalDebit, totalCredit, nil
}
