package invoicing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// InvoiceLine is a commercial line attached to an invoice-type move. The
// monetary fields Subtotal/TaxAmount/Total are derived and recomputed on
// every write; callers never set them directly.
type InvoiceLine struct {
	ID              int64           `json:"id"`
	MoveID          int64           `json:"move_id"`
	AccountID       int64           `json:"account_id"`
	TaxID           *int64          `json:"tax_id"`
	Name            string          `json:"name"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Subtotal        decimal.Decimal `json:"line_subtotal"`
	TaxAmount       decimal.Decimal `json:"line_tax"`
	Total           decimal.Decimal `json:"line_total"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// InvoiceLineInput carries the editable fields of an invoice line.
type InvoiceLineInput struct {
	AccountID       int64
	TaxID           *int64
	Name            string
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
}

// LineAmounts is the derived money on one invoice line.
type LineAmounts struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// PostInvoiceResult extends the posting result with compiler output.
type PostInvoiceResult struct {
	ledger.PostingResult
	GeneratedLines int             `json:"generated_lines"`
	InvoiceTotal   decimal.Decimal `json:"invoice_total"`
}

// NoteInput wraps parameters for credit and debit notes.
type NoteInput struct {
	MoveID int64
	Date   *time.Time
	Reason string
}

// BusinessDebit reports which side of the ledger the commercial lines of t
// land on: customer credit notes and vendor bills debit the business side,
// customer invoices and vendor refunds credit it.
func BusinessDebit(t ledger.MoveType) bool {
	return t == ledger.MoveTypeOutRefund || t == ledger.MoveTypeInInvoice
}

// ComputeInvoiceLineAmounts derives subtotal, tax, and total for one invoice
// line. Pure; every intermediate value is rounded to stored precision.
func ComputeInvoiceLineAmounts(quantity, unitPrice, discountPercent decimal.Decimal, tax *masterdata.Tax) (LineAmounts, error) {
	if quantity.Sign() <= 0 {
		return LineAmounts{}, shared.Validationf("quantity", "quantity must be positive")
	}
	if unitPrice.Sign() < 0 {
		return LineAmounts{}, shared.Validationf("unit_price", "unit price cannot be negative")
	}
	if discountPercent.Sign() < 0 || discountPercent.GreaterThan(hundred) {
		return LineAmounts{}, shared.Validationf("discount_percent", "discount percent must be between 0 and 100")
	}

	discountFactor := decimal.NewFromInt(1).Sub(discountPercent.Div(hundred))
	subtotal := shared.Round6(quantity.Mul(unitPrice).Mul(discountFactor))

	taxAmount := decimal.Zero
	if tax != nil {
		switch tax.AmountType {
		case masterdata.TaxAmountPercent:
			taxAmount = shared.Round6(subtotal.Mul(tax.Amount).Div(hundred))
		case masterdata.TaxAmountFixed:
			taxAmount = shared.Round6(tax.Amount.Mul(quantity))
		case masterdata.TaxAmountDivision:
			if tax.Amount.GreaterThanOrEqual(hundred) {
				return LineAmounts{}, shared.Validationf("tax_id", "division tax rate must be below 100")
			}
			taxAmount = shared.Round6(subtotal.Mul(tax.Amount).Div(hundred.Sub(tax.Amount)))
		default:
			return LineAmounts{}, shared.Validationf("tax_id", "unknown tax amount type %q", tax.AmountType)
		}
	}

	return LineAmounts{
		Subtotal: subtotal,
		Tax:      taxAmount,
		Total:    subtotal.Add(taxAmount),
	}, nil
}
