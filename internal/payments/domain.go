package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/masterdata"
)

// PaymentType is the direction of a payment.
type PaymentType string

const (
	PaymentInbound  PaymentType = "inbound"
	PaymentOutbound PaymentType = "outbound"
)

// Valid reports whether t is a known direction.
func (t PaymentType) Valid() bool {
	return t == PaymentInbound || t == PaymentOutbound
}

// PaymentState is the payment lifecycle state.
type PaymentState string

const (
	PaymentStateDraft     PaymentState = "draft"
	PaymentStatePosted    PaymentState = "posted"
	PaymentStateCancelled PaymentState = "cancelled"
)

// Payment is a money movement through a liquidity journal. Posting creates
// a two-line entry move and links it one-to-one via UID.
type Payment struct {
	ID         int64           `json:"id"`
	UID        uuid.UUID       `json:"uid"`
	CompanyID  int64           `json:"company_id"`
	PartnerID  *int64          `json:"partner_id"`
	JournalID  int64           `json:"journal_id"`
	MoveID     *int64          `json:"move_id"`
	CurrencyID *int64          `json:"currency_id"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Type       PaymentType     `json:"payment_type"`
	State      PaymentState    `json:"state"`
	Reference  string          `json:"reference"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// PaymentInput carries the editable fields of a payment.
type PaymentInput struct {
	CompanyID  int64
	PartnerID  *int64
	JournalID  int64
	CurrencyID *int64
	Date       time.Time
	Amount     decimal.Decimal
	Type       PaymentType
	Reference  string
}

// PostStats summarises a posted payment.
type PostStats struct {
	PaymentID int64        `json:"payment_id"`
	MoveID    int64        `json:"move_id"`
	State     PaymentState `json:"state"`
}

// CounterpartAccountID resolves the counterpart leg: the company settings'
// transfer account when configured, otherwise the journal's own default
// account.
func CounterpartAccountID(settings masterdata.AccountingSettings, journalDefault int64) int64 {
	if settings.TransferAccountID != nil {
		return *settings.TransferAccountID
	}
	return journalDefault
}
