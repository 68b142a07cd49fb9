package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// TxRepository is the transactional surface of the payment store.
type TxRepository interface {
	Ledger() ledger.TxRepository
	GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error)
	InsertPayment(ctx context.Context, input PaymentInput) (Payment, error)
	UpdatePayment(ctx context.Context, id int64, input PaymentInput) (Payment, error)
	SetPaymentPosted(ctx context.Context, id, moveID int64) error
	SetPaymentState(ctx context.Context, id int64, state PaymentState) error
	GetSettings(ctx context.Context, companyID int64) (masterdata.AccountingSettings, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPayment(ctx context.Context, id int64) (Payment, error)
	ListPayments(ctx context.Context, filters PaymentFilters) ([]Payment, int, error)
}

// AuditPort records payment events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PaymentFilters narrows payment listings.
type PaymentFilters struct {
	CompanyID *int64
	JournalID *int64
	State     *PaymentState
	Page      int
	Limit     int
}

// Service owns the payment lifecycle and the entry moves it books.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the payment service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreatePayment persists a new draft payment.
func (s *Service) CreatePayment(ctx context.Context, input PaymentInput) (Payment, error) {
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.validateInput(ctx, tx, input); err != nil {
			return err
		}
		var err error
		payment, err = tx.InsertPayment(ctx, input)
		return err
	})
	return payment, err
}

// UpdatePayment rewrites a draft payment.
func (s *Service) UpdatePayment(ctx context.Context, id int64, input PaymentInput) (Payment, error) {
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetPaymentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.State != PaymentStateDraft {
			return shared.Validationf("state", "only draft payments can be edited, payment %d is %s", id, existing.State)
		}
		if err := s.validateInput(ctx, tx, input); err != nil {
			return err
		}
		payment, err = tx.UpdatePayment(ctx, id, input)
		return err
	})
	return payment, err
}

func (s *Service) validateInput(ctx context.Context, tx TxRepository, input PaymentInput) error {
	if !input.Type.Valid() {
		return shared.Validationf("payment_type", "unknown payment type %q", input.Type)
	}
	if input.Amount.Sign() <= 0 {
		return shared.Validationf("amount", "payment amount must be greater than zero")
	}
	if input.Date.IsZero() {
		return shared.Validationf("date", "date is required")
	}
	lg := tx.Ledger()
	if _, err := lg.GetCompany(ctx, input.CompanyID); err != nil {
		return err
	}
	journal, err := lg.GetJournal(ctx, input.JournalID)
	if err != nil {
		return err
	}
	return shared.RequireSameCompany(input.CompanyID, shared.CompanyRef{Field: "journal_id", CompanyID: journal.CompanyID})
}

// PostPayment books the payment: a two-line entry move with the liquidity
// leg on the journal's default account and the counterpart resolved from
// the company settings. Inbound payments debit liquidity; outbound the
// reverse. Settings are read once here and passed down, never mid-posting.
func (s *Service) PostPayment(ctx context.Context, paymentID int64) (PostStats, error) {
	var stats PostStats
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		payment, err := tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		settings, err := tx.GetSettings(ctx, payment.CompanyID)
		if err != nil {
			return err
		}
		stats, err = postPaymentTx(ctx, tx, payment, settings, s.now())
		return err
	})
	if err != nil {
		return PostStats{}, err
	}
	s.record(ctx, "payment.post", stats.PaymentID, map[string]any{"move_id": stats.MoveID})
	return stats, nil
}

func postPaymentTx(ctx context.Context, tx TxRepository, payment Payment, settings masterdata.AccountingSettings, now time.Time) (PostStats, error) {
	if payment.State != PaymentStateDraft {
		return PostStats{}, shared.Validationf("state", "only draft payments can be posted, payment %d is %s", payment.ID, payment.State)
	}
	if payment.MoveID != nil {
		return PostStats{}, shared.Validationf("move_id", "payment %d is already linked to a journal entry", payment.ID)
	}
	if payment.Amount.Sign() <= 0 {
		return PostStats{}, shared.Validationf("amount", "payment amount must be greater than zero")
	}

	lg := tx.Ledger()
	journal, err := lg.GetJournal(ctx, payment.JournalID)
	if err != nil {
		return PostStats{}, err
	}
	if journal.DefaultAccountID == nil {
		return PostStats{}, shared.Validationf("journal_id", "journal %q needs a default account to post payments", journal.Code)
	}
	liquidity, err := lg.GetAccount(ctx, *journal.DefaultAccountID)
	if err != nil {
		return PostStats{}, err
	}
	if err := shared.RequireSameCompany(payment.CompanyID, shared.CompanyRef{Field: "journal_id", CompanyID: liquidity.CompanyID}); err != nil {
		return PostStats{}, err
	}

	counterpartID := CounterpartAccountID(settings, *journal.DefaultAccountID)
	counterpart, err := lg.GetAccount(ctx, counterpartID)
	if err != nil {
		return PostStats{}, err
	}
	if err := shared.RequireSameCompany(payment.CompanyID, shared.CompanyRef{Field: "transfer_account_id", CompanyID: counterpart.CompanyID}); err != nil {
		return PostStats{}, err
	}

	reference := payment.Reference
	if reference == "" {
		reference = fmt.Sprintf("Payment %d", payment.ID)
	}

	liquidityLine := ledger.LineInput{
		AccountID:  *journal.DefaultAccountID,
		PartnerID:  payment.PartnerID,
		CurrencyID: payment.CurrencyID,
		Name:       reference,
	}
	counterpartLine := ledger.LineInput{
		AccountID:  counterpartID,
		PartnerID:  payment.PartnerID,
		CurrencyID: payment.CurrencyID,
		Name:       reference + " counterpart",
	}
	if payment.Type == PaymentInbound {
		liquidityLine.Debit = payment.Amount
		liquidityLine.AmountCurrency = payment.Amount
		counterpartLine.Credit = payment.Amount
		counterpartLine.AmountCurrency = payment.Amount.Neg()
	} else {
		liquidityLine.Credit = payment.Amount
		liquidityLine.AmountCurrency = payment.Amount.Neg()
		counterpartLine.Debit = payment.Amount
		counterpartLine.AmountCurrency = payment.Amount
	}

	move, err := ledger.BuildMoveTx(ctx, lg, ledger.MoveInput{
		CompanyID:    payment.CompanyID,
		JournalID:    payment.JournalID,
		Type:         ledger.MoveTypeEntry,
		Date:         payment.Date,
		Reference:    reference,
		PartnerID:    payment.PartnerID,
		CurrencyID:   payment.CurrencyID,
		SourceModule: "payments",
		SourceID:     &payment.UID,
		Lines:        []ledger.LineInput{liquidityLine, counterpartLine},
	})
	if err != nil {
		return PostStats{}, err
	}
	if _, err := ledger.PostMoveTx(ctx, lg, move.ID, now); err != nil {
		return PostStats{}, err
	}
	if err := tx.SetPaymentPosted(ctx, payment.ID, move.ID); err != nil {
		return PostStats{}, err
	}
	return PostStats{PaymentID: payment.ID, MoveID: move.ID, State: PaymentStatePosted}, nil
}

// CancelPayment moves a draft or posted payment to cancelled.
func (s *Service) CancelPayment(ctx context.Context, paymentID int64) (Payment, error) {
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		payment, err = tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.State == PaymentStateCancelled {
			return shared.Validationf("state", "payment %d is already cancelled", paymentID)
		}
		if err := tx.SetPaymentState(ctx, paymentID, PaymentStateCancelled); err != nil {
			return err
		}
		payment.State = PaymentStateCancelled
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	s.record(ctx, "payment.cancel", paymentID, nil)
	return payment, nil
}

// ResetPaymentToDraft brings a cancelled payment back to draft.
func (s *Service) ResetPaymentToDraft(ctx context.Context, paymentID int64) (Payment, error) {
	var payment Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		payment, err = tx.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.State != PaymentStateCancelled {
			return shared.Validationf("state", "only cancelled payments can be reset to draft, payment %d is %s", paymentID, payment.State)
		}
		if err := tx.SetPaymentState(ctx, paymentID, PaymentStateDraft); err != nil {
			return err
		}
		payment.State = PaymentStateDraft
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	s.record(ctx, "payment.reset", paymentID, nil)
	return payment, nil
}

// GetPayment returns one payment.
func (s *Service) GetPayment(ctx context.Context, id int64) (Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

// ListPayments lists payments.
func (s *Service) ListPayments(ctx context.Context, filters PaymentFilters) ([]Payment, int, error) {
	return s.repo.ListPayments(ctx, filters)
}

func (s *Service) record(ctx context.Context, action string, paymentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "payment",
		EntityID: fmt.Sprintf("%d", paymentID),
		Meta:     meta,
		At:       s.now(),
	})
}
