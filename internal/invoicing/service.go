package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// TxRepository is the transactional surface of the invoicing store. Ledger()
// returns the posting engine bound to the same transaction so invoice line
// compilation and the resulting posting commit atomically.
type TxRepository interface {
	Ledger() ledger.TxRepository
	ListInvoiceLines(ctx context.Context, moveID int64) ([]InvoiceLine, error)
	InsertInvoiceLine(ctx context.Context, moveID int64, input InvoiceLineInput, amounts LineAmounts) (InvoiceLine, error)
	UpdateInvoiceLine(ctx context.Context, lineID int64, input InvoiceLineInput, amounts LineAmounts) (InvoiceLine, error)
	DeleteInvoiceLine(ctx context.Context, lineID int64) error
	GetInvoiceLine(ctx context.Context, lineID int64) (InvoiceLine, error)
	GetTax(ctx context.Context, id int64) (masterdata.Tax, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, moveID int64) (ledger.Move, []InvoiceLine, error)
	ListInvoices(ctx context.Context, filters ledger.MoveFilters) ([]ledger.Move, int, error)
}

// AuditPort records invoicing events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns invoice documents: commercial lines, the compiler that turns
// them into balanced ledger lines, and credit/debit note creation.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the invoicing service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInvoice persists a new draft invoice-type move with its commercial
// lines. No ledger lines are generated until posting.
func (s *Service) CreateInvoice(ctx context.Context, input ledger.MoveInput, lines []InvoiceLineInput) (ledger.Move, []InvoiceLine, error) {
	if !input.Type.IsInvoiceLike() {
		return ledger.Move{}, nil, shared.Validationf("move_type", "%q is not an invoice type", input.Type)
	}
	var (
		move    ledger.Move
		created []InvoiceLine
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		move, err = ledger.BuildMoveTx(ctx, tx.Ledger(), input)
		if err != nil {
			return err
		}
		for _, line := range lines {
			inserted, err := s.writeLine(ctx, tx, move, line, 0)
			if err != nil {
				return err
			}
			created = append(created, inserted)
		}
		return nil
	})
	if err != nil {
		return ledger.Move{}, nil, err
	}
	return move, created, nil
}

// AddInvoiceLine appends a commercial line to a draft invoice.
func (s *Service) AddInvoiceLine(ctx context.Context, moveID int64, input InvoiceLineInput) (InvoiceLine, error) {
	var line InvoiceLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		move, err := s.draftInvoiceForUpdate(ctx, tx, moveID)
		if err != nil {
			return err
		}
		line, err = s.writeLine(ctx, tx, move, input, 0)
		return err
	})
	return line, err
}

// UpdateInvoiceLine rewrites a commercial line, recomputing derived amounts.
func (s *Service) UpdateInvoiceLine(ctx context.Context, moveID, lineID int64, input InvoiceLineInput) (InvoiceLine, error) {
	var line InvoiceLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		move, err := s.draftInvoiceForUpdate(ctx, tx, moveID)
		if err != nil {
			return err
		}
		existing, err := tx.GetInvoiceLine(ctx, lineID)
		if err != nil {
			return err
		}
		if existing.MoveID != move.ID {
			return shared.Validationf("line_id", "line %d does not belong to invoice %d", lineID, move.ID)
		}
		line, err = s.writeLine(ctx, tx, move, input, lineID)
		return err
	})
	return line, err
}

// DeleteInvoiceLine removes a commercial line from a draft invoice.
func (s *Service) DeleteInvoiceLine(ctx context.Context, moveID, lineID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		move, err := s.draftInvoiceForUpdate(ctx, tx, moveID)
		if err != nil {
			return err
		}
		existing, err := tx.GetInvoiceLine(ctx, lineID)
		if err != nil {
			return err
		}
		if existing.MoveID != move.ID {
			return shared.Validationf("line_id", "line %d does not belong to invoice %d", lineID, move.ID)
		}
		return tx.DeleteInvoiceLine(ctx, lineID)
	})
}

// PostInvoice compiles the invoice's commercial lines into balanced ledger
// lines and posts the move. The rebuild is idempotent: any stale draft
// ledger lines are discarded first.
func (s *Service) PostInvoice(ctx context.Context, moveID int64) (PostInvoiceResult, error) {
	var result PostInvoiceResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.postInvoiceTx(ctx, tx, moveID)
		return err
	})
	if err != nil {
		return PostInvoiceResult{}, err
	}
	s.record(ctx, "invoice.post", moveID, map[string]any{
		"generated_lines": result.GeneratedLines,
		"invoice_total":   result.InvoiceTotal.String(),
	})
	return result, nil
}

func (s *Service) postInvoiceTx(ctx context.Context, tx TxRepository, moveID int64) (PostInvoiceResult, error) {
	lg := tx.Ledger()
	move, err := lg.GetMoveForUpdate(ctx, moveID)
	if err != nil {
		return PostInvoiceResult{}, err
	}
	if !move.Type.IsInvoiceLike() {
		return PostInvoiceResult{}, shared.Validationf("move_type", "move %d is not an invoice, bill, or refund", move.ID)
	}
	if move.State != ledger.MoveStateDraft {
		return PostInvoiceResult{}, shared.Validationf("state", "only draft invoices can be posted, invoice %d is %s", move.ID, move.State)
	}

	invoiceLines, err := tx.ListInvoiceLines(ctx, move.ID)
	if err != nil {
		return PostInvoiceResult{}, err
	}
	if len(invoiceLines) == 0 {
		return PostInvoiceResult{}, shared.Validationf("lines", "cannot post invoice %d without invoice lines", move.ID)
	}

	journal, err := lg.GetJournal(ctx, move.JournalID)
	if err != nil {
		return PostInvoiceResult{}, err
	}
	if journal.DefaultAccountID == nil {
		return PostInvoiceResult{}, shared.Validationf("journal_id", "journal %q needs a default account to post invoices", journal.Code)
	}
	counterpart, err := lg.GetAccount(ctx, *journal.DefaultAccountID)
	if err != nil {
		return PostInvoiceResult{}, err
	}
	if err := shared.RequireSameCompany(move.CompanyID, shared.CompanyRef{Field: "journal_id", CompanyID: counterpart.CompanyID}); err != nil {
		return PostInvoiceResult{}, err
	}

	// Rebuild from the commercial lines so stale draft ledger lines never
	// survive a re-post.
	if err := lg.DeleteMoveLines(ctx, move.ID); err != nil {
		return PostInvoiceResult{}, err
	}

	businessDebit := BusinessDebit(move.Type)
	total := decimal.Zero
	var generated []ledger.LineInput

	for _, line := range invoiceLines {
		account, err := lg.GetAccount(ctx, line.AccountID)
		if err != nil {
			return PostInvoiceResult{}, err
		}
		if err := shared.RequireSameCompany(move.CompanyID, shared.CompanyRef{Field: "account_id", CompanyID: account.CompanyID}); err != nil {
			return PostInvoiceResult{}, err
		}
		total = total.Add(line.Total)

		if line.Subtotal.Sign() != 0 {
			generated = append(generated, conventionLine(line.AccountID, move, line.Name, line.Subtotal, businessDebit))
		}
		if line.TaxAmount.Sign() != 0 {
			if line.TaxID == nil {
				return PostInvoiceResult{}, shared.Validationf("tax_id", "invoice line %d has a tax amount but no tax", line.ID)
			}
			tax, err := tx.GetTax(ctx, *line.TaxID)
			if err != nil {
				return PostInvoiceResult{}, err
			}
			if tax.AccountID == nil {
				return PostInvoiceResult{}, shared.Validationf("tax_id", "tax %q needs an account to post taxed lines", tax.Name)
			}
			taxAccount, err := lg.GetAccount(ctx, *tax.AccountID)
			if err != nil {
				return PostInvoiceResult{}, err
			}
			if err := shared.RequireSameCompany(move.CompanyID, shared.CompanyRef{Field: "tax_id", CompanyID: taxAccount.CompanyID}); err != nil {
				return PostInvoiceResult{}, err
			}
			generated = append(generated, conventionLine(*tax.AccountID, move, "Tax: "+tax.Name, line.TaxAmount, businessDebit))
		}
	}

	if total.Sign() <= 0 {
		return PostInvoiceResult{}, shared.Validationf("total", "invoice total must be greater than zero")
	}
	generated = append(generated, conventionLine(*journal.DefaultAccountID, move, counterpartLabel(move), total, !businessDebit))

	if _, err := lg.InsertMoveLines(ctx, move.ID, generated); err != nil {
		return PostInvoiceResult{}, err
	}

	posting, err := ledger.PostMoveTx(ctx, lg, move.ID, s.now())
	if err != nil {
		return PostInvoiceResult{}, err
	}
	return PostInvoiceResult{
		PostingResult:  posting,
		GeneratedLines: len(generated),
		InvoiceTotal:   total,
	}, nil
}

// ReverseInvoiceToCreditNote produces a draft move of the mirrored refund
// type with the invoice lines copied verbatim. The sign inversion happens
// naturally because the refund type flips the debit/credit convention at
// compile time, so quantities and prices are preserved as-is.
func (s *Service) ReverseInvoiceToCreditNote(ctx context.Context, input NoteInput) (ledger.Move, error) {
	var note ledger.Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, lines, err := s.noteSource(ctx, tx, input.MoveID)
		if err != nil {
			return err
		}
		refundType, ok := original.Type.RefundType()
		if !ok {
			return shared.Validationf("move_type", "only invoices and bills can be reversed to credit notes, move %d is %s", original.ID, original.Type)
		}
		if original.IsDebitNote {
			return shared.Validationf("move_id", "debit note %d must be corrected through its origin invoice", original.ID)
		}
		note, err = s.copyAsNote(ctx, tx, original, lines, noteSpec{
			moveType:  refundType,
			reference: noteReference("Credit note for", original, input.Reason),
			date:      input.Date,
			reversed:  &original.ID,
		})
		return err
	})
	if err != nil {
		return ledger.Move{}, err
	}
	s.record(ctx, "invoice.credit_note", input.MoveID, map[string]any{"credit_note_id": note.ID})
	return note, nil
}

// CreateDebitNoteFromInvoice produces a draft move of the same type, flagged
// is_debit_note and linked to its origin, with the invoice lines copied
// verbatim. Debit notes cannot chain further debit notes.
func (s *Service) CreateDebitNoteFromInvoice(ctx context.Context, input NoteInput) (ledger.Move, error) {
	var note ledger.Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, lines, err := s.noteSource(ctx, tx, input.MoveID)
		if err != nil {
			return err
		}
		if !original.Type.IsInvoice() {
			return shared.Validationf("move_type", "debit notes can only be created from invoices and bills, move %d is %s", original.ID, original.Type)
		}
		if original.IsDebitNote {
			return shared.Validationf("move_id", "move %d is already a debit note", original.ID)
		}
		note, err = s.copyAsNote(ctx, tx, original, lines, noteSpec{
			moveType:  original.Type,
			reference: noteReference("Debit note for", original, input.Reason),
			date:      input.Date,
			debitNote: true,
			origin:    &original.ID,
		})
		return err
	})
	if err != nil {
		return ledger.Move{}, err
	}
	s.record(ctx, "invoice.debit_note", input.MoveID, map[string]any{"debit_note_id": note.ID})
	return note, nil
}

// CancelInvoice moves a non-cancelled invoice to cancelled.
func (s *Service) CancelInvoice(ctx context.Context, moveID int64) (ledger.Move, error) {
	var move ledger.Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lg := tx.Ledger()
		var err error
		move, err = lg.GetMoveForUpdate(ctx, moveID)
		if err != nil {
			return err
		}
		if !move.Type.IsInvoiceLike() {
			return shared.Validationf("move_type", "move %d is not an invoice, bill, or refund", move.ID)
		}
		if move.State == ledger.MoveStateCancelled {
			return shared.Validationf("state", "invoice %d is already cancelled", move.ID)
		}
		if err := lg.UpdateMoveState(ctx, move.ID, ledger.MoveStateCancelled, nil); err != nil {
			return err
		}
		move.State = ledger.MoveStateCancelled
		move.PostedAt = nil
		return nil
	})
	if err != nil {
		return ledger.Move{}, err
	}
	s.record(ctx, "invoice.cancel", moveID, nil)
	return move, nil
}

// ResetInvoiceToDraft brings a cancelled invoice back to draft.
func (s *Service) ResetInvoiceToDraft(ctx context.Context, moveID int64) (ledger.Move, error) {
	var move ledger.Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lg := tx.Ledger()
		var err error
		move, err = lg.GetMoveForUpdate(ctx, moveID)
		if err != nil {
			return err
		}
		if !move.Type.IsInvoiceLike() {
			return shared.Validationf("move_type", "move %d is not an invoice, bill, or refund", move.ID)
		}
		if move.State != ledger.MoveStateCancelled {
			return shared.Validationf("state", "only cancelled invoices can be reset to draft, invoice %d is %s", move.ID, move.State)
		}
		if err := lg.UpdateMoveState(ctx, move.ID, ledger.MoveStateDraft, nil); err != nil {
			return err
		}
		move.State = ledger.MoveStateDraft
		move.PostedAt = nil
		return nil
	})
	if err != nil {
		return ledger.Move{}, err
	}
	s.record(ctx, "invoice.reset", moveID, nil)
	return move, nil
}

// GetInvoice returns an invoice move with its commercial lines.
func (s *Service) GetInvoice(ctx context.Context, moveID int64) (ledger.Move, []InvoiceLine, error) {
	return s.repo.GetInvoice(ctx, moveID)
}

// ListInvoices lists invoice-type moves.
func (s *Service) ListInvoices(ctx context.Context, filters ledger.MoveFilters) ([]ledger.Move, int, error) {
	return s.repo.ListInvoices(ctx, filters)
}

type noteSpec struct {
	moveType  ledger.MoveType
	reference string
	date      *time.Time
	reversed  *int64
	origin    *int64
	debitNote bool
}

func (s *Service) noteSource(ctx context.Context, tx TxRepository, moveID int64) (ledger.Move, []InvoiceLine, error) {
	move, err := tx.Ledger().GetMoveForUpdate(ctx, moveID)
	if err != nil {
		return ledger.Move{}, nil, err
	}
	if move.State != ledger.MoveStatePosted {
		return ledger.Move{}, nil, shared.Validationf("state", "only posted invoices can be used, invoice %d is %s", move.ID, move.State)
	}
	lines, err := tx.ListInvoiceLines(ctx, move.ID)
	if err != nil {
		return ledger.Move{}, nil, err
	}
	return move, lines, nil
}

func (s *Service) copyAsNote(ctx context.Context, tx TxRepository, original ledger.Move, lines []InvoiceLine, spec noteSpec) (ledger.Move, error) {
	date := s.now()
	if spec.date != nil {
		date = *spec.date
	}
	note, err := ledger.BuildMoveTx(ctx, tx.Ledger(), ledger.MoveInput{
		CompanyID:       original.CompanyID,
		JournalID:       original.JournalID,
		Type:            spec.moveType,
		Date:            date,
		Reference:       spec.reference,
		PartnerID:       original.PartnerID,
		CurrencyID:      original.CurrencyID,
		IsDebitNote:     spec.debitNote,
		ReversedEntryID: spec.reversed,
		DebitOriginID:   spec.origin,
	})
	if err != nil {
		return ledger.Move{}, err
	}
	for _, line := range lines {
		if _, err := s.writeLine(ctx, tx, note, InvoiceLineInput{
			AccountID:       line.AccountID,
			TaxID:           line.TaxID,
			Name:            line.Name,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			DiscountPercent: line.DiscountPercent,
		}, 0); err != nil {
			return ledger.Move{}, err
		}
	}
	return note, nil
}

// writeLine validates a commercial line against the invoice, recomputes the
// derived amounts, and inserts or updates it (lineID zero inserts).
func (s *Service) writeLine(ctx context.Context, tx TxRepository, move ledger.Move, input InvoiceLineInput, lineID int64) (InvoiceLine, error) {
	lg := tx.Ledger()
	account, err := lg.GetAccount(ctx, input.AccountID)
	if err != nil {
		return InvoiceLine{}, err
	}
	if err := shared.RequireSameCompany(move.CompanyID, shared.CompanyRef{Field: "account_id", CompanyID: account.CompanyID}); err != nil {
		return InvoiceLine{}, err
	}
	var tax *masterdata.Tax
	if input.TaxID != nil {
		found, err := tx.GetTax(ctx, *input.TaxID)
		if err != nil {
			return InvoiceLine{}, err
		}
		if err := shared.RequireSameCompany(move.CompanyID, shared.CompanyRef{Field: "tax_id", CompanyID: found.CompanyID}); err != nil {
			return InvoiceLine{}, err
		}
		tax = &found
	}
	amounts, err := ComputeInvoiceLineAmounts(input.Quantity, input.UnitPrice, input.DiscountPercent, tax)
	if err != nil {
		return InvoiceLine{}, err
	}
	if lineID != 0 {
		return tx.UpdateInvoiceLine(ctx, lineID, input, amounts)
	}
	return tx.InsertInvoiceLine(ctx, move.ID, input, amounts)
}

func (s *Service) draftInvoiceForUpdate(ctx context.Context, tx TxRepository, moveID int64) (ledger.Move, error) {
	move, err := tx.Ledger().GetMoveForUpdate(ctx, moveID)
	if err != nil {
		return ledger.Move{}, err
	}
	if !move.Type.IsInvoiceLike() {
		return ledger.Move{}, shared.Validationf("move_type", "move %d is not an invoice, bill, or refund", move.ID)
	}
	if move.State != ledger.MoveStateDraft {
		return ledger.Move{}, shared.Validationf("state", "invoice %d is %s, lines can only change while draft", move.ID, move.State)
	}
	return move, nil
}

func conventionLine(accountID int64, move ledger.Move, name string, amount decimal.Decimal, debit bool) ledger.LineInput {
	line := ledger.LineInput{
		AccountID:  accountID,
		PartnerID:  move.PartnerID,
		CurrencyID: move.CurrencyID,
		Name:       name,
	}
	if debit {
		line.Debit = amount
		line.AmountCurrency = amount
	} else {
		line.Credit = amount
		line.AmountCurrency = amount.Neg()
	}
	return line
}

func counterpartLabel(move ledger.Move) string {
	if move.Reference != "" {
		return move.Reference
	}
	return fmt.Sprintf("Invoice %d", move.ID)
}

func noteReference(prefix string, original ledger.Move, reason string) string {
	label := original.Reference
	if label == "" {
		label = fmt.Sprintf("move %d", original.ID)
	}
	ref := prefix + " " + label
	if reason != "" {
		ref = ref + " - " + reason
	}
	return ref
}

func (s *Service) record(ctx context.Context, action string, moveID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "move",
		EntityID: fmt.Sprintf("%d", moveID),
		Meta:     meta,
		At:       s.now(),
	})
}
