package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// TxRepository exposes the transactional persistence surface of the posting
// engine. Sibling packages obtain one bound to their own transaction so a
// document update and its ledger posting commit together.
type TxRepository interface {
	GetMoveForUpdate(ctx context.Context, id int64) (Move, error)
	GetMoveLines(ctx context.Context, moveID int64) ([]MoveLine, error)
	GetJournal(ctx context.Context, id int64) (masterdata.Journal, error)
	GetCompany(ctx context.Context, id int64) (masterdata.Company, error)
	GetAccount(ctx context.Context, id int64) (masterdata.Account, error)
	InsertMove(ctx context.Context, input MoveInput, state MoveState) (Move, error)
	InsertMoveLines(ctx context.Context, moveID int64, lines []LineInput) ([]MoveLine, error)
	DeleteMoveLines(ctx context.Context, moveID int64) error
	UpdateMoveState(ctx context.Context, moveID int64, state MoveState, postedAt *time.Time) error
	LinkSource(ctx context.Context, module string, ref uuid.UUID, moveID int64) error
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMoveWithLines(ctx context.Context, id int64) (Move, error)
	ListMoves(ctx context.Context, filters MoveFilters) ([]Move, int, error)
}

// AuditPort records ledger events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MoveFilters narrows move listings.
type MoveFilters struct {
	CompanyID *int64
	JournalID *int64
	State     *MoveState
	Type      *MoveType
	Page      int
	Limit     int
}

// Service coordinates creating, posting, and reversing moves.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// BuildMoveTx validates and persists a draft move with its lines inside the
// supplied transaction view.
func BuildMoveTx(ctx context.Context, tx TxRepository, input MoveInput) (Move, error) {
	if !input.Type.Valid() {
		return Move{}, shared.Validationf("move_type", "unknown move type %q", input.Type)
	}
	if input.CompanyID <= 0 {
		return Move{}, shared.Validationf("company_id", "company is required")
	}
	if input.Date.IsZero() {
		return Move{}, shared.Validationf("date", "date is required")
	}
	journal, err := tx.GetJournal(ctx, input.JournalID)
	if err != nil {
		return Move{}, err
	}
	if err := shared.RequireSameCompany(input.CompanyID, shared.CompanyRef{Field: "journal_id", CompanyID: journal.CompanyID}); err != nil {
		return Move{}, err
	}
	if err := validateLineInputs(ctx, tx, input.CompanyID, input.Lines); err != nil {
		return Move{}, err
	}
	move, err := tx.InsertMove(ctx, input, MoveStateDraft)
	if err != nil {
		return Move{}, err
	}
	move.Lines, err = tx.InsertMoveLines(ctx, move.ID, input.Lines)
	if err != nil {
		return Move{}, err
	}
	if input.SourceModule != "" && input.SourceID != nil {
		if err := tx.LinkSource(ctx, input.SourceModule, *input.SourceID, move.ID); err != nil {
			return Move{}, err
		}
	}
	return move, nil
}

func validateLineInputs(ctx context.Context, tx TxRepository, companyID int64, lines []LineInput) error {
	for idx, line := range lines {
		if err := ValidateLineShape(idx, line.Debit, line.Credit); err != nil {
			return err
		}
		account, err := tx.GetAccount(ctx, line.AccountID)
		if err != nil {
			return err
		}
		if err := shared.RequireSameCompany(companyID, shared.CompanyRef{Field: fmt.Sprintf("lines[%d].account_id", idx), CompanyID: account.CompanyID}); err != nil {
			return err
		}
		if len(line.Analytic) > 0 {
			if err := line.Analytic.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// PostMoveTx runs the posting checks in order (journal compatibility, lock
// date, balance) and flips the move to posted, all against one open
// transaction. Any failure rolls the caller's transaction back untouched.
func PostMoveTx(ctx context.Context, tx TxRepository, moveID int64, now time.Time) (PostingResult, error) {
	move, err := tx.GetMoveForUpdate(ctx, moveID)
	if err != nil {
		return PostingResult{}, err
	}
	if move.State != MoveStateDraft {
		return PostingResult{}, shared.Validationf("state", "only draft moves can be posted, move %d is %s", move.ID, move.State)
	}

	journal, err := tx.GetJournal(ctx, move.JournalID)
	if err != nil {
		return PostingResult{}, err
	}
	if err := CheckJournalCompat(move.Type, journal.Type); err != nil {
		return PostingResult{}, err
	}

	company, err := tx.GetCompany(ctx, move.CompanyID)
	if err != nil {
		return PostingResult{}, err
	}
	if err := CheckLockDate(move.Date, company.LockDate); err != nil {
		return PostingResult{}, err
	}

	lines, err := tx.GetMoveLines(ctx, move.ID)
	if err != nil {
		return PostingResult{}, err
	}
	accounts := make(map[int64]masterdata.Account, len(lines))
	for idx, line := range lines {
		account, ok := accounts[line.AccountID]
		if !ok {
			account, err = tx.GetAccount(ctx, line.AccountID)
			if err != nil {
				return PostingResult{}, err
			}
			accounts[line.AccountID] = account
		}
		if account.Deprecated {
			return PostingResult{}, shared.Validationf(fmt.Sprintf("lines[%d]", idx), "account %s is deprecated", account.Code)
		}
		if err := shared.RequireSameCompany(move.CompanyID, shared.CompanyRef{Field: fmt.Sprintf("lines[%d].account_id", idx), CompanyID: account.CompanyID}); err != nil {
			return PostingResult{}, err
		}
	}

	totalDebit, totalCredit, err := CheckBalance(lines)
	if err != nil {
		return PostingResult{}, err
	}

	postedAt := now
	if err := tx.UpdateMoveState(ctx, move.ID, MoveStatePosted, &postedAt); err != nil {
		return PostingResult{}, err
	}
	return PostingResult{
		MoveID:      move.ID,
		LineCount:   len(lines),
		TotalDebit:  totalDebit,
		TotalCredit: totalCredit,
		State:       MoveStatePosted,
		PostedAt:    postedAt,
	}, nil
}

// ReverseMoveTx builds the mirror image of a posted entry move: same header,
// every line with debit and credit swapped and amount_currency negated.
func ReverseMoveTx(ctx context.Context, tx TxRepository, input ReverseInput, now time.Time) (Move, error) {
	original, err := tx.GetMoveForUpdate(ctx, input.MoveID)
	if err != nil {
		return Move{}, err
	}
	if original.Type != MoveTypeEntry {
		return Move{}, shared.Validationf("move_type", "only journal entries can be reversed directly, move %d is %s", original.ID, original.Type)
	}
	if original.State != MoveStatePosted {
		return Move{}, shared.Validationf("state", "only posted moves can be reversed, move %d is %s", original.ID, original.State)
	}
	lines, err := tx.GetMoveLines(ctx, original.ID)
	if err != nil {
		return Move{}, err
	}

	date := now
	if input.Date != nil {
		date = *input.Date
	}
	reference := fmt.Sprintf("Reversal of %s", originalLabel(original))
	if input.Reason != "" {
		reference = reference + " - " + input.Reason
	}
	reversal, err := BuildMoveTx(ctx, tx, MoveInput{
		CompanyID:       original.CompanyID,
		JournalID:       original.JournalID,
		Type:            original.Type,
		Date:            date,
		Reference:       reference,
		PartnerID:       original.PartnerID,
		CurrencyID:      original.CurrencyID,
		ReversedEntryID: &original.ID,
		Lines:           swapLines(lines),
	})
	if err != nil {
		return Move{}, err
	}
	if input.AutoPost {
		if _, err := PostMoveTx(ctx, tx, reversal.ID, now); err != nil {
			return Move{}, err
		}
		reversal.State = MoveStatePosted
		reversal.PostedAt = &now
	}
	return reversal, nil
}

func swapLines(lines []MoveLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:      line.AccountID,
			PartnerID:      line.PartnerID,
			Name:           line.Name,
			Debit:          line.Credit,
			Credit:         line.Debit,
			CurrencyID:     line.CurrencyID,
			AmountCurrency: line.AmountCurrency.Neg(),
			Analytic:       line.Analytic,
		})
	}
	return out
}

func originalLabel(move Move) string {
	if move.Reference != "" {
		return move.Reference
	}
	return fmt.Sprintf("move %d", move.ID)
}

// CreateMove persists a new draft move.
func (s *Service) CreateMove(ctx context.Context, input MoveInput) (Move, error) {
	var move Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		move, err = BuildMoveTx(ctx, tx, input)
		return err
	})
	return move, err
}

// AddMoveLines appends lines to a draft move. Lines are append-only while the
// move is draft and frozen afterwards.
func (s *Service) AddMoveLines(ctx context.Context, moveID int64, lines []LineInput) (Move, error) {
	var move Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetMoveForUpdate(ctx, moveID)
		if err != nil {
			return err
		}
		if current.State != MoveStateDraft {
			return shared.Validationf("state", "lines can only be added while the move is draft")
		}
		if err := validateLineInputs(ctx, tx, current.CompanyID, lines); err != nil {
			return err
		}
		if _, err := tx.InsertMoveLines(ctx, current.ID, lines); err != nil {
			return err
		}
		current.Lines, err = tx.GetMoveLines(ctx, current.ID)
		if err != nil {
			return err
		}
		move = current
		return nil
	})
	return move, err
}

// PostMove validates and posts a draft move.
func (s *Service) PostMove(ctx context.Context, moveID int64) (PostingResult, error) {
	var result PostingResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = PostMoveTx(ctx, tx, moveID, s.now())
		return err
	})
	if err != nil {
		return PostingResult{}, err
	}
	s.record(ctx, "move.post", result.MoveID, map[string]any{
		"total_debit":  result.TotalDebit.String(),
		"total_credit": result.TotalCredit.String(),
		"line_count":   result.LineCount,
	})
	return result, nil
}

// SetMoveDraft resets a posted journal entry back to draft. Administrative
// escape hatch: no balance re-check, journal entries only.
func (s *Service) SetMoveDraft(ctx context.Context, moveID int64) (Move, error) {
	var move Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetMoveForUpdate(ctx, moveID)
		if err != nil {
			return err
		}
		if current.Type != MoveTypeEntry {
			return shared.Validationf("move_type", "only journal entries can be reset to draft")
		}
		if current.State != MoveStatePosted {
			return shared.Validationf("state", "only posted moves can be reset to draft, move %d is %s", current.ID, current.State)
		}
		if err := tx.UpdateMoveState(ctx, current.ID, MoveStateDraft, nil); err != nil {
			return err
		}
		current.State = MoveStateDraft
		current.PostedAt = nil
		move = current
		return nil
	})
	if err != nil {
		return Move{}, err
	}
	s.record(ctx, "move.reset_to_draft", move.ID, nil)
	return move, nil
}

// CancelMove cancels a journal entry from any non-cancelled state.
func (s *Service) CancelMove(ctx context.Context, moveID int64) (Move, error) {
	var move Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetMoveForUpdate(ctx, moveID)
		if err != nil {
			return err
		}
		if current.Type != MoveTypeEntry {
			return shared.Validationf("move_type", "only journal entries can be cancelled directly")
		}
		if current.State == MoveStateCancelled {
			return shared.Validationf("state", "move %d is already cancelled", current.ID)
		}
		if err := tx.UpdateMoveState(ctx, current.ID, MoveStateCancelled, nil); err != nil {
			return err
		}
		current.State = MoveStateCancelled
		current.PostedAt = nil
		move = current
		return nil
	})
	if err != nil {
		return Move{}, err
	}
	s.record(ctx, "move.cancel", move.ID, nil)
	return move, nil
}

// ReverseMove creates (and optionally posts) the mirror image of a posted
// journal entry.
func (s *Service) ReverseMove(ctx context.Context, input ReverseInput) (Move, error) {
	var reversal Move
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		reversal, err = ReverseMoveTx(ctx, tx, input, s.now())
		return err
	})
	if err != nil {
		return Move{}, err
	}
	s.record(ctx, "move.reverse", input.MoveID, map[string]any{
		"reversal_id": reversal.ID,
		"auto_post":   input.AutoPost,
	})
	return reversal, nil
}

// GetMove fetches a move with its lines.
func (s *Service) GetMove(ctx context.Context, moveID int64) (Move, error) {
	if moveID <= 0 {
		return Move{}, shared.Validationf("id", "invalid move ID")
	}
	return s.repo.GetMoveWithLines(ctx, moveID)
}

// ListMoves lists moves matching the filters.
func (s *Service) ListMoves(ctx context.Context, filters MoveFilters) ([]Move, int, error) {
	return s.repo.ListMoves(ctx, filters)
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
