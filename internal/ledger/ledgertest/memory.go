// Package ledgertest provides an in-memory posting store for service tests.
package ledgertest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Store keeps moves, lines, and the master data they reference in maps. It
// implements both ledger.TxRepository and ledger.RepositoryPort so services
// under test run their transactional flows unchanged.
type Store struct {
	Companies map[int64]masterdata.Company
	Journals  map[int64]masterdata.Journal
	Accounts  map[int64]masterdata.Account
	Moves     map[int64]ledger.Move
	Lines     map[int64][]ledger.MoveLine
	Links     map[string]int64

	nextID int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		Companies: make(map[int64]masterdata.Company),
		Journals:  make(map[int64]masterdata.Journal),
		Accounts:  make(map[int64]masterdata.Account),
		Moves:     make(map[int64]ledger.Move),
		Lines:     make(map[int64][]ledger.MoveLine),
		Links:     make(map[string]int64),
	}
}

// NextID hands out sequential IDs across all entity kinds.
func (s *Store) NextID() int64 {
	s.nextID++
	return s.nextID
}

// SeedCompany stores a company, assigning an ID when absent.
func (s *Store) SeedCompany(c masterdata.Company) masterdata.Company {
	if c.ID == 0 {
		c.ID = s.NextID()
	}
	s.Companies[c.ID] = c
	return c
}

// SeedJournal stores a journal, assigning an ID when absent.
func (s *Store) SeedJournal(j masterdata.Journal) masterdata.Journal {
	if j.ID == 0 {
		j.ID = s.NextID()
	}
	s.Journals[j.ID] = j
	return j
}

// SeedAccount stores an account, assigning an ID when absent.
func (s *Store) SeedAccount(a masterdata.Account) masterdata.Account {
	if a.ID == 0 {
		a.ID = s.NextID()
	}
	s.Accounts[a.ID] = a
	return a
}

// WithTx satisfies ledger.RepositoryPort. The fake has no rollback; engine
// code validates before mutating, which the tests rely on.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, ledger.TxRepository) error) error {
	return fn(ctx, s)
}

func (s *Store) GetMoveForUpdate(ctx context.Context, id int64) (ledger.Move, error) {
	move, ok := s.Moves[id]
	if !ok {
		return ledger.Move{}, ledger.ErrMoveNotFound
	}
	return move, nil
}

func (s *Store) GetMoveLines(ctx context.Context, moveID int64) ([]ledger.MoveLine, error) {
	return append([]ledger.MoveLine(nil), s.Lines[moveID]...), nil
}

func (s *Store) GetJournal(ctx context.Context, id int64) (masterdata.Journal, error) {
	journal, ok := s.Journals[id]
	if !ok {
		return masterdata.Journal{}, shared.Validationf("journal_id", "journal %d does not exist", id)
	}
	return journal, nil
}

func (s *Store) GetCompany(ctx context.Context, id int64) (masterdata.Company, error) {
	company, ok := s.Companies[id]
	if !ok {
		return masterdata.Company{}, shared.Validationf("company_id", "company %d does not exist", id)
	}
	return company, nil
}

func (s *Store) GetAccount(ctx context.Context, id int64) (masterdata.Account, error) {
	account, ok := s.Accounts[id]
	if !ok {
		return masterdata.Account{}, shared.Validationf("account_id", "account %d does not exist", id)
	}
	return account, nil
}

func (s *Store) InsertMove(ctx context.Context, input ledger.MoveInput, state ledger.MoveState) (ledger.Move, error) {
	move := ledger.Move{
		ID:              s.NextID(),
		CompanyID:       input.CompanyID,
		JournalID:       input.JournalID,
		Type:            input.Type,
		State:           state,
		Date:            input.Date,
		Reference:       input.Reference,
		PartnerID:       input.PartnerID,
		CurrencyID:      input.CurrencyID,
		IsDebitNote:     input.IsDebitNote,
		ReversedEntryID: input.ReversedEntryID,
		DebitOriginID:   input.DebitOriginID,
		SourceModule:    input.SourceModule,
		SourceID:        input.SourceID,
	}
	s.Moves[move.ID] = move
	return move, nil
}

func (s *Store) InsertMoveLines(ctx context.Context, moveID int64, lines []ledger.LineInput) ([]ledger.MoveLine, error) {
	var out []ledger.MoveLine
	for _, line := range lines {
		inserted := ledger.MoveLine{
			ID:             s.NextID(),
			MoveID:         moveID,
			AccountID:      line.AccountID,
			PartnerID:      line.PartnerID,
			Name:           line.Name,
			Debit:          shared.Round6(line.Debit),
			Credit:         shared.Round6(line.Credit),
			CurrencyID:     line.CurrencyID,
			AmountCurrency: shared.Round6(line.AmountCurrency),
			Analytic:       line.Analytic,
		}
		s.Lines[moveID] = append(s.Lines[moveID], inserted)
		out = append(out, inserted)
	}
	return out, nil
}

func (s *Store) DeleteMoveLines(ctx context.Context, moveID int64) error {
	delete(s.Lines, moveID)
	return nil
}

func (s *Store) UpdateMoveState(ctx context.Context, moveID int64, state ledger.MoveState, postedAt *time.Time) error {
	move, ok := s.Moves[moveID]
	if !ok {
		return ledger.ErrMoveNotFound
	}
	move.State = state
	move.PostedAt = postedAt
	s.Moves[moveID] = move
	return nil
}

func (s *Store) LinkSource(ctx context.Context, module string, ref uuid.UUID, moveID int64) error {
	key := module + "/" + ref.String()
	if _, exists := s.Links[key]; exists {
		return shared.NewConflictError("source_link", "source already linked to a move", nil)
	}
	s.Links[key] = moveID
	return nil
}

func (s *Store) GetMoveWithLines(ctx context.Context, id int64) (ledger.Move, error) {
	move, ok := s.Moves[id]
	if !ok {
		return ledger.Move{}, ledger.ErrMoveNotFound
	}
	move.Lines = append([]ledger.MoveLine(nil), s.Lines[id]...)
	return move, nil
}

func (s *Store) ListMoves(ctx context.Context, filters ledger.MoveFilters) ([]ledger.Move, int, error) {
	var out []ledger.Move
	for _, move := range s.Moves {
		if filters.CompanyID != nil && move.CompanyID != *filters.CompanyID {
			continue
		}
		if filters.JournalID != nil && move.JournalID != *filters.JournalID {
			continue
		}
		if filters.State != nil && move.State != *filters.State {
			continue
		}
		if filters.Type != nil && move.Type != *filters.Type {
			continue
		}
		out = append(out, move)
	}
	return out, len(out), nil
}
