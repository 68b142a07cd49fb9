package transfers_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/ledger/ledgertest"
	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
	"github.com/ledgerline/ledgerline/internal/transfers"
)

type periodLink struct {
	modelID   int64
	moveID    int64
	periodEnd time.Time
}

type memoryTransferStore struct {
	ledger *ledgertest.Store
	models map[int64]transfers.TransferModel
	lines  map[int64]transfers.ModelLine
	links  []periodLink
}

func newMemoryTransferStore() *memoryTransferStore {
	return &memoryTransferStore{
		ledger: ledgertest.NewStore(),
		models: make(map[int64]transfers.TransferModel),
		lines:  make(map[int64]transfers.ModelLine),
	}
}

// WithTx snapshots the transfer-side state so a failing callback rolls
// back, matching the real repository's transaction semantics.
func (s *memoryTransferStore) WithTx(ctx context.Context, fn func(context.Context, transfers.TxRepository) error) error {
	models := make(map[int64]transfers.TransferModel, len(s.models))
	for id, m := range s.models {
		models[id] = m
	}
	lines := make(map[int64]transfers.ModelLine, len(s.lines))
	for id, l := range s.lines {
		lines[id] = l
	}
	links := append([]periodLink(nil), s.links...)
	if err := fn(ctx, s); err != nil {
		s.models, s.lines, s.links = models, lines, links
		return err
	}
	return nil
}

func (s *memoryTransferStore) Ledger() ledger.TxRepository { return s.ledger }

func (s *memoryTransferStore) GetModelForUpdate(ctx context.Context, id int64) (transfers.TransferModel, error) {
	model, ok := s.models[id]
	if !ok {
		return transfers.TransferModel{}, transfers.ErrModelNotFound
	}
	return model, nil
}

func (s *memoryTransferStore) InsertModel(ctx context.Context, input transfers.ModelInput) (transfers.TransferModel, error) {
	model := transfers.TransferModel{
		ID:               s.ledger.NextID(),
		CompanyID:        input.CompanyID,
		JournalID:        input.JournalID,
		Name:             input.Name,
		Active:           true,
		DateStart:        input.DateStart,
		DateStop:         input.DateStop,
		Frequency:        input.Frequency,
		SourceAccountIDs: input.SourceAccountIDs,
		State:            transfers.ModelStateDisabled,
	}
	s.models[model.ID] = model
	return model, nil
}

func (s *memoryTransferStore) UpdateModel(ctx context.Context, id int64, input transfers.ModelInput) (transfers.TransferModel, error) {
	model, ok := s.models[id]
	if !ok {
		return transfers.TransferModel{}, transfers.ErrModelNotFound
	}
	model.JournalID = input.JournalID
	model.Name = input.Name
	model.DateStart = input.DateStart
	model.DateStop = input.DateStop
	model.Frequency = input.Frequency
	model.SourceAccountIDs = input.SourceAccountIDs
	s.models[id] = model
	return model, nil
}

func (s *memoryTransferStore) SetModelState(ctx context.Context, id int64, state transfers.ModelState) error {
	model, ok := s.models[id]
	if !ok {
		return transfers.ErrModelNotFound
	}
	model.State = state
	s.models[id] = model
	return nil
}

func (s *memoryTransferStore) SetTotalPercent(ctx context.Context, id int64, percent decimal.Decimal) error {
	model, ok := s.models[id]
	if !ok {
		return transfers.ErrModelNotFound
	}
	model.TotalPercent = percent
	s.models[id] = model
	return nil
}

func (s *memoryTransferStore) DeleteModel(ctx context.Context, id int64) error {
	delete(s.models, id)
	return nil
}

func (s *memoryTransferStore) ListModelLines(ctx context.Context, modelID int64) ([]transfers.ModelLine, error) {
	var out []transfers.ModelLine
	for _, line := range s.lines {
		if line.ModelID == modelID {
			out = append(out, line)
		}
	}
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j].Sequence < out[i].Sequence || (out[j].Sequence == out[i].Sequence && out[j].ID < out[i].ID) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *memoryTransferStore) GetModelLine(ctx context.Context, lineID int64) (transfers.ModelLine, error) {
	line, ok := s.lines[lineID]
	if !ok {
		return transfers.ModelLine{}, transfers.ErrLineNotFound
	}
	return line, nil
}

func (s *memoryTransferStore) InsertModelLine(ctx context.Context, modelID int64, input transfers.LineInput) (transfers.ModelLine, error) {
	line := transfers.ModelLine{
		ID:                 s.ledger.NextID(),
		ModelID:            modelID,
		AccountID:          input.AccountID,
		Percent:            input.Percent,
		PartnerIDs:         input.PartnerIDs,
		AnalyticAccountIDs: input.AnalyticAccountIDs,
		Sequence:           input.Sequence,
	}
	s.lines[line.ID] = line
	return line, nil
}

func (s *memoryTransferStore) UpdateModelLine(ctx context.Context, lineID int64, input transfers.LineInput) (transfers.ModelLine, error) {
	line, ok := s.lines[lineID]
	if !ok {
		return transfers.ModelLine{}, transfers.ErrLineNotFound
	}
	line.AccountID = input.AccountID
	line.Percent = input.Percent
	line.PartnerIDs = input.PartnerIDs
	line.AnalyticAccountIDs = input.AnalyticAccountIDs
	line.Sequence = input.Sequence
	s.lines[lineID] = line
	return line, nil
}

func (s *memoryTransferStore) DeleteModelLine(ctx context.Context, lineID int64) error {
	if _, ok := s.lines[lineID]; !ok {
		return transfers.ErrLineNotFound
	}
	delete(s.lines, lineID)
	return nil
}

func (s *memoryTransferStore) PostedSourceLines(ctx context.Context, filter transfers.SourceLineFilter) ([]transfers.SourceLine, error) {
	accounts := make(map[int64]bool, len(filter.AccountIDs))
	for _, id := range filter.AccountIDs {
		accounts[id] = true
	}
	excluded := make(map[int64]bool, len(filter.ExcludeLineIDs))
	for _, id := range filter.ExcludeLineIDs {
		excluded[id] = true
	}

	var out []transfers.SourceLine
	for moveID, move := range s.ledger.Moves {
		if move.State != ledger.MoveStatePosted || move.Date.Before(filter.Start) || move.Date.After(filter.End) {
			continue
		}
		for _, line := range s.ledger.Lines[moveID] {
			if !accounts[line.AccountID] || excluded[line.ID] {
				continue
			}
			if !matchesPartner(line, filter.PartnerIDs) || !matchesAnalytic(line, filter.AnalyticAccountIDs) {
				continue
			}
			if excludedPartner(line, filter.ExcludePartnerIDs) || excludedAnalytic(line, filter.ExcludeAnalyticAccountIDs) {
				continue
			}
			out = append(out, transfers.SourceLine{ID: line.ID, AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
		}
	}
	return out, nil
}

func matchesPartner(line ledger.MoveLine, ids []int64) bool {
	if len(ids) == 0 {
		return true
	}
	if line.PartnerID == nil {
		return false
	}
	for _, id := range ids {
		if *line.PartnerID == id {
			return true
		}
	}
	return false
}

func matchesAnalytic(line ledger.MoveLine, ids []int64) bool {
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if line.Analytic.Contains(id) {
			return true
		}
	}
	return false
}

func excludedPartner(line ledger.MoveLine, ids []int64) bool {
	if line.PartnerID == nil {
		return false
	}
	for _, id := range ids {
		if *line.PartnerID == id {
			return true
		}
	}
	return false
}

func excludedAnalytic(line ledger.MoveLine, ids []int64) bool {
	for _, id := range ids {
		if line.Analytic.Contains(id) {
			return true
		}
	}
	return false
}

func (s *memoryTransferStore) LastPostedPeriod(ctx context.Context, modelID int64) (*time.Time, error) {
	var last *time.Time
	for _, link := range s.links {
		if link.modelID != modelID {
			continue
		}
		if s.ledger.Moves[link.moveID].State != ledger.MoveStatePosted {
			continue
		}
		if last == nil || link.periodEnd.After(*last) {
			end := link.periodEnd
			last = &end
		}
	}
	return last, nil
}

func (s *memoryTransferStore) FindDraftPeriodMove(ctx context.Context, modelID int64, end time.Time) (int64, bool, error) {
	for _, link := range s.links {
		if link.modelID == modelID && link.periodEnd.Equal(end) && s.ledger.Moves[link.moveID].State == ledger.MoveStateDraft {
			return link.moveID, true, nil
		}
	}
	return 0, false, nil
}

func (s *memoryTransferStore) LinkPeriodMove(ctx context.Context, modelID, moveID int64, end time.Time) error {
	s.links = append(s.links, periodLink{modelID: modelID, moveID: moveID, periodEnd: end})
	return nil
}

func (s *memoryTransferStore) CountModelMoves(ctx context.Context, modelID int64, state ledger.MoveState) (int, error) {
	var n int
	for _, link := range s.links {
		if link.modelID == modelID && s.ledger.Moves[link.moveID].State == state {
			n++
		}
	}
	return n, nil
}

func (s *memoryTransferStore) GetModel(ctx context.Context, id int64) (transfers.TransferModel, error) {
	model, err := s.GetModelForUpdate(ctx, id)
	if err != nil {
		return transfers.TransferModel{}, err
	}
	model.Lines, _ = s.ListModelLines(ctx, id)
	return model, nil
}

func (s *memoryTransferStore) ListModels(ctx context.Context, filters transfers.ModelFilters) ([]transfers.TransferModel, int, error) {
	var out []transfers.TransferModel
	for _, model := range s.models {
		out = append(out, model)
	}
	return out, len(out), nil
}

func (s *memoryTransferStore) ListRunnableModels(ctx context.Context) ([]transfers.TransferModel, error) {
	var out []transfers.TransferModel
	for _, model := range s.models {
		if model.State == transfers.ModelStateInProgress && model.Active {
			out = append(out, model)
		}
	}
	return out, nil
}

type transferFixture struct {
	store   *memoryTransferStore
	service *transfers.Service

	company masterdata.Company
	journal masterdata.Journal
	source  masterdata.Account
	counter masterdata.Account
	destA   masterdata.Account
	destB   masterdata.Account
}

func newTransferFixture(t *testing.T) *transferFixture {
	t.Helper()
	store := newMemoryTransferStore()
	f := &transferFixture{store: store}
	f.company = store.ledger.SeedCompany(masterdata.Company{Code: "MAIN", Name: "Main Co", CurrencyID: 1})
	f.journal = store.ledger.SeedJournal(masterdata.Journal{CompanyID: f.company.ID, Code: "MISC", Name: "Miscellaneous", Type: masterdata.JournalTypeGeneral})
	f.source = store.ledger.SeedAccount(masterdata.Account{CompanyID: f.company.ID, Code: "600100", Name: "Rent expense", Type: masterdata.AccountTypeExpense})
	f.counter = store.ledger.SeedAccount(masterdata.Account{CompanyID: f.company.ID, Code: "101200", Name: "Bank", Type: masterdata.AccountTypeAsset})
	f.destA = store.ledger.SeedAccount(masterdata.Account{CompanyID: f.company.ID, Code: "600110", Name: "Rent HQ", Type: masterdata.AccountTypeExpense})
	f.destB = store.ledger.SeedAccount(masterdata.Account{CompanyID: f.company.ID, Code: "600120", Name: "Rent branch", Type: masterdata.AccountTypeExpense})
	f.service = transfers.NewService(store, nil)
	f.service.WithNow(func() time.Time { return time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC) })
	return f
}

func (f *transferFixture) newModel(t *testing.T, stop *time.Time) transfers.TransferModel {
	t.Helper()
	model, err := f.service.CreateModel(context.Background(), transfers.ModelInput{
		CompanyID:        f.company.ID,
		JournalID:        f.journal.ID,
		Name:             "Rent split",
		DateStart:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DateStop:         stop,
		Frequency:        transfers.FrequencyMonth,
		SourceAccountIDs: []int64{f.source.ID},
	})
	require.NoError(t, err)
	return model
}

func (f *transferFixture) addLine(t *testing.T, modelID int64, accountID int64, percent string, input transfers.LineInput) transfers.ModelLine {
	t.Helper()
	input.AccountID = accountID
	input.Percent = decimal.RequireFromString(percent)
	line, err := f.service.AddModelLine(context.Background(), modelID, input)
	require.NoError(t, err)
	return line
}

// postActivity books a posted expense move inside the given window so the
// sweep has something to pick up.
func (f *transferFixture) postActivity(t *testing.T, date time.Time, amount string, partnerID *int64) {
	t.Helper()
	ctx := context.Background()
	value := decimal.RequireFromString(amount)
	move, err := f.store.ledger.InsertMove(ctx, ledger.MoveInput{
		CompanyID: f.company.ID,
		JournalID: f.journal.ID,
		Type:      ledger.MoveTypeEntry,
		Date:      date,
		Reference: "rent " + date.Format("2006-01-02"),
	}, ledger.MoveStateDraft)
	require.NoError(t, err)
	_, err = f.store.ledger.InsertMoveLines(ctx, move.ID, []ledger.LineInput{
		{AccountID: f.source.ID, Debit: value, PartnerID: partnerID},
		{AccountID: f.counter.ID, Credit: value},
	})
	require.NoError(t, err)
	postedAt := date
	require.NoError(t, f.store.ledger.UpdateMoveState(ctx, move.ID, ledger.MoveStatePosted, &postedAt))
}

func TestPeriodSchedule(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	today := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	t.Run("open ended includes current partial period", func(t *testing.T) {
		model := transfers.TransferModel{DateStart: start, Frequency: transfers.FrequencyMonth}
		periods := transfers.PeriodSchedule(model, nil, today)
		require.Len(t, periods, 3)
		require.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), periods[0].End)
		require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), periods[1].End)
		require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), periods[2].Start)
		require.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), periods[2].End)
	})

	t.Run("resumes after last posted period", func(t *testing.T) {
		model := transfers.TransferModel{DateStart: start, Frequency: transfers.FrequencyMonth}
		lastPosted := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
		periods := transfers.PeriodSchedule(model, &lastPosted, today)
		require.Len(t, periods, 2)
		require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), periods[0].Start)
	})

	t.Run("elapsed stop date cuts the walk", func(t *testing.T) {
		stop := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
		model := transfers.TransferModel{DateStart: start, DateStop: &stop, Frequency: transfers.FrequencyMonth}
		periods := transfers.PeriodSchedule(model, nil, today)
		require.Len(t, periods, 2)
		require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), periods[1].End)
	})

	t.Run("future stop date clamps the final window", func(t *testing.T) {
		stop := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
		model := transfers.TransferModel{DateStart: start, DateStop: &stop, Frequency: transfers.FrequencyMonth}
		periods := transfers.PeriodSchedule(model, nil, today)
		require.Len(t, periods, 3)
		require.Equal(t, stop, periods[2].End)
	})

	t.Run("quarterly", func(t *testing.T) {
		model := transfers.TransferModel{DateStart: start, Frequency: transfers.FrequencyQuarter}
		periods := transfers.PeriodSchedule(model, nil, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
		require.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), periods[0].End)
		require.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), periods[1].End)
	})
}

func TestComputeTotalPercent(t *testing.T) {
	unfiltered := func(p string) transfers.ModelLine {
		return transfers.ModelLine{Percent: decimal.RequireFromString(p)}
	}
	filtered := transfers.ModelLine{Percent: decimal.RequireFromString("100"), PartnerIDs: []int64{7}}

	require.True(t, transfers.ComputeTotalPercent([]transfers.ModelLine{unfiltered("60"), unfiltered("40")}).Equal(decimal.NewFromInt(100)))
	require.True(t, transfers.ComputeTotalPercent([]transfers.ModelLine{unfiltered("30"), unfiltered("30")}).Equal(decimal.NewFromInt(60)))
	require.True(t, transfers.ComputeTotalPercent([]transfers.ModelLine{filtered}).Equal(decimal.NewFromInt(100)))
	require.True(t, transfers.ComputeTotalPercent([]transfers.ModelLine{unfiltered("99.9999995"), filtered}).Equal(decimal.NewFromInt(100)))
	require.True(t, transfers.ComputeTotalPercent(nil).IsZero())
}

func TestSplitAmount(t *testing.T) {
	lines := []transfers.ModelLine{
		{Percent: decimal.RequireFromString("33.33")},
		{Percent: decimal.RequireFromString("33.33")},
		{Percent: decimal.RequireFromString("33.34")},
	}
	amount := decimal.RequireFromString("100.01")

	amounts, left := transfers.SplitAmount(lines, decimal.NewFromInt(100), amount)
	require.True(t, left.IsZero())
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(a)
	}
	require.True(t, sum.Equal(amount), "split must sum to the full amount, got %s", sum)

	partial, left := transfers.SplitAmount(lines[:2], decimal.RequireFromString("66.66"), decimal.NewFromInt(100))
	require.True(t, left.Equal(decimal.RequireFromString("33.34")))
	require.True(t, partial[0].Equal(decimal.RequireFromString("33.33")))
}

func TestPerformAutoTransferDraftsPeriodMoves(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	model := f.newModel(t, nil)
	f.addLine(t, model.ID, f.destA.ID, "60", transfers.LineInput{Sequence: 1})
	f.addLine(t, model.ID, f.destB.ID, "40", transfers.LineInput{Sequence: 2})
	f.postActivity(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "1000", nil)

	stats, err := f.service.PerformAutoTransfer(ctx, model.ID)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Periods)
	require.Equal(t, 1, stats.MovesDrafted)

	require.Len(t, f.store.links, 1)
	move := f.store.ledger.Moves[f.store.links[0].moveID]
	require.Equal(t, ledger.MoveStateDraft, move.State)
	require.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), move.Date)
	require.Equal(t, "Rent split: 2024-01-01 --> 2024-01-31", move.Reference)

	lines := f.store.ledger.Lines[move.ID]
	require.Len(t, lines, 3)
	byAccount := map[int64]ledger.MoveLine{}
	for _, line := range lines {
		byAccount[line.AccountID] = line
	}
	require.True(t, byAccount[f.destA.ID].Debit.Equal(decimal.NewFromInt(600)))
	require.True(t, byAccount[f.destB.ID].Debit.Equal(decimal.NewFromInt(400)))
	require.True(t, byAccount[f.source.ID].Credit.Equal(decimal.NewFromInt(1000)))
}

func TestPerformAutoTransferIsIdempotentPerPeriod(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	model := f.newModel(t, nil)
	f.addLine(t, model.ID, f.destA.ID, "100", transfers.LineInput{})
	f.postActivity(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "1000", nil)

	_, err := f.service.PerformAutoTransfer(ctx, model.ID)
	require.NoError(t, err)
	require.Len(t, f.store.links, 1)
	moveID := f.store.links[0].moveID

	// More activity lands in the same period: the draft is rebuilt in
	// place, not duplicated.
	f.postActivity(t, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), "500", nil)
	_, err = f.service.PerformAutoTransfer(ctx, model.ID)
	require.NoError(t, err)
	require.Len(t, f.store.links, 1)
	require.Equal(t, moveID, f.store.links[0].moveID)

	lines := f.store.ledger.Lines[moveID]
	require.Len(t, lines, 2)
	require.True(t, lines[0].Debit.Equal(decimal.NewFromInt(1500)))

	// Posting the period's move freezes it; the next run starts after it.
	postedAt := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.ledger.UpdateMoveState(ctx, moveID, ledger.MoveStatePosted, &postedAt))
	f.postActivity(t, time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC), "999", nil)

	stats, err := f.service.PerformAutoTransfer(ctx, model.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Periods)
	require.Len(t, f.store.ledger.Lines[moveID], 2)
}

func TestFilteredLinesClaimTheirSlice(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	partner := int64(77)
	model := f.newModel(t, nil)
	f.addLine(t, model.ID, f.destA.ID, "100", transfers.LineInput{PartnerIDs: []int64{partner}, Sequence: 1})
	f.addLine(t, model.ID, f.destB.ID, "100", transfers.LineInput{Sequence: 2})

	f.postActivity(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), "300", &partner)
	f.postActivity(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC), "700", nil)

	_, err := f.service.PerformAutoTransfer(ctx, model.ID)
	require.NoError(t, err)
	require.Len(t, f.store.links, 1)

	lines := f.store.ledger.Lines[f.store.links[0].moveID]
	require.Len(t, lines, 4)

	debits := map[int64]decimal.Decimal{}
	credits := decimal.Zero
	for _, line := range lines {
		if line.Debit.IsPositive() {
			debits[line.AccountID] = debits[line.AccountID].Add(line.Debit)
		}
		credits = credits.Add(line.Credit)
	}
	// The partner slice goes to destA in full, the remainder to destB,
	// and the source account is cleared for the sum.
	require.True(t, debits[f.destA.ID].Equal(decimal.NewFromInt(300)))
	require.True(t, debits[f.destB.ID].Equal(decimal.NewFromInt(700)))
	require.True(t, credits.Equal(decimal.NewFromInt(1000)))
}

func TestLineRebalanceEnforcesTotalPercent(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	model := f.newModel(t, nil)
	f.addLine(t, model.ID, f.destA.ID, "60", transfers.LineInput{})

	_, err := f.service.AddModelLine(ctx, model.ID, transfers.LineInput{
		AccountID: f.destB.ID,
		Percent:   decimal.RequireFromString("50"),
	})
	require.True(t, shared.IsValidation(err))

	_, err = f.service.AddModelLine(ctx, model.ID, transfers.LineInput{
		AccountID: f.destB.ID,
		Percent:   decimal.RequireFromString("0"),
	})
	require.True(t, shared.IsValidation(err))

	// A filtered line is forced to 100% of its slice and does not count
	// toward the unfiltered total.
	line, err := f.service.AddModelLine(ctx, model.ID, transfers.LineInput{
		AccountID:  f.destB.ID,
		Percent:    decimal.RequireFromString("25"),
		PartnerIDs: []int64{5},
	})
	require.NoError(t, err)
	require.True(t, line.Percent.Equal(decimal.NewFromInt(100)))
	require.True(t, f.store.models[model.ID].TotalPercent.Equal(decimal.NewFromInt(60)))

	// Two lines claiming the same partner slice would double-allocate.
	_, err = f.service.AddModelLine(ctx, model.ID, transfers.LineInput{
		AccountID:  f.destA.ID,
		Percent:    decimal.RequireFromString("100"),
		PartnerIDs: []int64{5},
	})
	require.True(t, shared.IsValidation(err))
}

func TestDeleteModelBlockedByMoves(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()
	model := f.newModel(t, nil)
	f.addLine(t, model.ID, f.destA.ID, "100", transfers.LineInput{})
	f.postActivity(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), "100", nil)

	_, err := f.service.PerformAutoTransfer(ctx, model.ID)
	require.NoError(t, err)

	err = f.service.DeleteModel(ctx, model.ID)
	require.True(t, shared.IsValidation(err))
}

func TestRunAllModels(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	first := f.newModel(t, nil)
	f.addLine(t, first.ID, f.destA.ID, "100", transfers.LineInput{})
	second, err := f.service.CreateModel(ctx, transfers.ModelInput{
		CompanyID:        f.company.ID,
		JournalID:        f.journal.ID,
		Name:             "Overhead split",
		DateStart:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Frequency:        transfers.FrequencyMonth,
		SourceAccountIDs: []int64{f.counter.ID},
	})
	require.NoError(t, err)
	f.addLine(t, second.ID, f.destB.ID, "100", transfers.LineInput{})

	_, err = f.service.ActivateModel(ctx, first.ID)
	require.NoError(t, err)
	_, err = f.service.ActivateModel(ctx, second.ID)
	require.NoError(t, err)

	stats, err := f.service.RunAllModels(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	for i, st := range stats {
		require.Equal(t, 2, st.Periods, fmt.Sprintf("model %d", i))
	}
}

func TestCreateModelValidation(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	base := transfers.ModelInput{
		CompanyID:        f.company.ID,
		JournalID:        f.journal.ID,
		Name:             "Split",
		DateStart:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Frequency:        transfers.FrequencyMonth,
		SourceAccountIDs: []int64{f.source.ID},
	}

	bad := base
	bad.Frequency = "weekly"
	_, err := f.service.CreateModel(ctx, bad)
	require.True(t, shared.IsValidation(err))

	bad = base
	stop := base.DateStart.AddDate(0, 0, -1)
	bad.DateStop = &stop
	_, err = f.service.CreateModel(ctx, bad)
	require.True(t, shared.IsValidation(err))

	other := f.store.ledger.SeedCompany(masterdata.Company{Code: "OTH", Name: "Other Co", CurrencyID: 1})
	foreign := f.store.ledger.SeedAccount(masterdata.Account{CompanyID: other.ID, Code: "600100", Name: "Rent", Type: masterdata.AccountTypeExpense})
	bad = base
	bad.SourceAccountIDs = []int64{foreign.ID}
	_, err = f.service.CreateModel(ctx, bad)
	require.True(t, shared.IsValidation(err))
}
