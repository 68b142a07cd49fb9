package assets_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/assets"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/ledger/ledgertest"
	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryAssetStore struct {
	ledger *ledgertest.Store
	assets map[int64]assets.Asset
	lines  map[int64]assets.DepreciationLine
}

func newMemoryAssetStore() *memoryAssetStore {
	return &memoryAssetStore{
		ledger: ledgertest.NewStore(),
		assets: make(map[int64]assets.Asset),
		lines:  make(map[int64]assets.DepreciationLine),
	}
}

func (s *memoryAssetStore) WithTx(ctx context.Context, fn func(context.Context, assets.TxRepository) error) error {
	return fn(ctx, s)
}

func (s *memoryAssetStore) Ledger() ledger.TxRepository { return s.ledger }

func (s *memoryAssetStore) GetAssetForUpdate(ctx context.Context, id int64) (assets.Asset, error) {
	asset, ok := s.assets[id]
	if !ok {
		return assets.Asset{}, assets.ErrAssetNotFound
	}
	return asset, nil
}

func (s *memoryAssetStore) InsertAsset(ctx context.Context, input assets.AssetInput) (assets.Asset, error) {
	asset := assets.Asset{
		ID:                    s.ledger.NextID(),
		CompanyID:             input.CompanyID,
		Name:                  input.Name,
		Code:                  input.Code,
		PartnerID:             input.PartnerID,
		CurrencyID:            input.CurrencyID,
		AssetAccountID:        input.AssetAccountID,
		DepreciationAccountID: input.DepreciationAccountID,
		ExpenseAccountID:      input.ExpenseAccountID,
		JournalID:             input.JournalID,
		AcquisitionDate:       input.AcquisitionDate,
		FirstDepreciationDate: input.FirstDepreciationDate,
		OriginalValue:         input.OriginalValue,
		SalvageValue:          input.SalvageValue,
		Method:                input.Method,
		MethodNumber:          input.MethodNumber,
		MethodPeriod:          input.MethodPeriod,
		Prorata:               input.Prorata,
		State:                 assets.AssetStateDraft,
		Note:                  input.Note,
	}
	s.assets[asset.ID] = asset
	return asset, nil
}

func (s *memoryAssetStore) UpdateAsset(ctx context.Context, id int64, input assets.AssetInput) (assets.Asset, error) {
	asset, ok := s.assets[id]
	if !ok {
		return assets.Asset{}, assets.ErrAssetNotFound
	}
	asset.Name = input.Name
	asset.OriginalValue = input.OriginalValue
	asset.SalvageValue = input.SalvageValue
	asset.Method = input.Method
	asset.MethodNumber = input.MethodNumber
	asset.MethodPeriod = input.MethodPeriod
	asset.JournalID = input.JournalID
	asset.DepreciationAccountID = input.DepreciationAccountID
	asset.ExpenseAccountID = input.ExpenseAccountID
	s.assets[id] = asset
	return asset, nil
}

func (s *memoryAssetStore) UpdateAssetState(ctx context.Context, id int64, state assets.AssetState) error {
	asset, ok := s.assets[id]
	if !ok {
		return assets.ErrAssetNotFound
	}
	asset.State = state
	s.assets[id] = asset
	return nil
}

func (s *memoryAssetStore) ListDepreciationLines(ctx context.Context, assetID int64) ([]assets.DepreciationLine, error) {
	var out []assets.DepreciationLine
	for _, line := range s.lines {
		if line.AssetID == assetID {
			out = append(out, line)
		}
	}
	return out, nil
}

func (s *memoryAssetStore) GetDepreciationLineForUpdate(ctx context.Context, id int64) (assets.DepreciationLine, error) {
	line, ok := s.lines[id]
	if !ok {
		return assets.DepreciationLine{}, assets.ErrLineNotFound
	}
	return line, nil
}

func (s *memoryAssetStore) DeleteDraftLines(ctx context.Context, assetID int64) (int, error) {
	deleted := 0
	for id, line := range s.lines {
		if line.AssetID == assetID && line.State == assets.LineStateDraft {
			delete(s.lines, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memoryAssetStore) InsertDepreciationLines(ctx context.Context, assetID int64, board []assets.ScheduleLine) (int, error) {
	for _, row := range board {
		line := assets.DepreciationLine{
			ID:               s.ledger.NextID(),
			AssetID:          assetID,
			Sequence:         row.Sequence,
			Date:             row.Date,
			Amount:           row.Amount,
			DepreciatedValue: row.DepreciatedValue,
			ResidualValue:    row.ResidualValue,
			State:            assets.LineStateDraft,
		}
		s.lines[line.ID] = line
	}
	return len(board), nil
}

func (s *memoryAssetStore) MarkLinePosted(ctx context.Context, lineID, moveID int64) error {
	line, ok := s.lines[lineID]
	if !ok {
		return assets.ErrLineNotFound
	}
	line.MoveID = &moveID
	line.State = assets.LineStatePosted
	s.lines[lineID] = line
	return nil
}

func (s *memoryAssetStore) GetAsset(ctx context.Context, id int64) (assets.Asset, []assets.DepreciationLine, error) {
	asset, ok := s.assets[id]
	if !ok {
		return assets.Asset{}, nil, assets.ErrAssetNotFound
	}
	lines, _ := s.ListDepreciationLines(ctx, id)
	return asset, lines, nil
}

func (s *memoryAssetStore) ListAssets(ctx context.Context, filters assets.AssetFilters) ([]assets.Asset, int, error) {
	var out []assets.Asset
	for _, asset := range s.assets {
		out = append(out, asset)
	}
	return out, len(out), nil
}

type assetFixture struct {
	store   *memoryAssetStore
	service *assets.Service

	company     masterdata.Company
	journal     masterdata.Journal
	assetAcct   masterdata.Account
	accumulated masterdata.Account
	expense     masterdata.Account
}

func newAssetFixture(t *testing.T) *assetFixture {
	t.Helper()
	store := newMemoryAssetStore()
	f := &assetFixture{store: store}
	f.company = store.ledger.SeedCompany(masterdata.Company{Code: "MAIN", Name: "Main Co", CurrencyID: 1})
	f.journal = store.ledger.SeedJournal(masterdata.Journal{CompanyID: f.company.ID, Code: "MISC", Name: "Miscellaneous", Type: masterdata.JournalTypeGeneral})
	f.assetAcct = store.ledger.SeedAccount(masterdata.Account{CompanyID: f.company.ID, Code: "211000", Name: "Equipment", Type: masterdata.AccountTypeAsset})
	f.accumulated = store.ledger.SeedAccount(masterdata.Account{CompanyID: f.company.ID, Code: "281000", Name: "Accumulated Depreciation", Type: masterdata.AccountTypeAsset})
	f.expense = store.ledger.SeedAccount(masterdata.Account{CompanyID: f.company.ID, Code: "681000", Name: "Depreciation Expense", Type: masterdata.AccountTypeExpense})
	f.service = assets.NewService(store, nil)
	f.service.WithNow(func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) })
	return f
}

func (f *assetFixture) input() assets.AssetInput {
	return assets.AssetInput{
		CompanyID:             f.company.ID,
		Name:                  "Server rack",
		AssetAccountID:        f.assetAcct.ID,
		DepreciationAccountID: &f.accumulated.ID,
		ExpenseAccountID:      &f.expense.ID,
		JournalID:             &f.journal.ID,
		AcquisitionDate:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		OriginalValue:         decimal.NewFromInt(12000),
		SalvageValue:          decimal.Zero,
		Method:                assets.MethodLinear,
		MethodNumber:          12,
		MethodPeriod:          1,
	}
}

func TestComputeDepreciationBoardLinear(t *testing.T) {
	asset := assets.Asset{
		OriginalValue:   decimal.NewFromInt(12000),
		SalvageValue:    decimal.Zero,
		Method:          assets.MethodLinear,
		MethodNumber:    12,
		MethodPeriod:    1,
		AcquisitionDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	board, err := assets.ComputeDepreciationBoard(asset)
	require.NoError(t, err)
	require.Len(t, board, 12)

	thousand := decimal.NewFromInt(1000)
	total := decimal.Zero
	for i, line := range board {
		require.True(t, line.Amount.Equal(thousand), "installment %d is %s", i+1, line.Amount)
		require.Equal(t, i+1, line.Sequence)
		require.Equal(t, time.Date(2024, time.Month(1+i), 1, 0, 0, 0, 0, time.UTC), line.Date)
		total = total.Add(line.Amount)
	}
	require.True(t, total.Equal(decimal.NewFromInt(12000)))
	require.True(t, board[11].ResidualValue.IsZero())
}

func TestComputeDepreciationBoardSumsExactly(t *testing.T) {
	// Awkward base that does not divide evenly; the last installment
	// must absorb the rounding drift for any period count.
	for _, periods := range []int{1, 3, 5, 12} {
		asset := assets.Asset{
			OriginalValue:   decimal.RequireFromString("10000.01"),
			SalvageValue:    decimal.RequireFromString("0.01"),
			Method:          assets.MethodLinear,
			MethodNumber:    periods,
			MethodPeriod:    12,
			AcquisitionDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		board, err := assets.ComputeDepreciationBoard(asset)
		require.NoError(t, err)
		require.Len(t, board, periods)
		total := decimal.Zero
		for _, line := range board {
			total = total.Add(line.Amount)
		}
		require.True(t, total.Equal(decimal.NewFromInt(10000)), "%d periods sum to %s", periods, total)
		require.True(t, board[periods-1].ResidualValue.IsZero())
	}
}

func TestComputeDepreciationBoardDegressive(t *testing.T) {
	asset := assets.Asset{
		OriginalValue:   decimal.NewFromInt(10000),
		SalvageValue:    decimal.Zero,
		Method:          assets.MethodDegressive,
		MethodNumber:    4,
		MethodPeriod:    12,
		AcquisitionDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	board, err := assets.ComputeDepreciationBoard(asset)
	require.NoError(t, err)
	require.Len(t, board, 4)

	// rate = 2/4 = 0.5: 5000, 2500, 1250, then the remainder 1250.
	require.True(t, board[0].Amount.Equal(decimal.NewFromInt(5000)))
	require.True(t, board[1].Amount.Equal(decimal.NewFromInt(2500)))
	require.True(t, board[2].Amount.Equal(decimal.NewFromInt(1250)))
	require.True(t, board[3].Amount.Equal(decimal.NewFromInt(1250)))
	require.True(t, board[3].ResidualValue.IsZero())

	total := decimal.Zero
	for _, line := range board {
		total = total.Add(line.Amount)
	}
	require.True(t, total.Equal(decimal.NewFromInt(10000)))
}

func TestComputeDepreciationBoardRejectsBadConfig(t *testing.T) {
	base := assets.Asset{
		OriginalValue:   decimal.NewFromInt(1000),
		SalvageValue:    decimal.NewFromInt(1000),
		Method:          assets.MethodLinear,
		MethodNumber:    5,
		MethodPeriod:    12,
		AcquisitionDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	_, err := assets.ComputeDepreciationBoard(base)
	require.True(t, shared.IsValidation(err))

	base.SalvageValue = decimal.Zero
	base.MethodNumber = 0
	_, err = assets.ComputeDepreciationBoard(base)
	require.True(t, shared.IsValidation(err))

	base.MethodNumber = 5
	base.Method = "sum_of_digits"
	_, err = assets.ComputeDepreciationBoard(base)
	require.True(t, shared.IsValidation(err))
}

func TestGenerateDepreciationLines(t *testing.T) {
	f := newAssetFixture(t)
	ctx := context.Background()
	asset, err := f.service.CreateAsset(ctx, f.input())
	require.NoError(t, err)

	stats, err := f.service.GenerateDepreciationLines(ctx, asset.ID)
	require.NoError(t, err)
	require.Equal(t, 12, stats.Created)
	require.Equal(t, 0, stats.Deleted)
	require.True(t, stats.TotalDepreciation.Equal(decimal.NewFromInt(12000)))

	// Re-running replaces the draft schedule.
	stats, err = f.service.GenerateDepreciationLines(ctx, asset.ID)
	require.NoError(t, err)
	require.Equal(t, 12, stats.Created)
	require.Equal(t, 12, stats.Deleted)

	lines, err := f.store.ListDepreciationLines(ctx, asset.ID)
	require.NoError(t, err)
	require.Len(t, lines, 12)
}

func TestGenerateBlockedByPostedLine(t *testing.T) {
	f := newAssetFixture(t)
	ctx := context.Background()
	asset, err := f.service.CreateAsset(ctx, f.input())
	require.NoError(t, err)
	_, err = f.service.GenerateDepreciationLines(ctx, asset.ID)
	require.NoError(t, err)

	lines, _ := f.store.ListDepreciationLines(ctx, asset.ID)
	_, err = f.service.PostDepreciationLine(ctx, asset.ID, lines[0].ID)
	require.NoError(t, err)

	_, err = f.service.GenerateDepreciationLines(ctx, asset.ID)
	require.True(t, shared.IsValidation(err))
}

func TestPostDepreciationLine(t *testing.T) {
	f := newAssetFixture(t)
	ctx := context.Background()
	asset, err := f.service.CreateAsset(ctx, f.input())
	require.NoError(t, err)
	_, err = f.service.GenerateDepreciationLines(ctx, asset.ID)
	require.NoError(t, err)

	lines, _ := f.store.ListDepreciationLines(ctx, asset.ID)
	var first assets.DepreciationLine
	for _, line := range lines {
		if line.Sequence == 1 {
			first = line
		}
	}
	require.NotZero(t, first.ID)

	stats, err := f.service.PostDepreciationLine(ctx, asset.ID, first.ID)
	require.NoError(t, err)
	require.Equal(t, assets.LineStatePosted, stats.State)
	require.True(t, stats.Amount.Equal(decimal.NewFromInt(1000)))

	move := f.store.ledger.Moves[stats.MoveID]
	require.Equal(t, ledger.MoveStatePosted, move.State)
	require.Equal(t, ledger.MoveTypeEntry, move.Type)

	moveLines := f.store.ledger.Lines[stats.MoveID]
	require.Len(t, moveLines, 2)
	byAccount := map[int64]ledger.MoveLine{}
	for _, line := range moveLines {
		byAccount[line.AccountID] = line
	}
	require.True(t, byAccount[f.expense.ID].Debit.Equal(decimal.NewFromInt(1000)))
	require.True(t, byAccount[f.accumulated.ID].Credit.Equal(decimal.NewFromInt(1000)))

	// One-way: posting again fails.
	_, err = f.service.PostDepreciationLine(ctx, asset.ID, first.ID)
	require.True(t, shared.IsValidation(err))
}

func TestPostDepreciationLineRequiresConfig(t *testing.T) {
	f := newAssetFixture(t)
	ctx := context.Background()
	input := f.input()
	input.JournalID = nil
	asset, err := f.service.CreateAsset(ctx, input)
	require.NoError(t, err)
	_, err = f.service.GenerateDepreciationLines(ctx, asset.ID)
	require.NoError(t, err)

	lines, _ := f.store.ListDepreciationLines(ctx, asset.ID)
	_, err = f.service.PostDepreciationLine(ctx, asset.ID, lines[0].ID)
	require.True(t, shared.IsValidation(err))
}

func TestAssetLifecycle(t *testing.T) {
	f := newAssetFixture(t)
	ctx := context.Background()
	asset, err := f.service.CreateAsset(ctx, f.input())
	require.NoError(t, err)

	_, err = f.service.Pause(ctx, asset.ID)
	require.True(t, shared.IsValidation(err))

	running, err := f.service.SetRunning(ctx, asset.ID)
	require.NoError(t, err)
	require.Equal(t, assets.AssetStateRunning, running.State)

	_, err = f.service.Cancel(ctx, asset.ID)
	require.True(t, shared.IsValidation(err))

	paused, err := f.service.Pause(ctx, asset.ID)
	require.NoError(t, err)
	require.Equal(t, assets.AssetStatePaused, paused.State)

	resumed, err := f.service.Resume(ctx, asset.ID)
	require.NoError(t, err)
	require.Equal(t, assets.AssetStateRunning, resumed.State)

	closed, err := f.service.Close(ctx, asset.ID)
	require.NoError(t, err)
	require.Equal(t, assets.AssetStateClosed, closed.State)

	_, err = f.service.Cancel(ctx, asset.ID)
	require.True(t, shared.IsValidation(err))
}

func TestCloseBlockedByDraftLines(t *testing.T) {
	f := newAssetFixture(t)
	ctx := context.Background()
	asset, err := f.service.CreateAsset(ctx, f.input())
	require.NoError(t, err)
	_, err = f.service.GenerateDepreciationLines(ctx, asset.ID)
	require.NoError(t, err)
	_, err = f.service.SetRunning(ctx, asset.ID)
	require.NoError(t, err)

	_, err = f.service.Close(ctx, asset.ID)
	require.True(t, shared.IsValidation(err))
}

func TestCancelFromPaused(t *testing.T) {
	f := newAssetFixture(t)
	ctx := context.Background()
	asset, err := f.service.CreateAsset(ctx, f.input())
	require.NoError(t, err)
	_, err = f.service.SetRunning(ctx, asset.ID)
	require.NoError(t, err)
	_, err = f.service.Pause(ctx, asset.ID)
	require.NoError(t, err)

	cancelled, err := f.service.Cancel(ctx, asset.ID)
	require.NoError(t, err)
	require.Equal(t, assets.AssetStateCancelled, cancelled.State)

	_, err = f.service.GenerateDepreciationLines(ctx, asset.ID)
	require.True(t, shared.IsValidation(err))
}

func TestCreateAssetValidation(t *testing.T) {
	f := newAssetFixture(t)
	ctx := context.Background()

	bad := f.input()
	bad.SalvageValue = decimal.NewFromInt(12000)
	_, err := f.service.CreateAsset(ctx, bad)
	require.True(t, shared.IsValidation(err))

	other := f.store.ledger.SeedCompany(masterdata.Company{Code: "OTHER", Name: "Other Co", CurrencyID: 1})
	foreign := f.store.ledger.SeedAccount(masterdata.Account{CompanyID: other.ID, Code: "211000", Name: "Equipment", Type: masterdata.AccountTypeAsset})
	bad = f.input()
	bad.AssetAccountID = foreign.ID
	_, err = f.service.CreateAsset(ctx, bad)
	require.True(t, shared.IsValidation(err))
}
