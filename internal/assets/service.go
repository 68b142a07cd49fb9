package assets

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// TxRepository is the transactional surface of the asset store. Ledger()
// returns the posting engine bound to the same transaction.
type TxRepository interface {
	Ledger() ledger.TxRepository
	GetAssetForUpdate(ctx context.Context, id int64) (Asset, error)
	InsertAsset(ctx context.Context, input AssetInput) (Asset, error)
	UpdateAsset(ctx context.Context, id int64, input AssetInput) (Asset, error)
	UpdateAssetState(ctx context.Context, id int64, state AssetState) error
	ListDepreciationLines(ctx context.Context, assetID int64) ([]DepreciationLine, error)
	GetDepreciationLineForUpdate(ctx context.Context, id int64) (DepreciationLine, error)
	DeleteDraftLines(ctx context.Context, assetID int64) (int, error)
	InsertDepreciationLines(ctx context.Context, assetID int64, board []ScheduleLine) (int, error)
	MarkLinePosted(ctx context.Context, lineID, moveID int64) error
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAsset(ctx context.Context, id int64) (Asset, []DepreciationLine, error)
	ListAssets(ctx context.Context, filters AssetFilters) ([]Asset, int, error)
}

// AuditPort records asset events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AssetFilters narrows asset listings.
type AssetFilters struct {
	CompanyID *int64
	State     *AssetState
	Page      int
	Limit     int
}

// Service owns the asset lifecycle, the depreciation board, and the
// installment postings.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the asset service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateAsset persists a new draft asset.
func (s *Service) CreateAsset(ctx context.Context, input AssetInput) (Asset, error) {
	var asset Asset
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.validateInput(ctx, tx, input); err != nil {
			return err
		}
		var err error
		asset, err = tx.InsertAsset(ctx, input)
		return err
	})
	return asset, err
}

// UpdateAsset rewrites a draft asset's configuration.
func (s *Service) UpdateAsset(ctx context.Context, id int64, input AssetInput) (Asset, error) {
	var asset Asset
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetAssetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.State != AssetStateDraft {
			return shared.Validationf("state", "only draft assets can be edited, asset %d is %s", id, existing.State)
		}
		if err := s.validateInput(ctx, tx, input); err != nil {
			return err
		}
		asset, err = tx.UpdateAsset(ctx, id, input)
		return err
	})
	return asset, err
}

func (s *Service) validateInput(ctx context.Context, tx TxRepository, input AssetInput) error {
	if input.Name == "" {
		return shared.Validationf("name", "name is required")
	}
	if input.OriginalValue.Sign() <= 0 {
		return shared.Validationf("original_value", "original value must be positive")
	}
	if input.SalvageValue.Sign() < 0 {
		return shared.Validationf("salvage_value", "salvage value cannot be negative")
	}
	if input.SalvageValue.GreaterThanOrEqual(input.OriginalValue) {
		return shared.Validationf("salvage_value", "salvage value must be lower than original value")
	}
	if !input.Method.Valid() {
		return shared.Validationf("method", "unknown depreciation method %q", input.Method)
	}
	if input.MethodNumber <= 0 {
		return shared.Validationf("method_number", "method number must be greater than zero")
	}
	if input.MethodPeriod <= 0 {
		return shared.Validationf("method_period", "method period must be greater than zero")
	}
	if input.AcquisitionDate.IsZero() {
		return shared.Validationf("acquisition_date", "acquisition date is required")
	}
	if input.FirstDepreciationDate != nil && input.FirstDepreciationDate.Before(input.AcquisitionDate) {
		return shared.Validationf("first_depreciation_date", "first depreciation date cannot be before acquisition date")
	}

	lg := tx.Ledger()
	if _, err := lg.GetCompany(ctx, input.CompanyID); err != nil {
		return err
	}
	accounts := []struct {
		field string
		id    *int64
	}{
		{"asset_account_id", &input.AssetAccountID},
		{"depreciation_account_id", input.DepreciationAccountID},
		{"expense_account_id", input.ExpenseAccountID},
	}
	for _, ref := range accounts {
		if ref.id == nil {
			continue
		}
		account, err := lg.GetAccount(ctx, *ref.id)
		if err != nil {
			return err
		}
		if err := shared.RequireSameCompany(input.CompanyID, shared.CompanyRef{Field: ref.field, CompanyID: account.CompanyID}); err != nil {
			return err
		}
	}
	if input.JournalID != nil {
		journal, err := lg.GetJournal(ctx, *input.JournalID)
		if err != nil {
			return err
		}
		if err := shared.RequireSameCompany(input.CompanyID, shared.CompanyRef{Field: "journal_id", CompanyID: journal.CompanyID}); err != nil {
			return err
		}
	}
	return nil
}

// GenerateDepreciationLines rebuilds the draft schedule from the asset's
// configuration. Posted lines block regeneration; draft lines are replaced.
func (s *Service) GenerateDepreciationLines(ctx context.Context, assetID int64) (GenerateStats, error) {
	var stats GenerateStats
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		asset, err := tx.GetAssetForUpdate(ctx, assetID)
		if err != nil {
			return err
		}
		if asset.State == AssetStateClosed || asset.State == AssetStateCancelled {
			return shared.Validationf("state", "cannot compute depreciation for a %s asset", asset.State)
		}
		existing, err := tx.ListDepreciationLines(ctx, assetID)
		if err != nil {
			return err
		}
		posted := 0
		for _, line := range existing {
			if line.State == LineStatePosted {
				posted++
			}
		}
		if posted > 0 {
			return shared.Validationf("lines", "asset %d has %d posted depreciation line(s), reset them before recomputing", assetID, posted)
		}

		board, err := ComputeDepreciationBoard(asset)
		if err != nil {
			return err
		}
		deleted, err := tx.DeleteDraftLines(ctx, assetID)
		if err != nil {
			return err
		}
		created, err := tx.InsertDepreciationLines(ctx, assetID, board)
		if err != nil {
			return err
		}
		total := decimal.Zero
		for _, line := range board {
			total = total.Add(line.Amount)
		}
		stats = GenerateStats{Deleted: deleted, Created: created, TotalDepreciation: total}
		return nil
	})
	if err != nil {
		return GenerateStats{}, err
	}
	s.record(ctx, "asset.generate_board", assetID, map[string]any{
		"created": stats.Created,
		"deleted": stats.Deleted,
	})
	return stats, nil
}

// PostDepreciationLine books one installment: a two-line entry move
// debiting the expense account and crediting accumulated depreciation,
// posted immediately and linked back to the line.
func (s *Service) PostDepreciationLine(ctx context.Context, assetID, lineID int64) (PostLineStats, error) {
	var stats PostLineStats
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		asset, err := tx.GetAssetForUpdate(ctx, assetID)
		if err != nil {
			return err
		}
		line, err := tx.GetDepreciationLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		if line.AssetID != asset.ID {
			return shared.Validationf("line_id", "line %d does not belong to asset %d", lineID, assetID)
		}
		if line.State == LineStatePosted {
			return shared.Validationf("state", "depreciation line %d is already posted", lineID)
		}
		if asset.JournalID == nil {
			return shared.Validationf("journal_id", "asset %d needs a journal before posting depreciation", assetID)
		}
		if asset.DepreciationAccountID == nil {
			return shared.Validationf("depreciation_account_id", "asset %d needs a depreciation account before posting", assetID)
		}
		if asset.ExpenseAccountID == nil {
			return shared.Validationf("expense_account_id", "asset %d needs an expense account before posting", assetID)
		}

		lg := tx.Ledger()
		move, err := ledger.BuildMoveTx(ctx, lg, ledger.MoveInput{
			CompanyID:  asset.CompanyID,
			JournalID:  *asset.JournalID,
			Type:       ledger.MoveTypeEntry,
			Date:       line.Date,
			Reference:  fmt.Sprintf("Depreciation - %s (seq %d)", asset.Name, line.Sequence),
			PartnerID:  asset.PartnerID,
			CurrencyID: asset.CurrencyID,
			Lines: []ledger.LineInput{
				{
					AccountID:      *asset.ExpenseAccountID,
					Name:           "Depreciation expense - " + asset.Name,
					Debit:          line.Amount,
					AmountCurrency: line.Amount,
				},
				{
					AccountID:      *asset.DepreciationAccountID,
					Name:           "Accumulated depreciation - " + asset.Name,
					Credit:         line.Amount,
					AmountCurrency: line.Amount.Neg(),
				},
			},
		})
		if err != nil {
			return err
		}
		if _, err := ledger.PostMoveTx(ctx, lg, move.ID, s.now()); err != nil {
			return err
		}
		if err := tx.MarkLinePosted(ctx, line.ID, move.ID); err != nil {
			return err
		}
		stats = PostLineStats{
			LineID:   line.ID,
			MoveID:   move.ID,
			Sequence: line.Sequence,
			Amount:   line.Amount,
			Date:     line.Date,
			State:    LineStatePosted,
		}
		return nil
	})
	if err != nil {
		return PostLineStats{}, err
	}
	s.record(ctx, "asset.post_line", assetID, map[string]any{
		"line_id": stats.LineID,
		"move_id": stats.MoveID,
	})
	return stats, nil
}

// SetRunning transitions draft to running.
func (s *Service) SetRunning(ctx context.Context, assetID int64) (Asset, error) {
	return s.transition(ctx, assetID, "asset.run", func(asset Asset, _ []DepreciationLine) (AssetState, error) {
		if asset.State != AssetStateDraft {
			return "", shared.Validationf("state", "cannot set running: asset is %s, expected draft", asset.State)
		}
		return AssetStateRunning, nil
	})
}

// Pause transitions running to paused.
func (s *Service) Pause(ctx context.Context, assetID int64) (Asset, error) {
	return s.transition(ctx, assetID, "asset.pause", func(asset Asset, _ []DepreciationLine) (AssetState, error) {
		if asset.State != AssetStateRunning {
			return "", shared.Validationf("state", "cannot pause: asset is %s, expected running", asset.State)
		}
		return AssetStatePaused, nil
	})
}

// Resume transitions paused back to running.
func (s *Service) Resume(ctx context.Context, assetID int64) (Asset, error) {
	return s.transition(ctx, assetID, "asset.resume", func(asset Asset, _ []DepreciationLine) (AssetState, error) {
		if asset.State != AssetStatePaused {
			return "", shared.Validationf("state", "cannot resume: asset is %s, expected paused", asset.State)
		}
		return AssetStateRunning, nil
	})
}

// Close transitions running to closed once every installment is posted.
func (s *Service) Close(ctx context.Context, assetID int64) (Asset, error) {
	return s.transition(ctx, assetID, "asset.close", func(asset Asset, lines []DepreciationLine) (AssetState, error) {
		if asset.State != AssetStateRunning {
			return "", shared.Validationf("state", "cannot close: asset is %s, expected running", asset.State)
		}
		pending := 0
		for _, line := range lines {
			if line.State == LineStateDraft {
				pending++
			}
		}
		if pending > 0 {
			return "", shared.Validationf("lines", "cannot close asset: %d depreciation line(s) are still draft", pending)
		}
		return AssetStateClosed, nil
	})
}

// Cancel transitions draft or paused to cancelled.
func (s *Service) Cancel(ctx context.Context, assetID int64) (Asset, error) {
	return s.transition(ctx, assetID, "asset.cancel", func(asset Asset, _ []DepreciationLine) (AssetState, error) {
		switch asset.State {
		case AssetStateRunning, AssetStateClosed:
			return "", shared.Validationf("state", "cannot cancel a %s asset, pause or close it first", asset.State)
		case AssetStateCancelled:
			return "", shared.Validationf("state", "asset is already cancelled")
		}
		return AssetStateCancelled, nil
	})
}

func (s *Service) transition(ctx context.Context, assetID int64, action string, decide func(Asset, []DepreciationLine) (AssetState, error)) (Asset, error) {
	var asset Asset
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		asset, err = tx.GetAssetForUpdate(ctx, assetID)
		if err != nil {
			return err
		}
		lines, err := tx.ListDepreciationLines(ctx, assetID)
		if err != nil {
			return err
		}
		next, err := decide(asset, lines)
		if err != nil {
			return err
		}
		if err := tx.UpdateAssetState(ctx, assetID, next); err != nil {
			return err
		}
		asset.State = next
		return nil
	})
	if err != nil {
		return Asset{}, err
	}
	s.record(ctx, action, assetID, nil)
	return asset, nil
}

// GetAsset returns an asset with its schedule.
func (s *Service) GetAsset(ctx context.Context, assetID int64) (Asset, []DepreciationLine, error) {
	return s.repo.GetAsset(ctx, assetID)
}

// ListAssets lists assets.
func (s *Service) ListAssets(ctx context.Context, filters AssetFilters) ([]Asset, int, error) {
	return s.repo.ListAssets(ctx, filters)
}

func (s *Service) record(ctx context.Context, action string, assetID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "asset",
		EntityID: fmt.Sprintf("%d", assetID),
		Meta:     meta,
		At:       s.now(),
	})
}
