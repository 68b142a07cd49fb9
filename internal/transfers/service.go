package transfers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// SourceLineFilter narrows the posted move lines swept by one allocation
// pass. Include filters select a partner or analytic slice; exclude filters
// carve out what other lines already claim.
type SourceLineFilter struct {
	AccountIDs                []int64
	Start                     time.Time
	End                       time.Time
	PartnerIDs                []int64
	AnalyticAccountIDs        []int64
	ExcludePartnerIDs         []int64
	ExcludeAnalyticAccountIDs []int64
	ExcludeLineIDs            []int64
}

// SourceLine is one posted move line feeding an allocation.
type SourceLine struct {
	ID        int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// TxRepository is the transactional surface of the transfer store.
type TxRepository interface {
	Ledger() ledger.TxRepository
	GetModelForUpdate(ctx context.Context, id int64) (TransferModel, error)
	InsertModel(ctx context.Context, input ModelInput) (TransferModel, error)
	UpdateModel(ctx context.Context, id int64, input ModelInput) (TransferModel, error)
	SetModelState(ctx context.Context, id int64, state ModelState) error
	SetTotalPercent(ctx context.Context, id int64, percent decimal.Decimal) error
	DeleteModel(ctx context.Context, id int64) error

	ListModelLines(ctx context.Context, modelID int64) ([]ModelLine, error)
	GetModelLine(ctx context.Context, lineID int64) (ModelLine, error)
	InsertModelLine(ctx context.Context, modelID int64, input LineInput) (ModelLine, error)
	UpdateModelLine(ctx context.Context, lineID int64, input LineInput) (ModelLine, error)
	DeleteModelLine(ctx context.Context, lineID int64) error

	PostedSourceLines(ctx context.Context, filter SourceLineFilter) ([]SourceLine, error)
	LastPostedPeriod(ctx context.Context, modelID int64) (*time.Time, error)
	FindDraftPeriodMove(ctx context.Context, modelID int64, end time.Time) (int64, bool, error)
	LinkPeriodMove(ctx context.Context, modelID, moveID int64, end time.Time) error
	CountModelMoves(ctx context.Context, modelID int64, state ledger.MoveState) (int, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetModel(ctx context.Context, id int64) (TransferModel, error)
	ListModels(ctx context.Context, filters ModelFilters) ([]TransferModel, int, error)
	ListRunnableModels(ctx context.Context) ([]TransferModel, error)
}

// AuditPort records transfer events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ModelFilters narrows transfer model listings.
type ModelFilters struct {
	CompanyID *int64
	State     *ModelState
	Page      int
	Limit     int
}

// Service owns the transfer model lifecycle and the periodic allocation
// runs that draft their moves.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the transfer service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateModel persists a new disabled transfer model.
func (s *Service) CreateModel(ctx context.Context, input ModelInput) (TransferModel, error) {
	var model TransferModel
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.validateModel(ctx, tx, input); err != nil {
			return err
		}
		var err error
		model, err = tx.InsertModel(ctx, input)
		return err
	})
	if err != nil {
		return TransferModel{}, err
	}
	s.record(ctx, "transfer_model.create", model.ID, map[string]any{"name": model.Name})
	return model, nil
}

// UpdateModel rewrites a model's configuration. The schedule fields may
// change at any time; already-drafted periods are reconciled on the next
// run.
func (s *Service) UpdateModel(ctx context.Context, id int64, input ModelInput) (TransferModel, error) {
	var model TransferModel
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetModelForUpdate(ctx, id)
		if err != nil {
			return err
		}
		input.CompanyID = current.CompanyID
		if err := s.validateModel(ctx, tx, input); err != nil {
			return err
		}
		model, err = tx.UpdateModel(ctx, id, input)
		return err
	})
	if err != nil {
		return TransferModel{}, err
	}
	s.record(ctx, "transfer_model.update", model.ID, nil)
	return model, nil
}

func (s *Service) validateModel(ctx context.Context, tx TxRepository, input ModelInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return shared.Validationf("name", "name is required")
	}
	if !input.Frequency.Valid() {
		return shared.Validationf("frequency", "unknown frequency %q", input.Frequency)
	}
	if input.DateStart.IsZero() {
		return shared.Validationf("date_start", "start date is required")
	}
	if input.DateStop != nil && input.DateStop.Before(input.DateStart) {
		return shared.Validationf("date_stop", "stop date cannot be before start date")
	}
	lg := tx.Ledger()
	if _, err := lg.GetCompany(ctx, input.CompanyID); err != nil {
		return err
	}
	journal, err := lg.GetJournal(ctx, input.JournalID)
	if err != nil {
		return err
	}
	if err := shared.RequireSameCompany(input.CompanyID, shared.CompanyRef{Field: "journal_id", CompanyID: journal.CompanyID}); err != nil {
		return err
	}
	for _, accountID := range input.SourceAccountIDs {
		account, err := lg.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if err := shared.RequireSameCompany(input.CompanyID, shared.CompanyRef{Field: "source_account_ids", CompanyID: account.CompanyID}); err != nil {
			return err
		}
	}
	return nil
}

// ActivateModel flips the model to in_progress so the cron picks it up.
func (s *Service) ActivateModel(ctx context.Context, id int64) (TransferModel, error) {
	return s.setState(ctx, id, ModelStateInProgress, "transfer_model.activate")
}

// DisableModel stops future runs. Already-drafted moves stay untouched.
func (s *Service) DisableModel(ctx context.Context, id int64) (TransferModel, error) {
	return s.setState(ctx, id, ModelStateDisabled, "transfer_model.disable")
}

func (s *Service) setState(ctx context.Context, id int64, state ModelState, action string) (TransferModel, error) {
	var model TransferModel
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		model, err = tx.GetModelForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.SetModelState(ctx, id, state); err != nil {
			return err
		}
		model.State = state
		return nil
	})
	if err != nil {
		return TransferModel{}, err
	}
	s.record(ctx, action, id, nil)
	return model, nil
}

// DeleteModel removes a model that has no moves attached.
func (s *Service) DeleteModel(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		model, err := tx.GetModelForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if n, err := tx.CountModelMoves(ctx, id, ledger.MoveStatePosted); err != nil {
			return err
		} else if n > 0 {
			return shared.Validationf("id", "transfer model %q has posted moves attached and cannot be deleted", model.Name)
		}
		if n, err := tx.CountModelMoves(ctx, id, ledger.MoveStateDraft); err != nil {
			return err
		} else if n > 0 {
			return shared.Validationf("id", "transfer model %q has draft moves attached, delete them first", model.Name)
		}
		return tx.DeleteModel(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "transfer_model.delete", id, nil)
	return nil
}

// AddModelLine appends a destination line and rebalances the model's total
// percent.
func (s *Service) AddModelLine(ctx context.Context, modelID int64, input LineInput) (ModelLine, error) {
	var line ModelLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		model, err := tx.GetModelForUpdate(ctx, modelID)
		if err != nil {
			return err
		}
		if err := s.validateLine(ctx, tx, model, input); err != nil {
			return err
		}
		input = normalizeLine(input)
		line, err = tx.InsertModelLine(ctx, modelID, input)
		if err != nil {
			return err
		}
		return s.rebalance(ctx, tx, modelID)
	})
	if err != nil {
		return ModelLine{}, err
	}
	s.record(ctx, "transfer_line.create", modelID, map[string]any{"line_id": line.ID})
	return line, nil
}

// UpdateModelLine rewrites a destination line and rebalances.
func (s *Service) UpdateModelLine(ctx context.Context, modelID, lineID int64, input LineInput) (ModelLine, error) {
	var line ModelLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		model, err := tx.GetModelForUpdate(ctx, modelID)
		if err != nil {
			return err
		}
		current, err := tx.GetModelLine(ctx, lineID)
		if err != nil {
			return err
		}
		if current.ModelID != modelID {
			return ErrLineNotFound
		}
		if err := s.validateLine(ctx, tx, model, input); err != nil {
			return err
		}
		input = normalizeLine(input)
		line, err = tx.UpdateModelLine(ctx, lineID, input)
		if err != nil {
			return err
		}
		return s.rebalance(ctx, tx, modelID)
	})
	if err != nil {
		return ModelLine{}, err
	}
	s.record(ctx, "transfer_line.update", modelID, map[string]any{"line_id": lineID})
	return line, nil
}

// DeleteModelLine removes a destination line and rebalances.
func (s *Service) DeleteModelLine(ctx context.Context, modelID, lineID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetModelForUpdate(ctx, modelID); err != nil {
			return err
		}
		line, err := tx.GetModelLine(ctx, lineID)
		if err != nil {
			return err
		}
		if line.ModelID != modelID {
			return ErrLineNotFound
		}
		if err := tx.DeleteModelLine(ctx, lineID); err != nil {
			return err
		}
		return s.rebalance(ctx, tx, modelID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, "transfer_line.delete", modelID, map[string]any{"line_id": lineID})
	return nil
}

func (s *Service) validateLine(ctx context.Context, tx TxRepository, model TransferModel, input LineInput) error {
	if input.Percent.Sign() <= 0 {
		return shared.Validationf("percent", "percent must be greater than zero")
	}
	account, err := tx.Ledger().GetAccount(ctx, input.AccountID)
	if err != nil {
		return err
	}
	return shared.RequireSameCompany(model.CompanyID, shared.CompanyRef{Field: "account_id", CompanyID: account.CompanyID})
}

// normalizeLine forces filtered lines to capture their slice in full.
func normalizeLine(input LineInput) LineInput {
	if len(input.PartnerIDs) > 0 || len(input.AnalyticAccountIDs) > 0 {
		input.Percent = hundred
	}
	return input
}

// rebalance recomputes the derived total percent and enforces the model's
// line constraints after any line change.
func (s *Service) rebalance(ctx context.Context, tx TxRepository, modelID int64) error {
	lines, err := tx.ListModelLines(ctx, modelID)
	if err != nil {
		return err
	}
	if err := checkFilterDuplicates(lines); err != nil {
		return err
	}
	total := ComputeTotalPercent(lines)
	if len(lines) > 0 {
		if total.Sign() <= 0 || total.GreaterThan(hundred) {
			return shared.Validationf("total_percent", "the total percentage (%s) should be less or equal to 100", total)
		}
	}
	return tx.SetTotalPercent(ctx, modelID, total)
}

// checkFilterDuplicates rejects two lines claiming the same partner or
// analytic slice, which would double-allocate the matching move lines.
func checkFilterDuplicates(lines []ModelLine) error {
	seen := make(map[[2]int64]struct{})
	add := func(partnerID, analyticID int64) error {
		key := [2]int64{partnerID, analyticID}
		if _, dup := seen[key]; dup {
			return shared.Validationf("lines", "duplicated partner or analytic filter across lines")
		}
		seen[key] = struct{}{}
		return nil
	}
	for _, line := range lines {
		switch {
		case len(line.PartnerIDs) > 0 && len(line.AnalyticAccountIDs) > 0:
			for _, p := range line.PartnerIDs {
				for _, a := range line.AnalyticAccountIDs {
					if err := add(p, a); err != nil {
						return err
					}
				}
			}
		case len(line.PartnerIDs) > 0:
			for _, p := range line.PartnerIDs {
				if err := add(p, 0); err != nil {
					return err
				}
			}
		case len(line.AnalyticAccountIDs) > 0:
			for _, a := range line.AnalyticAccountIDs {
				if err := add(0, a); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// GetModel loads one model with its lines.
func (s *Service) GetModel(ctx context.Context, id int64) (TransferModel, error) {
	return s.repo.GetModel(ctx, id)
}

// ListModels lists models with pagination.
func (s *Service) ListModels(ctx context.Context, filters ModelFilters) ([]TransferModel, int, error) {
	return s.repo.ListModels(ctx, filters)
}

// PerformAutoTransfer materializes every elapsed period of one model: for
// each period it sweeps the posted balance of the source accounts, splits
// it across the destination lines and upserts the period's draft move.
// Periods whose move is already posted are never revisited; an unposted
// period's draft is rebuilt in place.
func (s *Service) PerformAutoTransfer(ctx context.Context, modelID int64) (RunStats, error) {
	stats := RunStats{ModelID: modelID}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		model, err := tx.GetModelForUpdate(ctx, modelID)
		if err != nil {
			return err
		}
		lines, err := tx.ListModelLines(ctx, modelID)
		if err != nil {
			return err
		}
		if len(model.SourceAccountIDs) == 0 || len(lines) == 0 {
			return nil
		}
		lastPosted, err := tx.LastPostedPeriod(ctx, modelID)
		if err != nil {
			return err
		}
		today := truncateDay(s.now())
		for _, period := range PeriodSchedule(model, lastPosted, today) {
			stats.Periods++
			drafted, err := s.materializePeriod(ctx, tx, model, lines, period)
			if err != nil {
				return err
			}
			if drafted {
				stats.MovesDrafted++
			}
		}
		return nil
	})
	if err != nil {
		return RunStats{}, err
	}
	s.record(ctx, "transfer_model.run", modelID, map[string]any{
		"periods": stats.Periods, "moves_drafted": stats.MovesDrafted,
	})
	return stats, nil
}

// RunAllModels executes every active in_progress model. Models touch
// disjoint move sets, so they run concurrently, each in its own
// transaction; one model's failure does not stop the others.
func (s *Service) RunAllModels(ctx context.Context) ([]RunStats, error) {
	models, err := s.repo.ListRunnableModels(ctx)
	if err != nil {
		return nil, err
	}
	var (
		mu    sync.Mutex
		stats []RunStats
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, model := range models {
		model := model
		g.Go(func() error {
			st, err := s.PerformAutoTransfer(ctx, model.ID)
			if err != nil {
				return fmt.Errorf("transfer model %d: %w", model.ID, err)
			}
			mu.Lock()
			stats = append(stats, st)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ModelID < stats[j].ModelID })
	return stats, nil
}

// materializePeriod computes the period's allocation lines and writes them
// into the period's draft move, creating it on first touch.
func (s *Service) materializePeriod(ctx context.Context, tx TxRepository, model TransferModel, lines []ModelLine, period Period) (bool, error) {
	values, err := s.buildPeriodLines(ctx, tx, model, lines, period)
	if err != nil {
		return false, err
	}
	if len(values) == 0 {
		return false, nil
	}

	lg := tx.Ledger()
	moveID, ok, err := tx.FindDraftPeriodMove(ctx, model.ID, period.End)
	if err != nil {
		return false, err
	}
	if !ok {
		company, err := lg.GetCompany(ctx, model.CompanyID)
		if err != nil {
			return false, err
		}
		move, err := ledger.BuildMoveTx(ctx, lg, ledger.MoveInput{
			CompanyID:  model.CompanyID,
			JournalID:  model.JournalID,
			Type:       ledger.MoveTypeEntry,
			Date:       period.End,
			Reference:  fmt.Sprintf("%s: %s --> %s", model.Name, period.Start.Format("2006-01-02"), period.End.Format("2006-01-02")),
			CurrencyID: &company.CurrencyID,
			Lines:      values,
		})
		if err != nil {
			return false, err
		}
		return true, tx.LinkPeriodMove(ctx, model.ID, move.ID, period.End)
	}

	if err := lg.DeleteMoveLines(ctx, moveID); err != nil {
		return false, err
	}
	if _, err := lg.InsertMoveLines(ctx, moveID, values); err != nil {
		return false, err
	}
	return true, nil
}

// buildPeriodLines sweeps the period's posted activity. Filtered lines go
// first, each claiming its partner/analytic slice exactly once; the
// unfiltered lines then split whatever activity no filter claimed.
func (s *Service) buildPeriodLines(ctx context.Context, tx TxRepository, model TransferModel, lines []ModelLine, period Period) ([]ledger.LineInput, error) {
	var (
		filtered   []ModelLine
		unfiltered []ModelLine
	)
	for _, line := range lines {
		if line.Filtered() {
			filtered = append(filtered, line)
		} else {
			unfiltered = append(unfiltered, line)
		}
	}

	var values []ledger.LineInput
	var handledIDs []int64
	for _, line := range filtered {
		src, err := tx.PostedSourceLines(ctx, SourceLineFilter{
			AccountIDs:         model.SourceAccountIDs,
			Start:              period.Start,
			End:                period.End,
			PartnerIDs:         line.PartnerIDs,
			AnalyticAccountIDs: line.AnalyticAccountIDs,
			ExcludeLineIDs:     handledIDs,
		})
		if err != nil {
			return nil, err
		}
		for _, sl := range src {
			handledIDs = append(handledIDs, sl.ID)
		}
		for _, bal := range balancesByAccount(src) {
			if bal.amount.IsZero() {
				continue
			}
			pair, err := s.filteredPair(ctx, tx, line, bal)
			if err != nil {
				return nil, err
			}
			values = append(values, pair...)
		}
	}

	if len(unfiltered) > 0 {
		src, err := tx.PostedSourceLines(ctx, SourceLineFilter{
			AccountIDs:                model.SourceAccountIDs,
			Start:                     period.Start,
			End:                       period.End,
			ExcludePartnerIDs:         collectPartnerFilters(lines),
			ExcludeAnalyticAccountIDs: collectAnalyticFilters(lines),
		})
		if err != nil {
			return nil, err
		}
		for _, bal := range balancesByAccount(src) {
			if bal.amount.IsZero() {
				continue
			}
			split, err := s.splitAcross(ctx, tx, model, unfiltered, bal)
			if err != nil {
				return nil, err
			}
			values = append(values, split...)
		}
	}
	return values, nil
}

type accountBalance struct {
	accountID int64
	amount    decimal.Decimal
	isDebit   bool
}

// balancesByAccount folds source lines into one net balance per account,
// in stable account order.
func balancesByAccount(src []SourceLine) []accountBalance {
	sums := make(map[int64]decimal.Decimal)
	var order []int64
	for _, line := range src {
		if _, seen := sums[line.AccountID]; !seen {
			order = append(order, line.AccountID)
		}
		sums[line.AccountID] = sums[line.AccountID].Add(line.Debit).Sub(line.Credit)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]accountBalance, 0, len(order))
	for _, accountID := range order {
		balance := sums[accountID]
		out = append(out, accountBalance{
			accountID: accountID,
			amount:    balance.Abs(),
			isDebit:   balance.Sign() >= 0,
		})
	}
	return out
}

// filteredPair moves a filtered slice in full: one leg on the destination
// account, the mirror leg clearing the source account.
func (s *Service) filteredPair(ctx context.Context, tx TxRepository, line ModelLine, bal accountBalance) ([]ledger.LineInput, error) {
	origin, err := tx.Ledger().GetAccount(ctx, bal.accountID)
	if err != nil {
		return nil, err
	}
	scope := filterScope(line)
	dest := conventionInput(line.AccountID, bal.amount, bal.isDebit)
	dest.Name = fmt.Sprintf("Automatic Transfer (from account %s with %s)", origin.Code, scope)
	source := conventionInput(bal.accountID, bal.amount, !bal.isDebit)
	source.Name = fmt.Sprintf("Automatic Transfer (entries with %s)", scope)
	return []ledger.LineInput{dest, source}, nil
}

// splitAcross allocates one source account's unclaimed balance across the
// unfiltered lines and appends the counterpart clearing the source.
func (s *Service) splitAcross(ctx context.Context, tx TxRepository, model TransferModel, unfiltered []ModelLine, bal accountBalance) ([]ledger.LineInput, error) {
	origin, err := tx.Ledger().GetAccount(ctx, bal.accountID)
	if err != nil {
		return nil, err
	}
	amounts, left := SplitAmount(unfiltered, model.TotalPercent, bal.amount)

	var values []ledger.LineInput
	for i, line := range unfiltered {
		if amounts[i].IsZero() {
			continue
		}
		dest := conventionInput(line.AccountID, amounts[i], bal.isDebit)
		dest.Name = fmt.Sprintf("Automatic Transfer (%s%% from account %s)", line.Percent, origin.Code)
		values = append(values, dest)
	}
	subtracted := bal.amount.Sub(left)
	if subtracted.IsZero() {
		return values, nil
	}
	source := conventionInput(bal.accountID, subtracted, !bal.isDebit)
	source.Name = fmt.Sprintf("Automatic Transfer (-%s%%)", model.TotalPercent)
	return append(values, source), nil
}

func conventionInput(accountID int64, amount decimal.Decimal, debit bool) ledger.LineInput {
	input := ledger.LineInput{AccountID: accountID}
	if debit {
		input.Debit = amount
		input.AmountCurrency = amount
	} else {
		input.Credit = amount
		input.AmountCurrency = amount.Neg()
	}
	return input
}

func filterScope(line ModelLine) string {
	switch {
	case len(line.AnalyticAccountIDs) > 0 && len(line.PartnerIDs) > 0:
		return fmt.Sprintf("analytic account(s) %v and partner(s) %v", line.AnalyticAccountIDs, line.PartnerIDs)
	case len(line.AnalyticAccountIDs) > 0:
		return fmt.Sprintf("analytic account(s) %v", line.AnalyticAccountIDs)
	default:
		return fmt.Sprintf("partner(s) %v", line.PartnerIDs)
	}
}

func collectPartnerFilters(lines []ModelLine) []int64 {
	var out []int64
	for _, line := range lines {
		out = append(out, line.PartnerIDs...)
	}
	return out
}

func collectAnalyticFilters(lines []ModelLine) []int64 {
	var out []int64
	for _, line := range lines {
		out = append(out, line.AnalyticAccountIDs...)
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func (s *Service) record(ctx context.Context, action string, modelID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "transfer_model",
		EntityID: fmt.Sprintf("%d", modelID),
		Meta:     meta,
		At:       s.now(),
	})
}
