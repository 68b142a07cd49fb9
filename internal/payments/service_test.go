package payments_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/ledger/ledgertest"
	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/payments"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type memoryPaymentStore struct {
	ledger   *ledgertest.Store
	payments map[int64]payments.Payment
	settings map[int64]masterdata.AccountingSettings
}

func newMemoryPaymentStore() *memoryPaymentStore {
	return &memoryPaymentStore{
		ledger:   ledgertest.NewStore(),
		payments: make(map[int64]payments.Payment),
		settings: make(map[int64]masterdata.AccountingSettings),
	}
}

func (s *memoryPaymentStore) WithTx(ctx context.Context, fn func(context.Context, payments.TxRepository) error) error {
	return fn(ctx, s)
}

func (s *memoryPaymentStore) Ledger() ledger.TxRepository { return s.ledger }

func (s *memoryPaymentStore) GetPaymentForUpdate(ctx context.Context, id int64) (payments.Payment, error) {
	payment, ok := s.payments[id]
	if !ok {
		return payments.Payment{}, payments.ErrPaymentNotFound
	}
	return payment, nil
}

func (s *memoryPaymentStore) InsertPayment(ctx context.Context, input payments.PaymentInput) (payments.Payment, error) {
	payment := payments.Payment{
		ID:         s.ledger.NextID(),
		UID:        uuid.New(),
		CompanyID:  input.CompanyID,
		PartnerID:  input.PartnerID,
		JournalID:  input.JournalID,
		CurrencyID: input.CurrencyID,
		Date:       input.Date,
		Amount:     input.Amount,
		Type:       input.Type,
		State:      payments.PaymentStateDraft,
		Reference:  input.Reference,
	}
	s.payments[payment.ID] = payment
	return payment, nil
}

func (s *memoryPaymentStore) UpdatePayment(ctx context.Context, id int64, input payments.PaymentInput) (payments.Payment, error) {
	payment, ok := s.payments[id]
	if !ok {
		return payments.Payment{}, payments.ErrPaymentNotFound
	}
	payment.JournalID = input.JournalID
	payment.Date = input.Date
	payment.Amount = input.Amount
	payment.Type = input.Type
	payment.Reference = input.Reference
	s.payments[id] = payment
	return payment, nil
}

func (s *memoryPaymentStore) SetPaymentPosted(ctx context.Context, id, moveID int64) error {
	payment, ok := s.payments[id]
	if !ok {
		return payments.ErrPaymentNotFound
	}
	payment.MoveID = &moveID
	payment.State = payments.PaymentStatePosted
	s.payments[id] = payment
	return nil
}

func (s *memoryPaymentStore) SetPaymentState(ctx context.Context, id int64, state payments.PaymentState) error {
	payment, ok := s.payments[id]
	if !ok {
		return payments.ErrPaymentNotFound
	}
	payment.State = state
	s.payments[id] = payment
	return nil
}

func (s *memoryPaymentStore) GetSettings(ctx context.Context, companyID int64) (masterdata.AccountingSettings, error) {
	if settings, ok := s.settings[companyID]; ok {
		return settings, nil
	}
	return masterdata.AccountingSettings{CompanyID: companyID, FiscalYearLastDay: 31, FiscalYearLastMonth: 12}, nil
}

func (s *memoryPaymentStore) GetPayment(ctx context.Context, id int64) (payments.Payment, error) {
	return s.GetPaymentForUpdate(ctx, id)
}

func (s *memoryPaymentStore) ListPayments(ctx context.Context, filters payments.PaymentFilters) ([]payments.Payment, int, error) {
	var out []payments.Payment
	for _, payment := range s.payments {
		out = append(out, payment)
	}
	return out, len(out), nil
}

type paymentFixture struct {
	store   *memoryPaymentStore
	service *payments.Service

	company  masterdata.Company
	bank     masterdata.Journal
	bankAcct masterdata.Account
	transfer masterdata.Account
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	store := newMemoryPaymentStore()
	f := &paymentFixture{store: store}
	f.company = store.ledger.SeedCompany(masterdata.Company{Code: "MAIN", Name: "Main Co", CurrencyID: 1})
	f.bankAcct = store.ledger.SeedAccount(masterdata.Account{CompanyID: f.company.ID, Code: "101401", Name: "Bank", Type: masterdata.AccountTypeAsset})
	f.transfer = store.ledger.SeedAccount(masterdata.Account{CompanyID: f.company.ID, Code: "101701", Name: "Liquidity Transfer", Type: masterdata.AccountTypeAsset})
	f.bank = store.ledger.SeedJournal(masterdata.Journal{CompanyID: f.company.ID, Code: "BNK", Name: "Bank", Type: masterdata.JournalTypeBank, DefaultAccountID: &f.bankAcct.ID})
	f.service = payments.NewService(store, nil)
	f.service.WithNow(func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) })
	return f
}

func (f *paymentFixture) draftPayment(t *testing.T, amount string, direction payments.PaymentType) payments.Payment {
	t.Helper()
	payment, err := f.service.CreatePayment(context.Background(), payments.PaymentInput{
		CompanyID: f.company.ID,
		JournalID: f.bank.ID,
		Date:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:    decimal.RequireFromString(amount),
		Type:      direction,
		Reference: "PAY/0001",
	})
	require.NoError(t, err)
	return payment
}

func TestPostPaymentInboundWithTransferAccount(t *testing.T) {
	f := newPaymentFixture(t)
	f.store.settings[f.company.ID] = masterdata.AccountingSettings{
		CompanyID:         f.company.ID,
		TransferAccountID: &f.transfer.ID,
	}
	payment := f.draftPayment(t, "500", payments.PaymentInbound)

	stats, err := f.service.PostPayment(context.Background(), payment.ID)
	require.NoError(t, err)
	require.Equal(t, payments.PaymentStatePosted, stats.State)

	move := f.store.ledger.Moves[stats.MoveID]
	require.Equal(t, ledger.MoveStatePosted, move.State)
	require.Equal(t, ledger.MoveTypeEntry, move.Type)

	lines := f.store.ledger.Lines[stats.MoveID]
	require.Len(t, lines, 2)
	byAccount := map[int64]ledger.MoveLine{}
	for _, line := range lines {
		byAccount[line.AccountID] = line
	}
	// Inbound: liquidity (journal default) debits, transfer account credits.
	require.True(t, byAccount[f.bankAcct.ID].Debit.Equal(decimal.NewFromInt(500)))
	require.True(t, byAccount[f.transfer.ID].Credit.Equal(decimal.NewFromInt(500)))

	stored := f.store.payments[payment.ID]
	require.Equal(t, payments.PaymentStatePosted, stored.State)
	require.NotNil(t, stored.MoveID)
	require.Equal(t, stats.MoveID, *stored.MoveID)
}

func TestPostPaymentOutboundFallsBackToJournalDefault(t *testing.T) {
	f := newPaymentFixture(t)
	payment := f.draftPayment(t, "250", payments.PaymentOutbound)

	stats, err := f.service.PostPayment(context.Background(), payment.ID)
	require.NoError(t, err)

	lines := f.store.ledger.Lines[stats.MoveID]
	require.Len(t, lines, 2)
	// No transfer account configured: both legs land on the journal
	// default, outbound credits liquidity first.
	require.True(t, lines[0].Credit.Equal(decimal.NewFromInt(250)))
	require.True(t, lines[1].Debit.Equal(decimal.NewFromInt(250)))
	require.Equal(t, f.bankAcct.ID, lines[0].AccountID)
	require.Equal(t, f.bankAcct.ID, lines[1].AccountID)
}

func TestPostPaymentPreconditions(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	// Amount must be positive (rejected at creation).
	_, err := f.service.CreatePayment(ctx, payments.PaymentInput{
		CompanyID: f.company.ID, JournalID: f.bank.ID,
		Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Amount: decimal.Zero, Type: payments.PaymentInbound,
	})
	require.True(t, shared.IsValidation(err))

	// Posting twice fails: state is posted and a move is linked.
	payment := f.draftPayment(t, "100", payments.PaymentInbound)
	_, err = f.service.PostPayment(ctx, payment.ID)
	require.NoError(t, err)
	_, err = f.service.PostPayment(ctx, payment.ID)
	require.True(t, shared.IsValidation(err))

	// Journal without a default account cannot post.
	bare := f.store.ledger.SeedJournal(masterdata.Journal{CompanyID: f.company.ID, Code: "CSH", Name: "Cash", Type: masterdata.JournalTypeCash})
	other, err := f.service.CreatePayment(ctx, payments.PaymentInput{
		CompanyID: f.company.ID, JournalID: bare.ID,
		Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(10), Type: payments.PaymentInbound,
	})
	require.NoError(t, err)
	_, err = f.service.PostPayment(ctx, other.ID)
	require.True(t, shared.IsValidation(err))
}

func TestPaymentSourceLinkIsUnique(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payment := f.draftPayment(t, "100", payments.PaymentInbound)

	stats, err := f.service.PostPayment(ctx, payment.ID)
	require.NoError(t, err)
	require.Contains(t, f.store.ledger.Links, "payments/"+f.store.payments[payment.ID].UID.String())

	// Forcing the state back without clearing the link: reposting must
	// hit the one-move-per-payment constraint.
	p := f.store.payments[payment.ID]
	p.State = payments.PaymentStateDraft
	p.MoveID = nil
	f.store.payments[payment.ID] = p
	_, err = f.service.PostPayment(ctx, payment.ID)
	require.Error(t, err)
	_ = stats
}

func TestPaymentCancelAndReset(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payment := f.draftPayment(t, "75", payments.PaymentOutbound)

	_, err := f.service.ResetPaymentToDraft(ctx, payment.ID)
	require.True(t, shared.IsValidation(err))

	cancelled, err := f.service.CancelPayment(ctx, payment.ID)
	require.NoError(t, err)
	require.Equal(t, payments.PaymentStateCancelled, cancelled.State)

	_, err = f.service.CancelPayment(ctx, payment.ID)
	require.True(t, shared.IsValidation(err))

	reset, err := f.service.ResetPaymentToDraft(ctx, payment.ID)
	require.NoError(t, err)
	require.Equal(t, payments.PaymentStateDraft, reset.State)
}

func TestUpdatePaymentOnlyWhileDraft(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	payment := f.draftPayment(t, "75", payments.PaymentInbound)
	_, err := f.service.PostPayment(ctx, payment.ID)
	require.NoError(t, err)

	_, err = f.service.UpdatePayment(ctx, payment.ID, payments.PaymentInput{
		CompanyID: f.company.ID, JournalID: f.bank.ID,
		Date: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(80), Type: payments.PaymentInbound,
	})
	require.True(t, shared.IsValidation(err))
}
