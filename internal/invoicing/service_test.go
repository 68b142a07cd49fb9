package invoicing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/invoicing"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/ledger/ledgertest"
	"github.com/ledgerline/ledgerline/internal/masterdata"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// memoryInvoiceStore layers invoice lines and taxes over the shared ledger
// fake so the compiler runs its full transactional flow in tests.
type memoryInvoiceStore struct {
	ledger *ledgertest.Store
	lines  map[int64]invoicing.InvoiceLine
	taxes  map[int64]masterdata.Tax
}

func newMemoryInvoiceStore() *memoryInvoiceStore {
	return &memoryInvoiceStore{
		ledger: ledgertest.NewStore(),
		lines:  make(map[int64]invoicing.InvoiceLine),
		taxes:  make(map[int64]masterdata.Tax),
	}
}

func (s *memoryInvoiceStore) seedTax(t masterdata.Tax) masterdata.Tax {
	if t.ID == 0 {
		t.ID = s.ledger.NextID()
	}
	s.taxes[t.ID] = t
	return t
}

func (s *memoryInvoiceStore) WithTx(ctx context.Context, fn func(context.Context, invoicing.TxRepository) error) error {
	return fn(ctx, s)
}

func (s *memoryInvoiceStore) Ledger() ledger.TxRepository { return s.ledger }

func (s *memoryInvoiceStore) ListInvoiceLines(ctx context.Context, moveID int64) ([]invoicing.InvoiceLine, error) {
	var out []invoicing.InvoiceLine
	for _, line := range s.lines {
		if line.MoveID == moveID {
			out = append(out, line)
		}
	}
	return out, nil
}

func (s *memoryInvoiceStore) InsertInvoiceLine(ctx context.Context, moveID int64, input invoicing.InvoiceLineInput, amounts invoicing.LineAmounts) (invoicing.InvoiceLine, error) {
	line := invoicing.InvoiceLine{
		ID:              s.ledger.NextID(),
		MoveID:          moveID,
		AccountID:       input.AccountID,
		TaxID:           input.TaxID,
		Name:            input.Name,
		Quantity:        input.Quantity,
		UnitPrice:       input.UnitPrice,
		DiscountPercent: input.DiscountPercent,
		Subtotal:        amounts.Subtotal,
		TaxAmount:       amounts.Tax,
		Total:           amounts.Total,
	}
	s.lines[line.ID] = line
	return line, nil
}

func (s *memoryInvoiceStore) UpdateInvoiceLine(ctx context.Context, lineID int64, input invoicing.InvoiceLineInput, amounts invoicing.LineAmounts) (invoicing.InvoiceLine, error) {
	line, ok := s.lines[lineID]
	if !ok {
		return invoicing.InvoiceLine{}, invoicing.ErrLineNotFound
	}
	line.AccountID = input.AccountID
	line.TaxID = input.TaxID
	line.Name = input.Name
	line.Quantity = input.Quantity
	line.UnitPrice = input.UnitPrice
	line.DiscountPercent = input.DiscountPercent
	line.Subtotal = amounts.Subtotal
	line.TaxAmount = amounts.Tax
	line.Total = amounts.Total
	s.lines[lineID] = line
	return line, nil
}

func (s *memoryInvoiceStore) DeleteInvoiceLine(ctx context.Context, lineID int64) error {
	if _, ok := s.lines[lineID]; !ok {
		return invoicing.ErrLineNotFound
	}
	delete(s.lines, lineID)
	return nil
}

func (s *memoryInvoiceStore) GetInvoiceLine(ctx context.Context, lineID int64) (invoicing.InvoiceLine, error) {
	line, ok := s.lines[lineID]
	if !ok {
		return invoicing.InvoiceLine{}, invoicing.ErrLineNotFound
	}
	return line, nil
}

func (s *memoryInvoiceStore) GetTax(ctx context.Context, id int64) (masterdata.Tax, error) {
	tax, ok := s.taxes[id]
	if !ok {
		return masterdata.Tax{}, shared.Validationf("tax_id", "tax %d does not exist", id)
	}
	return tax, nil
}

func (s *memoryInvoiceStore) GetInvoice(ctx context.Context, moveID int64) (ledger.Move, []invoicing.InvoiceLine, error) {
	move, err := s.ledger.GetMoveWithLines(ctx, moveID)
	if err != nil {
		return ledger.Move{}, nil, err
	}
	lines, _ := s.ListInvoiceLines(ctx, moveID)
	return move, lines, nil
}

func (s *memoryInvoiceStore) ListInvoices(ctx context.Context, filters ledger.MoveFilters) ([]ledger.Move, int, error) {
	return s.ledger.ListMoves(ctx, filters)
}

type invoiceFixture struct {
	store   *memoryInvoiceStore
	service *invoicing.Service

	company    masterdata.Company
	sale       masterdata.Journal
	receivable masterdata.Account
	revenue    masterdata.Account
	taxAcct    masterdata.Account
	vat        masterdata.Tax
}

func newInvoiceFixture(t *testing.T) *invoiceFixture {
	t.Helper()
	store := newMemoryInvoiceStore()
	f := &invoiceFixture{store: store}
	f.company = store.ledger.SeedCompany(masterdata.Company{Code: "MAIN", Name: "Main Co", CurrencyID: 1})
	f.receivable = store.ledger.SeedAccount(masterdata.Account{CompanyID: f.company.ID, Code: "121000", Name: "Receivable", Type: masterdata.AccountTypeAsset})
	f.revenue = store.ledger.SeedAccount(masterdata.Account{CompanyID: f.company.ID, Code: "400000", Name: "Revenue", Type: masterdata.AccountTypeIncome})
	f.taxAcct = store.ledger.SeedAccount(masterdata.Account{CompanyID: f.company.ID, Code: "251000", Name: "Tax Payable", Type: masterdata.AccountTypeLiability})
	f.sale = store.ledger.SeedJournal(masterdata.Journal{CompanyID: f.company.ID, Code: "INV", Name: "Customer Invoices", Type: masterdata.JournalTypeSale, DefaultAccountID: &f.receivable.ID})
	f.vat = store.seedTax(masterdata.Tax{CompanyID: f.company.ID, Name: "VAT 15%", AmountType: masterdata.TaxAmountPercent, Amount: decimal.NewFromInt(15), AccountID: &f.taxAcct.ID, Active: true})
	f.service = invoicing.NewService(store, nil)
	f.service.WithNow(func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) })
	return f
}

func (f *invoiceFixture) draftInvoice(t *testing.T, lines ...invoicing.InvoiceLineInput) ledger.Move {
	t.Helper()
	move, _, err := f.service.CreateInvoice(context.Background(), ledger.MoveInput{
		CompanyID: f.company.ID,
		JournalID: f.sale.ID,
		Type:      ledger.MoveTypeOutInvoice,
		Date:      time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Reference: "INV/2024/0001",
	}, lines)
	require.NoError(t, err)
	return move
}

func TestComputeInvoiceLineAmounts(t *testing.T) {
	two := decimal.NewFromInt(2)
	fifty := decimal.NewFromInt(50)
	ten := decimal.NewFromInt(10)

	t.Run("percent tax with discount", func(t *testing.T) {
		vat := masterdata.Tax{AmountType: masterdata.TaxAmountPercent, Amount: decimal.NewFromInt(15)}
		amounts, err := invoicing.ComputeInvoiceLineAmounts(two, fifty, ten, &vat)
		require.NoError(t, err)
		require.True(t, amounts.Subtotal.Equal(decimal.NewFromInt(90)), "subtotal %s", amounts.Subtotal)
		require.True(t, amounts.Tax.Equal(decimal.RequireFromString("13.5")), "tax %s", amounts.Tax)
		require.True(t, amounts.Total.Equal(decimal.RequireFromString("103.5")), "total %s", amounts.Total)
	})

	t.Run("fixed tax multiplies by quantity", func(t *testing.T) {
		stamp := masterdata.Tax{AmountType: masterdata.TaxAmountFixed, Amount: decimal.RequireFromString("1.25")}
		amounts, err := invoicing.ComputeInvoiceLineAmounts(decimal.NewFromInt(4), ten, decimal.Zero, &stamp)
		require.NoError(t, err)
		require.True(t, amounts.Subtotal.Equal(decimal.NewFromInt(40)))
		require.True(t, amounts.Tax.Equal(decimal.NewFromInt(5)))
	})

	t.Run("division tax is price-included", func(t *testing.T) {
		incl := masterdata.Tax{AmountType: masterdata.TaxAmountDivision, Amount: decimal.NewFromInt(20)}
		amounts, err := invoicing.ComputeInvoiceLineAmounts(decimal.NewFromInt(1), decimal.NewFromInt(80), decimal.Zero, &incl)
		require.NoError(t, err)
		// 80 * 20 / (100 - 20) = 20
		require.True(t, amounts.Tax.Equal(decimal.NewFromInt(20)))
		require.True(t, amounts.Total.Equal(decimal.NewFromInt(100)))
	})

	t.Run("rejects bad inputs", func(t *testing.T) {
		_, err := invoicing.ComputeInvoiceLineAmounts(decimal.Zero, ten, decimal.Zero, nil)
		require.True(t, shared.IsValidation(err))
		_, err = invoicing.ComputeInvoiceLineAmounts(two, ten.Neg(), decimal.Zero, nil)
		require.True(t, shared.IsValidation(err))
		_, err = invoicing.ComputeInvoiceLineAmounts(two, ten, decimal.NewFromInt(101), nil)
		require.True(t, shared.IsValidation(err))
		over := masterdata.Tax{AmountType: masterdata.TaxAmountDivision, Amount: decimal.NewFromInt(100)}
		_, err = invoicing.ComputeInvoiceLineAmounts(two, ten, decimal.Zero, &over)
		require.True(t, shared.IsValidation(err))
	})
}

func TestPostInvoiceCompilesLedgerLines(t *testing.T) {
	f := newInvoiceFixture(t)
	move := f.draftInvoice(t, invoicing.InvoiceLineInput{
		AccountID:       f.revenue.ID,
		TaxID:           &f.vat.ID,
		Name:            "Consulting",
		Quantity:        decimal.NewFromInt(2),
		UnitPrice:       decimal.NewFromInt(50),
		DiscountPercent: decimal.NewFromInt(10),
	})

	result, err := f.service.PostInvoice(context.Background(), move.ID)
	require.NoError(t, err)
	require.Equal(t, 3, result.GeneratedLines)
	require.True(t, result.InvoiceTotal.Equal(decimal.RequireFromString("103.5")))
	require.Equal(t, ledger.MoveStatePosted, result.State)
	require.True(t, result.TotalDebit.Equal(decimal.RequireFromString("103.5")))

	lines := f.store.ledger.Lines[move.ID]
	require.Len(t, lines, 3)

	byAccount := map[int64]ledger.MoveLine{}
	for _, line := range lines {
		byAccount[line.AccountID] = line
	}
	// Customer invoice: business and tax legs credit, counterpart debits.
	require.True(t, byAccount[f.revenue.ID].Credit.Equal(decimal.NewFromInt(90)))
	require.True(t, byAccount[f.taxAcct.ID].Credit.Equal(decimal.RequireFromString("13.5")))
	require.True(t, byAccount[f.receivable.ID].Debit.Equal(decimal.RequireFromString("103.5")))
}

func TestPostInvoiceRebuildIsIdempotent(t *testing.T) {
	f := newInvoiceFixture(t)
	move := f.draftInvoice(t, invoicing.InvoiceLineInput{
		AccountID: f.revenue.ID,
		Name:      "Service",
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: decimal.NewFromInt(200),
	})

	// Stale draft ledger lines from an earlier aborted compile.
	_, err := f.store.ledger.InsertMoveLines(context.Background(), move.ID, []ledger.LineInput{
		{AccountID: f.revenue.ID, Name: "stale", Credit: decimal.NewFromInt(999)},
	})
	require.NoError(t, err)

	result, err := f.service.PostInvoice(context.Background(), move.ID)
	require.NoError(t, err)
	require.Equal(t, 2, result.GeneratedLines)
	require.Len(t, f.store.ledger.Lines[move.ID], 2)
	require.True(t, result.TotalDebit.Equal(decimal.NewFromInt(200)))
}

func TestPostInvoicePreconditions(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()

	empty := f.draftInvoice(t)
	_, err := f.service.PostInvoice(ctx, empty.ID)
	require.True(t, shared.IsValidation(err))

	// Journal without a default account cannot post invoices.
	bare := f.store.ledger.SeedJournal(masterdata.Journal{CompanyID: f.company.ID, Code: "INV2", Name: "No Default", Type: masterdata.JournalTypeSale})
	move, _, err := f.service.CreateInvoice(ctx, ledger.MoveInput{
		CompanyID: f.company.ID, JournalID: bare.ID, Type: ledger.MoveTypeOutInvoice,
		Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}, []invoicing.InvoiceLineInput{{AccountID: f.revenue.ID, Name: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10)}})
	require.NoError(t, err)
	_, err = f.service.PostInvoice(ctx, move.ID)
	require.True(t, shared.IsValidation(err))

	// Posting twice fails on state.
	posted := f.draftInvoice(t, invoicing.InvoiceLineInput{AccountID: f.revenue.ID, Name: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10)})
	_, err = f.service.PostInvoice(ctx, posted.ID)
	require.NoError(t, err)
	_, err = f.service.PostInvoice(ctx, posted.ID)
	require.True(t, shared.IsValidation(err))
}

func TestCreateInvoiceRejectsEntryType(t *testing.T) {
	f := newInvoiceFixture(t)
	_, _, err := f.service.CreateInvoice(context.Background(), ledger.MoveInput{
		CompanyID: f.company.ID, JournalID: f.sale.ID, Type: ledger.MoveTypeEntry,
		Date: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}, nil)
	require.True(t, shared.IsValidation(err))
}

func TestReverseInvoiceToCreditNote(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	move := f.draftInvoice(t, invoicing.InvoiceLineInput{
		AccountID: f.revenue.ID,
		TaxID:     &f.vat.ID,
		Name:      "Consulting",
		Quantity:  decimal.NewFromInt(2),
		UnitPrice: decimal.NewFromInt(50),
	})
	_, err := f.service.PostInvoice(ctx, move.ID)
	require.NoError(t, err)

	note, err := f.service.ReverseInvoiceToCreditNote(ctx, invoicing.NoteInput{MoveID: move.ID, Reason: "returned goods"})
	require.NoError(t, err)
	require.Equal(t, ledger.MoveTypeOutRefund, note.Type)
	require.Equal(t, ledger.MoveStateDraft, note.State)
	require.NotNil(t, note.ReversedEntryID)
	require.Equal(t, move.ID, *note.ReversedEntryID)

	// Commercial lines copied verbatim, no sign games.
	copied, err := f.store.ListInvoiceLines(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, copied, 1)
	require.True(t, copied[0].Quantity.Equal(decimal.NewFromInt(2)))
	require.True(t, copied[0].UnitPrice.Equal(decimal.NewFromInt(50)))
}

func TestReverseInvoiceRequiresPostedInvoice(t *testing.T) {
	f := newInvoiceFixture(t)
	draft := f.draftInvoice(t, invoicing.InvoiceLineInput{AccountID: f.revenue.ID, Name: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10)})

	_, err := f.service.ReverseInvoiceToCreditNote(context.Background(), invoicing.NoteInput{MoveID: draft.ID})
	require.True(t, shared.IsValidation(err))
}

func TestCreateDebitNoteFromInvoice(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	move := f.draftInvoice(t, invoicing.InvoiceLineInput{AccountID: f.revenue.ID, Name: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10)})
	_, err := f.service.PostInvoice(ctx, move.ID)
	require.NoError(t, err)

	note, err := f.service.CreateDebitNoteFromInvoice(ctx, invoicing.NoteInput{MoveID: move.ID, Reason: "price adjustment"})
	require.NoError(t, err)
	require.Equal(t, ledger.MoveTypeOutInvoice, note.Type)
	require.True(t, note.IsDebitNote)
	require.NotNil(t, note.DebitOriginID)
	require.Equal(t, move.ID, *note.DebitOriginID)

	// A debit note cannot spawn another debit note.
	_, err = f.service.PostInvoice(ctx, note.ID)
	require.NoError(t, err)
	_, err = f.service.CreateDebitNoteFromInvoice(ctx, invoicing.NoteInput{MoveID: note.ID})
	require.True(t, shared.IsValidation(err))

	// Nor be reversed directly.
	_, err = f.service.ReverseInvoiceToCreditNote(ctx, invoicing.NoteInput{MoveID: note.ID})
	require.True(t, shared.IsValidation(err))
}

func TestInvoiceCancelAndReset(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	move := f.draftInvoice(t, invoicing.InvoiceLineInput{AccountID: f.revenue.ID, Name: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10)})

	// Reset requires cancelled state.
	_, err := f.service.ResetInvoiceToDraft(ctx, move.ID)
	require.True(t, shared.IsValidation(err))

	cancelled, err := f.service.CancelInvoice(ctx, move.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.MoveStateCancelled, cancelled.State)

	reset, err := f.service.ResetInvoiceToDraft(ctx, move.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.MoveStateDraft, reset.State)
}

func TestInvoiceLineEditsOnlyWhileDraft(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	move := f.draftInvoice(t)

	line, err := f.service.AddInvoiceLine(ctx, move.ID, invoicing.InvoiceLineInput{
		AccountID: f.revenue.ID, Name: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	updated, err := f.service.UpdateInvoiceLine(ctx, move.ID, line.ID, invoicing.InvoiceLineInput{
		AccountID: f.revenue.ID, Name: "x", Quantity: decimal.NewFromInt(3), UnitPrice: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	require.True(t, updated.Subtotal.Equal(decimal.NewFromInt(30)))

	_, err = f.service.PostInvoice(ctx, move.ID)
	require.NoError(t, err)

	_, err = f.service.AddInvoiceLine(ctx, move.ID, invoicing.InvoiceLineInput{
		AccountID: f.revenue.ID, Name: "late", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10),
	})
	require.True(t, shared.IsValidation(err))
	err = f.service.DeleteInvoiceLine(ctx, move.ID, line.ID)
	require.True(t, shared.IsValidation(err))
}
