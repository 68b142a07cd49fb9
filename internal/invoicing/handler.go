package invoicing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler exposes invoices, credit notes, and debit notes over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers invoicing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listInvoices)
	r.Get("/{id}", h.showInvoice)
	r.Post("/", h.createInvoice)
	r.Post("/{id}/lines", h.addLine)
	r.Put("/{id}/lines/{lineID}", h.updateLine)
	r.Delete("/{id}/lines/{lineID}", h.deleteLine)
	r.Post("/{id}/post", h.postInvoice)
	r.Post("/{id}/cancel", h.cancelInvoice)
	r.Post("/{id}/reset", h.resetInvoice)
	r.Post("/{id}/reverse", h.reverseInvoice)
	r.Post("/{id}/debit-note", h.createDebitNote)
}

type invoiceLineRequest struct {
	AccountID       int64  `json:"account_id" validate:"required,gt=0"`
	TaxID           *int64 `json:"tax_id"`
	Name            string `json:"name" validate:"required"`
	Quantity        string `json:"quantity" validate:"required"`
	UnitPrice       string `json:"unit_price" validate:"required"`
	DiscountPercent string `json:"discount_percent"`
}

func (req invoiceLineRequest) toInput() (InvoiceLineInput, error) {
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return InvoiceLineInput{}, shared.Validationf("quantity", "must be a decimal number")
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		return InvoiceLineInput{}, shared.Validationf("unit_price", "must be a decimal number")
	}
	discount := decimal.Zero
	if req.DiscountPercent != "" {
		discount, err = decimal.NewFromString(req.DiscountPercent)
		if err != nil {
			return InvoiceLineInput{}, shared.Validationf("discount_percent", "must be a decimal number")
		}
	}
	return InvoiceLineInput{
		AccountID:       req.AccountID,
		TaxID:           req.TaxID,
		Name:            req.Name,
		Quantity:        quantity,
		UnitPrice:       unitPrice,
		DiscountPercent: discount,
	}, nil
}

type invoiceRequest struct {
	CompanyID  int64                `json:"company_id" validate:"required,gt=0"`
	JournalID  int64                `json:"journal_id" validate:"required,gt=0"`
	Type       string               `json:"move_type" validate:"required"`
	Date       string               `json:"date" validate:"required"`
	Reference  string               `json:"reference"`
	PartnerID  *int64               `json:"partner_id"`
	CurrencyID *int64               `json:"currency_id"`
	Lines      []invoiceLineRequest `json:"lines"`
}

type invoiceResponse struct {
	ledger.Move
	InvoiceLines []InvoiceLine `json:"invoice_lines"`
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	var lines []InvoiceLineInput
	for _, line := range req.Lines {
		in, err := line.toInput()
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		lines = append(lines, in)
	}
	move, created, err := h.service.CreateInvoice(r.Context(), ledger.MoveInput{
		CompanyID:  req.CompanyID,
		JournalID:  req.JournalID,
		Type:       ledger.MoveType(req.Type),
		Date:       date,
		Reference:  req.Reference,
		PartnerID:  req.PartnerID,
		CurrencyID: req.CurrencyID,
	}, lines)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoiceResponse{Move: move, InvoiceLines: created})
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	var req invoiceLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.AddInvoiceLine(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	lineID, ok := pathID(r, "lineID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	var req invoiceLineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	line, err := h.service.UpdateInvoiceLine(r.Context(), id, lineID, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) deleteLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	lineID, ok := pathID(r, "lineID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	if err := h.service.DeleteInvoiceLine(r.Context(), id, lineID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) postInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	result, err := h.service.PostInvoice(r.Context(), id)
	if err != nil {
		h.logger.Warn("post invoice rejected", slog.Int64("move_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) cancelInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	move, err := h.service.CancelInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, move)
}

func (h *Handler) resetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	move, err := h.service.ResetInvoiceToDraft(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, move)
}

type noteRequest struct {
	Date   *string `json:"date"`
	Reason string  `json:"reason"`
}

func (h *Handler) noteInput(w http.ResponseWriter, r *http.Request) (NoteInput, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return NoteInput{}, false
	}
	var req noteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return NoteInput{}, false
	}
	input := NoteInput{MoveID: id, Reason: req.Reason}
	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return NoteInput{}, false
		}
		input.Date = &date
	}
	return input, true
}

func (h *Handler) reverseInvoice(w http.ResponseWriter, r *http.Request) {
	input, ok := h.noteInput(w, r)
	if !ok {
		return
	}
	note, err := h.service.ReverseInvoiceToCreditNote(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, note)
}

func (h *Handler) createDebitNote(w http.ResponseWriter, r *http.Request) {
	input, ok := h.noteInput(w, r)
	if !ok {
		return
	}
	note, err := h.service.CreateDebitNoteFromInvoice(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, note)
}

func (h *Handler) showInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	move, lines, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoiceResponse{Move: move, InvoiceLines: lines})
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	filters := ledger.MoveFilters{}
	q := r.URL.Query()
	if raw := q.Get("company_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.CompanyID = &id
		}
	}
	if raw := q.Get("journal_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filters.JournalID = &id
		}
	}
	if raw := q.Get("state"); raw != "" {
		state := ledger.MoveState(raw)
		filters.State = &state
	}
	if raw := q.Get("move_type"); raw != "" {
		moveType := ledger.MoveType(raw)
		filters.Type = &moveType
	}
	if raw := q.Get("page"); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil {
			filters.Page = page
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			filters.Limit = limit
		}
	}
	moves, total, err := h.service.ListInvoices(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": moves, "total": total})
}

func pathID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
