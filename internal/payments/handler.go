package payments

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler exposes payments over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPayments)
	r.Get("/{id}", h.showPayment)
	r.Post("/", h.createPayment)
	r.Put("/{id}", h.updatePayment)
	r.Post("/{id}/post", h.postPayment)
	r.Post("/{id}/cancel", h.cancelPayment)
	r.Post("/{id}/reset", h.resetPayment)
}

type paymentRequest struct {
	CompanyID  int64  `json:"company_id" validate:"required,gt=0"`
	PartnerID  *int64 `json:"partner_id"`
	JournalID  int64  `json:"journal_id" validate:"required,gt=0"`
	CurrencyID *int64 `json:"currency_id"`
	Date       string `json:"date" validate:"required"`
	Amount     string `json:"amount" validate:"required"`
	Type       string `json:"payment_type" validate:"required,oneof=inbound outbound"`
	Reference  string `json:"reference"`
}

func (req paymentRequest) toInput() (PaymentInput, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return PaymentInput{}, shared.Validationf("date", "must be YYYY-MM-DD")
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return PaymentInput{}, shared.Validationf("amount", "must be a decimal number")
	}
	return PaymentInput{
		CompanyID:  req.CompanyID,
		PartnerID:  req.PartnerID,
		JournalID:  req.JournalID,
		CurrencyID: req.CurrencyID,
		Date:       date,
		Amount:     amount,
		Type:       PaymentType(req.Type),
		Reference:  req.Reference,
	}, nil
}

func (h *Handler) decodePayment(w http.ResponseWriter, r *http.Request) (PaymentInput, bool) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return PaymentInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return PaymentInput{}, false
	}
	input, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return PaymentInput{}, false
	}
	return input, true
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodePayment(w, r)
	if !ok {
		return
	}
	payment, err := h.service.CreatePayment(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	input, ok := h.decodePayment(w, r)
	if !ok {
		return
	}
	payment, err := h.service.UpdatePayment(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) postPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	stats, err := h.service.PostPayment(r.Context(), id)
	if err != nil {
		h.logger.Warn("post payment rejected", slog.Int64("payment_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) cancelPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	payment, err := h.service.CancelPayment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) resetPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	payment, err := h.service.ResetPaymentToDraft(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) showPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
		return
	}
	payment, err := h.service.GetPayment(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, payment)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters PaymentFilters
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("company_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filters.CompanyID = &id
		}
	}
	if v := q.Get("journal_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filters.JournalID = &id
		}
	}
	if v := q.Get("state"); v != "" {
		state := PaymentState(v)
		filters.State = &state
	}
	payments, total, err := h.service.ListPayments(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": payments, "total": total})
}

func paymentID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
