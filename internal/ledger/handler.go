package ledger

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

// Handler exposes the posting engine over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/moves", h.listMoves)
	r.Get("/moves/{id}", h.showMove)
	r.Post("/moves", h.createMove)
	r.Post("/moves/{id}/lines", h.addLines)
	r.Post("/moves/{id}/post", h.postMove)
	r.Post("/moves/{id}/reset", h.resetMove)
	r.Post("/moves/{id}/cancel", h.cancelMove)
	r.Post("/moves/{id}/reverse", h.reverseMove)
}

type lineRequest struct {
	AccountID      int64             `json:"account_id" validate:"required,gt=0"`
	PartnerID      *int64            `json:"partner_id"`
	Name           string            `json:"name"`
	Debit          string            `json:"debit"`
	Credit         string            `json:"credit"`
	CurrencyID     *int64            `json:"currency_id"`
	AmountCurrency string            `json:"amount_currency"`
	Analytic       map[string]string `json:"analytic_distribution"`
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Decimal{}, nil
	}
	return decimal.NewFromString(raw)
}

func (req lineRequest) toInput() (LineInput, error) {
	debit, err := parseAmount(req.Debit)
	if err != nil {
		return LineInput{}, shared.Validationf("debit", "must be a decimal number")
	}
	credit, err := parseAmount(req.Credit)
	if err != nil {
		return LineInput{}, shared.Validationf("credit", "must be a decimal number")
	}
	amountCurrency, err := parseAmount(req.AmountCurrency)
	if err != nil {
		return LineInput{}, shared.Validationf("amount_currency", "must be a decimal number")
	}
	var analytic shared.Distribution
	for key, value := range req.Analytic {
		accountID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return LineInput{}, shared.Validationf("analytic_distribution", "keys must be analytic account IDs")
		}
		percent, err := decimal.NewFromString(value)
		if err != nil {
			return LineInput{}, shared.Validationf("analytic_distribution", "percentages must be decimal numbers")
		}
		analytic = append(analytic, shared.DistributionEntry{AnalyticAccountID: accountID, Percent: percent})
	}
	return LineInput{
		AccountID:      req.AccountID,
		PartnerID:      req.PartnerID,
		Name:           req.Name,
		Debit:          debit,
		Credit:         credit,
		CurrencyID:     req.CurrencyID,
		AmountCurrency: amountCurrency,
		Analytic:       analytic,
	}, nil
}

type moveRequest struct {
	CompanyID  int64         `json:"company_id" validate:"required,gt=0"`
	JournalID  int64         `json:"journal_id" validate:"required,gt=0"`
	Type       string        `json:"move_type" validate:"required"`
	Date       string        `json:"date" validate:"required"`
	Reference  string        `json:"reference"`
	PartnerID  *int64        `json:"partner_id"`
	CurrencyID *int64        `json:"currency_id"`
	Lines      []lineRequest `json:"lines"`
}

func (h *Handler) createMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
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
	input := MoveInput{
		CompanyID:  req.CompanyID,
		JournalID:  req.JournalID,
		Type:       MoveType(req.Type),
		Date:       date,
		Reference:  req.Reference,
		PartnerID:  req.PartnerID,
		CurrencyID: req.CurrencyID,
	}
	for _, line := range req.Lines {
		in, err := line.toInput()
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		input.Lines = append(input.Lines, in)
	}
	move, err := h.service.CreateMove(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, move)
}

func (h *Handler) addLines(w http.ResponseWriter, r *http.Request) {
	id, ok := moveID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid move id")
		return
	}
	var req struct {
		Lines []lineRequest `json:"lines" validate:"required,min=1"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var lines []LineInput
	for _, line := range req.Lines {
		in, err := line.toInput()
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		lines = append(lines, in)
	}
	move, err := h.service.AddMoveLines(r.Context(), id, lines)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, move)
}

func (h *Handler) postMove(w http.ResponseWriter, r *http.Request) {
	id, ok := moveID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid move id")
		return
	}
	result, err := h.service.PostMove(r.Context(), id)
	if err != nil {
		h.logger.Warn("post move rejected", slog.Int64("move_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) resetMove(w http.ResponseWriter, r *http.Request) {
	id, ok := moveID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid move id")
		return
	}
	move, err := h.service.SetMoveDraft(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, move)
}

func (h *Handler) cancelMove(w http.ResponseWriter, r *http.Request) {
	id, ok := moveID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid move id")
		return
	}
	move, err := h.service.CancelMove(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, move)
}

type reverseRequest struct {
	Date     *string `json:"date"`
	Reason   string  `json:"reason"`
	AutoPost bool    `json:"post"`
}

func (h *Handler) reverseMove(w http.ResponseWriter, r *http.Request) {
	id, ok := moveID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid move id")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	input := ReverseInput{MoveID: id, Reason: req.Reason, AutoPost: req.AutoPost}
	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		input.Date = &date
	}
	reversal, err := h.service.ReverseMove(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, reversal)
}

func (h *Handler) showMove(w http.ResponseWriter, r *http.Request) {
	id, ok := moveID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid move id")
		return
	}
	move, err := h.service.GetMove(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, move)
}

func (h *Handler) listMoves(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters MoveFilters
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
		state := MoveState(v)
		filters.State = &state
	}
	if v := q.Get("move_type"); v != "" {
		moveType := MoveType(v)
		filters.Type = &moveType
	}
	moves, total, err := h.service.ListMoves(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": moves, "total": total})
}

func moveID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
