package transfers

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

// Handler exposes transfer models over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer model routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listModels)
	r.Get("/{id}", h.showModel)
	r.Post("/", h.createModel)
	r.Put("/{id}", h.updateModel)
	r.Delete("/{id}", h.deleteModel)
	r.Post("/{id}/activate", h.activateModel)
	r.Post("/{id}/disable", h.disableModel)
	r.Post("/{id}/run", h.runModel)
	r.Post("/{id}/lines", h.addLine)
	r.Put("/{id}/lines/{lineID}", h.updateLine)
	r.Delete("/{id}/lines/{lineID}", h.deleteLine)
}

type modelRequest struct {
	CompanyID        int64   `json:"company_id" validate:"required,gt=0"`
	JournalID        int64   `json:"journal_id" validate:"required,gt=0"`
	Name             string  `json:"name" validate:"required"`
	DateStart        string  `json:"date_start" validate:"required"`
	DateStop         string  `json:"date_stop"`
	Frequency        string  `json:"frequency" validate:"required,oneof=month quarter year"`
	SourceAccountIDs []int64 `json:"source_account_ids"`
}

func (req modelRequest) toInput() (ModelInput, error) {
	start, err := time.Parse("2006-01-02", req.DateStart)
	if err != nil {
		return ModelInput{}, shared.Validationf("date_start", "must be YYYY-MM-DD")
	}
	input := ModelInput{
		CompanyID:        req.CompanyID,
		JournalID:        req.JournalID,
		Name:             req.Name,
		DateStart:        start,
		Frequency:        Frequency(req.Frequency),
		SourceAccountIDs: req.SourceAccountIDs,
	}
	if req.DateStop != "" {
		stop, err := time.Parse("2006-01-02", req.DateStop)
		if err != nil {
			return ModelInput{}, shared.Validationf("date_stop", "must be YYYY-MM-DD")
		}
		input.DateStop = &stop
	}
	return input, nil
}

type lineRequest struct {
	AccountID          int64   `json:"account_id" validate:"required,gt=0"`
	Percent            string  `json:"percent" validate:"required"`
	PartnerIDs         []int64 `json:"partner_ids"`
	AnalyticAccountIDs []int64 `json:"analytic_account_ids"`
	Sequence           int     `json:"sequence"`
}

func (req lineRequest) toInput() (LineInput, error) {
	percent, err := decimal.NewFromString(req.Percent)
	if err != nil {
		return LineInput{}, shared.Validationf("percent", "must be a decimal number")
	}
	return LineInput{
		AccountID:          req.AccountID,
		Percent:            percent,
		PartnerIDs:         req.PartnerIDs,
		AnalyticAccountIDs: req.AnalyticAccountIDs,
		Sequence:           req.Sequence,
	}, nil
}

func (h *Handler) decodeModel(w http.ResponseWriter, r *http.Request) (ModelInput, bool) {
	var req modelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return ModelInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return ModelInput{}, false
	}
	input, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return ModelInput{}, false
	}
	return input, true
}

func (h *Handler) decodeLine(w http.ResponseWriter, r *http.Request) (LineInput, bool) {
	var req lineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return LineInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return LineInput{}, false
	}
	input, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return LineInput{}, false
	}
	return input, true
}

func (h *Handler) createModel(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeModel(w, r)
	if !ok {
		return
	}
	model, err := h.service.CreateModel(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, model)
}

func (h *Handler) updateModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer model id")
		return
	}
	input, ok := h.decodeModel(w, r)
	if !ok {
		return
	}
	model, err := h.service.UpdateModel(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, model)
}

func (h *Handler) deleteModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer model id")
		return
	}
	if err := h.service.DeleteModel(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *Handler) activateModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer model id")
		return
	}
	model, err := h.service.ActivateModel(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, model)
}

func (h *Handler) disableModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer model id")
		return
	}
	model, err := h.service.DisableModel(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, model)
}

func (h *Handler) runModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer model id")
		return
	}
	stats, err := h.service.PerformAutoTransfer(r.Context(), id)
	if err != nil {
		h.logger.Warn("auto transfer rejected", slog.Int64("model_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) addLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer model id")
		return
	}
	input, ok := h.decodeLine(w, r)
	if !ok {
		return
	}
	line, err := h.service.AddModelLine(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, line)
}

func (h *Handler) updateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	lineID, okLine := pathID(r, "lineID")
	if !ok || !okLine {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	input, ok := h.decodeLine(w, r)
	if !ok {
		return
	}
	line, err := h.service.UpdateModelLine(r.Context(), id, lineID, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, line)
}

func (h *Handler) deleteLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	lineID, okLine := pathID(r, "lineID")
	if !ok || !okLine {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}
	if err := h.service.DeleteModelLine(r.Context(), id, lineID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": lineID})
}

func (h *Handler) showModel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer model id")
		return
	}
	model, err := h.service.GetModel(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, model)
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters ModelFilters
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("company_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filters.CompanyID = &id
		}
	}
	if v := q.Get("state"); v != "" {
		state := ModelState(v)
		filters.State = &state
	}
	models, total, err := h.service.ListModels(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": models, "total": total})
}

func pathID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	return id, err == nil && id > 0
}
