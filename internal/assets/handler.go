package assets

import (
	"context"
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

// Handler exposes assets and their depreciation schedules over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers asset routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listAssets)
	r.Get("/{id}", h.showAsset)
	r.Post("/", h.createAsset)
	r.Put("/{id}", h.updateAsset)
	r.Post("/{id}/compute-board", h.computeBoard)
	r.Post("/{id}/generate-lines", h.generateLines)
	r.Post("/{id}/lines/{lineID}/post", h.postLine)
	r.Post("/{id}/run", h.setRunning)
	r.Post("/{id}/pause", h.pause)
	r.Post("/{id}/resume", h.resume)
	r.Post("/{id}/close", h.close)
	r.Post("/{id}/cancel", h.cancel)
}

type assetRequest struct {
	CompanyID             int64  `json:"company_id" validate:"required,gt=0"`
	Name                  string `json:"name" validate:"required"`
	Code                  string `json:"code"`
	PartnerID             *int64 `json:"partner_id"`
	CurrencyID            *int64 `json:"currency_id"`
	AssetAccountID        int64  `json:"asset_account_id" validate:"required,gt=0"`
	DepreciationAccountID *int64 `json:"depreciation_account_id"`
	ExpenseAccountID      *int64 `json:"expense_account_id"`
	JournalID             *int64 `json:"journal_id"`
	AcquisitionDate       string `json:"acquisition_date" validate:"required"`
	FirstDepreciationDate string `json:"first_depreciation_date"`
	OriginalValue         string `json:"original_value" validate:"required"`
	SalvageValue          string `json:"salvage_value"`
	Method                string `json:"method" validate:"required"`
	MethodNumber          int    `json:"method_number" validate:"required,gt=0"`
	MethodPeriod          int    `json:"method_period" validate:"required,gt=0"`
	Prorata               bool   `json:"prorata"`
	Note                  string `json:"note"`
}

func (req assetRequest) toInput() (AssetInput, error) {
	acquisition, err := time.Parse("2006-01-02", req.AcquisitionDate)
	if err != nil {
		return AssetInput{}, shared.Validationf("acquisition_date", "must be YYYY-MM-DD")
	}
	var firstDep *time.Time
	if req.FirstDepreciationDate != "" {
		parsed, err := time.Parse("2006-01-02", req.FirstDepreciationDate)
		if err != nil {
			return AssetInput{}, shared.Validationf("first_depreciation_date", "must be YYYY-MM-DD")
		}
		firstDep = &parsed
	}
	original, err := decimal.NewFromString(req.OriginalValue)
	if err != nil {
		return AssetInput{}, shared.Validationf("original_value", "must be a decimal number")
	}
	salvage := decimal.Zero
	if req.SalvageValue != "" {
		salvage, err = decimal.NewFromString(req.SalvageValue)
		if err != nil {
			return AssetInput{}, shared.Validationf("salvage_value", "must be a decimal number")
		}
	}
	return AssetInput{
		CompanyID:             req.CompanyID,
		Name:                  req.Name,
		Code:                  req.Code,
		PartnerID:             req.PartnerID,
		CurrencyID:            req.CurrencyID,
		AssetAccountID:        req.AssetAccountID,
		DepreciationAccountID: req.DepreciationAccountID,
		ExpenseAccountID:      req.ExpenseAccountID,
		JournalID:             req.JournalID,
		AcquisitionDate:       acquisition,
		FirstDepreciationDate: firstDep,
		OriginalValue:         original,
		SalvageValue:          salvage,
		Method:                DepreciationMethod(req.Method),
		MethodNumber:          req.MethodNumber,
		MethodPeriod:          req.MethodPeriod,
		Prorata:               req.Prorata,
		Note:                  req.Note,
	}, nil
}

func (h *Handler) decodeAsset(w http.ResponseWriter, r *http.Request) (AssetInput, bool) {
	var req assetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return AssetInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return AssetInput{}, false
	}
	input, err := req.toInput()
	if err != nil {
		httpx.RespondError(w, err)
		return AssetInput{}, false
	}
	return input, true
}

func (h *Handler) createAsset(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeAsset(w, r)
	if !ok {
		return
	}
	asset, err := h.service.CreateAsset(r.Context(), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, asset)
}

func (h *Handler) updateAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	input, ok := h.decodeAsset(w, r)
	if !ok {
		return
	}
	asset, err := h.service.UpdateAsset(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, asset)
}

func (h *Handler) computeBoard(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	asset, _, err := h.service.GetAsset(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	board, err := ComputeDepreciationBoard(asset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": board, "total": len(board)})
}

func (h *Handler) generateLines(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	stats, err := h.service.GenerateDepreciationLines(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) postLine(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil || lineID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid line id")
		return
	}
	stats, err := h.service.PostDepreciationLine(r.Context(), id, lineID)
	if err != nil {
		h.logger.Warn("post depreciation line rejected", slog.Int64("asset_id", id), slog.Int64("line_id", lineID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) setRunning(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.SetRunning)
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Pause)
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Resume)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Close)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, int64) (Asset, error)) {
	id, ok := assetID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	asset, err := op(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, asset)
}

func (h *Handler) showAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	asset, lines, err := h.service.GetAsset(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"asset": asset, "depreciation_lines": lines})
}

func (h *Handler) listAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filters AssetFilters
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("company_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filters.CompanyID = &id
		}
	}
	if v := q.Get("state"); v != "" {
		state := AssetState(v)
		filters.State = &state
	}
	assets, total, err := h.service.ListAssets(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": assets, "total": total})
}

func assetID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
