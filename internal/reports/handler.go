package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/ledgerline/internal/platform/httpx"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Handler exposes the financial reports over HTTP. All endpoints are
// read-only GETs driven by query parameters.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balance-sheet", h.balanceSheet)
	r.Get("/profit-and-loss", h.profitAndLoss)
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/general-ledger", h.generalLedger)
}

func queryCompany(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validationf("company_id", "company_id is required")
	}
	return id, nil
}

func queryDate(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, shared.Validationf(key, "%s is required", key)
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, shared.Validationf(key, "must be YYYY-MM-DD")
	}
	return date, nil
}

// queryBool defaults to def when the parameter is absent.
func queryBool(r *http.Request, key string, def bool) bool {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return value
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryCompany(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dateTo, err := queryDate(r, "date_to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.BalanceSheet(r.Context(), BalanceSheetOptions{
		CompanyID:                  companyID,
		DateTo:                     dateTo,
		PostedOnly:                 queryBool(r, "posted_only", true),
		IncludeCurrentYearEarnings: queryBool(r, "include_current_year_earnings", true),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryCompany(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dateFrom, err := queryDate(r, "date_from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dateTo, err := queryDate(r, "date_to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.ProfitAndLoss(r.Context(), ProfitAndLossOptions{
		CompanyID:  companyID,
		DateFrom:   dateFrom,
		DateTo:     dateTo,
		PostedOnly: queryBool(r, "posted_only", true),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryCompany(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dateFrom, err := queryDate(r, "date_from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dateTo, err := queryDate(r, "date_to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.TrialBalance(r.Context(), TrialBalanceOptions{
		CompanyID:     companyID,
		DateFrom:      dateFrom,
		DateTo:        dateTo,
		PostedOnly:    queryBool(r, "posted_only", true),
		HideZeroLines: queryBool(r, "hide_zero_lines", false),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) generalLedger(w http.ResponseWriter, r *http.Request) {
	companyID, err := queryCompany(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dateFrom, err := queryDate(r, "date_from")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	dateTo, err := queryDate(r, "date_to")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	opts := GeneralLedgerOptions{
		CompanyID:     companyID,
		DateFrom:      dateFrom,
		DateTo:        dateTo,
		PostedOnly:    queryBool(r, "posted_only", true),
		HideZeroLines: queryBool(r, "hide_zero_lines", false),
	}
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
			return
		}
		opts.AccountID = &id
	}
	report, err := h.service.GeneralLedger(r.Context(), opts)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
