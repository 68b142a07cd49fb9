package masterdata

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
)

// ChartApplier installs chart templates transactionally.
type ChartApplier interface {
	ApplyChart(ctx context.Context, companyID, countryID int64) (ChartApplyStats, error)
}

// Handler manages master data endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	chart    ChartApplier
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, chart ChartApplier) *Handler {
	return &Handler{logger: logger, service: service, chart: chart, validate: validator.New()}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/companies", h.listCompanies)
	r.Get("/companies/{id}", h.showCompany)
	r.Post("/companies", h.createCompany)
	r.Put("/companies/{id}", h.updateCompany)
	r.Put("/companies/{id}/lock-date", h.setLockDate)
	r.Post("/companies/{id}/apply-chart-template", h.applyChartTemplate)

	r.Get("/currencies", h.listCurrencies)
	r.Post("/currencies", h.createCurrency)
	r.Get("/countries", h.listCountries)

	r.Get("/partners", h.listPartners)
	r.Get("/partners/{id}", h.showPartner)
	r.Post("/partners", h.createPartner)
	r.Put("/partners/{id}", h.updatePartner)
	r.Delete("/partners/{id}", h.deletePartner)

	r.Get("/accounts", h.listAccounts)
	r.Get("/accounts/{id}", h.showAccount)
	r.Post("/accounts", h.createAccount)
	r.Put("/accounts/{id}", h.updateAccount)
	r.Delete("/accounts/{id}", h.deleteAccount)

	r.Get("/journals", h.listJournals)
	r.Post("/journals", h.createJournal)
	r.Put("/journals/{id}", h.updateJournal)
	r.Delete("/journals/{id}", h.deleteJournal)

	r.Get("/taxes", h.listTaxes)
	r.Post("/taxes", h.createTax)
	r.Put("/taxes/{id}", h.updateTax)
	r.Delete("/taxes/{id}", h.deleteTax)

	r.Get("/analytic-accounts", h.listAnalyticAccounts)
	r.Post("/analytic-accounts", h.createAnalyticAccount)
	r.Post("/analytic-plans", h.createAnalyticPlan)

	r.Get("/settings/{companyID}", h.showSettings)
	r.Put("/settings/{companyID}", h.upsertSettings)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func filtersFromQuery(r *http.Request) ListFilters {
	q := r.URL.Query()
	var filters ListFilters
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	filters.Search = q.Get("search")
	if v := q.Get("company_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filters.CompanyID = &id
		}
	}
	if v := q.Get("is_active"); v != "" {
		active := v == "true" || v == "1"
		filters.IsActive = &active
	}
	return filters
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// Companies

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.service.ListCompanies(r.Context(), filtersFromQuery(r))
	if err != nil {
		h.logger.Error("list companies", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Company]{Items: items, Total: total})
}

func (h *Handler) showCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid company id")
		return
	}
	company, err := h.service.GetCompany(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, company)
}

type companyRequest struct {
	Code       string `json:"code" validate:"required"`
	Name       string `json:"name" validate:"required"`
	CurrencyID int64  `json:"currency_id" validate:"required,gt=0"`
	CountryID  *int64 `json:"country_id"`
}

func (h *Handler) createCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	company, err := h.service.CreateCompany(r.Context(), Company{Code: req.Code, Name: req.Name, CurrencyID: req.CurrencyID, CountryID: req.CountryID})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, company)
}

func (h *Handler) updateCompany(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid company id")
		return
	}
	var req companyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateCompany(r.Context(), id, Company{Code: req.Code, Name: req.Name, CurrencyID: req.CurrencyID, CountryID: req.CountryID}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

type lockDateRequest struct {
	LockDate *string `json:"lock_date"` // YYYY-MM-DD, null clears
}

func (h *Handler) setLockDate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid company id")
		return
	}
	var req lockDateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	var lockDate *time.Time
	if req.LockDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.LockDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "lock_date must be YYYY-MM-DD")
			return
		}
		lockDate = &parsed
	}
	if err := h.service.SetCompanyLockDate(r.Context(), id, lockDate); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

type applyChartRequest struct {
	CountryID int64 `json:"country_id" validate:"required,gt=0"`
}

func (h *Handler) applyChartTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid company id")
		return
	}
	var req applyChartRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	stats, err := h.chart.ApplyChart(r.Context(), id, req.CountryID)
	if err != nil {
		h.logger.Error("apply chart template", slog.Int64("company_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

// Currencies and countries

func (h *Handler) listCurrencies(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.service.ListCurrencies(r.Context(), filtersFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Currency]{Items: items, Total: total})
}

type currencyRequest struct {
	Code   string `json:"code" validate:"required,len=3"`
	Name   string `json:"name" validate:"required"`
	Symbol string `json:"symbol"`
}

func (h *Handler) createCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	currency, err := h.service.CreateCurrency(r.Context(), Currency{Code: req.Code, Name: req.Name, Symbol: req.Symbol})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, currency)
}

func (h *Handler) listCountries(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.service.ListCountries(r.Context(), filtersFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Country]{Items: items, Total: total})
}

// Partners

func (h *Handler) listPartners(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.service.ListPartners(r.Context(), filtersFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Partner]{Items: items, Total: total})
}

func (h *Handler) showPartner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid partner id")
		return
	}
	partner, err := h.service.GetPartner(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, partner)
}

type partnerRequest struct {
	CompanyID int64  `json:"company_id" validate:"required,gt=0"`
	Code      string `json:"code"`
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone"`
	CountryID *int64 `json:"country_id"`
	StateID   *int64 `json:"state_id"`
	CityID    *int64 `json:"city_id"`
	IsActive  *bool  `json:"is_active"`
}

func (req partnerRequest) toPartner() Partner {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Partner{
		CompanyID: req.CompanyID,
		Code:      req.Code,
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		CountryID: req.CountryID,
		StateID:   req.StateID,
		CityID:    req.CityID,
		IsActive:  active,
	}
}

func (h *Handler) createPartner(w http.ResponseWriter, r *http.Request) {
	var req partnerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	partner, err := h.service.CreatePartner(r.Context(), req.toPartner())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, partner)
}

func (h *Handler) updatePartner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid partner id")
		return
	}
	var req partnerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdatePartner(r.Context(), id, req.toPartner()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) deletePartner(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid partner id")
		return
	}
	if err := h.service.DeletePartner(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accounts

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.service.ListAccounts(r.Context(), filtersFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Account]{Items: items, Total: total})
}

func (h *Handler) showAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

type accountRequest struct {
	CompanyID  int64  `json:"company_id" validate:"required,gt=0"`
	Code       string `json:"code" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Type       string `json:"account_type" validate:"required"`
	RootID     *int64 `json:"root_id"`
	GroupID    *int64 `json:"group_id"`
	CurrencyID *int64 `json:"currency_id"`
	Reconcile  bool   `json:"reconcile"`
	Deprecated bool   `json:"deprecated"`
}

func (req accountRequest) toAccount() Account {
	return Account{
		CompanyID:  req.CompanyID,
		Code:       req.Code,
		Name:       req.Name,
		Type:       AccountType(req.Type),
		RootID:     req.RootID,
		GroupID:    req.GroupID,
		CurrencyID: req.CurrencyID,
		Reconcile:  req.Reconcile,
		Deprecated: req.Deprecated,
	}
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.CreateAccount(r.Context(), req.toAccount())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateAccount(r.Context(), id, req.toAccount()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	if err := h.service.DeleteAccount(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Journals

func (h *Handler) listJournals(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.service.ListJournals(r.Context(), filtersFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Journal]{Items: items, Total: total})
}

type journalRequest struct {
	CompanyID        int64  `json:"company_id" validate:"required,gt=0"`
	Code             string `json:"code" validate:"required"`
	Name             string `json:"name" validate:"required"`
	Type             string `json:"journal_type" validate:"required"`
	DefaultAccountID *int64 `json:"default_account_id"`
}

func (h *Handler) createJournal(w http.ResponseWriter, r *http.Request) {
	var req journalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	journal, err := h.service.CreateJournal(r.Context(), Journal{
		CompanyID: req.CompanyID, Code: req.Code, Name: req.Name,
		Type: JournalType(req.Type), DefaultAccountID: req.DefaultAccountID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, journal)
}

func (h *Handler) updateJournal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid journal id")
		return
	}
	var req journalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateJournal(r.Context(), id, Journal{
		CompanyID: req.CompanyID, Code: req.Code, Name: req.Name,
		Type: JournalType(req.Type), DefaultAccountID: req.DefaultAccountID,
	}); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) deleteJournal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid journal id")
		return
	}
	if err := h.service.DeleteJournal(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Taxes

func (h *Handler) listTaxes(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.service.ListTaxes(r.Context(), filtersFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Tax]{Items: items, Total: total})
}

type taxRequest struct {
	CompanyID  int64  `json:"company_id" validate:"required,gt=0"`
	Name       string `json:"name" validate:"required"`
	AmountType string `json:"amount_type" validate:"required"`
	Amount     string `json:"amount" validate:"required"`
	TypeTaxUse string `json:"type_tax_use"`
	TaxGroupID *int64 `json:"tax_group_id"`
	AccountID  *int64 `json:"account_id"`
	Active     *bool  `json:"active"`
}

func (req taxRequest) toTax() (Tax, error) {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return Tax{}, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return Tax{
		CompanyID:  req.CompanyID,
		Name:       req.Name,
		AmountType: TaxAmountType(req.AmountType),
		Amount:     amount,
		TypeTaxUse: req.TypeTaxUse,
		TaxGroupID: req.TaxGroupID,
		AccountID:  req.AccountID,
		Active:     active,
	}, nil
}

func (h *Handler) createTax(w http.ResponseWriter, r *http.Request) {
	var req taxRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tax, err := req.toTax()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}
	created, err := h.service.CreateTax(r.Context(), tax)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateTax(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid tax id")
		return
	}
	var req taxRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tax, err := req.toTax()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal number")
		return
	}
	if err := h.service.UpdateTax(r.Context(), id, tax); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) deleteTax(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid tax id")
		return
	}
	if err := h.service.DeleteTax(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Analytics

func (h *Handler) listAnalyticAccounts(w http.ResponseWriter, r *http.Request) {
	items, total, err := h.service.ListAnalyticAccounts(r.Context(), filtersFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[AnalyticAccount]{Items: items, Total: total})
}

type analyticAccountRequest struct {
	CompanyID int64  `json:"company_id" validate:"required,gt=0"`
	PlanID    int64  `json:"plan_id" validate:"required,gt=0"`
	Code      string `json:"code"`
	Name      string `json:"name" validate:"required"`
	Active    *bool  `json:"active"`
}

func (h *Handler) createAnalyticAccount(w http.ResponseWriter, r *http.Request) {
	var req analyticAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	account, err := h.service.CreateAnalyticAccount(r.Context(), AnalyticAccount{
		CompanyID: req.CompanyID, PlanID: req.PlanID, Code: req.Code, Name: req.Name, Active: active,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

type analyticPlanRequest struct {
	CompanyID int64  `json:"company_id" validate:"required,gt=0"`
	Name      string `json:"name" validate:"required"`
}

func (h *Handler) createAnalyticPlan(w http.ResponseWriter, r *http.Request) {
	var req analyticPlanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	plan, err := h.service.CreateAnalyticPlan(r.Context(), AnalyticPlan{CompanyID: req.CompanyID, Name: req.Name})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, plan)
}

// Settings

func (h *Handler) showSettings(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "companyID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid company id")
		return
	}
	settings, err := h.service.GetSettings(r.Context(), companyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

type settingsRequest struct {
	TransferAccountID   *int64 `json:"transfer_account_id"`
	FiscalYearLastDay   int    `json:"fiscal_year_last_day" validate:"omitempty,min=1,max=31"`
	FiscalYearLastMonth int    `json:"fiscal_year_last_month" validate:"omitempty,min=1,max=12"`
}

func (h *Handler) upsertSettings(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(r, "companyID")
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid company id")
		return
	}
	var req settingsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if req.FiscalYearLastDay == 0 {
		req.FiscalYearLastDay = 31
	}
	if req.FiscalYearLastMonth == 0 {
		req.FiscalYearLastMonth = 12
	}
	settings, err := h.service.UpsertSettings(r.Context(), AccountingSettings{
		CompanyID:           companyID,
		TransferAccountID:   req.TransferAccountID,
		FiscalYearLastDay:   req.FiscalYearLastDay,
		FiscalYearLastMonth: req.FiscalYearLastMonth,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}
