package masterdata

import (
	"context"
	"strings"
	"time"

	xcurrency "golang.org/x/text/currency"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Service implements master data business logic on top of Repository.
type Service struct {
	repo Repository
}

// NewService creates a new master data service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Company operations

func (s *Service) ListCompanies(ctx context.Context, filters ListFilters) ([]Company, int, error) {
	return s.repo.ListCompanies(ctx, filters)
}

func (s *Service) GetCompany(ctx context.Context, id int64) (Company, error) {
	if id <= 0 {
		return Company{}, shared.Validationf("id", "invalid company ID")
	}
	return s.repo.GetCompany(ctx, id)
}

func (s *Service) CreateCompany(ctx context.Context, company Company) (Company, error) {
	if err := s.validateCompany(ctx, company); err != nil {
		return Company{}, err
	}
	return s.repo.CreateCompany(ctx, company)
}

func (s *Service) UpdateCompany(ctx context.Context, id int64, company Company) error {
	if id <= 0 {
		return shared.Validationf("id", "invalid company ID")
	}
	if err := s.validateCompany(ctx, company); err != nil {
		return err
	}
	return s.repo.UpdateCompany(ctx, id, company)
}

// SetCompanyLockDate sets or clears the fiscal lock date. Move posting rejects
// any move dated on or before this date.
func (s *Service) SetCompanyLockDate(ctx context.Context, id int64, lockDate *time.Time) error {
	if id <= 0 {
		return shared.Validationf("id", "invalid company ID")
	}
	if _, err := s.repo.GetCompany(ctx, id); err != nil {
		return err
	}
	return s.repo.SetCompanyLockDate(ctx, id, lockDate)
}

// Currency operations

func (s *Service) ListCurrencies(ctx context.Context, filters ListFilters) ([]Currency, int, error) {
	return s.repo.ListCurrencies(ctx, filters)
}

func (s *Service) CreateCurrency(ctx context.Context, cur Currency) (Currency, error) {
	code := strings.ToUpper(strings.TrimSpace(cur.Code))
	if _, err := xcurrency.ParseISO(code); err != nil {
		return Currency{}, shared.Validationf("code", "%q is not an ISO 4217 currency code", cur.Code)
	}
	cur.Code = code
	if strings.TrimSpace(cur.Name) == "" {
		return Currency{}, shared.Validationf("name", "currency name is required")
	}
	return s.repo.CreateCurrency(ctx, cur)
}

func (s *Service) ListCountries(ctx context.Context, filters ListFilters) ([]Country, int, error) {
	return s.repo.ListCountries(ctx, filters)
}

// Partner operations

func (s *Service) ListPartners(ctx context.Context, filters ListFilters) ([]Partner, int, error) {
	return s.repo.ListPartners(ctx, filters)
}

func (s *Service) GetPartner(ctx context.Context, id int64) (Partner, error) {
	if id <= 0 {
		return Partner{}, shared.Validationf("id", "invalid partner ID")
	}
	return s.repo.GetPartner(ctx, id)
}

func (s *Service) CreatePartner(ctx context.Context, partner Partner) (Partner, error) {
	if err := s.validatePartner(ctx, partner); err != nil {
		return Partner{}, err
	}
	return s.repo.CreatePartner(ctx, partner)
}

func (s *Service) UpdatePartner(ctx context.Context, id int64, partner Partner) error {
	if id <= 0 {
		return shared.Validationf("id", "invalid partner ID")
	}
	if err := s.validatePartner(ctx, partner); err != nil {
		return err
	}
	return s.repo.UpdatePartner(ctx, id, partner)
}

func (s *Service) DeletePartner(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Validationf("id", "invalid partner ID")
	}
	return s.repo.DeletePartner(ctx, id)
}

// Account operations

func (s *Service) ListAccounts(ctx context.Context, filters ListFilters) ([]Account, int, error) {
	return s.repo.ListAccounts(ctx, filters)
}

func (s *Service) GetAccount(ctx context.Context, id int64) (Account, error) {
	if id <= 0 {
		return Account{}, shared.Validationf("id", "invalid account ID")
	}
	return s.repo.GetAccount(ctx, id)
}

func (s *Service) CreateAccount(ctx context.Context, account Account) (Account, error) {
	if err := s.validateAccount(ctx, account); err != nil {
		return Account{}, err
	}
	return s.repo.CreateAccount(ctx, account)
}

// UpdateAccount rejects changes to company, code, or account type once any
// move line references the account.
func (s *Service) UpdateAccount(ctx context.Context, id int64, account Account) error {
	if id <= 0 {
		return shared.Validationf("id", "invalid account ID")
	}
	if err := s.validateAccount(ctx, account); err != nil {
		return err
	}
	existing, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if existing.CompanyID != account.CompanyID || existing.Code != account.Code || existing.Type != account.Type {
		referenced, err := s.repo.AccountHasMoveLines(ctx, id)
		if err != nil {
			return err
		}
		if referenced {
			return shared.Validationf("account", "company, code, and account type are frozen once the account has move lines")
		}
	}
	return s.repo.UpdateAccount(ctx, id, account)
}

func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Validationf("id", "invalid account ID")
	}
	return s.repo.DeleteAccount(ctx, id)
}

// Journal operations

func (s *Service) ListJournals(ctx context.Context, filters ListFilters) ([]Journal, int, error) {
	return s.repo.ListJournals(ctx, filters)
}

func (s *Service) GetJournal(ctx context.Context, id int64) (Journal, error) {
	if id <= 0 {
		return Journal{}, shared.Validationf("id", "invalid journal ID")
	}
	return s.repo.GetJournal(ctx, id)
}

func (s *Service) CreateJournal(ctx context.Context, journal Journal) (Journal, error) {
	if err := s.validateJournal(ctx, journal); err != nil {
		return Journal{}, err
	}
	return s.repo.CreateJournal(ctx, journal)
}

func (s *Service) UpdateJournal(ctx context.Context, id int64, journal Journal) error {
	if id <= 0 {
		return shared.Validationf("id", "invalid journal ID")
	}
	if err := s.validateJournal(ctx, journal); err != nil {
		return err
	}
	return s.repo.UpdateJournal(ctx, id, journal)
}

func (s *Service) DeleteJournal(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Validationf("id", "invalid journal ID")
	}
	return s.repo.DeleteJournal(ctx, id)
}

// Tax operations

func (s *Service) ListTaxes(ctx context.Context, filters ListFilters) ([]Tax, int, error) {
	return s.repo.ListTaxes(ctx, filters)
}

func (s *Service) GetTax(ctx context.Context, id int64) (Tax, error) {
	if id <= 0 {
		return Tax{}, shared.Validationf("id", "invalid tax ID")
	}
	return s.repo.GetTax(ctx, id)
}

func (s *Service) CreateTax(ctx context.Context, tax Tax) (Tax, error) {
	if err := s.validateTax(ctx, tax); err != nil {
		return Tax{}, err
	}
	return s.repo.CreateTax(ctx, tax)
}

func (s *Service) UpdateTax(ctx context.Context, id int64, tax Tax) error {
	if id <= 0 {
		return shared.Validationf("id", "invalid tax ID")
	}
	if err := s.validateTax(ctx, tax); err != nil {
		return err
	}
	return s.repo.UpdateTax(ctx, id, tax)
}

func (s *Service) DeleteTax(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.Validationf("id", "invalid tax ID")
	}
	return s.repo.DeleteTax(ctx, id)
}

// Analytic operations

func (s *Service) ListAnalyticAccounts(ctx context.Context, filters ListFilters) ([]AnalyticAccount, int, error) {
	return s.repo.ListAnalyticAccounts(ctx, filters)
}

func (s *Service) CreateAnalyticAccount(ctx context.Context, account AnalyticAccount) (AnalyticAccount, error) {
	if err := s.validateAnalyticAccount(ctx, account); err != nil {
		return AnalyticAccount{}, err
	}
	return s.repo.CreateAnalyticAccount(ctx, account)
}

func (s *Service) UpdateAnalyticAccount(ctx context.Context, id int64, account AnalyticAccount) error {
	if id <= 0 {
		return shared.Validationf("id", "invalid analytic account ID")
	}
	if err := s.validateAnalyticAccount(ctx, account); err != nil {
		return err
	}
	return s.repo.UpdateAnalyticAccount(ctx, id, account)
}

func (s *Service) CreateAnalyticPlan(ctx context.Context, plan AnalyticPlan) (AnalyticPlan, error) {
	if plan.CompanyID <= 0 {
		return AnalyticPlan{}, shared.Validationf("company_id", "company ID is required")
	}
	if strings.TrimSpace(plan.Name) == "" {
		return AnalyticPlan{}, shared.Validationf("name", "plan name is required")
	}
	return s.repo.CreateAnalyticPlan(ctx, plan)
}

// Settings

func (s *Service) GetSettings(ctx context.Context, companyID int64) (AccountingSettings, error) {
	if companyID <= 0 {
		return AccountingSettings{}, shared.Validationf("company_id", "invalid company ID")
	}
	return s.repo.GetSettings(ctx, companyID)
}

func (s *Service) UpsertSettings(ctx context.Context, settings AccountingSettings) (AccountingSettings, error) {
	if settings.CompanyID <= 0 {
		return AccountingSettings{}, shared.Validationf("company_id", "company ID is required")
	}
	if settings.TransferAccountID != nil {
		account, err := s.repo.GetAccount(ctx, *settings.TransferAccountID)
		if err != nil {
			return AccountingSettings{}, err
		}
		if err := shared.RequireSameCompany(settings.CompanyID, shared.CompanyRef{Field: "transfer_account_id", CompanyID: account.CompanyID}); err != nil {
			return AccountingSettings{}, err
		}
	}
	return s.repo.UpsertSettings(ctx, settings)
}

// Validation helpers

func (s *Service) validateCompany(ctx context.Context, company Company) error {
	if strings.TrimSpace(company.Code) == "" {
		return shared.Validationf("code", "company code is required")
	}
	if strings.TrimSpace(company.Name) == "" {
		return shared.Validationf("name", "company name is required")
	}
	if company.CurrencyID <= 0 {
		return shared.Validationf("currency_id", "currency is required")
	}
	if _, err := s.repo.GetCurrency(ctx, company.CurrencyID); err != nil {
		return err
	}
	return nil
}

func (s *Service) validatePartner(ctx context.Context, partner Partner) error {
	if partner.CompanyID <= 0 {
		return shared.Validationf("company_id", "company ID is required")
	}
	if strings.TrimSpace(partner.Name) == "" {
		return shared.Validationf("name", "partner name is required")
	}
	if partner.StateID != nil {
		if partner.CountryID == nil {
			return shared.Validationf("state_id", "state requires a country")
		}
		state, err := s.repo.GetState(ctx, *partner.StateID)
		if err != nil {
			return err
		}
		if state.CountryID != *partner.CountryID {
			return shared.Validationf("state_id", "state does not belong to the selected country")
		}
	}
	if partner.CityID != nil {
		if partner.StateID == nil {
			return shared.Validationf("city_id", "city requires a state")
		}
		city, err := s.repo.GetCity(ctx, *partner.CityID)
		if err != nil {
			return err
		}
		if city.StateID != *partner.StateID {
			return shared.Validationf("city_id", "city does not belong to the selected state")
		}
	}
	return nil
}

func (s *Service) validateAccount(ctx context.Context, account Account) error {
	if account.CompanyID <= 0 {
		return shared.Validationf("company_id", "company ID is required")
	}
	if strings.TrimSpace(account.Code) == "" {
		return shared.Validationf("code", "account code is required")
	}
	if strings.TrimSpace(account.Name) == "" {
		return shared.Validationf("name", "account name is required")
	}
	if !account.Type.Valid() {
		return shared.Validationf("account_type", "unknown account type %q", account.Type)
	}
	return nil
}

func (s *Service) validateJournal(ctx context.Context, journal Journal) error {
	if journal.CompanyID <= 0 {
		return shared.Validationf("company_id", "company ID is required")
	}
	if strings.TrimSpace(journal.Code) == "" {
		return shared.Validationf("code", "journal code is required")
	}
	if strings.TrimSpace(journal.Name) == "" {
		return shared.Validationf("name", "journal name is required")
	}
	if !journal.Type.Valid() {
		return shared.Validationf("journal_type", "unknown journal type %q", journal.Type)
	}
	if journal.DefaultAccountID != nil {
		account, err := s.repo.GetAccount(ctx, *journal.DefaultAccountID)
		if err != nil {
			return err
		}
		if err := shared.RequireSameCompany(journal.CompanyID, shared.CompanyRef{Field: "default_account_id", CompanyID: account.CompanyID}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validateTax(ctx context.Context, tax Tax) error {
	if tax.CompanyID <= 0 {
		return shared.Validationf("company_id", "company ID is required")
	}
	if strings.TrimSpace(tax.Name) == "" {
		return shared.Validationf("name", "tax name is required")
	}
	if !tax.AmountType.Valid() {
		return shared.Validationf("amount_type", "unknown amount type %q", tax.AmountType)
	}
	if tax.Amount.IsNegative() {
		return shared.Validationf("amount", "tax amount cannot be negative")
	}
	if tax.AmountType == TaxAmountDivision && tax.Amount.GreaterThanOrEqual(hundred) {
		return shared.Validationf("amount", "division tax rate must be below 100")
	}
	if tax.AccountID != nil {
		account, err := s.repo.GetAccount(ctx, *tax.AccountID)
		if err != nil {
			return err
		}
		if err := shared.RequireSameCompany(tax.CompanyID, shared.CompanyRef{Field: "account_id", CompanyID: account.CompanyID}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validateAnalyticAccount(ctx context.Context, account AnalyticAccount) error {
	if account.CompanyID <= 0 {
		return shared.Validationf("company_id", "company ID is required")
	}
	if strings.TrimSpace(account.Name) == "" {
		return shared.Validationf("name", "analytic account name is required")
	}
	if account.PlanID <= 0 {
		return shared.Validationf("plan_id", "analytic plan is required")
	}
	plan, err := s.repo.GetAnalyticPlan(ctx, account.PlanID)
	if err != nil {
		return err
	}
	return shared.RequireSameCompany(account.CompanyID, shared.CompanyRef{Field: "plan_id", CompanyID: plan.CompanyID})
}
