package shared

// CompanyRef is a named reference to a company-scoped record. A zero
// CompanyID means the reference is unset and is skipped.
type CompanyRef struct {
	Field     string
	CompanyID int64
}

// RequireSameCompany verifies that every supplied reference belongs to the
// given company. It is the single gate for the cross-company invariant; all
// entity validation paths call it instead of comparing IDs ad hoc.
func RequireSameCompany(companyID int64, refs ...CompanyRef) error {
	for _, ref := range refs {
		if ref.CompanyID == 0 {
			continue
		}
		if ref.CompanyID != companyID {
			return Validationf(ref.Field, "company mismatch: expected company %d, got %d", companyID, ref.CompanyID)
		}
	}
	return nil
}
