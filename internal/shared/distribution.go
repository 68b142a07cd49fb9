package shared

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// DistributionEntry allocates a percentage of a ledger line to one analytic
// account.
type DistributionEntry struct {
	AnalyticAccountID int64           `json:"analytic_account_id"`
	Percent           decimal.Decimal `json:"percent"`
}

// Distribution is an ordered analytic percentage split. An empty distribution
// means the line carries no analytic dimension; a non-empty one must sum to a
// value in (0, 100].
type Distribution []DistributionEntry

// Sum returns the total allocated percentage.
func (d Distribution) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, entry := range d {
		total = total.Add(entry.Percent)
	}
	return total
}

// Validate enforces per-entry and aggregate bounds.
func (d Distribution) Validate() error {
	if len(d) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(d))
	for _, entry := range d {
		if entry.AnalyticAccountID == 0 {
			return NewValidationError("analytic_distribution", "analytic account is required")
		}
		if _, dup := seen[entry.AnalyticAccountID]; dup {
			return Validationf("analytic_distribution", "duplicate analytic account %d", entry.AnalyticAccountID)
		}
		seen[entry.AnalyticAccountID] = struct{}{}
		if entry.Percent.LessThanOrEqual(decimal.Zero) {
			return Validationf("analytic_distribution", "percent must be positive for analytic account %d", entry.AnalyticAccountID)
		}
	}
	sum := d.Sum()
	if sum.LessThanOrEqual(decimal.Zero) || sum.GreaterThan(decimal.NewFromInt(100)) {
		return Validationf("analytic_distribution", "total percent %s must be in (0, 100]", sum.String())
	}
	return nil
}

// Contains reports whether the distribution touches the analytic account.
func (d Distribution) Contains(analyticAccountID int64) bool {
	for _, entry := range d {
		if entry.AnalyticAccountID == analyticAccountID {
			return true
		}
	}
	return false
}

// Apply splits amount across the entries, rounding each portion to the
// stored precision.
func (d Distribution) Apply(amount decimal.Decimal) []decimal.Decimal {
	portions := make([]decimal.Decimal, len(d))
	for i, entry := range d {
		portions[i] = Round6(amount.Mul(entry.Percent).Div(decimal.NewFromInt(100)))
	}
	return portions
}

// Value serialises for a jsonb column.
func (d Distribution) Value() ([]byte, error) {
	if len(d) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(d)
}

// ScanDistribution parses a jsonb column value.
func ScanDistribution(raw []byte) (Distribution, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var d Distribution
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	if len(d) == 0 {
		return nil, nil
	}
	return d, nil
}
