package assets

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// AssetState is the asset lifecycle state.
type AssetState string

const (
	AssetStateDraft     AssetState = "draft"
	AssetStateRunning   AssetState = "running"
	AssetStatePaused    AssetState = "paused"
	AssetStateClosed    AssetState = "closed"
	AssetStateCancelled AssetState = "cancelled"
)

// DepreciationMethod selects the board formula.
type DepreciationMethod string

const (
	MethodLinear     DepreciationMethod = "linear"
	MethodDegressive DepreciationMethod = "degressive"
)

// Valid reports whether m is a known method.
func (m DepreciationMethod) Valid() bool {
	return m == MethodLinear || m == MethodDegressive
}

// LineState is the depreciation line state. Posting is one-way.
type LineState string

const (
	LineStateDraft  LineState = "draft"
	LineStatePosted LineState = "posted"
)

// Asset is a capitalized asset with its amortization configuration.
type Asset struct {
	ID                    int64              `json:"id"`
	CompanyID             int64              `json:"company_id"`
	Name                  string             `json:"name"`
	Code                  string             `json:"code"`
	PartnerID             *int64             `json:"partner_id"`
	CurrencyID            *int64             `json:"currency_id"`
	AssetAccountID        int64              `json:"asset_account_id"`
	DepreciationAccountID *int64             `json:"depreciation_account_id"`
	ExpenseAccountID      *int64             `json:"expense_account_id"`
	JournalID             *int64             `json:"journal_id"`
	AcquisitionDate       time.Time          `json:"acquisition_date"`
	FirstDepreciationDate *time.Time         `json:"first_depreciation_date"`
	OriginalValue         decimal.Decimal    `json:"original_value"`
	SalvageValue          decimal.Decimal    `json:"salvage_value"`
	Method                DepreciationMethod `json:"method"`
	MethodNumber          int                `json:"method_number"`
	MethodPeriod          int                `json:"method_period"`
	Prorata               bool               `json:"prorata"`
	State                 AssetState         `json:"state"`
	Note                  string             `json:"note"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// DepreciationLine is one installment of an asset's schedule.
type DepreciationLine struct {
	ID               int64           `json:"id"`
	AssetID          int64           `json:"asset_id"`
	MoveID           *int64          `json:"move_id"`
	Sequence         int             `json:"sequence"`
	Date             time.Time       `json:"date"`
	Amount           decimal.Decimal `json:"amount"`
	DepreciatedValue decimal.Decimal `json:"depreciated_value"`
	ResidualValue    decimal.Decimal `json:"residual_value"`
	State            LineState       `json:"state"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ScheduleLine is one computed board row, not yet persisted.
type ScheduleLine struct {
	Sequence         int             `json:"sequence"`
	Date             time.Time       `json:"date"`
	Amount           decimal.Decimal `json:"amount"`
	DepreciatedValue decimal.Decimal `json:"depreciated_value"`
	ResidualValue    decimal.Decimal `json:"residual_value"`
}

// AssetInput carries the editable fields of an asset.
type AssetInput struct {
	CompanyID             int64
	Name                  string
	Code                  string
	PartnerID             *int64
	CurrencyID            *int64
	AssetAccountID        int64
	DepreciationAccountID *int64
	ExpenseAccountID      *int64
	JournalID             *int64
	AcquisitionDate       time.Time
	FirstDepreciationDate *time.Time
	OriginalValue         decimal.Decimal
	SalvageValue          decimal.Decimal
	Method                DepreciationMethod
	MethodNumber          int
	MethodPeriod          int
	Prorata               bool
	Note                  string
}

// GenerateStats summarises a board regeneration.
type GenerateStats struct {
	Deleted           int             `json:"deleted"`
	Created           int             `json:"created"`
	TotalDepreciation decimal.Decimal `json:"total_depreciation"`
}

// PostLineStats summarises a posted depreciation line.
type PostLineStats struct {
	LineID   int64           `json:"line_id"`
	MoveID   int64           `json:"move_id"`
	Sequence int             `json:"sequence"`
	Amount   decimal.Decimal `json:"amount"`
	Date     time.Time       `json:"date"`
	State    LineState       `json:"state"`
}

// ComputeDepreciationBoard derives the full schedule without persisting
// anything. Every monetary value is rounded to stored precision at each
// step so the persisted board matches what reposting would produce.
func ComputeDepreciationBoard(asset Asset) ([]ScheduleLine, error) {
	if asset.OriginalValue.Sign() <= 0 {
		return nil, shared.Validationf("original_value", "original value must be positive")
	}
	if asset.SalvageValue.Sign() < 0 {
		return nil, shared.Validationf("salvage_value", "salvage value cannot be negative")
	}
	depreciable := shared.Round6(asset.OriginalValue.Sub(asset.SalvageValue))
	if depreciable.Sign() <= 0 {
		return nil, shared.Validationf("salvage_value", "nothing to depreciate: salvage value covers the original value")
	}
	if asset.MethodNumber <= 0 {
		return nil, shared.Validationf("method_number", "method number must be greater than zero")
	}

	start := asset.AcquisitionDate
	if asset.FirstDepreciationDate != nil {
		start = *asset.FirstDepreciationDate
	}

	lines := make([]ScheduleLine, 0, asset.MethodNumber)
	switch asset.Method {
	case MethodLinear:
		installment := shared.Round6(depreciable.Div(decimal.NewFromInt(int64(asset.MethodNumber))))
		depreciated := decimal.Zero
		for seq := 1; seq <= asset.MethodNumber; seq++ {
			amount := installment
			if seq == asset.MethodNumber {
				// Last installment absorbs rounding drift so the
				// schedule sums exactly to the depreciable base.
				amount = shared.Round6(depreciable.Sub(depreciated))
			}
			residual := shared.Round6(depreciable.Sub(depreciated).Sub(amount))
			if residual.Sign() < 0 {
				residual = decimal.Zero
			}
			lines = append(lines, ScheduleLine{
				Sequence:         seq,
				Date:             start.AddDate(0, asset.MethodPeriod*(seq-1), 0),
				Amount:           amount,
				DepreciatedValue: shared.Round6(depreciated),
				ResidualValue:    residual,
			})
			depreciated = depreciated.Add(amount)
		}
	case MethodDegressive:
		rate := shared.Round6(decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(asset.MethodNumber))))
		residual := depreciable
		depreciated := decimal.Zero
		for seq := 1; seq <= asset.MethodNumber; seq++ {
			var amount decimal.Decimal
			if seq == asset.MethodNumber {
				// Final period clears whatever is left.
				amount = shared.Round6(residual)
			} else {
				amount = shared.Round6(residual.Mul(rate))
			}
			residual = shared.Round6(residual.Sub(amount))
			if residual.Sign() < 0 {
				residual = decimal.Zero
			}
			lines = append(lines, ScheduleLine{
				Sequence:         seq,
				Date:             start.AddDate(0, asset.MethodPeriod*(seq-1), 0),
				Amount:           amount,
				DepreciatedValue: shared.Round6(depreciated),
				ResidualValue:    residual,
			})
			depreciated = depreciated.Add(amount)
		}
	default:
		return nil, shared.Validationf("method", "unknown depreciation method %q", asset.Method)
	}
	return lines, nil
}
