package shared

import "github.com/shopspring/decimal"

// MoneyPlaces is the stored monetary precision. Monetary columns keep six
// fractional digits, and every intermediate amount is rounded to that
// precision, not just the final result, so computed schedules match what the
// store hands back.
const MoneyPlaces = 6

func init() {
	// Guard long divisions (percent splits, degressive rates) from
	// truncating before Round6 applies.
	if decimal.DivisionPrecision < 12 {
		decimal.DivisionPrecision = 12
	}
}

// Round6 rounds half-up (ties away from zero) to the stored precision.
func Round6(v decimal.Decimal) decimal.Decimal {
	return v.Round(MoneyPlaces)
}
