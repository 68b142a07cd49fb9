package shared_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline/internal/shared"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRound6RoundsHalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.0000005", "1.000001"},
		{"1.0000004", "1"},
		{"-1.0000005", "-1.000001"},
		{"0.33333333", "0.333333"},
		{"100", "100"},
	}
	for _, tc := range cases {
		require.True(t, shared.Round6(dec(tc.in)).Equal(dec(tc.want)),
			"Round6(%s) = %s, want %s", tc.in, shared.Round6(dec(tc.in)), tc.want)
	}
}

func TestDistributionValidate(t *testing.T) {
	full := shared.Distribution{
		{AnalyticAccountID: 1, Percent: dec("60")},
		{AnalyticAccountID: 2, Percent: dec("40")},
	}
	require.NoError(t, full.Validate())

	partial := shared.Distribution{{AnalyticAccountID: 1, Percent: dec("25.5")}}
	require.NoError(t, partial.Validate())

	require.NoError(t, shared.Distribution(nil).Validate())

	over := shared.Distribution{
		{AnalyticAccountID: 1, Percent: dec("70")},
		{AnalyticAccountID: 2, Percent: dec("40")},
	}
	require.True(t, shared.IsValidation(over.Validate()))

	dup := shared.Distribution{
		{AnalyticAccountID: 1, Percent: dec("30")},
		{AnalyticAccountID: 1, Percent: dec("30")},
	}
	require.True(t, shared.IsValidation(dup.Validate()))

	negative := shared.Distribution{{AnalyticAccountID: 1, Percent: dec("-10")}}
	require.True(t, shared.IsValidation(negative.Validate()))

	missingAccount := shared.Distribution{{AnalyticAccountID: 0, Percent: dec("10")}}
	require.True(t, shared.IsValidation(missingAccount.Validate()))
}

func TestDistributionApply(t *testing.T) {
	d := shared.Distribution{
		{AnalyticAccountID: 1, Percent: dec("33.33")},
		{AnalyticAccountID: 2, Percent: dec("66.67")},
	}
	portions := d.Apply(dec("100"))
	require.Len(t, portions, 2)
	require.True(t, portions[0].Equal(dec("33.33")))
	require.True(t, portions[1].Equal(dec("66.67")))

	// Thirds round at the stored precision rather than truncating.
	thirds := shared.Distribution{{AnalyticAccountID: 1, Percent: dec("33.333333")}}
	require.True(t, thirds.Apply(dec("1"))[0].Equal(dec("0.333333")))
}

func TestDistributionRoundTrip(t *testing.T) {
	d := shared.Distribution{{AnalyticAccountID: 7, Percent: dec("100")}}
	raw, err := d.Value()
	require.NoError(t, err)

	back, err := shared.ScanDistribution(raw)
	require.NoError(t, err)
	require.Equal(t, int64(7), back[0].AnalyticAccountID)
	require.True(t, back[0].Percent.Equal(dec("100")))

	empty, err := shared.Distribution(nil).Value()
	require.NoError(t, err)
	require.Equal(t, "[]", string(empty))

	none, err := shared.ScanDistribution(empty)
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestErrorTaxonomy(t *testing.T) {
	v := shared.Validationf("date", "date %s is locked", "2024-01-01")
	require.True(t, shared.IsValidation(v))
	require.Contains(t, v.Error(), "2024-01-01")

	c := shared.NewConflictError("move", "already posted", nil)
	require.True(t, shared.IsConflict(c))

	wrapped := errors.Join(errors.New("lookup move 4"), shared.ErrNotFound)
	require.ErrorIs(t, wrapped, shared.ErrNotFound)
	require.False(t, shared.IsValidation(wrapped))
}
