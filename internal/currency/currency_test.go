package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDecimals(t *testing.T) {
	require.EqualValues(t, 2, Decimals("USD"))
	require.EqualValues(t, 2, Decimals("ngn"))
	require.EqualValues(t, 0, Decimals("JPY"))
	require.EqualValues(t, 0, Decimals(" idr "))
	require.EqualValues(t, 3, Decimals("KWD"))
	require.EqualValues(t, 2, Decimals("ZZZ"))
}

func TestToMinor(t *testing.T) {
	require.EqualValues(t, 12345, ToMinor(decimal.RequireFromString("123.45"), "USD"))
	require.EqualValues(t, 12345, ToMinor(decimal.RequireFromString("12345"), "JPY"))
	require.EqualValues(t, 12345, ToMinor(decimal.RequireFromString("12.345"), "KWD"))
	require.EqualValues(t, 667, ToMinor(decimal.RequireFromString("6.666666"), "USD"))
}

func TestFromMinor(t *testing.T) {
	require.True(t, decimal.RequireFromString("123.45").Equal(FromMinor(12345, "USD")))
	require.True(t, decimal.RequireFromString("12345").Equal(FromMinor(12345, "IDR")))
	require.True(t, decimal.RequireFromString("12.345").Equal(FromMinor(12345, "BHD")))
}
