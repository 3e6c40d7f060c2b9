// Package currency maps ISO currency codes to their subunit exponent and
// converts between major-unit decimals and the minor-unit integers used by
// the payment provider. The exponent is looked up per currency; it is not
// uniformly two.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

// decimals lists currencies whose exponent is not 2.
var decimals = map[string]int32{
	"BIF": 0,
	"CLP": 0,
	"DJF": 0,
	"GNF": 0,
	"IDR": 0,
	"JPY": 0,
	"KMF": 0,
	"KRW": 0,
	"MGA": 0,
	"PYG": 0,
	"RWF": 0,
	"UGX": 0,
	"VND": 0,
	"VUV": 0,
	"XAF": 0,
	"XOF": 0,
	"XPF": 0,
	"BHD": 3,
	"IQD": 3,
	"JOD": 3,
	"KWD": 3,
	"OMR": 3,
	"TND": 3,
}

// Decimals returns the subunit exponent for a currency code. Unknown codes
// fall back to 2.
func Decimals(code string) int32 {
	if d, ok := decimals[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return d
	}
	return 2
}

// ToMinor converts a major-unit amount to the provider's minor-unit integer.
func ToMinor(amount decimal.Decimal, code string) int64 {
	return amount.Shift(Decimals(code)).Round(0).IntPart()
}

// FromMinor converts a provider minor-unit integer to a major-unit amount.
func FromMinor(minor int64, code string) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-Decimals(code))
}
