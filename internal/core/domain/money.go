package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// currencyExponents maps supported ISO 4217 codes to the number of minor-unit digits.
var currencyExponents = map[string]int32{
	"RUB": 2,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"KZT": 2,
	"BYN": 2,
	"UAH": 2,
	"CNY": 2,
	"CHF": 2,
	"JPY": 0,
	"KRW": 0,
}

// MaxAmount is the largest amount accepted in any currency. Its minor units fit
// in an int64 and in the stores' NUMERIC(20, 4) columns.
var MaxAmount = decimal.New(1, 12)

// NormalizeCurrency upper-cases and trims a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsSupportedCurrency reports whether the code is a currency the service settles.
func IsSupportedCurrency(code string) bool {
	_, ok := currencyExponents[code]
	return ok
}

// CurrencyExponent returns the minor-unit digits of a supported currency.
func CurrencyExponent(code string) int32 {
	exp, ok := currencyExponents[code]
	if !ok {
		return 2
	}
	return exp
}

// ValidateAmount checks that amount is positive, at most MaxAmount and not finer
// than the currency's minor unit.
func ValidateAmount(amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return NewInvalidAmountError(amount)
	}
	if amount.GreaterThan(MaxAmount) {
		return &DomainError{
			Code:    ErrCodeInvalidAmount,
			Message: "amount " + amount.String() + " exceeds the maximum of " + MaxAmount.String(),
		}
	}
	if !amount.Equal(amount.Truncate(CurrencyExponent(currency))) {
		return &DomainError{
			Code:    ErrCodeInvalidAmount,
			Message: "amount " + amount.String() + " has more precision than " + currency + " allows",
		}
	}
	return nil
}

// ToMinorUnits converts an amount to the currency's smallest unit (kopecks, cents).
// The amount must have passed ValidateAmount.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(CurrencyExponent(currency)).IntPart()
}

// FromMinorUnits converts a smallest-unit integer back to a decimal amount.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -CurrencyExponent(currency))
}

// FormatAmount renders an amount with exactly the currency's minor-unit digits, e.g. "1000.00".
func FormatAmount(amount decimal.Decimal, currency string) string {
	return amount.StringFixed(CurrencyExponent(currency))
}
