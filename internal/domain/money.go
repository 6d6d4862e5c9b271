package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places carried by every monetary value.
const MoneyScale = 2

// ParseMoney parses a decimal string and rejects values with more than
// two decimal places.
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid monetary value %q", s)
	}
	if err := CheckMoneyScale(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// CheckMoneyScale returns an error when d has more precision than cents.
// Trailing zeros are fine: 1.100 is the same amount as 1.10.
func CheckMoneyScale(d decimal.Decimal) error {
	if !d.Equal(d.Round(MoneyScale)) {
		return fmt.Errorf("monetary values must have at most 2 decimal places")
	}
	return nil
}

// Cost returns price × quantity.
func Cost(price decimal.Decimal, quantity int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(quantity))
}

// FormatMoney renders d with exactly two decimal places.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}
