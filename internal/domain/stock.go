package domain

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var symbolRegex = regexp.MustCompile(`^[A-Z]{1,10}$`)

// ValidSymbol reports whether s is a well-formed ticker symbol.
func ValidSymbol(s string) bool {
	return symbolRegex.MatchString(s)
}

// Stock is a tradable instrument. MarketPrice follows the last fill.
type Stock struct {
	Symbol      string
	Name        string
	MarketPrice decimal.Decimal
	Details     json.RawMessage
	UpdatedAt   time.Time
}
