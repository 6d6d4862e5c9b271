package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Account is a participant's cash position.
type Account struct {
	ID        string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Holding is an account's position in a single stock.
type Holding struct {
	AccountID    string
	Symbol       string
	Quantity     int64 // owned and not listed for sale
	SoldQuantity int64 // listed on the sell book, awaiting a buyer
	PurchaseDate time.Time
	UpdatedAt    time.Time
}

// Owned returns every share the account still owns, listed or not.
func (h *Holding) Owned() int64 {
	return h.Quantity + h.SoldQuantity
}

// AddShares returns a + b for non-negative share counts, or
// ErrPositionLimitExceeded when the sum does not fit in an int64.
func AddShares(a, b int64) (int64, error) {
	if b > math.MaxInt64-a {
		return 0, ErrPositionLimitExceeded
	}
	return a + b, nil
}

// CanAcquire reports whether quantity more shares fit in the position
// without overflowing what it owns.
func (h *Holding) CanAcquire(quantity int64) bool {
	_, err := AddShares(h.Owned(), quantity)
	return err == nil
}
