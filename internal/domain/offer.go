package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SellOffer is a resting offer on the sell book.
type SellOffer struct {
	ID               string
	AccountID        string
	Symbol           string
	Quantity         int64 // remaining
	OriginalQuantity int64
	Price            decimal.Decimal
	CreatedAt        time.Time
}

// Consumed reports whether any part of the offer has been bought.
func (o *SellOffer) Consumed() bool {
	return o.Quantity < o.OriginalQuantity
}

// OfferLess orders offers by price ascending, then created_at ascending,
// then id ascending. The first offer in this order is the best ask.
func OfferLess(a, b *SellOffer) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// PriceLevel is an aggregated price level of the sell book.
type PriceLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   int64           `json:"quantity"`
	OfferCount int             `json:"offer_count"`
}
