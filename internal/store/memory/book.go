package memory

import (
	"math"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
)

// sellBook keeps one symbol's offers in domain.OfferLess order. Min() is
// the best ask. Entries are the store's own offer records; the ordering
// keys (price, created_at, id) never change after insertion, so quantity
// updates happen in place.
type sellBook struct {
	offers *btree.BTreeG[*domain.SellOffer]
}

func newSellBook() *sellBook {
	const degree = 32
	return &sellBook{offers: btree.NewG[*domain.SellOffer](degree, domain.OfferLess)}
}

func (b *sellBook) insert(o *domain.SellOffer) {
	b.offers.ReplaceOrInsert(o)
}

func (b *sellBook) remove(o *domain.SellOffer) {
	b.offers.Delete(o)
}

// upTo calls fn for every offer priced at or below maxPrice, best first.
func (b *sellBook) upTo(maxPrice decimal.Decimal, fn func(*domain.SellOffer)) {
	b.offers.Ascend(func(o *domain.SellOffer) bool {
		if o.Price.GreaterThan(maxPrice) {
			return false
		}
		fn(o)
		return true
	})
}

// topLevels iterates the book in order and aggregates offers into at most
// n price levels. A level's quantity is capped at MaxInt64.
func (b *sellBook) topLevels(n int) []domain.PriceLevel {
	if n <= 0 {
		return []domain.PriceLevel{}
	}
	levels := make([]domain.PriceLevel, 0, n)
	b.offers.Ascend(func(o *domain.SellOffer) bool {
		if len(levels) > 0 && levels[len(levels)-1].Price.Equal(o.Price) {
			lvl := &levels[len(levels)-1]
			// Saturates at MaxInt64.
			if q, err := domain.AddShares(lvl.Quantity, o.Quantity); err == nil {
				lvl.Quantity = q
			} else {
				lvl.Quantity = math.MaxInt64
			}
			lvl.OfferCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, domain.PriceLevel{
			Price:      o.Price,
			Quantity:   o.Quantity,
			OfferCount: 1,
		})
		return true
	})
	return levels
}

func (b *sellBook) size() int {
	return b.offers.Len()
}
