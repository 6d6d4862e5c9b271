package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/store"
)

// Fill is one slice of a buy taken from a single offer at the offer's price.
type Fill struct {
	Offer    *domain.SellOffer
	Quantity int64
}

// Price returns the execution price of the fill.
func (f Fill) Price() decimal.Decimal {
	return f.Offer.Price
}

// Cost returns price × quantity for the fill.
func (f Fill) Cost() decimal.Decimal {
	return domain.Cost(f.Offer.Price, f.Quantity)
}

// MatchResult is the outcome of a settled buy.
type MatchResult struct {
	Symbol        string
	Fills         []Fill
	TotalQuantity int64
	TotalCost     decimal.Decimal
	BuyerTrades   []*domain.Trade
	SellerTrades  []*domain.Trade
	ExecutedAt    time.Time
}

// AveragePrice returns TotalCost / TotalQuantity rounded to cents.
func (r *MatchResult) AveragePrice() decimal.Decimal {
	if r.TotalQuantity == 0 {
		return decimal.Zero
	}
	return r.TotalCost.DivRound(decimal.NewFromInt(r.TotalQuantity), domain.MoneyScale)
}

// PlanFills walks offers in the given order and takes
// min(offer remaining, still wanted) from each until quantity is covered.
// It fails with ErrInsufficientLiquidity, without planning anything, when
// the offers together hold fewer than quantity shares.
func PlanFills(offers []*domain.SellOffer, quantity int64) ([]Fill, error) {
	var available int64
	for _, o := range offers {
		if available >= quantity {
			break
		}
		if o.Quantity > 0 {
			// available < quantity here, so the sum fits in an int64.
			available += min(o.Quantity, quantity-available)
		}
	}
	if available < quantity {
		return nil, domain.ErrInsufficientLiquidity
	}

	fills := make([]Fill, 0)
	remaining := quantity
	for _, o := range offers {
		if remaining == 0 {
			break
		}
		if o.Quantity <= 0 {
			continue
		}
		take := min(o.Quantity, remaining)
		fills = append(fills, Fill{Offer: o, Quantity: take})
		remaining -= take
	}
	return fills, nil
}

// Matcher fills incoming buys against the sell book.
type Matcher struct {
	book    *SellBook
	settler *Settler
}

// Match buys quantity shares of symbol for buyerID, paying at most maxPrice
// per share. Either the whole quantity is filled and settled or nothing
// changes.
func (m *Matcher) Match(ctx context.Context, tx store.Tx, buyerID, symbol string, quantity int64, maxPrice decimal.Decimal, now time.Time) (*MatchResult, error) {
	if quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	if !maxPrice.IsPositive() {
		return nil, &domain.ValidationError{Message: "price must be greater than 0"}
	}
	if _, err := tx.GetStock(ctx, symbol); err != nil {
		return nil, err
	}

	offers, err := m.book.Matchable(ctx, tx, symbol, maxPrice)
	if err != nil {
		return nil, err
	}
	fills, planErr := PlanFills(offers, quantity)

	// No account row may be read before this: buyer and sellers are locked
	// together in ascending id order.
	if err := tx.LockAccounts(ctx, participants(buyerID, fills)); err != nil {
		return nil, fmt.Errorf("lock accounts: %w", err)
	}
	if _, err := tx.GetAccount(ctx, buyerID); err != nil {
		return nil, err
	}
	if planErr != nil {
		return nil, planErr
	}
	return m.settler.Settle(ctx, tx, buyerID, symbol, fills, now)
}
