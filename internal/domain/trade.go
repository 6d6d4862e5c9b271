package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade or order from the account's view.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeStatus is the state of a trade record. Trades are written once
// settlement has succeeded, so every stored trade is completed.
type TradeStatus string

const TradeStatusCompleted TradeStatus = "COMPLETED"

// Trade is one side of an executed fill. Every matched fill produces a BUY
// trade for the buyer and a SELL trade for the seller.
type Trade struct {
	ID             string
	AccountID      string
	CounterpartyID string // empty for deferred-order executions
	Symbol         string
	Side           Side
	Quantity       int64
	Price          decimal.Decimal
	Status         TradeStatus
	OfferID        string
	OrderID        string
	ExecutedAt     time.Time
}

// Amount returns price × quantity for the trade.
func (t *Trade) Amount() decimal.Decimal {
	return Cost(t.Price, t.Quantity)
}
