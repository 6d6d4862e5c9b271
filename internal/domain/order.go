package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderMode distinguishes limit orders from market orders.
type OrderMode string

const (
	OrderModeMarket OrderMode = "MARKET"
	OrderModeLimit  OrderMode = "LIMIT"
)

// OrderStatus represents the lifecycle state of a deferred order.
// Execution moves an order from PENDING straight to COMPLETED or FAILED in
// one unit of work, so OrderStatusExecuted is part of the vocabulary but never
// stored by this ledger.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusExecuted  OrderStatus = "EXECUTED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// PendingOrder is a deferred instruction that becomes executable at
// CanExecuteAt.
type PendingOrder struct {
	ID            string
	AccountID     string
	Symbol        string
	Side          Side
	Mode          OrderMode
	Quantity      int64
	Price         decimal.Decimal
	Escrow        decimal.Decimal // cash debited at placement, BUY only
	Status        OrderStatus
	PlacedAt      time.Time
	CanExecuteAt  time.Time
	ProcessedAt   *time.Time
	FailureReason string
}

// Eligible reports whether the order may be executed at now.
func (o *PendingOrder) Eligible(now time.Time) bool {
	return !now.Before(o.CanExecuteAt)
}

// Amount returns price × quantity for the order.
func (o *PendingOrder) Amount() decimal.Decimal {
	return Cost(o.Price, o.Quantity)
}
