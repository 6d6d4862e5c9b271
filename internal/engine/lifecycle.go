package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/store"
)

// DeferredOrderRequest is the input for placing a deferred order.
type DeferredOrderRequest struct {
	AccountID string
	Symbol    string
	Side      domain.Side
	Mode      domain.OrderMode
	Quantity  int64
	Price     decimal.Decimal // ignored for MARKET orders
}

// Execution is the outcome of executing a deferred order. Failure is set
// when the order was marked FAILED; that state change is still committed.
type Execution struct {
	Order   *domain.PendingOrder
	Trade   *domain.Trade
	Offer   *domain.SellOffer
	Failure error
}

// Lifecycle places deferred orders and executes them once their waiting
// period has passed. Execution is its own path, separate from live
// matching: a BUY is filled by issuance at the order price and a SELL is
// listed on the sell book.
type Lifecycle struct {
	book     *SellBook
	holdings *HoldingTracker
	delay    time.Duration
}

// Place validates and stores a PENDING order executable from now + delay.
// A BUY debits price × quantity from the account up front and keeps it as
// the order's escrow. A SELL only checks that enough shares are available.
func (l *Lifecycle) Place(ctx context.Context, tx store.Tx, req DeferredOrderRequest, now time.Time) (*domain.PendingOrder, error) {
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return nil, &domain.ValidationError{Message: "side must be 'BUY' or 'SELL'"}
	}
	if req.Mode != domain.OrderModeMarket && req.Mode != domain.OrderModeLimit {
		return nil, &domain.ValidationError{Message: "order_mode must be 'MARKET' or 'LIMIT'"}
	}
	if req.Quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}

	stock, err := tx.GetStock(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	account, err := tx.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	price := req.Price
	if req.Mode == domain.OrderModeMarket {
		price = stock.MarketPrice
		if !price.IsPositive() {
			return nil, &domain.ValidationError{Message: "no market price available for " + req.Symbol}
		}
	} else if !price.IsPositive() {
		return nil, &domain.ValidationError{Message: "price must be greater than 0"}
	}

	order := &domain.PendingOrder{
		ID:           uuid.NewString(),
		AccountID:    req.AccountID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Mode:         req.Mode,
		Quantity:     req.Quantity,
		Price:        price,
		Escrow:       decimal.Zero,
		Status:       domain.OrderStatusPending,
		PlacedAt:     now,
		CanExecuteAt: now.Add(l.delay),
	}

	switch req.Side {
	case domain.SideBuy:
		cost := order.Amount()
		if account.Balance.LessThan(cost) {
			return nil, domain.ErrInsufficientFunds
		}
		if err := l.holdings.CheckAcquirable(ctx, tx, req.AccountID, req.Symbol, req.Quantity); err != nil {
			return nil, err
		}
		if err := tx.UpdateAccountBalance(ctx, account.ID, account.Balance.Sub(cost), now); err != nil {
			return nil, fmt.Errorf("debit escrow: %w", err)
		}
		order.Escrow = cost
	case domain.SideSell:
		holding, err := tx.GetHolding(ctx, req.AccountID, req.Symbol)
		if errors.Is(err, domain.ErrHoldingNotFound) || (err == nil && holding.Quantity < req.Quantity) {
			return nil, domain.ErrInsufficientStock
		}
		if err != nil {
			return nil, fmt.Errorf("get holding: %w", err)
		}
	}

	if err := tx.InsertPendingOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

// Execute runs a PENDING order whose waiting period has passed. A SELL that
// can no longer be covered, or a BUY that would overflow the position, is
// marked FAILED and reported through Execution.Failure with a nil error, so
// the caller still commits. A failed BUY gets its escrow back.
func (l *Lifecycle) Execute(ctx context.Context, tx store.Tx, orderID string, now time.Time) (*Execution, error) {
	order, err := tx.GetPendingOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPending {
		return nil, domain.ErrAlreadyProcessed
	}
	if !order.Eligible(now) {
		return nil, domain.ErrNotYetEligible
	}

	exec := &Execution{Order: order}
	switch order.Side {
	case domain.SideBuy:
		err := l.holdings.Acquire(ctx, tx, order.AccountID, order.Symbol, order.Quantity, now)
		if errors.Is(err, domain.ErrPositionLimitExceeded) {
			if err := l.refund(ctx, tx, order, now); err != nil {
				return nil, err
			}
			return l.fail(ctx, tx, exec, err, now)
		}
		if err != nil {
			return nil, err
		}
		exec.Trade = l.trade(order, "", now)
	case domain.SideSell:
		holding, err := l.holdings.CheckSellable(ctx, tx, order.AccountID, order.Symbol, order.Quantity, now)
		if errors.Is(err, domain.ErrInsufficientStock) || errors.Is(err, domain.ErrSettlementWindowActive) {
			return l.fail(ctx, tx, exec, err, now)
		}
		if err != nil {
			return nil, err
		}
		if err := l.holdings.Reserve(ctx, tx, holding, order.Quantity, now); err != nil {
			return nil, err
		}
		offer, err := l.book.List(ctx, tx, order.AccountID, order.Symbol, order.Quantity, order.Price, now)
		if err != nil {
			return nil, err
		}
		exec.Offer = offer
		exec.Trade = l.trade(order, offer.ID, now)
	default:
		return nil, &domain.ConsistencyError{Op: "execute order", Detail: "order " + order.ID, Err: fmt.Errorf("unknown side %q", order.Side)}
	}

	if err := tx.InsertTrade(ctx, exec.Trade); err != nil {
		return nil, fmt.Errorf("insert trade: %w", err)
	}
	order.Status = domain.OrderStatusCompleted
	order.ProcessedAt = &now
	if err := tx.UpdatePendingOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return exec, nil
}

func (l *Lifecycle) fail(ctx context.Context, tx store.Tx, exec *Execution, reason error, now time.Time) (*Execution, error) {
	exec.Order.Status = domain.OrderStatusFailed
	exec.Order.ProcessedAt = &now
	exec.Order.FailureReason = reason.Error()
	if err := tx.UpdatePendingOrder(ctx, exec.Order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	exec.Failure = reason
	return exec, nil
}

// refund returns a failed BUY's escrow to the account.
func (l *Lifecycle) refund(ctx context.Context, tx store.Tx, order *domain.PendingOrder, now time.Time) error {
	account, err := tx.GetAccount(ctx, order.AccountID)
	if err != nil {
		return &domain.ConsistencyError{Op: "refund escrow", Detail: "order " + order.ID, Err: err}
	}
	if err := tx.UpdateAccountBalance(ctx, account.ID, account.Balance.Add(order.Escrow), now); err != nil {
		return fmt.Errorf("refund escrow: %w", err)
	}
	return nil
}

func (l *Lifecycle) trade(order *domain.PendingOrder, offerID string, now time.Time) *domain.Trade {
	return &domain.Trade{
		ID:         uuid.NewString(),
		AccountID:  order.AccountID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      order.Price,
		Status:     domain.TradeStatusCompleted,
		OfferID:    offerID,
		OrderID:    order.ID,
		ExecutedAt: now,
	}
}
