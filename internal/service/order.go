package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/cache"
	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/engine"
)

// PlaceOrderRequest represents the input for placing a deferred order.
type PlaceOrderRequest struct {
	AccountID string
	Symbol    string
	Side      domain.Side
	Mode      domain.OrderMode
	Quantity  int64
	Price     *decimal.Decimal // required for LIMIT, must be nil for MARKET
}

// OrderService handles deferred orders: placement, execution and lookup.
// It also receives the sweeper's executions so both paths publish the
// same events.
type OrderService struct {
	engine *engine.Engine
	books  cache.BookCache
	events *EventDispatcher
	logger *slog.Logger
}

var _ engine.ExecutionNotifier = (*OrderService)(nil)

// NewOrderService creates a new OrderService.
func NewOrderService(e *engine.Engine, books cache.BookCache, dispatcher *EventDispatcher, logger *slog.Logger) *OrderService {
	if books == nil {
		books = cache.NopBookCache{}
	}
	if dispatcher == nil {
		dispatcher = NewEventDispatcher(nil, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		engine: e,
		books:  books,
		events: dispatcher,
		logger: logger,
	}
}

// Place validates the request and stores a PENDING order.
func (s *OrderService) Place(ctx context.Context, req PlaceOrderRequest) (*domain.PendingOrder, error) {
	if !domain.ValidSymbol(req.Symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}

	var price decimal.Decimal
	switch req.Mode {
	case domain.OrderModeLimit:
		if req.Price == nil {
			return nil, &domain.ValidationError{Message: "price is required for LIMIT orders"}
		}
		price = *req.Price
	case domain.OrderModeMarket:
		if req.Price != nil {
			return nil, &domain.ValidationError{Message: "price must not be set for MARKET orders"}
		}
	}

	order, err := s.engine.PlaceDeferredOrder(ctx, engine.DeferredOrderRequest{
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Mode:      req.Mode,
		Quantity:  req.Quantity,
		Price:     price,
	})
	if err != nil {
		return nil, err
	}
	s.events.OrderPlaced(ctx, order)
	return order, nil
}

// Execute executes a due order. When the order ends up FAILED the
// execution is returned together with the reason.
func (s *OrderService) Execute(ctx context.Context, orderID string) (*engine.Execution, error) {
	exec, err := s.engine.ExecuteDeferredOrder(ctx, orderID)
	if exec != nil {
		s.DeferredOrderProcessed(ctx, exec)
	}
	return exec, err
}

// Get returns the order if it belongs to accountID. Orders owned by other
// accounts are reported as not found.
func (s *OrderService) Get(ctx context.Context, accountID, orderID string) (*domain.PendingOrder, error) {
	order, err := s.engine.PendingOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.AccountID != accountID {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// DeferredOrderProcessed publishes the outcome of an executed order and
// drops cached depth when a SELL was listed.
func (s *OrderService) DeferredOrderProcessed(ctx context.Context, exec *engine.Execution) {
	if exec.Offer != nil {
		invalidateBook(ctx, s.books, s.logger, exec.Offer.Symbol)
	}
	s.events.OrderProcessed(ctx, exec)
}
