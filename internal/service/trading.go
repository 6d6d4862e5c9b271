package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/cache"
	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/engine"
)

// TradingService places buys against the sell book and manages sell offers.
// After a change commits it drops the symbol's cached book depth and
// publishes the matching events.
type TradingService struct {
	engine *engine.Engine
	books  cache.BookCache
	events *EventDispatcher
	logger *slog.Logger
}

// NewTradingService creates a new TradingService. A nil books cache is
// treated as no cache.
func NewTradingService(e *engine.Engine, books cache.BookCache, dispatcher *EventDispatcher, logger *slog.Logger) *TradingService {
	if books == nil {
		books = cache.NopBookCache{}
	}
	if dispatcher == nil {
		dispatcher = NewEventDispatcher(nil, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TradingService{
		engine: e,
		books:  books,
		events: dispatcher,
		logger: logger,
	}
}

// Buy buys quantity shares of symbol for accountID at no more than price
// per share.
func (s *TradingService) Buy(ctx context.Context, accountID, symbol string, quantity int64, price decimal.Decimal) (*engine.MatchResult, error) {
	if !domain.ValidSymbol(symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	result, err := s.engine.PlaceBuy(ctx, accountID, symbol, quantity, price)
	if err != nil {
		return nil, err
	}
	s.bookChanged(ctx, symbol)
	s.events.TradesExecuted(ctx, accountID, result)
	return result, nil
}

// Sell lists quantity shares of symbol at price.
func (s *TradingService) Sell(ctx context.Context, accountID, symbol string, quantity int64, price decimal.Decimal) (*domain.SellOffer, error) {
	if !domain.ValidSymbol(symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	offer, err := s.engine.PlaceSell(ctx, accountID, symbol, quantity, price)
	if err != nil {
		return nil, err
	}
	s.bookChanged(ctx, symbol)
	s.events.OfferPlaced(ctx, offer)
	return offer, nil
}

// Cancel withdraws an untouched offer owned by accountID.
func (s *TradingService) Cancel(ctx context.Context, accountID, offerID string) (*domain.SellOffer, error) {
	offer, err := s.engine.CancelSell(ctx, accountID, offerID)
	if err != nil {
		return nil, err
	}
	s.bookChanged(ctx, offer.Symbol)
	s.events.OfferCancelled(ctx, offer, time.Now().UTC())
	return offer, nil
}

// bookChanged drops cached depth for symbol. A stale entry only lives until
// its TTL, so failures are logged and otherwise ignored.
func (s *TradingService) bookChanged(ctx context.Context, symbol string) {
	invalidateBook(ctx, s.books, s.logger, symbol)
}

func invalidateBook(ctx context.Context, books cache.BookCache, logger *slog.Logger, symbol string) {
	if err := books.Invalidate(ctx, symbol); err != nil {
		logger.Warn("book cache invalidation failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}
}
