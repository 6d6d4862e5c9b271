package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/cache"
	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/engine"
)

const (
	DefaultBookDepth = 10
	MaxBookDepth     = 50
)

// RegisterStockRequest represents the input for registering a stock.
type RegisterStockRequest struct {
	Symbol      string
	Name        string
	MarketPrice decimal.Decimal
	Details     json.RawMessage
}

// BookResponse is the aggregated sell side of a stock.
type BookResponse struct {
	Symbol string
	Levels []domain.PriceLevel
	Cached bool
}

// StockService handles the stock catalog and book depth queries.
type StockService struct {
	engine *engine.Engine
	books  cache.BookCache
	logger *slog.Logger
}

// NewStockService creates a new StockService.
func NewStockService(e *engine.Engine, books cache.BookCache, logger *slog.Logger) *StockService {
	if books == nil {
		books = cache.NopBookCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StockService{engine: e, books: books, logger: logger}
}

// Register adds a stock to the catalog.
func (s *StockService) Register(ctx context.Context, req RegisterStockRequest) (*domain.Stock, error) {
	if len(req.Name) > 200 {
		return nil, &domain.ValidationError{Message: "name must be at most 200 characters"}
	}
	if len(req.Details) > 0 && !json.Valid(req.Details) {
		return nil, &domain.ValidationError{Message: "details must be valid JSON"}
	}
	stock := &domain.Stock{
		Symbol:      req.Symbol,
		Name:        req.Name,
		MarketPrice: req.MarketPrice,
		Details:     req.Details,
	}
	if err := s.engine.RegisterStock(ctx, stock); err != nil {
		return nil, err
	}
	return stock, nil
}

// Get returns a stock by symbol.
func (s *StockService) Get(ctx context.Context, symbol string) (*domain.Stock, error) {
	if !domain.ValidSymbol(symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	return s.engine.Stock(ctx, symbol)
}

// Book returns up to depth price levels of the symbol's sell book, served
// from the cache when possible. The cache is advisory: its errors are
// logged and the ledger is read instead.
func (s *StockService) Book(ctx context.Context, symbol string, depth int) (*BookResponse, error) {
	if !domain.ValidSymbol(symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	if depth < 1 || depth > MaxBookDepth {
		return nil, &domain.ValidationError{Message: "depth must be between 1 and 50"}
	}

	levels, ok, err := s.books.Get(ctx, symbol, depth)
	if err != nil {
		s.logger.Warn("book cache read failed", slog.String("symbol", symbol), slog.String("error", err.Error()))
	}
	if ok {
		return &BookResponse{Symbol: symbol, Levels: levels, Cached: true}, nil
	}

	// The version must be read before the ledger so a book change that
	// commits in between makes Set drop this snapshot.
	version, verErr := s.books.Version(ctx, symbol)
	if verErr != nil {
		s.logger.Warn("book cache version read failed", slog.String("symbol", symbol), slog.String("error", verErr.Error()))
	}

	levels, err = s.engine.BookDepth(ctx, symbol, depth)
	if err != nil {
		return nil, err
	}
	if verErr == nil {
		if err := s.books.Set(ctx, symbol, depth, levels, version); err != nil {
			s.logger.Warn("book cache write failed", slog.String("symbol", symbol), slog.String("error", err.Error()))
		}
	}
	return &BookResponse{Symbol: symbol, Levels: levels}, nil
}
