// Package store defines the transactional ledger contract shared by the
// in-memory and Postgres implementations.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
)

// Ledger runs units of work against ledger state. WithTx commits when fn
// returns nil and rolls back every write otherwise. View runs fn against a
// read-only snapshot; writes inside a view fail.
type Ledger interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a unit of work. Inside
// WithTx every Get and List call locks the rows it returns until the unit
// of work ends. Returned values are copies; changes are only persisted
// through the explicit write methods.
type Tx interface {
	// LockAccounts locks the given accounts in ascending id order. Missing
	// ids are ignored.
	LockAccounts(ctx context.Context, ids []string) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	CreateAccount(ctx context.Context, a *domain.Account) error
	UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error

	GetStock(ctx context.Context, symbol string) (*domain.Stock, error)
	CreateStock(ctx context.Context, s *domain.Stock) error
	UpdateStockPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error

	// GetHolding returns domain.ErrHoldingNotFound when the account has
	// never held the symbol.
	GetHolding(ctx context.Context, accountID, symbol string) (*domain.Holding, error)
	SaveHolding(ctx context.Context, h *domain.Holding) error
	ListHoldings(ctx context.Context, accountID string) ([]*domain.Holding, error)

	// ListMatchableOffers returns the symbol's offers priced at or below
	// maxPrice in domain.OfferLess order.
	ListMatchableOffers(ctx context.Context, symbol string, maxPrice decimal.Decimal) ([]*domain.SellOffer, error)
	GetOffer(ctx context.Context, id string) (*domain.SellOffer, error)
	InsertOffer(ctx context.Context, o *domain.SellOffer) error
	UpdateOfferQuantity(ctx context.Context, id string, quantity int64) error
	DeleteOffer(ctx context.Context, id string) error
	BookDepth(ctx context.Context, symbol string, levels int) ([]domain.PriceLevel, error)

	InsertTrade(ctx context.Context, t *domain.Trade) error
	// ListTrades returns the account's trades oldest first.
	ListTrades(ctx context.Context, accountID string) ([]*domain.Trade, error)
	// PurchasesSince returns the account's BUY trades in symbol executed
	// strictly after since, oldest first.
	PurchasesSince(ctx context.Context, accountID, symbol string, since time.Time) ([]*domain.Trade, error)

	GetPendingOrder(ctx context.Context, id string) (*domain.PendingOrder, error)
	InsertPendingOrder(ctx context.Context, o *domain.PendingOrder) error
	UpdatePendingOrder(ctx context.Context, o *domain.PendingOrder) error
	// DuePendingOrders returns ids of PENDING orders with
	// CanExecuteAt <= now, earliest first.
	DuePendingOrders(ctx context.Context, now time.Time, limit int) ([]string, error)
}
