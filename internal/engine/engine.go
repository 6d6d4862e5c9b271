// Package engine is the brokerage ledger core: the sell book, the matching
// engine, settlement, the resale restriction on recently bought shares and
// the deferred-order lifecycle. Every operation runs in a single
// store.Ledger unit of work and either applies completely or not at all.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/store"
)

const (
	DefaultSettlementWindow = 72 * time.Hour
	DefaultDeferredDelay    = 72 * time.Hour
)

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	SettlementWindow time.Duration
	DeferredDelay    time.Duration
	Clock            func() time.Time
	Logger           *slog.Logger
	Metrics          *Metrics
}

// Engine exposes the ledger operations.
type Engine struct {
	ledger    store.Ledger
	book      *SellBook
	holdings  *HoldingTracker
	matcher   *Matcher
	lifecycle *Lifecycle
	now       func() time.Time
	logger    *slog.Logger
	metrics   *Metrics
}

// New creates an Engine over ledger.
func New(ledger store.Ledger, opts Options) *Engine {
	if opts.SettlementWindow <= 0 {
		opts.SettlementWindow = DefaultSettlementWindow
	}
	if opts.DeferredDelay <= 0 {
		opts.DeferredDelay = DefaultDeferredDelay
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	book := &SellBook{}
	holdings := &HoldingTracker{window: opts.SettlementWindow}
	return &Engine{
		ledger:   ledger,
		book:     book,
		holdings: holdings,
		matcher: &Matcher{
			book:    book,
			settler: &Settler{book: book, holdings: holdings},
		},
		lifecycle: &Lifecycle{book: book, holdings: holdings, delay: opts.DeferredDelay},
		now:       opts.Clock,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// HoldingGrant is a starting position credited when an account is opened.
type HoldingGrant struct {
	Symbol   string
	Quantity int64
}

// OpenAccountRequest is the input for OpenAccount.
type OpenAccountRequest struct {
	AccountID       string
	InitialBalance  decimal.Decimal
	InitialHoldings []HoldingGrant
}

// OpenAccount creates an account with a starting balance and positions.
// Granted shares are not purchases and are sellable immediately.
func (e *Engine) OpenAccount(ctx context.Context, req OpenAccountRequest) (account *domain.Account, err error) {
	defer e.observe("open_account", time.Now(), &err)

	if req.InitialBalance.IsNegative() {
		return nil, &domain.ValidationError{Message: "initial_balance must be >= 0"}
	}
	if err := domain.CheckMoneyScale(req.InitialBalance); err != nil {
		return nil, &domain.ValidationError{Message: "initial_balance: " + err.Error()}
	}
	for _, g := range req.InitialHoldings {
		if g.Quantity <= 0 {
			return nil, &domain.ValidationError{Message: "initial_holdings quantity must be a positive integer"}
		}
	}

	err = e.ledger.WithTx(ctx, func(tx store.Tx) error {
		now := e.now()
		account = &domain.Account{
			ID:        req.AccountID,
			Balance:   req.InitialBalance,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.CreateAccount(ctx, account); err != nil {
			return err
		}
		for _, g := range req.InitialHoldings {
			if _, err := tx.GetStock(ctx, g.Symbol); err != nil {
				return err
			}
			if err := e.holdings.Acquire(ctx, tx, account.ID, g.Symbol, g.Quantity, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Deposit adds amount to the account's cash balance.
func (e *Engine) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (account *domain.Account, err error) {
	defer e.observe("deposit", time.Now(), &err)

	if !amount.IsPositive() {
		return nil, &domain.ValidationError{Message: "amount must be greater than 0"}
	}
	if err := domain.CheckMoneyScale(amount); err != nil {
		return nil, &domain.ValidationError{Message: "amount: " + err.Error()}
	}

	err = e.ledger.WithTx(ctx, func(tx store.Tx) error {
		a, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		a.Balance = a.Balance.Add(amount)
		a.UpdatedAt = e.now()
		if err := tx.UpdateAccountBalance(ctx, a.ID, a.Balance, a.UpdatedAt); err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// RegisterStock adds a tradable stock.
func (e *Engine) RegisterStock(ctx context.Context, stock *domain.Stock) (err error) {
	defer e.observe("register_stock", time.Now(), &err)

	if !domain.ValidSymbol(stock.Symbol) {
		return &domain.ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	if stock.MarketPrice.IsNegative() {
		return &domain.ValidationError{Message: "market_price must be >= 0"}
	}
	if err := domain.CheckMoneyScale(stock.MarketPrice); err != nil {
		return &domain.ValidationError{Message: "market_price: " + err.Error()}
	}

	return e.ledger.WithTx(ctx, func(tx store.Tx) error {
		stock.UpdatedAt = e.now()
		return tx.CreateStock(ctx, stock)
	})
}

// PlaceBuy buys quantity shares of symbol for accountID at no more than
// maxPrice per share, filling from the cheapest offers first. The buy is
// all-or-nothing: without enough liquidity or funds nothing changes.
func (e *Engine) PlaceBuy(ctx context.Context, accountID, symbol string, quantity int64, maxPrice decimal.Decimal) (result *MatchResult, err error) {
	defer e.observe("place_buy", time.Now(), &err)

	if err := domain.CheckMoneyScale(maxPrice); err != nil {
		return nil, &domain.ValidationError{Message: "price: " + err.Error()}
	}
	err = e.ledger.WithTx(ctx, func(tx store.Tx) error {
		var err error
		result, err = e.matcher.Match(ctx, tx, accountID, symbol, quantity, maxPrice, e.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveFills(symbol, len(result.Fills), result.TotalQuantity)
	return result, nil
}

// PlaceSell lists quantity shares of symbol at price. The shares must be
// owned, unlisted and out of their settlement window.
func (e *Engine) PlaceSell(ctx context.Context, accountID, symbol string, quantity int64, price decimal.Decimal) (offer *domain.SellOffer, err error) {
	defer e.observe("place_sell", time.Now(), &err)

	if quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	if !price.IsPositive() {
		return nil, &domain.ValidationError{Message: "price must be greater than 0"}
	}
	if err := domain.CheckMoneyScale(price); err != nil {
		return nil, &domain.ValidationError{Message: "price: " + err.Error()}
	}

	err = e.ledger.WithTx(ctx, func(tx store.Tx) error {
		now := e.now()
		if _, err := tx.GetStock(ctx, symbol); err != nil {
			return err
		}
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		holding, err := e.holdings.CheckSellable(ctx, tx, accountID, symbol, quantity, now)
		if err != nil {
			return err
		}
		if err := e.holdings.Reserve(ctx, tx, holding, quantity, now); err != nil {
			return err
		}
		offer, err = e.book.List(ctx, tx, accountID, symbol, quantity, price, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// CancelSell withdraws an untouched offer owned by accountID and returns
// its shares to the available pool.
func (e *Engine) CancelSell(ctx context.Context, accountID, offerID string) (offer *domain.SellOffer, err error) {
	defer e.observe("cancel_sell", time.Now(), &err)

	err = e.ledger.WithTx(ctx, func(tx store.Tx) error {
		var err error
		offer, err = e.book.Withdraw(ctx, tx, accountID, offerID)
		if err != nil {
			return err
		}
		return e.holdings.Release(ctx, tx, offer.AccountID, offer.Symbol, offer.Quantity, e.now())
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// PlaceDeferredOrder stores a PENDING order that becomes executable after
// the configured delay.
func (e *Engine) PlaceDeferredOrder(ctx context.Context, req DeferredOrderRequest) (order *domain.PendingOrder, err error) {
	defer e.observe("place_deferred_order", time.Now(), &err)

	if req.Mode == domain.OrderModeLimit {
		if err := domain.CheckMoneyScale(req.Price); err != nil {
			return nil, &domain.ValidationError{Message: "price: " + err.Error()}
		}
	}
	err = e.ledger.WithTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = e.lifecycle.Place(ctx, tx, req, e.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ExecuteDeferredOrder executes a PENDING order whose waiting period has
// passed. When the order can no longer be carried out it is committed as
// FAILED and the returned Execution carries the same error that is
// returned.
func (e *Engine) ExecuteDeferredOrder(ctx context.Context, orderID string) (exec *Execution, err error) {
	defer e.observe("execute_deferred_order", time.Now(), &err)

	err = e.ledger.WithTx(ctx, func(tx store.Tx) error {
		var err error
		exec, err = e.lifecycle.Execute(ctx, tx, orderID, e.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	if exec.Failure != nil {
		return exec, exec.Failure
	}
	return exec, nil
}

// DueOrders returns up to limit ids of PENDING orders that can be executed now.
func (e *Engine) DueOrders(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := e.ledger.View(ctx, func(tx store.Tx) error {
		var err error
		ids, err = tx.DuePendingOrders(ctx, e.now(), limit)
		return err
	})
	return ids, err
}

// HoldingView is a position together with how much of it is still inside
// the settlement window.
type HoldingView struct {
	domain.Holding
	Unsettled  int64
	SellableAt *time.Time // nil when nothing is unsettled
}

// AccountView is an account's balance and positions.
type AccountView struct {
	Account  *domain.Account
	Holdings []HoldingView
}

// Account returns the account's balance and positions.
func (e *Engine) Account(ctx context.Context, accountID string) (*AccountView, error) {
	view := &AccountView{}
	err := e.ledger.View(ctx, func(tx store.Tx) error {
		now := e.now()
		a, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		view.Account = a
		holdings, err := tx.ListHoldings(ctx, accountID)
		if err != nil {
			return err
		}
		view.Holdings = make([]HoldingView, 0, len(holdings))
		for _, h := range holdings {
			unsettled, eligibleAt, err := e.holdings.Unsettled(ctx, tx, accountID, h.Symbol, now)
			if err != nil {
				return err
			}
			hv := HoldingView{Holding: *h, Unsettled: unsettled}
			if unsettled > 0 {
				hv.SellableAt = &eligibleAt
			}
			view.Holdings = append(view.Holdings, hv)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// Trades returns the account's trades, oldest first.
func (e *Engine) Trades(ctx context.Context, accountID string) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	err := e.ledger.View(ctx, func(tx store.Tx) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		var err error
		trades, err = tx.ListTrades(ctx, accountID)
		return err
	})
	return trades, err
}

// Stock returns a stock by symbol.
func (e *Engine) Stock(ctx context.Context, symbol string) (*domain.Stock, error) {
	var stock *domain.Stock
	err := e.ledger.View(ctx, func(tx store.Tx) error {
		var err error
		stock, err = tx.GetStock(ctx, symbol)
		return err
	})
	return stock, err
}

// BookDepth returns up to levels aggregated sell-book price levels.
func (e *Engine) BookDepth(ctx context.Context, symbol string, levels int) ([]domain.PriceLevel, error) {
	var depth []domain.PriceLevel
	err := e.ledger.View(ctx, func(tx store.Tx) error {
		if _, err := tx.GetStock(ctx, symbol); err != nil {
			return err
		}
		var err error
		depth, err = e.book.Depth(ctx, tx, symbol, levels)
		return err
	})
	return depth, err
}

// PendingOrder returns a deferred order by id.
func (e *Engine) PendingOrder(ctx context.Context, orderID string) (*domain.PendingOrder, error) {
	var order *domain.PendingOrder
	err := e.ledger.View(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.GetPendingOrder(ctx, orderID)
		return err
	})
	return order, err
}

// observe records the operation outcome and logs anything that is not a
// plain rejection of the request.
func (e *Engine) observe(op string, start time.Time, errp *error) {
	err := *errp
	outcome := Outcome(err)
	e.metrics.ObserveOperation(op, outcome, time.Since(start))

	switch outcome {
	case OutcomeConsistency:
		e.logger.Error("ledger consistency violation", slog.String("op", op), slog.String("error", err.Error()))
	case OutcomeRetryable:
		e.logger.Warn("ledger operation contended", slog.String("op", op), slog.String("error", err.Error()))
	case OutcomeError:
		e.logger.Error("ledger operation failed", slog.String("op", op), slog.String("error", err.Error()))
	case OutcomeRejected:
		e.logger.Debug("ledger operation rejected", slog.String("op", op), slog.String("reason", err.Error()))
	}
}

// Operation outcomes, as reported by Outcome.
const (
	OutcomeOK          = "ok"
	OutcomeRejected    = "rejected"
	OutcomeRetryable   = "retryable"
	OutcomeConsistency = "consistency"
	OutcomeError       = "error"
)

var rejections = []error{
	domain.ErrAccountAlreadyExists,
	domain.ErrAccountNotFound,
	domain.ErrStockAlreadyExists,
	domain.ErrStockNotFound,
	domain.ErrOfferNotFound,
	domain.ErrOrderNotFound,
	domain.ErrInsufficientFunds,
	domain.ErrInsufficientStock,
	domain.ErrInsufficientLiquidity,
	domain.ErrSettlementWindowActive,
	domain.ErrNotYetEligible,
	domain.ErrAlreadyProcessed,
	domain.ErrAlreadyMatched,
	domain.ErrPositionLimitExceeded,
}

// Outcome classifies an operation error.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var ce *domain.ConsistencyError
	if errors.As(err, &ce) {
		return OutcomeConsistency
	}
	if errors.Is(err, domain.ErrRetryable) {
		return OutcomeRetryable
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return OutcomeRejected
	}
	for _, r := range rejections {
		if errors.Is(err, r) {
			return OutcomeRejected
		}
	}
	return OutcomeError
}
