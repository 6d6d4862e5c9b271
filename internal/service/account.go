package service

import (
	"context"
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
	"github.com/efreitasn/brokerledger/internal/engine"
)

var accountIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// OpenAccountRequest represents the input for opening an account.
type OpenAccountRequest struct {
	AccountID       string
	InitialBalance  decimal.Decimal
	InitialHoldings []HoldingInput
}

// HoldingInput represents a single starting position.
type HoldingInput struct {
	Symbol   string
	Quantity int64
}

// AccountService handles account opening, deposits and account reads.
type AccountService struct {
	engine *engine.Engine
}

// NewAccountService creates a new AccountService.
func NewAccountService(e *engine.Engine) *AccountService {
	return &AccountService{engine: e}
}

// ValidAccountID reports whether id is an acceptable account id.
func ValidAccountID(id string) bool {
	return accountIDRegex.MatchString(id)
}

// Open validates the request and opens the account.
func (s *AccountService) Open(ctx context.Context, req OpenAccountRequest) (*domain.Account, error) {
	if !ValidAccountID(req.AccountID) {
		return nil, &domain.ValidationError{
			Message: "account_id must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}

	seen := make(map[string]bool)
	grants := make([]engine.HoldingGrant, 0, len(req.InitialHoldings))
	for _, h := range req.InitialHoldings {
		if !domain.ValidSymbol(h.Symbol) {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("holding symbol must match ^[A-Z]{1,10}$, got %q", h.Symbol),
			}
		}
		if h.Quantity <= 0 {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("holding quantity must be > 0 for symbol %s", h.Symbol),
			}
		}
		if seen[h.Symbol] {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("duplicate symbol in initial_holdings: %s", h.Symbol),
			}
		}
		seen[h.Symbol] = true
		grants = append(grants, engine.HoldingGrant{Symbol: h.Symbol, Quantity: h.Quantity})
	}

	return s.engine.OpenAccount(ctx, engine.OpenAccountRequest{
		AccountID:       req.AccountID,
		InitialBalance:  req.InitialBalance,
		InitialHoldings: grants,
	})
}

// Deposit adds money to the account.
func (s *AccountService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*domain.Account, error) {
	return s.engine.Deposit(ctx, accountID, amount)
}

// Get returns the account's balance and positions.
func (s *AccountService) Get(ctx context.Context, accountID string) (*engine.AccountView, error) {
	return s.engine.Account(ctx, accountID)
}

// Trades returns the account's trade history, oldest first.
func (s *AccountService) Trades(ctx context.Context, accountID string) ([]*domain.Trade, error) {
	return s.engine.Trades(ctx, accountID)
}
