package memory

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
)

func (t *tx) LockAccounts(ctx context.Context, ids []string) error {
	return nil
}

func (t *tx) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	a, ok := t.s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (t *tx) CreateAccount(ctx context.Context, a *domain.Account) error {
	if err := t.writable(); err != nil {
		return err
	}
	id := a.ID
	if _, exists := t.s.accounts[id]; exists {
		return domain.ErrAccountAlreadyExists
	}
	c := *a
	t.s.accounts[id] = &c
	t.record(func() { delete(t.s.accounts, id) })
	return nil
}

func (t *tx) UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	a, ok := t.s.accounts[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	prev := *a
	a.Balance = balance
	a.UpdatedAt = at
	t.record(func() { *a = prev })
	return nil
}

func (t *tx) GetStock(ctx context.Context, symbol string) (*domain.Stock, error) {
	s, ok := t.s.stocks[symbol]
	if !ok {
		return nil, domain.ErrStockNotFound
	}
	c := *s
	c.Details = append(json.RawMessage(nil), s.Details...)
	return &c, nil
}

func (t *tx) CreateStock(ctx context.Context, s *domain.Stock) error {
	if err := t.writable(); err != nil {
		return err
	}
	symbol := s.Symbol
	if _, exists := t.s.stocks[symbol]; exists {
		return domain.ErrStockAlreadyExists
	}
	c := *s
	c.Details = append(json.RawMessage(nil), s.Details...)
	t.s.stocks[symbol] = &c
	t.record(func() { delete(t.s.stocks, symbol) })
	return nil
}

func (t *tx) UpdateStockPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error {
	if err := t.writable(); err != nil {
		return err
	}
	s, ok := t.s.stocks[symbol]
	if !ok {
		return domain.ErrStockNotFound
	}
	prevPrice, prevAt := s.MarketPrice, s.UpdatedAt
	s.MarketPrice = price
	s.UpdatedAt = at
	t.record(func() {
		s.MarketPrice = prevPrice
		s.UpdatedAt = prevAt
	})
	return nil
}

func (t *tx) GetHolding(ctx context.Context, accountID, symbol string) (*domain.Holding, error) {
	h, ok := t.s.holdings[holdingKey{accountID, symbol}]
	if !ok {
		return nil, domain.ErrHoldingNotFound
	}
	c := *h
	return &c, nil
}

func (t *tx) SaveHolding(ctx context.Context, h *domain.Holding) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := holdingKey{h.AccountID, h.Symbol}
	if existing, ok := t.s.holdings[key]; ok {
		prev := *existing
		*existing = *h
		t.record(func() { *existing = prev })
		return nil
	}
	c := *h
	t.s.holdings[key] = &c
	t.record(func() { delete(t.s.holdings, key) })
	return nil
}

// ListHoldings returns the account's holdings ordered by symbol.
func (t *tx) ListHoldings(ctx context.Context, accountID string) ([]*domain.Holding, error) {
	result := make([]*domain.Holding, 0)
	for key, h := range t.s.holdings {
		if key.accountID != accountID {
			continue
		}
		c := *h
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}
