package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
)

func (t *tx) LockAccounts(ctx context.Context, ids []string) error {
	rows, err := t.tx.Query(ctx, `
		SELECT id FROM accounts
		WHERE id = ANY($1)
		ORDER BY id COLLATE "C"`+t.lock, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

func (t *tx) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var a domain.Account
	var balance string
	err := t.tx.QueryRow(ctx, `
		SELECT id, balance::text, created_at, updated_at
		FROM accounts
		WHERE id = $1`+t.lock, id).Scan(&a.ID, &balance, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.Balance, err = parseDecimal(balance, "balance"); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *tx) CreateAccount(ctx context.Context, a *domain.Account) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO accounts (id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, a.ID, a.Balance.String(), a.CreatedAt, a.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAccountAlreadyExists
	}
	return err
}

func (t *tx) UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts SET balance = $1, updated_at = $2
		WHERE id = $3
	`, balance.String(), at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (t *tx) GetStock(ctx context.Context, symbol string) (*domain.Stock, error) {
	var s domain.Stock
	var price, details string
	err := t.tx.QueryRow(ctx, `
		SELECT symbol, name, market_price::text, COALESCE(details::text, ''), updated_at
		FROM stocks
		WHERE symbol = $1`+t.lock, symbol).Scan(&s.Symbol, &s.Name, &price, &details, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStockNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.MarketPrice, err = parseDecimal(price, "market_price"); err != nil {
		return nil, err
	}
	if details != "" {
		s.Details = json.RawMessage(details)
	}
	return &s, nil
}

func (t *tx) CreateStock(ctx context.Context, s *domain.Stock) error {
	var details *string
	if len(s.Details) > 0 {
		d := string(s.Details)
		details = &d
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stocks (symbol, name, market_price, details, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`, s.Symbol, s.Name, s.MarketPrice.String(), details, s.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.ErrStockAlreadyExists
	}
	return err
}

func (t *tx) UpdateStockPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE stocks SET market_price = $1, updated_at = $2
		WHERE symbol = $3
	`, price.String(), at, symbol)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStockNotFound
	}
	return nil
}

const holdingColumns = `account_id, symbol, quantity, sold_quantity, purchase_date, updated_at`

func scanHolding(row rowScanner) (*domain.Holding, error) {
	var h domain.Holding
	if err := row.Scan(&h.AccountID, &h.Symbol, &h.Quantity, &h.SoldQuantity, &h.PurchaseDate, &h.UpdatedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

func (t *tx) GetHolding(ctx context.Context, accountID, symbol string) (*domain.Holding, error) {
	h, err := scanHolding(t.tx.QueryRow(ctx, `
		SELECT `+holdingColumns+`
		FROM holdings
		WHERE account_id = $1 AND symbol = $2`+t.lock, accountID, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrHoldingNotFound
	}
	return h, err
}

func (t *tx) SaveHolding(ctx context.Context, h *domain.Holding) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO holdings (`+holdingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			sold_quantity = EXCLUDED.sold_quantity,
			updated_at = EXCLUDED.updated_at
	`, h.AccountID, h.Symbol, h.Quantity, h.SoldQuantity, h.PurchaseDate, h.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save holding %s/%s: %w", h.AccountID, h.Symbol, err)
	}
	return nil
}

func (t *tx) ListHoldings(ctx context.Context, accountID string) ([]*domain.Holding, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+holdingColumns+`
		FROM holdings
		WHERE account_id = $1
		ORDER BY symbol`+t.lock, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Holding, 0)
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, h)
	}
	return result, rows.Err()
}
