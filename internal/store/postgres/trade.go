package postgres

import (
	"context"
	"time"

	"github.com/efreitasn/brokerledger/internal/domain"
)

const tradeColumns = `id, account_id, counterparty_id, symbol, side, quantity, price::text, status, offer_id, order_id, executed_at`

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var tr domain.Trade
	var counterparty, offerID, orderID *string
	var side, status, price string
	err := row.Scan(&tr.ID, &tr.AccountID, &counterparty, &tr.Symbol, &side, &tr.Quantity,
		&price, &status, &offerID, &orderID, &tr.ExecutedAt)
	if err != nil {
		return nil, err
	}
	if tr.Price, err = parseDecimal(price, "price"); err != nil {
		return nil, err
	}
	tr.Side = domain.Side(side)
	tr.Status = domain.TradeStatus(status)
	tr.CounterpartyID = deref(counterparty)
	tr.OfferID = deref(offerID)
	tr.OrderID = deref(orderID)
	return &tr, nil
}

func (t *tx) InsertTrade(ctx context.Context, tr *domain.Trade) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO trades (id, account_id, counterparty_id, symbol, side, quantity, price, status, offer_id, order_id, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, tr.ID, tr.AccountID, nullable(tr.CounterpartyID), tr.Symbol, string(tr.Side), tr.Quantity,
		tr.Price.String(), string(tr.Status), nullable(tr.OfferID), nullable(tr.OrderID), tr.ExecutedAt)
	return err
}

func (t *tx) queryTrades(ctx context.Context, sql string, args ...any) ([]*domain.Trade, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.Trade, 0)
	for rows.Next() {
		tr, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tr)
	}
	return result, rows.Err()
}

// Trades are append-only, so none of the trade reads take row locks.

func (t *tx) ListTrades(ctx context.Context, accountID string) ([]*domain.Trade, error) {
	return t.queryTrades(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE account_id = $1
		ORDER BY executed_at, id COLLATE "C"
	`, accountID)
}

func (t *tx) PurchasesSince(ctx context.Context, accountID, symbol string, since time.Time) ([]*domain.Trade, error) {
	return t.queryTrades(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE account_id = $1 AND symbol = $2 AND side = 'BUY' AND executed_at > $3
		ORDER BY executed_at, id COLLATE "C"
	`, accountID, symbol, since)
}
