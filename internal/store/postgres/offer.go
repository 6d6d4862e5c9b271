package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerledger/internal/domain"
)

const offerColumns = `id, account_id, symbol, quantity, original_quantity, price::text, created_at`

func scanOffer(row rowScanner) (*domain.SellOffer, error) {
	var o domain.SellOffer
	var price string
	if err := row.Scan(&o.ID, &o.AccountID, &o.Symbol, &o.Quantity, &o.OriginalQuantity, &price, &o.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if o.Price, err = parseDecimal(price, "price"); err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *tx) ListMatchableOffers(ctx context.Context, symbol string, maxPrice decimal.Decimal) ([]*domain.SellOffer, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+offerColumns+`
		FROM sell_offers
		WHERE symbol = $1 AND price <= $2
		ORDER BY price, created_at, id COLLATE "C"`+t.lock, symbol, maxPrice.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*domain.SellOffer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (t *tx) GetOffer(ctx context.Context, id string) (*domain.SellOffer, error) {
	o, err := scanOffer(t.tx.QueryRow(ctx, `
		SELECT `+offerColumns+`
		FROM sell_offers
		WHERE id = $1`+t.lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOfferNotFound
	}
	return o, err
}

func (t *tx) InsertOffer(ctx context.Context, o *domain.SellOffer) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO sell_offers (id, account_id, symbol, quantity, original_quantity, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, o.ID, o.AccountID, o.Symbol, o.Quantity, o.OriginalQuantity, o.Price.String(), o.CreatedAt)
	return err
}

func (t *tx) UpdateOfferQuantity(ctx context.Context, id string, quantity int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sell_offers SET quantity = $1 WHERE id = $2`, quantity, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOfferNotFound
	}
	return nil
}

func (t *tx) DeleteOffer(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM sell_offers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOfferNotFound
	}
	return nil
}

// BookDepth aggregates without locking; depth is informational.
func (t *tx) BookDepth(ctx context.Context, symbol string, levels int) ([]domain.PriceLevel, error) {
	if levels <= 0 {
		return []domain.PriceLevel{}, nil
	}
	rows, err := t.tx.Query(ctx, `
		SELECT price::text, LEAST(SUM(quantity), 9223372036854775807)::bigint, COUNT(*)
		FROM sell_offers
		WHERE symbol = $1
		GROUP BY price
		ORDER BY price
		LIMIT $2
	`, symbol, levels)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.PriceLevel, 0)
	for rows.Next() {
		var lvl domain.PriceLevel
		var price string
		if err := rows.Scan(&price, &lvl.Quantity, &lvl.OfferCount); err != nil {
			return nil, err
		}
		if lvl.Price, err = parseDecimal(price, "price"); err != nil {
			return nil, err
		}
		result = append(result, lvl)
	}
	return result, rows.Err()
}
