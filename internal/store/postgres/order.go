package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/efreitasn/brokerledger/internal/domain"
)

const orderColumns = `id, account_id, symbol, side, mode, quantity, price::text, escrow::text, status,
	placed_at, can_execute_at, processed_at, failure_reason`

func scanOrder(row rowScanner) (*domain.PendingOrder, error) {
	var o domain.PendingOrder
	var side, mode, status, price, escrow string
	err := row.Scan(&o.ID, &o.AccountID, &o.Symbol, &side, &mode, &o.Quantity, &price, &escrow, &status,
		&o.PlacedAt, &o.CanExecuteAt, &o.ProcessedAt, &o.FailureReason)
	if err != nil {
		return nil, err
	}
	if o.Price, err = parseDecimal(price, "price"); err != nil {
		return nil, err
	}
	if o.Escrow, err = parseDecimal(escrow, "escrow"); err != nil {
		return nil, err
	}
	o.Side = domain.Side(side)
	o.Mode = domain.OrderMode(mode)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func (t *tx) GetPendingOrder(ctx context.Context, id string) (*domain.PendingOrder, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM pending_orders
		WHERE id = $1`+t.lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	return o, err
}

func (t *tx) InsertPendingOrder(ctx context.Context, o *domain.PendingOrder) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO pending_orders (id, account_id, symbol, side, mode, quantity, price, escrow, status,
			placed_at, can_execute_at, processed_at, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, o.ID, o.AccountID, o.Symbol, string(o.Side), string(o.Mode), o.Quantity, o.Price.String(), o.Escrow.String(),
		string(o.Status), o.PlacedAt, o.CanExecuteAt, o.ProcessedAt, o.FailureReason)
	return err
}

func (t *tx) UpdatePendingOrder(ctx context.Context, o *domain.PendingOrder) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE pending_orders
		SET status = $1, processed_at = $2, failure_reason = $3
		WHERE id = $4
	`, string(o.Status), o.ProcessedAt, o.FailureReason, o.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (t *tx) DuePendingOrders(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id FROM pending_orders
		WHERE status = $1 AND can_execute_at <= $2
		ORDER BY can_execute_at, id COLLATE "C"
		LIMIT $3
	`, string(domain.OrderStatusPending), now, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
