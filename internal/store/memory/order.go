package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/efreitasn/brokerledger/internal/domain"
)

func (t *tx) GetPendingOrder(ctx context.Context, id string) (*domain.PendingOrder, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (t *tx) InsertPendingOrder(ctx context.Context, o *domain.PendingOrder) error {
	if err := t.writable(); err != nil {
		return err
	}
	id := o.ID
	if _, exists := t.s.orders[id]; exists {
		return fmt.Errorf("order %s already exists", id)
	}
	t.s.orders[id] = copyOrder(o)
	t.record(func() { delete(t.s.orders, id) })
	return nil
}

func (t *tx) UpdatePendingOrder(ctx context.Context, o *domain.PendingOrder) error {
	if err := t.writable(); err != nil {
		return err
	}
	id := o.ID
	prev, ok := t.s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	t.s.orders[id] = copyOrder(o)
	t.record(func() { t.s.orders[id] = prev })
	return nil
}

func (t *tx) DuePendingOrders(ctx context.Context, now time.Time, limit int) ([]string, error) {
	due := make([]*domain.PendingOrder, 0)
	for _, o := range t.s.orders {
		if o.Status == domain.OrderStatusPending && o.Eligible(now) {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].CanExecuteAt.Equal(due[j].CanExecuteAt) {
			return due[i].CanExecuteAt.Before(due[j].CanExecuteAt)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]string, len(due))
	for i, o := range due {
		ids[i] = o.ID
	}
	return ids, nil
}

func copyOrder(o *domain.PendingOrder) *domain.PendingOrder {
	c := *o
	if o.ProcessedAt != nil {
		at := *o.ProcessedAt
		c.ProcessedAt = &at
	}
	return &c
}
