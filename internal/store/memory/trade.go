package memory

import (
	"context"
	"sort"
	"time"

	"github.com/efreitasn/brokerledger/internal/domain"
)

func (t *tx) InsertTrade(ctx context.Context, tr *domain.Trade) error {
	if err := t.writable(); err != nil {
		return err
	}
	c := *tr
	n := len(t.s.trades[c.AccountID])
	t.s.trades[c.AccountID] = append(t.s.trades[c.AccountID], &c)
	t.record(func() { t.s.trades[c.AccountID] = t.s.trades[c.AccountID][:n] })
	return nil
}

func (t *tx) ListTrades(ctx context.Context, accountID string) ([]*domain.Trade, error) {
	trades := t.s.trades[accountID]
	result := make([]*domain.Trade, len(trades))
	for i, tr := range trades {
		c := *tr
		result[i] = &c
	}
	return result, nil
}

func (t *tx) PurchasesSince(ctx context.Context, accountID, symbol string, since time.Time) ([]*domain.Trade, error) {
	result := make([]*domain.Trade, 0)
	for _, tr := range t.s.trades[accountID] {
		if tr.Symbol != symbol || tr.Side != domain.SideBuy || !tr.ExecutedAt.After(since) {
			continue
		}
		c := *tr
		result = append(result, &c)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ExecutedAt.Before(result[j].ExecutedAt) })
	return result, nil
}
